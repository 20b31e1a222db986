package libasega

import (
	"github.com/ethereum/asega/internal/schema"
	"github.com/pkg/errors"
)

// Resolve returns the identities chosen by the selector, in identity file order.
func (s Selector) Resolve(ids *Identities) ([]Identity, error) {
	switch s.Kind {
	case SelectAll:
		return ids.All(), nil
	case SelectExcept:
		if _, ok := ids.Lookup(s.Name); !ok {
			return nil, errors.Errorf("unknown identity %q", s.Name)
		}
		return ids.Except(s.Name), nil
	}
	id, ok := ids.Lookup(s.Name)
	if !ok {
		return nil, errors.Errorf("unknown identity %q", s.Name)
	}
	return []Identity{id}, nil
}

// Resolve returns the candidate values of the argument.
func (a ArgToken) Resolve(ids *Identities) ([]schema.Value, error) {
	switch a.Kind {
	case ArgNull:
		return []schema.Value{schema.Null{}}, nil
	case ArgLiteral:
		return []schema.Value{schema.Text(a.Text)}, nil
	case ArgAll:
		return addresses(ids.All()), nil
	case ArgAllExcept:
		if _, ok := ids.Lookup(a.Text); !ok {
			return nil, errors.Errorf("unknown identity %q", a.Text)
		}
		return addresses(ids.Except(a.Text)), nil
	}
	id, ok := ids.Lookup(a.Text)
	if !ok {
		return nil, errors.Errorf("unknown identity %q", a.Text)
	}
	return []schema.Value{schema.Address(id.Address())}, nil
}

func addresses(list []Identity) []schema.Value {
	vs := make([]schema.Value, len(list))
	for i, id := range list {
		vs[i] = schema.Address(id.Address())
	}
	return vs
}

// Candidates resolves every argument token.
func Candidates(args []ArgToken, ids *Identities) ([][]schema.Value, error) {
	out := make([][]schema.Value, len(args))
	for i, arg := range args {
		vs, err := arg.Resolve(ids)
		if err != nil {
			return nil, err
		}
		out[i] = vs
	}
	return out, nil
}

// MaxCombinations is the largest number of argument combinations a single
// test line may expand to.
const MaxCombinations = 1 << 16

// Combinations returns the cartesian product of the candidate lists. The last
// position varies fastest. If any list is empty there are no combinations.
func Combinations(candidates [][]schema.Value) ([][]schema.Value, error) {
	total := 1
	for _, c := range candidates {
		if len(c) == 0 {
			return [][]schema.Value{}, nil
		}
		if total > MaxCombinations/len(c) {
			return nil, errors.Errorf("arguments expand to more than %d combinations", MaxCombinations)
		}
		total *= len(c)
	}
	combos := make([][]schema.Value, 0, total)
	idx := make([]int, len(candidates))
	for {
		combo := make([]schema.Value, len(candidates))
		for i, c := range candidates {
			combo[i] = c[idx[i]]
		}
		combos = append(combos, combo)

		// Advance the odometer.
		i := len(idx) - 1
		for ; i >= 0; i-- {
			idx[i]++
			if idx[i] < len(candidates[i]) {
				break
			}
			idx[i] = 0
		}
		if i < 0 {
			return combos, nil
		}
	}
}
