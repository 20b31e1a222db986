package libasega

import (
	"math/big"

	"github.com/ethereum/asega/internal/ledger"
	"github.com/ethereum/asega/internal/schema"
	"github.com/ethereum/asega/internal/specfile"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// Check validates a suite without a ledger. Identities and contracts get
// placeholder addresses. When artifacts is non-nil, contract names, constructor
// arguments and every invocation's method and arguments are checked against the
// compiled interfaces too.
//
// It returns the parsed tests.
func Check(suite *Suite, artifacts map[string]*ledger.Artifact) ([]*TestCase, error) {
	if err := CheckTargets(suite); err != nil {
		return nil, err
	}

	var list []Identity
	for i, spec := range suite.Identities {
		if spec.Name == FixedName {
			list = append(list, NewFixedIdentity(spec.Name, spec.Target))
		} else {
			list = append(list, NewProxyIdentity(spec.Name, spec.Target, placeholder(i)))
		}
	}
	ids, err := NewIdentities(list...)
	if err != nil {
		return nil, err
	}

	contracts := make(map[string]*Contract, len(suite.Contracts))
	for i, spec := range suite.Contracts {
		c := &Contract{Name: spec.Name, Address: placeholder(len(list) + i)}
		if artifacts != nil {
			art, _, err := constructorCode(artifacts, spec, ids)
			if err != nil {
				return nil, err
			}
			c.Schema = schema.New(art.ABI)
		}
		contracts[spec.Name] = c
	}
	linked := make([]Identity, 0, len(list))
	for _, id := range list {
		linked = append(linked, id.linked(contracts[id.TargetName()]))
	}
	if ids, err = NewIdentities(linked...); err != nil {
		return nil, err
	}

	tests, err := ParseTests(specfile.TestFile, suite.Tests, ids)
	if err != nil {
		return nil, err
	}
	if artifacts == nil {
		return tests, nil
	}
	for _, tc := range tests {
		if err := checkTest(tc, ids); err != nil {
			return nil, err
		}
	}
	return tests, nil
}

// checkTest casts the arguments of every invocation of tc.
func checkTest(tc *TestCase, ids *Identities) error {
	targets, err := tc.Selector.Resolve(ids)
	if err != nil {
		return configErrorf(specfile.TestFile, tc.Line, "%v", err)
	}
	candidates, err := Candidates(tc.Args, ids)
	if err != nil {
		return configErrorf(specfile.TestFile, tc.Line, "%v", err)
	}
	combos, err := Combinations(candidates)
	if err != nil {
		return configErrorf(specfile.TestFile, tc.Line, "%v", err)
	}
	for _, id := range targets {
		m, err := id.Target().Schema.Method(tc.Method)
		if err != nil {
			return schemaError(tc.Method, errors.Wrapf(err, "line %d: contract %s", tc.Line, id.TargetName()))
		}
		for _, args := range combos {
			if _, err := m.Encode(args); err != nil {
				return schemaError(tc.Method, errors.Wrapf(err, "line %d", tc.Line))
			}
		}
	}
	return nil
}

func placeholder(i int) common.Address {
	return common.BigToAddress(big.NewInt(int64(i + 1)))
}
