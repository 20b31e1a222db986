package schema

import (
	"fmt"
	"math/big"
	"reflect"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"
)

// Value is an argument or an observed outcome. It is one of Null, Integer,
// Address, Bool or Text.
type Value interface {
	String() string
	value()
}

// Null is the placeholder produced by an empty argument token.
type Null struct{}

// Text is an uninterpreted literal, or a textual outcome.
type Text string

// Bool is a boolean literal or outcome.
type Bool bool

// Address is a ledger account or contract address.
type Address common.Address

// Integer is an arbitrary-precision integer.
type Integer struct {
	v *big.Int
}

// NewInteger wraps x. The value is copied.
func NewInteger(x *big.Int) Integer {
	return Integer{v: new(big.Int).Set(x)}
}

// IntegerOf creates an integer from x.
func IntegerOf(x int64) Integer {
	return Integer{v: big.NewInt(x)}
}

// ParseInteger parses a decimal integer literal.
func ParseInteger(s string) (Integer, error) {
	x, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return Integer{}, errors.Wrapf(ErrBadInteger, "%q", s)
	}
	return Integer{v: x}, nil
}

// Big returns the integer as a big.Int. The result must not be modified.
func (i Integer) Big() *big.Int {
	if i.v == nil {
		return new(big.Int)
	}
	return i.v
}

func (Null) String() string      { return "None" }
func (t Text) String() string    { return string(t) }
func (a Address) String() string { return common.Address(a).Hex() }
func (i Integer) String() string { return i.Big().String() }

func (b Bool) String() string {
	if b {
		return "True"
	}
	return "False"
}

func (Null) value()    {}
func (Text) value()    {}
func (Bool) value()    {}
func (Address) value() {}
func (Integer) value() {}

// FormatTuple renders an argument combination for diagnostics.
func FormatTuple(vs []Value) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = v.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// Equal reports whether an observed outcome matches the expectation.
//
// Integer outcomes are compared numerically. A Bool expectation counts as 1 or 0
// against an integer, any other expectation must be a decimal literal. Textual
// outcomes (including addresses) match Text expectations regardless of letter
// case. All other combinations compare by value and kind, so a Text outcome never
// matches a Bool expectation.
func Equal(observed, expected Value) (bool, error) {
	switch obs := observed.(type) {
	case Integer:
		var want *big.Int
		switch exp := expected.(type) {
		case Integer:
			want = exp.Big()
		case Bool:
			want = big.NewInt(0)
			if exp {
				want.SetInt64(1)
			}
		case Text:
			x, err := ParseInteger(string(exp))
			if err != nil {
				return false, errors.Wrap(err, "expected value")
			}
			want = x.Big()
		default:
			return false, nil
		}
		return obs.Big().Cmp(want) == 0, nil

	case Text, Address:
		exp, ok := expected.(Text)
		if !ok {
			if a, isAddr := expected.(Address); isAddr {
				return strings.EqualFold(obs.String(), a.String()), nil
			}
			return false, nil
		}
		return strings.EqualFold(obs.String(), string(exp)), nil

	case Bool:
		exp, ok := expected.(Bool)
		return ok && exp == obs, nil

	case Null:
		_, ok := expected.(Null)
		return ok, nil
	}
	return false, nil
}

// FromNative converts a decoded ABI value to a Value.
func FromNative(v interface{}) Value {
	switch x := v.(type) {
	case *big.Int:
		return NewInteger(x)
	case uint8:
		return Integer{v: new(big.Int).SetUint64(uint64(x))}
	case uint16:
		return Integer{v: new(big.Int).SetUint64(uint64(x))}
	case uint32:
		return Integer{v: new(big.Int).SetUint64(uint64(x))}
	case uint64:
		return Integer{v: new(big.Int).SetUint64(x)}
	case int8:
		return IntegerOf(int64(x))
	case int16:
		return IntegerOf(int64(x))
	case int32:
		return IntegerOf(int64(x))
	case int64:
		return IntegerOf(x)
	case bool:
		return Bool(x)
	case common.Address:
		return Address(x)
	case string:
		return Text(x)
	case []byte:
		return Text(hexutil.Encode(x))
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Array && rv.Type().Elem().Kind() == reflect.Uint8 {
		b := make([]byte, rv.Len())
		reflect.Copy(reflect.ValueOf(b), rv)
		return Text(hexutil.Encode(b))
	}
	return Text(fmt.Sprint(v))
}

func parseBool(v Value) (bool, error) {
	switch x := v.(type) {
	case Bool:
		return bool(x), nil
	case Text:
		return strconv.ParseBool(strings.ToLower(string(x)))
	}
	return false, errors.Errorf("%s is not a boolean", v)
}
