// Package schema is a typed registry of the methods exposed by a contract.
//
// A Schema is derived from the contract's ABI. Methods are looked up by name and
// invoked through Encode/Decode, which cast textual tokens to the declared
// parameter types before ABI encoding.
package schema

import (
	"math/big"
	"reflect"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"
)

var (
	ErrMethodNotFound = errors.New("method not found")
	ErrArgCount       = errors.New("wrong number of arguments")
	ErrMissingArg     = errors.New("missing argument")
	ErrBadInteger     = errors.New("invalid integer")
	ErrBadAddress     = errors.New("invalid address")
	ErrUnsupported    = errors.New("unsupported parameter type")
)

// MethodKind distinguishes constructors, state-changing and read-only methods.
type MethodKind int

const (
	Constructor MethodKind = iota
	Mutating
	ReadOnly
)

func (k MethodKind) String() string {
	switch k {
	case Constructor:
		return "constructor"
	case Mutating:
		return "mutating"
	case ReadOnly:
		return "read-only"
	}
	return "unknown"
}

// ParamKind selects how a textual token is cast before encoding.
type ParamKind int

const (
	OpaqueParam ParamKind = iota
	IntegerParam
	AddressParam
)

// Param is a declared method parameter.
type Param struct {
	Name string
	Kind ParamKind
	Type abi.Type
}

// Method is a callable entry of a schema.
type Method struct {
	Name   string
	Kind   MethodKind
	Params []Param

	m abi.Method
}

// Schema is the interface of a deployed contract.
type Schema struct {
	abi         abi.ABI
	constructor *Method
	methods     map[string]*Method
}

// New creates a schema from a parsed ABI.
func New(a abi.ABI) *Schema {
	s := &Schema{
		abi:         a,
		constructor: newMethod(a.Constructor, Constructor),
		methods:     make(map[string]*Method, len(a.Methods)),
	}
	for name, m := range a.Methods {
		kind := Mutating
		if m.IsConstant() {
			kind = ReadOnly
		}
		s.methods[name] = newMethod(m, kind)
	}
	return s
}

// Parse creates a schema from the JSON ABI definition.
func Parse(abiJSON string) (*Schema, error) {
	a, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return nil, errors.Wrap(err, "invalid ABI")
	}
	return New(a), nil
}

func newMethod(m abi.Method, kind MethodKind) *Method {
	method := &Method{Name: m.RawName, Kind: kind, m: m}
	if kind == Constructor {
		method.Name = "constructor"
	}
	for _, arg := range m.Inputs {
		method.Params = append(method.Params, Param{Name: arg.Name, Kind: paramKind(arg.Type), Type: arg.Type})
	}
	return method
}

func paramKind(t abi.Type) ParamKind {
	switch t.T {
	case abi.IntTy, abi.UintTy:
		return IntegerParam
	case abi.AddressTy:
		return AddressParam
	}
	return OpaqueParam
}

// ABI returns the underlying ABI definition.
func (s *Schema) ABI() abi.ABI {
	return s.abi
}

// Constructor returns the constructor entry. A contract without an explicit
// constructor has one without parameters.
func (s *Schema) Constructor() *Method {
	return s.constructor
}

// Method looks up a method by name.
func (s *Schema) Method(name string) (*Method, error) {
	if m, ok := s.methods[name]; ok {
		return m, nil
	}
	return nil, errors.Wrapf(ErrMethodNotFound, "%q", name)
}

// Methods returns all methods ordered by name.
func (s *Schema) Methods() []*Method {
	list := make([]*Method, 0, len(s.methods))
	for _, m := range s.methods {
		list = append(list, m)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list
}

// Cast converts the arguments to the declared parameter types.
//
// Arguments given to a method without parameters are ignored. Otherwise the
// number of arguments must match the number of parameters.
func (m *Method) Cast(args []Value) ([]Value, error) {
	if len(m.Params) == 0 {
		return nil, nil
	}
	if len(args) != len(m.Params) {
		return nil, errors.Wrapf(ErrArgCount, "%s takes %d, got %d", m.Name, len(m.Params), len(args))
	}
	out := make([]Value, len(args))
	for i, arg := range args {
		v, err := Cast(m.Params[i], arg)
		if err != nil {
			return nil, errors.Wrapf(err, "%s argument %d", m.Name, i)
		}
		out[i] = v
	}
	return out, nil
}

// Encode casts args and returns the ABI encoding of the call. For constructors,
// only the encoded arguments are returned; they go after the contract code.
func (m *Method) Encode(args []Value) ([]byte, error) {
	typed, err := m.Cast(args)
	if err != nil {
		return nil, err
	}
	natives := make([]interface{}, len(typed))
	for i, v := range typed {
		if natives[i], err = native(m.Params[i].Type, v); err != nil {
			return nil, errors.Wrapf(err, "%s argument %d", m.Name, i)
		}
	}
	packed, err := m.m.Inputs.Pack(natives...)
	if err != nil {
		return nil, errors.Wrap(err, m.Name)
	}
	if m.Kind == Constructor {
		return packed, nil
	}
	return append(append([]byte{}, m.m.ID...), packed...), nil
}

// Decode unpacks the return data of a call. Multiple return values are joined
// into a single Text outcome.
func (m *Method) Decode(data []byte) (Value, error) {
	if len(m.m.Outputs) == 0 {
		return Null{}, nil
	}
	out, err := m.m.Outputs.Unpack(data)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding result of %s", m.Name)
	}
	switch len(out) {
	case 0:
		return Null{}, nil
	case 1:
		return FromNative(out[0]), nil
	}
	parts := make([]string, len(out))
	for i, v := range out {
		parts[i] = FromNative(v).String()
	}
	return Text(strings.Join(parts, ",")), nil
}

// Cast converts a single argument to the kind declared by p.
func Cast(p Param, v Value) (Value, error) {
	if _, ok := v.(Null); ok {
		return nil, errors.Wrapf(ErrMissingArg, "parameter %q", p.Name)
	}
	switch p.Kind {
	case IntegerParam:
		switch x := v.(type) {
		case Integer:
			return x, nil
		case Text:
			return ParseInteger(string(x))
		}
		return nil, errors.Wrapf(ErrBadInteger, "%s", v)
	case AddressParam:
		switch x := v.(type) {
		case Address:
			return x, nil
		case Text:
			if !common.IsHexAddress(string(x)) {
				return nil, errors.Wrapf(ErrBadAddress, "%q", string(x))
			}
			return Address(common.HexToAddress(string(x))), nil
		}
		return nil, errors.Wrapf(ErrBadAddress, "%s", v)
	}
	return v, nil
}

// native converts a cast value to the Go type expected by the ABI packer.
func native(t abi.Type, v Value) (interface{}, error) {
	switch t.T {
	case abi.IntTy, abi.UintTy:
		i, ok := v.(Integer)
		if !ok {
			return nil, errors.Wrapf(ErrBadInteger, "%s", v)
		}
		return intNative(t, i.Big())
	case abi.AddressTy:
		a, ok := v.(Address)
		if !ok {
			return nil, errors.Wrapf(ErrBadAddress, "%s", v)
		}
		return common.Address(a), nil
	case abi.BoolTy:
		return parseBool(v)
	case abi.StringTy:
		return v.String(), nil
	case abi.BytesTy:
		return hexutil.Decode(v.String())
	case abi.FixedBytesTy:
		b, err := hexutil.Decode(v.String())
		if err != nil {
			return nil, err
		}
		if len(b) != t.Size {
			return nil, errors.Errorf("%s needs %d bytes, got %d", t, t.Size, len(b))
		}
		arr := reflect.New(t.GetType()).Elem()
		reflect.Copy(arr, reflect.ValueOf(b))
		return arr.Interface(), nil
	}
	return nil, errors.Wrapf(ErrUnsupported, "%s", t)
}

func intNative(t abi.Type, x *big.Int) (interface{}, error) {
	var min, max *big.Int
	if t.T == abi.UintTy {
		min = new(big.Int)
		max = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), uint(t.Size)), big.NewInt(1))
	} else {
		max = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), uint(t.Size-1)), big.NewInt(1))
		min = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), uint(t.Size-1)))
	}
	if x.Cmp(min) < 0 || x.Cmp(max) > 0 {
		return nil, errors.Wrapf(ErrBadInteger, "%s out of range for %s", x, t)
	}
	if t.T == abi.UintTy {
		switch t.Size {
		case 8:
			return uint8(x.Uint64()), nil
		case 16:
			return uint16(x.Uint64()), nil
		case 32:
			return uint32(x.Uint64()), nil
		case 64:
			return x.Uint64(), nil
		}
	} else {
		switch t.Size {
		case 8:
			return int8(x.Int64()), nil
		case 16:
			return int16(x.Int64()), nil
		case 32:
			return int32(x.Int64()), nil
		case 64:
			return x.Int64(), nil
		}
	}
	return new(big.Int).Set(x), nil
}
