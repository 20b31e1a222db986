package fakes

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// Handler implements a single contract method on decoded arguments.
type Handler func(env *Env, args []interface{}) ([]interface{}, error)

// abiProgram dispatches calldata to handlers by method selector.
type abiProgram struct {
	abi      abi.ABI
	handlers map[string]Handler
	fallback func(env *Env, input []byte) ([]byte, error)
}

// NewProgram creates a program that decodes calldata with the given ABI and
// dispatches to the handler registered under the method name.
func NewProgram(a abi.ABI, handlers map[string]Handler) Program {
	return &abiProgram{abi: a, handlers: handlers}
}

func (p *abiProgram) Run(env *Env, input []byte) ([]byte, error) {
	var method *abi.Method
	if len(input) >= 4 {
		method, _ = p.abi.MethodById(input[:4])
	}
	if method == nil {
		if p.fallback != nil {
			return p.fallback(env, input)
		}
		return nil, &Revert{}
	}
	h := p.handlers[method.RawName]
	if h == nil {
		return nil, &Revert{Reason: "not implemented: " + method.RawName}
	}
	if env.ReadOnly && !method.IsConstant() {
		return nil, errors.Errorf("state modification in read-only call to %s", method.RawName)
	}
	args, err := method.Inputs.Unpack(input[4:])
	if err != nil {
		return nil, &Revert{Reason: err.Error()}
	}
	out, err := h(env, args)
	if err != nil {
		return nil, err
	}
	return method.Outputs.Pack(out...)
}

func mustABI(def string) abi.ABI {
	a, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return a
}

// IdentityABI is the interface of the forwarding proxy.
const IdentityABI = `[
	{"type":"constructor","stateMutability":"nonpayable","inputs":[]},
	{"type":"function","name":"set_target","stateMutability":"nonpayable","inputs":[{"name":"_target","type":"address"}],"outputs":[]},
	{"type":"fallback","stateMutability":"payable"}
]`

// Identity is the Go rendition of the forwarding proxy. Calls that don't match
// set_target are relayed to the target with the proxy as sender.
type Identity struct {
	Target common.Address
}

func newIdentity(env *Env, args []interface{}) (Program, error) {
	id := new(Identity)
	p := &abiProgram{abi: mustABI(IdentityABI)}
	p.handlers = map[string]Handler{
		"set_target": func(env *Env, args []interface{}) ([]interface{}, error) {
			id.Target = args[0].(common.Address)
			return nil, nil
		},
	}
	p.fallback = func(env *Env, input []byte) ([]byte, error) {
		if id.Target == (common.Address{}) {
			return nil, &Revert{Reason: "target not set"}
		}
		return env.Call(id.Target, input)
	}
	return p, nil
}

// TargetABI is a counter and value store. It records the sender of the last
// state change.
const TargetABI = `[
	{"type":"function","name":"increment","stateMutability":"nonpayable","inputs":[],"outputs":[]},
	{"type":"function","name":"getCount","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"setValue","stateMutability":"nonpayable","inputs":[{"name":"v","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"getValue","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"lastSender","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"isSet","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"describe","stateMutability":"view","inputs":[],"outputs":[{"name":"count","type":"uint256"},{"name":"label","type":"string"}]},
	{"type":"function","name":"withdraw","stateMutability":"nonpayable","inputs":[{"name":"amount","type":"uint256"}],"outputs":[]}
]`

func newTarget(env *Env, args []interface{}) (Program, error) {
	var (
		count  = new(big.Int)
		value  = new(big.Int)
		isSet  bool
		sender common.Address
	)
	return NewProgram(mustABI(TargetABI), map[string]Handler{
		"increment": func(env *Env, args []interface{}) ([]interface{}, error) {
			count.Add(count, big.NewInt(1))
			sender = env.Sender
			return nil, nil
		},
		"getCount": func(env *Env, args []interface{}) ([]interface{}, error) {
			return []interface{}{new(big.Int).Set(count)}, nil
		},
		"setValue": func(env *Env, args []interface{}) ([]interface{}, error) {
			value.Set(args[0].(*big.Int))
			isSet = true
			sender = env.Sender
			return nil, nil
		},
		"getValue": func(env *Env, args []interface{}) ([]interface{}, error) {
			return []interface{}{new(big.Int).Set(value)}, nil
		},
		"lastSender": func(env *Env, args []interface{}) ([]interface{}, error) {
			return []interface{}{sender}, nil
		},
		"isSet": func(env *Env, args []interface{}) ([]interface{}, error) {
			return []interface{}{isSet}, nil
		},
		"describe": func(env *Env, args []interface{}) ([]interface{}, error) {
			return []interface{}{new(big.Int).Set(count), "counter"}, nil
		},
		"withdraw": func(env *Env, args []interface{}) ([]interface{}, error) {
			return nil, &Revert{Reason: "insufficient balance"}
		},
	}), nil
}

// VaultABI is an owner-administered membership list with a spending limit.
const VaultABI = `[
	{"type":"constructor","stateMutability":"nonpayable","inputs":[{"name":"owner","type":"address"},{"name":"limit","type":"uint256"}]},
	{"type":"function","name":"owner","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"limit","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"setLimit","stateMutability":"nonpayable","inputs":[{"name":"limit","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"grant","stateMutability":"nonpayable","inputs":[{"name":"member","type":"address"}],"outputs":[]},
	{"type":"function","name":"isMember","stateMutability":"view","inputs":[{"name":"member","type":"address"}],"outputs":[{"name":"","type":"bool"}]}
]`

func newVault(env *Env, args []interface{}) (Program, error) {
	var (
		owner   = args[0].(common.Address)
		limit   = new(big.Int).Set(args[1].(*big.Int))
		members = make(map[common.Address]bool)
	)
	onlyOwner := func(env *Env) error {
		if env.Sender != owner {
			return &Revert{Reason: "caller is not the owner"}
		}
		return nil
	}
	return NewProgram(mustABI(VaultABI), map[string]Handler{
		"owner": func(env *Env, args []interface{}) ([]interface{}, error) {
			return []interface{}{owner}, nil
		},
		"limit": func(env *Env, args []interface{}) ([]interface{}, error) {
			return []interface{}{new(big.Int).Set(limit)}, nil
		},
		"setLimit": func(env *Env, args []interface{}) ([]interface{}, error) {
			if err := onlyOwner(env); err != nil {
				return nil, err
			}
			limit.Set(args[0].(*big.Int))
			return nil, nil
		},
		"grant": func(env *Env, args []interface{}) ([]interface{}, error) {
			if err := onlyOwner(env); err != nil {
				return nil, err
			}
			members[args[0].(common.Address)] = true
			return nil, nil
		},
		"isMember": func(env *Env, args []interface{}) ([]interface{}, error) {
			return []interface{}{members[args[0].(common.Address)]}, nil
		},
	}), nil
}
