// Package fakes provides an in-memory ledger and compiler for tests.
//
// The fake ledger runs contracts implemented in Go. Calls are ABI-encoded just
// like on a real chain, so callers exercise their encoding and decoding paths.
package fakes

import (
	"bytes"
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/asega/internal/ledger"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

// LedgerHooks can be used to override the behavior of the fake ledger.
type LedgerHooks struct {
	Unlock   func(account common.Address) error
	Deploy   func(code []byte) (common.Address, error)
	Transact func(to common.Address, data []byte) (ledger.TxResult, error)
	Call     func(to common.Address, data []byte) ([]byte, error)
}

// Op is an entry of the ledger's journal.
type Op struct {
	Kind   string // "unlock", "deploy", "transact" or "call"
	To     common.Address
	Data   []byte
	Failed bool
}

// Program is a deployed contract.
type Program interface {
	Run(env *Env, input []byte) ([]byte, error)
}

// Constructor creates a program from its decoded constructor arguments.
type Constructor func(env *Env, args []interface{}) (Program, error)

type codeEntry struct {
	code []byte
	abi  abi.ABI
	new  Constructor
}

// Ledger is an in-memory chain with a single signing account.
type Ledger struct {
	hooks   LedgerHooks
	account common.Address

	mu       sync.Mutex
	nonce    uint64
	unlocked bool
	codes    []codeEntry
	programs map[common.Address]Program
	journal  []Op
}

// NewLedger creates a fake ledger signing with the given account.
func NewLedger(account common.Address, hooks *LedgerHooks) *Ledger {
	l := &Ledger{account: account, programs: make(map[common.Address]Program)}
	if hooks != nil {
		l.hooks = *hooks
	}
	return l
}

// Register makes code deployable. Deploying code that starts with the registered
// code runs the constructor with the remaining bytes as ABI-encoded arguments.
func (l *Ledger) Register(code []byte, a abi.ABI, ctor Constructor) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.codes = append(l.codes, codeEntry{code: code, abi: a, new: ctor})
}

func (l *Ledger) Account() common.Address {
	return l.account
}

func (l *Ledger) Unlock(ctx context.Context) error {
	if l.hooks.Unlock != nil {
		if err := l.hooks.Unlock(l.account); err != nil {
			return err
		}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.unlocked = true
	l.journal = append(l.journal, Op{Kind: "unlock"})
	return nil
}

func (l *Ledger) Deploy(ctx context.Context, code []byte) (common.Address, error) {
	if l.hooks.Deploy != nil {
		return l.hooks.Deploy(code)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.takeUnlock(); err != nil {
		return common.Address{}, err
	}
	entry := l.lookupCode(code)
	if entry == nil {
		return common.Address{}, errors.New("unknown contract code")
	}
	addr := crypto.CreateAddress(l.account, l.nonce)
	l.nonce++

	var args []interface{}
	if len(entry.abi.Constructor.Inputs) > 0 {
		var err error
		if args, err = entry.abi.Constructor.Inputs.Unpack(code[len(entry.code):]); err != nil {
			l.journal = append(l.journal, Op{Kind: "deploy", Data: code, Failed: true})
			return common.Address{}, errors.Wrap(err, "contract creation failed")
		}
	}
	env := &Env{ledger: l, Self: addr, Sender: l.account}
	p, err := entry.new(env, args)
	if err != nil {
		l.journal = append(l.journal, Op{Kind: "deploy", Data: code, Failed: true})
		return common.Address{}, errors.Wrap(err, "contract creation failed")
	}
	l.programs[addr] = p
	l.journal = append(l.journal, Op{Kind: "deploy", To: addr, Data: code})
	return addr, nil
}

func (l *Ledger) Transact(ctx context.Context, to common.Address, data []byte) (ledger.TxResult, error) {
	if l.hooks.Transact != nil {
		return l.hooks.Transact(to, data)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.takeUnlock(); err != nil {
		return ledger.TxResult{}, err
	}
	hash := crypto.Keccak256Hash(l.account.Bytes(), new(big.Int).SetUint64(l.nonce).Bytes())
	l.nonce++
	_, err := l.invoke(l.account, to, data, false)
	l.journal = append(l.journal, Op{Kind: "transact", To: to, Data: data, Failed: err != nil})
	if err != nil {
		return ledger.TxResult{Hash: hash, Failed: true, Reason: err.Error()}, nil
	}
	return ledger.TxResult{Hash: hash}, nil
}

func (l *Ledger) Call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	if l.hooks.Call != nil {
		return l.hooks.Call(to, data)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	out, err := l.invoke(l.account, to, data, true)
	l.journal = append(l.journal, Op{Kind: "call", To: to, Data: data, Failed: err != nil})
	return out, err
}

// Journal returns the operations performed so far.
func (l *Ledger) Journal() []Op {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Op(nil), l.journal...)
}

// Ops returns the journal entries of the given kind.
func (l *Ledger) Ops(kind string) []Op {
	var ops []Op
	for _, op := range l.Journal() {
		if op.Kind == kind {
			ops = append(ops, op)
		}
	}
	return ops
}

// Program returns the program deployed at addr.
func (l *Ledger) Program(addr common.Address) Program {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.programs[addr]
}

// takeUnlock consumes the unlock of the signing account. Like a node unlocking for
// a single transaction, every state change needs a preceding Unlock.
func (l *Ledger) takeUnlock() error {
	if !l.unlocked {
		return errors.Errorf("authentication needed: account %s is locked", l.account.Hex())
	}
	l.unlocked = false
	return nil
}

func (l *Ledger) lookupCode(code []byte) *codeEntry {
	var best *codeEntry
	for i := range l.codes {
		e := &l.codes[i]
		if bytes.HasPrefix(code, e.code) && (best == nil || len(e.code) > len(best.code)) {
			best = e
		}
	}
	return best
}

// invoke runs the program at to. Calls to addresses without code succeed with
// empty output, as they do on chain.
func (l *Ledger) invoke(sender, to common.Address, input []byte, readOnly bool) ([]byte, error) {
	p := l.programs[to]
	if p == nil {
		return nil, nil
	}
	env := &Env{ledger: l, Self: to, Sender: sender, ReadOnly: readOnly}
	return p.Run(env, input)
}

// Env is the context of a running program.
type Env struct {
	ledger   *Ledger
	Self     common.Address
	Sender   common.Address
	ReadOnly bool
}

// Call invokes another contract with the running program as sender.
func (env *Env) Call(to common.Address, input []byte) ([]byte, error) {
	return env.ledger.invoke(env.Self, to, input, env.ReadOnly)
}

// Revert is the error returned by a program that rejects a call.
type Revert struct {
	Reason string
}

func (r *Revert) Error() string {
	if r.Reason == "" {
		return "execution reverted"
	}
	return "execution reverted: " + r.Reason
}
