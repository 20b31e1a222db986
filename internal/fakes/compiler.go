package fakes

import (
	"context"
	"sync"

	"github.com/ethereum/asega/internal/ledger"
	"github.com/pkg/errors"
)

// Definition is a Go-implemented contract known to the fake compiler.
type Definition struct {
	Name string
	ABI  string
	New  Constructor
}

var (
	IdentityDefinition = Definition{Name: ledger.IdentityContract, ABI: IdentityABI, New: newIdentity}
	TargetDefinition   = Definition{Name: "Target", ABI: TargetABI, New: newTarget}
	VaultDefinition    = Definition{Name: "Vault", ABI: VaultABI, New: newVault}
)

// CompilerHooks can be used to override the behavior of the fake compiler.
type CompilerHooks struct {
	Compile       func(files []string) (map[string]*ledger.Artifact, error)
	CompileSource func(source string) (map[string]*ledger.Artifact, error)
}

// Compiler hands out artifacts for Go-implemented contracts. The code of every
// artifact is registered with the ledger, so deploying it runs the Go program.
type Compiler struct {
	hooks    CompilerHooks
	identity *ledger.Artifact
	contract map[string]*ledger.Artifact

	mu    sync.Mutex
	files [][]string
}

// NewCompiler creates a compiler whose Compile returns the given definitions and
// whose CompileSource returns the forwarding proxy.
func NewCompiler(l *Ledger, hooks *CompilerHooks, defs ...Definition) *Compiler {
	c := &Compiler{
		identity: register(l, IdentityDefinition),
		contract: make(map[string]*ledger.Artifact, len(defs)),
	}
	if hooks != nil {
		c.hooks = *hooks
	}
	for _, def := range defs {
		c.contract[def.Name] = register(l, def)
	}
	return c
}

func register(l *Ledger, def Definition) *ledger.Artifact {
	// Creation code is a fixed prefix followed by the name, so every definition
	// gets distinct code.
	code := append([]byte{0x60, 0x80, 0x60, 0x40}, def.Name...)
	code = append(code, 0)
	a := mustABI(def.ABI)
	l.Register(code, a, def.New)
	return &ledger.Artifact{Name: def.Name, ABI: a, Code: code}
}

func (c *Compiler) Compile(ctx context.Context, files ...string) (map[string]*ledger.Artifact, error) {
	c.mu.Lock()
	c.files = append(c.files, files)
	c.mu.Unlock()

	if c.hooks.Compile != nil {
		return c.hooks.Compile(files)
	}
	if len(files) == 0 {
		return nil, errors.New("no input files")
	}
	out := make(map[string]*ledger.Artifact, len(c.contract))
	for name, a := range c.contract {
		out[name] = a
	}
	return out, nil
}

func (c *Compiler) CompileSource(ctx context.Context, source string) (map[string]*ledger.Artifact, error) {
	if c.hooks.CompileSource != nil {
		return c.hooks.CompileSource(source)
	}
	return map[string]*ledger.Artifact{c.identity.Name: c.identity}, nil
}

// Files returns the file lists passed to Compile.
func (c *Compiler) Files() [][]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]string(nil), c.files...)
}
