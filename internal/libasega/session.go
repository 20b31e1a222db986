package libasega

import (
	"context"

	"github.com/ethereum/asega/internal/ledger"
	"github.com/ethereum/go-ethereum/common"
)

// Session is a connection to a ledger client with an unlockable signing account.
// Deploy and Transact block until the transaction is included.
type Session interface {
	Account() common.Address
	Unlock(ctx context.Context) error
	Deploy(ctx context.Context, code []byte) (common.Address, error)
	Transact(ctx context.Context, to common.Address, data []byte) (ledger.TxResult, error)
	Call(ctx context.Context, to common.Address, data []byte) ([]byte, error)
}

// Compiler turns contract sources into artifacts keyed by contract name.
type Compiler interface {
	Compile(ctx context.Context, files ...string) (map[string]*ledger.Artifact, error)
	CompileSource(ctx context.Context, source string) (map[string]*ledger.Artifact, error)
}

var (
	_ Session  = (*ledger.Client)(nil)
	_ Compiler = (*ledger.Solc)(nil)
)
