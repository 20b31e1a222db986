package libasega

import (
	"context"
	"testing"

	"github.com/ethereum/asega/internal/fakes"
	"github.com/ethereum/asega/internal/ledger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func newBuilder(l *fakes.Ledger, hooks *fakes.CompilerHooks) *Builder {
	c := fakes.NewCompiler(l, hooks, fakes.TargetDefinition, fakes.VaultDefinition)
	return &Builder{Session: l, Compiler: c, Log: discardLogger()}
}

func TestBuild(t *testing.T) {
	l := fakes.NewLedger(ledger.DefaultAccount, nil)
	b := newBuilder(l, nil)
	suite, err := LoadSuite(writeSuite(t, "alice:Target\ndev:Vault\nbob:Vault", "Target:[]\nVault:[$alice,7]", ""))
	require.NoError(t, err)

	ids, err := b.Build(context.Background(), suite, []string{"contracts/Test.sol"})
	require.NoError(t, err)
	require.Equal(t, []string{"alice", "dev", "bob"}, ids.Names())

	// Proxies are deployed in file order, before the contracts.
	alice, _ := ids.Lookup("alice")
	bob, _ := ids.Lookup("bob")
	dev, _ := ids.Lookup("dev")
	require.IsType(t, &ProxyIdentity{}, alice)
	require.IsType(t, &FixedIdentity{}, dev)
	require.Equal(t, crypto.CreateAddress(ledger.DefaultAccount, 0), alice.Address())
	require.Equal(t, crypto.CreateAddress(ledger.DefaultAccount, 1), bob.Address())
	require.Equal(t, FixedAddress, dev.Address())

	require.Equal(t, "Target", alice.Target().Name)
	require.Equal(t, "Vault", dev.Target().Name)
	require.Equal(t, dev.Target(), bob.Target())
	require.Equal(t, crypto.CreateAddress(ledger.DefaultAccount, 2), alice.Target().Address)
	require.NotNil(t, alice.Target().Schema)

	// One set_target per proxy, none for the fixed identity.
	require.Len(t, l.Ops("transact"), 2)
	require.NotNil(t, l.Program(alice.Address()))

	require.Equal(t, [][]string{{"contracts/Test.sol"}}, b.Compiler.(*fakes.Compiler).Files())
}

func TestBuildConstructorArgs(t *testing.T) {
	l := fakes.NewLedger(ledger.DefaultAccount, nil)
	b := newBuilder(l, nil)
	suite, err := LoadSuite(writeSuite(t, "alice:Vault", "Vault:[$alice,7]", "assert:alice:owner::x"))
	require.NoError(t, err)
	ids, err := b.Build(context.Background(), suite, []string{"Test.sol"})
	require.NoError(t, err)

	alice, _ := ids.Lookup("alice")
	m, err := alice.Target().Schema.Method("owner")
	require.NoError(t, err)
	data, err := m.Encode(nil)
	require.NoError(t, err)
	out, err := l.Call(context.Background(), alice.QueryAddress(), data)
	require.NoError(t, err)
	owner, err := m.Decode(out)
	require.NoError(t, err)
	require.Equal(t, alice.Address().Hex(), owner.String())
}

func TestBuildUnknownTarget(t *testing.T) {
	l := fakes.NewLedger(ledger.DefaultAccount, nil)
	b := newBuilder(l, nil)
	suite, err := LoadSuite(writeSuite(t, "alice:Target\nbob:Nothing", "Target:[]", ""))
	require.NoError(t, err)

	_, err = b.Build(context.Background(), suite, []string{"Test.sol"})
	var cerr *ConfigError
	require.True(t, errors.As(err, &cerr), "want ConfigError, got %v", err)
	require.Empty(t, l.Journal(), "nothing may be deployed before the configuration is checked")
}

func TestBuildUnknownContract(t *testing.T) {
	l := fakes.NewLedger(ledger.DefaultAccount, nil)
	b := newBuilder(l, nil)
	suite, err := LoadSuite(writeSuite(t, "alice:Token", "Token:[]", ""))
	require.NoError(t, err)

	_, err = b.Build(context.Background(), suite, []string{"Test.sol"})
	var cerr *ConfigError
	require.True(t, errors.As(err, &cerr), "want ConfigError, got %v", err)
	require.Contains(t, cerr.Msg, "not found in compiled sources")
}

func TestBuildConstructorSchemaError(t *testing.T) {
	l := fakes.NewLedger(ledger.DefaultAccount, nil)
	b := newBuilder(l, nil)
	suite, err := LoadSuite(writeSuite(t, "alice:Vault", "Vault:[$alice]", ""))
	require.NoError(t, err)

	_, err = b.Build(context.Background(), suite, []string{"Test.sol"})
	var serr *SchemaError
	require.True(t, errors.As(err, &serr), "want SchemaError, got %v", err)
	require.Equal(t, "Vault.constructor", serr.Method)
}

func TestBuildIdentitySourceError(t *testing.T) {
	l := fakes.NewLedger(ledger.DefaultAccount, nil)
	b := newBuilder(l, &fakes.CompilerHooks{
		CompileSource: func(source string) (map[string]*ledger.Artifact, error) {
			return map[string]*ledger.Artifact{}, nil
		},
	})
	_, err := b.BuildIdentities(context.Background(), []IdentitySpec{{Name: "alice", Target: "Target"}})
	require.Error(t, err)

	// The fixed identity needs no proxy.
	ids, err := b.BuildIdentities(context.Background(), []IdentitySpec{{Name: FixedName, Target: "Target"}})
	require.NoError(t, err)
	require.Equal(t, 1, ids.Len())
}

func TestLinkFailure(t *testing.T) {
	l := fakes.NewLedger(ledger.DefaultAccount, &fakes.LedgerHooks{
		Transact: func(to common.Address, data []byte) (ledger.TxResult, error) {
			return ledger.TxResult{Failed: true, Reason: "out of gas"}, nil
		},
	})
	b := newBuilder(l, nil)
	ids, err := b.BuildIdentities(context.Background(), []IdentitySpec{{Name: "alice", Target: "Target"}})
	require.NoError(t, err)
	contracts := map[string]*Contract{"Target": {Name: "Target", Address: common.HexToAddress("0x01")}}

	_, err = b.Link(context.Background(), ids, contracts)
	require.ErrorContains(t, err, "out of gas")

	// Linking does not modify its input.
	alice, _ := ids.Lookup("alice")
	require.Nil(t, alice.Target())
}
