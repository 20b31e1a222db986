package libasega

import (
	"context"
	"testing"

	"github.com/ethereum/asega/internal/fakes"
	"github.com/ethereum/asega/internal/ledger"
	"github.com/ethereum/asega/internal/schema"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func compiled(t *testing.T) map[string]*ledger.Artifact {
	t.Helper()
	l := fakes.NewLedger(ledger.DefaultAccount, nil)
	c := fakes.NewCompiler(l, nil, fakes.TargetDefinition, fakes.VaultDefinition)
	arts, err := c.Compile(context.Background(), "Test.sol")
	require.NoError(t, err)
	return arts
}

func TestCheck(t *testing.T) {
	tests := "set:$*:increment::True\nassert:alice:getCount::2\nassert:bob:isMember:$!bob:False\n"
	suite, err := LoadSuite(writeSuite(t, "alice:Target\nbob:Vault\ndev:Vault", "Target:[]\nVault:[$dev,5]", tests))
	require.NoError(t, err)

	// Without artifacts only references are checked, so the increment on a
	// Vault goes unnoticed.
	parsed, err := Check(suite, nil)
	require.NoError(t, err)
	require.Len(t, parsed, 3)

	_, err = Check(suite, compiled(t))
	var serr *SchemaError
	require.True(t, errors.As(err, &serr), "want SchemaError, got %v", err)
	require.ErrorIs(t, err, schema.ErrMethodNotFound)
}

func TestCheckArguments(t *testing.T) {
	suite, err := LoadSuite(writeSuite(t, "alice:Vault", "Vault:[$alice,5]", "set:alice:grant:notanaddress:True\n"))
	require.NoError(t, err)
	_, err = Check(suite, compiled(t))
	require.ErrorIs(t, err, schema.ErrBadAddress)

	suite, err = LoadSuite(writeSuite(t, "alice:Vault", "Vault:[$alice,5]", "set:alice:grant:$*:True\n"))
	require.NoError(t, err)
	_, err = Check(suite, compiled(t))
	require.NoError(t, err)
}

func TestCheckReferences(t *testing.T) {
	suite, err := LoadSuite(writeSuite(t, "alice:Target", "Target:[]", "set:bob:increment::True\n"))
	require.NoError(t, err)
	_, err = Check(suite, nil)
	var cerr *ConfigError
	require.True(t, errors.As(err, &cerr), "want ConfigError, got %v", err)
	require.Equal(t, 1, cerr.Line)

	suite, err = LoadSuite(writeSuite(t, "alice:Target", "Vault:[]", ""))
	require.NoError(t, err)
	_, err = Check(suite, nil)
	require.True(t, errors.As(err, &cerr), "want ConfigError, got %v", err)
}
