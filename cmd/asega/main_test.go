package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/asega/internal/fakes"
	"github.com/ethereum/asega/internal/ledger"
	"github.com/ethereum/asega/internal/libasega"
	"github.com/ethereum/asega/internal/specfile"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func writeSuite(t *testing.T, ident, contract, tests string) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, specfile.IdentityFile), ident)
	writeFile(t, filepath.Join(dir, specfile.ContractFile), contract)
	writeFile(t, filepath.Join(dir, specfile.TestFile), tests)
	return dir
}

func TestCommandPresence(t *testing.T) {
	cmd := newRootCommand()
	for _, name := range []string{"run", "check"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err, "command %s should exist", name)
		assert.Equal(t, name, sub.Name())
	}
}

func TestRunFlagDefaults(t *testing.T) {
	cmd := newRootCommand()
	run, _, err := cmd.Find([]string{"run"})
	require.NoError(t, err)

	defaults := map[string]string{
		"host":             "127.0.0.1",
		"port":             "8545",
		"account":          ledger.DefaultAccount.Hex(),
		"pass":             "",
		"parallel-queries": "1",
		"receipt-timeout":  "0s",
	}
	for name, want := range defaults {
		f := run.Flags().Lookup(name)
		require.NotNil(t, f, "flag --%s", name)
		assert.Equal(t, want, f.DefValue, "flag --%s", name)
	}
	assert.Equal(t, "contracts", cmd.PersistentFlags().Lookup("contracts-dir").DefValue)
}

func TestConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "asega.yaml")
	writeFile(t, path, `
host: 10.0.0.1
port: 9545
pass: secret
receipt-timeout: 30s
report-format: junit
`)
	cfg := defaultConfig()
	fs := pflag.NewFlagSet("run", pflag.ContinueOnError)
	cfg.addSuiteFlags(fs)
	cfg.addRunFlags(fs)
	require.NoError(t, fs.Parse([]string{"--port", "7545", "--test", "suite"}))

	require.NoError(t, cfg.load(path, fs))
	assert.Equal(t, "10.0.0.1", cfg.Host)
	assert.Equal(t, 7545, cfg.Port, "flags override the file")
	assert.Equal(t, "secret", cfg.Pass)
	assert.Equal(t, 30*time.Second, cfg.ReceiptTimeout)
	assert.Equal(t, "junit", cfg.ReportFormat)
	assert.Equal(t, "suite", cfg.Test)
	assert.Equal(t, "http://10.0.0.1:7545", cfg.endpoint())
	require.NoError(t, cfg.validate())
}

func TestConfigFileUnknownKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "asega.yaml")
	writeFile(t, path, "hots: 10.0.0.1\n")
	cfg := defaultConfig()
	require.Error(t, cfg.load(path, pflag.NewFlagSet("run", pflag.ContinueOnError)))
}

func TestConfigValidate(t *testing.T) {
	tests := []func(c *config){
		func(c *config) { c.Test = "" },
		func(c *config) { c.Account = "0x1234" },
		func(c *config) { c.ParallelQueries = 0 },
		func(c *config) { c.ReportFormat = "csv" },
	}
	for i, mutate := range tests {
		cfg := defaultConfig()
		cfg.Test = "suite"
		mutate(cfg)
		if err := cfg.validate(); err == nil {
			t.Errorf("test %d: expected validation error", i)
		}
	}
}

func TestConfigSources(t *testing.T) {
	cfg := defaultConfig()
	assert.Nil(t, cfg.sources())
	cfg.Contract = "Test.sol"
	assert.Equal(t, []string{filepath.Join("contracts", "Test.sol")}, cfg.sources())
	cfg.Contract = "/abs/Test.sol"
	assert.Equal(t, []string{"/abs/Test.sol"}, cfg.sources())
}

func newFakes() (*fakes.Ledger, *fakes.Compiler) {
	l := fakes.NewLedger(ledger.DefaultAccount, nil)
	return l, fakes.NewCompiler(l, nil, fakes.TargetDefinition, fakes.VaultDefinition)
}

func TestRunSuite(t *testing.T) {
	dir := writeSuite(t, "alice:Target\nbob:Target", "Target:[]", "set:$*:increment::True\nassert:alice:getCount::2\n")
	cfg := defaultConfig()
	cfg.Test = dir
	cfg.Contract = "Test.sol"
	cfg.Report = filepath.Join(t.TempDir(), "report.json")

	l, c := newFakes()
	var out bytes.Buffer
	require.NoError(t, runSuite(context.Background(), cfg, l, c, &out))
	assert.Contains(t, out.String(), "ALL TESTS PASSED")
	assert.Contains(t, out.String(), "3 TEST(S) PASSED")
	assert.Equal(t, [][]string{{filepath.Join("contracts", "Test.sol")}}, c.Files())

	data, err := os.ReadFile(cfg.Report)
	require.NoError(t, err)
	var report libasega.Report
	require.NoError(t, json.Unmarshal(data, &report))
	assert.Equal(t, dir, report.Suite)
	assert.Equal(t, 3, report.Passed)
}

func TestRunSuiteFailure(t *testing.T) {
	dir := writeSuite(t, "alice:Target", "Target:[]", "assert:alice:getCount::1\n")
	cfg := defaultConfig()
	cfg.Test = dir
	cfg.Contract = "Test.sol"

	l, c := newFakes()
	var out bytes.Buffer
	err := runSuite(context.Background(), cfg, l, c, &out)
	require.ErrorIs(t, err, errTestsFailed)
	assert.Contains(t, out.String(), "RESULT WAS: 0")
}

func TestRunSuiteChecksBeforeDeploying(t *testing.T) {
	dir := writeSuite(t, "alice:Target", "Target:[]", "set:bob:increment::True\n")
	cfg := defaultConfig()
	cfg.Test = dir
	cfg.Contract = "Test.sol"

	l, c := newFakes()
	err := runSuite(context.Background(), cfg, l, c, new(bytes.Buffer))
	var cerr *libasega.ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.Empty(t, l.Journal())
}

func TestCheckSuite(t *testing.T) {
	dir := writeSuite(t, "alice:Vault", "Vault:[$alice,3]", "assert:alice:limit::3\n")
	cfg := defaultConfig()
	cfg.Test = dir
	_, c := newFakes()

	n, err := checkSuite(context.Background(), cfg, c)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Empty(t, c.Files(), "nothing is compiled without --contract")

	cfg.Contract = "Test.sol"
	n, err = checkSuite(context.Background(), cfg, c)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, c.Files(), 1)
}

func TestExecuteExitCodes(t *testing.T) {
	dir := writeSuite(t, "alice:Target", "Target:[]", "assert:alice:getCount::0\n")
	var stdout, stderr bytes.Buffer
	assert.Equal(t, exitOK, execute([]string{"check", "--test", dir}, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "1 test(s) OK")

	bad := writeSuite(t, "alice:Target", "Target:[]", "frob:alice:getCount::0\n")
	assert.Equal(t, exitFatal, execute([]string{"check", "--test", bad}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "unknown operation")

	assert.Equal(t, exitFatal, execute([]string{"run", "--test", dir}, &stdout, &stderr))
}
