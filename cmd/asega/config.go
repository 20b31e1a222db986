package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/asega/internal/ledger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// config holds the settings of a run. Every field can be given as a flag or as
// a key of the YAML file passed with --config.
type config struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Endpoint string `yaml:"endpoint"`
	Account  string `yaml:"account"`
	Pass     string `yaml:"pass"`
	NoUnlock bool   `yaml:"no-unlock"`

	Contract       string `yaml:"contract"`
	Test           string `yaml:"test"`
	ContractsDir   string `yaml:"contracts-dir"`
	Solc           string `yaml:"solc"`
	IdentitySource string `yaml:"identity-source"`

	ReceiptTimeout  time.Duration `yaml:"receipt-timeout"`
	Run             string        `yaml:"run"`
	ParallelQueries int           `yaml:"parallel-queries"`
	Report          string        `yaml:"report"`
	ReportFormat    string        `yaml:"report-format"`
	LogLevel        int           `yaml:"loglevel"`
}

var reportFormats = []string{"json", "yaml", "junit"}

func defaultConfig() *config {
	return &config{
		Host:            "127.0.0.1",
		Port:            8545,
		Account:         ledger.DefaultAccount.Hex(),
		ContractsDir:    "contracts",
		Solc:            "solc",
		ParallelQueries: 1,
		ReportFormat:    "json",
		LogLevel:        3,
	}
}

// addSuiteFlags registers the flags shared by all commands.
func (c *config) addSuiteFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.Test, "test", c.Test, "Directory holding ident.spec, contract.spec and test.spec")
	fs.StringVar(&c.Contract, "contract", c.Contract, "Solidity source file holding the target contracts")
	fs.StringVar(&c.ContractsDir, "contracts-dir", c.ContractsDir, "Directory the contract file is resolved in")
	fs.StringVar(&c.Solc, "solc", c.Solc, "Solidity compiler binary")
	fs.IntVar(&c.LogLevel, "loglevel", c.LogLevel, "Log level to use for displaying system events")
}

// addRunFlags registers the flags of the run command.
func (c *config) addRunFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.Host, "host", c.Host, "Host of the client RPC endpoint")
	fs.IntVar(&c.Port, "port", c.Port, "Port of the client RPC endpoint")
	fs.StringVar(&c.Endpoint, "endpoint", c.Endpoint, "RPC endpoint URL or IPC path, overrides --host and --port")
	fs.StringVar(&c.Account, "account", c.Account, "Account that signs all transactions")
	fs.StringVar(&c.Pass, "pass", c.Pass, "Passphrase of the account")
	fs.BoolVar(&c.NoUnlock, "no-unlock", c.NoUnlock, "Don't unlock the account before transactions")
	fs.StringVar(&c.IdentitySource, "identity-source", c.IdentitySource, "Solidity source of the identity proxy, the built-in one is used if empty")
	fs.DurationVar(&c.ReceiptTimeout, "receipt-timeout", c.ReceiptTimeout, "Time to wait for a transaction to be included, zero waits forever")
	fs.StringVar(&c.Run, "run", c.Run, "Regexp selecting the method/identity invocations to run")
	fs.IntVar(&c.ParallelQueries, "parallel-queries", c.ParallelQueries, "Number of consecutive read-only assertions run concurrently")
	fs.StringVar(&c.Report, "report", c.Report, "File to write a machine-readable report to")
	fs.StringVar(&c.ReportFormat, "report-format", c.ReportFormat, "Report format (json|yaml|junit)")
}

// load applies the YAML file at path. Values of flags that were set explicitly
// take precedence over the file.
func (c *config) load(path string, fs *pflag.FlagSet) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "can't open config")
	}
	defer f.Close()

	changed := make(map[string]string)
	fs.Visit(func(fl *pflag.Flag) {
		changed[fl.Name] = fl.Value.String()
	})

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return errors.Wrapf(err, "invalid config %s", path)
	}
	for name, value := range changed {
		if err := fs.Set(name, value); err != nil {
			return err
		}
	}
	return nil
}

func (c *config) validate() error {
	if c.Test == "" {
		return errors.New("--test is required")
	}
	if !common.IsHexAddress(c.Account) {
		return errors.Errorf("invalid account %q", c.Account)
	}
	if c.ParallelQueries < 1 {
		return errors.Errorf("invalid --parallel-queries %d", c.ParallelQueries)
	}
	for _, f := range reportFormats {
		if strings.EqualFold(f, c.ReportFormat) {
			return nil
		}
	}
	return errors.Errorf("invalid report format %q: must be one of %v", c.ReportFormat, reportFormats)
}

func (c *config) endpoint() string {
	if c.Endpoint != "" {
		return c.Endpoint
	}
	return fmt.Sprintf("http://%s:%d", c.Host, c.Port)
}

// sources returns the contract files to compile.
func (c *config) sources() []string {
	if c.Contract == "" {
		return nil
	}
	if filepath.IsAbs(c.Contract) || c.ContractsDir == "" {
		return []string{c.Contract}
	}
	return []string{filepath.Join(c.ContractsDir, c.Contract)}
}

func (c *config) ledgerConfig() ledger.Config {
	return ledger.Config{
		Account:        common.HexToAddress(c.Account),
		Passphrase:     c.Pass,
		NoUnlock:       c.NoUnlock,
		ReceiptTimeout: c.ReceiptTimeout,
	}
}

// identitySource reads the proxy source override.
func (c *config) identitySource() (string, error) {
	if c.IdentitySource == "" {
		return "", nil
	}
	src, err := os.ReadFile(c.IdentitySource)
	if err != nil {
		return "", errors.Wrap(err, "can't read identity source")
	}
	return string(src), nil
}
