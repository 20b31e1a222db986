// Command asega deploys identity proxies and target contracts to an Ethereum
// client and runs the test suite described by a set of spec files against them.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/inconshreveable/log15.v2"
)

// Exit codes.
const (
	exitOK     = 0
	exitFailed = 1 // at least one assertion failed
	exitFatal  = 2 // configuration, schema or transport error
)

// errTestsFailed is returned by the run command when the suite ran to
// completion but not every invocation passed.
var errTestsFailed = errors.New("tests failed")

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

func execute(args []string, stdout, stderr io.Writer) int {
	setupLogging(stderr, int(log15.LvlInfo))
	cmd := newRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.Execute()
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, errTestsFailed):
		return exitFailed
	default:
		log15.Crit("fatal error", "error", err)
		return exitFatal
	}
}

func newRootCommand() *cobra.Command {
	cfg := defaultConfig()
	var configFile string

	cmd := &cobra.Command{
		Use:   "asega",
		Short: "Spec-driven contract tests through identity proxies",
		Long: `asega deploys one forwarding proxy per identity and the target contracts
of a suite, links every proxy to its target, and runs the set/assert
lines of test.spec against them.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if configFile != "" {
				if err := cfg.load(configFile, cmd.Flags()); err != nil {
					return err
				}
			}
			setupLogging(cmd.ErrOrStderr(), cfg.LogLevel)
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&configFile, "config", "", "YAML file holding default flag values")
	cfg.addSuiteFlags(cmd.PersistentFlags())

	cmd.AddCommand(newRunCommand(cfg))
	cmd.AddCommand(newCheckCommand(cfg))
	return cmd
}

func setupLogging(w io.Writer, level int) {
	log15.Root().SetHandler(log15.LvlFilterHandler(log15.Lvl(level), log15.StreamHandler(w, log15.TerminalFormat())))
}

func printf(cmd *cobra.Command, format string, args ...interface{}) {
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
