package main

import (
	"context"

	"github.com/ethereum/asega/internal/ledger"
	"github.com/ethereum/asega/internal/libasega"
	"github.com/spf13/cobra"
	"gopkg.in/inconshreveable/log15.v2"
)

func newCheckCommand(cfg *config) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the spec files of a suite without a client",
		Long: `Parses ident.spec, contract.spec and test.spec and checks every identity
and contract reference. When --contract is given the contract file is
compiled and constructor arguments, methods and argument types are
checked as well.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			n, err := checkSuite(cmd.Context(), cfg, &ledger.Solc{Path: cfg.Solc})
			if err != nil {
				return err
			}
			printf(cmd, "%s: %d test(s) OK\n", cfg.Test, n)
			return nil
		},
	}
}

// checkSuite validates the suite in cfg.Test and returns the number of tests.
func checkSuite(ctx context.Context, cfg *config, compiler libasega.Compiler) (int, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	suite, err := libasega.LoadSuite(cfg.Test)
	if err != nil {
		return 0, err
	}
	var artifacts map[string]*ledger.Artifact
	if sources := cfg.sources(); len(sources) > 0 {
		log15.Info("compiling contracts", "files", sources)
		if artifacts, err = compiler.Compile(ctx, sources...); err != nil {
			return 0, err
		}
	}
	tests, err := libasega.Check(suite, artifacts)
	if err != nil {
		return 0, err
	}
	return len(tests), nil
}
