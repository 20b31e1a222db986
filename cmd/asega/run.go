package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/ethereum/asega/internal/ledger"
	"github.com/ethereum/asega/internal/libasega"
	"github.com/ethereum/asega/internal/specfile"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/inconshreveable/log15.v2"
)

func newRunCommand(cfg *config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Deploy a suite and run its tests against a client",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			if cfg.Contract == "" {
				return errors.New("--contract is required")
			}
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()

			client, err := ledger.Dial(ctx, cfg.endpoint(), cfg.ledgerConfig())
			if err != nil {
				return err
			}
			defer client.Close()
			log15.Info("connected to client", "endpoint", cfg.endpoint(), "account", client.Account())

			solc := &ledger.Solc{Path: cfg.Solc}
			return runSuite(ctx, cfg, client, solc, cmd.OutOrStdout())
		},
	}
	cfg.addRunFlags(cmd.Flags())
	return cmd
}

// runSuite builds the suite in cfg.Test on the session and runs its tests.
// It returns errTestsFailed if any invocation failed.
func runSuite(ctx context.Context, cfg *config, sess libasega.Session, compiler libasega.Compiler, out io.Writer) error {
	start := time.Now()
	suite, err := libasega.LoadSuite(cfg.Test)
	if err != nil {
		return err
	}
	// References are checked before anything is deployed.
	if _, err := libasega.Check(suite, nil); err != nil {
		return err
	}
	match, err := libasega.ParseMatcher(cfg.Run)
	if err != nil {
		return err
	}
	source, err := cfg.identitySource()
	if err != nil {
		return err
	}

	builder := &libasega.Builder{Session: sess, Compiler: compiler, IdentitySource: source}
	ids, err := builder.Build(ctx, suite, cfg.sources())
	if err != nil {
		return err
	}
	log15.Info("parsing tests", "file", specfile.TestFile)
	tests, err := libasega.ParseTests(specfile.TestFile, suite.Tests, ids)
	if err != nil {
		return err
	}

	exec := &libasega.Executor{Session: sess, Out: out, Match: match, Parallel: cfg.ParallelQueries, Start: start}
	sum, err := exec.Run(ctx, ids, tests)
	if err != nil {
		return err
	}
	sum.Suite = cfg.Test
	libasega.WriteSummary(out, sum)

	if cfg.Report != "" {
		if err := writeReportFile(cfg.Report, cfg.ReportFormat, sum); err != nil {
			return err
		}
		log15.Info("wrote report", "file", cfg.Report, "format", cfg.ReportFormat)
	}
	if !sum.OK() {
		return errTestsFailed
	}
	return nil
}

func writeReportFile(path, format string, sum *libasega.RunSummary) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "can't create report")
	}
	if err := libasega.WriteReport(f, format, sum); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
