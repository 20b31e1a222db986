package libasega

import (
	"context"
	"io"
	"time"

	"github.com/ethereum/asega/internal/schema"
	"github.com/ethereum/asega/internal/specfile"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"gopkg.in/inconshreveable/log15.v2"
)

// Executor runs tests against linked identities.
type Executor struct {
	Session Session
	Out     io.Writer // failure diagnostics, discarded if nil
	Match   *Matcher  // selects invocations, nil runs all

	// Parallel is the number of read-only calls that may run concurrently.
	// Consecutive assert tests are evaluated as one batch when it is above one.
	Parallel int
	Log      log15.Logger

	// Start is the time the run began, reported as the start of the summary so
	// that the elapsed time covers building. Run uses its own start when zero.
	Start time.Time
}

// invocation is a test applied to one identity and one argument combination.
type invocation struct {
	tc   *TestCase
	id   Identity
	args []schema.Value
	skip bool
}

type outcome struct {
	value   schema.Value
	elapsed time.Duration
}

func (e *Executor) log() log15.Logger {
	if e.Log == nil {
		return log15.Root()
	}
	return e.Log
}

func (e *Executor) out() io.Writer {
	if e.Out == nil {
		return io.Discard
	}
	return e.Out
}

// Run executes the tests in order. Within a test, identities are the outer loop
// and argument combinations the inner loop. Failed assertions are recorded in
// the summary. Configuration, schema and transport errors abort the run.
func (e *Executor) Run(ctx context.Context, ids *Identities, tests []*TestCase) (*RunSummary, error) {
	e.log().Info("running tests", "count", len(tests))
	sum := &RunSummary{Start: e.Start}
	if sum.Start.IsZero() {
		sum.Start = time.Now()
	}
	defer func() { sum.Elapsed = time.Since(sum.Start) }()

	for i := 0; i < len(tests); {
		end := i + 1
		batch := e.Parallel > 1 && tests[i].Op == Query
		if batch {
			for end < len(tests) && tests[end].Op == Query {
				end++
			}
		}
		var invs []invocation
		for _, tc := range tests[i:end] {
			planned, err := e.plan(ids, tc)
			if err != nil {
				return sum, err
			}
			invs = append(invs, planned...)
		}
		if batch {
			outcomes, err := e.observeBatch(ctx, invs)
			if err != nil {
				return sum, err
			}
			for k, inv := range invs {
				if err := e.score(sum, inv, outcomes[k]); err != nil {
					return sum, err
				}
			}
		} else {
			for _, inv := range invs {
				o, err := e.observe(ctx, inv)
				if err != nil {
					return sum, err
				}
				if err := e.score(sum, inv, o); err != nil {
					return sum, err
				}
			}
		}
		i = end
	}
	return sum, nil
}

// plan expands a test into its invocations.
func (e *Executor) plan(ids *Identities, tc *TestCase) ([]invocation, error) {
	targets, err := tc.Selector.Resolve(ids)
	if err != nil {
		return nil, configErrorf(specfile.TestFile, tc.Line, "%v", err)
	}
	candidates, err := Candidates(tc.Args, ids)
	if err != nil {
		return nil, configErrorf(specfile.TestFile, tc.Line, "%v", err)
	}
	combos, err := Combinations(candidates)
	if err != nil {
		return nil, configErrorf(specfile.TestFile, tc.Line, "%v", err)
	}
	invs := make([]invocation, 0, len(targets)*len(combos))
	for _, id := range targets {
		skip := !e.Match.Match(tc.Method, id.Name())
		for _, args := range combos {
			invs = append(invs, invocation{tc: tc, id: id, args: args, skip: skip})
		}
	}
	return invs, nil
}

// observeBatch evaluates read-only invocations concurrently.
func (e *Executor) observeBatch(ctx context.Context, invs []invocation) ([]outcome, error) {
	outcomes := make([]outcome, len(invs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.Parallel)
	for i := range invs {
		i := i
		g.Go(func() error {
			o, err := e.observe(ctx, invs[i])
			outcomes[i] = o
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

// observe performs an invocation and returns the observed value.
func (e *Executor) observe(ctx context.Context, inv invocation) (outcome, error) {
	if inv.skip {
		return outcome{}, nil
	}
	start := time.Now()
	v, err := e.invoke(ctx, inv)
	return outcome{value: v, elapsed: time.Since(start)}, err
}

func (e *Executor) invoke(ctx context.Context, inv invocation) (schema.Value, error) {
	tc := inv.tc
	target := inv.id.Target()
	if target == nil {
		return nil, errors.Errorf("identity %s is not linked", inv.id.Name())
	}
	m, err := target.Schema.Method(tc.Method)
	if err != nil {
		return nil, schemaError(tc.Method, errors.Wrapf(err, "contract %s", target.Name))
	}
	data, err := m.Encode(inv.args)
	if err != nil {
		return nil, schemaError(tc.Method, err)
	}

	switch tc.Op {
	case Mutate:
		if err := e.Session.Unlock(ctx); err != nil {
			return nil, errors.Wrapf(err, "line %d: can't unlock account", tc.Line)
		}
		res, err := e.Session.Transact(ctx, inv.id.TxAddress(), data)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d: %s as %s", tc.Line, tc.Method, inv.id.Name())
		}
		if !res.Failed {
			return schema.Bool(true), nil
		}
		e.log().Debug("transaction failed", "line", tc.Line, "identity", inv.id.Name(), "method", tc.Method, "reason", res.Reason)
		// A failure expected to succeed is observed as its description, so it
		// never equals True.
		if tc.Expected == schema.Bool(true) {
			return schema.Text(res.Reason), nil
		}
		return schema.Bool(false), nil

	default:
		out, err := e.Session.Call(ctx, inv.id.QueryAddress(), data)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d: %s as %s", tc.Line, tc.Method, inv.id.Name())
		}
		v, err := m.Decode(out)
		if err != nil {
			return nil, schemaError(tc.Method, err)
		}
		return v, nil
	}
}

// score compares an outcome with the expectation and records the result.
func (e *Executor) score(sum *RunSummary, inv invocation, o outcome) error {
	tc := inv.tc
	r := Result{
		Line:     tc.Line,
		Index:    tc.Index,
		Op:       tc.Op.String(),
		Identity: inv.id.Name(),
		Method:   tc.Method,
		Args:     schema.FormatTuple(inv.args),
		Expected: tc.Expected.String(),
		Seconds:  o.elapsed.Seconds(),
	}
	if inv.skip {
		r.Status = Skipped
		sum.add(r)
		return nil
	}
	r.Observed = o.value.String()
	ok, err := schema.Equal(o.value, tc.Expected)
	if err != nil {
		return schemaError(tc.Method, errors.Wrapf(err, "%s:%d", specfile.TestFile, tc.Line))
	}
	if ok {
		r.Status = Passed
	} else {
		r.Status = Failed
		writeFailure(e.out(), r, specfile.TestFile)
	}
	e.log().Debug("invocation", "line", tc.Line, "op", r.Op, "identity", r.Identity, "method", r.Method, "args", r.Args, "result", r.Observed, "status", r.Status)
	sum.add(r)
	return nil
}
