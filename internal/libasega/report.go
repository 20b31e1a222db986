package libasega

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/pkg/errors"
)

// Status is the outcome of a single invocation.
type Status string

const (
	Passed  Status = "passed"
	Failed  Status = "failed"
	Skipped Status = "skipped"
)

// Result describes a single invocation of a test.
type Result struct {
	Line     int     `json:"line" yaml:"line"`
	Index    int     `json:"index" yaml:"index"`
	Op       string  `json:"operation" yaml:"operation"`
	Identity string  `json:"identity" yaml:"identity"`
	Method   string  `json:"method" yaml:"method"`
	Args     string  `json:"args" yaml:"args"`
	Expected string  `json:"expected" yaml:"expected"`
	Observed string  `json:"observed,omitempty" yaml:"observed,omitempty"`
	Status   Status  `json:"status" yaml:"status"`
	Seconds  float64 `json:"seconds" yaml:"seconds"`
}

// RunSummary aggregates the results of a run.
type RunSummary struct {
	Suite   string
	Start   time.Time
	Elapsed time.Duration
	Passed  int
	Failed  int
	Skipped int
	Results []Result
}

// Total is the number of invocations that ran.
func (s *RunSummary) Total() int {
	return s.Passed + s.Failed
}

// OK reports whether no invocation failed.
func (s *RunSummary) OK() bool {
	return s.Failed == 0
}

func (s *RunSummary) add(r Result) {
	switch r.Status {
	case Passed:
		s.Passed++
	case Failed:
		s.Failed++
	case Skipped:
		s.Skipped++
	}
	s.Results = append(s.Results, r)
}

const (
	failureRule = "--------------------------------------------------"
	summaryRule = "----------------------------------------------------"
)

// writeFailure prints the diagnostics of a failed invocation.
func writeFailure(w io.Writer, r Result, file string) {
	fmt.Fprintln(w, failureRule)
	fmt.Fprintln(w, "FAILURE")
	fmt.Fprintln(w, "    EXPECTED:", r.Expected)
	fmt.Fprintln(w, "    RESULT WAS:", r.Observed)
	fmt.Fprintln(w, "   ", r.Op, r.Identity, r.Method, r.Args, r.Expected)
	fmt.Fprintf(w, "    OCCURRED IN TEST(S) ON LINE %d (%s:%d)\n", r.Index, file, r.Line)
}

// WriteSummary prints the final banner and counts.
func WriteSummary(w io.Writer, s *RunSummary) {
	fmt.Fprintln(w, summaryRule)
	if s.OK() {
		fmt.Fprintln(w, "-----------------ALL TESTS PASSED-------------------")
	} else {
		fmt.Fprintln(w, "----------------------FAILURE-----------------------")
	}
	fmt.Fprintln(w, summaryRule)
	fmt.Fprintln(w, "SUMMARY:")
	fmt.Fprintf(w, "    RAN %d TEST(S) IN %.3f SECONDS\n", s.Total(), s.Elapsed.Seconds())
	fmt.Fprintf(w, "        %d TEST(S) PASSED\n", s.Passed)
	fmt.Fprintf(w, "        %d TEST(S) FAILED\n", s.Failed)
	if s.Skipped > 0 {
		fmt.Fprintf(w, "        %d TEST(S) SKIPPED\n", s.Skipped)
	}
}

// Report is the machine-readable form of a run.
type Report struct {
	Suite   string   `json:"suite" yaml:"suite"`
	Start   string   `json:"start" yaml:"start"`
	Seconds float64  `json:"seconds" yaml:"seconds"`
	Total   int      `json:"total" yaml:"total"`
	Passed  int      `json:"passed" yaml:"passed"`
	Failed  int      `json:"failed" yaml:"failed"`
	Skipped int      `json:"skipped" yaml:"skipped"`
	Results []Result `json:"results" yaml:"results"`
}

// Report converts the summary.
func (s *RunSummary) Report() *Report {
	return &Report{
		Suite:   s.Suite,
		Start:   s.Start.UTC().Format(time.RFC3339),
		Seconds: s.Elapsed.Seconds(),
		Total:   s.Total(),
		Passed:  s.Passed,
		Failed:  s.Failed,
		Skipped: s.Skipped,
		Results: s.Results,
	}
}

// Report formats.
const (
	FormatJSON  = "json"
	FormatYAML  = "yaml"
	FormatJUnit = "junit"
)

// WriteReport writes the summary in the given format.
func WriteReport(w io.Writer, format string, s *RunSummary) error {
	var (
		out []byte
		err error
	)
	switch strings.ToLower(format) {
	case FormatJSON:
		out, err = json.MarshalIndent(s.Report(), "", "  ")
		out = append(out, '\n')
	case FormatYAML:
		out, err = yaml.Marshal(s.Report())
	case FormatJUnit:
		out, err = xml.MarshalIndent(junitReport(s), "", " ")
		out = append([]byte(xml.Header), out...)
	default:
		return errors.Errorf("unknown report format %q", format)
	}
	if err != nil {
		return errors.Wrap(err, "can't encode report")
	}
	_, err = w.Write(out)
	return err
}

type junitSuites struct {
	XMLName  xml.Name     `xml:"testsuites"`
	Name     string       `xml:"name,attr"`
	Tests    int          `xml:"tests,attr"`
	Failures int          `xml:"failures,attr"`
	Skipped  int          `xml:"skipped,attr"`
	Time     string       `xml:"time,attr"`
	Suites   []junitSuite `xml:"testsuite"`
}

type junitSuite struct {
	ID       int         `xml:"id,attr"`
	Name     string      `xml:"name,attr"`
	Tests    int         `xml:"tests,attr"`
	Failures int         `xml:"failures,attr"`
	Skipped  int         `xml:"skipped,attr"`
	Time     string      `xml:"time,attr"`
	Cases    []junitCase `xml:"testcase"`
}

type junitCase struct {
	Name    string        `xml:"name,attr"`
	Class   string        `xml:"classname,attr"`
	Time    string        `xml:"time,attr"`
	Failure *junitFailure `xml:"failure"`
	Skipped *junitSkipped `xml:"skipped"`
}

type junitFailure struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
	Text    string `xml:",chardata"`
}

type junitSkipped struct {
	Message string `xml:"message,attr"`
}

// junitReport groups the invocations by test line. Every line becomes a test
// suite, every invocation a test case.
func junitReport(s *RunSummary) junitSuites {
	out := junitSuites{
		Name:     s.Suite,
		Failures: s.Failed,
		Skipped:  s.Skipped,
		Tests:    len(s.Results),
		Time:     fmt.Sprintf("%v", s.Elapsed.Seconds()),
	}
	var (
		cur  *junitSuite
		secs float64
	)
	for _, r := range s.Results {
		if cur == nil || cur.ID != r.Index {
			if cur != nil {
				cur.Time = fmt.Sprintf("%v", secs)
			}
			out.Suites = append(out.Suites, junitSuite{
				ID:   r.Index,
				Name: fmt.Sprintf("line %d: %s %s", r.Line, r.Op, r.Method),
			})
			cur = &out.Suites[len(out.Suites)-1]
			secs = 0
		}
		tc := junitCase{
			Name:  fmt.Sprintf("%s %s%s", r.Identity, r.Method, r.Args),
			Class: r.Op,
			Time:  fmt.Sprintf("%v", r.Seconds),
		}
		cur.Tests++
		secs += r.Seconds
		switch r.Status {
		case Failed:
			cur.Failures++
			tc.Failure = &junitFailure{
				Message: "expected " + r.Expected,
				Type:    "FAILURE",
				Text:    fmt.Sprintf("expected %s, result was %s", r.Expected, r.Observed),
			}
		case Skipped:
			cur.Skipped++
			tc.Skipped = &junitSkipped{Message: "filtered"}
		}
		cur.Cases = append(cur.Cases, tc)
	}
	if cur != nil {
		cur.Time = fmt.Sprintf("%v", secs)
	}
	return out
}
