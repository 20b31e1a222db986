package libasega

import (
	"strings"

	"github.com/ethereum/asega/internal/schema"
	"github.com/ethereum/asega/internal/specfile"
	"github.com/pkg/errors"
)

// Operation is the kind of a test.
type Operation int

const (
	Mutate Operation = iota // "set": send a transaction, expect success or failure
	Query                   // "assert": call a read-only method, expect a value
)

func (op Operation) String() string {
	if op == Mutate {
		return "set"
	}
	return "assert"
}

// SelectorKind is the form of an identity selector.
type SelectorKind int

const (
	SelectOne    SelectorKind = iota // name
	SelectAll                        // $*
	SelectExcept                     // $!name
)

// Selector chooses the identities a test runs as.
type Selector struct {
	Kind SelectorKind
	Name string
}

func (s Selector) String() string {
	switch s.Kind {
	case SelectAll:
		return "$*"
	case SelectExcept:
		return "$!" + s.Name
	}
	return s.Name
}

// ArgKind is the form of an argument token.
type ArgKind int

const (
	ArgNull      ArgKind = iota // empty token
	ArgLiteral                  // any other text
	ArgAddressOf                // $name
	ArgAll                      // $*
	ArgAllExcept                // $!name
)

// ArgToken is an unresolved argument.
type ArgToken struct {
	Kind ArgKind
	Text string // literal text or identity name
}

func (a ArgToken) String() string {
	switch a.Kind {
	case ArgNull:
		return ""
	case ArgAddressOf:
		return "$" + a.Text
	case ArgAll:
		return "$*"
	case ArgAllExcept:
		return "$!" + a.Text
	}
	return a.Text
}

// TestCase is a line of the test file.
type TestCase struct {
	Line     int // line number in the test file
	Index    int // position among the tests, starting at 1
	Op       Operation
	Selector Selector
	Method   string
	Args     []ArgToken
	Expected schema.Value
}

const testFields = 5

// ParseTests parses the lines of a test file. Comments and blank lines are
// skipped. Identity references are checked against ids.
func ParseTests(file string, lines []specfile.Line, ids *Identities) ([]*TestCase, error) {
	data, err := dataLines(file, lines)
	if err != nil {
		return nil, err
	}
	tests := make([]*TestCase, 0, len(data))
	for i, line := range data {
		tc, err := parseTest(line, ids)
		if err != nil {
			return nil, configErrorf(file, line.Number, "%v", err)
		}
		tc.Index = i + 1
		tests = append(tests, tc)
	}
	return tests, nil
}

func parseTest(line specfile.Line, ids *Identities) (*TestCase, error) {
	fields := strings.Split(line.Text, ":")
	if len(fields) != testFields {
		return nil, errors.Errorf("expected %d ':'-separated fields, got %d", testFields, len(fields))
	}
	tc := &TestCase{Line: line.Number, Method: fields[2]}

	switch fields[0] {
	case "set":
		tc.Op = Mutate
	case "assert":
		tc.Op = Query
	default:
		return nil, errors.Errorf("unknown operation %q", fields[0])
	}

	var err error
	if tc.Selector, err = parseSelector(fields[1], ids); err != nil {
		return nil, err
	}
	if tc.Method == "" {
		return nil, errors.New("missing method name")
	}
	for _, tok := range strings.Split(fields[3], ",") {
		arg, err := parseArg(tok, ids, true)
		if err != nil {
			return nil, err
		}
		tc.Args = append(tc.Args, arg)
	}
	if tc.Expected, err = parseExpected(tc.Op, fields[4]); err != nil {
		return nil, err
	}
	return tc, nil
}

func parseSelector(tok string, ids *Identities) (Selector, error) {
	switch {
	case tok == "":
		return Selector{}, errors.New("missing identity selector")
	case tok == "$*":
		return Selector{Kind: SelectAll}, nil
	case strings.HasPrefix(tok, "$!"):
		name := tok[2:]
		if err := checkIdentity(name, ids); err != nil {
			return Selector{}, err
		}
		return Selector{Kind: SelectExcept, Name: name}, nil
	case tok[0] == '$':
		return Selector{}, errors.Errorf("invalid identity selector %q", tok)
	}
	if err := checkIdentity(tok, ids); err != nil {
		return Selector{}, err
	}
	return Selector{Kind: SelectOne, Name: tok}, nil
}

// parseArg parses an argument token. Multi-valued forms are only allowed when
// multi is set.
func parseArg(tok string, ids *Identities, multi bool) (ArgToken, error) {
	switch {
	case tok == "":
		return ArgToken{Kind: ArgNull}, nil
	case tok[0] != '$':
		return ArgToken{Kind: ArgLiteral, Text: tok}, nil
	case tok == "$*" && multi:
		return ArgToken{Kind: ArgAll}, nil
	case strings.HasPrefix(tok, "$!") && multi:
		name := tok[2:]
		if err := checkIdentity(name, ids); err != nil {
			return ArgToken{}, err
		}
		return ArgToken{Kind: ArgAllExcept, Text: name}, nil
	case tok == "$*" || strings.HasPrefix(tok, "$!") || tok == "$":
		return ArgToken{}, errors.Errorf("invalid argument %q", tok)
	}
	name := tok[1:]
	if err := checkIdentity(name, ids); err != nil {
		return ArgToken{}, err
	}
	return ArgToken{Kind: ArgAddressOf, Text: name}, nil
}

func parseExpected(op Operation, tok string) (schema.Value, error) {
	switch tok {
	case "True":
		return schema.Bool(true), nil
	case "False":
		return schema.Bool(false), nil
	}
	if op == Mutate {
		return nil, errors.Errorf("expected result of set must be True or False, got %q", tok)
	}
	return schema.Text(tok), nil
}

func checkIdentity(name string, ids *Identities) error {
	if name == "" {
		return errors.New("missing identity name")
	}
	if _, ok := ids.Lookup(name); !ok {
		return errors.Errorf("unknown identity %q", name)
	}
	return nil
}

// dataLines drops comments and blank lines, reporting malformed lines as
// configuration errors.
func dataLines(file string, lines []specfile.Line) ([]specfile.Line, error) {
	data, err := specfile.DataLines(lines)
	if err != nil {
		var malformed *specfile.MalformedLineError
		if errors.As(err, &malformed) {
			what := "line"
			if malformed.Line.Text == "#" {
				what = "comment"
			}
			return nil, configErrorf(file, malformed.Line.Number, "malformed %s %q", what, malformed.Line.Text)
		}
		return nil, err
	}
	return data, nil
}
