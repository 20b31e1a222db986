// Package specfile loads the plain-text specification files consumed by asega.
//
// Every line is normalized by removing all whitespace, so "set: alice : inc"
// and "set:alice:inc" are the same directive. Line numbers always refer to the
// position in the original file (starting at 1).
package specfile

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"

	"github.com/pkg/errors"
)

// Names of the specification files inside a test directory.
const (
	IdentityFile = "ident.spec"
	ContractFile = "contract.spec"
	TestFile     = "test.spec"
)

// Line is a normalized line of a specification file.
type Line struct {
	Number int
	Text   string
}

func (l Line) String() string {
	return fmt.Sprintf("%d: %s", l.Number, l.Text)
}

// Kind classifies a normalized line.
type Kind int

const (
	Blank Kind = iota
	Comment
	Data
)

// MalformedLineError is returned for lines that are neither data, comments nor blank.
type MalformedLineError struct {
	Line Line
}

func (e *MalformedLineError) Error() string {
	if e.Line.Text == "#" {
		return fmt.Sprintf("line %d: malformed comment %q", e.Line.Number, e.Line.Text)
	}
	return fmt.Sprintf("line %d: malformed line %q", e.Line.Number, e.Line.Text)
}

// ReadFile reads all lines of the given file.
func ReadFile(path string) ([]Line, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	lines, err := Read(f)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	return lines, nil
}

// Read returns all lines from r with whitespace removed.
func Read(r io.Reader) ([]Line, error) {
	var (
		lines []Line
		s     = bufio.NewScanner(r)
	)
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for n := 1; s.Scan(); n++ {
		lines = append(lines, Line{Number: n, Text: stripSpace(s.Text())})
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

// Classify determines the kind of a normalized line.
//
// A line consisting of a single character is never valid: a lone "#" is a
// malformed comment, and no directive is one character long.
func Classify(l Line) (Kind, error) {
	switch {
	case len(l.Text) == 0:
		return Blank, nil
	case len(l.Text) == 1:
		return Blank, &MalformedLineError{Line: l}
	case l.Text[0] == '#':
		return Comment, nil
	default:
		return Data, nil
	}
}

// DataLines filters comments and blank lines. It fails on the first malformed line.
func DataLines(lines []Line) ([]Line, error) {
	out := make([]Line, 0, len(lines))
	for _, l := range lines {
		kind, err := Classify(l)
		if err != nil {
			return nil, err
		}
		if kind == Data {
			out = append(out, l)
		}
	}
	return out, nil
}

// ReadDataFile reads path and returns its data lines.
func ReadDataFile(path string) ([]Line, error) {
	lines, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	data, err := DataLines(lines)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	return data, nil
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
