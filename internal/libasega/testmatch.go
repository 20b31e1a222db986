package libasega

import (
	"regexp"
	"strings"
)

// Matcher selects invocations by method and identity name. The pattern is
// "method/identity", where both parts are case-insensitive regular expressions
// and the identity part is optional.
type Matcher struct {
	method   *regexp.Regexp
	identity *regexp.Regexp
	pattern  string
}

// ParseMatcher compiles a pattern. The empty pattern matches everything.
func ParseMatcher(p string) (*Matcher, error) {
	m := &Matcher{pattern: p}
	if p == "" {
		return m, nil
	}
	parts := splitRegexp(p)
	var err error
	if m.method, err = regexp.Compile("(?i:" + parts[0] + ")"); err != nil {
		return nil, err
	}
	if len(parts) > 1 {
		if m.identity, err = regexp.Compile("(?i:" + strings.Join(parts[1:], "/") + ")"); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Match reports whether an invocation of method as identity is selected.
func (m *Matcher) Match(method, identity string) bool {
	if m == nil {
		return true
	}
	if m.method != nil && !m.method.MatchString(method) {
		return false
	}
	if m.identity != nil && !m.identity.MatchString(identity) {
		return false
	}
	return true
}

func (m *Matcher) String() string {
	if m == nil {
		return ""
	}
	return m.pattern
}

// splitRegexp splits s at the slashes outside of character classes and
// groups. Escaped characters are skipped.
func splitRegexp(s string) []string {
	var (
		parts []string
		class bool
		depth int
		last  int
	)
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '\\':
			i++
		case c == '[' && !class:
			class = true
		case c == ']' && class:
			class = false
		case c == '(' && !class:
			depth++
		case c == ')' && !class && depth > 0:
			depth--
		case c == '/' && !class && depth == 0:
			parts = append(parts, s[last:i])
			last = i + 1
		}
	}
	return append(parts, s[last:])
}
