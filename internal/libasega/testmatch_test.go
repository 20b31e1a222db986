package libasega

import (
	"testing"
)

func TestMatch(t *testing.T) {
	m, err := ParseMatcher("getCount/alice")
	if err != nil {
		t.Fatal(err)
	}
	if !m.Match("getCount", "alice") {
		t.Fatal("expected match")
	}
	if !m.Match("GetCount", "Alice") {
		t.Fatal("expected match")
	}
	if !m.Match("getCountAll", "alice2") {
		t.Fatal("expected match")
	}
	if m.Match("getValue", "alice") {
		t.Fatal("expected no match")
	}
	if m.Match("getCount", "bob") {
		t.Fatal("expected no match")
	}
}

func TestMatchMethodOnly(t *testing.T) {
	m, err := ParseMatcher("^(set|get)Value$")
	if err != nil {
		t.Fatal(err)
	}
	for _, method := range []string{"setValue", "getValue"} {
		if !m.Match(method, "anyone") {
			t.Errorf("Match(%q) -> false, want true", method)
		}
	}
	if m.Match("setValues", "anyone") {
		t.Error("Match(setValues) -> true, want false")
	}
}

func TestMatchEmpty(t *testing.T) {
	var nilMatcher *Matcher
	if !nilMatcher.Match("x", "y") {
		t.Error("nil matcher should match everything")
	}
	m, err := ParseMatcher("")
	if err != nil {
		t.Fatal(err)
	}
	if !m.Match("x", "y") {
		t.Error("empty pattern should match everything")
	}
	if _, err := ParseMatcher("get(/x"); err == nil {
		t.Error("expected error for invalid regexp")
	}
}

func TestSplitRegexp(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"a/b", []string{"a", "b"}},
		{"a/b/c", []string{"a", "b", "c"}},
		{"(a/b)/c", []string{"(a/b)", "c"}},
		{"[/]/c", []string{"[/]", "c"}},
		{"abc", []string{"abc"}},
		{`a\/b/c`, []string{`a\/b`, "c"}},
		{"(a/(b))/c/", []string{"(a/(b))", "c", ""}},
	}
	for _, test := range tests {
		got := splitRegexp(test.in)
		if len(got) != len(test.want) {
			t.Errorf("splitRegexp(%q) -> %q, want %q", test.in, got, test.want)
			continue
		}
		for i := range got {
			if got[i] != test.want[i] {
				t.Errorf("splitRegexp(%q) -> %q, want %q", test.in, got, test.want)
				break
			}
		}
	}
}
