package jsonpath

import (
	"errors"
	"testing"

	pkgerrors "github.com/latticedb/lattice-backend/internal/pkg/errors"
)

func TestParseCanonicalizes(t *testing.T) {
	cases := []struct {
		input     string
		canonical string
		textArray string
	}{
		{"name", "$.name", "{name}"},
		{"meta.author.name", "$.meta.author.name", "{meta,author,name}"},
		{"tags[0]", "$.tags[0]", "{tags,0}"},
		{"tags.0", "$.tags[0]", "{tags,0}"},
		{"matrix[1][2]", "$.matrix[1][2]", "{matrix,1,2}"},
		{"matrix.1.2", "$.matrix[1][2]", "{matrix,1,2}"},
		{"a_b.c_d[10]", "$.a_b.c_d[10]", "{a_b,c_d,10}"},
	}
	for _, tc := range cases {
		p, err := Parse(tc.input)
		if err != nil {
			t.Fatalf("Parse(%q): %v", tc.input, err)
		}
		if p.Canonical != tc.canonical {
			t.Fatalf("Parse(%q) canonical = %q, want %q", tc.input, p.Canonical, tc.canonical)
		}
		if got := p.TextArrayParam(); got != tc.textArray {
			t.Fatalf("Parse(%q) text array = %q, want %q", tc.input, got, tc.textArray)
		}
	}
}

func TestBracketAndDotIndexAreEquivalent(t *testing.T) {
	a, err := Parse("tags[0]")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	b, err := Parse("tags.0")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if a.Canonical != b.Canonical {
		t.Fatalf("canonical forms differ: %q vs %q", a.Canonical, b.Canonical)
	}
	if len(a.Components) != len(b.Components) {
		t.Fatalf("component counts differ: %d vs %d", len(a.Components), len(b.Components))
	}
	for i := range a.Components {
		if a.Components[i] != b.Components[i] {
			t.Fatalf("component %d differs: %+v vs %+v", i, a.Components[i], b.Components[i])
		}
	}
}

func TestParseRejects(t *testing.T) {
	cases := []string{
		"",
		"   ",
		"a;b",
		"a b",
		"a-b",
		"a..b",
		".a",
		"a.",
		"a[[0]]",
		"a[]",
		"a[0",
		"a[x]",
		"a[-1]",
		"[0]",
		"0",
		"0abc",
		"0.a",
		"a.b.c.d.e.f.g.h.i.j.k",
	}
	for _, input := range cases {
		if _, err := Parse(input); err == nil {
			t.Fatalf("Parse(%q): expected error", input)
		} else if !errors.Is(err, pkgerrors.ErrInvalidArgument) {
			t.Fatalf("Parse(%q): error %v is not ErrInvalidArgument", input, err)
		}
	}
}

func TestParseDepthLimit(t *testing.T) {
	if _, err := Parse("a.b.c.d.e.f.g.h.i.j"); err != nil {
		t.Fatalf("10 components should parse: %v", err)
	}
	if _, err := Parse("a.b.c.d.e.f.g.h.i[0][1]"); err == nil {
		t.Fatal("11 components should be rejected")
	}
}
