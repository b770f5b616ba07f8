// Package jsonpath parses property path strings ("tags[0]", "meta.author.name")
// into validated, canonical component sequences. Parsing is pure; the resulting
// path is only ever handed to the store as a bound parameter.
package jsonpath

import (
	"fmt"
	"strconv"
	"strings"

	pkgerrors "github.com/latticedb/lattice-backend/internal/pkg/errors"
)

// MaxComponents caps path depth. Exceeding it is an error, never truncation.
const MaxComponents = 10

// Component is one step of a path: either a property name or an array index.
type Component struct {
	Name    string
	Index   int
	IsIndex bool
}

type Path struct {
	Canonical  string
	Components []Component
}

type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid property path %q: %s", e.Input, e.Reason)
}

func (e *ParseError) Unwrap() error { return pkgerrors.ErrInvalidArgument }

func errf(input, format string, args ...any) error {
	return &ParseError{Input: input, Reason: fmt.Sprintf(format, args...)}
}

// Parse validates and canonicalizes a property path. Bracket and dot index
// notation ("tags[0]" and "tags.0") normalize to the same component sequence and
// the same canonical form ("$.tags[0]").
func Parse(input string) (Path, error) {
	if strings.TrimSpace(input) == "" {
		return Path{}, errf(input, "path is empty")
	}
	for _, r := range input {
		if !validChar(r) {
			return Path{}, errf(input, "character %q is not allowed", r)
		}
	}

	components := make([]Component, 0, 4)
	for i, segment := range strings.Split(input, ".") {
		segComponents, err := parseSegment(input, segment, i == 0)
		if err != nil {
			return Path{}, err
		}
		components = append(components, segComponents...)
		if len(components) > MaxComponents {
			return Path{}, errf(input, "path exceeds %d components", MaxComponents)
		}
	}

	return Path{Canonical: canonical(components), Components: components}, nil
}

// parseSegment handles one dot-separated segment: a property name with optional
// bracket indices ("tags[0][1]"), or a bare numeric index ("0").
func parseSegment(input, segment string, first bool) ([]Component, error) {
	if segment == "" {
		return nil, errf(input, "empty path component")
	}

	name := segment
	var brackets string
	if open := strings.IndexByte(segment, '['); open >= 0 {
		name, brackets = segment[:open], segment[open:]
	}

	var out []Component
	switch {
	case name == "":
		return nil, errf(input, "index without a property name")
	case isNumeric(name):
		if first {
			return nil, errf(input, "path must start with a property name")
		}
		idx, err := strconv.Atoi(name)
		if err != nil || idx < 0 {
			return nil, errf(input, "invalid array index %q", name)
		}
		out = append(out, Component{Index: idx, IsIndex: true})
	default:
		if !validName(name) {
			return nil, errf(input, "invalid property name %q", name)
		}
		out = append(out, Component{Name: name})
	}

	for brackets != "" {
		if brackets[0] != '[' {
			return nil, errf(input, "unexpected %q after index", string(brackets[0]))
		}
		close := strings.IndexByte(brackets, ']')
		if close < 0 {
			return nil, errf(input, "unmatched bracket")
		}
		inner := brackets[1:close]
		if strings.ContainsAny(inner, "[]") {
			return nil, errf(input, "nested brackets are not allowed")
		}
		if inner == "" || !isNumeric(inner) {
			return nil, errf(input, "array index must be a nonnegative integer")
		}
		idx, err := strconv.Atoi(inner)
		if err != nil || idx < 0 {
			return nil, errf(input, "invalid array index %q", inner)
		}
		out = append(out, Component{Index: idx, IsIndex: true})
		brackets = brackets[close+1:]
	}

	return out, nil
}

func canonical(components []Component) string {
	var b strings.Builder
	b.WriteByte('$')
	for _, c := range components {
		if c.IsIndex {
			b.WriteByte('[')
			b.WriteString(strconv.Itoa(c.Index))
			b.WriteByte(']')
		} else {
			b.WriteByte('.')
			b.WriteString(c.Name)
		}
	}
	return b.String()
}

// TextArrayParam renders the path as a Postgres text-array literal for binding
// against jsonb #>> / #> operators. Components are validated, so the literal
// needs no quoting.
func (p Path) TextArrayParam() string {
	parts := make([]string, len(p.Components))
	for i, c := range p.Components {
		if c.IsIndex {
			parts[i] = strconv.Itoa(c.Index)
		} else {
			parts[i] = c.Name
		}
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func validChar(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '_', r == '.', r == '[', r == ']':
		return true
	default:
		return false
	}
}

func validName(s string) bool {
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return s != ""
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
