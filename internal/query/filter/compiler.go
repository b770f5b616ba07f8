// Package filter compiles property filter trees into parameterized Postgres
// jsonb predicates. Compilation is pure: the output is a predicate fragment plus
// an ordered parameter list whose positions match the placeholders exactly.
package filter

import (
	"fmt"
	"strings"

	"github.com/latticedb/lattice-backend/internal/domain/graph"
	pkgerrors "github.com/latticedb/lattice-backend/internal/pkg/errors"
	"github.com/latticedb/lattice-backend/internal/query/jsonpath"
)

// MaxDepth bounds filter tree nesting. Tracked with an explicit counter so the
// limit does not depend on host stack behavior.
const MaxDepth = 5

// Compiled is a predicate fragment with its positional parameters in
// placeholder order.
type Compiled struct {
	Predicate string
	Params    []any
}

func (c Compiled) Empty() bool { return c.Predicate == "" }

type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "invalid filter: " + e.Reason }
func (e *ValidationError) Unwrap() error { return pkgerrors.ErrInvalidArgument }

func errf(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// Compile compiles a single property comparison against the given table alias.
func Compile(f *graph.PropertyFilter, alias string) (Compiled, error) {
	return compileFilter(f, alias)
}

// CompileExpression compiles a full and/or tree. Empty groups compile to an
// empty predicate; single-child groups collapse to the child.
func CompileExpression(expr graph.FilterExpression, alias string) (Compiled, error) {
	c, _, err := compileExpr(expr, alias, 0)
	return c, err
}

// compileExpr returns the compiled fragment and whether it is a compound
// predicate that needs parentheses when embedded in a larger group.
func compileExpr(expr graph.FilterExpression, alias string, depth int) (Compiled, bool, error) {
	if depth > MaxDepth {
		return Compiled{}, false, errf("filter nesting exceeds %d levels", MaxDepth)
	}

	switch e := expr.(type) {
	case *graph.PropertyFilter:
		c, err := compileFilter(e, alias)
		return c, false, err
	case *graph.AndGroup:
		return compileGroup(e.Children, "AND", alias, depth)
	case *graph.OrGroup:
		return compileGroup(e.Children, "OR", alias, depth)
	case nil:
		return Compiled{}, false, nil
	default:
		return Compiled{}, false, errf("unsupported filter expression %T", expr)
	}
}

func compileGroup(children []graph.FilterExpression, connective, alias string, depth int) (Compiled, bool, error) {
	if len(children) > graph.MaxGroupChildren {
		return Compiled{}, false, errf("filter group exceeds %d children", graph.MaxGroupChildren)
	}

	parts := make([]string, 0, len(children))
	params := make([]any, 0, len(children))
	for _, child := range children {
		c, compound, err := compileExpr(child, alias, depth+1)
		if err != nil {
			return Compiled{}, false, err
		}
		if c.Empty() {
			continue
		}
		if compound {
			parts = append(parts, "("+c.Predicate+")")
		} else {
			parts = append(parts, c.Predicate)
		}
		params = append(params, c.Params...)
	}

	switch len(parts) {
	case 0:
		return Compiled{}, false, nil
	case 1:
		return Compiled{Predicate: parts[0], Params: params}, false, nil
	default:
		return Compiled{
			Predicate: strings.Join(parts, " "+connective+" "),
			Params:    params,
		}, true, nil
	}
}

func compileFilter(f *graph.PropertyFilter, alias string) (Compiled, error) {
	if f == nil {
		return Compiled{}, nil
	}

	path, err := jsonpath.Parse(f.Path)
	if err != nil {
		return Compiled{}, errf("path %q: %v", f.Path, err)
	}
	pathParam := path.TextArrayParam()
	text := column(alias) + " #>> ?::text[]"
	presence := column(alias) + " #> ?::text[]"

	switch f.Operator {
	case graph.OpEq, graph.OpNe:
		return compileEquality(f, text, pathParam)

	case graph.OpGt, graph.OpLt, graph.OpGte, graph.OpLte:
		n, ok := asNumber(f.Value)
		if !ok {
			return Compiled{}, errf("operator %s requires a numeric value", f.Operator)
		}
		return Compiled{
			Predicate: "(" + text + ")::numeric " + comparisonSQL(f.Operator) + " ?",
			Params:    []any{pathParam, n},
		}, nil

	case graph.OpLike, graph.OpILike:
		s, ok := f.Value.(string)
		if !ok {
			return Compiled{}, errf("operator %s requires a string value", f.Operator)
		}
		return Compiled{
			Predicate: text + " " + likeSQL(f.Operator) + " ?",
			Params:    []any{pathParam, s},
		}, nil

	case graph.OpStartsWith, graph.OpEndsWith, graph.OpContains:
		s, ok := f.Value.(string)
		if !ok {
			return Compiled{}, errf("operator %s requires a string value", f.Operator)
		}
		return Compiled{
			Predicate: text + " LIKE ?",
			Params:    []any{pathParam, wildcard(f.Operator, s)},
		}, nil

	case graph.OpIn, graph.OpNotIn:
		return compileInList(f, text, pathParam)

	case graph.OpExists:
		return Compiled{Predicate: presence + " IS NOT NULL", Params: []any{pathParam}}, nil
	case graph.OpNotExists:
		return Compiled{Predicate: presence + " IS NULL", Params: []any{pathParam}}, nil

	default:
		return Compiled{}, errf("unknown operator %q", f.Operator)
	}
}

func compileEquality(f *graph.PropertyFilter, text, pathParam string) (Compiled, error) {
	negated := f.Operator == graph.OpNe

	switch v := f.Value.(type) {
	case nil:
		pred := text + " IS NULL"
		if negated {
			pred = text + " IS NOT NULL"
		}
		return Compiled{Predicate: pred, Params: []any{pathParam}}, nil
	case string:
		return Compiled{
			Predicate: text + " " + eqSQL(negated) + " ?",
			Params:    []any{pathParam, v},
		}, nil
	case bool:
		return Compiled{
			Predicate: "(" + text + ")::boolean " + eqSQL(negated) + " ?",
			Params:    []any{pathParam, v},
		}, nil
	default:
		n, ok := asNumber(v)
		if !ok {
			return Compiled{}, errf("operator %s requires a string, number, boolean or null value", f.Operator)
		}
		return Compiled{
			Predicate: "(" + text + ")::numeric " + eqSQL(negated) + " ?",
			Params:    []any{pathParam, n},
		}, nil
	}
}

func compileInList(f *graph.PropertyFilter, text, pathParam string) (Compiled, error) {
	values, ok := f.Value.([]any)
	if !ok {
		if typed, okTyped := asAnySlice(f.Value); okTyped {
			values = typed
		} else {
			return Compiled{}, errf("operator %s requires an array value", f.Operator)
		}
	}
	if len(values) == 0 {
		return Compiled{}, errf("operator %s requires a non-empty array", f.Operator)
	}

	connective := "IN"
	if f.Operator == graph.OpNotIn {
		connective = "NOT IN"
	}

	// element type inferred from the first element
	switch values[0].(type) {
	case string:
		list := make([]string, len(values))
		for i, v := range values {
			s, ok := v.(string)
			if !ok {
				return Compiled{}, errf("operator %s: mixed element types in array", f.Operator)
			}
			list[i] = s
		}
		return Compiled{
			Predicate: text + " " + connective + " ?",
			Params:    []any{pathParam, list},
		}, nil
	default:
		list := make([]float64, len(values))
		for i, v := range values {
			n, ok := asNumber(v)
			if !ok {
				return Compiled{}, errf("operator %s: array elements must be strings or numbers", f.Operator)
			}
			list[i] = n
		}
		return Compiled{
			Predicate: "(" + text + ")::numeric " + connective + " ?",
			Params:    []any{pathParam, list},
		}, nil
	}
}

func column(alias string) string {
	if alias == "" {
		return "properties"
	}
	return alias + ".properties"
}

func comparisonSQL(op graph.FilterOperator) string {
	switch op {
	case graph.OpGt:
		return ">"
	case graph.OpLt:
		return "<"
	case graph.OpGte:
		return ">="
	default:
		return "<="
	}
}

func likeSQL(op graph.FilterOperator) string {
	if op == graph.OpILike {
		return "ILIKE"
	}
	return "LIKE"
}

func eqSQL(negated bool) string {
	if negated {
		return "<>"
	}
	return "="
}

// wildcard escapes LIKE metacharacters in the user value and applies the
// operator's implicit wildcards.
func wildcard(op graph.FilterOperator, s string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
	switch op {
	case graph.OpStartsWith:
		return escaped + "%"
	case graph.OpEndsWith:
		return "%" + escaped
	default:
		return "%" + escaped + "%"
	}
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func asAnySlice(v any) ([]any, bool) {
	switch s := v.(type) {
	case []string:
		out := make([]any, len(s))
		for i, e := range s {
			out[i] = e
		}
		return out, true
	case []float64:
		out := make([]any, len(s))
		for i, e := range s {
			out[i] = e
		}
		return out, true
	case []int:
		out := make([]any, len(s))
		for i, e := range s {
			out[i] = e
		}
		return out, true
	default:
		return nil, false
	}
}
