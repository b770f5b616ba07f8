package filter

import (
	"errors"
	"reflect"
	"testing"

	"github.com/latticedb/lattice-backend/internal/domain/graph"
	pkgerrors "github.com/latticedb/lattice-backend/internal/pkg/errors"
)

func pf(path string, op graph.FilterOperator, value any) *graph.PropertyFilter {
	return &graph.PropertyFilter{Path: path, Operator: op, Value: value}
}

func TestCompileOperators(t *testing.T) {
	cases := []struct {
		name      string
		filter    *graph.PropertyFilter
		predicate string
		params    []any
	}{
		{
			name:      "eq string",
			filter:    pf("name", graph.OpEq, "alice"),
			predicate: "entity.properties #>> ?::text[] = ?",
			params:    []any{"{name}", "alice"},
		},
		{
			name:      "eq number",
			filter:    pf("age", graph.OpEq, 30),
			predicate: "(entity.properties #>> ?::text[])::numeric = ?",
			params:    []any{"{age}", float64(30)},
		},
		{
			name:      "eq bool",
			filter:    pf("active", graph.OpEq, true),
			predicate: "(entity.properties #>> ?::text[])::boolean = ?",
			params:    []any{"{active}", true},
		},
		{
			name:      "eq null",
			filter:    pf("nickname", graph.OpEq, nil),
			predicate: "entity.properties #>> ?::text[] IS NULL",
			params:    []any{"{nickname}"},
		},
		{
			name:      "ne null",
			filter:    pf("nickname", graph.OpNe, nil),
			predicate: "entity.properties #>> ?::text[] IS NOT NULL",
			params:    []any{"{nickname}"},
		},
		{
			name:      "ne string",
			filter:    pf("name", graph.OpNe, "bob"),
			predicate: "entity.properties #>> ?::text[] <> ?",
			params:    []any{"{name}", "bob"},
		},
		{
			name:      "gt",
			filter:    pf("score", graph.OpGt, 1.5),
			predicate: "(entity.properties #>> ?::text[])::numeric > ?",
			params:    []any{"{score}", 1.5},
		},
		{
			name:      "lte indexed path",
			filter:    pf("scores[0]", graph.OpLte, 10),
			predicate: "(entity.properties #>> ?::text[])::numeric <= ?",
			params:    []any{"{scores,0}", float64(10)},
		},
		{
			name:      "like passes value through",
			filter:    pf("name", graph.OpLike, "al%"),
			predicate: "entity.properties #>> ?::text[] LIKE ?",
			params:    []any{"{name}", "al%"},
		},
		{
			name:      "ilike",
			filter:    pf("name", graph.OpILike, "AL%"),
			predicate: "entity.properties #>> ?::text[] ILIKE ?",
			params:    []any{"{name}", "AL%"},
		},
		{
			name:      "starts_with escapes metacharacters",
			filter:    pf("name", graph.OpStartsWith, "a%b"),
			predicate: "entity.properties #>> ?::text[] LIKE ?",
			params:    []any{"{name}", `a\%b%`},
		},
		{
			name:      "ends_with",
			filter:    pf("name", graph.OpEndsWith, "son"),
			predicate: "entity.properties #>> ?::text[] LIKE ?",
			params:    []any{"{name}", "%son"},
		},
		{
			name:      "contains escapes underscore",
			filter:    pf("name", graph.OpContains, "a_b"),
			predicate: "entity.properties #>> ?::text[] LIKE ?",
			params:    []any{"{name}", `%a\_b%`},
		},
		{
			name:      "in strings",
			filter:    pf("status", graph.OpIn, []any{"draft", "live"}),
			predicate: "entity.properties #>> ?::text[] IN ?",
			params:    []any{"{status}", []string{"draft", "live"}},
		},
		{
			name:      "not_in numbers",
			filter:    pf("rank", graph.OpNotIn, []any{1, 2, 3}),
			predicate: "(entity.properties #>> ?::text[])::numeric NOT IN ?",
			params:    []any{"{rank}", []float64{1, 2, 3}},
		},
		{
			name:      "exists",
			filter:    pf("meta.flags", graph.OpExists, nil),
			predicate: "entity.properties #> ?::text[] IS NOT NULL",
			params:    []any{"{meta,flags}"},
		},
		{
			name:      "not_exists",
			filter:    pf("meta.flags", graph.OpNotExists, nil),
			predicate: "entity.properties #> ?::text[] IS NULL",
			params:    []any{"{meta,flags}"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, err := Compile(tc.filter, "entity")
			if err != nil {
				t.Fatalf("Compile: %v", err)
			}
			if c.Predicate != tc.predicate {
				t.Fatalf("predicate = %q, want %q", c.Predicate, tc.predicate)
			}
			if !reflect.DeepEqual(c.Params, tc.params) {
				t.Fatalf("params = %#v, want %#v", c.Params, tc.params)
			}
		})
	}
}

func TestCompileRejects(t *testing.T) {
	cases := []struct {
		name   string
		filter *graph.PropertyFilter
	}{
		{"bad path", pf("a;b", graph.OpEq, "x")},
		{"gt string value", pf("age", graph.OpGt, "thirty")},
		{"like non-string", pf("name", graph.OpLike, 3)},
		{"in scalar value", pf("status", graph.OpIn, "draft")},
		{"in empty array", pf("status", graph.OpIn, []any{})},
		{"in mixed elements", pf("status", graph.OpIn, []any{"a", 1})},
		{"unknown operator", pf("name", graph.FilterOperator("between"), 1)},
		{"eq struct value", pf("name", graph.OpEq, struct{}{})},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Compile(tc.filter, "entity"); err == nil {
				t.Fatal("expected error")
			} else if !errors.Is(err, pkgerrors.ErrInvalidArgument) {
				t.Fatalf("error %v is not ErrInvalidArgument", err)
			}
		})
	}
}

func TestCompileExpressionGroups(t *testing.T) {
	a := pf("name", graph.OpEq, "alice")
	b := pf("age", graph.OpGt, 21)
	c := pf("status", graph.OpEq, "live")

	t.Run("nil expression is empty", func(t *testing.T) {
		got, err := CompileExpression(nil, "entity")
		if err != nil {
			t.Fatalf("CompileExpression: %v", err)
		}
		if !got.Empty() {
			t.Fatalf("expected empty predicate, got %q", got.Predicate)
		}
	})

	t.Run("empty group compiles to empty", func(t *testing.T) {
		got, err := CompileExpression(&graph.AndGroup{}, "entity")
		if err != nil {
			t.Fatalf("CompileExpression: %v", err)
		}
		if !got.Empty() {
			t.Fatalf("expected empty predicate, got %q", got.Predicate)
		}
	})

	t.Run("single child collapses without parentheses", func(t *testing.T) {
		got, err := CompileExpression(&graph.AndGroup{Children: []graph.FilterExpression{a}}, "entity")
		if err != nil {
			t.Fatalf("CompileExpression: %v", err)
		}
		want := "entity.properties #>> ?::text[] = ?"
		if got.Predicate != want {
			t.Fatalf("predicate = %q, want %q", got.Predicate, want)
		}
	})

	t.Run("nested empty groups drop out", func(t *testing.T) {
		expr := &graph.AndGroup{Children: []graph.FilterExpression{
			&graph.OrGroup{},
			a,
			&graph.AndGroup{Children: []graph.FilterExpression{&graph.OrGroup{}}},
		}}
		got, err := CompileExpression(expr, "entity")
		if err != nil {
			t.Fatalf("CompileExpression: %v", err)
		}
		want := "entity.properties #>> ?::text[] = ?"
		if got.Predicate != want {
			t.Fatalf("predicate = %q, want %q", got.Predicate, want)
		}
		if !reflect.DeepEqual(got.Params, []any{"{name}", "alice"}) {
			t.Fatalf("params = %#v", got.Params)
		}
	})

	t.Run("and over or parenthesizes the compound child and keeps param order", func(t *testing.T) {
		expr := &graph.AndGroup{Children: []graph.FilterExpression{
			a,
			&graph.OrGroup{Children: []graph.FilterExpression{b, c}},
		}}
		got, err := CompileExpression(expr, "entity")
		if err != nil {
			t.Fatalf("CompileExpression: %v", err)
		}
		want := "entity.properties #>> ?::text[] = ? AND " +
			"((entity.properties #>> ?::text[])::numeric > ? OR entity.properties #>> ?::text[] = ?)"
		if got.Predicate != want {
			t.Fatalf("predicate = %q, want %q", got.Predicate, want)
		}
		wantParams := []any{"{name}", "alice", "{age}", float64(21), "{status}", "live"}
		if !reflect.DeepEqual(got.Params, wantParams) {
			t.Fatalf("params = %#v, want %#v", got.Params, wantParams)
		}
	})

	t.Run("simple children are never parenthesized", func(t *testing.T) {
		expr := &graph.OrGroup{Children: []graph.FilterExpression{a, b}}
		got, err := CompileExpression(expr, "entity")
		if err != nil {
			t.Fatalf("CompileExpression: %v", err)
		}
		want := "entity.properties #>> ?::text[] = ? OR (entity.properties #>> ?::text[])::numeric > ?"
		if got.Predicate != want {
			t.Fatalf("predicate = %q, want %q", got.Predicate, want)
		}
	})
}

func TestCompileExpressionDepthLimit(t *testing.T) {
	leaf := graph.FilterExpression(pf("name", graph.OpEq, "x"))

	// MaxDepth levels of nesting is fine
	expr := leaf
	for i := 0; i < MaxDepth-1; i++ {
		expr = &graph.AndGroup{Children: []graph.FilterExpression{expr}}
	}
	if _, err := CompileExpression(expr, "entity"); err != nil {
		t.Fatalf("depth %d should compile: %v", MaxDepth, err)
	}

	for i := 0; i < 3; i++ {
		expr = &graph.AndGroup{Children: []graph.FilterExpression{expr}}
	}
	if _, err := CompileExpression(expr, "entity"); err == nil {
		t.Fatal("over-deep filter should be rejected")
	} else if !errors.Is(err, pkgerrors.ErrInvalidArgument) {
		t.Fatalf("error %v is not ErrInvalidArgument", err)
	}
}

func TestCompileExpressionGroupSizeLimit(t *testing.T) {
	children := make([]graph.FilterExpression, graph.MaxGroupChildren+1)
	for i := range children {
		children[i] = pf("name", graph.OpEq, "x")
	}
	if _, err := CompileExpression(&graph.AndGroup{Children: children}, "entity"); err == nil {
		t.Fatal("oversized group should be rejected")
	}
}
