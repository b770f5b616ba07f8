package graph

import (
	"encoding/json"
	"fmt"
)

type FilterOperator string

const (
	OpEq         FilterOperator = "eq"
	OpNe         FilterOperator = "ne"
	OpGt         FilterOperator = "gt"
	OpLt         FilterOperator = "lt"
	OpGte        FilterOperator = "gte"
	OpLte        FilterOperator = "lte"
	OpLike       FilterOperator = "like"
	OpILike      FilterOperator = "ilike"
	OpStartsWith FilterOperator = "starts_with"
	OpEndsWith   FilterOperator = "ends_with"
	OpContains   FilterOperator = "contains"
	OpIn         FilterOperator = "in"
	OpNotIn      FilterOperator = "not_in"
	OpExists     FilterOperator = "exists"
	OpNotExists  FilterOperator = "not_exists"
)

// MaxGroupChildren bounds the fan-out of a single and/or group.
const MaxGroupChildren = 50

// FilterExpression is the recursive and/or tree over property comparisons.
// Implementations: *PropertyFilter, *AndGroup, *OrGroup.
type FilterExpression interface {
	isFilterExpression()
}

// PropertyFilter compares one JSON property against a value.
type PropertyFilter struct {
	Path     string         `json:"path"`
	Operator FilterOperator `json:"operator"`
	Value    any            `json:"value,omitempty"`
}

type AndGroup struct {
	Children []FilterExpression `json:"and"`
}

type OrGroup struct {
	Children []FilterExpression `json:"or"`
}

func (*PropertyFilter) isFilterExpression() {}
func (*AndGroup) isFilterExpression()       {}
func (*OrGroup) isFilterExpression()        {}

// ParseFilterExpression decodes the wire form of a filter tree:
// {"and":[...]}, {"or":[...]} or {"path":...,"operator":...,"value":...}.
// Group size is capped; nesting depth is enforced later by the compiler.
func ParseFilterExpression(raw []byte) (FilterExpression, error) {
	var probe struct {
		And []json.RawMessage `json:"and"`
		Or  []json.RawMessage `json:"or"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("malformed filter expression: %w", err)
	}

	switch {
	case probe.And != nil && probe.Or != nil:
		return nil, fmt.Errorf("filter group cannot declare both \"and\" and \"or\"")
	case probe.And != nil:
		children, err := parseChildren(probe.And)
		if err != nil {
			return nil, err
		}
		return &AndGroup{Children: children}, nil
	case probe.Or != nil:
		children, err := parseChildren(probe.Or)
		if err != nil {
			return nil, err
		}
		return &OrGroup{Children: children}, nil
	}

	var pf PropertyFilter
	if err := json.Unmarshal(raw, &pf); err != nil {
		return nil, fmt.Errorf("malformed property filter: %w", err)
	}
	if pf.Path == "" || pf.Operator == "" {
		return nil, fmt.Errorf("property filter requires path and operator")
	}
	return &pf, nil
}

func parseChildren(raws []json.RawMessage) ([]FilterExpression, error) {
	if len(raws) > MaxGroupChildren {
		return nil, fmt.Errorf("filter group exceeds %d children", MaxGroupChildren)
	}
	children := make([]FilterExpression, 0, len(raws))
	for _, r := range raws {
		child, err := ParseFilterExpression(r)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	return children, nil
}
