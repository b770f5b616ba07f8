package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/latticedb/lattice-backend/internal/data/repos"
	types "github.com/latticedb/lattice-backend/internal/domain"
	"github.com/latticedb/lattice-backend/internal/pkg/dbctx"
	pkgerrors "github.com/latticedb/lattice-backend/internal/pkg/errors"
	"github.com/latticedb/lattice-backend/internal/platform/logger"
	"github.com/latticedb/lattice-backend/internal/query/acl"
	"github.com/latticedb/lattice-backend/internal/query/filter"
)

type Direction string

const (
	DirectionOutbound Direction = "outbound"
	DirectionInbound  Direction = "inbound"
	DirectionBoth     Direction = "both"
)

// MaxTraversalDepth is the hard ceiling on BFS depth. It is the only bound on
// traversal work; dense graphs can still produce large result sets.
const MaxTraversalDepth = 10

type TraverseParams struct {
	StartID        uuid.UUID
	Principal      types.Principal
	Direction      Direction
	MaxDepth       int
	LinkTypeIDs    []uuid.UUID
	EntityTypeIDs  []uuid.UUID
	PropertyFilter types.FilterExpression
	IncludeDeleted bool
	ReturnPaths    bool
}

// TraversedEntity is one discovered entity. Paths holds entity-id sequences
// from the start node; the first is the discovery path, the rest only appear
// when ReturnPaths was set.
type TraversedEntity struct {
	Entity *types.Entity
	Depth  int
	Paths  [][]uuid.UUID
}

type TraversalResult struct {
	Start    *types.Entity
	Entities []*TraversedEntity
}

type ShortestPathParams struct {
	FromID         uuid.UUID
	ToID           uuid.UUID
	Principal      types.Principal
	MaxDepth       int
	LinkTypeIDs    []uuid.UUID
	IncludeDeleted bool
}

// PathStep is one hop of a materialized path: the link taken and the entity it
// leads to.
type PathStep struct {
	Link   *types.Link
	Entity *types.Entity
}

type PathResult struct {
	Start  *types.Entity
	Steps  []PathStep
	Length int
}

type GraphTraversalService interface {
	Traverse(ctx context.Context, p TraverseParams) (*TraversalResult, error)
	ShortestPath(ctx context.Context, p ShortestPathParams) (*PathResult, error)
}

type graphTraversalService struct {
	db       *gorm.DB
	log      *logger.Logger
	entities repos.EntityRepo
	links    repos.LinkRepo
	acls     *acl.Resolver
	tracer   trace.Tracer
}

func NewGraphTraversalService(
	db *gorm.DB,
	baseLog *logger.Logger,
	entityRepo repos.EntityRepo,
	linkRepo repos.LinkRepo,
	aclResolver *acl.Resolver,
) GraphTraversalService {
	return &graphTraversalService{
		db:       db,
		log:      baseLog.With("service", "GraphTraversalService"),
		entities: entityRepo,
		links:    linkRepo,
		acls:     aclResolver,
		tracer:   otel.Tracer("lattice/services/traversal"),
	}
}

// visit is the per-entity BFS bookkeeping: first-discovery depth plus every
// discovered path when path tracking is on.
type visit struct {
	entity *types.Entity
	depth  int
	paths  [][]uuid.UUID
}

func (s *graphTraversalService) Traverse(ctx context.Context, p TraverseParams) (*TraversalResult, error) {
	ctx, span := s.tracer.Start(ctx, "GraphTraversal.Traverse")
	defer span.End()
	span.SetAttributes(
		attribute.Int("traversal.max_depth", p.MaxDepth),
		attribute.String("traversal.direction", string(p.Direction)),
	)

	if p.MaxDepth < 0 || p.MaxDepth > MaxTraversalDepth {
		return nil, fmt.Errorf("maxDepth must be between 0 and %d: %w", MaxTraversalDepth, pkgerrors.ErrInvalidArgument)
	}
	switch p.Direction {
	case DirectionOutbound, DirectionInbound, DirectionBoth:
	default:
		return nil, fmt.Errorf("unknown direction %q: %w", p.Direction, pkgerrors.ErrInvalidArgument)
	}

	propFilter, err := filter.CompileExpression(p.PropertyFilter, "entity")
	if err != nil {
		return nil, err
	}

	dbc := dbctx.New(ctx)

	start, err := s.entities.ResolveLatest(dbc, p.StartID)
	if err != nil {
		return nil, err
	}
	if start.IsDeleted && !p.IncludeDeleted {
		return nil, fmt.Errorf("entity %s: %w", p.StartID, pkgerrors.ErrNotFound)
	}

	accessible, err := s.acls.AccessibleAclIDs(ctx, p.Principal, types.PermissionRead)
	if err != nil {
		return nil, err
	}
	if !acl.Accessible(start.AclID, accessible) {
		return nil, fmt.Errorf("entity %s: %w", p.StartID, pkgerrors.ErrForbidden)
	}

	entityClause := acl.BuildFilterClause(accessible, "entity")
	linkClause := acl.BuildFilterClause(accessible, "link")

	visited := map[uuid.UUID]*visit{
		start.ID: {entity: start, depth: 0, paths: [][]uuid.UUID{{start.ID}}},
	}
	order := []uuid.UUID{start.ID}
	frontier := []uuid.UUID{start.ID}

	for depth := 0; depth < p.MaxDepth && len(frontier) > 0; depth++ {
		next, err := s.expandWave(dbc, p, frontier, depth, visited, &order,
			accessible, entityClause, linkClause, propFilter)
		if err != nil {
			return nil, err
		}
		frontier = next
	}

	result := &TraversalResult{Start: start, Entities: make([]*TraversedEntity, 0, len(order))}
	for _, id := range order {
		v := visited[id]
		paths := v.paths
		if !p.ReturnPaths {
			paths = v.paths[:1]
		}
		result.Entities = append(result.Entities, &TraversedEntity{
			Entity: v.entity,
			Depth:  v.depth,
			Paths:  paths,
		})
	}

	span.SetAttributes(attribute.Int("traversal.visited", len(result.Entities)))
	s.log.Debug("traversal complete", "start", p.StartID, "visited", len(result.Entities), "max_depth", p.MaxDepth)
	return result, nil
}

// expandWave runs one BFS wave: fetches the frontier's links for each active
// direction, resolves the far endpoints to latest rows, filters them, then
// records discoveries. Returns the next frontier.
func (s *graphTraversalService) expandWave(
	dbc dbctx.Context,
	p TraverseParams,
	frontier []uuid.UUID,
	depth int,
	visited map[uuid.UUID]*visit,
	order *[]uuid.UUID,
	accessible map[int64]struct{},
	entityClause, linkClause acl.Clause,
	propFilter filter.Compiled,
) ([]uuid.UUID, error) {
	// links may reference any version of a frontier entity
	memberIDs, err := s.entities.ChainMemberIDs(dbc, frontier)
	if err != nil {
		return nil, err
	}

	var links []*types.Link
	var inboundFlags []bool
	for _, inbound := range activeDirections(p.Direction) {
		hop, err := s.links.OneHop(dbc, repos.HopQuery{
			EndpointIDs:    memberIDs,
			Inbound:        inbound,
			TypeIDs:        p.LinkTypeIDs,
			IncludeDeleted: p.IncludeDeleted,
			Acl:            linkClause,
		})
		if err != nil {
			return nil, err
		}
		if !linkClause.Inline {
			hop = acl.FilterByPermission(hop, accessible)
		}
		for _, l := range hop {
			links = append(links, l)
			inboundFlags = append(inboundFlags, inbound)
		}
	}
	if len(links) == 0 {
		return nil, nil
	}

	// resolve both endpoints of every fetched link to their latest rows
	refs := make([]uuid.UUID, 0, len(links)*2)
	for _, l := range links {
		refs = append(refs, l.SourceEntityID, l.TargetEntityID)
	}
	latestByRef, err := s.entities.ResolveLatestBatch(dbc, refs)
	if err != nil {
		return nil, err
	}

	neighborIDs := make([]uuid.UUID, 0, len(links))
	for i, l := range links {
		if neighbor := latestByRef[neighborRef(l, inboundFlags[i])]; neighbor != nil {
			neighborIDs = append(neighborIDs, neighbor.ID)
		}
	}

	allowed, err := s.entities.FindLatest(dbc, repos.LatestQuery{
		IDs:            neighborIDs,
		TypeIDs:        p.EntityTypeIDs,
		IncludeDeleted: p.IncludeDeleted,
		Acl:            entityClause,
		Property:       propFilter,
	})
	if err != nil {
		return nil, err
	}
	if !entityClause.Inline {
		allowed = acl.FilterByPermission(allowed, accessible)
	}
	allowedByID := make(map[uuid.UUID]*types.Entity, len(allowed))
	for _, e := range allowed {
		allowedByID[e.ID] = e
	}

	var next []uuid.UUID
	for i, l := range links {
		anchor := latestByRef[anchorRef(l, inboundFlags[i])]
		if anchor == nil {
			continue
		}
		from, ok := visited[anchor.ID]
		if !ok || from.depth != depth {
			continue
		}
		neighbor := latestByRef[neighborRef(l, inboundFlags[i])]
		if neighbor == nil {
			continue
		}
		entity, ok := allowedByID[neighbor.ID]
		if !ok {
			continue
		}

		newPath := extendPath(from.paths[0], entity.ID)
		if v, seen := visited[entity.ID]; seen {
			if p.ReturnPaths {
				v.paths = appendDistinctPath(v.paths, newPath)
			}
			continue
		}
		visited[entity.ID] = &visit{entity: entity, depth: depth + 1, paths: [][]uuid.UUID{newPath}}
		*order = append(*order, entity.ID)
		next = append(next, entity.ID)
	}
	return next, nil
}

func (s *graphTraversalService) ShortestPath(ctx context.Context, p ShortestPathParams) (*PathResult, error) {
	ctx, span := s.tracer.Start(ctx, "GraphTraversal.ShortestPath")
	defer span.End()
	span.SetAttributes(attribute.Int("traversal.max_depth", p.MaxDepth))

	if p.MaxDepth < 1 || p.MaxDepth > MaxTraversalDepth {
		return nil, fmt.Errorf("maxDepth must be between 1 and %d: %w", MaxTraversalDepth, pkgerrors.ErrInvalidArgument)
	}

	dbc := dbctx.New(ctx)

	from, err := s.entities.ResolveLatest(dbc, p.FromID)
	if err != nil {
		return nil, err
	}
	if from.IsDeleted && !p.IncludeDeleted {
		return nil, fmt.Errorf("entity %s: %w", p.FromID, pkgerrors.ErrNotFound)
	}

	accessible, err := s.acls.AccessibleAclIDs(ctx, p.Principal, types.PermissionRead)
	if err != nil {
		return nil, err
	}
	if !acl.Accessible(from.AclID, accessible) {
		return nil, fmt.Errorf("entity %s: %w", p.FromID, pkgerrors.ErrForbidden)
	}

	// identical endpoints short-circuit before any traversal query
	if p.FromID == p.ToID || from.ID == p.ToID {
		return &PathResult{Start: from, Length: 0}, nil
	}

	to, err := s.entities.ResolveLatest(dbc, p.ToID)
	if err != nil {
		return nil, err
	}
	if to.ID == from.ID {
		return &PathResult{Start: from, Length: 0}, nil
	}
	if !acl.Accessible(to.AclID, accessible) {
		return nil, fmt.Errorf("entity %s: %w", p.ToID, pkgerrors.ErrForbidden)
	}

	entityClause := acl.BuildFilterClause(accessible, "entity")
	linkClause := acl.BuildFilterClause(accessible, "link")

	parents := map[uuid.UUID]pathHop{}
	seen := map[uuid.UUID]struct{}{from.ID: {}}
	frontier := []uuid.UUID{from.ID}

	for depth := 0; depth < p.MaxDepth && len(frontier) > 0; depth++ {
		memberIDs, err := s.entities.ChainMemberIDs(dbc, frontier)
		if err != nil {
			return nil, err
		}

		links, err := s.links.OneHop(dbc, repos.HopQuery{
			EndpointIDs:    memberIDs,
			TypeIDs:        p.LinkTypeIDs,
			IncludeDeleted: p.IncludeDeleted,
			Acl:            linkClause,
		})
		if err != nil {
			return nil, err
		}
		if !linkClause.Inline {
			links = acl.FilterByPermission(links, accessible)
		}
		if len(links) == 0 {
			break
		}

		refs := make([]uuid.UUID, 0, len(links)*2)
		for _, l := range links {
			refs = append(refs, l.SourceEntityID, l.TargetEntityID)
		}
		latestByRef, err := s.entities.ResolveLatestBatch(dbc, refs)
		if err != nil {
			return nil, err
		}

		neighborIDs := make([]uuid.UUID, 0, len(links))
		for _, l := range links {
			if neighbor := latestByRef[l.TargetEntityID]; neighbor != nil {
				neighborIDs = append(neighborIDs, neighbor.ID)
			}
		}
		allowed, err := s.entities.FindLatest(dbc, repos.LatestQuery{
			IDs:            neighborIDs,
			IncludeDeleted: p.IncludeDeleted,
			Acl:            entityClause,
		})
		if err != nil {
			return nil, err
		}
		if !entityClause.Inline {
			allowed = acl.FilterByPermission(allowed, accessible)
		}
		allowedByID := make(map[uuid.UUID]*types.Entity, len(allowed))
		for _, e := range allowed {
			allowedByID[e.ID] = e
		}

		var next []uuid.UUID
		for _, l := range links {
			anchor := latestByRef[l.SourceEntityID]
			if anchor == nil {
				continue
			}
			if _, ok := seen[anchor.ID]; !ok {
				continue
			}
			neighbor := latestByRef[l.TargetEntityID]
			if neighbor == nil {
				continue
			}
			if _, ok := allowedByID[neighbor.ID]; !ok {
				continue
			}
			if _, dup := seen[neighbor.ID]; dup {
				continue
			}
			seen[neighbor.ID] = struct{}{}
			parents[neighbor.ID] = pathHop{parent: anchor.ID, linkID: l.ID}

			// first discovery of the target is hop-count optimal under BFS
			if neighbor.ID == to.ID {
				return s.materializePath(dbc, from, to.ID, parents)
			}
			next = append(next, neighbor.ID)
		}
		frontier = next
	}

	return nil, fmt.Errorf("no path from %s to %s within %d hops: %w", p.FromID, p.ToID, p.MaxDepth, pkgerrors.ErrNoPathFound)
}

// pathHop records how an entity was first reached during shortest-path BFS.
type pathHop struct {
	parent uuid.UUID
	linkID uuid.UUID
}

// materializePath walks the parent map back from the target and re-fetches the
// full entity and link records for the response, separate from BFS bookkeeping.
func (s *graphTraversalService) materializePath(dbc dbctx.Context, from *types.Entity, targetID uuid.UUID, parents map[uuid.UUID]pathHop) (*PathResult, error) {
	type step struct {
		entityID uuid.UUID
		linkID   uuid.UUID
	}
	var reversed []step
	for cur := targetID; cur != from.ID; {
		h, ok := parents[cur]
		if !ok {
			return nil, fmt.Errorf("path reconstruction lost parent of %s", cur)
		}
		reversed = append(reversed, step{entityID: cur, linkID: h.linkID})
		cur = h.parent
	}

	result := &PathResult{Start: from, Length: len(reversed)}
	for i := len(reversed) - 1; i >= 0; i-- {
		link, err := s.links.GetByID(dbc, reversed[i].linkID)
		if err != nil {
			return nil, err
		}
		entity, err := s.entities.ResolveLatest(dbc, reversed[i].entityID)
		if err != nil {
			return nil, err
		}
		result.Steps = append(result.Steps, PathStep{Link: link, Entity: entity})
	}
	return result, nil
}

func activeDirections(d Direction) []bool {
	switch d {
	case DirectionOutbound:
		return []bool{false}
	case DirectionInbound:
		return []bool{true}
	default:
		return []bool{false, true}
	}
}

func anchorRef(l *types.Link, inbound bool) uuid.UUID {
	if inbound {
		return l.TargetEntityID
	}
	return l.SourceEntityID
}

func neighborRef(l *types.Link, inbound bool) uuid.UUID {
	if inbound {
		return l.SourceEntityID
	}
	return l.TargetEntityID
}

func extendPath(base []uuid.UUID, next uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, len(base)+1)
	copy(out, base)
	out[len(base)] = next
	return out
}

func appendDistinctPath(paths [][]uuid.UUID, candidate []uuid.UUID) [][]uuid.UUID {
	for _, p := range paths {
		if samePath(p, candidate) {
			return paths
		}
	}
	return append(paths, candidate)
}

func samePath(a, b []uuid.UUID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
