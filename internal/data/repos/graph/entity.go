package graph

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/latticedb/lattice-backend/internal/domain"
	"github.com/latticedb/lattice-backend/internal/pkg/dbctx"
	pkgerrors "github.com/latticedb/lattice-backend/internal/pkg/errors"
	"github.com/latticedb/lattice-backend/internal/platform/logger"
	"github.com/latticedb/lattice-backend/internal/query/acl"
	"github.com/latticedb/lattice-backend/internal/query/filter"
)

// LatestQuery narrows a latest-row fetch. Acl and Property predicates are
// applied inline when present; a non-inline Acl clause is the caller's problem
// (post-filter the result).
type LatestQuery struct {
	IDs            []uuid.UUID
	TypeIDs        []uuid.UUID
	IncludeDeleted bool
	Acl            acl.Clause
	Property       filter.Compiled
}

type EntityRepo interface {
	Create(dbc dbctx.Context, rows []*types.Entity) ([]*types.Entity, error)
	CreateVersion(dbc dbctx.Context, next *types.Entity) (*types.Entity, error)

	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Entity, error)
	ResolveLatest(dbc dbctx.Context, id uuid.UUID) (*types.Entity, error)
	ResolveLatestBatch(dbc dbctx.Context, ids []uuid.UUID) (map[uuid.UUID]*types.Entity, error)
	ChainMemberIDs(dbc dbctx.Context, ids []uuid.UUID) ([]uuid.UUID, error)
	GetHistory(dbc dbctx.Context, id uuid.UUID) ([]*types.Entity, error)

	FindLatest(dbc dbctx.Context, q LatestQuery) ([]*types.Entity, error)
}

type entityRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEntityRepo(db *gorm.DB, baseLog *logger.Logger) EntityRepo {
	return &entityRepo{db: db, log: baseLog.With("repo", "EntityRepo")}
}

func (r *entityRepo) Create(dbc dbctx.Context, rows []*types.Entity) ([]*types.Entity, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if len(rows) == 0 {
		return []*types.Entity{}, nil
	}
	for _, row := range rows {
		if row.ID == uuid.Nil {
			row.ID = uuid.New()
		}
		row.Version = 1
		row.PreviousVersionID = nil
		row.IsLatest = true
	}
	if err := t.WithContext(dbc.Ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// CreateVersion appends a new version to the chain containing
// next.PreviousVersionID (any member) and flips the prior latest row. The
// caller should run this inside a transaction.
func (r *entityRepo) CreateVersion(dbc dbctx.Context, next *types.Entity) (*types.Entity, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if next == nil || next.PreviousVersionID == nil {
		return nil, fmt.Errorf("new version requires a previous_version_id: %w", pkgerrors.ErrInvalidArgument)
	}

	prior, err := r.ResolveLatest(dbc, *next.PreviousVersionID)
	if err != nil {
		return nil, err
	}

	if next.ID == uuid.Nil {
		next.ID = uuid.New()
	}
	next.PreviousVersionID = &prior.ID
	next.Version = prior.Version + 1
	next.IsLatest = true
	if next.CreatedAt.IsZero() {
		next.CreatedAt = time.Now().UTC()
	}

	if err := t.WithContext(dbc.Ctx).
		Model(&types.Entity{}).
		Where("id = ?", prior.ID).
		Update("is_latest", false).Error; err != nil {
		return nil, err
	}
	if err := t.WithContext(dbc.Ctx).Create(next).Error; err != nil {
		return nil, err
	}
	return next, nil
}

func (r *entityRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Entity, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var row types.Entity
	if err := t.WithContext(dbc.Ctx).Where("id = ?", id).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("entity %s: %w", id, pkgerrors.ErrNotFound)
		}
		return nil, err
	}
	return &row, nil
}

// ResolveLatest walks the chain forward from any member row to the is_latest
// member. The direct lookup covers the common case of an already-latest id.
func (r *entityRepo) ResolveLatest(dbc dbctx.Context, id uuid.UUID) (*types.Entity, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}

	var row types.Entity
	err := t.WithContext(dbc.Ctx).Where("id = ? AND is_latest", id).First(&row).Error
	if err == nil {
		return &row, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	err = t.WithContext(dbc.Ctx).Raw(`
WITH RECURSIVE chain AS (
	SELECT * FROM entity WHERE id = ?
	UNION ALL
	SELECT e.* FROM entity e JOIN chain c ON e.previous_version_id = c.id
)
SELECT * FROM chain WHERE is_latest LIMIT 1
`, id).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("entity %s: %w", id, pkgerrors.ErrNotFound)
		}
		return nil, err
	}
	return &row, nil
}

type latestBatchRow struct {
	StartID uuid.UUID `gorm:"column:start_id"`
	types.Entity
}

// ResolveLatestBatch maps each input id (any chain member) to the latest row of
// its chain. Unknown ids are simply absent from the result.
func (r *entityRepo) ResolveLatestBatch(dbc dbctx.Context, ids []uuid.UUID) (map[uuid.UUID]*types.Entity, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	out := make(map[uuid.UUID]*types.Entity, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var rows []latestBatchRow
	err := t.WithContext(dbc.Ctx).Raw(`
WITH RECURSIVE walk AS (
	SELECT id AS start_id, id, previous_version_id, is_latest FROM entity WHERE id IN ?
	UNION ALL
	SELECT w.start_id, e.id, e.previous_version_id, e.is_latest
	FROM entity e JOIN walk w ON e.previous_version_id = w.id
)
SELECT w.start_id, e.*
FROM walk w JOIN entity e ON e.id = w.id
WHERE w.is_latest
`, ids).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	for i := range rows {
		e := rows[i].Entity
		out[rows[i].StartID] = &e
	}
	return out, nil
}

// ChainMemberIDs returns every row id belonging to the chains of the given
// latest rows, walking backward through previous_version_id.
func (r *entityRepo) ChainMemberIDs(dbc dbctx.Context, ids []uuid.UUID) ([]uuid.UUID, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if len(ids) == 0 {
		return []uuid.UUID{}, nil
	}

	var out []uuid.UUID
	err := t.WithContext(dbc.Ctx).Raw(`
WITH RECURSIVE members AS (
	SELECT id, previous_version_id FROM entity WHERE id IN ?
	UNION ALL
	SELECT e.id, e.previous_version_id FROM entity e JOIN members m ON e.id = m.previous_version_id
)
SELECT id FROM members
`, ids).Scan(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetHistory lists the full chain of the entity containing id, newest first.
func (r *entityRepo) GetHistory(dbc dbctx.Context, id uuid.UUID) ([]*types.Entity, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}

	latest, err := r.ResolveLatest(dbc, id)
	if err != nil {
		return nil, err
	}

	var rows []*types.Entity
	err = t.WithContext(dbc.Ctx).Raw(`
WITH RECURSIVE history AS (
	SELECT * FROM entity WHERE id = ?
	UNION ALL
	SELECT e.* FROM entity e JOIN history h ON e.id = h.previous_version_id
)
SELECT * FROM history ORDER BY version DESC
`, latest.ID).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *entityRepo) FindLatest(dbc dbctx.Context, q LatestQuery) ([]*types.Entity, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.Entity
	if len(q.IDs) == 0 {
		return out, nil
	}

	query := t.WithContext(dbc.Ctx).
		Where("entity.is_latest").
		Where("entity.id IN ?", q.IDs)
	if !q.IncludeDeleted {
		query = query.Where("entity.is_deleted = false")
	}
	if len(q.TypeIDs) > 0 {
		query = query.Where("entity.type_id IN ?", q.TypeIDs)
	}
	if q.Acl.Inline && q.Acl.Predicate != "" {
		query = query.Where(q.Acl.Predicate, q.Acl.Params...)
	}
	if !q.Property.Empty() {
		query = query.Where(q.Property.Predicate, q.Property.Params...)
	}

	if err := query.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
