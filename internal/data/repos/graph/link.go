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
)

// HopQuery fetches one traversal wave of latest links. EndpointIDs must hold
// every chain member id of the frontier so links pointing at stale versions
// still match.
type HopQuery struct {
	EndpointIDs    []uuid.UUID
	Inbound        bool
	TypeIDs        []uuid.UUID
	IncludeDeleted bool
	Acl            acl.Clause
}

type LinkRepo interface {
	Create(dbc dbctx.Context, rows []*types.Link) ([]*types.Link, error)
	CreateVersion(dbc dbctx.Context, next *types.Link) (*types.Link, error)

	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Link, error)
	ResolveLatest(dbc dbctx.Context, id uuid.UUID) (*types.Link, error)
	GetHistory(dbc dbctx.Context, id uuid.UUID) ([]*types.Link, error)

	OneHop(dbc dbctx.Context, q HopQuery) ([]*types.Link, error)
}

type linkRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewLinkRepo(db *gorm.DB, baseLog *logger.Logger) LinkRepo {
	return &linkRepo{db: db, log: baseLog.With("repo", "LinkRepo")}
}

func (r *linkRepo) Create(dbc dbctx.Context, rows []*types.Link) ([]*types.Link, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if len(rows) == 0 {
		return []*types.Link{}, nil
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

func (r *linkRepo) CreateVersion(dbc dbctx.Context, next *types.Link) (*types.Link, error) {
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
		Model(&types.Link{}).
		Where("id = ?", prior.ID).
		Update("is_latest", false).Error; err != nil {
		return nil, err
	}
	if err := t.WithContext(dbc.Ctx).Create(next).Error; err != nil {
		return nil, err
	}
	return next, nil
}

func (r *linkRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Link, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var row types.Link
	if err := t.WithContext(dbc.Ctx).Where("id = ?", id).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("link %s: %w", id, pkgerrors.ErrNotFound)
		}
		return nil, err
	}
	return &row, nil
}

func (r *linkRepo) ResolveLatest(dbc dbctx.Context, id uuid.UUID) (*types.Link, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}

	var row types.Link
	err := t.WithContext(dbc.Ctx).Where("id = ? AND is_latest", id).First(&row).Error
	if err == nil {
		return &row, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	err = t.WithContext(dbc.Ctx).Raw(`
WITH RECURSIVE chain AS (
	SELECT * FROM link WHERE id = ?
	UNION ALL
	SELECT l.* FROM link l JOIN chain c ON l.previous_version_id = c.id
)
SELECT * FROM chain WHERE is_latest LIMIT 1
`, id).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("link %s: %w", id, pkgerrors.ErrNotFound)
		}
		return nil, err
	}
	return &row, nil
}

func (r *linkRepo) GetHistory(dbc dbctx.Context, id uuid.UUID) ([]*types.Link, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}

	latest, err := r.ResolveLatest(dbc, id)
	if err != nil {
		return nil, err
	}

	var rows []*types.Link
	err = t.WithContext(dbc.Ctx).Raw(`
WITH RECURSIVE history AS (
	SELECT * FROM link WHERE id = ?
	UNION ALL
	SELECT l.* FROM link l JOIN history h ON l.id = h.previous_version_id
)
SELECT * FROM history ORDER BY version DESC
`, latest.ID).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *linkRepo) OneHop(dbc dbctx.Context, q HopQuery) ([]*types.Link, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.Link
	if len(q.EndpointIDs) == 0 {
		return out, nil
	}

	endpoint := "link.source_entity_id"
	if q.Inbound {
		endpoint = "link.target_entity_id"
	}

	query := t.WithContext(dbc.Ctx).
		Where("link.is_latest").
		Where(endpoint+" IN ?", q.EndpointIDs)
	if !q.IncludeDeleted {
		query = query.Where("link.is_deleted = false")
	}
	if len(q.TypeIDs) > 0 {
		query = query.Where("link.type_id IN ?", q.TypeIDs)
	}
	if q.Acl.Inline && q.Acl.Predicate != "" {
		query = query.Where(q.Acl.Predicate, q.Acl.Params...)
	}

	if err := query.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
