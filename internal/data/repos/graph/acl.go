package graph

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	types "github.com/latticedb/lattice-backend/internal/domain"
	"github.com/latticedb/lattice-backend/internal/pkg/dbctx"
	pkgerrors "github.com/latticedb/lattice-backend/internal/pkg/errors"
	"github.com/latticedb/lattice-backend/internal/platform/logger"
	"github.com/latticedb/lattice-backend/internal/query/acl"
)

const pgUniqueViolation = "23505"

type AclRepo interface {
	// GetOrCreateByHash resolves the entry set to an existing Acl by content
	// hash, creating the Acl and its canonical entries on first sight.
	GetOrCreateByHash(dbc dbctx.Context, entries []types.AclEntry) (*types.Acl, error)
	GetByID(dbc dbctx.Context, id int64) (*types.Acl, error)
	GetEntries(dbc dbctx.Context, aclID int64) ([]types.AclEntry, error)

	AccessibleAclIDs(dbc dbctx.Context, principal types.Principal, permissions []types.Permission) ([]int64, error)
}

type aclRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAclRepo(db *gorm.DB, baseLog *logger.Logger) AclRepo {
	return &aclRepo{db: db, log: baseLog.With("repo", "AclRepo")}
}

func (r *aclRepo) GetOrCreateByHash(dbc dbctx.Context, entries []types.AclEntry) (*types.Acl, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}

	canonical := acl.Canonicalize(entries)
	hash := acl.ComputeHash(canonical)

	var existing types.Acl
	err := t.WithContext(dbc.Ctx).Where("content_hash = ?", hash).First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	row := &types.Acl{ContentHash: hash}
	if err := t.WithContext(dbc.Ctx).Create(row).Error; err != nil {
		// a concurrent writer may have inserted the same hash; fall back to it
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			if err := t.WithContext(dbc.Ctx).Where("content_hash = ?", hash).First(&existing).Error; err != nil {
				return nil, err
			}
			return &existing, nil
		}
		return nil, err
	}

	for i := range canonical {
		canonical[i].AclID = row.ID
	}
	if len(canonical) > 0 {
		if err := t.WithContext(dbc.Ctx).Create(&canonical).Error; err != nil {
			return nil, err
		}
	}
	return row, nil
}

func (r *aclRepo) GetByID(dbc dbctx.Context, id int64) (*types.Acl, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var row types.Acl
	if err := t.WithContext(dbc.Ctx).Where("id = ?", id).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("acl %d: %w", id, pkgerrors.ErrNotFound)
		}
		return nil, err
	}
	return &row, nil
}

func (r *aclRepo) GetEntries(dbc dbctx.Context, aclID int64) ([]types.AclEntry, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var rows []types.AclEntry
	if err := t.WithContext(dbc.Ctx).
		Where("acl_id = ?", aclID).
		Order("principal_type ASC, principal_id ASC, permission ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *aclRepo) AccessibleAclIDs(dbc dbctx.Context, principal types.Principal, permissions []types.Permission) ([]int64, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []int64
	if !principal.Authenticated() || len(permissions) == 0 {
		return out, nil
	}

	query := t.WithContext(dbc.Ctx).
		Model(&types.AclEntry{}).
		Distinct("acl_id").
		Where("permission IN ?", permissions)

	if len(principal.GroupIDs) > 0 {
		query = query.Where(
			"(principal_type = ? AND principal_id = ?) OR (principal_type = ? AND principal_id IN ?)",
			types.PrincipalUser, principal.UserID,
			types.PrincipalGroup, principal.GroupIDs,
		)
	} else {
		query = query.Where(
			"principal_type = ? AND principal_id = ?",
			types.PrincipalUser, principal.UserID,
		)
	}

	if err := query.Pluck("acl_id", &out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
