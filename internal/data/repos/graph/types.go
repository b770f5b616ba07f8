package graph

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/latticedb/lattice-backend/internal/domain"
	"github.com/latticedb/lattice-backend/internal/pkg/dbctx"
	"github.com/latticedb/lattice-backend/internal/platform/logger"
)

// TypeRepo manages the entity/link type registries.
type TypeRepo interface {
	UpsertEntityType(dbc dbctx.Context, name string) (*types.EntityType, error)
	UpsertLinkType(dbc dbctx.Context, name string) (*types.LinkType, error)
	GetEntityTypes(dbc dbctx.Context) ([]types.EntityType, error)
	GetLinkTypes(dbc dbctx.Context) ([]types.LinkType, error)
}

type typeRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTypeRepo(db *gorm.DB, baseLog *logger.Logger) TypeRepo {
	return &typeRepo{db: db, log: baseLog.With("repo", "TypeRepo")}
}

func (r *typeRepo) UpsertEntityType(dbc dbctx.Context, name string) (*types.EntityType, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	row := &types.EntityType{ID: uuid.New(), Name: name}
	if err := t.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoNothing: true,
		}).
		Create(row).Error; err != nil {
		return nil, err
	}
	// conflict leaves row.ID unset to the stored value; re-read by name
	var stored types.EntityType
	if err := t.WithContext(dbc.Ctx).Where("name = ?", name).First(&stored).Error; err != nil {
		return nil, err
	}
	return &stored, nil
}

func (r *typeRepo) UpsertLinkType(dbc dbctx.Context, name string) (*types.LinkType, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	row := &types.LinkType{ID: uuid.New(), Name: name}
	if err := t.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoNothing: true,
		}).
		Create(row).Error; err != nil {
		return nil, err
	}
	var stored types.LinkType
	if err := t.WithContext(dbc.Ctx).Where("name = ?", name).First(&stored).Error; err != nil {
		return nil, err
	}
	return &stored, nil
}

func (r *typeRepo) GetEntityTypes(dbc dbctx.Context) ([]types.EntityType, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var rows []types.EntityType
	if err := t.WithContext(dbc.Ctx).Order("name ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *typeRepo) GetLinkTypes(dbc dbctx.Context) ([]types.LinkType, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var rows []types.LinkType
	if err := t.WithContext(dbc.Ctx).Order("name ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
