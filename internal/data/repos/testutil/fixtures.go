package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	types "github.com/latticedb/lattice-backend/internal/domain"
	"github.com/latticedb/lattice-backend/internal/query/acl"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func SeedEntityType(tb testing.TB, ctx context.Context, tx *gorm.DB, name string) *types.EntityType {
	tb.Helper()
	et := &types.EntityType{
		ID:   uuid.New(),
		Name: name,
	}
	if err := tx.WithContext(ctx).Create(et).Error; err != nil {
		tb.Fatalf("seed entity type: %v", err)
	}
	return et
}

func SeedLinkType(tb testing.TB, ctx context.Context, tx *gorm.DB, name string) *types.LinkType {
	tb.Helper()
	lt := &types.LinkType{
		ID:   uuid.New(),
		Name: name,
	}
	if err := tx.WithContext(ctx).Create(lt).Error; err != nil {
		tb.Fatalf("seed link type: %v", err)
	}
	return lt
}

func SeedEntity(tb testing.TB, ctx context.Context, tx *gorm.DB, typeID uuid.UUID, properties string, aclID *int64) *types.Entity {
	tb.Helper()
	if properties == "" {
		properties = "{}"
	}
	e := &types.Entity{
		ID:         uuid.New(),
		TypeID:     typeID,
		Properties: datatypes.JSON([]byte(properties)),
		Version:    1,
		AclID:      aclID,
		IsLatest:   true,
	}
	if err := tx.WithContext(ctx).Create(e).Error; err != nil {
		tb.Fatalf("seed entity: %v", err)
	}
	return e
}

// SeedEntityVersion appends a new version row after prev and flips prev off the
// latest flag, the same shape repo CreateVersion produces.
func SeedEntityVersion(tb testing.TB, ctx context.Context, tx *gorm.DB, prev *types.Entity, properties string) *types.Entity {
	tb.Helper()
	if properties == "" {
		properties = "{}"
	}
	if err := tx.WithContext(ctx).Model(&types.Entity{}).
		Where("id = ?", prev.ID).
		Update("is_latest", false).Error; err != nil {
		tb.Fatalf("seed entity version (flip latest): %v", err)
	}
	e := &types.Entity{
		ID:                uuid.New(),
		TypeID:            prev.TypeID,
		Properties:        datatypes.JSON([]byte(properties)),
		Version:           prev.Version + 1,
		PreviousVersionID: PtrUUID(prev.ID),
		AclID:             prev.AclID,
		IsLatest:          true,
	}
	if err := tx.WithContext(ctx).Create(e).Error; err != nil {
		tb.Fatalf("seed entity version: %v", err)
	}
	return e
}

func SeedLink(tb testing.TB, ctx context.Context, tx *gorm.DB, typeID, sourceID, targetID uuid.UUID, aclID *int64) *types.Link {
	tb.Helper()
	l := &types.Link{
		ID:             uuid.New(),
		TypeID:         typeID,
		SourceEntityID: sourceID,
		TargetEntityID: targetID,
		Properties:     datatypes.JSON([]byte("{}")),
		Version:        1,
		AclID:          aclID,
		IsLatest:       true,
	}
	if err := tx.WithContext(ctx).Create(l).Error; err != nil {
		tb.Fatalf("seed link: %v", err)
	}
	return l
}

// SeedAcl inserts an acl row with its canonical entries and returns the id.
func SeedAcl(tb testing.TB, ctx context.Context, tx *gorm.DB, entries []types.AclEntry) int64 {
	tb.Helper()
	canonical := acl.Canonicalize(entries)
	row := &types.Acl{ContentHash: acl.ComputeHash(canonical)}
	if err := tx.WithContext(ctx).Create(row).Error; err != nil {
		tb.Fatalf("seed acl: %v", err)
	}
	for i := range canonical {
		canonical[i].AclID = row.ID
	}
	if len(canonical) > 0 {
		if err := tx.WithContext(ctx).Create(&canonical).Error; err != nil {
			tb.Fatalf("seed acl entries: %v", err)
		}
	}
	return row.ID
}

// SeedReadAcl grants read to a single user principal.
func SeedReadAcl(tb testing.TB, ctx context.Context, tx *gorm.DB, userID uuid.UUID) int64 {
	tb.Helper()
	return SeedAcl(tb, ctx, tx, []types.AclEntry{
		{PrincipalType: types.PrincipalUser, PrincipalID: userID, Permission: types.PermissionRead},
	})
}

func PtrUUID(v uuid.UUID) *uuid.UUID { return &v }

func PtrInt64(v int64) *int64 { return &v }

func PtrTime(v time.Time) *time.Time { return &v }
