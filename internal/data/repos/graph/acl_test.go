package graph

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/latticedb/lattice-backend/internal/data/repos/testutil"
	types "github.com/latticedb/lattice-backend/internal/domain"
	"github.com/latticedb/lattice-backend/internal/pkg/dbctx"
)

func TestAclRepoGetOrCreateByHash(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewAclRepo(db, testutil.Logger(t))

	u := uuid.New()
	g := uuid.New()
	entries := []types.AclEntry{
		{PrincipalType: types.PrincipalUser, PrincipalID: u, Permission: types.PermissionRead},
		{PrincipalType: types.PrincipalGroup, PrincipalID: g, Permission: types.PermissionWrite},
	}

	first, err := repo.GetOrCreateByHash(dbc, entries)
	if err != nil {
		t.Fatalf("GetOrCreateByHash: %v", err)
	}

	// permuted and duplicated input resolves to the same row
	again, err := repo.GetOrCreateByHash(dbc, []types.AclEntry{
		entries[1], entries[0], entries[0],
	})
	if err != nil {
		t.Fatalf("GetOrCreateByHash (permuted): %v", err)
	}
	if again.ID != first.ID {
		t.Fatalf("expected same acl row, got %d and %d", first.ID, again.ID)
	}

	stored, err := repo.GetEntries(dbc, first.ID)
	if err != nil {
		t.Fatalf("GetEntries: %v", err)
	}
	if len(stored) != 2 {
		t.Fatalf("stored entries = %d, want 2", len(stored))
	}

	other, err := repo.GetOrCreateByHash(dbc, entries[:1])
	if err != nil {
		t.Fatalf("GetOrCreateByHash (subset): %v", err)
	}
	if other.ID == first.ID {
		t.Fatal("distinct entry sets must map to distinct acl rows")
	}
}

func TestAclRepoAccessibleAclIDs(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewAclRepo(db, testutil.Logger(t))

	user := uuid.New()
	group := uuid.New()
	stranger := uuid.New()

	userRead := testutil.SeedAcl(t, ctx, tx, []types.AclEntry{
		{PrincipalType: types.PrincipalUser, PrincipalID: user, Permission: types.PermissionRead},
	})
	groupWrite := testutil.SeedAcl(t, ctx, tx, []types.AclEntry{
		{PrincipalType: types.PrincipalGroup, PrincipalID: group, Permission: types.PermissionWrite},
	})
	strangerOnly := testutil.SeedAcl(t, ctx, tx, []types.AclEntry{
		{PrincipalType: types.PrincipalUser, PrincipalID: stranger, Permission: types.PermissionRead},
	})

	principal := types.Principal{UserID: user, GroupIDs: []uuid.UUID{group}}

	// read is satisfied by read or write grants
	ids, err := repo.AccessibleAclIDs(dbc, principal, []types.Permission{types.PermissionRead, types.PermissionWrite})
	if err != nil {
		t.Fatalf("AccessibleAclIDs: %v", err)
	}
	got := map[int64]bool{}
	for _, id := range ids {
		got[id] = true
	}
	if !got[userRead] || !got[groupWrite] {
		t.Fatalf("expected acls %d and %d in %v", userRead, groupWrite, ids)
	}
	if got[strangerOnly] {
		t.Fatalf("stranger-only acl %d leaked into %v", strangerOnly, ids)
	}

	// write level ignores read-only grants
	ids, err = repo.AccessibleAclIDs(dbc, principal, []types.Permission{types.PermissionWrite})
	if err != nil {
		t.Fatalf("AccessibleAclIDs (write): %v", err)
	}
	got = map[int64]bool{}
	for _, id := range ids {
		got[id] = true
	}
	if got[userRead] {
		t.Fatalf("read-only acl %d granted write in %v", userRead, ids)
	}
	if !got[groupWrite] {
		t.Fatalf("group write acl %d missing from %v", groupWrite, ids)
	}
}
