package graph

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/latticedb/lattice-backend/internal/data/repos/testutil"
	types "github.com/latticedb/lattice-backend/internal/domain"
	"github.com/latticedb/lattice-backend/internal/pkg/dbctx"
	"github.com/latticedb/lattice-backend/internal/query/acl"
)

func TestLinkRepoVersionChain(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewLinkRepo(db, testutil.Logger(t))

	et := testutil.SeedEntityType(t, ctx, tx, "node")
	lt := testutil.SeedLinkType(t, ctx, tx, "refers_to")
	a := testutil.SeedEntity(t, ctx, tx, et.ID, "", nil)
	b := testutil.SeedEntity(t, ctx, tx, et.ID, "", nil)

	v1 := testutil.SeedLink(t, ctx, tx, lt.ID, a.ID, b.ID, nil)

	v2, err := repo.CreateVersion(dbc, &types.Link{
		TypeID:            lt.ID,
		SourceEntityID:    a.ID,
		TargetEntityID:    b.ID,
		PreviousVersionID: testutil.PtrUUID(v1.ID),
	})
	if err != nil {
		t.Fatalf("CreateVersion: %v", err)
	}
	if v2.Version != 2 {
		t.Fatalf("v2.Version = %d", v2.Version)
	}

	got, err := repo.ResolveLatest(dbc, v1.ID)
	if err != nil {
		t.Fatalf("ResolveLatest: %v", err)
	}
	if got.ID != v2.ID {
		t.Fatalf("ResolveLatest = %s, want %s", got.ID, v2.ID)
	}

	history, err := repo.GetHistory(dbc, v1.ID)
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	if len(history) != 2 || history[0].Version != 2 {
		t.Fatalf("GetHistory = %v", history)
	}
}

func TestLinkRepoOneHop(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewLinkRepo(db, testutil.Logger(t))

	et := testutil.SeedEntityType(t, ctx, tx, "node")
	follows := testutil.SeedLinkType(t, ctx, tx, "follows")
	blocks := testutil.SeedLinkType(t, ctx, tx, "blocks")

	a := testutil.SeedEntity(t, ctx, tx, et.ID, "", nil)
	b := testutil.SeedEntity(t, ctx, tx, et.ID, "", nil)
	c := testutil.SeedEntity(t, ctx, tx, et.ID, "", nil)

	reader := uuid.New()
	aclID := testutil.SeedReadAcl(t, ctx, tx, reader)

	ab := testutil.SeedLink(t, ctx, tx, follows.ID, a.ID, b.ID, nil)
	ac := testutil.SeedLink(t, ctx, tx, blocks.ID, a.ID, c.ID, nil)
	gated := testutil.SeedLink(t, ctx, tx, follows.ID, a.ID, c.ID, &aclID)
	inbound := testutil.SeedLink(t, ctx, tx, follows.ID, b.ID, a.ID, nil)

	openClause := acl.Clause{Inline: true, Predicate: "link.acl_id IS NULL"}

	t.Run("outbound", func(t *testing.T) {
		rows, err := repo.OneHop(dbc, HopQuery{EndpointIDs: []uuid.UUID{a.ID}, Acl: openClause})
		if err != nil {
			t.Fatalf("OneHop: %v", err)
		}
		got := map[uuid.UUID]bool{}
		for _, l := range rows {
			got[l.ID] = true
		}
		if !got[ab.ID] || !got[ac.ID] {
			t.Fatalf("missing outbound links in %v", got)
		}
		if got[gated.ID] {
			t.Fatal("acl-gated link leaked")
		}
		if got[inbound.ID] {
			t.Fatal("inbound link returned for outbound hop")
		}
	})

	t.Run("inbound", func(t *testing.T) {
		rows, err := repo.OneHop(dbc, HopQuery{EndpointIDs: []uuid.UUID{a.ID}, Inbound: true, Acl: openClause})
		if err != nil {
			t.Fatalf("OneHop: %v", err)
		}
		if len(rows) != 1 || rows[0].ID != inbound.ID {
			t.Fatalf("rows = %v", rows)
		}
	})

	t.Run("link type filter", func(t *testing.T) {
		rows, err := repo.OneHop(dbc, HopQuery{
			EndpointIDs: []uuid.UUID{a.ID},
			TypeIDs:     []uuid.UUID{blocks.ID},
			Acl:         openClause,
		})
		if err != nil {
			t.Fatalf("OneHop: %v", err)
		}
		if len(rows) != 1 || rows[0].ID != ac.ID {
			t.Fatalf("rows = %v", rows)
		}
	})

	t.Run("reader sees the gated link", func(t *testing.T) {
		clause := acl.BuildFilterClause(map[int64]struct{}{aclID: {}}, "link")
		rows, err := repo.OneHop(dbc, HopQuery{EndpointIDs: []uuid.UUID{a.ID}, Acl: clause})
		if err != nil {
			t.Fatalf("OneHop: %v", err)
		}
		found := false
		for _, l := range rows {
			if l.ID == gated.ID {
				found = true
			}
		}
		if !found {
			t.Fatal("reader should see the gated link")
		}
	})

	t.Run("empty frontier", func(t *testing.T) {
		rows, err := repo.OneHop(dbc, HopQuery{Acl: openClause})
		if err != nil || len(rows) != 0 {
			t.Fatalf("rows=%v err=%v", rows, err)
		}
	})
}
