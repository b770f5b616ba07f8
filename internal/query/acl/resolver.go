// Package acl resolves which access-control lists a principal may reach at a
// given permission level, and turns the result into query predicates or a
// client-side post-filter. Hashing and grant blending are pure; only id
// resolution touches the store.
package acl

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/latticedb/lattice-backend/internal/domain/graph"
	"github.com/latticedb/lattice-backend/internal/pkg/dbctx"
	"github.com/latticedb/lattice-backend/internal/platform/logger"
)

// InlineThreshold is the largest accessible-id set that still compiles into an
// inline IN clause. Larger sets direct the caller to post-filter instead.
const InlineThreshold = 1000

// grantedBy maps a requested permission to the entry permissions that satisfy
// it. write implies read. New levels extend the table, not the call sites.
var grantedBy = map[graph.Permission][]graph.Permission{
	graph.PermissionRead:  {graph.PermissionRead, graph.PermissionWrite},
	graph.PermissionWrite: {graph.PermissionWrite},
}

// GrantingPermissions returns the entry permissions that grant the requested
// level, or nil for an unknown level.
func GrantingPermissions(p graph.Permission) []graph.Permission {
	return grantedBy[p]
}

// Canonicalize collapses duplicates and sorts entries into the fixed total
// order (principal_type, principal_id, permission) the content hash is
// computed over.
func Canonicalize(entries []graph.AclEntry) []graph.AclEntry {
	seen := make(map[string]struct{}, len(entries))
	out := make([]graph.AclEntry, 0, len(entries))
	for _, e := range entries {
		k := fmt.Sprintf("%s:%s:%s", e.PrincipalType, e.PrincipalID, e.Permission)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.PrincipalType != b.PrincipalType {
			return a.PrincipalType < b.PrincipalType
		}
		if a.PrincipalID != b.PrincipalID {
			return a.PrincipalID.String() < b.PrincipalID.String()
		}
		return a.Permission < b.Permission
	})
	return out
}

// ComputeHash digests an entry set into its canonical content hash. The entry
// list is treated as a structural set: duplicates collapse and order never
// matters, so any permutation of the same effective set hashes identically.
func ComputeHash(entries []graph.AclEntry) string {
	h := sha256.New()
	for _, e := range Canonicalize(entries) {
		fmt.Fprintf(h, "%s:%s:%s\n", e.PrincipalType, e.PrincipalID, e.Permission)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Clause is the result of BuildFilterClause. When Inline is false the caller
// must apply FilterByPermission to the fetched rows instead of pushing the
// predicate into the query.
type Clause struct {
	Inline    bool
	Predicate string
	Params    []any
}

// BuildFilterClause renders the accessible-id set as an inline predicate on
// alias.acl_id. Public rows (acl_id IS NULL) always pass.
func BuildFilterClause(ids map[int64]struct{}, alias string) Clause {
	col := "acl_id"
	if alias != "" {
		col = alias + ".acl_id"
	}
	if len(ids) > InlineThreshold {
		return Clause{Inline: false}
	}
	if len(ids) == 0 {
		return Clause{Inline: true, Predicate: col + " IS NULL"}
	}

	list := make([]int64, 0, len(ids))
	for id := range ids {
		list = append(list, id)
	}
	sort.Slice(list, func(i, j int) bool { return list[i] < list[j] })

	return Clause{
		Inline:    true,
		Predicate: "(" + col + " IS NULL OR " + col + " IN ?)",
		Params:    []any{list},
	}
}

// FilterByPermission keeps rows that are public or whose acl_id is in the
// accessible set, preserving input order. This is the fallback applied
// whenever BuildFilterClause signals non-inline.
func FilterByPermission[T graph.AclCarrier](items []T, ids map[int64]struct{}) []T {
	out := make([]T, 0, len(items))
	for _, item := range items {
		ref := item.AclRef()
		if ref == nil {
			out = append(out, item)
			continue
		}
		if _, ok := ids[*ref]; ok {
			out = append(out, item)
		}
	}
	return out
}

// Accessible checks a single acl_id against the accessible set. nil is public.
func Accessible(aclID *int64, ids map[int64]struct{}) bool {
	if aclID == nil {
		return true
	}
	_, ok := ids[*aclID]
	return ok
}

// EntryStore is the slice of the ACL repository the resolver needs.
type EntryStore interface {
	AccessibleAclIDs(dbc dbctx.Context, principal graph.Principal, permissions []graph.Permission) ([]int64, error)
}

// Cache is an optional advisory cache for resolved id sets.
type Cache interface {
	GetIDs(ctx context.Context, key string) ([]int64, bool, error)
	SetIDs(ctx context.Context, key string, ids []int64) error
}

type Resolver struct {
	store EntryStore
	cache Cache
	log   *logger.Logger
	sf    singleflight.Group
}

func NewResolver(store EntryStore, cache Cache, baseLog *logger.Logger) *Resolver {
	return &Resolver{store: store, cache: cache, log: baseLog.With("component", "AclResolver")}
}

// AccessibleAclIDs resolves every acl id the principal can reach at the given
// permission level. Unauthenticated principals reach nothing beyond public
// rows, so the set is empty. Cache failures are logged and ignored.
func (r *Resolver) AccessibleAclIDs(ctx context.Context, principal graph.Principal, permission graph.Permission) (map[int64]struct{}, error) {
	perms := GrantingPermissions(permission)
	if perms == nil {
		return nil, fmt.Errorf("unknown permission %q", permission)
	}
	if !principal.Authenticated() {
		return map[int64]struct{}{}, nil
	}

	key := cacheKey(principal, permission)
	v, err, _ := r.sf.Do(key, func() (interface{}, error) {
		if r.cache != nil {
			if ids, ok, cerr := r.cache.GetIDs(ctx, key); cerr != nil {
				r.log.Warn("acl cache read failed", "error", cerr)
			} else if ok {
				return ids, nil
			}
		}

		ids, err := r.store.AccessibleAclIDs(dbctx.New(ctx), principal, perms)
		if err != nil {
			return nil, err
		}

		if r.cache != nil {
			if cerr := r.cache.SetIDs(ctx, key, ids); cerr != nil {
				r.log.Warn("acl cache write failed", "error", cerr)
			}
		}
		return ids, nil
	})
	if err != nil {
		return nil, err
	}

	ids := v.([]int64)
	out := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out, nil
}

func cacheKey(principal graph.Principal, permission graph.Permission) string {
	parts := make([]string, 0, len(principal.GroupIDs)+1)
	for _, id := range principal.PrincipalIDs() {
		parts = append(parts, id.String())
	}
	sort.Strings(parts[1:]) // group order is irrelevant; user id stays first

	h := sha256.Sum256([]byte(strings.Join(parts, ",")))
	return "acl:" + string(permission) + ":" + hex.EncodeToString(h[:8])
}
