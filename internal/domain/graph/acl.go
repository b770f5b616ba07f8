package graph

import (
	"time"

	"github.com/google/uuid"
)

type Permission string

const (
	PermissionRead  Permission = "read"
	PermissionWrite Permission = "write"
)

type PrincipalType string

const (
	PrincipalUser  PrincipalType = "user"
	PrincipalGroup PrincipalType = "group"
)

// Acl is an immutable, hash-identified set of grants. Resources point at an Acl by
// id; a nil acl_id means public. Permission changes never mutate an Acl in place,
// they repoint the resource at an existing or new row found by ContentHash.
type Acl struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ContentHash string    `gorm:"column:content_hash;not null;uniqueIndex" json:"content_hash"`
	CreatedAt   time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (Acl) TableName() string { return "acl" }

// AclEntry grants one permission to one principal. Entries form a structural set;
// duplicates collapse under the canonical hash.
type AclEntry struct {
	AclID         int64         `gorm:"column:acl_id;not null;primaryKey;autoIncrement:false" json:"acl_id"`
	PrincipalType PrincipalType `gorm:"column:principal_type;not null;primaryKey" json:"principal_type"`
	PrincipalID   uuid.UUID     `gorm:"type:uuid;column:principal_id;not null;primaryKey" json:"principal_id"`
	Permission    Permission    `gorm:"column:permission;not null;primaryKey" json:"permission"`
}

func (AclEntry) TableName() string { return "acl_entry" }

// AclCarrier is implemented by rows gated through an acl_id column.
type AclCarrier interface {
	AclRef() *int64
}

// Principal identifies the caller. The zero value is the unauthenticated principal.
// Group membership is resolved by the identity layer and carried here.
type Principal struct {
	UserID   uuid.UUID
	GroupIDs []uuid.UUID
}

func (p Principal) Authenticated() bool { return p.UserID != uuid.Nil }

// PrincipalIDs returns every id the principal acts as, user id first.
func (p Principal) PrincipalIDs() []uuid.UUID {
	out := make([]uuid.UUID, 0, len(p.GroupIDs)+1)
	if p.UserID != uuid.Nil {
		out = append(out, p.UserID)
	}
	return append(out, p.GroupIDs...)
}
