package graph

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Link connects two entities. Endpoints may reference any version row of the
// target chain; traversal resolves them to the latest member before following.
// Links carry their own version chain with the same shape as entities.
type Link struct {
	ID                uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	TypeID            uuid.UUID      `gorm:"type:uuid;column:type_id;not null;index" json:"type_id"`
	SourceEntityID    uuid.UUID      `gorm:"type:uuid;column:source_entity_id;not null;index" json:"source_entity_id"`
	TargetEntityID    uuid.UUID      `gorm:"type:uuid;column:target_entity_id;not null;index" json:"target_entity_id"`
	Properties        datatypes.JSON `gorm:"column:properties;type:jsonb" json:"properties"`
	Version           int            `gorm:"column:version;not null;default:1" json:"version"`
	PreviousVersionID *uuid.UUID     `gorm:"type:uuid;column:previous_version_id;index" json:"previous_version_id,omitempty"`
	AclID             *int64         `gorm:"column:acl_id;index" json:"acl_id,omitempty"`
	CreatedAt         time.Time      `gorm:"not null;default:now()" json:"created_at"`
	CreatedBy         *uuid.UUID     `gorm:"type:uuid;column:created_by" json:"created_by,omitempty"`
	IsDeleted         bool           `gorm:"column:is_deleted;not null;default:false" json:"is_deleted"`
	IsLatest          bool           `gorm:"column:is_latest;not null;default:true;index" json:"is_latest"`
}

func (Link) TableName() string { return "link" }

func (l *Link) AclRef() *int64 { return l.AclID }

type LinkType struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Name      string    `gorm:"column:name;not null;uniqueIndex" json:"name"`
	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (LinkType) TableName() string { return "link_type" }
