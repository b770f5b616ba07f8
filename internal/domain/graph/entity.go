package graph

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Entity is one immutable row in a version chain. A logical entity is the chain of
// rows linked through PreviousVersionID; exactly one row per chain has IsLatest set.
type Entity struct {
	ID                uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	TypeID            uuid.UUID      `gorm:"type:uuid;column:type_id;not null;index" json:"type_id"`
	Properties        datatypes.JSON `gorm:"column:properties;type:jsonb" json:"properties"`
	Version           int            `gorm:"column:version;not null;default:1" json:"version"`
	PreviousVersionID *uuid.UUID     `gorm:"type:uuid;column:previous_version_id;index" json:"previous_version_id,omitempty"`
	AclID             *int64         `gorm:"column:acl_id;index" json:"acl_id,omitempty"`
	CreatedAt         time.Time      `gorm:"not null;default:now()" json:"created_at"`
	CreatedBy         *uuid.UUID     `gorm:"type:uuid;column:created_by" json:"created_by,omitempty"`
	IsDeleted         bool           `gorm:"column:is_deleted;not null;default:false" json:"is_deleted"`
	IsLatest          bool           `gorm:"column:is_latest;not null;default:true;index" json:"is_latest"`
}

func (Entity) TableName() string { return "entity" }

func (e *Entity) AclRef() *int64 { return e.AclID }

// EntityType is a registry row naming an entity type. Traversal type filters
// reference these by id.
type EntityType struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Name      string    `gorm:"column:name;not null;uniqueIndex" json:"name"`
	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (EntityType) TableName() string { return "entity_type" }
