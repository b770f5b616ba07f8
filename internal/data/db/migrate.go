package db

import (
	"fmt"

	types "github.com/latticedb/lattice-backend/internal/domain"
	"gorm.io/gorm"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		// Type registries
		&types.EntityType{},
		&types.LinkType{},

		// Access control
		&types.Acl{},
		&types.AclEntry{},

		// Version-chained graph rows
		&types.Entity{},
		&types.Link{},
	)
}

func EnsureGraphIndexes(db *gorm.DB) error {
	// uuid-ossp is already enabled in NewPostgresService, but safe to re-run
	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`).Error; err != nil {
		return fmt.Errorf("enable uuid-ossp: %w", err)
	}

	// Hop expansion: latest links by endpoint and type.
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_link_source_latest
		ON link (source_entity_id, type_id)
		WHERE is_latest;
	`).Error; err != nil {
		return fmt.Errorf("create idx_link_source_latest: %w", err)
	}
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_link_target_latest
		ON link (target_entity_id, type_id)
		WHERE is_latest;
	`).Error; err != nil {
		return fmt.Errorf("create idx_link_target_latest: %w", err)
	}

	// Latest-row lookups per chain.
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_entity_latest
		ON entity (id)
		WHERE is_latest;
	`).Error; err != nil {
		return fmt.Errorf("create idx_entity_latest: %w", err)
	}

	// Chain walks follow previous_version_id in both directions.
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_entity_prev_version
		ON entity (previous_version_id)
		WHERE previous_version_id IS NOT NULL;
	`).Error; err != nil {
		return fmt.Errorf("create idx_entity_prev_version: %w", err)
	}
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_link_prev_version
		ON link (previous_version_id)
		WHERE previous_version_id IS NOT NULL;
	`).Error; err != nil {
		return fmt.Errorf("create idx_link_prev_version: %w", err)
	}

	// Property filters hit the jsonb documents of latest rows.
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_entity_properties
		ON entity
		USING GIN (properties)
		WHERE is_latest;
	`).Error; err != nil {
		return fmt.Errorf("create idx_entity_properties: %w", err)
	}

	// ACL resolution: entries by principal.
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_acl_entry_principal
		ON acl_entry (principal_type, principal_id, permission);
	`).Error; err != nil {
		return fmt.Errorf("create idx_acl_entry_principal: %w", err)
	}

	return nil
}

func (s *PostgresService) AutoMigrateAll() error {
	s.log.Info("Auto migrating postgres tables...")
	if err := AutoMigrateAll(s.db); err != nil {
		s.log.Error("Auto migration failed", "error", err)
		return err
	}
	if err := EnsureGraphIndexes(s.db); err != nil {
		s.log.Error("Graph index migration failed", "error", err)
		return err
	}
	return nil
}
