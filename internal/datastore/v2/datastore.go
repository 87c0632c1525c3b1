// Package datastore opens and migrates the worker's SQLite database.
package datastore

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gorm_logger "gorm.io/gorm/logger"

	"github.com/tempoapp/tempo-worker/internal/datastore/v2/entities"
)

// Open opens (or creates) the SQLite database at path and migrates the
// schema. Foreign keys are enforced so cascade deletes work.
func Open(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path+"?_foreign_keys=ON"), &gorm.Config{
		Logger: gorm_logger.Default.LogMode(gorm_logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate applies the schema for all worker entities.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&entities.User{},
		&entities.PushToken{},
		&entities.Reminder{},
		&entities.PermissionFlowState{},
		&entities.PermissionHistoryItem{},
		&entities.SyncMutation{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}
