package persistence

import (
	"fmt"

	"github.com/codefuse-ai/modelcache/internal/database"
)

// AutoMigrate runs GORM auto migration for all scalar store models.
func AutoMigrate(db database.Database) error {
	if err := db.GORM().AutoMigrate(
		&EntryModel{},
		&QueryLogModel{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
