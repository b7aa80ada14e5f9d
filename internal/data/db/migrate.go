package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/curriculum-backend/internal/domain"
)

func AutoMigrateAll(db *gorm.DB) error {
	if err := db.AutoMigrate(&domain.GenerationRun{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	// Stale-run recovery scans by status and age.
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_generation_run_status_updated
		ON generation_run (status, updated_at);
	`).Error; err != nil {
		return fmt.Errorf("create idx_generation_run_status_updated: %w", err)
	}

	// Recent-run listing.
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_generation_run_created_desc
		ON generation_run (created_at DESC);
	`).Error; err != nil {
		return fmt.Errorf("create idx_generation_run_created_desc: %w", err)
	}
	return nil
}
