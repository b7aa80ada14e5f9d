package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/curriculum-backend/internal/data/repos/generation"
	"github.com/yungbote/curriculum-backend/internal/platform/logger"
)

type Repos struct {
	GenerationRun generation.RunRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		GenerationRun: generation.NewRunRepo(db, log),
	}
}
