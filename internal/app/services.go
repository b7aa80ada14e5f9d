package app

import (
	"github.com/yungbote/curriculum-backend/internal/platform/logger"
	"github.com/yungbote/curriculum-backend/internal/services"
)

type Services struct {
	Generation services.GenerationService
}

func wireServices(log *logger.Logger, core *Core, repos Repos) Services {
	log.Info("Wiring services...")
	return Services{
		Generation: services.NewGenerationService(log, core.Generator, core.Registry, core.Prompts, repos.GenerationRun),
	}
}
