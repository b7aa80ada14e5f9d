package app

import (
	"time"

	"github.com/yungbote/curriculum-backend/internal/clients/redis"
	"github.com/yungbote/curriculum-backend/internal/http"
	httpH "github.com/yungbote/curriculum-backend/internal/http/handlers"
	httpMW "github.com/yungbote/curriculum-backend/internal/http/middleware"
	"github.com/yungbote/curriculum-backend/internal/inference/config"
	"github.com/yungbote/curriculum-backend/internal/observability"
	"github.com/yungbote/curriculum-backend/internal/platform/logger"
)

const serviceName = "curriculum-backend"

type Handlers struct {
	Health     *httpH.HealthHandler
	Generation *httpH.GenerationHandler
	Document   *httpH.DocumentHandler
}

func wireHandlers(log *logger.Logger, core *Core, svcs Services) Handlers {
	log.Info("Wiring handlers...")
	h := Handlers{
		Health:     httpH.NewHealthHandler(),
		Generation: httpH.NewGenerationHandler(log, svcs.Generation),
	}
	if core.Renderer != nil {
		h.Document = httpH.NewDocumentHandler(log, core.Renderer)
	}
	return h
}

func wireServer(log *logger.Logger, cfg *config.Config, svcCfg ServiceConfig, clients Clients, m *observability.Metrics, h Handlers) *http.Server {
	rl := httpMW.RateLimitConfig{
		Limit:    svcCfg.RateLimitPerMinute,
		Window:   time.Minute,
		Fallback: httpMW.NewMemoryWindow(),
	}
	if clients.Redis != nil {
		rl.Store = redis.NewWindowCounter(clients.Redis, "curriculum:ratelimit")
	}
	return http.NewServer(cfg.HTTP, http.RouterConfig{
		Log:               log,
		ServiceName:       serviceName,
		Metrics:           m,
		CORSOrigins:       svcCfg.CORSOrigins,
		RateLimit:         rl,
		GenerationHandler: h.Generation,
		DocumentHandler:   h.Document,
		HealthHandler:     h.Health,
	})
}
