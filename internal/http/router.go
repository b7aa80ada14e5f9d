package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/curriculum-backend/internal/http/handlers"
	httpMW "github.com/yungbote/curriculum-backend/internal/http/middleware"
	"github.com/yungbote/curriculum-backend/internal/observability"
	"github.com/yungbote/curriculum-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log         *logger.Logger
	ServiceName string
	Metrics     *observability.Metrics

	CORSOrigins []string
	RateLimit   httpMW.RateLimitConfig

	GenerationHandler *httpH.GenerationHandler
	DocumentHandler   *httpH.DocumentHandler
	HealthHandler     *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.SecurityHeaders())
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/health", cfg.HealthHandler.Health)
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapF(cfg.Metrics.WriteHTTP))
	}

	// Generation
	if cfg.GenerationHandler != nil {
		limited := r.Group("/", httpMW.RateLimit(cfg.Log, cfg.Metrics, cfg.RateLimit))
		limited.POST("/generate", cfg.GenerationHandler.Generate)
		limited.POST("/generate-stream", cfg.GenerationHandler.GenerateStream)

		api := r.Group("/api")
		api.GET("/models", cfg.GenerationHandler.Models)
		api.GET("/sessions", cfg.GenerationHandler.ListSessions)
		api.GET("/sessions/:id", cfg.GenerationHandler.GetSession)
	}

	// Documents
	if cfg.DocumentHandler != nil {
		r.GET("/download/:filename", cfg.DocumentHandler.Download)
	}

	return r
}
