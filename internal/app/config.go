package app

import (
	"time"

	"github.com/joho/godotenv"

	"github.com/yungbote/curriculum-backend/internal/platform/envutil"
)

// ServiceConfig holds the HTTP-service settings that live outside the
// curriculum YAML config.
type ServiceConfig struct {
	Version            string
	CORSOrigins        []string
	RateLimitPerMinute int
	StaleRunAfter      time.Duration
}

// LoadDotEnv reads .env files when present. Variables already set win.
func LoadDotEnv(files ...string) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		_ = godotenv.Load(f)
	}
}

func LoadServiceConfig() ServiceConfig {
	return ServiceConfig{
		Version:            envutil.String("SERVICE_VERSION", "dev"),
		CORSOrigins:        envutil.List("CORS_ALLOWED_ORIGINS", nil),
		RateLimitPerMinute: envutil.Int("RATE_LIMIT_PER_MINUTE", 10),
		StaleRunAfter:      envutil.Duration("STALE_RUN_AFTER", 30*time.Minute),
	}
}
