package observability

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/yungbote/curriculum-backend/internal/platform/envutil"
	"github.com/yungbote/curriculum-backend/internal/platform/logger"
)

// Metrics is a small Prometheus text registry. A nil *Metrics is valid and
// records nothing, so callers never branch on METRICS_ENABLED themselves.
type Metrics struct {
	apiRequests *CounterVec
	apiLatency  *HistogramVec
	apiInflight *GaugeVec

	modelCalls    *CounterVec
	modelAttempts *CounterVec
	modelLatency  *HistogramVec

	generations       *CounterVec
	generationLatency *HistogramVec
	fallbacks         *CounterVec

	rateLimited *CounterVec
	dbStats     *GaugeVec
	redisUp     *GaugeVec
}

func Enabled() bool {
	return envutil.Bool("METRICS_ENABLED", false)
}

// New returns nil unless METRICS_ENABLED is set.
func New() *Metrics {
	if !Enabled() {
		return nil
	}
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		apiRequests: NewCounterVec("curriculum_api_requests_total", "API requests by method/route/status.", []string{"method", "route", "status"}),
		apiLatency: NewHistogramVec("curriculum_api_request_duration_seconds", "API request latency by method/route.",
			[]string{"method", "route"},
			[]float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30, 60, 120, 300}),
		apiInflight: NewGaugeVec("curriculum_api_inflight_requests", "In-flight API requests.", nil),

		modelCalls:    NewCounterVec("curriculum_model_calls_total", "Model calls by model/label/outcome.", []string{"model", "label", "outcome"}),
		modelAttempts: NewCounterVec("curriculum_model_attempts_total", "Model call attempts including retries.", []string{"model", "label"}),
		modelLatency: NewHistogramVec("curriculum_model_call_duration_seconds", "Model call latency including backoff.",
			[]string{"model", "label"},
			[]float64{1, 5, 10, 30, 60, 120, 240, 480}),

		generations: NewCounterVec("curriculum_generations_total", "Generations by strategy/outcome.", []string{"strategy", "outcome"}),
		generationLatency: NewHistogramVec("curriculum_generation_duration_seconds", "End-to-end generation latency.",
			[]string{"strategy"},
			[]float64{10, 30, 60, 120, 240, 480, 900}),
		fallbacks: NewCounterVec("curriculum_fallbacks_total", "Generations that switched to the fallback model.", []string{"strategy"}),

		rateLimited: NewCounterVec("curriculum_rate_limited_total", "Requests rejected by the rate limiter.", []string{"route"}),
		dbStats:     NewGaugeVec("curriculum_db_stats", "database/sql pool statistics.", []string{"stat"}),
		redisUp:     NewGaugeVec("curriculum_redis_up", "1 when the last redis ping succeeded.", nil),
	}
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.apiRequests.Inc(method, route, status)
	m.apiLatency.Observe(dur.Seconds(), method, route)
}

func (m *Metrics) APIInflight(delta float64) {
	if m == nil {
		return
	}
	m.apiInflight.Add(delta)
}

// ObserveModelCall implements executor.Observer.
func (m *Metrics) ObserveModelCall(model, label, outcome string, attempts int, dur time.Duration) {
	if m == nil {
		return
	}
	m.modelCalls.Inc(model, label, outcome)
	m.modelAttempts.Add(float64(attempts), model, label)
	m.modelLatency.Observe(dur.Seconds(), model, label)
}

// ObserveGeneration implements curriculum.Observer.
func (m *Metrics) ObserveGeneration(strategy, outcome string, fallback bool, dur time.Duration) {
	if m == nil {
		return
	}
	m.generations.Inc(strategy, outcome)
	m.generationLatency.Observe(dur.Seconds(), strategy)
	if fallback {
		m.fallbacks.Inc(strategy)
	}
}

func (m *Metrics) IncRateLimited(route string) {
	if m == nil {
		return
	}
	m.rateLimited.Inc(route)
}

type writer interface {
	WritePrometheus(w io.Writer) error
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	for _, c := range []writer{
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.modelCalls, m.modelAttempts, m.modelLatency,
		m.generations, m.generationLatency, m.fallbacks,
		m.rateLimited, m.dbStats, m.redisUp,
	} {
		if err := c.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, r *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

func scrapeInterval() time.Duration {
	return envutil.Duration("METRICS_SCRAPE_INTERVAL_SECONDS", 10*time.Second)
}

// StartDBCollector samples pool statistics until ctx is done.
func (m *Metrics) StartDBCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	go m.every(ctx, func() {
		sqlDB, err := db.DB()
		if err != nil {
			log.Warn("metrics: db stats unavailable", "error", err)
			return
		}
		stats := sqlDB.Stats()
		m.dbStats.Set(float64(stats.OpenConnections), "open_connections")
		m.dbStats.Set(float64(stats.InUse), "in_use")
		m.dbStats.Set(float64(stats.Idle), "idle")
		m.dbStats.Set(float64(stats.WaitCount), "wait_count")
		m.dbStats.Set(stats.WaitDuration.Seconds(), "wait_duration_seconds")
	})
}

// StartRedisCollector pings rdb until ctx is done.
func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, rdb redis.UniversalClient) {
	if m == nil || rdb == nil {
		return
	}
	go m.every(ctx, func() {
		if err := rdb.Ping(ctx).Err(); err != nil {
			m.redisUp.Set(0)
			log.Warn("metrics: redis ping failed", "error", err)
			return
		}
		m.redisUp.Set(1)
	})
}

func (m *Metrics) every(ctx context.Context, fn func()) {
	ticker := time.NewTicker(scrapeInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}
