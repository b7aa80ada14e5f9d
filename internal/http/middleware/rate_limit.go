package middleware

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/curriculum-backend/internal/http/response"
	"github.com/yungbote/curriculum-backend/internal/observability"
	"github.com/yungbote/curriculum-backend/internal/platform/logger"
)

// WindowCounter counts hits per key in fixed windows. The redis client's
// counter and MemoryWindow both satisfy it.
type WindowCounter interface {
	Hit(ctx context.Context, key string, window time.Duration) (count int64, resetIn time.Duration, err error)
}

type RateLimitConfig struct {
	Limit  int
	Window time.Duration
	// Store is the shared counter; nil uses Fallback only.
	Store WindowCounter
	// Fallback serves requests when Store errors.
	Fallback WindowCounter
}

var errRateLimited = errors.New("Rate limit exceeded. Please wait a minute before generating again.")

// RateLimit rejects clients over cfg.Limit hits per window with 429 and a
// Retry-After header. Counter failures fail open.
func RateLimit(log *logger.Logger, m *observability.Metrics, cfg RateLimitConfig) gin.HandlerFunc {
	if cfg.Limit <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.Fallback == nil {
		cfg.Fallback = NewMemoryWindow()
	}
	return func(c *gin.Context) {
		key := c.ClientIP()
		ctx := c.Request.Context()

		var (
			count   int64
			resetIn time.Duration
			err     = errors.New("no store")
		)
		if cfg.Store != nil {
			count, resetIn, err = cfg.Store.Hit(ctx, key, cfg.Window)
			if err != nil {
				log.Warn("rate limit store failed, using in-memory window", "error", err)
			}
		}
		if err != nil {
			count, resetIn, err = cfg.Fallback.Hit(ctx, key, cfg.Window)
			if err != nil {
				c.Next()
				return
			}
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(cfg.Limit))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(max(int64(cfg.Limit)-count, 0), 10))
		if count <= int64(cfg.Limit) {
			c.Next()
			return
		}

		retry := int(math.Ceil(resetIn.Seconds()))
		if retry < 1 {
			retry = 1
		}
		m.IncRateLimited(c.FullPath())
		log.Warn("rate limit exceeded", "client_ip", key, "path", c.FullPath(), "retry_after", retry)
		c.Header("Retry-After", strconv.Itoa(retry))
		response.RespondError(c, http.StatusTooManyRequests, "rate_limited", errRateLimited)
		c.Abort()
	}
}

// MemoryWindow is a per-process fixed-window counter.
type MemoryWindow struct {
	mu      sync.Mutex
	now     func() time.Time
	windows map[string]memWindow
}

type memWindow struct {
	start time.Time
	count int64
}

func NewMemoryWindow() *MemoryWindow {
	return &MemoryWindow{now: time.Now, windows: map[string]memWindow{}}
}

func (w *MemoryWindow) Hit(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	now := w.now()
	start := now.Truncate(window)

	w.mu.Lock()
	defer w.mu.Unlock()
	cur := w.windows[key]
	if !cur.start.Equal(start) {
		cur = memWindow{start: start}
		if len(w.windows) > 4096 {
			w.evictBefore(start)
		}
	}
	cur.count++
	w.windows[key] = cur
	return cur.count, start.Add(window).Sub(now), nil
}

func (w *MemoryWindow) evictBefore(start time.Time) {
	for k, v := range w.windows {
		if v.start.Before(start) {
			delete(w.windows, k)
		}
	}
}
