package executor

import (
	"time"

	"github.com/yungbote/curriculum-backend/internal/inference/config"
)

type Policy struct {
	// MaxAttempts counts the first try.
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Timeout bounds each attempt.
	Timeout time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		MaxDelay:    10 * time.Second,
		Timeout:     240 * time.Second,
	}
}

func PolicyFromConfig(g config.GenerationConfig) Policy {
	p := DefaultPolicy()
	if g.MaxAttempts > 0 {
		p.MaxAttempts = g.MaxAttempts
	}
	if g.BackoffBase.Duration > 0 {
		p.BaseDelay = g.BackoffBase.Duration
	}
	if g.BackoffMax.Duration > 0 {
		p.MaxDelay = g.BackoffMax.Duration
	}
	if g.CallTimeout.Duration > 0 {
		p.Timeout = g.CallTimeout.Duration
	}
	return p
}

// Backoff is the wait after the given failed attempt (1-based):
// min(MaxDelay, BaseDelay * 2^(attempt-1)).
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}
