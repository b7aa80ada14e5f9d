package executor

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/yungbote/curriculum-backend/internal/inference/engine"
	"github.com/yungbote/curriculum-backend/internal/platform/logger"
)

// Request is one model invocation: a fixed message pair against one backend.
type Request struct {
	// Label names the call in logs and spans ("curriculum", "teacher_guide").
	Label       string
	Engine      engine.Engine
	Model       string
	Messages    []engine.Message
	MaxTokens   int
	Temperature float64
	JSONMode    bool
	// Timeout overrides the policy timeout for each attempt.
	Timeout time.Duration
}

// Observer receives one record per finished call. observability.Metrics implements it.
type Observer interface {
	ObserveModelCall(model, label, outcome string, attempts int, dur time.Duration)
}

type Executor struct {
	log      *logger.Logger
	policy   Policy
	sleep    func(ctx context.Context, d time.Duration) error
	sem      *semaphore.Weighted
	observer Observer
	tracer   trace.Tracer
}

type Option func(*Executor)

// WithSleep replaces the backoff sleep; tests use it to record waits.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Executor) {
		if fn != nil {
			e.sleep = fn
		}
	}
}

// WithMaxConcurrent bounds in-flight model calls across all requests.
func WithMaxConcurrent(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.sem = semaphore.NewWeighted(int64(n))
		}
	}
}

func WithObserver(o Observer) Option {
	return func(e *Executor) { e.observer = o }
}

func New(log *logger.Logger, policy Policy, opts ...Option) *Executor {
	if log == nil {
		log = logger.NewNop()
	}
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	e := &Executor{
		log:    log.With("component", "executor"),
		policy: policy,
		sleep:  sleepCtx,
		tracer: otel.Tracer("curriculum/executor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Executor) Policy() Policy { return e.policy }

// Call blocks until the model answers, retrying transient failures.
func (e *Executor) Call(ctx context.Context, req Request) (string, error) {
	ctx, span := e.startSpan(ctx, "executor.call", req)
	defer span.End()

	start := time.Now()
	var text string
	attempts, err := e.run(ctx, span, req, func(actx context.Context, finish func()) error {
		defer finish()
		out, err := req.Engine.GenerateText(actx, req.Model, req.Messages, e.options(req))
		if err != nil {
			return err
		}
		text = out
		return nil
	})
	e.observe(req, err, attempts, time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(engine.KindOf(err)))
		return "", err
	}
	return text, nil
}

// Pending is an in-flight Call started with Start.
type Pending struct {
	done chan struct{}
	text string
	err  error
}

// Done is closed once the call has finished.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Result waits for the call and returns its outcome.
func (p *Pending) Result() (string, error) {
	<-p.done
	return p.text, p.err
}

// Start runs Call in its own goroutine. Cancelling ctx cancels the call; the
// goroutine always finishes and closes Done.
func (e *Executor) Start(ctx context.Context, req Request) *Pending {
	p := &Pending{done: make(chan struct{})}
	go func() {
		defer close(p.done)
		p.text, p.err = e.Call(ctx, req)
	}()
	return p
}

// Stream opens a fragment stream. Only opening is retried; errors returned by
// Recv are final. The caller must Close the stream.
func (e *Executor) Stream(ctx context.Context, req Request) (engine.Stream, error) {
	ctx, span := e.startSpan(ctx, "executor.stream", req)

	start := time.Now()
	var opened *managedStream
	attempts, err := e.run(ctx, span, req, func(actx context.Context, finish func()) error {
		s, err := req.Engine.OpenStream(actx, req.Model, req.Messages, e.options(req))
		if err != nil {
			return err
		}
		opened = &managedStream{Stream: s, finish: finish, span: span}
		return nil
	})
	e.observe(req, err, attempts, time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(engine.KindOf(err)))
		span.End()
		return nil, err
	}
	return opened, nil
}

type managedStream struct {
	engine.Stream
	finish    func()
	span      trace.Span
	fragments int
	once      sync.Once
}

func (s *managedStream) Recv() (string, error) {
	frag, err := s.Stream.Recv()
	if err == nil {
		s.fragments++
	}
	return frag, err
}

func (s *managedStream) Close() error {
	err := s.Stream.Close()
	s.once.Do(func() {
		s.finish()
		s.span.SetAttributes(attribute.Int("llm.fragments", s.fragments))
		s.span.End()
	})
	return err
}

// run drives the retry loop. op owns finish on success; on failure run calls it.
func (e *Executor) run(ctx context.Context, span trace.Span, req Request, op func(actx context.Context, finish func()) error) (int, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = e.policy.Timeout
	}

	var lastErr error
	for attempt := 1; attempt <= e.policy.MaxAttempts; attempt++ {
		e.log.Debug("model call attempt", "label", req.Label, "model", req.Model, "attempt", attempt, "max_attempts", e.policy.MaxAttempts)
		span.AddEvent("attempt", trace.WithAttributes(attribute.Int("attempt", attempt)))

		if e.sem != nil {
			if err := e.sem.Acquire(ctx, 1); err != nil {
				return attempt, err
			}
		}
		actx, cancel := context.WithTimeout(ctx, timeout)
		var once sync.Once
		finish := func() {
			once.Do(func() {
				cancel()
				if e.sem != nil {
					e.sem.Release(1)
				}
			})
		}

		err := op(actx, finish)
		if err == nil {
			return attempt, nil
		}
		timedOut := errors.Is(actx.Err(), context.DeadlineExceeded)
		finish()

		if ctx.Err() != nil {
			return attempt, ctx.Err()
		}
		if timedOut && engine.KindOf(err) != engine.KindTimeout {
			err = &engine.Error{Kind: engine.KindTimeout, Err: err}
		}
		lastErr = err

		if !engine.IsRetryable(err) || attempt == e.policy.MaxAttempts {
			return attempt, err
		}
		wait := e.policy.Backoff(attempt)
		e.log.Warn("model call failed, retrying",
			"label", req.Label,
			"model", req.Model,
			"attempt", attempt,
			"max_attempts", e.policy.MaxAttempts,
			"wait", wait.String(),
			"error_kind", string(engine.KindOf(err)),
			"error", err,
		)
		if err := e.sleep(ctx, wait); err != nil {
			return attempt, err
		}
	}
	return e.policy.MaxAttempts, lastErr
}

func (e *Executor) options(req Request) engine.GenerateOptions {
	return engine.GenerateOptions{
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		JSONMode:    req.JSONMode,
	}
}

func (e *Executor) startSpan(ctx context.Context, name string, req Request) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("llm.label", req.Label),
		attribute.String("llm.model", req.Model),
		attribute.Int("llm.max_tokens", req.MaxTokens),
	))
}

func (e *Executor) observe(req Request, err error, attempts int, dur time.Duration) {
	if e.observer == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = string(engine.KindOf(err))
	}
	e.observer.ObserveModelCall(req.Model, req.Label, outcome, attempts, dur)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
