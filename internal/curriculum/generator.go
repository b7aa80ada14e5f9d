package curriculum

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/curriculum-backend/internal/curriculum/prompts"
	"github.com/yungbote/curriculum-backend/internal/inference/config"
	"github.com/yungbote/curriculum-backend/internal/inference/executor"
	"github.com/yungbote/curriculum-backend/internal/inference/registry"
	"github.com/yungbote/curriculum-backend/internal/platform/logger"
)

const (
	StrategySingle   = config.StrategySingle
	StrategyParallel = config.StrategyParallel

	eventBuffer = 16
)

// PromptSource renders system prompts. *prompts.Loader implements it.
type PromptSource interface {
	RenderSystemPrompt(t prompts.Template, grade int, subject string) (string, error)
}

// Document is what the renderer receives once a generation succeeds.
type Document struct {
	SessionID string
	Request   Request
	Result    Result
	Model     string
	CreatedAt time.Time
}

// Renderer turns a result into a downloadable file and returns its name.
// A render failure never fails the generation.
type Renderer interface {
	Render(ctx context.Context, doc Document) (string, error)
}

// Observer receives one record per finished generation.
type Observer interface {
	ObserveGeneration(strategy, outcome string, fallback bool, dur time.Duration)
}

type Options struct {
	Strategy string
	// Stream consumes the single-call response as fragments.
	Stream bool

	BaseTokens             int
	PerDayTokens           int
	TeacherGuideTokens     int
	StudentMaterialsTokens int

	PollInterval  time.Duration
	ProgressEvery int
	Temperature   float64
	JSONMode      bool
}

func DefaultOptions() Options {
	return Options{
		Strategy:               StrategySingle,
		Stream:                 true,
		BaseTokens:             16000,
		PerDayTokens:           8000,
		TeacherGuideTokens:     8000,
		StudentMaterialsTokens: 10000,
		PollInterval:           500 * time.Millisecond,
		ProgressEvery:          50,
		Temperature:            0.7,
	}
}

func OptionsFromConfig(g config.GenerationConfig) Options {
	o := DefaultOptions()
	if g.Strategy != "" {
		o.Strategy = g.Strategy
	}
	o.Stream = g.Stream
	if g.BaseTokens > 0 {
		o.BaseTokens = g.BaseTokens
	}
	if g.PerDayTokens > 0 {
		o.PerDayTokens = g.PerDayTokens
	}
	if g.TeacherGuideTokens > 0 {
		o.TeacherGuideTokens = g.TeacherGuideTokens
	}
	if g.StudentMaterialsTokens > 0 {
		o.StudentMaterialsTokens = g.StudentMaterialsTokens
	}
	if g.PollInterval.Duration > 0 {
		o.PollInterval = g.PollInterval.Duration
	}
	if g.ProgressEveryFragments > 0 {
		o.ProgressEvery = g.ProgressEveryFragments
	}
	o.Temperature = g.Temperature
	return o
}

// TokenBudget is the single-call output budget: base + (days-1) * per-day.
func (o Options) TokenBudget(numDays int) int {
	if numDays < 1 {
		numDays = 1
	}
	return o.BaseTokens + (numDays-1)*o.PerDayTokens
}

type Generator struct {
	log      *logger.Logger
	models   *registry.Registry
	prompts  PromptSource
	exec     *executor.Executor
	opts     Options
	renderer Renderer
	observer Observer
	tracer   trace.Tracer
	newID    func() string
}

type GeneratorOption func(*Generator)

func WithRenderer(r Renderer) GeneratorOption {
	return func(g *Generator) { g.renderer = r }
}

func WithObserver(o Observer) GeneratorOption {
	return func(g *Generator) { g.observer = o }
}

// WithSessionIDs replaces uuid session ids; tests use it for stable output.
func WithSessionIDs(fn func() string) GeneratorOption {
	return func(g *Generator) {
		if fn != nil {
			g.newID = fn
		}
	}
}

func NewGenerator(log *logger.Logger, models *registry.Registry, ps PromptSource, exec *executor.Executor, opts Options, extra ...GeneratorOption) *Generator {
	if log == nil {
		log = logger.NewNop()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultOptions().PollInterval
	}
	if opts.Strategy == "" {
		opts.Strategy = StrategySingle
	}
	g := &Generator{
		log:     log.With("component", "generator"),
		models:  models,
		prompts: ps,
		exec:    exec,
		opts:    opts,
		tracer:  otel.Tracer("curriculum/generator"),
		newID:   uuid.NewString,
	}
	for _, o := range extra {
		o(g)
	}
	return g
}

func (g *Generator) Options() Options { return g.opts }

// GenerateStream runs one request and delivers its events in order. The
// channel is closed after exactly one terminal result or error event. A
// consumer that stops reading must cancel ctx; all work then stops and the
// channel is closed without a terminal event.
func (g *Generator) GenerateStream(ctx context.Context, req Request) <-chan Event {
	out := make(chan Event, eventBuffer)
	go func() {
		defer close(out)
		emit := func(ev Event) {
			select {
			case out <- ev:
			case <-ctx.Done():
			}
		}
		outcome, err := g.execute(ctx, req, emit)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			emit(Event{Type: EventError, Message: UserMessage(err), SessionID: outcome.SessionID, err: err})
			return
		}
		res := outcome.Result
		emit(Event{
			Type:         EventResult,
			Success:      true,
			SessionID:    outcome.SessionID,
			Result:       &res,
			Document:     outcome.Document,
			Model:        outcome.Model,
			Warnings:     outcome.Warnings,
			FallbackUsed: outcome.FallbackUsed,
			outcome:      outcome,
		})
	}()
	return out
}

// Generate drains GenerateStream and returns only the terminal payload.
func (g *Generator) Generate(ctx context.Context, req Request) (*Outcome, error) {
	var (
		outcome *Outcome
		err     error
	)
	for ev := range g.GenerateStream(ctx, req) {
		switch ev.Type {
		case EventResult:
			outcome = ev.outcome
		case EventError:
			err = ev.err
		}
	}
	if outcome == nil && err == nil {
		if err = ctx.Err(); err == nil {
			err = fmt.Errorf("generation ended without a result")
		}
	}
	return outcome, err
}

// execute is the state machine. It emits progress events only; the caller
// emits the terminal event. The returned outcome is never nil.
func (g *Generator) execute(ctx context.Context, req Request, emit func(Event)) (*Outcome, error) {
	start := time.Now()
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = g.newID()
	}
	strategy := req.Strategy
	if strategy == "" {
		strategy = g.opts.Strategy
	}
	outcome := &Outcome{SessionID: sessionID, Strategy: strategy}
	log := g.log.With("session_id", sessionID, "strategy", strategy)

	ctx, span := g.tracer.Start(ctx, "curriculum.generate", trace.WithAttributes(
		attribute.String("curriculum.session_id", sessionID),
		attribute.String("curriculum.strategy", strategy),
		attribute.Int("curriculum.grade", req.Grade),
		attribute.String("curriculum.subject", req.Subject),
		attribute.Int("curriculum.num_days", req.NumDays),
	))
	defer span.End()

	fail := func(err error) (*Outcome, error) {
		outcome.Duration = time.Since(start)
		span.RecordError(err)
		span.SetStatus(codes.Error, "generation failed")
		if ctx.Err() == nil {
			log.Error("generation failed", "model", outcome.Model, "error", err, "elapsed", outcome.Duration.String())
		}
		g.observe(strategy, "error", outcome.FallbackUsed, outcome.Duration)
		return outcome, err
	}

	route, err := g.models.Resolve(req.Model)
	if err != nil {
		return fail(err)
	}
	outcome.Model = route.Key

	emit(progress(StageLoading, "Loading standards..."))

	res, partial, err := g.runStrategy(ctx, strategy, req, route, emit)
	if err != nil && ctx.Err() == nil && fallbackStage(err) && g.models.IsFallbackEligible(route.Key) {
		fb, ferr := g.models.Resolve(g.models.FallbackKey())
		if ferr != nil {
			return fail(&CombinedError{Scope: "fallback", First: err, Second: ferr})
		}
		log.Warn("primary model failed, falling back",
			"model", route.Key,
			"fallback", fb.Key,
			"error", err,
		)
		emit(progress(StageFallback, fmt.Sprintf("%s failed, trying %s...",
			g.models.DisplayName(route.Key), g.models.DisplayName(fb.Key))))
		outcome.FallbackUsed = true
		outcome.Model = fb.Key
		span.SetAttributes(attribute.Bool("curriculum.fallback", true))

		first := err
		res, partial, err = g.runStrategy(ctx, strategy, req, fb, emit)
		if err != nil {
			err = &CombinedError{Scope: "fallback", First: first, Second: err}
		}
	}
	if err != nil {
		return fail(err)
	}

	outcome.Result = res
	outcome.Partial = partial
	for _, p := range partial {
		outcome.Warnings = append(outcome.Warnings, partialMessage(p.Section))
	}

	if g.renderer != nil {
		emit(progress(StageDocument, "Creating document..."))
		name, rerr := g.renderer.Render(ctx, Document{
			SessionID: sessionID,
			Request:   req,
			Result:    res,
			Model:     outcome.Model,
			CreatedAt: time.Now().UTC(),
		})
		if rerr != nil {
			log.Warn("document render failed", "error", rerr)
			msg := "Document could not be created; the curriculum is still available."
			outcome.Warnings = append(outcome.Warnings, msg)
			emit(warning(StageDocument, msg))
		} else {
			outcome.Document = name
		}
	}

	emit(progress(StageComplete, "Complete!"))
	outcome.Duration = time.Since(start)

	result := "success"
	if len(partial) > 0 {
		result = "partial"
	}
	log.Info("generation complete",
		"model", outcome.Model,
		"fallback_used", outcome.FallbackUsed,
		"partial", len(partial),
		"document", outcome.Document,
		"elapsed", outcome.Duration.String(),
	)
	g.observe(strategy, result, outcome.FallbackUsed, outcome.Duration)
	return outcome, nil
}

func (g *Generator) runStrategy(ctx context.Context, strategy string, req Request, route registry.Route, emit func(Event)) (Result, []PartialFailure, error) {
	if strategy == StrategyParallel {
		return g.parallel(ctx, req, route, emit)
	}
	res, err := g.single(ctx, req, route, emit)
	return res, nil, err
}

func (g *Generator) observe(strategy, outcome string, fallback bool, dur time.Duration) {
	if g.observer != nil {
		g.observer.ObserveGeneration(strategy, outcome, fallback, dur)
	}
}

func progress(stage Stage, msg string) Event {
	return Event{Type: EventProgress, Stage: stage, Message: msg}
}

func warning(stage Stage, msg string) Event {
	return Event{Type: EventProgress, Stage: stage, Message: msg, Level: LevelWarning}
}
