package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/curriculum-backend/internal/curriculum"
	"github.com/yungbote/curriculum-backend/internal/data/repos/generation"
	"github.com/yungbote/curriculum-backend/internal/domain"
	"github.com/yungbote/curriculum-backend/internal/inference/registry"
	"github.com/yungbote/curriculum-backend/internal/platform/dbctx"
	"github.com/yungbote/curriculum-backend/internal/platform/logger"
)

var ErrRunNotFound = generation.ErrRunNotFound

type ModelInfo struct {
	registry.Descriptor
	Default  bool `json:"default"`
	Fallback bool `json:"fallback"`
}

type GenerationService interface {
	Models() []ModelInfo
	// Normalize validates a boundary request against known approaches and models.
	Normalize(req curriculum.Request) (curriculum.Request, error)
	// Stream starts a generation and relays its events. The run is persisted
	// alongside; persistence failures are logged only.
	Stream(ctx context.Context, req curriculum.Request) <-chan curriculum.Event
	Generate(ctx context.Context, req curriculum.Request) (*curriculum.Outcome, error)
	GetRun(ctx context.Context, id string) (*domain.GenerationRun, error)
	// ListRuns returns the most recent runs, newest first.
	ListRuns(ctx context.Context, limit int) ([]*domain.GenerationRun, error)
}

type generationService struct {
	log        *logger.Logger
	gen        *curriculum.Generator
	models     *registry.Registry
	approaches curriculum.ApproachCatalog
	runs       generation.RunRepo
}

// NewGenerationService wires the generator to run persistence. runs may be
// nil when no database is configured.
func NewGenerationService(
	baseLog *logger.Logger,
	gen *curriculum.Generator,
	models *registry.Registry,
	approaches curriculum.ApproachCatalog,
	runs generation.RunRepo,
) GenerationService {
	return &generationService{
		log:        baseLog.With("service", "GenerationService"),
		gen:        gen,
		models:     models,
		approaches: approaches,
		runs:       runs,
	}
}

func (s *generationService) Models() []ModelInfo {
	descs := s.models.Models()
	out := make([]ModelInfo, 0, len(descs))
	for _, d := range descs {
		out = append(out, ModelInfo{
			Descriptor: d,
			Default:    d.Key == s.models.DefaultKey(),
			Fallback:   d.Key == s.models.FallbackKey(),
		})
	}
	return out
}

func (s *generationService) Normalize(req curriculum.Request) (curriculum.Request, error) {
	return curriculum.Normalize(req, s.approaches, s.models)
}

func (s *generationService) Stream(ctx context.Context, req curriculum.Request) <-chan curriculum.Event {
	run := s.createRun(ctx, req)
	req.SessionID = run.ID.String()

	in := s.gen.GenerateStream(ctx, req)
	out := make(chan curriculum.Event)
	go func() {
		defer close(out)
		var (
			stage    curriculum.Stage
			terminal bool
		)
		for ev := range in {
			switch ev.Type {
			case curriculum.EventProgress:
				if ev.Stage != stage {
					stage = ev.Stage
					s.update(ctx, run.ID, map[string]interface{}{"stage": string(stage)})
				}
			case curriculum.EventResult:
				terminal = true
				s.finishSucceeded(ctx, run, ev.Outcome())
			case curriculum.EventError:
				terminal = true
				s.finishFailed(ctx, run, ev.Err())
			}
			select {
			case out <- ev:
			case <-ctx.Done():
			}
		}
		if !terminal {
			s.finishFailed(ctx, run, ctx.Err())
		}
	}()
	return out
}

func (s *generationService) Generate(ctx context.Context, req curriculum.Request) (*curriculum.Outcome, error) {
	var (
		outcome *curriculum.Outcome
		err     error
	)
	for ev := range s.Stream(ctx, req) {
		switch ev.Type {
		case curriculum.EventResult:
			outcome = ev.Outcome()
		case curriculum.EventError:
			err = ev.Err()
		}
	}
	if outcome == nil && err == nil {
		if err = ctx.Err(); err == nil {
			err = errors.New("generation ended without a result")
		}
	}
	return outcome, err
}

func (s *generationService) GetRun(ctx context.Context, id string) (*domain.GenerationRun, error) {
	if s.runs == nil {
		return nil, ErrRunNotFound
	}
	runID, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrRunNotFound
	}
	return s.runs.GetByID(dbctx.New(ctx), runID)
}

func (s *generationService) ListRuns(ctx context.Context, limit int) ([]*domain.GenerationRun, error) {
	if s.runs == nil {
		return []*domain.GenerationRun{}, nil
	}
	return s.runs.ListRecent(dbctx.New(ctx), listLimit(limit))
}

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

func listLimit(n int) int {
	switch {
	case n <= 0:
		return defaultListLimit
	case n > maxListLimit:
		return maxListLimit
	}
	return n
}

func (s *generationService) createRun(ctx context.Context, req curriculum.Request) *domain.GenerationRun {
	now := time.Now().UTC()
	model := req.Model
	if model == "" {
		model = s.models.DefaultKey()
	}
	strategy := req.Strategy
	if strategy == "" {
		strategy = s.gen.Options().Strategy
	}
	run := &domain.GenerationRun{
		ID:        uuid.New(),
		Status:    domain.RunRunning,
		Stage:     string(curriculum.StageLoading),
		Model:     model,
		Strategy:  strategy,
		Grade:     req.Grade,
		Subject:   req.Subject,
		Request:   mustJSON(req),
		StartedAt: &now,
	}
	if s.runs == nil {
		return run
	}
	if _, err := s.runs.Create(dbctx.New(context.WithoutCancel(ctx)), []*domain.GenerationRun{run}); err != nil {
		s.log.Error("failed to persist generation run", "session_id", run.ID.String(), "error", err)
	}
	return run
}

func (s *generationService) finishSucceeded(ctx context.Context, run *domain.GenerationRun, outcome *curriculum.Outcome) {
	if outcome == nil {
		return
	}
	now := time.Now().UTC()
	s.update(ctx, run.ID, map[string]interface{}{
		"status":        domain.RunSucceeded,
		"stage":         string(curriculum.StageComplete),
		"model":         outcome.Model,
		"fallback_used": outcome.FallbackUsed,
		"result":        mustJSON(outcome.Result),
		"document":      outcome.Document,
		"warnings":      mustJSON(outcome.Warnings),
		"duration_ms":   outcome.Duration.Milliseconds(),
		"finished_at":   now,
	})
}

func (s *generationService) finishFailed(ctx context.Context, run *domain.GenerationRun, cause error) {
	msg := "canceled"
	if cause != nil && !errors.Is(cause, context.Canceled) {
		msg = cause.Error()
	}
	now := time.Now().UTC()
	s.update(ctx, run.ID, map[string]interface{}{
		"status":      domain.RunFailed,
		"error":       msg,
		"finished_at": now,
		"duration_ms": now.Sub(derefTime(run.StartedAt, now)).Milliseconds(),
	})
}

// update writes with a context that survives client disconnects.
func (s *generationService) update(ctx context.Context, id uuid.UUID, updates map[string]interface{}) {
	if s.runs == nil {
		return
	}
	if err := s.runs.UpdateFields(dbctx.New(context.WithoutCancel(ctx)), id, updates); err != nil {
		s.log.Warn("failed to update generation run", "session_id", id.String(), "error", err)
	}
}

func mustJSON(v any) datatypes.JSON {
	b, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON([]byte("null"))
	}
	return datatypes.JSON(b)
}

func derefTime(t *time.Time, def time.Time) time.Time {
	if t == nil {
		return def
	}
	return *t
}
