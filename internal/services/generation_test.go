package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/curriculum-backend/internal/curriculum"
	"github.com/yungbote/curriculum-backend/internal/curriculum/prompts"
	"github.com/yungbote/curriculum-backend/internal/data/repos/generation"
	"github.com/yungbote/curriculum-backend/internal/data/repos/testutil"
	"github.com/yungbote/curriculum-backend/internal/domain"
	"github.com/yungbote/curriculum-backend/internal/inference/engine"
	"github.com/yungbote/curriculum-backend/internal/inference/engine/mock"
	"github.com/yungbote/curriculum-backend/internal/inference/executor"
	"github.com/yungbote/curriculum-backend/internal/inference/registry"
	"github.com/yungbote/curriculum-backend/internal/platform/logger"
)

func newTestService(t *testing.T, primary engine.Engine, withDB bool) (GenerationService, generation.RunRepo) {
	t.Helper()
	return newTestServiceWith(t, primary, mock.New(), withDB)
}

func newTestServiceWith(t *testing.T, primary, fallback engine.Engine, withDB bool) (GenerationService, generation.RunRepo) {
	t.Helper()
	log := logger.NewNop()
	reg, err := registry.NewFromRoutes("gemini-3-pro", "claude-sonnet-4.5",
		registry.Route{Descriptor: registry.Descriptor{Key: "gemini-3-pro", BackendID: "gemini-3-pro-preview", DisplayName: "Gemini 3.0 Pro", Provider: "Google"}, Engine: primary},
		registry.Route{Descriptor: registry.Descriptor{Key: "claude-sonnet-4.5", BackendID: "claude-sonnet-4-5-20250929", DisplayName: "Claude Sonnet 4.5", Provider: "Anthropic"}, Engine: fallback},
	)
	require.NoError(t, err)
	loader, err := prompts.NewLoader(context.Background(), log, prompts.Options{})
	require.NoError(t, err)
	exec := executor.New(log, executor.DefaultPolicy(), executor.WithSleep(func(context.Context, time.Duration) error { return nil }))
	opts := curriculum.DefaultOptions()
	opts.PollInterval = time.Millisecond
	gen := curriculum.NewGenerator(log, reg, loader, exec, opts)

	var runs generation.RunRepo
	if withDB {
		runs = generation.NewRunRepo(testutil.DB(t), log)
	}
	return NewGenerationService(log, gen, reg, loader, runs), runs
}

func validRequest() curriculum.Request {
	return curriculum.Request{Grade: 6, Subject: "Math", Topic: "equivalent ratios"}
}

func TestModelsFlagsDefaultAndFallback(t *testing.T) {
	svc, _ := newTestService(t, mock.New(), false)
	models := svc.Models()
	require.Len(t, models, 2)
	for _, m := range models {
		assert.Equal(t, m.Key == "gemini-3-pro", m.Default, m.Key)
		assert.Equal(t, m.Key == "claude-sonnet-4.5", m.Fallback, m.Key)
	}
}

func TestGeneratePersistsSucceededRun(t *testing.T) {
	svc, _ := newTestService(t, mock.New(), true)

	req, err := svc.Normalize(validRequest())
	require.NoError(t, err)
	out, err := svc.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.NotEmpty(t, out.Result.TeacherGuide)

	run, err := svc.GetRun(context.Background(), out.SessionID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunSucceeded, run.Status)
	assert.Equal(t, "gemini-3-pro", run.Model)
	assert.Equal(t, string(curriculum.StageComplete), run.Stage)
	assert.Contains(t, string(run.Result), "teacher_guide")
	assert.NotNil(t, run.FinishedAt)
}

func TestStreamFallbackPersistsModel(t *testing.T) {
	svc, _ := newTestService(t, engine.Unconfigured{Provider: "gemini", Reason: errors.New("missing key")}, true)
	req, err := svc.Normalize(validRequest())
	require.NoError(t, err)
	req.Model = "claude-sonnet-4.5"
	req.Strategy = "parallel"

	var last curriculum.Event
	for ev := range svc.Stream(context.Background(), req) {
		last = ev
	}
	require.Equal(t, curriculum.EventResult, last.Type)

	// the default model has no key: the fallback recovers
	req.Model = ""
	req.Strategy = ""
	var sawFallback bool
	for ev := range svc.Stream(context.Background(), req) {
		if ev.Stage == curriculum.StageFallback {
			sawFallback = true
		}
		last = ev
	}
	require.Equal(t, curriculum.EventResult, last.Type)
	assert.True(t, sawFallback)

	run, err := svc.GetRun(context.Background(), last.SessionID)
	require.NoError(t, err)
	assert.True(t, run.FallbackUsed)
	assert.Equal(t, "claude-sonnet-4.5", run.Model)
}

func TestGeneratePersistsFailedRun(t *testing.T) {
	noKey := engine.Unconfigured{Provider: "gemini", Reason: errors.New("missing key")}
	svc, _ := newTestServiceWith(t, noKey, noKey, true)

	var last curriculum.Event
	for ev := range svc.Stream(context.Background(), validRequest()) {
		last = ev
	}
	require.Equal(t, curriculum.EventError, last.Type)
	assert.Equal(t, "Generation failed. Please try again.", last.Message)

	run, err := svc.GetRun(context.Background(), last.SessionID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunFailed, run.Status)
	assert.Contains(t, run.Error, "authentication")
	assert.NotNil(t, run.FinishedAt)
}

func TestListRuns(t *testing.T) {
	svc, _ := newTestService(t, mock.New(), true)
	for i := 0; i < 2; i++ {
		_, err := svc.Generate(context.Background(), validRequest())
		require.NoError(t, err)
	}
	runs, err := svc.ListRuns(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	for _, r := range runs {
		assert.Equal(t, domain.RunSucceeded, r.Status)
	}

	noDB, _ := newTestService(t, mock.New(), false)
	runs, err = noDB.ListRuns(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestListLimit(t *testing.T) {
	cases := map[int]int{-1: 20, 0: 20, 1: 1, 50: 50, 100: 100, 101: 100, 5000: 100}
	for in, want := range cases {
		assert.Equal(t, want, listLimit(in), "limit %d", in)
	}
}

func TestGenerateWithoutDatabase(t *testing.T) {
	svc, _ := newTestService(t, mock.New(), false)
	out, err := svc.Generate(context.Background(), validRequest())
	require.NoError(t, err)
	assert.NotEmpty(t, out.SessionID)

	_, err = svc.GetRun(context.Background(), out.SessionID)
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestNormalizeRejectsUnknownModel(t *testing.T) {
	svc, _ := newTestService(t, mock.New(), false)
	req := validRequest()
	req.Model = "gpt-9"
	_, err := svc.Normalize(req)
	var ve *curriculum.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "model")
}
