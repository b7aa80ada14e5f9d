package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/curriculum-backend/internal/curriculum"
	"github.com/yungbote/curriculum-backend/internal/curriculum/render"
	"github.com/yungbote/curriculum-backend/internal/domain"
	"github.com/yungbote/curriculum-backend/internal/inference/registry"
	"github.com/yungbote/curriculum-backend/internal/platform/logger"
	"github.com/yungbote/curriculum-backend/internal/services"
)

type fakeService struct {
	normalizeErr error
	normalized   curriculum.Request
	outcome      *curriculum.Outcome
	generateErr  error
	events       []curriculum.Event
	hold         time.Duration
	run          *domain.GenerationRun
}

func (f *fakeService) Models() []services.ModelInfo { return nil }

func (f *fakeService) Normalize(req curriculum.Request) (curriculum.Request, error) {
	f.normalized = req
	return req, f.normalizeErr
}

func (f *fakeService) Stream(ctx context.Context, _ curriculum.Request) <-chan curriculum.Event {
	out := make(chan curriculum.Event)
	go func() {
		defer close(out)
		if f.hold > 0 {
			select {
			case <-time.After(f.hold):
			case <-ctx.Done():
				return
			}
		}
		for _, ev := range f.events {
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func (f *fakeService) Generate(context.Context, curriculum.Request) (*curriculum.Outcome, error) {
	return f.outcome, f.generateErr
}

func (f *fakeService) GetRun(_ context.Context, id string) (*domain.GenerationRun, error) {
	if f.run == nil || f.run.ID.String() != id {
		return nil, services.ErrRunNotFound
	}
	return f.run, nil
}

func (f *fakeService) ListRuns(context.Context, int) ([]*domain.GenerationRun, error) {
	if f.run == nil {
		return []*domain.GenerationRun{}, nil
	}
	return []*domain.GenerationRun{f.run}, nil
}

func newRouter(svc services.GenerationService) (*gin.Engine, *GenerationHandler) {
	gin.SetMode(gin.TestMode)
	h := NewGenerationHandler(logger.NewNop(), svc)
	r := gin.New()
	r.POST("/generate", h.Generate)
	r.POST("/generate-stream", h.GenerateStream)
	r.GET("/api/sessions", h.ListSessions)
	r.GET("/api/sessions/:id", h.GetSession)
	return r, h
}

func postJSON(r http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestGenerateReturnsCurriculum(t *testing.T) {
	svc := &fakeService{outcome: &curriculum.Outcome{
		SessionID: "0b9c8d4e-0000-4000-8000-000000000001",
		Result: curriculum.Result{
			TeacherGuide:     map[string]any{"lesson_title": "Ratios"},
			StudentMaterials: map[string]any{},
		},
		Model:    "gemini-3-pro",
		Document: "curriculum_6_Math_20250301_100000_0b9c8d4e.json",
	}}
	r, _ := newRouter(svc)

	rec := postJSON(r, "/generate", `{"grade":6,"subject":"Math","topic":"Ratios"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["success"])
	assert.Equal(t, svc.outcome.SessionID, body["session_id"])
	assert.Equal(t, svc.outcome.Document, body["document"])
	assert.Equal(t, []any{}, body["warnings"])
	assert.Equal(t, "Ratios", body["curriculum"].(map[string]any)["teacher_guide"].(map[string]any)["lesson_title"])
	assert.Equal(t, 6, svc.normalized.Grade)
}

func TestGenerateAcceptsFormPost(t *testing.T) {
	svc := &fakeService{outcome: &curriculum.Outcome{}}
	r, _ := newRouter(svc)

	form := url.Values{
		"grade":          {"4"},
		"subject":        {"Science"},
		"topic":          {"Plant life cycles"},
		"session_length": {"60"},
		"num_days":       {"2"},
	}
	req := httptest.NewRequest(http.MethodPost, "/generate", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 4, svc.normalized.Grade)
	assert.Equal(t, "Plant life cycles", svc.normalized.Topic)
	assert.Equal(t, 60, svc.normalized.SessionLengthMinutes)
	assert.Equal(t, 2, svc.normalized.NumDays)
}

func TestGenerateValidationErrors(t *testing.T) {
	svc := &fakeService{normalizeErr: &curriculum.ValidationError{Fields: map[string]string{
		"grade": "must be between 0 and 12",
		"topic": "is required",
	}}}
	r, _ := newRouter(svc)

	rec := postJSON(r, "/generate", `{"grade":13}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"validation_failed"`)
	assert.Contains(t, rec.Body.String(), `"topic":"is required"`)
}

func TestGenerateHidesInternalErrors(t *testing.T) {
	svc := &fakeService{generateErr: errors.New("anthropic: 401 invalid x-api-key sk-ant-123")}
	r, _ := newRouter(svc)

	rec := postJSON(r, "/generate", `{"grade":6,"subject":"Math","topic":"Ratios"}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Generation failed. Please try again.")
	assert.NotContains(t, rec.Body.String(), "sk-ant")
}

func TestGenerateUnknownModel(t *testing.T) {
	svc := &fakeService{generateErr: &registry.UnknownModelError{Key: "gpt-9"}}
	r, _ := newRouter(svc)

	rec := postJSON(r, "/generate", `{"grade":6,"subject":"Math","topic":"Ratios","model":"gpt-9"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"unknown_model"`)
	assert.Contains(t, rec.Body.String(), "Unknown model.")
}

func readSSE(t *testing.T, body io.Reader) (events []map[string]any, comments int) {
	t.Helper()
	sc := bufio.NewScanner(body)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "data: "):
			var ev map[string]any
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
			events = append(events, ev)
		case strings.HasPrefix(line, ":"):
			comments++
		}
	}
	return events, comments
}

func TestGenerateStreamWritesEvents(t *testing.T) {
	svc := &fakeService{
		hold: 60 * time.Millisecond,
		events: []curriculum.Event{
			{Type: curriculum.EventProgress, Stage: curriculum.StageLoading, Message: "Loading standards..."},
			{Type: curriculum.EventProgress, Stage: curriculum.StageGenerating, Message: "Generating curriculum..."},
			{Type: curriculum.EventResult, SessionID: "abc", Success: true, Result: &curriculum.Result{
				TeacherGuide: map[string]any{}, StudentMaterials: map[string]any{},
			}},
		},
	}
	r, h := newRouter(svc)
	h.heartbeat = 20 * time.Millisecond

	srv := httptest.NewServer(r)
	defer srv.Close()
	resp, err := http.Post(srv.URL+"/generate-stream", "application/json", strings.NewReader(`{"grade":6,"subject":"Math","topic":"Ratios"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	events, comments := readSSE(t, resp.Body)
	require.Len(t, events, 3)
	assert.Equal(t, "progress", events[0]["type"])
	assert.Equal(t, "loading", events[0]["stage"])
	assert.Equal(t, "result", events[2]["type"])
	assert.Equal(t, "abc", events[2]["session_id"])
	assert.Contains(t, events[2], "curriculum")
	assert.GreaterOrEqual(t, comments, 1)
}

func TestGenerateStreamRejectsInvalidBeforeStreaming(t *testing.T) {
	svc := &fakeService{normalizeErr: &curriculum.ValidationError{Fields: map[string]string{"subject": "must be one of Math, ELA, Science, History"}}}
	r, _ := newRouter(svc)

	rec := postJSON(r, "/generate-stream", `{"grade":6,"subject":"Art","topic":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NotEqual(t, "text/event-stream", rec.Header().Get("Content-Type"))
}

func TestGetSession(t *testing.T) {
	run := &domain.GenerationRun{Status: domain.RunSucceeded, Model: "gemini-3-pro"}
	run.ID[0] = 1
	r, _ := newRouter(&fakeService{run: run})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions/"+run.ID.String(), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"succeeded"`)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions/not-a-uuid", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions?limit=5", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), run.ID.String())
}

type docSource map[string]string

func (d docSource) Open(_ context.Context, name string) (io.ReadCloser, error) {
	body, ok := d[name]
	if !ok {
		return nil, render.ErrNotFound
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func TestDownload(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewDocumentHandler(logger.NewNop(), docSource{"curriculum_6_Math.json": `{"teacher_guide":{}}`})
	r := gin.New()
	r.GET("/download/:filename", h.Download)

	cases := []struct {
		path string
		code int
	}{
		{"/download/curriculum_6_Math.json", http.StatusOK},
		{"/download/missing.json", http.StatusNotFound},
		{"/download/..", http.StatusBadRequest},
		{"/download/..%5Csecrets.json", http.StatusBadRequest},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tc.path, nil))
		assert.Equal(t, tc.code, rec.Code, tc.path)
	}

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/download/curriculum_6_Math.json", nil))
	assert.Equal(t, `attachment; filename="curriculum_6_Math.json"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, `{"teacher_guide":{}}`, rec.Body.String())
}

func TestHealth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewHealthHandler()
	r := gin.New()
	r.GET("/health", h.Health)
	r.GET("/healthcheck", h.HealthCheck)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthcheck", nil))
	assert.Equal(t, "ok", rec.Body.String())
}
