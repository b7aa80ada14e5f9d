package mock

import (
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/yungbote/curriculum-backend/internal/inference/engine"
)

// Engine returns a deterministic, fenced curriculum document shaped after the
// user message. It backs local development (CURRICULUM_ENGINE_OVERRIDE=mock)
// and end-to-end tests.
type Engine struct {
	// ChunkSize is the fragment length used by OpenStream.
	ChunkSize int
}

func New() *Engine {
	return &Engine{ChunkSize: 16}
}

func (e *Engine) GenerateText(ctx context.Context, model string, messages []engine.Message, opts engine.GenerateOptions) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var user string
	for i := len(messages) - 1; i >= 0; i-- {
		if strings.EqualFold(messages[i].Role, engine.RoleUser) {
			user = messages[i].Content
			break
		}
	}

	doc := map[string]any{}
	switch {
	case strings.Contains(user, "teacher guide"):
		doc["teacher_guide"] = teacherGuide(model)
	case strings.Contains(user, "student materials"), strings.Contains(user, "student handouts"):
		doc["student_materials"] = studentMaterials()
	default:
		doc["teacher_guide"] = teacherGuide(model)
		doc["student_materials"] = studentMaterials()
	}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", err
	}
	return "```json\n" + string(b) + "\n```", nil
}

func (e *Engine) OpenStream(ctx context.Context, model string, messages []engine.Message, opts engine.GenerateOptions) (engine.Stream, error) {
	full, err := e.GenerateText(ctx, model, messages, opts)
	if err != nil {
		return nil, err
	}
	size := e.ChunkSize
	if size <= 0 {
		size = 16
	}
	return &stream{ctx: ctx, text: full, size: size}, nil
}

type stream struct {
	ctx  context.Context
	text string
	pos  int
	size int
}

func (s *stream) Recv() (string, error) {
	if err := s.ctx.Err(); err != nil {
		return "", err
	}
	if s.pos >= len(s.text) {
		return "", io.EOF
	}
	end := s.pos + s.size
	if end > len(s.text) {
		end = len(s.text)
	}
	out := s.text[s.pos:end]
	s.pos = end
	return out, nil
}

func (s *stream) Close() error { return nil }

func teacherGuide(model string) map[string]any {
	return map[string]any{
		"lesson_title": "Sample lesson",
		"generated_by": model,
		"objectives":   []any{"Students can explain the core idea in their own words."},
		"days": []any{
			map[string]any{
				"day":   1,
				"flow":  []any{"Warm-up", "Direct instruction", "Guided practice", "Exit ticket"},
				"notes": "Circulate during guided practice and collect exit tickets.",
			},
		},
	}
}

func studentMaterials() map[string]any {
	return map[string]any{
		"worksheet": map[string]any{
			"title":     "Practice",
			"questions": []any{"Question 1", "Question 2", "Question 3"},
		},
		"exit_ticket": []any{"What is one thing you learned today?"},
	}
}
