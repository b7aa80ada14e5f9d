package gemini

import (
	"context"
	"errors"
	"io"
	"iter"
	"strings"
	"sync"

	"google.golang.org/genai"

	"github.com/yungbote/curriculum-backend/internal/inference/config"
	"github.com/yungbote/curriculum-backend/internal/inference/engine"
)

const provider = "gemini"

// models is the subset of *genai.Models the engine uses.
type models interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	GenerateContentStream(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error]
}

type Engine struct {
	models models
}

func New(ctx context.Context, cfg config.EngineConfig) (*Engine, error) {
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, errors.New("gemini: api key required")
	}
	cc := &genai.ClientConfig{APIKey: key, Backend: genai.BackendGeminiAPI}
	if cfg.BaseURL != "" {
		cc.HTTPOptions.BaseURL = cfg.BaseURL
	}
	cli, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, err
	}
	return &Engine{models: cli.Models}, nil
}

func (e *Engine) GenerateText(ctx context.Context, model string, messages []engine.Message, opts engine.GenerateOptions) (string, error) {
	contents, gcfg, err := buildRequest(messages, opts)
	if err != nil {
		return "", err
	}
	resp, err := e.models.GenerateContent(ctx, model, contents, gcfg)
	if err != nil {
		return "", classify(err)
	}
	text := responseText(resp)
	if strings.TrimSpace(text) == "" {
		return "", &engine.Error{Kind: engine.KindUnknown, Provider: provider, Err: errors.New("empty completion")}
	}
	return text, nil
}

// OpenStream pulls the first chunk before returning so that request-level
// failures (quota, auth, unavailable) surface here rather than from Recv.
func (e *Engine) OpenStream(ctx context.Context, model string, messages []engine.Message, opts engine.GenerateOptions) (engine.Stream, error) {
	contents, gcfg, err := buildRequest(messages, opts)
	if err != nil {
		return nil, err
	}
	next, stop := iter.Pull2(e.models.GenerateContentStream(ctx, model, contents, gcfg))
	s := &contentStream{next: next, stop: stop}

	first, err, ok := next()
	if !ok {
		s.Close()
		return s, nil
	}
	if err != nil {
		s.Close()
		return nil, classify(err)
	}
	if text := responseText(first); text != "" {
		s.pending = text
	}
	return s, nil
}

type contentStream struct {
	next    func() (*genai.GenerateContentResponse, error, bool)
	stop    func()
	pending string
	done    bool

	closeOnce sync.Once
}

func (s *contentStream) Recv() (string, error) {
	if s.pending != "" {
		out := s.pending
		s.pending = ""
		return out, nil
	}
	for !s.done {
		resp, err, ok := s.next()
		if !ok {
			s.done = true
			break
		}
		if err != nil {
			s.done = true
			return "", classify(err)
		}
		if text := responseText(resp); text != "" {
			return text, nil
		}
	}
	return "", io.EOF
}

func (s *contentStream) Close() error {
	s.closeOnce.Do(func() {
		s.done = true
		s.stop()
	})
	return nil
}

func buildRequest(messages []engine.Message, opts engine.GenerateOptions) ([]*genai.Content, *genai.GenerateContentConfig, error) {
	system, rest := engine.SplitSystem(messages)
	contents := make([]*genai.Content, 0, len(rest))
	for _, m := range rest {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		role := "user"
		if m.Role == "assistant" || m.Role == "model" {
			role = "model"
		}
		contents = append(contents, &genai.Content{Role: role, Parts: []*genai.Part{{Text: m.Content}}})
	}
	if len(contents) == 0 {
		return nil, nil, &engine.Error{Kind: engine.KindBadRequest, Provider: provider, Err: errors.New("no user messages")}
	}

	gcfg := &genai.GenerateContentConfig{}
	if system != "" {
		gcfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}
	if opts.MaxTokens > 0 {
		gcfg.MaxOutputTokens = int32(opts.MaxTokens)
	}
	if opts.Temperature > 0 {
		t := float32(opts.Temperature)
		gcfg.Temperature = &t
	}
	if opts.JSONMode {
		gcfg.ResponseMIMEType = "application/json"
	}
	return contents, gcfg, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if p != nil {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

func classify(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &engine.Error{
			Kind:       engine.KindForStatus(apiErr.Code),
			Provider:   provider,
			StatusCode: apiErr.Code,
			Err:        err,
		}
	}
	return engine.Wrap(provider, err)
}
