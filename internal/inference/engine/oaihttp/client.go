package oaihttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/yungbote/curriculum-backend/internal/inference/config"
	"github.com/yungbote/curriculum-backend/internal/inference/engine"
)

const provider = "oai_http"

// Engine talks to any OpenAI-compatible chat completions server (vLLM, SGLang,
// LiteLLM proxy, OpenAI itself).
type Engine struct {
	baseURL string
	apiKey  string

	chatCompletionsPath string
	timeout             time.Duration

	httpClient *http.Client
}

func New(cfg config.EngineConfig) (*Engine, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("oai_http: base_url required")
	}

	chatPath := strings.TrimSpace(cfg.ChatCompletionsPath)
	if chatPath == "" {
		chatPath = "/v1/chat/completions"
	}

	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &Engine{
		baseURL:             baseURL,
		apiKey:              strings.TrimSpace(cfg.APIKey),
		chatCompletionsPath: chatPath,
		timeout:             cfg.Timeout.Duration,
		httpClient:          &http.Client{Transport: tr},
	}, nil
}

// NewWithHTTPClient is intended for tests; it avoids network access by using a custom RoundTripper.
func NewWithHTTPClient(cfg config.EngineConfig, httpClient *http.Client) (*Engine, error) {
	e, err := New(cfg)
	if err != nil {
		return nil, err
	}
	if httpClient != nil {
		e.httpClient = httpClient
	}
	return e, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Temperature    float64        `json:"temperature,omitempty"`
	MaxTokens      int            `json:"max_tokens,omitempty"`
	Stream         bool           `json:"stream,omitempty"`
	ResponseFormat map[string]any `json:"response_format,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content,omitempty"`
		} `json:"message,omitempty"`
		Text string `json:"text,omitempty"`
	} `json:"choices"`
}

type chatCompletionStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content,omitempty"`
		} `json:"delta,omitempty"`
		Text string `json:"text,omitempty"`
	} `json:"choices"`
	Error any `json:"error,omitempty"`
}

func (e *Engine) GenerateText(ctx context.Context, model string, messages []engine.Message, opts engine.GenerateOptions) (string, error) {
	chatMsgs := toChatMessages(messages)
	if len(chatMsgs) == 0 {
		return "", &engine.Error{Kind: engine.KindBadRequest, Provider: provider, Err: errors.New("no messages")}
	}

	var resp chatCompletionResponse
	if err := e.doJSON(ctx, e.buildChatRequest(model, chatMsgs, opts, false), &resp); err != nil {
		return "", err
	}
	text := extractChatText(resp)
	if strings.TrimSpace(text) == "" {
		return "", &engine.Error{Kind: engine.KindUnknown, Provider: provider, Err: errors.New("empty upstream completion")}
	}
	return text, nil
}

func (e *Engine) OpenStream(ctx context.Context, model string, messages []engine.Message, opts engine.GenerateOptions) (engine.Stream, error) {
	chatMsgs := toChatMessages(messages)
	if len(chatMsgs) == 0 {
		return nil, &engine.Error{Kind: engine.KindBadRequest, Provider: provider, Err: errors.New("no messages")}
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(e.buildChatRequest(model, chatMsgs, opts, true)); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+e.chatCompletionsPath, &buf)
	if err != nil {
		return nil, err
	}
	e.setHeaders(req, "text/event-stream")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, engine.Wrap(provider, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return nil, engine.FromHTTPStatus(provider, resp.StatusCode, string(raw))
	}
	return &chatStream{body: resp.Body, sse: engine.NewSSEReader(resp.Body)}, nil
}

type chatStream struct {
	body    io.ReadCloser
	sse     *engine.SSEReader
	pending []string
	done    bool
	// finished is set by [DONE]; EOF before it is a dropped connection.
	finished bool
	err      error

	closeOnce sync.Once
}

func (s *chatStream) Recv() (string, error) {
	for {
		if len(s.pending) > 0 {
			next := s.pending[0]
			s.pending = s.pending[1:]
			return next, nil
		}
		if s.done {
			if s.err != nil {
				return "", s.err
			}
			return "", io.EOF
		}

		_, data, err := s.sse.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.done = true
				if !s.finished {
					s.err = &engine.Error{Kind: engine.KindConnection, Provider: provider, Err: io.ErrUnexpectedEOF}
				}
				continue
			}
			return "", engine.Wrap(provider, err)
		}
		data = strings.TrimSpace(data)
		if data == "" {
			continue
		}
		if data == "[DONE]" {
			s.finished = true
			s.done = true
			continue
		}

		var chunk chatCompletionStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		if chunk.Error != nil {
			b, _ := json.Marshal(chunk.Error)
			return "", &engine.Error{Kind: engine.KindOverloaded, Provider: provider, Err: fmt.Errorf("upstream stream error: %s", b)}
		}
		for _, c := range chunk.Choices {
			delta := c.Delta.Content
			if delta == "" {
				delta = c.Text
			}
			if delta != "" {
				s.pending = append(s.pending, delta)
			}
		}
	}
}

func (s *chatStream) Close() error {
	var err error
	s.closeOnce.Do(func() { err = s.body.Close() })
	return err
}

func (e *Engine) buildChatRequest(model string, messages []chatMessage, opts engine.GenerateOptions, stream bool) chatCompletionRequest {
	req := chatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		Stream:      stream,
	}
	if opts.JSONMode {
		req.ResponseFormat = map[string]any{"type": "json_object"}
	}
	return req
}

func toChatMessages(messages []engine.Message) []chatMessage {
	out := make([]chatMessage, 0, len(messages))
	for _, m := range messages {
		role := strings.TrimSpace(m.Role)
		content := strings.TrimSpace(m.Content)
		if role == "" || content == "" {
			continue
		}
		out = append(out, chatMessage{Role: role, Content: content})
	}
	return out
}

func extractChatText(resp chatCompletionResponse) string {
	for _, c := range resp.Choices {
		if strings.TrimSpace(c.Message.Content) != "" {
			return c.Message.Content
		}
		if strings.TrimSpace(c.Text) != "" {
			return c.Text
		}
	}
	return ""
}

func (e *Engine) setHeaders(req *http.Request, accept string) {
	req.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(accept) != "" {
		req.Header.Set("Accept", accept)
	}
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}
}

func (e *Engine) doJSON(ctx context.Context, body any, out any) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return err
	}

	ctx2 := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx2, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx2, http.MethodPost, e.baseURL+e.chatCompletionsPath, &buf)
	if err != nil {
		return err
	}
	e.setHeaders(req, "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return engine.Wrap(provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return engine.FromHTTPStatus(provider, resp.StatusCode, string(raw))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return engine.Wrap(provider, fmt.Errorf("decode completion: %w", err))
	}
	return nil
}
