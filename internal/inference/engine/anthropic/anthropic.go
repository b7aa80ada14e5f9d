package anthropic

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

const (
	provider   = "anthropic"
	apiVersion = "2023-06-01"
	// Messages API requires max_tokens; used when the caller leaves it unset.
	defaultMaxTokens = 4096
)

// Engine calls the Anthropic Messages API directly over HTTP.
type Engine struct {
	baseURL    string
	apiKey     string
	timeout    time.Duration
	httpClient *http.Client
}

func New(cfg config.EngineConfig) (*Engine, error) {
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, errors.New("anthropic: api key required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        20,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	return &Engine{
		baseURL:    baseURL,
		apiKey:     key,
		timeout:    cfg.Timeout.Duration,
		httpClient: &http.Client{Transport: tr},
	}, nil
}

// NewWithHTTPClient is intended for tests.
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

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesRequest struct {
	Model       string    `json:"model"`
	System      string    `json:"system,omitempty"`
	Messages    []message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature,omitempty"`
	Stream      bool      `json:"stream,omitempty"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

type streamEvent struct {
	Type  string `json:"type"`
	Delta *struct {
		Type string `json:"type"`
		Text string `json:"text,omitempty"`
	} `json:"delta,omitempty"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (e *Engine) GenerateText(ctx context.Context, model string, messages []engine.Message, opts engine.GenerateOptions) (string, error) {
	body, err := e.buildRequest(model, messages, opts, false)
	if err != nil {
		return "", err
	}

	ctx2 := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx2, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	resp, err := e.post(ctx2, body, "application/json")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out messagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", engine.Wrap(provider, fmt.Errorf("decode messages response: %w", err))
	}
	var b strings.Builder
	for _, block := range out.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if strings.TrimSpace(b.String()) == "" {
		return "", &engine.Error{Kind: engine.KindUnknown, Provider: provider, Err: fmt.Errorf("empty completion (stop_reason=%s)", out.StopReason)}
	}
	return b.String(), nil
}

func (e *Engine) OpenStream(ctx context.Context, model string, messages []engine.Message, opts engine.GenerateOptions) (engine.Stream, error) {
	body, err := e.buildRequest(model, messages, opts, true)
	if err != nil {
		return nil, err
	}
	resp, err := e.post(ctx, body, "text/event-stream")
	if err != nil {
		return nil, err
	}
	return &messageStream{body: resp.Body, sse: engine.NewSSEReader(resp.Body)}, nil
}

func (e *Engine) buildRequest(model string, messages []engine.Message, opts engine.GenerateOptions, stream bool) ([]byte, error) {
	system, rest := engine.SplitSystem(messages)
	req := messagesRequest{
		Model:       model,
		System:      system,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
		Stream:      stream,
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = defaultMaxTokens
	}
	for _, m := range rest {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		req.Messages = append(req.Messages, message{Role: m.Role, Content: m.Content})
	}
	if len(req.Messages) == 0 {
		return nil, &engine.Error{Kind: engine.KindBadRequest, Provider: provider, Err: errors.New("no user messages")}
	}
	return json.Marshal(req)
}

func (e *Engine) post(ctx context.Context, body []byte, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", accept)
	req.Header.Set("x-api-key", e.apiKey)
	req.Header.Set("anthropic-version", apiVersion)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, engine.Wrap(provider, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return nil, engine.FromHTTPStatus(provider, resp.StatusCode, string(raw))
	}
	return resp, nil
}

type messageStream struct {
	body io.ReadCloser
	sse  *engine.SSEReader
	done bool
	// stopped is set once message_stop arrives; EOF before it is a dropped connection.
	stopped bool
	err     error

	closeOnce sync.Once
}

func (s *messageStream) Recv() (string, error) {
	for {
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
				if !s.stopped {
					s.err = &engine.Error{Kind: engine.KindConnection, Provider: provider, Err: io.ErrUnexpectedEOF}
				}
				continue
			}
			return "", engine.Wrap(provider, err)
		}
		var evt streamEvent
		if err := json.Unmarshal([]byte(data), &evt); err != nil {
			continue
		}
		switch evt.Type {
		case "content_block_delta":
			if evt.Delta != nil && evt.Delta.Text != "" {
				return evt.Delta.Text, nil
			}
		case "message_stop":
			s.stopped = true
			s.done = true
		case "error":
			if evt.Error == nil {
				return "", &engine.Error{Kind: engine.KindUnknown, Provider: provider, Err: errors.New("stream error")}
			}
			return "", &engine.Error{Kind: streamErrorKind(evt.Error.Type), Provider: provider, Err: errors.New(evt.Error.Message)}
		}
	}
}

func (s *messageStream) Close() error {
	var err error
	s.closeOnce.Do(func() { err = s.body.Close() })
	return err
}

func streamErrorKind(t string) engine.ErrorKind {
	switch t {
	case "overloaded_error", "api_error":
		return engine.KindOverloaded
	case "rate_limit_error":
		return engine.KindRateLimit
	case "authentication_error", "permission_error":
		return engine.KindAuthentication
	case "invalid_request_error", "not_found_error":
		return engine.KindBadRequest
	default:
		return engine.KindUnknown
	}
}
