package oaihttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/yungbote/curriculum-backend/internal/inference/config"
	"github.com/yungbote/curriculum-backend/internal/inference/engine"
)

type roundTripperFunc func(req *http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

func testConfig() config.EngineConfig {
	return config.EngineConfig{
		Type:                "oai_http",
		BaseURL:             "http://upstream",
		ChatCompletionsPath: "/v1/chat/completions",
		APIKey:              "k",
		Timeout:             config.Duration{Duration: 2 * time.Second},
	}
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(bytes.NewReader([]byte(body))),
	}
}

func TestGenerateTextSendsBudgetAndJSONMode(t *testing.T) {
	client := &http.Client{
		Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
			if req.URL.Path != "/v1/chat/completions" {
				t.Fatalf("unexpected path: %s", req.URL.Path)
			}
			if got := req.Header.Get("Authorization"); got != "Bearer k" {
				t.Fatalf("authorization=%q", got)
			}
			var payload map[string]any
			if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
				t.Fatalf("decode req: %v", err)
			}
			if payload["max_tokens"] != float64(8000) {
				t.Fatalf("max_tokens=%v", payload["max_tokens"])
			}
			if _, ok := payload["response_format"]; !ok {
				t.Fatalf("expected response_format")
			}
			msgs, _ := payload["messages"].([]any)
			if len(msgs) != 2 {
				t.Fatalf("expected 2 messages, got %d", len(msgs))
			}
			return jsonResponse(http.StatusOK, `{"choices":[{"message":{"content":"{\"ok\":true}"}}]}`), nil
		}),
	}

	e, err := NewWithHTTPClient(testConfig(), client)
	if err != nil {
		t.Fatalf("NewWithHTTPClient: %v", err)
	}

	out, err := e.GenerateText(context.Background(), "upstream-model", []engine.Message{
		{Role: "system", Content: "sys"},
		{Role: "user", Content: "user"},
	}, engine.GenerateOptions{MaxTokens: 8000, JSONMode: true})
	if err != nil {
		t.Fatalf("GenerateText: %v", err)
	}
	if out != `{"ok":true}` {
		t.Fatalf("out=%q", out)
	}
}

func TestGenerateTextClassifiesStatus(t *testing.T) {
	client := &http.Client{
		Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusTooManyRequests, `{"error":"rate limited"}`), nil
		}),
	}
	e, err := NewWithHTTPClient(testConfig(), client)
	if err != nil {
		t.Fatalf("NewWithHTTPClient: %v", err)
	}

	_, err = e.GenerateText(context.Background(), "m", []engine.Message{{Role: "user", Content: "x"}}, engine.GenerateOptions{})
	var ee *engine.Error
	if !errors.As(err, &ee) {
		t.Fatalf("expected *engine.Error, got %T %v", err, err)
	}
	if ee.Kind != engine.KindRateLimit || !ee.Retryable() {
		t.Fatalf("kind=%s retryable=%v", ee.Kind, ee.Retryable())
	}
}

func TestOpenStream(t *testing.T) {
	client := &http.Client{
		Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
			if !strings.Contains(req.Header.Get("Accept"), "text/event-stream") {
				t.Fatalf("accept=%q", req.Header.Get("Accept"))
			}
			sse := strings.Join([]string{
				`data: {"choices":[{"delta":{"content":"hel"}}]}`,
				"",
				`data: {"choices":[{"delta":{"content":"lo"}}]}`,
				"",
				"data: [DONE]",
				"",
				"",
			}, "\n")
			return &http.Response{
				StatusCode: http.StatusOK,
				Header:     http.Header{"Content-Type": []string{"text/event-stream"}},
				Body:       io.NopCloser(strings.NewReader(sse)),
			}, nil
		}),
	}

	e, err := NewWithHTTPClient(testConfig(), client)
	if err != nil {
		t.Fatalf("NewWithHTTPClient: %v", err)
	}

	stream, err := e.OpenStream(context.Background(), "upstream-model", []engine.Message{
		{Role: "user", Content: "hi"},
	}, engine.GenerateOptions{})
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}
	defer stream.Close()

	var fragments []string
	for {
		frag, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Recv: %v", err)
		}
		fragments = append(fragments, frag)
	}
	if strings.Join(fragments, "|") != "hel|lo" {
		t.Fatalf("fragments=%q", fragments)
	}
}

func TestOpenStreamFailsBeforeFirstFragment(t *testing.T) {
	client := &http.Client{
		Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusServiceUnavailable, "down"), nil
		}),
	}
	e, err := NewWithHTTPClient(testConfig(), client)
	if err != nil {
		t.Fatalf("NewWithHTTPClient: %v", err)
	}
	_, err = e.OpenStream(context.Background(), "m", []engine.Message{{Role: "user", Content: "x"}}, engine.GenerateOptions{})
	if engine.KindOf(err) != engine.KindServiceUnavailable {
		t.Fatalf("kind=%s err=%v", engine.KindOf(err), err)
	}
}

func TestOpenStreamTruncatedBeforeDone(t *testing.T) {
	client := &http.Client{
		Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
			sse := `data: {"choices":[{"delta":{"content":"{\"teacher_guide\": {"}}]}` + "\n\n"
			return &http.Response{
				StatusCode: http.StatusOK,
				Header:     http.Header{"Content-Type": []string{"text/event-stream"}},
				Body:       io.NopCloser(strings.NewReader(sse)),
			}, nil
		}),
	}
	e, err := NewWithHTTPClient(testConfig(), client)
	if err != nil {
		t.Fatalf("NewWithHTTPClient: %v", err)
	}
	stream, err := e.OpenStream(context.Background(), "m", []engine.Message{{Role: "user", Content: "x"}}, engine.GenerateOptions{})
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}
	defer stream.Close()

	if frag, err := stream.Recv(); err != nil || frag != `{"teacher_guide": {` {
		t.Fatalf("first Recv: frag=%q err=%v", frag, err)
	}
	_, err = stream.Recv()
	if errors.Is(err, io.EOF) || !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("err=%v, want unexpected EOF", err)
	}
	if engine.KindOf(err) != engine.KindConnection {
		t.Fatalf("kind=%s", engine.KindOf(err))
	}
}
