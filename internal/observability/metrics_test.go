package observability

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveAPI("GET", "/health", "200", time.Millisecond)
	m.ObserveModelCall("gemini-3-pro-preview", "curriculum", "success", 1, time.Second)
	m.ObserveGeneration("single", "success", false, time.Second)
	m.IncRateLimited("/generate")
	var buf bytes.Buffer
	if err := m.WritePrometheus(&buf); err != nil || buf.Len() != 0 {
		t.Fatalf("nil metrics wrote %q err=%v", buf.String(), err)
	}
}

func TestWritePrometheus(t *testing.T) {
	m := newMetrics()
	m.ObserveModelCall("gemini-3-pro-preview", "curriculum", "rate_limit", 3, 5*time.Second)
	m.ObserveModelCall("gemini-3-pro-preview", "curriculum", "success", 1, 2*time.Second)
	m.ObserveGeneration("parallel", "partial", true, 90*time.Second)

	if got := m.modelAttempts.Value("gemini-3-pro-preview", "curriculum"); got != 4 {
		t.Fatalf("attempts: got %v want 4", got)
	}

	var buf bytes.Buffer
	if err := m.WritePrometheus(&buf); err != nil {
		t.Fatalf("WritePrometheus: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"# TYPE curriculum_model_calls_total counter",
		`curriculum_model_calls_total{model="gemini-3-pro-preview",label="curriculum",outcome="rate_limit"} 1`,
		`curriculum_fallbacks_total{strategy="parallel"} 1`,
		`curriculum_generation_duration_seconds_bucket{strategy="parallel",le="120"} 1`,
		`curriculum_generation_duration_seconds_bucket{strategy="parallel",le="60"} 0`,
		`curriculum_generation_duration_seconds_count{strategy="parallel"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
}

func TestLabelStringEscapes(t *testing.T) {
	got := labelString([]string{"a", "b"}, []string{`x"y`})
	if got != `{a="x\"y",b="unknown"}` {
		t.Fatalf("labelString: %s", got)
	}
}

func TestParseHeaders(t *testing.T) {
	got := parseHeaders([]string{"api-key=abc", "bad", "x= ", "tenant = t1"})
	if len(got) != 2 || got["api-key"] != "abc" || got["tenant"] != "t1" {
		t.Fatalf("parseHeaders: %v", got)
	}
	if parseHeaders(nil) != nil {
		t.Fatalf("expected nil for empty input")
	}
}
