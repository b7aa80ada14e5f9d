package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/curriculum-backend/internal/platform/envutil"
)

const (
	StrategySingle   = "single"
	StrategyParallel = "parallel"

	EngineAnthropic = "anthropic"
	EngineGemini    = "gemini"
	EngineOAIHTTP   = "oai_http"
	EngineMock      = "mock"
)

// UnmarshalYAML accepts "90s" style strings or a bare number of seconds.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	s := strings.TrimSpace(node.Value)
	if s == "" || s == "null" || s == "~" {
		d.Duration = 0
		return nil
	}
	if node.Tag == "!!int" || node.Tag == "!!float" {
		secs, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return err
		}
		d.Duration = time.Duration(secs * float64(time.Second))
		return nil
	}
	dd, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("duration must look like \"5s\" or be a number of seconds: %w", err)
	}
	d.Duration = dd
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

func defaultConfig() *Config {
	return &Config{
		Env: "development",
		HTTP: HTTPConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: Duration{Duration: 5 * time.Second},
			IdleTimeout:       Duration{Duration: 2 * time.Minute},
			ShutdownTimeout:   Duration{Duration: 15 * time.Second},
			MaxRequestBytes:   1 << 20,
		},
		Models: ModelsConfig{
			Default:  "gemini-3-pro",
			Fallback: "claude-sonnet-4.5",
			Entries: []ModelConfig{
				{
					Key:         "claude-sonnet-4.5",
					BackendID:   "claude-sonnet-4-5-20250929",
					DisplayName: "Claude Sonnet 4.5",
					Provider:    "Anthropic",
					Engine:      EngineConfig{Type: EngineAnthropic, APIKeyEnv: "ANTHROPIC_API_KEY"},
				},
				{
					Key:         "gemini-3-pro",
					BackendID:   "gemini-3-pro-preview",
					DisplayName: "Gemini 3.0 Pro",
					Provider:    "Google",
					Engine:      EngineConfig{Type: EngineGemini, APIKeyEnv: "GEMINI_API_KEY"},
				},
			},
		},
		Generation: GenerationConfig{
			Strategy:               StrategySingle,
			Stream:                 true,
			BaseTokens:             16000,
			PerDayTokens:           8000,
			TeacherGuideTokens:     8000,
			StudentMaterialsTokens: 10000,
			CallTimeout:            Duration{Duration: 240 * time.Second},
			MaxAttempts:            3,
			BackoffBase:            Duration{Duration: 2 * time.Second},
			BackoffMax:             Duration{Duration: 10 * time.Second},
			PollInterval:           Duration{Duration: 500 * time.Millisecond},
			ProgressEveryFragments: 50,
			MaxConcurrentCalls:     8,
			Temperature:            0.7,
		},
		Prompts: PromptsConfig{CacheSize: 256},
		Output:  OutputConfig{Dir: "outputs"},
	}
}

// Default returns the built-in configuration with env overrides applied.
func Default() (*Config, error) {
	cfg := defaultConfig()
	applyEnv(cfg)
	if err := finalize(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads CURRICULUM_CONFIG_PATH (or ./config/curriculum.yaml when present)
// over the built-in defaults, then applies env overrides.
func Load() (*Config, error) {
	cfgPath := strings.TrimSpace(os.Getenv("CURRICULUM_CONFIG_PATH"))
	if cfgPath == "" {
		if wd, err := os.Getwd(); err == nil {
			p := filepath.Join(wd, "config", "curriculum.yaml")
			if _, err := os.Stat(p); err == nil {
				cfgPath = p
			}
		}
	}
	if cfgPath == "" {
		return Default()
	}
	b, err := os.ReadFile(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", cfgPath, err)
	}
	return Parse(b)
}

// Parse decodes YAML on top of the defaults. A models.entries list replaces the
// built-in table entirely.
func Parse(b []byte) (*Config, error) {
	cfg := defaultConfig()
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	applyEnv(cfg)
	if err := finalize(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Env = envutil.String("LOG_MODE", cfg.Env)
	cfg.HTTP.Addr = envutil.String("CURRICULUM_HTTP_ADDR", cfg.HTTP.Addr)
	if port := envutil.String("PORT", ""); port != "" {
		cfg.HTTP.Addr = ":" + strings.TrimPrefix(port, ":")
	}

	cfg.Models.Default = envutil.String("CURRICULUM_DEFAULT_MODEL", cfg.Models.Default)
	cfg.Models.Fallback = envutil.String("CURRICULUM_FALLBACK_MODEL", cfg.Models.Fallback)
	if override := envutil.String("CURRICULUM_ENGINE_OVERRIDE", ""); override != "" {
		for i := range cfg.Models.Entries {
			cfg.Models.Entries[i].Engine.Type = override
		}
	}

	g := &cfg.Generation
	g.Strategy = envutil.String("CURRICULUM_STRATEGY", g.Strategy)
	g.Stream = envutil.Bool("CURRICULUM_STREAM", g.Stream)
	g.CallTimeout.Duration = envutil.Duration("CURRICULUM_CALL_TIMEOUT", g.CallTimeout.Duration)
	g.MaxConcurrentCalls = envutil.Int("CURRICULUM_MAX_CONCURRENT_CALLS", g.MaxConcurrentCalls)

	cfg.Prompts.Dir = envutil.String("CURRICULUM_PROMPTS_DIR", cfg.Prompts.Dir)
	cfg.Output.Dir = envutil.String("CURRICULUM_OUTPUT_DIR", cfg.Output.Dir)
}

func finalize(cfg *Config) error {
	if cfg.Env == "" {
		cfg.Env = "development"
	}
	if strings.TrimSpace(cfg.HTTP.Addr) == "" {
		cfg.HTTP.Addr = ":8080"
	}
	if cfg.HTTP.MaxRequestBytes <= 0 {
		cfg.HTTP.MaxRequestBytes = 1 << 20
	}

	if len(cfg.Models.Entries) == 0 {
		return errors.New("config must define at least one model")
	}
	seen := make(map[string]bool, len(cfg.Models.Entries))
	for i := range cfg.Models.Entries {
		m := &cfg.Models.Entries[i]
		m.Key = strings.TrimSpace(m.Key)
		if m.Key == "" {
			return errors.New("model key is required")
		}
		if seen[m.Key] {
			return fmt.Errorf("duplicate model key %q", m.Key)
		}
		seen[m.Key] = true
		if strings.TrimSpace(m.BackendID) == "" {
			m.BackendID = m.Key
		}
		if strings.TrimSpace(m.DisplayName) == "" {
			m.DisplayName = m.Key
		}
		if err := finalizeEngine(m); err != nil {
			return err
		}
	}

	cfg.Models.Default = strings.TrimSpace(cfg.Models.Default)
	cfg.Models.Fallback = strings.TrimSpace(cfg.Models.Fallback)
	if !seen[cfg.Models.Default] {
		return fmt.Errorf("default model %q is not defined", cfg.Models.Default)
	}
	if !seen[cfg.Models.Fallback] {
		return fmt.Errorf("fallback model %q is not defined", cfg.Models.Fallback)
	}
	if cfg.Models.Default == cfg.Models.Fallback {
		return fmt.Errorf("fallback model must differ from default model (%q)", cfg.Models.Default)
	}

	g := &cfg.Generation
	g.Strategy = strings.ToLower(strings.TrimSpace(g.Strategy))
	switch g.Strategy {
	case "":
		g.Strategy = StrategySingle
	case StrategySingle, StrategyParallel:
	default:
		return fmt.Errorf("invalid generation.strategy=%q", g.Strategy)
	}
	for name, v := range map[string]int{
		"base_tokens":              g.BaseTokens,
		"teacher_guide_tokens":     g.TeacherGuideTokens,
		"student_materials_tokens": g.StudentMaterialsTokens,
		"max_attempts":             g.MaxAttempts,
		"progress_every_fragments": g.ProgressEveryFragments,
		"max_concurrent_calls":     g.MaxConcurrentCalls,
	} {
		if v <= 0 {
			return fmt.Errorf("generation.%s must be positive", name)
		}
	}
	if g.PerDayTokens < 0 {
		return errors.New("generation.per_day_tokens must not be negative")
	}
	for name, d := range map[string]time.Duration{
		"call_timeout":  g.CallTimeout.Duration,
		"backoff_base":  g.BackoffBase.Duration,
		"backoff_max":   g.BackoffMax.Duration,
		"poll_interval": g.PollInterval.Duration,
	} {
		if d <= 0 {
			return fmt.Errorf("generation.%s must be positive", name)
		}
	}

	if cfg.Prompts.CacheSize <= 0 {
		cfg.Prompts.CacheSize = 256
	}
	if strings.TrimSpace(cfg.Output.Dir) == "" {
		cfg.Output.Dir = "outputs"
	}
	return nil
}

func finalizeEngine(m *ModelConfig) error {
	e := &m.Engine
	e.Type = strings.ToLower(strings.TrimSpace(e.Type))
	e.BaseURL = strings.TrimRight(strings.TrimSpace(e.BaseURL), "/")
	if e.APIKey == "" && e.APIKeyEnv != "" {
		e.APIKey = strings.TrimSpace(os.Getenv(e.APIKeyEnv))
	}
	if e.Timeout.Duration < 0 {
		return fmt.Errorf("model %q invalid engine.timeout", m.Key)
	}

	switch e.Type {
	case EngineAnthropic:
		if e.BaseURL == "" {
			e.BaseURL = "https://api.anthropic.com"
		}
	case EngineGemini, EngineMock:
	case "openai_http", EngineOAIHTTP:
		e.Type = EngineOAIHTTP
		if e.BaseURL == "" {
			return fmt.Errorf("model %q (oai_http) missing engine.base_url", m.Key)
		}
		if strings.TrimSpace(e.ChatCompletionsPath) == "" {
			e.ChatCompletionsPath = "/v1/chat/completions"
		}
	case "":
		return fmt.Errorf("model %q missing engine.type", m.Key)
	default:
		return fmt.Errorf("model %q unknown engine.type=%q", m.Key, e.Type)
	}
	return nil
}
