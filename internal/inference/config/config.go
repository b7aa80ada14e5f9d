package config

import "time"

type Duration struct {
	Duration time.Duration
}

type HTTPConfig struct {
	Addr              string   `yaml:"addr"`
	ReadHeaderTimeout Duration `yaml:"read_header_timeout"`
	IdleTimeout       Duration `yaml:"idle_timeout"`
	ShutdownTimeout   Duration `yaml:"shutdown_timeout"`
	MaxRequestBytes   int64    `yaml:"max_request_bytes"`
}

type EngineConfig struct {
	// Type selects the adapter: "anthropic", "gemini", "oai_http" or "mock".
	Type string `yaml:"type"`

	BaseURL string `yaml:"base_url,omitempty"`

	// APIKey wins over APIKeyEnv. Keys are normally supplied through the environment.
	APIKey    string `yaml:"api_key,omitempty"`
	APIKeyEnv string `yaml:"api_key_env,omitempty"`

	// ChatCompletionsPath only applies to oai_http engines.
	ChatCompletionsPath string `yaml:"chat_completions_path,omitempty"`

	// Transport-level ceiling. Per-call deadlines come from GenerationConfig.CallTimeout.
	Timeout Duration `yaml:"timeout,omitempty"`
}

type ModelConfig struct {
	// Key is what callers send ("gemini-3-pro").
	Key string `yaml:"key"`
	// BackendID is the identifier passed to the provider API.
	BackendID   string       `yaml:"backend_id"`
	DisplayName string       `yaml:"display_name"`
	Provider    string       `yaml:"provider"`
	Engine      EngineConfig `yaml:"engine"`
}

type ModelsConfig struct {
	Default  string        `yaml:"default"`
	Fallback string        `yaml:"fallback"`
	Entries  []ModelConfig `yaml:"entries"`
}

type GenerationConfig struct {
	// Strategy is "single" or "parallel".
	Strategy string `yaml:"strategy"`
	// Stream controls whether the single-call strategy consumes the model as a fragment stream.
	Stream bool `yaml:"stream"`

	BaseTokens             int `yaml:"base_tokens"`
	PerDayTokens           int `yaml:"per_day_tokens"`
	TeacherGuideTokens     int `yaml:"teacher_guide_tokens"`
	StudentMaterialsTokens int `yaml:"student_materials_tokens"`

	CallTimeout  Duration `yaml:"call_timeout"`
	MaxAttempts  int      `yaml:"max_attempts"`
	BackoffBase  Duration `yaml:"backoff_base"`
	BackoffMax   Duration `yaml:"backoff_max"`
	PollInterval Duration `yaml:"poll_interval"`

	ProgressEveryFragments int     `yaml:"progress_every_fragments"`
	MaxConcurrentCalls     int     `yaml:"max_concurrent_calls"`
	Temperature            float64 `yaml:"temperature"`
}

type PromptsConfig struct {
	// Dir overrides the embedded templates and reference data file by file.
	Dir       string `yaml:"dir"`
	CacheSize int    `yaml:"cache_size"`
}

type OutputConfig struct {
	Dir string `yaml:"dir"`
}

type Config struct {
	Env        string           `yaml:"env"`
	HTTP       HTTPConfig       `yaml:"http"`
	Models     ModelsConfig     `yaml:"models"`
	Generation GenerationConfig `yaml:"generation"`
	Prompts    PromptsConfig    `yaml:"prompts"`
	Output     OutputConfig     `yaml:"output"`
}
