package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/yungbote/curriculum-backend/internal/inference/config"
	"github.com/yungbote/curriculum-backend/internal/inference/engine"
	"github.com/yungbote/curriculum-backend/internal/inference/engine/anthropic"
	"github.com/yungbote/curriculum-backend/internal/inference/engine/gemini"
	"github.com/yungbote/curriculum-backend/internal/inference/engine/mock"
	"github.com/yungbote/curriculum-backend/internal/inference/engine/oaihttp"
	"github.com/yungbote/curriculum-backend/internal/platform/logger"
)

var ErrUnknownModel = errors.New("unknown model")

type UnknownModelError struct {
	Key string
}

func (e *UnknownModelError) Error() string { return fmt.Sprintf("unknown model %q", e.Key) }

func (e *UnknownModelError) Is(target error) bool { return target == ErrUnknownModel }

// Descriptor is the public face of a model.
type Descriptor struct {
	Key         string `json:"key"`
	BackendID   string `json:"backend_id"`
	DisplayName string `json:"name"`
	Provider    string `json:"provider"`
}

type Route struct {
	Descriptor
	Engine engine.Engine
}

// Registry is built once at startup and only read afterwards.
type Registry struct {
	routes      map[string]Route
	order       []string
	defaultKey  string
	fallbackKey string
}

// New builds an engine per configured model. A model whose adapter cannot be
// constructed (missing key) is still registered, backed by engine.Unconfigured.
func New(ctx context.Context, cfg config.ModelsConfig, log *logger.Logger) (*Registry, error) {
	routes := make([]Route, 0, len(cfg.Entries))
	for _, m := range cfg.Entries {
		eng, err := buildEngine(ctx, m.Engine)
		if err != nil {
			if log != nil {
				log.Warn("model unavailable", "model", m.Key, "engine", m.Engine.Type, "error", err)
			}
			eng = engine.Unconfigured{Provider: m.Engine.Type, Reason: err}
		}
		routes = append(routes, Route{
			Descriptor: Descriptor{
				Key:         m.Key,
				BackendID:   m.BackendID,
				DisplayName: m.DisplayName,
				Provider:    m.Provider,
			},
			Engine: eng,
		})
	}
	return NewFromRoutes(cfg.Default, cfg.Fallback, routes...)
}

func buildEngine(ctx context.Context, ec config.EngineConfig) (engine.Engine, error) {
	switch strings.ToLower(strings.TrimSpace(ec.Type)) {
	case config.EngineMock:
		return mock.New(), nil
	case config.EngineAnthropic:
		return anthropic.New(ec)
	case config.EngineGemini:
		return gemini.New(ctx, ec)
	case config.EngineOAIHTTP, "openai_http":
		return oaihttp.New(ec)
	default:
		return nil, fmt.Errorf("unsupported engine type %q", ec.Type)
	}
}

// NewFromRoutes assembles a registry from prebuilt routes, in listing order.
func NewFromRoutes(defaultKey, fallbackKey string, routes ...Route) (*Registry, error) {
	r := &Registry{
		routes:      make(map[string]Route, len(routes)),
		defaultKey:  strings.TrimSpace(defaultKey),
		fallbackKey: strings.TrimSpace(fallbackKey),
	}
	for _, rt := range routes {
		key := strings.TrimSpace(rt.Key)
		if key == "" {
			return nil, errors.New("model key required")
		}
		if _, exists := r.routes[key]; exists {
			return nil, fmt.Errorf("duplicate model key: %s", key)
		}
		if rt.Engine == nil {
			return nil, fmt.Errorf("model %s has no engine", key)
		}
		rt.Key = key
		if rt.BackendID == "" {
			rt.BackendID = key
		}
		r.routes[key] = rt
		r.order = append(r.order, key)
	}
	if _, ok := r.routes[r.defaultKey]; !ok {
		return nil, fmt.Errorf("default model %q not registered", r.defaultKey)
	}
	if _, ok := r.routes[r.fallbackKey]; !ok {
		return nil, fmt.Errorf("fallback model %q not registered", r.fallbackKey)
	}
	if r.defaultKey == r.fallbackKey {
		return nil, errors.New("fallback model must differ from default model")
	}
	return r, nil
}

// Resolve returns the route for key, or the default route when key is empty.
func (r *Registry) Resolve(key string) (Route, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		key = r.defaultKey
	}
	route, ok := r.routes[key]
	if !ok {
		return Route{}, &UnknownModelError{Key: key}
	}
	return route, nil
}

// DisplayName never fails; unknown keys are echoed back.
func (r *Registry) DisplayName(key string) string {
	if route, err := r.Resolve(key); err == nil && route.DisplayName != "" {
		return route.DisplayName
	}
	return key
}

// IsFallbackEligible reports whether a failure on key may be retried on the
// fallback model. The fallback model itself never is.
func (r *Registry) IsFallbackEligible(key string) bool {
	key = strings.TrimSpace(key)
	if key == "" {
		key = r.defaultKey
	}
	return key != r.fallbackKey
}

func (r *Registry) Has(key string) bool {
	_, ok := r.routes[strings.TrimSpace(key)]
	return ok
}

func (r *Registry) DefaultKey() string  { return r.defaultKey }
func (r *Registry) FallbackKey() string { return r.fallbackKey }

func (r *Registry) Models() []Descriptor {
	out := make([]Descriptor, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.routes[key].Descriptor)
	}
	return out
}
