package app

import (
	"context"
	"fmt"

	"github.com/yungbote/curriculum-backend/internal/curriculum"
	"github.com/yungbote/curriculum-backend/internal/curriculum/prompts"
	"github.com/yungbote/curriculum-backend/internal/curriculum/render"
	"github.com/yungbote/curriculum-backend/internal/inference/config"
	"github.com/yungbote/curriculum-backend/internal/inference/executor"
	"github.com/yungbote/curriculum-backend/internal/inference/registry"
	"github.com/yungbote/curriculum-backend/internal/observability"
	"github.com/yungbote/curriculum-backend/internal/platform/gcp"
	"github.com/yungbote/curriculum-backend/internal/platform/logger"
)

// Core is the orchestration stack shared by the HTTP service and the CLI.
type Core struct {
	Registry  *registry.Registry
	Prompts   *prompts.Loader
	Executor  *executor.Executor
	Renderer  *render.Renderer
	Generator *curriculum.Generator
}

type CoreOptions struct {
	// Store receives rendered documents; nil keeps them local.
	Store   gcp.DocumentStore
	Metrics *observability.Metrics
	// NoRender disables the document renderer.
	NoRender bool
}

func NewCore(ctx context.Context, log *logger.Logger, cfg *config.Config, opts CoreOptions) (*Core, error) {
	log.Info("Wiring curriculum core...")

	reg, err := registry.New(ctx, cfg.Models, log)
	if err != nil {
		return nil, fmt.Errorf("init model registry: %w", err)
	}
	loader, err := prompts.NewLoader(ctx, log, prompts.Options{
		Dir:       cfg.Prompts.Dir,
		CacheSize: cfg.Prompts.CacheSize,
	})
	if err != nil {
		return nil, fmt.Errorf("init prompt loader: %w", err)
	}
	exec := executor.New(log, executor.PolicyFromConfig(cfg.Generation),
		executor.WithMaxConcurrent(cfg.Generation.MaxConcurrentCalls),
		executor.WithObserver(opts.Metrics),
	)

	genOpts := []curriculum.GeneratorOption{curriculum.WithObserver(opts.Metrics)}
	var renderer *render.Renderer
	if !opts.NoRender {
		renderer = render.New(log, cfg.Output.Dir, opts.Store)
		genOpts = append(genOpts, curriculum.WithRenderer(renderer))
	}
	gen := curriculum.NewGenerator(log, reg, loader, exec, curriculum.OptionsFromConfig(cfg.Generation), genOpts...)

	return &Core{
		Registry:  reg,
		Prompts:   loader,
		Executor:  exec,
		Renderer:  renderer,
		Generator: gen,
	}, nil
}
