package app

import (
	"context"
	"fmt"

	"github.com/yungbote/curriculum-backend/internal/data/db"
	"github.com/yungbote/curriculum-backend/internal/http"
	"github.com/yungbote/curriculum-backend/internal/inference/config"
	"github.com/yungbote/curriculum-backend/internal/observability"
	"github.com/yungbote/curriculum-backend/internal/platform/dbctx"
	"github.com/yungbote/curriculum-backend/internal/platform/logger"
)

type App struct {
	Log      *logger.Logger
	Config   *config.Config
	Service  ServiceConfig
	Core     *Core
	Clients  Clients
	Repos    Repos
	Services Services
	Metrics  *observability.Metrics

	db           *db.Service
	server       *http.Server
	otelShutdown func(context.Context) error
}

func New(ctx context.Context) (*App, error) {
	LoadDotEnv()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logger.New(cfg.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	svcCfg := LoadServiceConfig()

	a := &App{Log: log, Config: cfg, Service: svcCfg}
	a.otelShutdown = observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: serviceName,
		Environment: cfg.Env,
		Version:     svcCfg.Version,
	})
	a.Metrics = observability.New()

	dbSvc, err := db.Open(db.ConfigFromEnv(), log)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init database: %w", err)
	}
	a.db = dbSvc
	if err := dbSvc.AutoMigrate(); err != nil {
		a.Close()
		return nil, fmt.Errorf("database automigrate: %w", err)
	}

	clients, err := wireClients(ctx, log)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Clients = clients

	core, err := NewCore(ctx, log, cfg, CoreOptions{Store: clients.Documents, Metrics: a.Metrics})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Core = core
	a.Repos = wireRepos(dbSvc.DB(), log)
	a.Services = wireServices(log, core, a.Repos)
	a.server = wireServer(log, cfg, svcCfg, clients, a.Metrics, wireHandlers(log, core, a.Services))

	log.Info("App initialized",
		"addr", cfg.HTTP.Addr,
		"default_model", cfg.Models.Default,
		"fallback_model", cfg.Models.Fallback,
		"strategy", cfg.Generation.Strategy,
	)
	return a, nil
}

// Run starts background collectors and serves HTTP until ctx is done.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.server == nil {
		return fmt.Errorf("app not initialized")
	}
	a.recoverStaleRuns(ctx)
	a.Metrics.StartDBCollector(ctx, a.Log, a.db.DB())
	if a.Clients.Redis != nil {
		a.Metrics.StartRedisCollector(ctx, a.Log, a.Clients.Redis)
	}
	a.Log.Info("HTTP server listening", "addr", a.Config.HTTP.Addr)
	return a.server.Run(ctx)
}

// recoverStaleRuns fails runs a previous process left running.
func (a *App) recoverStaleRuns(ctx context.Context) {
	n, err := a.Repos.GenerationRun.MarkStale(dbctx.New(ctx), a.Service.StaleRunAfter)
	if err != nil {
		a.Log.Warn("mark stale runs failed", "error", err)
		return
	}
	if n > 0 {
		a.Log.Info("marked stale generation runs failed", "count", n)
	}
}

func (a *App) Close() {
	if a == nil {
		return
	}
	a.Clients.Close()
	if a.db != nil {
		_ = a.db.Close()
	}
	if a.otelShutdown != nil {
		_ = a.otelShutdown(context.Background())
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}

