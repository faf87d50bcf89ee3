// Package app wires configuration, storage, cache, services and the HTTP
// router into one runnable application.
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"safetrain-backend/pkg/cache"
	"safetrain-backend/pkg/config"
	"safetrain-backend/pkg/courses"
	"safetrain-backend/pkg/database"
	"safetrain-backend/pkg/plans"
	"safetrain-backend/pkg/router"
	"safetrain-backend/pkg/services"
	"safetrain-backend/pkg/utils"
)

// App is a fully wired application.
type App struct {
	Config   *config.Config
	Store    database.Store
	Cache    *cache.OrgCache
	Services *services.Services
	Registry *prometheus.Registry
	Handler  http.Handler
	Log      *zap.Logger
}

// New builds the application around store. The cache connects to
// cfg.RedisURL and stays disabled when it is empty or unreachable.
func New(ctx context.Context, cfg *config.Config, store database.Store, log *zap.Logger) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}

	table, err := loadPlans(cfg.PlansFile)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	orgCache := cache.New(ctx, cfg.RedisURL, cfg.OrgCacheTTL, log.Named("cache"))

	deps := services.Deps{
		Store:   store,
		Plans:   table,
		Courses: courses.Default,
		Metrics: services.NewMetrics(registry),
		Log:     log.Named("service"),
	}
	// 缓存不可用时不传，避免每次查询都走一遍空操作
	if orgCache.Enabled() {
		deps.Cache = orgCache
	}
	svc := services.New(deps)

	a := &App{
		Config:   cfg,
		Store:    store,
		Cache:    orgCache,
		Services: svc,
		Registry: registry,
		Log:      log,
	}
	a.Handler = router.New(router.Deps{
		Config:   cfg,
		Services: svc,
		Store:    store,
		Cache:    orgCache,
		JWT:      utils.NewJWTService(cfg.JWTSecret),
		Gatherer: registry,
		Log:      log,
	})
	return a, nil
}

// loadPlans reads the plan table from path, or returns the embedded table.
func loadPlans(path string) (*plans.Table, error) {
	if path == "" {
		return plans.Default, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open plan table: %w", err)
	}
	defer f.Close()

	table, err := plans.Load(f)
	if err != nil {
		return nil, fmt.Errorf("load plan table %s: %w", path, err)
	}
	return table, nil
}

// Close releases the cache and the store. Both are closed even when one fails.
func (a *App) Close() error {
	var result *multierror.Error
	if err := a.Cache.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("close cache: %w", err))
	}
	if err := a.Store.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("close store: %w", err))
	}
	return result.ErrorOrNil()
}
