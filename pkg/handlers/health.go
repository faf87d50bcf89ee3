package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"safetrain-backend/pkg/config"
	"safetrain-backend/pkg/database"
	"safetrain-backend/pkg/utils"
)

const (
	serviceName    = "safetrain-backend"
	serviceVersion = "1.0.0"

	readinessTimeout = 3 * time.Second
)

// Pinger is a dependency probed by the readiness check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler 健康检查
type HealthHandler struct {
	config *config.Config
	store  database.Store
	cache  Pinger
	log    *zap.Logger
}

func NewHealthHandler(cfg *config.Config, store database.Store, cache Pinger, log *zap.Logger) *HealthHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &HealthHandler{config: cfg, store: store, cache: cache, log: log.With(zap.String("handler", "health"))}
}

// GET /
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	// 测试数据库连接
	dbStatus := "healthy"
	if err := h.store.HealthCheck(r.Context()); err != nil {
		dbStatus = "unhealthy: " + err.Error()
	}

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"service":     serviceName,
		"version":     serviceVersion,
		"environment": h.config.Environment,
		"database":    h.config.Database().ResolveDriver(),
		"db_status":   dbStatus,
		"timestamp":   time.Now().Unix(),
		"status":      "healthy",
	})
}

// GET /healthz
// 数据库与缓存并行探测，任一失败返回 503
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	dbStatus, cacheStatus := "ok", "ok"
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := h.store.HealthCheck(gctx); err != nil {
			dbStatus = err.Error()
			return err
		}
		return nil
	})
	if h.cache != nil {
		g.Go(func() error {
			if err := h.cache.Ping(gctx); err != nil {
				cacheStatus = err.Error()
				return err
			}
			return nil
		})
	}

	err := g.Wait()
	checks := map[string]string{"database": dbStatus, "cache": cacheStatus}
	if err != nil {
		h.log.Warn("Readiness check failed", zap.Error(err))
		utils.WriteMessageResponse(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status": "unavailable",
			"checks": checks,
		}, "Service unavailable")
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{"status": "ready", "checks": checks})
}

// GET /debug/db-pool
func (h *HealthHandler) PoolStats(w http.ResponseWriter, r *http.Request) {
	utils.WriteSuccessResponse(w, database.GetPoolStats())
}
