package handler

import (
	"context"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"safetrain-backend/pkg/app"
	"safetrain-backend/pkg/config"
	"safetrain-backend/pkg/database"
	"safetrain-backend/pkg/logger"
	"safetrain-backend/pkg/utils"
)

var (
	logOnce sync.Once
	baseLog *zap.Logger

	appMu  sync.Mutex
	warmed *app.App
)

// Handler 是Vercel函数的入口点
// 这个函数实现了"单体路由模式"，将所有API端点集中在一个Chi路由器中管理
func Handler(w http.ResponseWriter, r *http.Request) {
	// 加载配置
	cfg := config.GetCached()

	// 验证配置
	if err := cfg.Validate(); err != nil {
		utils.WriteInternalServerErrorResponse(w, "Configuration error: "+err.Error())
		return
	}
	log := getLogger(cfg)

	// 获取复用的数据库连接（由连接池管理，无需手动关闭）
	store, err := database.GetStore(r.Context(), cfg.Database(), log)
	if err != nil {
		log.Error("Failed to open store", zap.Error(err))
		utils.WriteInternalServerErrorResponse(w, "Database unavailable")
		return
	}

	a, err := getApp(r.Context(), cfg, store, log)
	if err != nil {
		log.Error("Failed to build application", zap.Error(err))
		utils.WriteInternalServerErrorResponse(w, "Configuration error: "+err.Error())
		return
	}

	// 将请求传递给Chi路由器处理
	a.Handler.ServeHTTP(w, r)
}

func getLogger(cfg *config.Config) *zap.Logger {
	logOnce.Do(func() {
		l := logger.Must(logger.Options{
			Level:       cfg.LogLevel,
			Format:      cfg.LogFormat,
			Development: cfg.IsDevelopment(),
		})
		for _, warning := range cfg.Warnings() {
			l.Warn(warning)
		}
		baseLog = l
	})
	return baseLog
}

// getApp 在热启动间复用路由器；连接池换了连接时重建
func getApp(ctx context.Context, cfg *config.Config, store database.Store, log *zap.Logger) (*app.App, error) {
	appMu.Lock()
	defer appMu.Unlock()

	if warmed != nil && warmed.Store == store {
		return warmed, nil
	}
	if warmed != nil {
		// store 已由连接池关闭，这里只释放缓存连接
		if err := warmed.Cache.Close(); err != nil {
			log.Warn("Closing cache failed", zap.Error(err))
		}
	}

	a, err := app.New(ctx, cfg, store, log)
	if err != nil {
		return nil, err
	}
	warmed = a
	return a, nil
}
