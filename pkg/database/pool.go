package database

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// 空闲超过该时间的连接在下次获取时重建
const poolIdleTimeout = 30 * time.Minute

// StorePool caches one Store per process so warm serverless invocations reuse
// the connection instead of dialing on every request.
type StorePool struct {
	mu       sync.Mutex
	instance Store
	config   DatabaseConfig
	lastUsed time.Time
	now      func() time.Time
}

var globalPool = &StorePool{now: time.Now}

// GetStore 获取数据库连接（单例模式 + 连接池）
func GetStore(ctx context.Context, cfg DatabaseConfig, log *zap.Logger) (Store, error) {
	return globalPool.Get(ctx, cfg, log)
}

// Get returns the cached store, opening a new one when none exists, the
// configuration changed, the connection sat idle too long or fails its
// health check.
func (p *StorePool) Get(ctx context.Context, cfg DatabaseConfig, log *zap.Logger) (Store, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.instance != nil {
		reason := p.staleReason(ctx, cfg)
		if reason == "" {
			p.lastUsed = p.now()
			log.Debug("Reusing existing database connection")
			return p.instance, nil
		}
		log.Info("Recreating database connection", zap.String("reason", reason))
		if err := p.instance.Close(); err != nil {
			log.Warn("Closing stale store failed", zap.Error(err))
		}
		p.instance = nil
	}

	store, err := Open(cfg, log)
	if err != nil {
		return nil, err
	}
	p.instance = store
	p.config = cfg
	p.lastUsed = p.now()
	return store, nil
}

// staleReason 判断是否需要重新创建连接
func (p *StorePool) staleReason(ctx context.Context, cfg DatabaseConfig) string {
	if p.config != cfg {
		return "configuration changed"
	}
	if p.now().Sub(p.lastUsed) > poolIdleTimeout {
		return "idle timeout"
	}
	if err := p.instance.HealthCheck(ctx); err != nil {
		return "health check failed: " + err.Error()
	}
	return ""
}

// Stats 获取连接池统计信息
func (p *StorePool) Stats() map[string]interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.instance == nil {
		return map[string]interface{}{"status": "no_connection"}
	}
	return map[string]interface{}{
		"status":    "connected",
		"driver":    p.config.ResolveDriver(),
		"last_used": p.lastUsed.Format(time.RFC3339),
		"idle":      p.now().Sub(p.lastUsed).String(),
	}
}

// Reset closes and forgets the cached store.
func (p *StorePool) Reset() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.instance == nil {
		return nil
	}
	err := p.instance.Close()
	p.instance = nil
	return err
}

// GetPoolStats 返回进程级连接池的状态（调试端点使用）
func GetPoolStats() map[string]interface{} {
	stats := globalPool.Stats()
	stats["vercel"] = IsVercelEnvironment()
	return stats
}
