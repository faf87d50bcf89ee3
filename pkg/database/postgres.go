package database

import (
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

// pgUniqueViolation is the SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

var postgresDialect = dialect{
	name:        DriverPostgres,
	placeholder: sq.Dollar,
	lockSuffix:  "FOR UPDATE",
	isUniqueViolation: func(err error) bool {
		var pqErr *pq.Error
		return errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation
	},
}

// NewPostgresStore 创建PostgreSQL存储实例
func NewPostgresStore(dsn string, log *zap.Logger) (*SQLStore, error) {
	// 尝试多种连接策略来解决Vercel Lambda的IPv6问题
	dsn = strings.TrimSpace(dsn)
	strategies := []string{
		addConnectionParams(dsn, "connect_timeout=10"),
		addConnectionParams(dsn, "sslmode=require&connect_timeout=10"),
		dsn, // 最后尝试原始DSN
	}

	var lastErr error
	for i, strategy := range strategies {
		log.Debug("Trying connection strategy", zap.Int("strategy", i+1))

		db, err := sqlx.Open("postgres", strategy)
		if err != nil {
			log.Warn("Connection strategy failed to open", zap.Int("strategy", i+1), zap.Error(err))
			lastErr = err
			continue
		}

		// 设置连接池参数，适合无服务器环境
		db.SetMaxOpenConns(5)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err = db.Ping(); err != nil {
			log.Warn("Connection strategy failed to ping", zap.Int("strategy", i+1), zap.Error(err))
			db.Close()
			lastErr = err
			continue
		}

		log.Info("PostgreSQL connection established", zap.Int("strategy", i+1))
		return newSQLStore(db, postgresDialect, log), nil
	}

	return nil, fmt.Errorf("failed to connect to PostgreSQL with all strategies: %w", lastErr)
}

// addConnectionParams 添加连接参数到DSN
func addConnectionParams(dsn, params string) string {
	if params == "" {
		return dsn
	}

	// key=value DSNs take space separated parameters
	if !strings.Contains(dsn, "://") {
		return dsn + " " + strings.ReplaceAll(params, "&", " ")
	}

	separator := "?"
	if strings.Contains(dsn, "?") {
		separator = "&"
	}

	return dsn + separator + params
}
