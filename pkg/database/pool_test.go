package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestStorePool_Reuse(t *testing.T) {
	ctx := context.Background()
	log := zaptest.NewLogger(t)
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	p := &StorePool{now: func() time.Time { return now }}

	assert.Equal(t, "no_connection", p.Stats()["status"])

	cfg := DatabaseConfig{Driver: DriverMemory}
	first, err := p.Get(ctx, cfg, log)
	require.NoError(t, err)

	again, err := p.Get(ctx, cfg, log)
	require.NoError(t, err)
	assert.Same(t, first, again)
	assert.Equal(t, "memory", p.Stats()["driver"])

	now = now.Add(poolIdleTimeout + time.Second)
	expired, err := p.Get(ctx, cfg, log)
	require.NoError(t, err)
	assert.NotSame(t, first, expired)

	changed, err := p.Get(ctx, DatabaseConfig{Driver: DriverMemory, Debug: true}, log)
	require.NoError(t, err)
	assert.NotSame(t, expired, changed)

	require.NoError(t, p.Reset())
	assert.Equal(t, "no_connection", p.Stats()["status"])
}

func TestStorePool_OpenError(t *testing.T) {
	p := &StorePool{now: time.Now}
	_, err := p.Get(context.Background(), DatabaseConfig{Driver: "oracle"}, zaptest.NewLogger(t))
	require.Error(t, err)
}

func TestResolveDriver(t *testing.T) {
	t.Setenv("VERCEL_ENV", "")
	t.Setenv("VERCEL_URL", "")
	t.Setenv("AWS_LAMBDA_FUNCTION_NAME", "")

	assert.Equal(t, DriverMemory, DatabaseConfig{Driver: " Memory "}.ResolveDriver())
	assert.Equal(t, DriverPostgres, DatabaseConfig{PostgresDSN: "postgres://x", SupabaseURL: "u", SupabaseKey: "k"}.ResolveDriver())
	assert.Equal(t, DriverSupabase, DatabaseConfig{SupabaseURL: "u", SupabaseKey: "k", SQLitePath: "x.db"}.ResolveDriver())
	assert.Equal(t, DriverSQLite, DatabaseConfig{SQLitePath: "x.db"}.ResolveDriver())
	assert.Equal(t, "", DatabaseConfig{}.ResolveDriver())

	t.Setenv("VERCEL_ENV", "production")
	assert.Equal(t, DriverSupabase, DatabaseConfig{PostgresDSN: "postgres://x", SupabaseURL: "u", SupabaseKey: "k"}.ResolveDriver())
}
