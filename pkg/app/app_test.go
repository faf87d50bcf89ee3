package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"safetrain-backend/pkg/config"
	"safetrain-backend/pkg/database"
	"safetrain-backend/pkg/models"
	"safetrain-backend/pkg/plans"
)

func testConfig() *config.Config {
	return &config.Config{
		Environment:    "test",
		Port:           "3000",
		DatabaseDriver: database.DriverMemory,
		JWTSecret:      "app-test",
		AllowedOrigins: []string{"*"},
		RequestTimeout: time.Second,
		MaxBodyBytes:   1 << 10,
		LogFormat:      "console",
	}
}

func TestLoadPlans(t *testing.T) {
	table, err := loadPlans("")
	require.NoError(t, err)
	assert.Same(t, plans.Default, table)

	_, err = loadPlans(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)

	// 自定义文件：free 计划放宽到 5 人
	src, err := os.ReadFile(filepath.Join("..", "plans", "plans.toml"))
	require.NoError(t, err)
	custom := strings.Replace(string(src), "staff_limit = 2", "staff_limit = 5", 1)
	path := filepath.Join(t.TempDir(), "plans.toml")
	require.NoError(t, os.WriteFile(path, []byte(custom), 0o600))

	table, err = loadPlans(path)
	require.NoError(t, err)
	n, ok := table.StaffLimit(models.TierFree).Value()
	require.True(t, ok)
	assert.Equal(t, 5, n)

	require.NoError(t, os.WriteFile(path, []byte("version = 1\n"), 0o600))
	_, err = loadPlans(path)
	assert.Error(t, err)
}

func TestNewUsesConfiguredPlans(t *testing.T) {
	src, err := os.ReadFile(filepath.Join("..", "plans", "plans.toml"))
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "plans.toml")
	require.NoError(t, os.WriteFile(path, []byte(strings.Replace(string(src), "staff_limit = 2", "staff_limit = 3", 1)), 0o600))

	cfg := testConfig()
	cfg.PlansFile = path
	a, err := New(context.Background(), cfg, database.NewMemoryStore(), zaptest.NewLogger(t))
	require.NoError(t, err)
	defer a.Close()

	assert.False(t, a.Cache.Enabled())
	n, _ := a.Services.Plans.StaffLimit(models.TierFree).Value()
	assert.Equal(t, 3, n)

	cfg.PlansFile = filepath.Join(t.TempDir(), "missing.toml")
	_, err = New(context.Background(), cfg, database.NewMemoryStore(), zaptest.NewLogger(t))
	assert.Error(t, err)
}

type closeFailStore struct {
	*database.MemoryStore
}

func (closeFailStore) Close() error { return errors.New("boom") }

func TestCloseReportsStoreError(t *testing.T) {
	a, err := New(context.Background(), testConfig(), closeFailStore{database.NewMemoryStore()}, zaptest.NewLogger(t))
	require.NoError(t, err)

	err = a.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "close store: boom")
}
