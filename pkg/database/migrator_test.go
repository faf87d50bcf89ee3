package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestMigrator_Up(t *testing.T) {
	ctx := context.Background()
	log := zaptest.NewLogger(t)

	store, err := NewSQLiteStore(":memory:", log)
	require.NoError(t, err)
	defer store.Close()

	m := NewMigrator(store, log)
	v, err := m.Version(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, v)

	n, err := m.Up(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	v, err = m.Version(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, v)

	// second run is a no-op
	n, err = m.Up(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, n)

	var tables []string
	err = store.DB().SelectContext(ctx, &tables,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	require.NoError(t, err)
	require.Equal(t, []string{"course_assignments", "organizations", "schema_migrations", "team_members"}, tables)
}

func TestMigrate_SkipsUnmanagedStores(t *testing.T) {
	require.NoError(t, Migrate(context.Background(), NewMemoryStore(), zaptest.NewLogger(t)))
}

func TestSplitStatements(t *testing.T) {
	got := splitStatements("CREATE TABLE a (id INT);\n\n  CREATE INDEX b ON a (id);\n")
	require.Equal(t, []string{"CREATE TABLE a (id INT)", "CREATE INDEX b ON a (id)"}, got)
}

func TestScriptVersion(t *testing.T) {
	v, err := scriptVersion("0002_add_things.sql")
	require.NoError(t, err)
	require.Equal(t, 2, v)

	_, err = scriptVersion("init.sql")
	require.Error(t, err)
}
