package database

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

//go:embed migrations
var migrationFiles embed.FS

const migrationsTableName = "schema_migrations"

// Migrator applies the embedded schema scripts for the store's dialect.
// Scripts are named NNNN_description.sql and applied in order, each inside
// its own transaction together with its bookkeeping row.
type Migrator struct {
	store *SQLStore
	log   *zap.Logger
}

func NewMigrator(store *SQLStore, log *zap.Logger) *Migrator {
	return &Migrator{store: store, log: log}
}

// Up applies every migration newer than the recorded version and returns
// how many were applied.
func (m *Migrator) Up(ctx context.Context) (int, error) {
	source, err := fs.Sub(migrationFiles, "migrations/"+m.store.Dialect())
	if err != nil {
		return 0, err
	}
	list, err := fs.ReadDir(source, ".")
	if err != nil {
		return 0, err
	}
	// sort by file name so the numeric prefix decides the order
	sort.Slice(list, func(i, j int) bool {
		return list[i].Name() < list[j].Name()
	})
	if len(list) == 0 {
		return 0, nil
	}

	if err := m.ensureTable(ctx); err != nil {
		return 0, err
	}
	current, err := m.Version(ctx)
	if err != nil {
		return 0, err
	}

	final, err := scriptVersion(list[len(list)-1].Name())
	if err != nil {
		return 0, err
	}
	if final > current {
		m.log.Info("Bringing up schema migrations", zap.Int("migration_count", final-current))
	}

	applied := 0
	for _, f := range list {
		n := f.Name()
		v, err := scriptVersion(n)
		if err != nil {
			return applied, err
		}
		if v <= current {
			continue
		}

		m.log.Debug("Executing schema migration", zap.String("migration_name", n))
		script, err := fs.ReadFile(source, n)
		if err != nil {
			return applied, err
		}
		if err := m.apply(ctx, v, string(script)); err != nil {
			return applied, fmt.Errorf("migration %s: %w", n, err)
		}
		applied++
	}
	return applied, nil
}

// Version returns the highest applied migration, 0 when none.
func (m *Migrator) Version(ctx context.Context) (int, error) {
	if err := m.ensureTable(ctx); err != nil {
		return 0, err
	}
	var v int
	err := m.store.db.GetContext(ctx, &v, "SELECT COALESCE(MAX(version), 0) FROM "+migrationsTableName)
	return v, err
}

func (m *Migrator) ensureTable(ctx context.Context) error {
	_, err := m.store.db.ExecContext(ctx,
		"CREATE TABLE IF NOT EXISTS "+migrationsTableName+" (version INTEGER NOT NULL PRIMARY KEY)")
	return err
}

func (m *Migrator) apply(ctx context.Context, version int, script string) error {
	return m.store.inTx(ctx, func(tx *sqlx.Tx) error {
		for _, stmt := range splitStatements(script) {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
		query, args, err := m.store.builder().
			Insert(migrationsTableName).
			Columns("version").
			Values(version).
			ToSql()
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, query, args...)
		return err
	})
}

// splitStatements breaks a script on semicolons. Scripts must not contain
// semicolons inside literals.
func splitStatements(script string) []string {
	var out []string
	for _, stmt := range strings.Split(script, ";") {
		if s := strings.TrimSpace(stmt); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// extract the version number as an integer from a file named like "0002_migration_name.sql"
func scriptVersion(filename string) (int, error) {
	vString := strings.Split(filename, "_")[0]
	vInt, err := strconv.Atoi(vString)
	if err != nil {
		return 0, err
	}

	return vInt, nil
}

// Migrate brings the schema of s up to date when s is SQL backed. Hosted
// (Supabase) and in-memory stores are left alone; the Supabase schema is
// applied by pointing POSTGRES_DSN at the same database.
func Migrate(ctx context.Context, s Store, log *zap.Logger) error {
	sqlStore, ok := s.(*SQLStore)
	if !ok {
		log.Info("Store has no managed schema, skipping migrations")
		return nil
	}
	n, err := NewMigrator(sqlStore, log).Up(ctx)
	if err != nil {
		return err
	}
	log.Info("Schema up to date", zap.String("dialect", sqlStore.Dialect()), zap.Int("applied", n))
	return nil
}
