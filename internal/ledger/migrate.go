package ledger

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"
)

//go:embed migrations/*/*.sql
var migrationsFS embed.FS

type DBDriver string

const (
	DBSQLite   DBDriver = "sqlite"
	DBPostgres DBDriver = "postgres"
)

// dialect carries the per-driver details the migration runner needs.
type dialect struct {
	dir         string
	table       string
	createTable string
	insert      string
	stamp       func(time.Time) any
}

var dialects = map[DBDriver]dialect{
	DBSQLite: {
		dir:         "migrations/sqlite",
		table:       "schema_migrations",
		createTable: `CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY, applied_at TEXT NOT NULL)`,
		insert:      `INSERT INTO schema_migrations(version, applied_at) VALUES(?, ?) ON CONFLICT(version) DO NOTHING`,
		stamp:       func(t time.Time) any { return t.Format(time.RFC3339) },
	},
	DBPostgres: {
		dir:         "migrations/postgres",
		table:       "triage_schema_migrations",
		createTable: `CREATE TABLE IF NOT EXISTS triage_schema_migrations (version TEXT PRIMARY KEY, applied_at TIMESTAMPTZ NOT NULL)`,
		insert:      `INSERT INTO triage_schema_migrations(version, applied_at) VALUES($1, $2) ON CONFLICT(version) DO NOTHING`,
		stamp:       func(t time.Time) any { return t },
	},
}

func dialectFor(driver DBDriver) (dialect, error) {
	d, ok := dialects[driver]
	if !ok {
		return dialect{}, fmt.Errorf("unsupported db driver: %s", driver)
	}
	return d, nil
}

// Migrate applies the embedded schema for driver. Each file runs in its own
// transaction together with its version row, so a rerun skips what landed.
func Migrate(db *sql.DB, driver DBDriver) error {
	if db == nil {
		return fmt.Errorf("missing db")
	}
	d, err := dialectFor(driver)
	if err != nil {
		return err
	}
	if _, err := db.Exec(d.createTable); err != nil {
		return fmt.Errorf("create %s: %w", d.table, err)
	}
	files, err := migrationFiles(d.dir)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	for _, file := range files {
		if err := applyMigration(db, d, file, now); err != nil {
			return err
		}
	}
	return nil
}

func applyMigration(db *sql.DB, d dialect, file string, now time.Time) (err error) {
	version := strings.TrimSuffix(path.Base(file), ".sql")
	body, err := migrationsFS.ReadFile(file)
	if err != nil {
		return err
	}
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.Exec(d.insert, version, d.stamp(now))
	if err != nil {
		return fmt.Errorf("record migration %s: %w", version, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return tx.Rollback()
	}
	if _, err := tx.Exec(string(body)); err != nil {
		return fmt.Errorf("apply migration %s: %w", version, err)
	}
	return tx.Commit()
}

func migrationFiles(dir string) ([]string, error) {
	matches, err := fs.Glob(migrationsFS, path.Join(dir, "*.sql"))
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("no migrations under %s", dir)
	}
	sort.Strings(matches)
	return matches, nil
}
