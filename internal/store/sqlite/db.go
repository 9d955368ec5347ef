// Package sqlite opens and migrates the SQLite backend.
package sqlite

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"huddle/internal/store/sqlstore"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Open opens a SQLite database. Foreign keys are enforced and times are
// written in a sortable text format. The pool is limited to one
// connection, which also keeps ":memory:" databases alive.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", withDefaults(dsn))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return db, nil
}

func withDefaults(dsn string) string {
	var params []string
	if !strings.Contains(dsn, "foreign_keys") {
		params = append(params, "_pragma=foreign_keys(1)")
	}
	if !strings.Contains(dsn, "busy_timeout") {
		params = append(params, "_pragma=busy_timeout(5000)")
	}
	if !strings.Contains(dsn, "_time_format") {
		params = append(params, "_time_format=sqlite")
	}
	if len(params) == 0 {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(params, "&")
}

// Migrate applies the embedded schema migrations.
func Migrate(db *sql.DB) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	// m.Close would close db as well.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

// New wraps db for the shared repositories.
func New(db *sql.DB) *sqlstore.DB {
	return sqlstore.New(db, sqlstore.SQLite)
}

// OpenMemory returns a migrated in-memory database, used by tests and
// throwaway servers.
func OpenMemory() (*sqlstore.DB, error) {
	db, err := Open("file::memory:")
	if err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return New(db), nil
}
