// Package sqlstore implements the domain repositories over database/sql.
// Queries are written with '?' placeholders and rebound per dialect.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"huddle/internal/domain"
)

type Dialect int

const (
	SQLite Dialect = iota
	Postgres
)

// DB wraps a *sql.DB with its placeholder dialect.
type DB struct {
	*sql.DB
	dialect Dialect
}

func New(db *sql.DB, dialect Dialect) *DB {
	return &DB{DB: db, dialect: dialect}
}

type runner interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

func (d *DB) rebind(query string) string {
	if d.dialect != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (d *DB) exec(ctx context.Context, r runner, query string, args ...any) (sql.Result, error) {
	return r.ExecContext(ctx, d.rebind(query), args...)
}

func (d *DB) query(ctx context.Context, r runner, query string, args ...any) (*sql.Rows, error) {
	return r.QueryContext(ctx, d.rebind(query), args...)
}

func (d *DB) queryRow(ctx context.Context, r runner, query string, args ...any) *sql.Row {
	return r.QueryRowContext(ctx, d.rebind(query), args...)
}

// inTx runs fn in a transaction. Only tx may be used inside fn.
func (d *DB) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := d.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return "?" + strings.Repeat(", ?", n-1)
}

func stringArgs(ids []string) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

// utc normalises times before they are written so that SQLite's textual
// ordering matches chronological ordering.
func utc(t time.Time) time.Time {
	return t.UTC().Round(time.Microsecond)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := utc(*t)
	return &u
}

// mapErr converts driver constraint errors into domain errors.
func mapErr(err error, what string) error {
	if err == nil {
		return nil
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return fmt.Errorf("%s: %w", what, domain.ErrConflict)
		case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
			return fmt.Errorf("%s: %w", what, domain.ErrInvalidInput)
		}
	}
	var pe *pgconn.PgError
	if errors.As(err, &pe) {
		switch pe.Code {
		case "23505":
			return fmt.Errorf("%s: %w", what, domain.ErrConflict)
		case "23503":
			return fmt.Errorf("%s: %w", what, domain.ErrInvalidInput)
		}
	}
	return fmt.Errorf("%s: %w", what, err)
}
