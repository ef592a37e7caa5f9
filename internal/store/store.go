// Package store persists sites, posts, taxonomy and the export audit trail in SQLite.
package store

import (
	"context"
	"database/sql"
	"embed"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"git.home.luguber.info/inful/blogsync/internal/foundation/errors"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var (
	// ErrNotFound is the cause when a lookup matches no row.
	ErrNotFound = stderrors.New("not found")
	// ErrConflict is the cause when a write violates a uniqueness constraint.
	ErrConflict = stderrors.New("conflict")
)

// Store wraps a SQLite database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for created/updated stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open opens (creating if needed) the database at path and applies migrations.
// Use ":memory:" for a private in-memory database.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryStore, "open sqlite database").Build()
	}
	// A single connection keeps ":memory:" databases alive and serializes writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := `
		PRAGMA journal_mode=WAL;
		PRAGMA busy_timeout=5000;
		PRAGMA synchronous=NORMAL;
		PRAGMA foreign_keys=ON;
	`
	if _, err := db.ExecContext(ctx, pragmas); err != nil {
		_ = db.Close()
		return nil, errors.WrapError(err, errors.CategoryStore, "configure sqlite").Build()
	}

	s := &Store{db: db, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	if err := s.Migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Migrate applies all pending embedded migrations. It is a no-op when the schema is current.
func (s *Store) Migrate() error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return errors.WrapError(err, errors.CategoryStore, "create migration source").Build()
	}
	driver, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	if err != nil {
		return errors.WrapError(err, errors.CategoryStore, "create migration driver").Build()
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return errors.WrapError(err, errors.CategoryStore, "create migrator").Build()
	}
	// m.Close would also close s.db.
	defer func() { _ = source.Close() }()

	if err := m.Up(); err != nil && !stderrors.Is(err, migrate.ErrNoChange) {
		return errors.WrapError(err, errors.CategoryStore, "run migrations").Build()
	}
	return nil
}

// SchemaVersion returns the applied migration version.
func (s *Store) SchemaVersion(ctx context.Context) (uint, bool, error) {
	var version int64
	var dirty bool
	err := s.db.QueryRowContext(ctx, "SELECT version, dirty FROM schema_migrations LIMIT 1").Scan(&version, &dirty)
	if stderrors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errors.WrapError(err, errors.CategoryStore, "read schema version").Build()
	}
	return uint(version), dirty, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapErr(err, "begin transaction")
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return wrapErr(err, "commit transaction")
	}
	return nil
}

// wrapErr classifies driver errors: missing rows become not_found and
// uniqueness violations become conflict.
func wrapErr(err error, op string) error {
	switch {
	case err == nil:
		return nil
	case stderrors.Is(err, sql.ErrNoRows):
		return errors.WrapError(ErrNotFound, errors.CategoryNotFound, op).Build()
	case strings.Contains(err.Error(), "UNIQUE constraint failed"):
		return errors.WrapError(ErrConflict, errors.CategoryConflict, op).
			WithContext("detail", err.Error()).
			Build()
	default:
		return errors.WrapError(err, errors.CategoryStore, op).Build()
	}
}

func notFound(what string, key any) error {
	return errors.WrapError(ErrNotFound, errors.CategoryNotFound, fmt.Sprintf("%s %v not found", what, key)).Build()
}

func unixOrNil(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Unix()
}

func fromUnix(v sql.NullInt64) time.Time {
	if !v.Valid {
		return time.Time{}
	}
	return time.Unix(v.Int64, 0).UTC()
}

func idOrNil(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}
