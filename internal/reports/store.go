// Package reports persists scan records and answers report queries. The
// store runs on SQLite (modernc.org/sqlite) or PostgreSQL (pgx) through
// database/sql; the schema is managed with goose migrations.
package reports

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/raysh454/zapscan/internal/logging"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var (
	ErrScanNotFound      = errors.New("scan not found")
	ErrDuplicateScan     = errors.New("scan already exists")
	ErrInvalidTransition = errors.New("invalid status transition")
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

// Store is the Report Store.
type Store struct {
	db     *sql.DB
	driver string
	logger logging.Logger
	now    func() time.Time
}

// Open connects to dsn with driver ("sqlite" or "pgx") and migrates the
// schema.
func Open(ctx context.Context, driver, dsn string, logger logging.Logger) (*Store, error) {
	driver = normalizeDriver(driver)
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
		if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout = 5000; PRAGMA journal_mode = WAL;`); err != nil {
			logger.Warn("sqlite pragmas", logging.Field{Key: "error", Value: err.Error()})
		}
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	s, err := New(ctx, db, driver, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an open database and migrates the schema.
func New(ctx context.Context, db *sql.DB, driver string, logger logging.Logger) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	s := &Store{
		db:     db,
		driver: normalizeDriver(driver),
		logger: logger.With(logging.Field{Key: "component", Value: "reports"}),
		now:    time.Now,
	}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func normalizeDriver(driver string) string {
	switch strings.ToLower(driver) {
	case "pgx", "postgres", "postgresql":
		return DriverPostgres
	default:
		return DriverSQLite
	}
}

func (s *Store) migrate(ctx context.Context) error {
	dialect := goose.DialectSQLite3
	if s.driver == DriverPostgres {
		dialect = goose.DialectPostgres
	}
	fsys, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("migrations fs: %w", err)
	}
	provider, err := goose.NewProvider(dialect, s.db, fsys)
	if err != nil {
		return fmt.Errorf("goose provider: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	for _, r := range results {
		s.logger.Info("applied migration",
			logging.Field{Key: "version", Value: r.Source.Version},
			logging.Field{Key: "duration", Value: r.Duration.String()})
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// rebind rewrites ? placeholders as $n for PostgreSQL.
func (s *Store) rebind(q string) string {
	if s.driver != DriverPostgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
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

func millis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
