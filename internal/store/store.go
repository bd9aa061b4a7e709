// Package store is the knowledge store: favorites, tags, play history,
// lyric fragments, preferences and caches of playlists and audio features.
//
// It runs on database/sql over an embedded SQLite file (modernc.org/sqlite)
// or, when given a postgres:// DSN, over PostgreSQL through pgx's stdlib
// driver. Writes are serialized through one lock; reads share it.
package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/justestif/go-music-agent/internal/apperr"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = apperr.New(apperr.KindNotFound, "store", "not found")

// Store is the knowledge store. It is safe for concurrent use.
type Store struct {
	db      *sql.DB
	dialect dialect

	// mu serializes mutations; readers share it so they never observe a
	// write in progress.
	mu sync.RWMutex
}

// Open connects to dsn and applies the schema. dsn is a file path (or
// ":memory:") for SQLite, or a postgres:// URL.
func Open(ctx context.Context, dsn string) (*Store, error) {
	d := dialectFor(dsn)

	driverDSN := dsn
	if d == sqliteDialect {
		if dsn != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(dsn), 0700); err != nil {
				return nil, dbError("creating database directory", err)
			}
		}
		driverDSN = sqliteDSN(dsn)
	}

	db, err := sql.Open(d.driver(), driverDSN)
	if err != nil {
		return nil, dbError("opening database", err)
	}
	if d == sqliteDialect {
		// Each :memory: connection is its own database.
		if dsn == ":memory:" {
			db.SetMaxOpenConns(1)
		} else {
			db.SetMaxOpenConns(4)
		}
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, dbError("pinging database", err)
	}

	s := &Store{db: db, dialect: d}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database. It waits for an in-progress write.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.Close(); err != nil {
		return dbError("closing database", err)
	}
	return nil
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return dbError("pinging database", err)
	}
	return nil
}

// Backend names the database backend ("sqlite" or "postgres").
func (s *Store) Backend() string {
	return string(s.dialect)
}

func (s *Store) migrate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, stmt := range s.dialect.schema() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return dbError("applying schema", err)
		}
	}
	return nil
}

// sqliteDSN adds the pragmas every connection needs.
func sqliteDSN(path string) string {
	pragmas := []string{"_pragma=busy_timeout(10000)", "_pragma=foreign_keys(1)"}
	if path != ":memory:" {
		pragmas = append(pragmas, "_pragma=journal_mode(WAL)", "_pragma=synchronous(NORMAL)")
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + strings.Join(pragmas, "&")
}

// exec runs a write statement under the write lock.
func (s *Store) exec(ctx context.Context, op, query string, args ...any) (sql.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, s.dialect.rebind(query), args...)
	if err != nil {
		return nil, dbError(op, err)
	}
	return res, nil
}

// withTx runs fn in a transaction under the write lock.
func (s *Store) withTx(ctx context.Context, op string, fn func(*sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return dbError(op, err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		if apperr.KindOf(err) == apperr.KindNotFound {
			return err
		}
		return dbError(op, err)
	}
	if err := tx.Commit(); err != nil {
		return dbError(op, err)
	}
	return nil
}

// dbError classifies a driver error as a database failure.
func dbError(op string, err error) error {
	return apperr.Wrap(apperr.KindDatabase, "store", errors.Wrap(err, op))
}

func nanos(t time.Time) int64 {
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}
