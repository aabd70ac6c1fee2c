// Package store implements the envelope-encrypted relational store (C3/C4):
// schema, per-field AEAD, migration ladder, and the domain table operations.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	sqlite3migrate "github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/dale0525/secondloop/internal/store/migrations"
	"github.com/dale0525/secondloop/internal/verr"
)

const (
	DBFileName    = "secondloop.sqlite3"
	busyTimeoutMs = 5000
)

// Store wraps the opened SQLite database plus the root key used to seal and
// open every user-visible column.
type Store struct {
	DB     *sql.DB
	Key    []byte
	AppDir string
	Log    zerolog.Logger
	mu     sync.Mutex // serializes schema-modifying/multi-row transactions
}

// Open opens (creating if absent) the encrypted store under appDir in WAL
// mode with a busy timeout, then runs the migration ladder forward from
// whatever user_version it finds. Opening a newer-than-known schema fails.
func Open(appDir string, key []byte, log zerolog.Logger) (*Store, error) {
	if len(key) != 32 {
		return nil, verr.Input("key must be 32 bytes, got %d", len(key))
	}
	dbPath := filepath.Join(appDir, DBFileName)
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=%d&_foreign_keys=on", dbPath, busyTimeoutMs)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // single-writer connection; readers share it, matching the teacher's single-conn pool
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if err := upgrade(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{DB: db, Key: key, AppDir: appDir, Log: log.With().Str("component", "store").Logger()}, nil
}

func (s *Store) Close() error {
	return s.DB.Close()
}

func upgrade(db *sql.DB) error {
	driver, err := sqlite3migrate.WithInstance(db, &sqlite3migrate.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}
	src, err := migrations.Source()
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		var dirtyErr migrate.ErrDirty
		if errors.As(err, &dirtyErr) {
			return verr.Schema("database is at a dirty/unknown migration state (version %d)", dirtyErr.Version)
		}
		return verr.Schema("migration failed: %v", err)
	}
	_ = src.Close()
	return nil
}

// WithTx runs fn inside a single transaction, serialized against other
// schema-modifying/multi-row domain operations on this store (§5: "all
// schema-modifying or multi-row domain operations run inside a single
// transaction").
func (s *Store) WithTx(fn func(tx *sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.DB.Begin()
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func nowMs() int64 {
	return time.Now().UnixMilli()
}
