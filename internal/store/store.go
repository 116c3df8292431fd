// Package store implements the durable relational store: identities,
// peers, friend requests, friendships, blocks, direct messages and
// posts, backed by SQLite through jmoiron/sqlx and the pure-Go
// modernc.org/sqlite driver.
package store

import (
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/zai11/enclave/internal/enclaveerr"
)

// Store serializes all access behind a single mutex: every operation
// is a short, synchronous critical section, so callers never need
// their own locking around a Store.
type Store struct {
	mu sync.Mutex
	db *sqlx.DB
}

// Open opens (creating if necessary) the SQLite database at path and
// applies the schema. Use ":memory:" for the in-memory store used by
// tests.
func Open(path string) (*Store, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, enclaveerr.New(enclaveerr.KindStore, "open_store", fmt.Errorf("%w: %w", enclaveerr.ErrStoreUnavailable, err))
	}
	// modernc.org/sqlite does not support concurrent writers over a
	// single *sql.DB handle; the engine already serializes access via
	// mu, but keep the pool to one connection to avoid SQLITE_BUSY from
	// the driver being asked to multiplex.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, enclaveerr.Store("apply_schema", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// lock is a small helper used by every operation below so the critical
// section is obvious at each call site.
func (s *Store) lock() func() {
	s.mu.Lock()
	return s.mu.Unlock
}
