// Package sqlite persists the in-memory store to a single SQLite file.
//
// State lives in memory; after every successful transaction each bucket the
// transaction wrote is stored as a JSON blob in the state table before the new
// state becomes visible. A failed write aborts the transaction.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"kalium.io/kalium/internal/store"
	"kalium.io/kalium/internal/store/memory"
)

// Store is a snapshotting SQLite-backed store.Store.
type Store struct {
	*memory.Store
	db   *sql.DB
	path string
}

// Open opens or creates the database at path and loads its snapshot.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		path = "kalium.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Snapshots are written under the memory store lock; one connection is enough.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create state table: %w", err)
	}

	s := &Store{db: db, path: path}
	state, err := s.load(ctx)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.Store = memory.NewWithState(state, s.persist)
	return s, nil
}

func (s *Store) load(ctx context.Context) (memory.State, error) {
	state := memory.NewState()

	rows, err := s.db.QueryContext(ctx, `SELECT bucket, payload FROM state`)
	if err != nil {
		return state, fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return state, fmt.Errorf("scan: %w", err)
		}
		target := state.Target(memory.Bucket(bucket))
		if target == nil {
			continue
		}
		if err := json.Unmarshal(payload, target); err != nil {
			return state, fmt.Errorf("decode %s: %w", bucket, err)
		}
	}
	if err := rows.Err(); err != nil {
		return state, fmt.Errorf("iterate state: %w", err)
	}
	state.Normalize()
	return state, nil
}

func (s *Store) persist(ctx context.Context, next memory.State, changed []memory.Bucket) (retErr error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin snapshot: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	for _, bucket := range changed {
		data, err := json.Marshal(next.Target(bucket))
		if err != nil {
			return fmt.Errorf("encode %s: %w", bucket, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO state(bucket,payload) VALUES(?,?) ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload`,
			string(bucket), data,
		); err != nil {
			return fmt.Errorf("upsert %s: %w", bucket, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

var _ store.Store = (*Store)(nil)
