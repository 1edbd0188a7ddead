package internal

import (
	"context"
	"database/sql"
	"errors"
	"strings"
)

// KVStore is durable key-value storage for snapshots
type KVStore interface {
	Put(ctx context.Context, key string, value []byte) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	List(ctx context.Context, prefix string) ([]KeyValuePair, error)
	Close() error
}

// Storage is a KVStore over the collectorKV SQLite table
type Storage struct {
	db   *sql.DB
	path string
}

// NewStorage creates a new Storage instance
func NewStorage(db *sql.DB, path string) *Storage {
	return &Storage{db: db, path: path}
}

// OpenStorage opens the database at path and wraps it
func OpenStorage(path string) (*Storage, error) {
	db, err := OpenDatabase(path)
	if err != nil {
		return nil, &StorageError{Path: path, Op: "open", Err: err}
	}
	return NewStorage(db, path), nil
}

// Put upserts value under key
func (s *Storage) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO collectorKV (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, string(value))
	if err != nil {
		return &StorageError{Path: s.path, Op: "put", Err: err}
	}
	return nil
}

// Get returns the value under key and whether it exists
func (s *Storage) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value sql.NullString
	err := s.db.QueryRowContext(ctx, "SELECT value FROM collectorKV WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, &StorageError{Path: s.path, Op: "get", Err: err}
	}
	if !value.Valid {
		return nil, false, nil
	}
	return []byte(value.String), true, nil
}

// List returns every pair whose key starts with prefix, ordered by key
func (s *Storage) List(ctx context.Context, prefix string) ([]KeyValuePair, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pairs, err := QueryCollectorKV(s.db, prefix+"%")
	if err != nil {
		return nil, &StorageError{Path: s.path, Op: "list", Err: err}
	}
	// LIKE treats "_" and "%" in prefix as wildcards
	out := pairs[:0]
	for _, p := range pairs {
		if strings.HasPrefix(p.Key, prefix) {
			out = append(out, p)
		}
	}
	return out, nil
}

// Close closes the database
func (s *Storage) Close() error {
	return s.db.Close()
}
