package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"sync"
)

// SqliteStore stores all buckets in a single SQLite database.
//
// Tables:
//
//	kv(bucket, key, value)  PRIMARY KEY (bucket, key)
type SqliteStore struct {
	mu sync.RWMutex
	db *sql.DB
}

func NewSqliteStore(dbPath string) (*SqliteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS kv (
		bucket TEXT NOT NULL,
		key TEXT NOT NULL,
		value BLOB NOT NULL,
		PRIMARY KEY (bucket, key)
	)`); err != nil {
		db.Close()
		return nil, err
	}
	return &SqliteStore{db: db}, nil
}

func (s *SqliteStore) Open(_ context.Context, name string) (Bucket, error) {
	if name == "" {
		return nil, ErrBucketName
	}
	return &sqliteBucket{store: s, name: name}, nil
}

func (s *SqliteStore) Close() error {
	return s.db.Close()
}

type sqliteBucket struct {
	store *SqliteStore
	name  string
}

func (b *sqliteBucket) Get(ctx context.Context, key string) ([]byte, error) {
	b.store.mu.RLock()
	defer b.store.mu.RUnlock()
	var value []byte
	err := b.store.db.QueryRowContext(ctx,
		"SELECT value FROM kv WHERE bucket = ? AND key = ?",
		b.name, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if value == nil {
		value = []byte{}
	}
	return value, nil
}

func (b *sqliteBucket) Set(ctx context.Context, key string, value []byte) error {
	b.store.mu.Lock()
	defer b.store.mu.Unlock()
	if value == nil {
		value = []byte{}
	}
	_, err := b.store.db.ExecContext(ctx,
		`INSERT INTO kv (bucket, key, value) VALUES (?, ?, ?)
		 ON CONFLICT(bucket, key) DO UPDATE SET value = excluded.value`,
		b.name, key, value,
	)
	return err
}

func (b *sqliteBucket) Delete(ctx context.Context, key string) error {
	b.store.mu.Lock()
	defer b.store.mu.Unlock()
	_, err := b.store.db.ExecContext(ctx,
		"DELETE FROM kv WHERE bucket = ? AND key = ?",
		b.name, key,
	)
	return err
}
