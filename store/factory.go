package store

import (
	"context"
	"fmt"
	"path/filepath"
)

// New creates a Store based on the backend name.
//
// Supported backends:
//
//	"json"   - one JSON file per bucket in dataDir (default)
//	"sqlite" - SQLite database at dataDir/recipes.db
//	"redis"  - Redis server at redisURL
//	"memory" - In-memory (ephemeral, for testing)
func New(ctx context.Context, backend, dataDir, redisURL string) (Store, error) {
	switch backend {
	case "json", "":
		return NewJsonFileStore(dataDir)
	case "sqlite":
		dbPath := filepath.Join(dataDir, "recipes.db")
		return NewSqliteStore(dbPath)
	case "redis":
		if redisURL == "" {
			return nil, fmt.Errorf("redis backend requires a Redis URL")
		}
		return NewRedisStore(ctx, redisURL)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend: %q (supported: json, sqlite, redis, memory)", backend)
	}
}
