package store

import (
	"context"
	"sync"
)

// MemoryStore keeps everything in memory. Data is lost on restart.
// Safe for concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	buckets map[string]map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{buckets: make(map[string]map[string][]byte)}
}

func (m *MemoryStore) Open(_ context.Context, name string) (Bucket, error) {
	if name == "" {
		return nil, ErrBucketName
	}
	return &memoryBucket{store: m, name: name}, nil
}

func (m *MemoryStore) Close() error {
	return nil
}

type memoryBucket struct {
	store *MemoryStore
	name  string
}

// Values are copied in and out so callers never share backing arrays with the store.
func (b *memoryBucket) Get(_ context.Context, key string) ([]byte, error) {
	b.store.mu.RLock()
	defer b.store.mu.RUnlock()
	v, ok := b.store.buckets[b.name][key]
	if !ok {
		return nil, nil
	}
	return append([]byte{}, v...), nil
}

func (b *memoryBucket) Set(_ context.Context, key string, value []byte) error {
	b.store.mu.Lock()
	defer b.store.mu.Unlock()
	if _, ok := b.store.buckets[b.name]; !ok {
		b.store.buckets[b.name] = make(map[string][]byte)
	}
	b.store.buckets[b.name][key] = append([]byte{}, value...)
	return nil
}

func (b *memoryBucket) Delete(_ context.Context, key string) error {
	b.store.mu.Lock()
	defer b.store.mu.Unlock()
	delete(b.store.buckets[b.name], key)
	return nil
}
