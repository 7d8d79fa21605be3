package recipe_test

import (
	"context"
	"errors"
	"sync"

	"github.com/stevemurr/recipe-kv-server/store"
)

var errInjected = errors.New("injected failure")

// faultStore wraps a MemoryStore and fails selected calls.
type faultStore struct {
	mem *store.MemoryStore

	mu         sync.Mutex
	openErr    error
	failGet    map[string]bool
	failSet    map[string]bool
	failDelete map[string]bool
	sets       map[string]int
}

func newFaultStore() *faultStore {
	return &faultStore{
		mem:        store.NewMemoryStore(),
		failGet:    map[string]bool{},
		failSet:    map[string]bool{},
		failDelete: map[string]bool{},
		sets:       map[string]int{},
	}
}

func (f *faultStore) Open(ctx context.Context, name string) (store.Bucket, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	b, err := f.mem.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	return &faultBucket{f: f, b: b}, nil
}

func (f *faultStore) Close() error { return nil }

// raw returns the memory bucket underneath, bypassing fault injection.
func (f *faultStore) raw(name string) store.Bucket {
	b, _ := f.mem.Open(context.Background(), name)
	return b
}

func (f *faultStore) setCount(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sets[key]
}

type faultBucket struct {
	f *faultStore
	b store.Bucket
}

func (fb *faultBucket) Get(ctx context.Context, key string) ([]byte, error) {
	fb.f.mu.Lock()
	fail := fb.f.failGet[key]
	fb.f.mu.Unlock()
	if fail {
		return nil, errInjected
	}
	return fb.b.Get(ctx, key)
}

func (fb *faultBucket) Set(ctx context.Context, key string, value []byte) error {
	fb.f.mu.Lock()
	fail := fb.f.failSet[key]
	if !fail {
		fb.f.sets[key]++
	}
	fb.f.mu.Unlock()
	if fail {
		return errInjected
	}
	return fb.b.Set(ctx, key, value)
}

func (fb *faultBucket) Delete(ctx context.Context, key string) error {
	fb.f.mu.Lock()
	fail := fb.f.failDelete[key]
	fb.f.mu.Unlock()
	if fail {
		return errInjected
	}
	return fb.b.Delete(ctx, key)
}
