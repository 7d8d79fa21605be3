package recipe

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"github.com/stevemurr/recipe-kv-server/store"
)

// IndexKey holds the JSON array of every known recipe ID. It sits outside
// the "recipe:" key space.
const IndexKey = "_recipe_ids"

// RecordKey returns the bucket key of the record for id.
func RecordKey(id string) string {
	return "recipe:" + id
}

// Index maintains the list of all recipe IDs under IndexKey.
//
// Add and Remove are read-modify-write sequences with no isolation of their
// own: two concurrent mutators can both load the same list and the later
// write wins. When mu is set every mutation holds it, which closes that
// window within this process only.
type Index struct {
	bucket store.Bucket
	mu     *sync.Mutex
}

// NewIndex returns an Index over b. mu may be nil.
func NewIndex(b store.Bucket, mu *sync.Mutex) *Index {
	return &Index{bucket: b, mu: mu}
}

// Load returns the IDs in index order. A missing or undecodable index reads
// as empty; only a bucket failure is an error.
func (x *Index) Load(ctx context.Context) ([]string, error) {
	ids, _, err := x.load(ctx)
	return ids, err
}

func (x *Index) load(ctx context.Context) (ids []string, present bool, err error) {
	data, err := x.bucket.Get(ctx, IndexKey)
	if err != nil {
		return nil, false, fmt.Errorf("%w: get %s: %v", ErrStoreUnavailable, IndexKey, err)
	}
	if data == nil {
		return []string{}, false, nil
	}
	if err := json.Unmarshal(data, &ids); err != nil || ids == nil {
		return []string{}, true, nil
	}
	return ids, true, nil
}

// Add appends id unless it is already listed. An ID that is already present
// leaves the stored index untouched.
func (x *Index) Add(ctx context.Context, id string) error {
	x.lock()
	defer x.unlock()

	ids, _, err := x.load(ctx)
	if err != nil {
		return err
	}
	if slices.Contains(ids, id) {
		return nil
	}
	return x.save(ctx, append(ids, id))
}

// Remove drops every occurrence of id. An existing index is rewritten even
// when id was not in it; a missing index is left missing.
func (x *Index) Remove(ctx context.Context, id string) error {
	x.lock()
	defer x.unlock()

	ids, present, err := x.load(ctx)
	if err != nil {
		return err
	}
	if !present {
		return nil
	}
	ids = slices.DeleteFunc(ids, func(v string) bool { return v == id })
	return x.save(ctx, ids)
}

func (x *Index) save(ctx context.Context, ids []string) error {
	data, err := marshal(ids)
	if err != nil {
		return fmt.Errorf("encode index: %w", err)
	}
	if err := x.bucket.Set(ctx, IndexKey, data); err != nil {
		return fmt.Errorf("%w: set %s: %v", ErrStoreUnavailable, IndexKey, err)
	}
	return nil
}

func (x *Index) lock() {
	if x.mu != nil {
		x.mu.Lock()
	}
}

func (x *Index) unlock() {
	if x.mu != nil {
		x.mu.Unlock()
	}
}
