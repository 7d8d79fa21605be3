package recipe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stevemurr/recipe-kv-server/store"
)

// BucketName is the bucket holding recipe records and the ID index.
const BucketName = "recipes"

// IDFunc produces an ID for a recipe created without one.
type IDFunc func(now time.Time) string

// TimestampID returns "recipe_<unix seconds>". Two creates in the same
// second get the same ID and the second overwrites the first.
func TimestampID(now time.Time) string {
	return fmt.Sprintf("recipe_%d", now.Unix())
}

// UUIDID returns "recipe_<random uuid>".
func UUIDID(time.Time) string {
	return "recipe_" + uuid.NewString()
}

// Options selects between the historical behaviour of the service (the zero
// value) and stricter alternatives.
type Options struct {
	// StrictUpdate makes Update return ErrNotFound for an unknown ID instead
	// of writing an unindexed record.
	StrictUpdate bool

	// TouchOnUpdate makes Update set updated_at to now and carry created_at
	// over from the stored record, instead of storing the client's values.
	TouchOnUpdate bool

	// SerializeIndex serializes index mutations within this process.
	SerializeIndex bool

	// NewID generates IDs for creates without one. Defaults to TimestampID.
	NewID IDFunc

	// Now defaults to time.Now.
	Now func() time.Time

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Store is the CRUD engine over the "recipes" bucket. Each record lives
// under RecordKey(id) and its ID is tracked by the Index.
//
// A record write and the matching index update are two separate bucket
// calls. Create writes the record first, so a failed index update leaves a
// record that Get finds but List does not. Get is the source of truth for a
// single recipe; the index is only eventually consistent.
type Store struct {
	backend store.Store
	opts    Options
	indexMu *sync.Mutex
}

func NewStore(backend store.Store, opts Options) *Store {
	if opts.NewID == nil {
		opts.NewID = TimestampID
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &Store{backend: backend, opts: opts}
	if opts.SerializeIndex {
		s.indexMu = &sync.Mutex{}
	}
	return s
}

func (s *Store) open(ctx context.Context) (store.Bucket, *Index, error) {
	b, err := s.backend.Open(ctx, BucketName)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: open bucket %q: %v", ErrStoreUnavailable, BucketName, err)
	}
	return b, NewIndex(b, s.indexMu), nil
}

// List returns every indexed recipe in index order. IDs whose record is
// missing, unreadable or undecodable are skipped.
func (s *Store) List(ctx context.Context) ([]Recipe, error) {
	b, idx, err := s.open(ctx)
	if err != nil {
		return nil, err
	}
	ids, err := idx.Load(ctx)
	if err != nil {
		return nil, err
	}

	recipes := make([]Recipe, 0, len(ids))
	for _, id := range ids {
		r, err := s.get(ctx, b, id)
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				s.opts.Logger.Debug("skipping recipe in list", "id", id, "error", err)
			}
			continue
		}
		recipes = append(recipes, *r)
	}
	return recipes, nil
}

// Get returns the recipe stored under id, ErrNotFound if there is none, or
// an ErrDecode error if the stored bytes are not a valid record.
func (s *Store) Get(ctx context.Context, id string) (*Recipe, error) {
	b, _, err := s.open(ctx)
	if err != nil {
		return nil, err
	}
	return s.get(ctx, b, id)
}

func (s *Store) get(ctx context.Context, b store.Bucket, id string) (*Recipe, error) {
	data, err := b.Get(ctx, RecordKey(id))
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %v", ErrStoreUnavailable, RecordKey(id), err)
	}
	if data == nil {
		return nil, ErrNotFound
	}
	r, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDecode, RecordKey(id), err)
	}
	return r, nil
}

// Create stores r and adds its ID to the index, returning the ID. An empty
// ID is replaced by a generated one. created_at and updated_at are always
// set to the current time. r itself is not modified.
func (s *Store) Create(ctx context.Context, r *Recipe) (string, error) {
	b, idx, err := s.open(ctx)
	if err != nil {
		return "", err
	}

	now := s.opts.Now()
	rec := *r
	if rec.ID == "" {
		rec.ID = s.opts.NewID(now)
	}
	rec.CreatedAt = uint64(now.Unix())
	rec.UpdatedAt = rec.CreatedAt

	if err := s.put(ctx, b, &rec); err != nil {
		return "", err
	}
	if err := idx.Add(ctx, rec.ID); err != nil {
		s.opts.Logger.Warn("recipe stored but not indexed", "id", rec.ID, "error", err)
		return "", err
	}
	return rec.ID, nil
}

// Update replaces the record for id with r, forcing r's ID to id. The index
// is not touched. Unless StrictUpdate is set, updating an unknown ID writes
// a record that is not indexed. Unless TouchOnUpdate is set, the timestamps
// in r are stored as given.
func (s *Store) Update(ctx context.Context, id string, r *Recipe) error {
	b, _, err := s.open(ctx)
	if err != nil {
		return err
	}

	rec := *r
	rec.ID = id

	if s.opts.StrictUpdate || s.opts.TouchOnUpdate {
		existing, err := s.get(ctx, b, id)
		switch {
		case errors.Is(err, ErrNotFound):
			if s.opts.StrictUpdate {
				return err
			}
		case err != nil:
			return err
		}
		if s.opts.TouchOnUpdate {
			now := uint64(s.opts.Now().Unix())
			rec.CreatedAt, rec.UpdatedAt = now, now
			if existing != nil {
				rec.CreatedAt = existing.CreatedAt
			}
		}
	}

	return s.put(ctx, b, &rec)
}

// Delete removes the record for id and drops id from the index. Deleting an
// unknown ID succeeds.
func (s *Store) Delete(ctx context.Context, id string) error {
	b, idx, err := s.open(ctx)
	if err != nil {
		return err
	}
	if err := b.Delete(ctx, RecordKey(id)); err != nil {
		return fmt.Errorf("%w: delete %s: %v", ErrStoreUnavailable, RecordKey(id), err)
	}
	return idx.Remove(ctx, id)
}

func (s *Store) put(ctx context.Context, b store.Bucket, r *Recipe) error {
	data, err := Encode(r)
	if err != nil {
		return fmt.Errorf("encode %s: %w", RecordKey(r.ID), err)
	}
	if err := b.Set(ctx, RecordKey(r.ID), data); err != nil {
		return fmt.Errorf("%w: set %s: %v", ErrStoreUnavailable, RecordKey(r.ID), err)
	}
	return nil
}
