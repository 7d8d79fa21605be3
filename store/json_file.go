package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// JsonFileStore stores each bucket as a separate JSON file on disk.
//
// Layout:
//
//	data_dir/
//	  recipes.json   # "recipes" bucket: {"<key>": "<base64 value>", ...}
//
// Every write rewrites the whole file, so it suits small buckets only.
type JsonFileStore struct {
	mu  sync.RWMutex
	dir string
}

func NewJsonFileStore(dir string) (*JsonFileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &JsonFileStore{dir: dir}, nil
}

func (s *JsonFileStore) Open(_ context.Context, name string) (Bucket, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return nil, fmt.Errorf("%w: %q", ErrBucketName, name)
	}
	return &jsonFileBucket{store: s, path: filepath.Join(s.dir, name+".json")}, nil
}

func (s *JsonFileStore) Close() error {
	return nil
}

func (s *JsonFileStore) loadFile(path string) (map[string][]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string][]byte{}, nil
		}
		return nil, err
	}
	var result map[string][]byte
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("corrupt bucket file %s: %w", filepath.Base(path), err)
	}
	if result == nil {
		result = map[string][]byte{}
	}
	return result, nil
}

// saveFile writes to a uniquely named temp file and renames it over path so
// readers never see a half-written bucket and concurrent writers never share
// a temp file.
func (s *JsonFileStore) saveFile(path string, data map[string][]byte) error {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

type jsonFileBucket struct {
	store *JsonFileStore
	path  string
}

func (b *jsonFileBucket) Get(_ context.Context, key string) ([]byte, error) {
	b.store.mu.RLock()
	defer b.store.mu.RUnlock()
	kv, err := b.store.loadFile(b.path)
	if err != nil {
		return nil, err
	}
	v, ok := kv[key]
	if !ok {
		return nil, nil
	}
	if v == nil {
		v = []byte{}
	}
	return v, nil
}

func (b *jsonFileBucket) Set(_ context.Context, key string, value []byte) error {
	b.store.mu.Lock()
	defer b.store.mu.Unlock()
	kv, err := b.store.loadFile(b.path)
	if err != nil {
		return err
	}
	kv[key] = value
	return b.store.saveFile(b.path, kv)
}

func (b *jsonFileBucket) Delete(_ context.Context, key string) error {
	b.store.mu.Lock()
	defer b.store.mu.Unlock()
	kv, err := b.store.loadFile(b.path)
	if err != nil {
		return err
	}
	if _, ok := kv[key]; !ok {
		return nil
	}
	delete(kv, key)
	return b.store.saveFile(b.path, kv)
}
