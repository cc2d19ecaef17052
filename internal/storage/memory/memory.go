// Package memory provides an in-process object store for tests and local mode.
package memory

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/GeneCodeSavvy/maybe-vercel/internal/storage"
)

type object struct {
	data        []byte
	contentType string
}

// Store keeps objects in a map guarded by a mutex.
type Store struct {
	mu      sync.RWMutex
	objects map[string]object
	puts    int
}

var _ storage.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{objects: make(map[string]object)}
}

// Put stores body under key unless the key is already taken.
func (s *Store) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[key]; ok {
		return storage.ErrExists
	}
	s.objects[key] = object{data: data, contentType: contentType}
	s.puts++
	return nil
}

// Get returns the object stored under key.
func (s *Store) Get(ctx context.Context, key string) (*storage.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	obj, ok := s.objects[key]
	s.mu.RUnlock()
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &storage.Object{
		Body:        io.NopCloser(bytes.NewReader(obj.data)),
		Size:        int64(len(obj.data)),
		ContentType: obj.contentType,
	}, nil
}

// Keys returns every stored key.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	return keys
}

// Puts reports how many Put calls succeeded.
func (s *Store) Puts() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.puts
}
