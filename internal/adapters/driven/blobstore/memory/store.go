// Package memory provides an in-memory driven.BlobStore.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/custodia-labs/lakegate/internal/core/domain"
	"github.com/custodia-labs/lakegate/internal/core/ports/driven"
)

// Ensure Store implements the interface.
var _ driven.BlobStore = (*Store)(nil)

// Store is an in-memory implementation of driven.BlobStore.
// It is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// New creates an empty store.
func New() *Store {
	return &Store{objects: make(map[string][]byte)}
}

// Get returns a copy of the object stored at key.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", key, domain.ErrNotFound)
	}
	return append([]byte(nil), data...), nil
}

// Put stores data at key, replacing any existing object.
func (s *Store) Put(_ context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = append([]byte(nil), data...)
	return nil
}

// Copy duplicates src to dst.
func (s *Store) Copy(_ context.Context, src, dst string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[src]
	if !ok {
		return fmt.Errorf("copy %s: %w", src, domain.ErrNotFound)
	}
	s.objects[dst] = append([]byte(nil), data...)
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

// List returns the keys under prefix in lexicographic order.
func (s *Store) List(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []string //nolint:prealloc // size unknown until filtered
	for key := range s.objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Exists reports whether key is present.
func (s *Store) Exists(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[key]
	return ok, nil
}

// Len returns the number of stored objects.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
