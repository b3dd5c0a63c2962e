// Package memory provides an in-process store.Store for development and tests.
package memory

import (
	"context"
	"sync"

	"github.com/upb/admin-gateway/store"
)

// Store keeps records in maps guarded by a RWMutex
type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string]store.Record
}

// New creates an empty memory store
func New() *Store {
	return &Store{collections: make(map[string]map[string]store.Record)}
}

// List returns every record of a collection, oldest first
func (s *Store) List(_ context.Context, collection string) ([]store.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]store.Record, 0, len(s.collections[collection]))
	for _, r := range s.collections[collection] {
		records = append(records, cloneRecord(r))
	}
	store.SortRecords(records)
	return records, nil
}

// Get returns one record
func (s *Store) Get(_ context.Context, collection, id string) (store.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.collections[collection][id]
	if !ok {
		return store.Record{}, store.ErrNotFound
	}
	return cloneRecord(r), nil
}

// Put creates or replaces a record
func (s *Store) Put(_ context.Context, collection string, record store.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[collection]
	if !ok {
		c = make(map[string]store.Record)
		s.collections[collection] = c
	}
	c[record.ID] = cloneRecord(record)
	return nil
}

// Delete removes a record
func (s *Store) Delete(_ context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.collections[collection][id]; !ok {
		return store.ErrNotFound
	}
	delete(s.collections[collection], id)
	return nil
}

// Ping always succeeds
func (s *Store) Ping(context.Context) error { return nil }

// Close is a no-op
func (s *Store) Close() error { return nil }

func cloneRecord(r store.Record) store.Record {
	r.Data = append([]byte(nil), r.Data...)
	return r
}
