// Package store defines the key-value boundary behind the admin resource
// handlers. Records are grouped in collections and addressed by id.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"
)

// ErrNotFound is returned when a record does not exist
var ErrNotFound = errors.New("record not found")

// Record is one stored admin resource
type Record struct {
	ID        string          `json:"id"`
	Data      json.RawMessage `json:"data"`
	CreatedBy string          `json:"createdBy,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Store persists records
type Store interface {
	// List returns every record of a collection, oldest first
	List(ctx context.Context, collection string) ([]Record, error)

	// Get returns one record or ErrNotFound
	Get(ctx context.Context, collection, id string) (Record, error)

	// Put creates or replaces a record
	Put(ctx context.Context, collection string, record Record) error

	// Delete removes a record or returns ErrNotFound
	Delete(ctx context.Context, collection, id string) error

	// Ping reports whether the backend is reachable
	Ping(ctx context.Context) error

	// Close releases backend resources
	Close() error
}

// SortRecords orders records by creation time, then id, for stable listings
func SortRecords(records []Record) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].ID < records[j].ID
		}
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
}
