// Package redis provides a Redis-backed store.Store. Each collection is one
// hash keyed by record id.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/upb/admin-gateway/store"
)

// Config contains configuration options for the Redis store
type Config struct {
	// Client is the Redis client instance
	Client *redis.Client

	// KeyPrefix is the prefix for all Redis keys
	// Default: "admin-gateway:"
	KeyPrefix string
}

// Store implements store.Store using Redis hashes
type Store struct {
	client    *redis.Client
	keyPrefix string
}

// New creates a new Redis store
func New(config Config) (*Store, error) {
	if config.Client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = "admin-gateway:"
	}
	return &Store{client: config.Client, keyPrefix: config.KeyPrefix}, nil
}

// NewFromURL connects to the Redis server at url (redis:// or rediss://)
func NewFromURL(ctx context.Context, url, keyPrefix string) (*Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return New(Config{Client: client, KeyPrefix: keyPrefix})
}

func (s *Store) collectionKey(collection string) string {
	return s.keyPrefix + "collection:" + collection
}

// List returns every record of a collection, oldest first
func (s *Store) List(ctx context.Context, collection string) ([]store.Record, error) {
	values, err := s.client.HGetAll(ctx, s.collectionKey(collection)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", collection, err)
	}

	records := make([]store.Record, 0, len(values))
	for id, raw := range values {
		var r store.Record
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, fmt.Errorf("failed to unmarshal record %s: %w", id, err)
		}
		records = append(records, r)
	}
	store.SortRecords(records)
	return records, nil
}

// Get returns one record
func (s *Store) Get(ctx context.Context, collection, id string) (store.Record, error) {
	raw, err := s.client.HGet(ctx, s.collectionKey(collection), id).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return store.Record{}, store.ErrNotFound
		}
		return store.Record{}, fmt.Errorf("failed to get record %s: %w", id, err)
	}

	var r store.Record
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return store.Record{}, fmt.Errorf("failed to unmarshal record %s: %w", id, err)
	}
	return r, nil
}

// Put creates or replaces a record
func (s *Store) Put(ctx context.Context, collection string, record store.Record) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	if err := s.client.HSet(ctx, s.collectionKey(collection), record.ID, raw).Err(); err != nil {
		return fmt.Errorf("failed to put record %s: %w", record.ID, err)
	}
	return nil
}

// Delete removes a record
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	n, err := s.client.HDel(ctx, s.collectionKey(collection), id).Result()
	if err != nil {
		return fmt.Errorf("failed to delete record %s: %w", id, err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Ping checks the connection
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis client
func (s *Store) Close() error {
	return s.client.Close()
}
