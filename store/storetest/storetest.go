// Package storetest holds the behavior every store.Store implementation must share.
package storetest

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/admin-gateway/store"
)

// Run exercises s. The store must start empty for the collections used here.
func Run(t *testing.T, s store.Store) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	t.Run("PutAndGet", func(t *testing.T) {
		rec := store.Record{
			ID:        "a1",
			Data:      json.RawMessage(`{"name":"primary"}`),
			CreatedBy: "dev-user",
			CreatedAt: base,
			UpdatedAt: base,
		}
		require.NoError(t, s.Put(ctx, "api-keys", rec))

		got, err := s.Get(ctx, "api-keys", "a1")
		require.NoError(t, err)
		assert.Equal(t, "a1", got.ID)
		assert.JSONEq(t, `{"name":"primary"}`, string(got.Data))
		assert.Equal(t, "dev-user", got.CreatedBy)
		assert.True(t, base.Equal(got.CreatedAt))
	})

	t.Run("GetMissing", func(t *testing.T) {
		_, err := s.Get(ctx, "api-keys", "missing")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("ListOrdersByCreation", func(t *testing.T) {
		for i, id := range []string{"p3", "p1", "p2"} {
			created := base.Add(time.Duration([]int{3, 1, 2}[i]) * time.Minute)
			require.NoError(t, s.Put(ctx, "pricing", store.Record{
				ID:        id,
				Data:      json.RawMessage(`{}`),
				CreatedAt: created,
				UpdatedAt: created,
			}))
		}

		records, err := s.List(ctx, "pricing")
		require.NoError(t, err)
		require.Len(t, records, 3)
		assert.Equal(t, "p1", records[0].ID)
		assert.Equal(t, "p2", records[1].ID)
		assert.Equal(t, "p3", records[2].ID)
	})

	t.Run("ListEmpty", func(t *testing.T) {
		records, err := s.List(ctx, "model-mappings")
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("PutReplaces", func(t *testing.T) {
		rec := store.Record{ID: "r1", Data: json.RawMessage(`{"v":1}`), CreatedAt: base, UpdatedAt: base}
		require.NoError(t, s.Put(ctx, "replace", rec))
		rec.Data = json.RawMessage(`{"v":2}`)
		rec.UpdatedAt = base.Add(time.Hour)
		require.NoError(t, s.Put(ctx, "replace", rec))

		got, err := s.Get(ctx, "replace", "r1")
		require.NoError(t, err)
		assert.JSONEq(t, `{"v":2}`, string(got.Data))

		records, err := s.List(ctx, "replace")
		require.NoError(t, err)
		assert.Len(t, records, 1)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, s.Put(ctx, "delete", store.Record{ID: "d1", Data: json.RawMessage(`{}`)}))
		require.NoError(t, s.Delete(ctx, "delete", "d1"))

		_, err := s.Get(ctx, "delete", "d1")
		assert.ErrorIs(t, err, store.ErrNotFound)
		assert.ErrorIs(t, s.Delete(ctx, "delete", "d1"), store.ErrNotFound)
	})

	t.Run("CollectionsAreIsolated", func(t *testing.T) {
		require.NoError(t, s.Put(ctx, "iso-a", store.Record{ID: "same", Data: json.RawMessage(`{"c":"a"}`)}))
		require.NoError(t, s.Put(ctx, "iso-b", store.Record{ID: "same", Data: json.RawMessage(`{"c":"b"}`)}))

		got, err := s.Get(ctx, "iso-a", "same")
		require.NoError(t, err)
		assert.JSONEq(t, `{"c":"a"}`, string(got.Data))
	})

	t.Run("Ping", func(t *testing.T) {
		assert.NoError(t, s.Ping(ctx))
	})
}
