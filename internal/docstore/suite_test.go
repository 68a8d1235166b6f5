package docstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runStoreSuite checks the behaviour every backend must share.
func runStoreSuite(t *testing.T, store Store) {
	ctx := context.Background()

	t.Run("get missing document", func(t *testing.T) {
		doc, err := store.Get(ctx, "carts", "nobody")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Nil(t, doc)
	})

	t.Run("merge keeps other fields", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "carts", "merge-user", Document{
			"items": []any{map[string]any{"name": "Paracetamol", "price": 20.0, "quantity": 2}},
			"note":  "keep me",
		}, SetOptions{}))

		require.NoError(t, store.Set(ctx, "carts", "merge-user", Document{
			"items": []any{},
		}, SetOptions{Merge: true}))

		doc, err := store.Get(ctx, "carts", "merge-user")
		require.NoError(t, err)
		assert.Equal(t, "keep me", String(doc, "note"))
		assert.Empty(t, Documents(doc, "items"))
	})

	t.Run("merge upserts missing document", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "carts", "fresh-user", Document{
			"items": []any{map[string]any{"name": "Ibuprofen", "price": 35.5, "quantity": 1, "availability": true}},
		}, SetOptions{Merge: true}))

		doc, err := store.Get(ctx, "carts", "fresh-user")
		require.NoError(t, err)
		items := Documents(doc, "items")
		require.Len(t, items, 1)
		assert.Equal(t, "Ibuprofen", String(items[0], "name"))
		assert.Equal(t, 35.5, Float(items[0], "price"))
		assert.Equal(t, 1, Int(items[0], "quantity"))
		assert.True(t, Bool(items[0], "availability"))
	})

	t.Run("overwrite drops other fields", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "carts", "over-user", Document{"a": "1", "b": "2"}, SetOptions{}))
		require.NoError(t, store.Set(ctx, "carts", "over-user", Document{"a": "3"}, SetOptions{}))

		doc, err := store.Get(ctx, "carts", "over-user")
		require.NoError(t, err)
		assert.Equal(t, "3", String(doc, "a"))
		_, ok := doc["b"]
		assert.False(t, ok)
	})

	t.Run("add and query by equality", func(t *testing.T) {
		created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
		id1, err := store.Add(ctx, "orders", Document{"userId": "alice", "totalAmount": 90.0, "createdAt": created})
		require.NoError(t, err)
		id2, err := store.Add(ctx, "orders", Document{"userId": "alice", "totalAmount": 15.0, "createdAt": created})
		require.NoError(t, err)
		_, err = store.Add(ctx, "orders", Document{"userId": "bob", "totalAmount": 5.0, "createdAt": created})
		require.NoError(t, err)
		assert.NotEqual(t, id1, id2)

		snaps, err := store.Query(ctx, "orders", Eq("userId", "alice"))
		require.NoError(t, err)
		require.Len(t, snaps, 2)

		ids := []string{snaps[0].ID, snaps[1].ID}
		assert.ElementsMatch(t, []string{id1, id2}, ids)
		for _, s := range snaps {
			assert.Equal(t, "alice", String(s.Data, "userId"))
			assert.True(t, Time(s.Data, "createdAt").Equal(created))
		}
	})

	t.Run("query by bool and number", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "medicine", "m1", Document{"name": "A", "category": "Pain Relief", "availability": true, "price": 20.0}, SetOptions{}))
		require.NoError(t, store.Set(ctx, "medicine", "m2", Document{"name": "B", "category": "Pain Relief", "availability": false, "price": 30.0}, SetOptions{}))

		snaps, err := store.Query(ctx, "medicine", Eq("category", "Pain Relief"), Eq("availability", true))
		require.NoError(t, err)
		require.Len(t, snaps, 1)
		assert.Equal(t, "m1", snaps[0].ID)

		snaps, err = store.Query(ctx, "medicine", Eq("price", 30))
		require.NoError(t, err)
		require.Len(t, snaps, 1)
		assert.Equal(t, "m2", snaps[0].ID)
	})

	t.Run("query rejects invalid field", func(t *testing.T) {
		_, err := store.Query(ctx, "medicine", Eq("name' OR 1=1 --", "x"))
		assert.ErrorIs(t, err, ErrInvalidField)
	})

	t.Run("query empty collection", func(t *testing.T) {
		snaps, err := store.Query(ctx, "empty")
		require.NoError(t, err)
		assert.Empty(t, snaps)
	})
}
