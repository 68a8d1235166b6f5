package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fjod/go_pharmacy/internal/docstore"
	"github.com/fjod/go_pharmacy/internal/domain"
)

func seedStore(t *testing.T) *docstore.MemoryStore {
	t.Helper()
	store := docstore.NewMemoryStore()
	ctx := context.Background()
	docs := map[string]docstore.Document{
		"m1": {"name": "Paracetamol", "category": "Pain Relief", "price": 30.0, "image": "p.png", "availability": true},
		"m2": {"name": "Ibuprofen", "category": "Pain Relief", "price": "45.50", "image": "i.png", "availability": "In Stock"},
		"m3": {"name": "Cetirizine", "category": "Allergy", "price": 12, "image": "c.png", "availability": false},
		"m4": {"name": "Aspirin", "category": "Pain Relief", "price": 20.0, "image": "a.png", "availability": "Out of Stock"},
	}
	for id, d := range docs {
		require.NoError(t, store.Set(ctx, Collection, id, d, docstore.SetOptions{}))
	}
	return store
}

func newRedisCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisCache(client, 10*time.Minute), mr
}

func names(list []domain.Medicine) []string {
	out := make([]string, len(list))
	for i, m := range list {
		out[i] = m.Name
	}
	return out
}

func TestList_SortedByName(t *testing.T) {
	c := New(seedStore(t), nil, nil)

	list, err := c.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Aspirin", "Cetirizine", "Ibuprofen", "Paracetamol"}, names(list))
}

func TestDecode_NormalizesPriceAndAvailability(t *testing.T) {
	c := New(seedStore(t), nil, nil)
	ctx := context.Background()

	ibu, err := c.Get(ctx, "m2")
	require.NoError(t, err)
	assert.Equal(t, 45.5, ibu.Price)
	assert.Equal(t, domain.InStock, ibu.Availability)

	cet, err := c.Get(ctx, "m3")
	require.NoError(t, err)
	assert.Equal(t, 12.0, cet.Price)
	assert.Equal(t, domain.OutOfStock, cet.Availability)

	asp, err := c.Get(ctx, "m4")
	require.NoError(t, err)
	assert.Equal(t, domain.OutOfStock, asp.Availability)
}

func TestGet_NotFound(t *testing.T) {
	c := New(seedStore(t), nil, nil)

	_, err := c.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListByCategory(t *testing.T) {
	c := New(seedStore(t), nil, nil)
	ctx := context.Background()

	list, err := c.ListByCategory(ctx, "Pain Relief")
	require.NoError(t, err)
	assert.Equal(t, []string{"Aspirin", "Ibuprofen", "Paracetamol"}, names(list))

	all, err := c.ListByCategory(ctx, "  ")
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestSearch_CaseInsensitive(t *testing.T) {
	c := New(seedStore(t), nil, nil)

	list, err := c.Search(context.Background(), "PRO")
	require.NoError(t, err)
	assert.Equal(t, []string{"Ibuprofen"}, names(list))

	none, err := c.Search(context.Background(), "zzz")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestRecommend_SameCategoryExcludingSelf(t *testing.T) {
	c := New(seedStore(t), nil, nil)
	ctx := context.Background()

	recs, err := c.Recommend(ctx, "m1", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"Aspirin", "Ibuprofen"}, names(recs))

	limited, err := c.Recommend(ctx, "m1", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	_, err = c.Recommend(ctx, "missing", 3)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGet_FillsRedisCache(t *testing.T) {
	cache, mr := newRedisCache(t)
	c := New(seedStore(t), cache, nil)
	ctx := context.Background()

	_, err := c.Get(ctx, "m1")
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return mr.Exists(medicineKey("m1"))
	}, time.Second, 10*time.Millisecond)

	ttl := mr.TTL(medicineKey("m1"))
	assert.GreaterOrEqual(t, ttl, 10*time.Minute)
	assert.Less(t, ttl, 15*time.Minute)
}

func TestGet_ServesFromCache(t *testing.T) {
	cache, _ := newRedisCache(t)
	ctx := context.Background()
	require.NoError(t, cache.SetMedicine(ctx, &domain.Medicine{ID: "x1", Name: "Cached", Availability: domain.InStock}))

	c := New(docstore.NewMemoryStore(), cache, nil)
	m, err := c.Get(ctx, "x1")
	require.NoError(t, err)
	assert.Equal(t, "Cached", m.Name)
	assert.True(t, m.Availability.IsInStock())
}

func TestList_FallsBackWhenCacheFails(t *testing.T) {
	cache, mr := newRedisCache(t)
	mr.Close()
	c := New(seedStore(t), cache, nil)

	list, err := c.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 4)
}

func TestRedisCache_Miss(t *testing.T) {
	cache, _ := newRedisCache(t)

	_, err := cache.GetMedicine(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrCacheMiss)
	_, err = cache.GetList(context.Background(), "all")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestImport_WritesAndFlushes(t *testing.T) {
	cache, mr := newRedisCache(t)
	store := docstore.NewMemoryStore()
	c := New(store, cache, nil)
	ctx := context.Background()

	require.NoError(t, cache.SetList(ctx, "all", []domain.Medicine{{ID: "stale", Name: "Stale"}}))
	require.True(t, mr.Exists(listKey("all")))

	err := c.Import(ctx, []domain.Medicine{
		{ID: "n1", Name: "Zinc", Category: "Supplements", Price: 99, Availability: domain.InStock},
	})
	require.NoError(t, err)
	assert.False(t, mr.Exists(listKey("all")))

	doc, err := store.Get(ctx, Collection, "n1")
	require.NoError(t, err)
	assert.Equal(t, true, doc["availability"])
	assert.Equal(t, 99.0, doc["price"])
}

func TestImport_RequiresID(t *testing.T) {
	c := New(docstore.NewMemoryStore(), nil, nil)

	err := c.Import(context.Background(), []domain.Medicine{{Name: "No ID"}})
	assert.Error(t, err)
}
