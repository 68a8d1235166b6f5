// Package catalog serves the read-only medicine catalog.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/fjod/go_pharmacy/internal/docstore"
	"github.com/fjod/go_pharmacy/internal/domain"
)

const Collection = "medicine"

var ErrNotFound = errors.New("medicine not found")

type Catalog struct {
	docs  docstore.Store
	cache Cache
	log   *zap.Logger
	sfg   singleflight.Group
}

func New(docs docstore.Store, cache Cache, log *zap.Logger) *Catalog {
	if cache == nil {
		cache = NoCache{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Catalog{docs: docs, cache: cache, log: log}
}

// List returns every medicine ordered by name.
func (c *Catalog) List(ctx context.Context) ([]domain.Medicine, error) {
	return c.list(ctx, "all")
}

func (c *Catalog) ListByCategory(ctx context.Context, category string) ([]domain.Medicine, error) {
	category = strings.TrimSpace(category)
	if category == "" {
		return c.List(ctx)
	}
	return c.list(ctx, "category:"+category, docstore.Eq("category", category))
}

// Search matches query against medicine names, ignoring case.
func (c *Catalog) Search(ctx context.Context, query string) ([]domain.Medicine, error) {
	all, err := c.List(ctx)
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return all, nil
	}
	out := make([]domain.Medicine, 0)
	for _, m := range all {
		if strings.Contains(strings.ToLower(m.Name), q) {
			out = append(out, m)
		}
	}
	return out, nil
}

// Get returns ErrNotFound for unknown ids.
func (c *Catalog) Get(ctx context.Context, id string) (*domain.Medicine, error) {
	v, err, _ := c.sfg.Do("medicine:"+id, func() (interface{}, error) {
		m, err := c.cache.GetMedicine(ctx, id)
		if err == nil {
			return m, nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			c.log.Warn("catalog cache get failed", zap.String("id", id), zap.Error(err))
		}

		doc, err := c.docs.Get(ctx, Collection, id)
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, ErrNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get medicine %s: %w", id, err)
		}
		m = decodeMedicine(id, doc)

		go c.fill(func(ctx context.Context) error { return c.cache.SetMedicine(ctx, m) })
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	m := *v.(*domain.Medicine)
	return &m, nil
}

// Recommend returns up to limit other medicines from the same category.
func (c *Catalog) Recommend(ctx context.Context, id string, limit int) ([]domain.Medicine, error) {
	m, err := c.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	same, err := c.ListByCategory(ctx, m.Category)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Medicine, 0, len(same))
	for _, other := range same {
		if other.ID == m.ID {
			continue
		}
		out = append(out, other)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Import writes medicines to the store and drops cached reads.
func (c *Catalog) Import(ctx context.Context, medicines []domain.Medicine) error {
	for _, m := range medicines {
		if m.ID == "" {
			return fmt.Errorf("medicine %q has no id", m.Name)
		}
		if err := c.docs.Set(ctx, Collection, m.ID, encodeMedicine(m), docstore.SetOptions{}); err != nil {
			return err
		}
	}
	if err := c.cache.Flush(ctx); err != nil {
		c.log.Warn("catalog cache flush failed", zap.Error(err))
	}
	return nil
}

func (c *Catalog) list(ctx context.Context, key string, filters ...docstore.Filter) ([]domain.Medicine, error) {
	v, err, _ := c.sfg.Do("list:"+key, func() (interface{}, error) {
		list, err := c.cache.GetList(ctx, key)
		if err == nil {
			return list, nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			c.log.Warn("catalog cache get failed", zap.String("key", key), zap.Error(err))
		}

		snaps, err := c.docs.Query(ctx, Collection, filters...)
		if err != nil {
			return nil, fmt.Errorf("failed to list medicines: %w", err)
		}
		list = make([]domain.Medicine, 0, len(snaps))
		for _, s := range snaps {
			list = append(list, *decodeMedicine(s.ID, s.Data))
		}
		sort.SliceStable(list, func(i, j int) bool { return list[i].Name < list[j].Name })

		go c.fill(func(ctx context.Context) error { return c.cache.SetList(ctx, key, list) })
		return list, nil
	})
	if err != nil {
		return nil, err
	}
	list := v.([]domain.Medicine)
	out := make([]domain.Medicine, len(list))
	copy(out, list)
	return out, nil
}

func (c *Catalog) fill(set func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := set(ctx); err != nil {
		c.log.Warn("catalog cache set failed", zap.Error(err))
	}
}

func decodeMedicine(id string, d docstore.Document) *domain.Medicine {
	price := docstore.Float(d, "price")
	if s := docstore.String(d, "price"); s != "" {
		if p, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			price = p
		}
	}
	return &domain.Medicine{
		ID:           id,
		Name:         docstore.String(d, "name"),
		Category:     docstore.String(d, "category"),
		Description:  docstore.String(d, "description"),
		Price:        price,
		Image:        docstore.String(d, "image"),
		Availability: domain.ParseAvailability(d["availability"]),
	}
}

func encodeMedicine(m domain.Medicine) docstore.Document {
	return docstore.Document{
		"name":         m.Name,
		"category":     m.Category,
		"description":  m.Description,
		"price":        m.Price,
		"image":        m.Image,
		"availability": m.Availability.IsInStock(),
	}
}
