package docstore

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore keeps documents in process. Used for local runs and tests.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]Document
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]map[string]Document)}
}

func (s *MemoryStore) Get(_ context.Context, collection, id string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.collections[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneDocument(doc), nil
}

func (s *MemoryStore) Set(_ context.Context, collection, id string, data Document, opts SetOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs := s.collection(collection)
	existing, ok := docs[id]
	if !opts.Merge || !ok {
		docs[id] = cloneDocument(data)
		if docs[id] == nil {
			docs[id] = Document{}
		}
		return nil
	}
	for k, v := range data {
		existing[k] = clone(v)
	}
	return nil
}

func (s *MemoryStore) Add(_ context.Context, collection string, data Document) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	s.collection(collection)[id] = cloneDocument(data)
	return id, nil
}

func (s *MemoryStore) Query(_ context.Context, collection string, filters ...Filter) ([]Snapshot, error) {
	if err := validateFilters(filters); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Snapshot, 0)
	for id, doc := range s.collections[collection] {
		if matches(doc, filters) {
			result = append(result, Snapshot{ID: id, Data: cloneDocument(doc)})
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *MemoryStore) Close(context.Context) error {
	return nil
}

// collection must be called with the write lock held.
func (s *MemoryStore) collection(name string) map[string]Document {
	docs, ok := s.collections[name]
	if !ok {
		docs = make(map[string]Document)
		s.collections[name] = docs
	}
	return docs
}

func matches(doc Document, filters []Filter) bool {
	for _, f := range filters {
		v, ok := doc[f.Field]
		if !ok || !equalValues(v, f.Value) {
			return false
		}
	}
	return true
}
