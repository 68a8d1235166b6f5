// Package docstore is a small document-database abstraction: collections of
// schemaless documents keyed by id, with merge-upserts and equality queries.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

var (
	ErrNotFound     = errors.New("document not found")
	ErrInvalidField = errors.New("invalid field name")
)

// Document is the field map of one stored document. Values are strings,
// numbers, bools, time.Time, []any and nested map[string]any.
type Document map[string]any

// Snapshot is a document together with its id.
type Snapshot struct {
	ID   string
	Data Document
}

// SetOptions controls Set. With Merge only the fields present in data are
// replaced; otherwise the whole document is overwritten.
type SetOptions struct {
	Merge bool
}

// Filter matches documents whose top-level Field equals Value.
type Filter struct {
	Field string
	Value any
}

func Eq(field string, value any) Filter {
	return Filter{Field: field, Value: value}
}

type Store interface {
	// Get returns ErrNotFound when the document does not exist.
	Get(ctx context.Context, collection, id string) (Document, error)
	Set(ctx context.Context, collection, id string, data Document, opts SetOptions) error
	// Add stores data under a generated id and returns it.
	Add(ctx context.Context, collection string, data Document) (string, error)
	// Query returns every document matching all filters.
	Query(ctx context.Context, collection string, filters ...Filter) ([]Snapshot, error)
	Close(ctx context.Context) error
}

var fieldPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func validateFilters(filters []Filter) error {
	for _, f := range filters {
		if !fieldPattern.MatchString(f.Field) {
			return fmt.Errorf("%w: %q", ErrInvalidField, f.Field)
		}
	}
	return nil
}
