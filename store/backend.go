package store

import (
	"context"

	"github.com/jacentio/bastion/schema"
)

// Query is an equality filter on top-level document fields. Values under
// docid.Field are compared as normalized identifiers.
type Query map[string]any

// SortKey orders documents by one field.
type SortKey struct {
	Field string
	Desc  bool
}

// Sort is an ordered list of sort keys; earlier keys take precedence.
type Sort []SortKey

// Asc sorts by field in ascending order.
func Asc(field string) SortKey { return SortKey{Field: field} }

// Desc sorts by field in descending order.
func Desc(field string) SortKey { return SortKey{Field: field, Desc: true} }

// Table is a named-collection handle of a storage backend.
//
// Implementations return documents whose docid.Field holds a docid.ID and
// report "no match" with a nil document rather than an error.
type Table interface {
	// InsertOne stores doc, assigning an identifier when it has none, and
	// returns the stored document.
	InsertOne(ctx context.Context, doc schema.Document) (schema.Document, error)

	// Find returns every document matching filter, ordered by order.
	Find(ctx context.Context, filter Query, order Sort) ([]schema.Document, error)

	// FindOneAndUpdate sets the fields of set on the first document matching
	// filter and returns it after the update, or nil when nothing matched.
	FindOneAndUpdate(ctx context.Context, filter Query, set schema.Document) (schema.Document, error)

	// FindOneAndDelete deletes the first document matching filter and returns
	// it, or nil when nothing matched.
	FindOneAndDelete(ctx context.Context, filter Query) (schema.Document, error)

	// Count returns the number of documents in the collection.
	Count(ctx context.Context) (int64, error)
}

// Backend is a storage database holding named collections.
type Backend interface {
	// Table returns the handle of the named collection.
	Table(name string) Table

	// ListCollections returns the existing collections called name.
	ListCollections(ctx context.Context, name string) ([]string, error)
}
