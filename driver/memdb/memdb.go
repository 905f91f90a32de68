// Package memdb is an in-memory storage backend. Data is lost when the
// process exits. Safe for concurrent use.
package memdb

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/jacentio/bastion/docid"
	"github.com/jacentio/bastion/internal/query"
	"github.com/jacentio/bastion/schema"
	"github.com/jacentio/bastion/store"
)

// ErrDuplicateID is returned when inserting a document whose identifier is
// already taken.
var ErrDuplicateID = errors.New("memdb: duplicate _id")

// DB keeps collections in memory. Documents are deep-copied on the way in
// and out so callers never share maps with the store.
type DB struct {
	mu          sync.RWMutex
	collections map[string][]schema.Document
}

// New creates an empty DB.
func New() *DB {
	return &DB{
		collections: make(map[string][]schema.Document),
	}
}

// Table returns the handle of the named collection. The collection is
// created by its first insert.
func (d *DB) Table(name string) store.Table {
	return &table{db: d, name: name}
}

// ListCollections returns the existing collections called name.
func (d *DB) ListCollections(ctx context.Context, name string) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var names []string
	for n := range d.collections {
		if n == name {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return names, nil
}

type table struct {
	db   *DB
	name string
}

func (t *table) InsertOne(ctx context.Context, doc schema.Document) (schema.Document, error) {
	stored := schema.Clone(doc)
	if stored == nil {
		stored = schema.Document{}
	}

	if raw, ok := stored[docid.Field]; ok {
		id := docid.Normalize(raw)
		if docid.IsNil(id) {
			return nil, fmt.Errorf("memdb: invalid _id %v", raw)
		}
		stored[docid.Field] = id
	} else {
		stored[docid.Field] = docid.New()
	}

	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	docs := t.db.collections[t.name]
	for _, existing := range docs {
		if existing[docid.Field] == stored[docid.Field] {
			return nil, ErrDuplicateID
		}
	}
	t.db.collections[t.name] = append(docs, stored)
	return schema.Clone(stored), nil
}

func (t *table) Find(ctx context.Context, filter store.Query, order store.Sort) ([]schema.Document, error) {
	t.db.mu.RLock()
	defer t.db.mu.RUnlock()
	matches := query.Filter(t.db.collections[t.name], filter, order)
	out := make([]schema.Document, len(matches))
	for i, doc := range matches {
		out[i] = schema.Clone(doc)
	}
	return out, nil
}

func (t *table) FindOneAndUpdate(ctx context.Context, filter store.Query, set schema.Document) (schema.Document, error) {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	for _, doc := range t.db.collections[t.name] {
		if !query.Match(doc, filter) {
			continue
		}
		for k, v := range schema.Clone(set) {
			doc[k] = v
		}
		return schema.Clone(doc), nil
	}
	return nil, nil
}

func (t *table) FindOneAndDelete(ctx context.Context, filter store.Query) (schema.Document, error) {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	docs := t.db.collections[t.name]
	for i, doc := range docs {
		if !query.Match(doc, filter) {
			continue
		}
		t.db.collections[t.name] = append(docs[:i:i], docs[i+1:]...)
		return doc, nil
	}
	return nil, nil
}

func (t *table) Count(ctx context.Context) (int64, error) {
	t.db.mu.RLock()
	defer t.db.mu.RUnlock()
	return int64(len(t.db.collections[t.name])), nil
}
