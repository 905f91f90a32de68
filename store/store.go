package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/jacentio/bastion/docid"
	"github.com/jacentio/bastion/hook"
	"github.com/jacentio/bastion/schema"
)

// Collection validates, filters and hooks every operation on one backend
// collection.
type Collection struct {
	table    Table
	config   Config
	pipeline *hook.Pipeline
	logger   *slog.Logger
}

// New creates a Collection over backend. The hooks in config are fixed for the
// lifetime of the Collection.
func New(backend Backend, config Config) *Collection {
	config.validate()
	c := &Collection{
		config:   config,
		pipeline: hook.New(config.Model, config.Hooks),
		logger:   config.Logger.With("collection", config.Name),
	}
	if backend != nil {
		c.table = backend.Table(config.Name)
	}
	return c
}

// Name returns the collection name.
func (c *Collection) Name() string { return c.config.Name }

// Model returns the collection model, or nil.
func (c *Collection) Model() schema.Model { return c.config.Model }

// Insert validates doc, stores it and returns the stored document after the
// read filter. Rejected documents fail with ErrInvalidDocument.
func (c *Collection) Insert(ctx context.Context, doc schema.Document) (schema.Document, error) {
	candidate, err := c.pipeline.Validate(ctx, doc, true, docid.Nil)
	if err != nil {
		c.logger.Debug("insert rejected", "error", err)
		return nil, err
	}

	stored, err := c.table.InsertOne(ctx, candidate)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("document inserted", "id", docid.Of(stored).Hex())

	return c.pipeline.Filter(ctx, stored)
}

// Find returns every document matching q in the collection's sort order.
// The read filter runs on each result; one failing filter fails the read.
func (c *Collection) Find(ctx context.Context, q Query) ([]schema.Document, error) {
	docs, err := c.table.Find(ctx, q, c.config.Sort)
	if err != nil {
		return nil, err
	}
	return c.pipeline.FilterAll(ctx, docs)
}

// FindOne returns the first document matching q. found is false, with a nil
// error, when nothing matches.
func (c *Collection) FindOne(ctx context.Context, q Query) (doc schema.Document, found bool, err error) {
	docs, err := c.table.Find(ctx, q, c.config.Sort)
	if err != nil {
		return nil, false, err
	}
	if len(docs) == 0 {
		return nil, false, nil
	}
	doc, err = c.pipeline.Filter(ctx, docs[0])
	if err != nil {
		return nil, false, err
	}
	return doc, true, nil
}

// FindByID returns the document with the given identifier, passed either as
// a docid.ID or its hex form.
func (c *Collection) FindByID(ctx context.Context, id any) (schema.Document, error) {
	oid := docid.Normalize(id)
	if docid.IsNil(oid) {
		return nil, ErrInvalidID
	}

	doc, found, err := c.FindOne(ctx, Query{docid.Field: oid})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}
	return doc, nil
}

// UpdateByID validates patch with the update validator and model, sets its
// fields on the identified document and returns the updated document.
func (c *Collection) UpdateByID(ctx context.Context, id any, patch schema.Document) (schema.Document, error) {
	return c.UpdateWhere(ctx, id, nil, patch)
}

// UpdateWhere is UpdateByID restricted to a document that also matches where.
// A document that exists but does not match yields ErrNotFound.
func (c *Collection) UpdateWhere(ctx context.Context, id any, where Query, patch schema.Document) (schema.Document, error) {
	oid := docid.Normalize(id)
	if docid.IsNil(oid) {
		return nil, ErrInvalidID
	}

	set, err := c.pipeline.Validate(ctx, patch, false, oid)
	if err != nil {
		c.logger.Debug("update rejected", "id", oid.Hex(), "error", err)
		return nil, err
	}
	// The identifier is immutable.
	if _, ok := set[docid.Field]; ok {
		return nil, ErrInvalidDocument
	}

	filter := make(Query, len(where)+1)
	for k, v := range where {
		filter[k] = v
	}
	filter[docid.Field] = oid

	var updated schema.Document
	if len(set) == 0 {
		docs, err := c.table.Find(ctx, filter, nil)
		if err != nil {
			return nil, err
		}
		if len(docs) > 0 {
			updated = docs[0]
		}
	} else {
		updated, err = c.table.FindOneAndUpdate(ctx, filter, set)
		if err != nil {
			return nil, err
		}
	}
	if updated == nil {
		return nil, ErrNotFound
	}
	c.logger.Debug("document updated", "id", oid.Hex())

	return c.pipeline.Filter(ctx, updated)
}

// RemoveByID runs the pre-remove chain for the identified document and, if
// every callback succeeds, deletes it. The removed document is returned after
// the read filter. A failing callback aborts the removal.
func (c *Collection) RemoveByID(ctx context.Context, id any) (schema.Document, error) {
	oid := docid.Normalize(id)
	if docid.IsNil(oid) {
		return nil, ErrInvalidID
	}

	if err := c.pipeline.RunPreRemove(ctx, oid); err != nil {
		c.logger.Warn("pre-remove failed, document kept", "id", oid.Hex(), "error", err)
		return nil, err
	}

	removed, err := c.table.FindOneAndDelete(ctx, Query{docid.Field: oid})
	if err != nil {
		return nil, err
	}
	if removed == nil {
		return nil, ErrNotFound
	}
	c.logger.Debug("document removed", "id", oid.Hex())

	return c.pipeline.Filter(ctx, removed)
}

// Remove removes every document matching q through RemoveByID. Removals run
// concurrently and a failure never cancels its siblings: the documents that
// were removed are returned together with the joined errors of those that
// were not.
func (c *Collection) Remove(ctx context.Context, q Query) ([]schema.Document, error) {
	docs, err := c.table.Find(ctx, q, c.config.Sort)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}

	batch := uuid.NewString()
	logger := c.logger.With("batch", batch)
	logger.Debug("bulk remove started", "matches", len(docs))

	var sem chan struct{}
	if c.config.MaxConcurrentRemoves > 0 {
		sem = make(chan struct{}, c.config.MaxConcurrentRemoves)
	}

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		removed []schema.Document
		errs    []error
	)
	for _, doc := range docs {
		id := docid.Of(doc)
		wg.Add(1)
		go func() {
			defer wg.Done()

			var (
				out schema.Document
				err error
			)
			if release, serr := acquire(ctx, sem); serr != nil {
				err = serr
			} else {
				out, err = c.RemoveByID(ctx, id)
				release()
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				logger.Warn("bulk remove: document not removed", "id", id.Hex(), "error", err)
				errs = append(errs, fmt.Errorf("remove %s: %w", id.Hex(), err))
				return
			}
			removed = append(removed, out)
		}()
	}
	wg.Wait()

	logger.Debug("bulk remove finished", "removed", len(removed), "failed", len(errs))
	return removed, errors.Join(errs...)
}

// acquire takes a slot from sem, giving up when ctx is done. A nil sem is
// unbounded.
func acquire(ctx context.Context, sem chan struct{}) (release func(), err error) {
	if sem == nil {
		return func() {}, nil
	}
	select {
	case sem <- struct{}{}:
		return func() { <-sem }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Count returns the number of documents in the collection.
func (c *Collection) Count(ctx context.Context) (int64, error) {
	return c.table.Count(ctx)
}

// Filter applies the collection's read filter to doc. It is meant for
// documents obtained outside the Collection, such as change feeds.
func (c *Collection) Filter(ctx context.Context, doc schema.Document) (schema.Document, error) {
	return c.pipeline.Filter(ctx, doc)
}

// Exists reports whether backend holds exactly one collection called name.
func Exists(ctx context.Context, backend Backend, name string) (bool, error) {
	names, err := backend.ListCollections(ctx, name)
	if err != nil {
		return false, err
	}
	return len(names) == 1, nil
}
