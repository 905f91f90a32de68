// Package hook composes user-supplied validators, read filters and
// pre-remove callbacks around schema validation.
//
// Hooks are handed over once, at construction, through [Hooks] and are
// immutable afterwards; a [Pipeline] is safe for concurrent use.
package hook

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/jacentio/bastion/docid"
	"github.com/jacentio/bastion/schema"
)

// Validator checks a document before it is written. insert distinguishes
// inserts from updates; id is docid.Nil on insert.
//
// Returning (nil, nil) rejects the document. A returned document replaces the
// input as the candidate to persist and is still validated against the model.
type Validator func(ctx context.Context, doc schema.Document, insert bool, id docid.ID) (schema.Document, error)

// Filter rewrites a document on its way back to the caller. It may modify doc
// in place and return nil, or return a replacement.
type Filter func(ctx context.Context, doc schema.Document) (schema.Document, error)

// PreRemove runs before a document is deleted. An error prevents the delete.
type PreRemove func(ctx context.Context, id docid.ID) error

// Hooks is the per-collection hook configuration.
type Hooks struct {
	InsertValidator Validator
	UpdateValidator Validator
	ReadFilter      Filter

	// PreRemove callbacks run one at a time, in slice order.
	PreRemove []PreRemove
}

// Stage names used in Error.
const (
	StageInsertValidator = "insert-validator"
	StageUpdateValidator = "update-validator"
	StageReadFilter      = "read-filter"
	StagePreRemove       = "pre-remove"
)

// ErrRejected is returned when a validator or the model refuses a document.
var ErrRejected = errors.New("bastion: invalid document")

// Error is a failure raised by a user hook.
type Error struct {
	Stage string
	// Index is the position of the failing callback in the pre-remove chain.
	Index int
	Err   error
}

func (e *Error) Error() string {
	if e.Stage == StagePreRemove {
		return fmt.Sprintf("bastion: %s hook #%d: %v", e.Stage, e.Index, e.Err)
	}
	return fmt.Sprintf("bastion: %s hook: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Pipeline applies a Hooks configuration together with a model.
type Pipeline struct {
	model schema.Model
	hooks Hooks
}

// New builds a pipeline. The pre-remove slice is copied.
func New(model schema.Model, hooks Hooks) *Pipeline {
	hooks.PreRemove = append([]PreRemove(nil), hooks.PreRemove...)
	return &Pipeline{model: model, hooks: hooks}
}

// Model returns the model documents are validated against.
func (p *Pipeline) Model() schema.Model { return p.model }

// Validate runs the insert or update validator, if any, followed by schema
// validation, and returns the document to persist. The validator sees a copy
// of doc.
func (p *Pipeline) Validate(ctx context.Context, doc schema.Document, insert bool, id docid.ID) (schema.Document, error) {
	validator, stage := p.hooks.UpdateValidator, StageUpdateValidator
	if insert {
		validator, stage = p.hooks.InsertValidator, StageInsertValidator
	}

	candidate := doc
	if validator != nil {
		result, err := validator(ctx, schema.Clone(doc), insert, id)
		if err != nil {
			return nil, &Error{Stage: stage, Err: err}
		}
		if result == nil {
			return nil, ErrRejected
		}
		candidate = result
	}

	validated, ok := schema.Validate(p.model, candidate, insert)
	if !ok {
		return nil, ErrRejected
	}
	return validated, nil
}

// Filter applies the read filter to doc. A nil doc is returned unchanged.
func (p *Pipeline) Filter(ctx context.Context, doc schema.Document) (schema.Document, error) {
	if p.hooks.ReadFilter == nil || doc == nil {
		return doc, nil
	}
	result, err := p.hooks.ReadFilter(ctx, doc)
	if err != nil {
		return nil, &Error{Stage: StageReadFilter, Err: err}
	}
	if result == nil {
		return doc, nil
	}
	return result, nil
}

// FilterAll filters every document concurrently and returns the results in
// input order once all filters are done. Any failure fails the whole call.
func (p *Pipeline) FilterAll(ctx context.Context, docs []schema.Document) ([]schema.Document, error) {
	if p.hooks.ReadFilter == nil || len(docs) == 0 {
		return docs, nil
	}

	out := make([]schema.Document, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	for i, doc := range docs {
		g.Go(func() error {
			filtered, err := p.Filter(gctx, doc)
			if err != nil {
				return err
			}
			out[i] = filtered
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// RunPreRemove runs the pre-remove chain for id, stopping at the first error.
func (p *Pipeline) RunPreRemove(ctx context.Context, id docid.ID) error {
	for i, fn := range p.hooks.PreRemove {
		if err := fn(ctx, id); err != nil {
			return &Error{Stage: StagePreRemove, Index: i, Err: err}
		}
	}
	return nil
}
