package store

import (
	"errors"

	"github.com/jacentio/bastion/hook"
)

var (
	// ErrInvalidDocument is returned when the model or a validator rejects a document.
	// No storage call is made.
	ErrInvalidDocument = hook.ErrRejected

	// ErrInvalidID is returned when an identifier cannot be normalized.
	// No storage call is made.
	ErrInvalidID = errors.New("bastion: invalid document id")

	// ErrNotFound is returned when no document matches the identifier.
	ErrNotFound = errors.New("bastion: document not found")
)

// Kind classifies errors returned by a Collection.
type Kind int

const (
	KindNone Kind = iota
	KindInvalidDocument
	KindInvalidID
	KindNotFound
	KindHook
	KindStore
)

// Code returns the machine-checkable tag of k.
func (k Kind) Code() string {
	switch k {
	case KindInvalidDocument:
		return "E_INVALID_DOCUMENT"
	case KindInvalidID:
		return "E_INVALID_ID"
	case KindNotFound:
		return "E_NOT_FOUND"
	case KindHook:
		return "E_HOOK"
	case KindStore:
		return "E_STORE"
	}
	return ""
}

func (k Kind) String() string { return k.Code() }

// KindOf classifies err. Errors that are neither bastion sentinels nor hook
// failures come from the storage backend and are reported as KindStore.
func KindOf(err error) Kind {
	var herr *hook.Error
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrInvalidDocument):
		return KindInvalidDocument
	case errors.Is(err, ErrInvalidID):
		return KindInvalidID
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.As(err, &herr):
		return KindHook
	}
	return KindStore
}
