// Package store provides a validating, hook-aware document collection on top
// of a schemaless storage backend.
//
// A [Collection] wraps one backend collection and runs every operation through
// the schema model and the user hooks configured at construction:
//
//	users := store.New(backend, store.Config{
//	    Name:  "users",
//	    Model: schema.Model{"name": schema.String().Required()},
//	    Sort:  store.Sort{store.Asc("name")},
//	    Hooks: hook.Hooks{
//	        ReadFilter: func(ctx context.Context, doc schema.Document) (schema.Document, error) {
//	            delete(doc, "password")
//	            return doc, nil
//	        },
//	    },
//	})
//
// # Operations
//
//   - Insert validates (insert validator, then model with defaults) and stores
//   - Find, FindOne and FindByID read and filter
//   - UpdateByID and UpdateWhere validate the patch and set its fields
//   - RemoveByID runs the pre-remove chain in order, then deletes
//   - Remove fans out one RemoveByID per matching document
//   - Count and Exists pass through to the backend
//
// # Backends
//
// Backends implement [Backend] and [Table]; see the driver packages for
// MongoDB, DynamoDB, SQLite and an in-memory implementation.
//
// # Errors
//
// The package defines the following errors:
//
//   - [ErrInvalidDocument] - the model or a validator rejected the document
//   - [ErrInvalidID] - the identifier could not be normalized
//   - [ErrNotFound] - no document has the identifier
//
// Hook failures are reported as *hook.Error and backend errors are returned
// unchanged. [KindOf] maps any returned error to a [Kind].
package store
