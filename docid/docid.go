// Package docid defines the store-assigned document identifier.
//
// Identifiers are 12-byte ObjectIDs. Callers may pass either the native value
// or its 24-character hex form; [Normalize] folds both into an [ID] and maps
// anything malformed to [Nil] rather than failing.
package docid

import (
	"go.mongodb.org/mongo-driver/v2/bson"
)

// Field is the document field holding the identifier.
const Field = "_id"

// ID is the native identifier type.
type ID = bson.ObjectID

// Nil is the null identifier. Operations keyed by Nil never reach storage.
var Nil = bson.NilObjectID

// New allocates a fresh identifier.
func New() ID {
	return bson.NewObjectID()
}

// Normalize converts v into an ID. Supported inputs are ID, *ID and the
// canonical hex string. Everything else yields Nil.
func Normalize(v any) ID {
	switch id := v.(type) {
	case ID:
		return id
	case *ID:
		if id == nil {
			return Nil
		}
		return *id
	case string:
		parsed, err := bson.ObjectIDFromHex(id)
		if err != nil {
			return Nil
		}
		return parsed
	case []byte:
		parsed, err := bson.ObjectIDFromHex(string(id))
		if err != nil {
			return Nil
		}
		return parsed
	}
	return Nil
}

// Of returns the normalized identifier stored in doc, or Nil.
func Of(doc map[string]any) ID {
	if doc == nil {
		return Nil
	}
	return Normalize(doc[Field])
}

// IsNil reports whether id is the null identifier.
func IsNil(id ID) bool {
	return id.IsZero()
}
