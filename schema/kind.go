package schema

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// Kind is the runtime category of a field value.
type Kind int

const (
	KindOther Kind = iota
	KindString
	KindNumber
	KindBoolean
	KindObject
	KindArray
	KindNull
)

var kindNames = map[Kind]string{
	KindOther:   "other",
	KindString:  "string",
	KindNumber:  "number",
	KindBoolean: "boolean",
	KindObject:  "object",
	KindArray:   "array",
	KindNull:    "null",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind returns the declarable kind named s. Null is not declarable.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s && k != KindNull {
			return k, nil
		}
	}
	return KindOther, fmt.Errorf("schema: unknown type %q", s)
}

// KindOf classifies v.
func KindOf(v any) Kind {
	switch v.(type) {
	case nil:
		return KindNull
	case string:
		return KindString
	case bool:
		return KindBoolean
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64, json.Number:
		return KindNumber
	case Document, map[string]any:
		return KindObject
	case []any:
		return KindArray
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return KindString
	case reflect.Bool:
		return KindBoolean
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return KindNumber
	case reflect.Map:
		if rv.Type().Key().Kind() == reflect.String {
			return KindObject
		}
	case reflect.Struct:
		return KindObject
	case reflect.Pointer:
		if rv.IsNil() {
			return KindNull
		}
		return KindOf(rv.Elem().Interface())
	case reflect.Array:
		// Named arrays such as ObjectID or UUID are opaque values.
		if rv.Type().Name() != "" {
			return KindObject
		}
		return KindArray
	case reflect.Slice:
		return KindArray
	}
	return KindOther
}

// ClassName returns the name of v's concrete type with pointers dereferenced.
// Unnamed types yield an empty string.
func ClassName(v any) string {
	if v == nil {
		return ""
	}
	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Name()
}

// asMap returns v as a plain map when it is a string-keyed map.
func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case Document:
		return m, true
	case map[string]any:
		return m, true
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}
	return out, true
}
