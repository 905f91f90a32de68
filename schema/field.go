package schema

// Document is a schemaless record: field name to value.
type Document map[string]any

// Model maps field names to their specs.
type Model map[string]FieldSpec

// FieldSpec is the validation rule of one field. The zero value declares an
// "other" field; use the constructors below.
type FieldSpec struct {
	kind       Kind
	required   bool
	def        any
	hasDefault bool
	nested     Model
	class      string
}

// String declares a string field.
func String() FieldSpec { return FieldSpec{kind: KindString} }

// Number declares a numeric field. Any Go integer or float type matches.
func Number() FieldSpec { return FieldSpec{kind: KindNumber} }

// Boolean declares a boolean field.
func Boolean() FieldSpec { return FieldSpec{kind: KindBoolean} }

// Array declares a slice or array field. Elements are not validated.
func Array() FieldSpec { return FieldSpec{kind: KindArray} }

// Other declares a field whose value matches none of the other kinds.
func Other() FieldSpec { return FieldSpec{kind: KindOther} }

// Object declares a sub-document validated against nested. A nil nested
// model behaves like AnyObject.
func Object(nested Model) FieldSpec {
	return FieldSpec{kind: KindObject, nested: nested}
}

// Instance declares an opaque object whose concrete type name must equal
// class. The value is checked nominally, never structurally.
func Instance(class string) FieldSpec {
	return FieldSpec{kind: KindObject, class: class}
}

// AnyObject declares an object field of any shape.
func AnyObject() FieldSpec { return FieldSpec{kind: KindObject} }

// Required marks the field as mandatory on insert.
func (f FieldSpec) Required() FieldSpec {
	f.required = true
	return f
}

// Default sets the value written on insert when the field is absent.
func (f FieldSpec) Default(v any) FieldSpec {
	f.def = v
	f.hasDefault = true
	return f
}

// Kind returns the declared kind.
func (f FieldSpec) Kind() Kind { return f.kind }

// IsRequired reports whether the field must be present on insert.
func (f FieldSpec) IsRequired() bool { return f.required }

// DefaultValue returns the configured default, if any.
func (f FieldSpec) DefaultValue() (any, bool) { return f.def, f.hasDefault }

// Nested returns the nested model of an Object field.
func (f FieldSpec) Nested() Model { return f.nested }

// Class returns the class tag of an Instance field.
func (f FieldSpec) Class() string { return f.class }
