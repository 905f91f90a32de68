package schema

import (
	"fmt"
)

// FieldError describes the first rule a document broke.
type FieldError struct {
	Path   string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("schema: %s: %s", e.Path, e.Reason)
}

// Validate checks doc against model. insert enables required-field checks
// and default substitution.
//
// On success it returns a normalized copy of doc; the input is left untouched.
// A nil model accepts any document as is.
func Validate(model Model, doc Document, insert bool) (Document, bool) {
	out, err := validate(model, doc, insert)
	if err != nil {
		return nil, false
	}
	return out, true
}

// Explain runs the same checks as Validate and returns the first violation,
// or nil when doc is valid.
func Explain(model Model, doc Document, insert bool) error {
	_, err := validate(model, doc, insert)
	return err
}

func validate(model Model, doc Document, insert bool) (Document, error) {
	if model == nil {
		return Clone(doc), nil
	}
	out, err := check(model, doc, insert, "")
	if err != nil {
		return nil, err
	}
	return Document(out), nil
}

func check(model Model, doc map[string]any, insert bool, path string) (map[string]any, error) {
	for field := range doc {
		if _, ok := model[field]; !ok {
			return nil, &FieldError{Path: join(path, field), Reason: "field is not declared"}
		}
	}

	out := make(map[string]any, len(model))
	for field, value := range doc {
		out[field] = cloneValue(value)
	}

	for field, spec := range model {
		p := join(path, field)
		value, present := doc[field]

		if !present {
			if insert && spec.required {
				return nil, &FieldError{Path: p, Reason: "required field is missing"}
			}
			if insert && spec.hasDefault {
				out[field] = cloneValue(spec.def)
			}
			continue
		}

		if got := KindOf(value); got != spec.kind {
			return nil, &FieldError{Path: p, Reason: fmt.Sprintf("expected %s, got %s", spec.kind, got)}
		}
		if spec.kind != KindObject {
			continue
		}

		switch {
		case spec.class != "":
			if name := ClassName(value); name != spec.class {
				return nil, &FieldError{Path: p, Reason: fmt.Sprintf("expected instance of %s, got %q", spec.class, name)}
			}
			out[field] = value
		case spec.nested != nil:
			sub, ok := asMap(value)
			if !ok {
				return nil, &FieldError{Path: p, Reason: "opaque object cannot match a nested model"}
			}
			nested, err := check(spec.nested, sub, insert, p)
			if err != nil {
				return nil, err
			}
			if _, isDoc := value.(Document); isDoc {
				out[field] = Document(nested)
			} else {
				out[field] = nested
			}
		}
	}
	return out, nil
}

func join(path, field string) string {
	if path == "" {
		return field
	}
	return path + "." + field
}

// Clone returns a deep copy of doc. Plain maps and []any are copied
// recursively; any other value is shared.
func Clone(doc Document) Document {
	if doc == nil {
		return nil
	}
	out := make(Document, len(doc))
	for k, v := range doc {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case Document:
		return Clone(t)
	case map[string]any:
		if t == nil {
			return t
		}
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = cloneValue(e)
		}
		return out
	case []any:
		if t == nil {
			return t
		}
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	}
	return v
}
