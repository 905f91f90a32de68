// Package schema validates documents against declarative models.
//
// A [Model] maps field names to [FieldSpec] values. Field specs are built with
// constructors so that an object field carries either a nested model or a
// class tag, never both:
//
//	users := schema.Model{
//	    "name":      schema.String().Required(),
//	    "enabled":   schema.Boolean().Default(true),
//	    "resources": schema.Object(schema.Model{"create": schema.Number().Required()}),
//	    "avatar":    schema.Instance("Image"),
//	}
//
// # Validation
//
// [Validate] is closed (undeclared fields fail), fail-fast, and recursive. It
// never mutates its input: on success it returns a normalized copy with insert
// defaults applied. Rejection carries no detail; [Explain] reports the first
// failing path for diagnostics.
//
// # Model files
//
// Models can also be described in YAML or JSON and loaded with [LoadFile] or
// [LoadDir]:
//
//	name:
//	  type: string
//	  required: true
//	resources:
//	  type: object
//	  model:
//	    create: {type: number, required: true}
package schema
