package schema

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// Format is the encoding of a model file.
type Format int

const (
	FormatYAML Format = iota
	FormatJSON
)

// DefaultPattern matches the model files picked up by LoadDir.
const DefaultPattern = "**/*.{yaml,yml,json}"

// fieldFile is the on-disk shape of a field spec.
type fieldFile struct {
	Type     string               `yaml:"type" json:"type"`
	Required bool                 `yaml:"required" json:"required"`
	Default  any                  `yaml:"default" json:"default"`
	Model    map[string]fieldFile `yaml:"model" json:"model"`
	Class    string               `yaml:"class" json:"class"`
}

// FormatOf infers the format from a file extension. Unknown extensions are
// treated as YAML, which is a superset of JSON.
func FormatOf(name string) Format {
	if strings.EqualFold(filepath.Ext(name), ".json") {
		return FormatJSON
	}
	return FormatYAML
}

// Parse decodes a model description.
func Parse(data []byte, format Format) (Model, error) {
	var raw map[string]fieldFile
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("schema: decode json: %w", err)
		}
	default:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("schema: decode yaml: %w", err)
		}
	}
	return build(raw, "")
}

// LoadFile reads and parses the model stored at name.
func LoadFile(name string) (Model, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, err
	}
	model, err := Parse(data, FormatOf(name))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return model, nil
}

// LoadDir loads every model file under root matching pattern (DefaultPattern
// when empty). Models are keyed by file name without extension; two files
// with the same base name are an error.
func LoadDir(root, pattern string) (map[string]Model, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}
	fsys := os.DirFS(root)
	matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("schema: glob %q: %w", pattern, err)
	}

	models := make(map[string]Model, len(matches))
	for _, match := range matches {
		name := strings.TrimSuffix(path.Base(match), path.Ext(match))
		if _, dup := models[name]; dup {
			return nil, fmt.Errorf("schema: duplicate model %q (%s)", name, match)
		}
		data, err := fs.ReadFile(fsys, match)
		if err != nil {
			return nil, err
		}
		model, err := Parse(data, FormatOf(match))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", match, err)
		}
		models[name] = model
	}
	return models, nil
}

func build(raw map[string]fieldFile, prefix string) (Model, error) {
	model := make(Model, len(raw))
	for name, f := range raw {
		p := join(prefix, name)
		kind, err := ParseKind(f.Type)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}

		var spec FieldSpec
		switch {
		case kind != KindObject && (f.Model != nil || f.Class != ""):
			return nil, fmt.Errorf("schema: %s: model and class require type object", p)
		case f.Model != nil && f.Class != "":
			return nil, fmt.Errorf("schema: %s: model and class are mutually exclusive", p)
		case f.Model != nil:
			nested, err := build(f.Model, p)
			if err != nil {
				return nil, err
			}
			spec = Object(nested)
		case f.Class != "":
			spec = Instance(f.Class)
		default:
			spec = FieldSpec{kind: kind}
		}

		if f.Required {
			spec = spec.Required()
		}
		if f.Default != nil {
			if got := KindOf(f.Default); got != kind {
				return nil, fmt.Errorf("schema: %s: default is %s, field is %s", p, got, kind)
			}
			spec = spec.Default(f.Default)
		}
		model[name] = spec
	}
	return model, nil
}
