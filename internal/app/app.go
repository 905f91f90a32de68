// Package app wires backends, model files and collections for the bastion
// binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/jacentio/bastion/driver/dynamo"
	"github.com/jacentio/bastion/driver/memdb"
	"github.com/jacentio/bastion/driver/mongodb"
	"github.com/jacentio/bastion/driver/sqlite"
	"github.com/jacentio/bastion/schema"
	"github.com/jacentio/bastion/store"
)

// Driver names accepted by Options.Driver.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverMongoDB  = "mongodb"
	DriverDynamoDB = "dynamodb"
)

// ErrUnknownDriver is returned for an unsupported Options.Driver.
var ErrUnknownDriver = errors.New("bastion: unknown driver")

// Options select and configure a backend.
type Options struct {
	Driver string
	// DSN is the SQLite path, the MongoDB URI or the DynamoDB endpoint.
	DSN          string
	Database     string
	TablePrefix  string
	Region       string
	Profile      string
	ScanSegments int
	// Models is a directory of model files. Empty means schemaless.
	Models string
	// MaxConcurrentRemoves bounds bulk removals of every collection.
	MaxConcurrentRemoves int
}

// Env returns the value of the BASTION_<key> environment variable, or def.
func Env(key, def string) string {
	if v, ok := os.LookupEnv("BASTION_" + key); ok && v != "" {
		return v
	}
	return def
}

// EnvInt is Env for integers. Malformed values fall back to def.
func EnvInt(key string, def int) int {
	n, err := strconv.Atoi(Env(key, ""))
	if err != nil {
		return def
	}
	return n
}

// OpenBackend opens the backend selected by opts. The returned close
// function releases it.
func OpenBackend(ctx context.Context, opts Options, logger *slog.Logger) (store.Backend, func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }

	switch opts.Driver {
	case DriverMemory:
		return memdb.New(), noop, nil

	case DriverSQLite, "":
		cfg := sqlite.DefaultConfig()
		cfg.Path = opts.DSN
		cfg.Logger = logger
		db, err := sqlite.Open(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return db, func(context.Context) error { return db.Close() }, nil

	case DriverMongoDB:
		cfg := mongodb.DefaultConfig()
		if opts.DSN != "" {
			cfg.URI = opts.DSN
		}
		if opts.Database != "" {
			cfg.Database = opts.Database
		}
		cfg.Logger = logger
		db, err := mongodb.Open(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return db, db.Close, nil

	case DriverDynamoDB:
		cfg := dynamo.DefaultConfig()
		cfg.TablePrefix = opts.TablePrefix
		cfg.Region = opts.Region
		cfg.Profile = opts.Profile
		cfg.Endpoint = opts.DSN
		cfg.ScanSegments = opts.ScanSegments
		cfg.Logger = logger
		db, err := dynamo.Open(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return db, noop, nil
	}
	return nil, nil, fmt.Errorf("%w: %q", ErrUnknownDriver, opts.Driver)
}

// LoadModels loads the model files of opts.Models, or returns nil when no
// directory is configured.
func LoadModels(opts Options) (map[string]schema.Model, error) {
	if opts.Models == "" {
		return nil, nil
	}
	return schema.LoadDir(opts.Models, "")
}

// Registry registers one collection per model over backend.
func Registry(backend store.Backend, models map[string]schema.Model, opts Options, logger *slog.Logger) *store.Registry {
	names := make([]string, 0, len(models))
	for name := range models {
		names = append(names, name)
	}
	sort.Strings(names)

	r := store.NewRegistry()
	for _, name := range names {
		r.Register(store.New(backend, store.Config{
			Name:                 name,
			Model:                models[name],
			Logger:               logger,
			MaxConcurrentRemoves: opts.MaxConcurrentRemoves,
		}))
	}
	return r
}

// Collection returns the registered collection called name, or a schemaless
// collection over backend when none is registered.
func Collection(r *store.Registry, backend store.Backend, name string, logger *slog.Logger) *store.Collection {
	if c, ok := r.Get(name); ok {
		return c
	}
	cfg := store.DefaultConfig(name)
	cfg.Logger = logger
	return store.New(backend, cfg)
}

// ReadDocument decodes one JSON object. An empty input is an empty document.
func ReadDocument(r io.Reader) (schema.Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return ParseDocument(data)
}

// ParseDocument decodes one JSON object. An empty input is an empty document.
func ParseDocument(data []byte) (schema.Document, error) {
	doc := schema.Document{}
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("bastion: parse document: %w", err)
	}
	return doc, nil
}

// WriteJSON writes v as indented JSON. Identifiers are written in hex form.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
