package store

import (
	"log/slog"

	"github.com/jacentio/bastion/hook"
	"github.com/jacentio/bastion/schema"
)

// Config holds configuration for a Collection.
type Config struct {
	// Name is the backend collection (table) name.
	Name string

	// Model validates inserts and updates. Nil disables schema checks.
	Model schema.Model

	// Sort orders every find. It applies to all reads of the collection.
	Sort Sort

	// Hooks are the user validators, read filter and pre-remove chain.
	Hooks hook.Hooks

	// Logger receives operation logs. Default: slog.Default()
	Logger *slog.Logger

	// MaxConcurrentRemoves bounds the fan-out of Remove.
	// Default: 0 (one goroutine per matching document)
	MaxConcurrentRemoves int
}

// DefaultConfig returns a configuration for the named collection with no
// model and no hooks.
func DefaultConfig(name string) Config {
	return Config{
		Name:   name,
		Logger: slog.Default(),
	}
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.MaxConcurrentRemoves < 0 {
		c.MaxConcurrentRemoves = 0
	}
}
