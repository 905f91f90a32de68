package dynamo

import (
	"log/slog"

	"github.com/jacentio/bastion/internal/shard"
)

// Config holds configuration for a DynamoDB backend.
type Config struct {
	// TablePrefix is prepended to every collection name to form the table name.
	// Default: "" (table name equals collection name)
	TablePrefix string

	// ScanSegments splits every scan into parallel segments.
	// Default: 1 (sequential scans)
	ScanSegments int

	// Region, Profile and Endpoint are used by Open to build the client.
	// Empty values fall back to the default AWS configuration chain.
	Region   string
	Profile  string
	Endpoint string

	// Logger receives driver logs. Default: slog.Default()
	Logger *slog.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ScanSegments: 1,
		Logger:       slog.Default(),
	}
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	c.ScanSegments = shard.Clamp(c.ScanSegments)
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
