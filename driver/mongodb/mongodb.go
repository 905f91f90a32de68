// Package mongodb stores collections in a MongoDB database. Filters, sort
// orders and the find-and-modify operations map directly onto the server.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/jacentio/bastion/docid"
	"github.com/jacentio/bastion/schema"
	"github.com/jacentio/bastion/store"
)

// Config holds configuration for a MongoDB backend.
type Config struct {
	// URI is the connection string. Default: "mongodb://localhost:27017"
	URI string

	// Database holds the collections. Default: "bastion"
	Database string

	// ConnectTimeout bounds Open. Default: 10s
	ConnectTimeout time.Duration

	// Logger receives driver logs. Default: slog.Default()
	Logger *slog.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		URI:            "mongodb://localhost:27017",
		Database:       "bastion",
		ConnectTimeout: 10 * time.Second,
		Logger:         slog.Default(),
	}
}

// validate fills in defaults for unset values.
func (c *Config) validate() {
	def := DefaultConfig()
	if c.URI == "" {
		c.URI = def.URI
	}
	if c.Database == "" {
		c.Database = def.Database
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.Logger == nil {
		c.Logger = def.Logger
	}
}

// DB is a MongoDB-backed store.Backend.
type DB struct {
	client *mongo.Client
	db     *mongo.Database
	logger *slog.Logger
}

// Open connects to the server described by config and verifies the
// connection.
func Open(ctx context.Context, config Config) (*DB, error) {
	config.validate()
	client, err := mongo.Connect(options.Client().ApplyURI(config.URI))
	if err != nil {
		return nil, fmt.Errorf("mongodb: connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, config.ConnectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongodb: ping: %w", err)
	}

	d := New(client.Database(config.Database), config)
	d.client = client
	d.logger.Debug("connected", "database", config.Database)
	return d, nil
}

// New creates a DB over an existing database handle. Close is a no-op for a
// DB created this way.
func New(db *mongo.Database, config Config) *DB {
	config.validate()
	return &DB{
		db:     db,
		logger: config.Logger.With("driver", "mongodb"),
	}
}

// Close disconnects a DB created by Open.
func (d *DB) Close(ctx context.Context) error {
	if d.client == nil {
		return nil
	}
	return d.client.Disconnect(ctx)
}

// Table returns the handle of the named collection.
func (d *DB) Table(name string) store.Table {
	return &table{coll: d.db.Collection(name)}
}

// ListCollections returns the existing collections called name.
func (d *DB) ListCollections(ctx context.Context, name string) ([]string, error) {
	return d.db.ListCollectionNames(ctx, bson.D{{Key: "name", Value: name}})
}

type table struct {
	coll *mongo.Collection
}

func (t *table) InsertOne(ctx context.Context, doc schema.Document) (schema.Document, error) {
	stored := schema.Clone(doc)
	if stored == nil {
		stored = schema.Document{}
	}
	if raw, ok := stored[docid.Field]; ok {
		id := docid.Normalize(raw)
		if docid.IsNil(id) {
			return nil, fmt.Errorf("mongodb: invalid _id %v", raw)
		}
		stored[docid.Field] = id
	} else {
		stored[docid.Field] = docid.New()
	}

	if _, err := t.coll.InsertOne(ctx, bson.M(stored)); err != nil {
		return nil, err
	}
	return stored, nil
}

func (t *table) Find(ctx context.Context, q store.Query, order store.Sort) ([]schema.Document, error) {
	filter, ok := toFilter(q)
	if !ok {
		return nil, nil
	}

	opts := options.Find()
	if len(order) > 0 {
		opts.SetSort(toSort(order))
	}
	cursor, err := t.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}

	var raw []bson.M
	if err := cursor.All(ctx, &raw); err != nil {
		return nil, err
	}
	docs := make([]schema.Document, len(raw))
	for i, m := range raw {
		docs[i] = toDocument(m)
	}
	return docs, nil
}

func (t *table) FindOneAndUpdate(ctx context.Context, q store.Query, set schema.Document) (schema.Document, error) {
	filter, ok := toFilter(q)
	if !ok {
		return nil, nil
	}
	if len(set) == 0 {
		return decodeOne(t.coll.FindOne(ctx, filter))
	}

	update := bson.M{"$set": bson.M(set)}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	return decodeOne(t.coll.FindOneAndUpdate(ctx, filter, update, opts))
}

func (t *table) FindOneAndDelete(ctx context.Context, q store.Query) (schema.Document, error) {
	filter, ok := toFilter(q)
	if !ok {
		return nil, nil
	}
	return decodeOne(t.coll.FindOneAndDelete(ctx, filter))
}

func (t *table) Count(ctx context.Context) (int64, error) {
	return t.coll.CountDocuments(ctx, bson.D{})
}

func decodeOne(res *mongo.SingleResult) (schema.Document, error) {
	var m bson.M
	if err := res.Decode(&m); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return toDocument(m), nil
}

// toFilter converts q into a server filter. ok is false when q cannot match
// anything.
func toFilter(q store.Query) (bson.M, bool) {
	filter := make(bson.M, len(q))
	for field, v := range q {
		if field == docid.Field {
			id := docid.Normalize(v)
			if docid.IsNil(id) {
				return nil, false
			}
			v = id
		}
		filter[field] = v
	}
	return filter, true
}

func toSort(order store.Sort) bson.D {
	sort := make(bson.D, 0, len(order))
	for _, key := range order {
		dir := 1
		if key.Desc {
			dir = -1
		}
		sort = append(sort, bson.E{Key: key.Field, Value: dir})
	}
	return sort
}

// toDocument converts a decoded BSON document into plain maps and slices.
func toDocument(m bson.M) schema.Document {
	doc := make(schema.Document, len(m))
	for k, v := range m {
		doc[k] = plain(v)
	}
	return doc
}

func plain(v any) any {
	switch t := v.(type) {
	case bson.M:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = plain(e)
		}
		return out
	case bson.D:
		out := make(map[string]any, len(t))
		for _, e := range t {
			out[e.Key] = plain(e.Value)
		}
		return out
	case bson.A:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = plain(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = plain(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = plain(e)
		}
		return out
	}
	return v
}
