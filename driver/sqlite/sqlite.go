// Package sqlite stores collections in a SQLite database file using the
// pure-Go modernc.org/sqlite driver.
//
// Each collection is a table of JSON bodies keyed by the hex identifier.
// Filters and sort orders are evaluated in memory after narrowing by
// identifier, so the backend suits embedded and single-node use.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/jacentio/bastion/docid"
	"github.com/jacentio/bastion/internal/query"
	"github.com/jacentio/bastion/schema"
	"github.com/jacentio/bastion/store"
)

var (
	// ErrDuplicateID is returned when inserting a document whose identifier
	// is already taken.
	ErrDuplicateID = errors.New("sqlite: duplicate _id")

	// ErrInvalidName is returned for collection names that cannot be used as
	// table names.
	ErrInvalidName = errors.New("sqlite: invalid collection name")
)

var validName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]*$`)

// Config holds configuration for a SQLite backend.
type Config struct {
	// Path is the database file. Default: ":memory:"
	Path string

	// BusyTimeoutMS is how long a writer waits for a lock.
	// Default: 5000
	BusyTimeoutMS int

	// Logger receives driver logs. Default: slog.Default()
	Logger *slog.Logger
}

// DefaultConfig returns a Config for an in-memory database.
func DefaultConfig() Config {
	return Config{
		Path:          ":memory:",
		BusyTimeoutMS: 5000,
		Logger:        slog.Default(),
	}
}

// validate fills in defaults for unset values.
func (c *Config) validate() {
	if c.Path == "" {
		c.Path = ":memory:"
	}
	if c.BusyTimeoutMS <= 0 {
		c.BusyTimeoutMS = 5000
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// DB is a SQLite-backed store.Backend.
type DB struct {
	db     *sql.DB
	logger *slog.Logger

	mu    sync.Mutex
	known map[string]bool
}

// Open opens (creating if needed) the database described by config.
func Open(ctx context.Context, config Config) (*DB, error) {
	config.validate()

	dsn := config.Path
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	dsn += fmt.Sprintf("%s_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)", sep, config.BusyTimeoutMS)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// A single connection keeps :memory: databases shared and serializes
	// writers.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}

	return &DB{
		db:     db,
		logger: config.Logger.With("driver", "sqlite"),
		known:  make(map[string]bool),
	}, nil
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Table returns the handle of the named collection.
func (d *DB) Table(name string) store.Table {
	return &table{db: d, name: name}
}

// ListCollections returns the existing collections called name.
func (d *DB) ListCollections(ctx context.Context, name string) ([]string, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// ensure reports whether the collection table exists, creating it first
// when create is set.
func (d *DB) ensure(ctx context.Context, name string, create bool) (bool, error) {
	if !validName.MatchString(name) || strings.HasPrefix(strings.ToLower(name), "sqlite_") {
		return false, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.known[name] {
		return true, nil
	}

	names, err := d.ListCollections(ctx, name)
	if err != nil {
		return false, err
	}
	if len(names) == 0 {
		if !create {
			return false, nil
		}
		stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			seq  INTEGER PRIMARY KEY AUTOINCREMENT,
			id   TEXT NOT NULL UNIQUE,
			body TEXT NOT NULL
		)`, quote(name))
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return false, fmt.Errorf("sqlite: create table %s: %w", name, err)
		}
		d.logger.Debug("table created", "table", name)
	}
	d.known[name] = true
	return true, nil
}

func quote(name string) string {
	return `"` + name + `"`
}

type table struct {
	db   *DB
	name string
}

type row struct {
	seq int64
	doc schema.Document
}

func (t *table) InsertOne(ctx context.Context, doc schema.Document) (schema.Document, error) {
	if _, err := t.db.ensure(ctx, t.name, true); err != nil {
		return nil, err
	}

	stored := schema.Clone(doc)
	if stored == nil {
		stored = schema.Document{}
	}
	id := docid.New()
	if raw, ok := stored[docid.Field]; ok {
		id = docid.Normalize(raw)
		if docid.IsNil(id) {
			return nil, fmt.Errorf("sqlite: invalid _id %v", raw)
		}
	}
	stored[docid.Field] = id

	body, err := encode(stored)
	if err != nil {
		return nil, err
	}
	_, err = t.db.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, body) VALUES (?, ?)`, quote(t.name)), id.Hex(), body)
	if err != nil {
		var serr *msqlite.Error
		if errors.As(err, &serr) && serr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
			return nil, ErrDuplicateID
		}
		return nil, err
	}
	return stored, nil
}

func (t *table) Find(ctx context.Context, filter store.Query, order store.Sort) ([]schema.Document, error) {
	ok, err := t.db.ensure(ctx, t.name, false)
	if err != nil || !ok {
		return nil, err
	}

	rows, err := t.match(ctx, t.db.db, filter)
	if err != nil {
		return nil, err
	}
	docs := make([]schema.Document, len(rows))
	for i, r := range rows {
		docs[i] = r.doc
	}
	query.Sort(docs, order)
	return docs, nil
}

func (t *table) FindOneAndUpdate(ctx context.Context, filter store.Query, set schema.Document) (schema.Document, error) {
	return t.modifyFirst(ctx, filter, func(tx *sql.Tx, r row) (schema.Document, error) {
		for k, v := range schema.Clone(set) {
			if k != docid.Field {
				r.doc[k] = v
			}
		}
		body, err := encode(r.doc)
		if err != nil {
			return nil, err
		}
		_, err = tx.ExecContext(ctx,
			fmt.Sprintf(`UPDATE %s SET body = ? WHERE seq = ?`, quote(t.name)), body, r.seq)
		return r.doc, err
	})
}

func (t *table) FindOneAndDelete(ctx context.Context, filter store.Query) (schema.Document, error) {
	return t.modifyFirst(ctx, filter, func(tx *sql.Tx, r row) (schema.Document, error) {
		_, err := tx.ExecContext(ctx,
			fmt.Sprintf(`DELETE FROM %s WHERE seq = ?`, quote(t.name)), r.seq)
		return r.doc, err
	})
}

func (t *table) Count(ctx context.Context) (int64, error) {
	ok, err := t.db.ensure(ctx, t.name, false)
	if err != nil || !ok {
		return 0, err
	}
	var n int64
	err = t.db.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, quote(t.name))).Scan(&n)
	return n, err
}

// modifyFirst applies fn to the first row matching filter inside a
// transaction. It returns nil when nothing matches.
func (t *table) modifyFirst(ctx context.Context, filter store.Query, fn func(*sql.Tx, row) (schema.Document, error)) (schema.Document, error) {
	ok, err := t.db.ensure(ctx, t.name, false)
	if err != nil || !ok {
		return nil, err
	}

	tx, err := t.db.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rows, err := t.match(ctx, tx, filter)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	doc, err := fn(tx, rows[0])
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return doc, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// match loads the rows matching filter in insertion order.
func (t *table) match(ctx context.Context, q querier, filter store.Query) ([]row, error) {
	stmt := fmt.Sprintf(`SELECT seq, id, body FROM %s`, quote(t.name))
	var args []any
	if raw, ok := filter[docid.Field]; ok {
		id := docid.Normalize(raw)
		if docid.IsNil(id) {
			return nil, nil
		}
		stmt += ` WHERE id = ?`
		args = append(args, id.Hex())
	}
	stmt += ` ORDER BY seq`

	rs, err := q.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rs.Close()

	var out []row
	for rs.Next() {
		var (
			r    row
			id   string
			body []byte
		)
		if err := rs.Scan(&r.seq, &id, &body); err != nil {
			return nil, err
		}
		r.doc, err = decode(id, body)
		if err != nil {
			return nil, err
		}
		if query.Match(r.doc, filter) {
			out = append(out, r)
		}
	}
	return out, rs.Err()
}

// encode serializes doc without its identifier, which lives in its own column.
func encode(doc schema.Document) ([]byte, error) {
	body := make(map[string]any, len(doc))
	for k, v := range doc {
		if k != docid.Field {
			body[k] = v
		}
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("sqlite: encode: %w", err)
	}
	return data, nil
}

func decode(id string, body []byte) (schema.Document, error) {
	doc := schema.Document{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("sqlite: decode %s: %w", id, err)
	}
	doc[docid.Field] = docid.Normalize(id)
	return doc, nil
}
