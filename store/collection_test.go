package store_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacentio/bastion/docid"
	"github.com/jacentio/bastion/driver/memdb"
	"github.com/jacentio/bastion/hook"
	"github.com/jacentio/bastion/schema"
	"github.com/jacentio/bastion/store"
)

// spyBackend counts storage calls and can be told to fail them.
type spyBackend struct {
	store.Backend
	calls atomic.Int32
	fail  error
}

func newSpy() *spyBackend {
	return &spyBackend{Backend: memdb.New()}
}

func (s *spyBackend) Table(name string) store.Table {
	return &spyTable{Table: s.Backend.Table(name), spy: s}
}

type spyTable struct {
	store.Table
	spy *spyBackend
}

func (t *spyTable) hit() error {
	t.spy.calls.Add(1)
	return t.spy.fail
}

func (t *spyTable) InsertOne(ctx context.Context, doc schema.Document) (schema.Document, error) {
	if err := t.hit(); err != nil {
		return nil, err
	}
	return t.Table.InsertOne(ctx, doc)
}

func (t *spyTable) Find(ctx context.Context, q store.Query, order store.Sort) ([]schema.Document, error) {
	if err := t.hit(); err != nil {
		return nil, err
	}
	return t.Table.Find(ctx, q, order)
}

func (t *spyTable) FindOneAndUpdate(ctx context.Context, q store.Query, set schema.Document) (schema.Document, error) {
	if err := t.hit(); err != nil {
		return nil, err
	}
	return t.Table.FindOneAndUpdate(ctx, q, set)
}

func (t *spyTable) FindOneAndDelete(ctx context.Context, q store.Query) (schema.Document, error) {
	if err := t.hit(); err != nil {
		return nil, err
	}
	return t.Table.FindOneAndDelete(ctx, q)
}

func newCollection(t *testing.T, backend store.Backend, cfg store.Config) *store.Collection {
	t.Helper()
	if cfg.Name == "" {
		cfg.Name = "games"
	}
	return store.New(backend, cfg)
}

func TestCollection_CRUD(t *testing.T) {
	ctx := context.Background()
	games := newCollection(t, memdb.New(), store.Config{})

	inserted, err := games.Insert(ctx, schema.Document{"title": "My title"})
	require.NoError(t, err)
	id := docid.Of(inserted)
	require.False(t, docid.IsNil(id))

	game, err := games.FindByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "My title", game["title"])

	updated, err := games.UpdateByID(ctx, id, schema.Document{"title": "Other title"})
	require.NoError(t, err)
	assert.Equal(t, "Other title", updated["title"])

	game, err = games.FindByID(ctx, id.Hex())
	require.NoError(t, err)
	assert.Equal(t, "Other title", game["title"])

	_, err = games.UpdateWhere(ctx, id, store.Query{"title": "Wrong title"}, schema.Document{"title": "New title"})
	assert.ErrorIs(t, err, store.ErrNotFound)

	updated, err = games.UpdateWhere(ctx, id, store.Query{"title": "Other title"}, schema.Document{"title": "Ñor"})
	require.NoError(t, err)
	assert.Equal(t, "Ñor", updated["title"])

	removed, err := games.RemoveByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, docid.Of(removed))

	count, err := games.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestCollection_InsertModelScenario(t *testing.T) {
	ctx := context.Background()
	c := newCollection(t, memdb.New(), store.Config{
		Model: schema.Model{
			"name":    schema.String().Required(),
			"enabled": schema.Boolean().Default(true),
		},
	})

	doc, err := c.Insert(ctx, schema.Document{"name": "a"})
	require.NoError(t, err)
	assert.Equal(t, true, doc["enabled"])

	_, err = c.Insert(ctx, schema.Document{})
	assert.ErrorIs(t, err, store.ErrInvalidDocument)
	assert.Equal(t, "E_INVALID_DOCUMENT", store.KindOf(err).Code())

	_, err = c.Insert(ctx, schema.Document{"name": "a", "extra": 1})
	assert.ErrorIs(t, err, store.ErrInvalidDocument)

	count, err := c.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestCollection_InsertExplicitID(t *testing.T) {
	ctx := context.Background()
	c := newCollection(t, memdb.New(), store.Config{
		Model: schema.Model{
			"_id":  schema.Instance("ObjectID"),
			"name": schema.String().Required(),
		},
	})

	id := docid.New()
	doc, err := c.Insert(ctx, schema.Document{"_id": id, "name": "a"})
	require.NoError(t, err)
	assert.Equal(t, id, docid.Of(doc))

	got, err := c.FindByID(ctx, id.Hex())
	require.NoError(t, err)
	assert.Equal(t, "a", got["name"])

	_, err = c.Insert(ctx, schema.Document{"_id": id.Hex(), "name": "b"})
	assert.ErrorIs(t, err, store.ErrInvalidDocument)
}

func TestCollection_InsertValidatorSeesCopy(t *testing.T) {
	ctx := context.Background()
	c := newCollection(t, memdb.New(), store.Config{
		Hooks: hook.Hooks{InsertValidator: func(ctx context.Context, doc schema.Document, insert bool, id docid.ID) (schema.Document, error) {
			doc["stamped"] = true
			return doc, nil
		}},
	})

	in := schema.Document{"name": "a"}
	stored, err := c.Insert(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, true, stored["stamped"])
	assert.Equal(t, schema.Document{"name": "a"}, in)
}

type MyObject struct{}

func TestCollection_ModelRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := newCollection(t, memdb.New(), store.Config{
		Name: "model-collection",
		Model: schema.Model{
			"user":     schema.String().Required(),
			"password": schema.String().Required(),
			"age":      schema.Number(),
			"married":  schema.Boolean(),
			"enabled":  schema.Boolean().Default(true),
			"resources": schema.Object(schema.Model{
				"create": schema.Number().Required(),
				"read":   schema.Boolean(),
			}),
			"classObject": schema.Instance("MyObject"),
		},
	})

	user, err := c.Insert(ctx, schema.Document{
		"user":        "admin",
		"password":    "admin",
		"age":         10,
		"married":     true,
		"resources":   map[string]any{"create": 5, "read": false},
		"classObject": &MyObject{},
	})
	require.NoError(t, err)
	assert.Equal(t, true, user["enabled"])

	user, err = c.UpdateByID(ctx, user[docid.Field], schema.Document{"age": 14, "married": false})
	require.NoError(t, err)
	assert.Equal(t, 14, user["age"])
	assert.Equal(t, false, user["married"])

	_, err = c.UpdateByID(ctx, user[docid.Field], schema.Document{"age": "ñor"})
	assert.ErrorIs(t, err, store.ErrInvalidDocument)

	_, err = c.Insert(ctx, schema.Document{"user": "admin", "password": "admin", "resources": map[string]any{}})
	assert.ErrorIs(t, err, store.ErrInvalidDocument)

	_, err = c.Insert(ctx, schema.Document{"user": "admin", "password": "admin", "whatever": "ñor"})
	assert.ErrorIs(t, err, store.ErrInvalidDocument)
}

func TestCollection_RejectionMakesNoStoreCall(t *testing.T) {
	spy := newSpy()
	c := newCollection(t, spy, store.Config{Model: schema.Model{"name": schema.String().Required()}})

	_, err := c.Insert(context.Background(), schema.Document{})
	assert.ErrorIs(t, err, store.ErrInvalidDocument)
	assert.Zero(t, spy.calls.Load())
}

func TestCollection_InvalidIDShortCircuits(t *testing.T) {
	spy := newSpy()
	c := newCollection(t, spy, store.Config{})
	ctx := context.Background()

	_, err := c.FindByID(ctx, "not-a-valid-id")
	assert.ErrorIs(t, err, store.ErrInvalidID)
	assert.NotErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, store.KindInvalidID, store.KindOf(err))

	_, err = c.UpdateByID(ctx, "not-a-valid-id", schema.Document{"a": 1})
	assert.ErrorIs(t, err, store.ErrInvalidID)

	_, err = c.RemoveByID(ctx, 42)
	assert.ErrorIs(t, err, store.ErrInvalidID)

	assert.Zero(t, spy.calls.Load())
}

func TestCollection_NotFound(t *testing.T) {
	ctx := context.Background()
	c := newCollection(t, memdb.New(), store.Config{})
	_, err := c.Insert(ctx, schema.Document{"name": "other"})
	require.NoError(t, err)

	missing := docid.New()

	_, err = c.FindByID(ctx, missing)
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = c.UpdateByID(ctx, missing, schema.Document{"name": "ñ"})
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, "E_NOT_FOUND", store.KindOf(err).Code())

	_, err = c.RemoveByID(ctx, missing)
	assert.ErrorIs(t, err, store.ErrNotFound)

	docs, err := c.Find(ctx, nil)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "other", docs[0]["name"])
}

func TestCollection_UpdateCannotChangeID(t *testing.T) {
	ctx := context.Background()
	c := newCollection(t, memdb.New(), store.Config{})
	doc, err := c.Insert(ctx, schema.Document{"a": 1})
	require.NoError(t, err)

	_, err = c.UpdateByID(ctx, doc[docid.Field], schema.Document{docid.Field: docid.New()})
	assert.ErrorIs(t, err, store.ErrInvalidDocument)
}

func TestCollection_EmptyPatchReturnsCurrent(t *testing.T) {
	ctx := context.Background()
	c := newCollection(t, memdb.New(), store.Config{})
	doc, err := c.Insert(ctx, schema.Document{"a": 1})
	require.NoError(t, err)

	got, err := c.UpdateByID(ctx, doc[docid.Field], schema.Document{})
	require.NoError(t, err)
	assert.Equal(t, 1, got["a"])

	_, err = c.UpdateByID(ctx, docid.New(), schema.Document{})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCollection_FindOne(t *testing.T) {
	ctx := context.Background()
	c := newCollection(t, memdb.New(), store.Config{})

	doc, found, err := c.FindOne(ctx, store.Query{"name": "nobody"})
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, doc)

	_, err = c.Insert(ctx, schema.Document{"name": "somebody"})
	require.NoError(t, err)

	doc, found, err = c.FindOne(ctx, store.Query{"name": "somebody"})
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "somebody", doc["name"])
}

func TestCollection_SortOrder(t *testing.T) {
	ctx := context.Background()
	c := newCollection(t, memdb.New(), store.Config{
		Sort: store.Sort{store.Desc("rank"), store.Asc("name")},
	})

	for _, d := range []schema.Document{
		{"name": "b", "rank": 1},
		{"name": "a", "rank": 2},
		{"name": "c", "rank": 2},
		{"name": "d", "rank": 3},
	} {
		_, err := c.Insert(ctx, d)
		require.NoError(t, err)
	}

	docs, err := c.Find(ctx, nil)
	require.NoError(t, err)
	var names []string
	for _, d := range docs {
		names = append(names, d["name"].(string))
	}
	assert.Equal(t, []string{"d", "a", "c", "b"}, names)
}

func TestCollection_ReadFilter(t *testing.T) {
	ctx := context.Background()
	users := newCollection(t, memdb.New(), store.Config{
		Name: "users",
		Hooks: hook.Hooks{
			ReadFilter: func(ctx context.Context, doc schema.Document) (schema.Document, error) {
				delete(doc, "password")
				return doc, nil
			},
		},
	})

	user, err := users.Insert(ctx, schema.Document{"name": "admin", "password": "ñor"})
	require.NoError(t, err)
	assert.Equal(t, "admin", user["name"])
	assert.NotContains(t, user, "password")
	id := user[docid.Field]

	user, err = users.FindByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "admin", user["name"])
	assert.NotContains(t, user, "password")

	user, err = users.UpdateByID(ctx, id, schema.Document{"name": "admin2"})
	require.NoError(t, err)
	assert.Equal(t, "admin2", user["name"])
	assert.NotContains(t, user, "password")

	all, err := users.Find(ctx, nil)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.NotContains(t, all[0], "password")

	user, err = users.RemoveByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "admin2", user["name"])
	assert.NotContains(t, user, "password")
}

func TestCollection_ReadFilterFailureFailsRead(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("filter exploded")
	backend := memdb.New()

	plain := newCollection(t, backend, store.Config{})
	for i := 0; i < 3; i++ {
		_, err := plain.Insert(ctx, schema.Document{"n": i})
		require.NoError(t, err)
	}

	filtered := newCollection(t, backend, store.Config{
		Hooks: hook.Hooks{
			ReadFilter: func(ctx context.Context, doc schema.Document) (schema.Document, error) {
				if doc["n"] == 1 {
					return nil, boom
				}
				return doc, nil
			},
		},
	})

	docs, err := filtered.Find(ctx, nil)
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, docs)
	assert.Equal(t, store.KindHook, store.KindOf(err))
}

func TestCollection_Validators(t *testing.T) {
	ctx := context.Background()
	var users *store.Collection
	users = newCollection(t, memdb.New(), store.Config{
		Name: "users",
		Hooks: hook.Hooks{
			InsertValidator: func(ctx context.Context, user schema.Document, insert bool, id docid.ID) (schema.Document, error) {
				if user["name"] == nil || user["password"] == nil {
					return nil, nil
				}
				_, taken, err := users.FindOne(ctx, store.Query{"name": user["name"]})
				if err != nil || taken {
					return nil, err
				}
				return user, nil
			},
			UpdateValidator: func(ctx context.Context, user schema.Document, insert bool, id docid.ID) (schema.Document, error) {
				for key := range user {
					if key != "password" {
						return nil, nil
					}
				}
				return user, nil
			},
		},
	})

	_, err := users.Insert(ctx, schema.Document{"name": "admin"})
	assert.ErrorIs(t, err, store.ErrInvalidDocument)

	user, err := users.Insert(ctx, schema.Document{"name": "admin", "password": "ñor"})
	require.NoError(t, err)
	id := user[docid.Field]

	_, err = users.Insert(ctx, schema.Document{"name": "admin", "password": "again"})
	assert.ErrorIs(t, err, store.ErrInvalidDocument, "name must be unique")

	_, err = users.UpdateByID(ctx, id, schema.Document{"name": "admin2"})
	assert.ErrorIs(t, err, store.ErrInvalidDocument)

	user, err = users.UpdateByID(ctx, id, schema.Document{"password": "do"})
	require.NoError(t, err)
	assert.Equal(t, "do", user["password"])
}

func TestCollection_PreRemoveOrder(t *testing.T) {
	ctx := context.Background()
	var log []string
	record := func(name string) hook.PreRemove {
		return func(ctx context.Context, id docid.ID) error {
			log = append(log, name)
			return nil
		}
	}

	c := newCollection(t, memdb.New(), store.Config{
		Hooks: hook.Hooks{PreRemove: []hook.PreRemove{record("A"), record("B"), record("C")}},
	})
	doc, err := c.Insert(ctx, schema.Document{})
	require.NoError(t, err)

	_, err = c.RemoveByID(ctx, doc[docid.Field])
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, log)
}

func TestCollection_PreRemoveSeesID(t *testing.T) {
	ctx := context.Background()
	var seen docid.ID
	c := newCollection(t, memdb.New(), store.Config{
		Hooks: hook.Hooks{PreRemove: []hook.PreRemove{func(ctx context.Context, id docid.ID) error {
			seen = id
			return nil
		}}},
	})
	doc, err := c.Insert(ctx, schema.Document{})
	require.NoError(t, err)

	_, err = c.RemoveByID(ctx, docid.Of(doc).Hex())
	require.NoError(t, err)
	assert.Equal(t, docid.Of(doc), seen)
}

func TestCollection_PreRemoveFailureKeepsDocument(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("cleanup failed")
	c := newCollection(t, memdb.New(), store.Config{
		Hooks: hook.Hooks{PreRemove: []hook.PreRemove{func(ctx context.Context, id docid.ID) error {
			return boom
		}}},
	})
	doc, err := c.Insert(ctx, schema.Document{"keep": true})
	require.NoError(t, err)

	_, err = c.RemoveByID(ctx, doc[docid.Field])
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, store.KindHook, store.KindOf(err))

	_, err = c.FindByID(ctx, doc[docid.Field])
	assert.NoError(t, err, "document must survive a failed pre-remove")
}

func TestCollection_RemoveAll(t *testing.T) {
	ctx := context.Background()
	var mu sync.Mutex
	pending := 0
	games := newCollection(t, memdb.New(), store.Config{
		Hooks: hook.Hooks{PreRemove: []hook.PreRemove{func(ctx context.Context, id docid.ID) error {
			mu.Lock()
			pending--
			mu.Unlock()
			return nil
		}}},
	})

	for i := 0; i < 3; i++ {
		_, err := games.Insert(ctx, schema.Document{})
		require.NoError(t, err)
		pending++
	}

	removed, err := games.Remove(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, removed, 3)
	assert.Zero(t, pending)

	count, err := games.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestCollection_RemoveByQuery(t *testing.T) {
	ctx := context.Background()
	c := newCollection(t, memdb.New(), store.Config{})
	for _, team := range []string{"red", "blue", "red", "green", "red"} {
		_, err := c.Insert(ctx, schema.Document{"team": team})
		require.NoError(t, err)
	}

	removed, err := c.Remove(ctx, store.Query{"team": "red"})
	require.NoError(t, err)
	assert.Len(t, removed, 3, "every match is removed, not just the first")

	left, err := c.Find(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, left, 2)
	for _, d := range left {
		assert.NotEqual(t, "red", d["team"])
	}
}

func TestCollection_RemovePartialFailure(t *testing.T) {
	ctx := context.Background()
	backend := memdb.New()
	plain := newCollection(t, backend, store.Config{})

	var ids []docid.ID
	for i := 0; i < 5; i++ {
		doc, err := plain.Insert(ctx, schema.Document{"n": i})
		require.NoError(t, err)
		ids = append(ids, docid.Of(doc))
	}
	blocked := ids[2]
	boom := errors.New("still referenced")

	hooked := newCollection(t, backend, store.Config{
		Hooks: hook.Hooks{PreRemove: []hook.PreRemove{func(ctx context.Context, id docid.ID) error {
			if id == blocked {
				return boom
			}
			return nil
		}}},
	})

	removed, err := hooked.Remove(ctx, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), blocked.Hex())
	assert.Len(t, removed, 4)

	left, err := plain.Find(ctx, nil)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, blocked, docid.Of(left[0]))
}

func TestCollection_RemoveRunsConcurrently(t *testing.T) {
	ctx := context.Background()
	const n = 4
	var started sync.WaitGroup
	started.Add(n)
	release := make(chan struct{})

	c := newCollection(t, memdb.New(), store.Config{
		Hooks: hook.Hooks{PreRemove: []hook.PreRemove{func(ctx context.Context, id docid.ID) error {
			started.Done()
			<-release
			return nil
		}}},
	})
	for i := 0; i < n; i++ {
		_, err := c.Insert(ctx, schema.Document{"n": i})
		require.NoError(t, err)
	}

	go func() {
		// Every removal must be in flight at once before any is released.
		started.Wait()
		close(release)
	}()

	done := make(chan error, 1)
	go func() {
		_, err := c.Remove(ctx, nil)
		done <- err
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("bulk remove did not run removals concurrently")
	}
}

func TestCollection_RemoveBoundedConcurrency(t *testing.T) {
	ctx := context.Background()
	var active, peak atomic.Int32
	c := newCollection(t, memdb.New(), store.Config{
		MaxConcurrentRemoves: 2,
		Hooks: hook.Hooks{PreRemove: []hook.PreRemove{func(ctx context.Context, id docid.ID) error {
			now := active.Add(1)
			for {
				old := peak.Load()
				if now <= old || peak.CompareAndSwap(old, now) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			active.Add(-1)
			return nil
		}}},
	})
	for i := 0; i < 8; i++ {
		_, err := c.Insert(ctx, schema.Document{"n": i})
		require.NoError(t, err)
	}

	removed, err := c.Remove(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, removed, 8)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

// warnSignal reports every warning record on a channel.
type warnSignal chan struct{}

func (w warnSignal) Enabled(context.Context, slog.Level) bool { return true }

func (w warnSignal) Handle(_ context.Context, r slog.Record) error {
	if r.Level == slog.LevelWarn {
		w <- struct{}{}
	}
	return nil
}

func (w warnSignal) WithAttrs([]slog.Attr) slog.Handler { return w }
func (w warnSignal) WithGroup(string) slog.Handler      { return w }

func TestCollection_RemoveWaitersHonourCancellation(t *testing.T) {
	const n = 4
	warned := make(warnSignal, n)
	holding := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := newCollection(t, memdb.New(), store.Config{
		MaxConcurrentRemoves: 1,
		Logger:               slog.New(warned),
		Hooks: hook.Hooks{PreRemove: []hook.PreRemove{func(hctx context.Context, id docid.ID) error {
			close(holding)
			<-hctx.Done()
			// Keep the only slot until every other removal has given up.
			for i := 0; i < n-1; i++ {
				select {
				case <-warned:
				case <-time.After(5 * time.Second):
					return errors.New("queued removals kept waiting")
				}
			}
			return hctx.Err()
		}}},
	})
	for i := 0; i < n; i++ {
		_, err := c.Insert(context.Background(), schema.Document{"n": i})
		require.NoError(t, err)
	}

	go func() {
		<-holding
		cancel()
	}()

	removed, err := c.Remove(ctx, nil)
	assert.Empty(t, removed)
	require.ErrorIs(t, err, context.Canceled)
	assert.NotContains(t, err.Error(), "queued removals kept waiting")

	count, err := c.Count(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, n, count)
}

func TestCollection_RemoveNoMatches(t *testing.T) {
	c := newCollection(t, memdb.New(), store.Config{})
	removed, err := c.Remove(context.Background(), store.Query{"x": 1})
	assert.NoError(t, err)
	assert.Empty(t, removed)
}

func TestCollection_StoreErrorsPassThrough(t *testing.T) {
	ctx := context.Background()
	spy := newSpy()
	spy.fail = errors.New("connection reset")
	c := newCollection(t, spy, store.Config{})

	_, err := c.Insert(ctx, schema.Document{"a": 1})
	assert.Same(t, spy.fail, err)
	assert.Equal(t, store.KindStore, store.KindOf(err))

	_, err = c.Find(ctx, nil)
	assert.Same(t, spy.fail, err)

	_, err = c.UpdateByID(ctx, docid.New(), schema.Document{"a": 2})
	assert.Same(t, spy.fail, err)

	_, err = c.RemoveByID(ctx, docid.New())
	assert.Same(t, spy.fail, err)
}

func TestExists(t *testing.T) {
	ctx := context.Background()
	backend := memdb.New()

	exists, err := store.Exists(ctx, backend, "ñor")
	require.NoError(t, err)
	assert.False(t, exists)

	c := newCollection(t, backend, store.Config{Name: "totally_exists"})
	_, err = c.Insert(ctx, schema.Document{})
	require.NoError(t, err)

	exists, err = store.Exists(ctx, backend, "totally_exists")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want store.Kind
	}{
		{nil, store.KindNone},
		{store.ErrInvalidDocument, store.KindInvalidDocument},
		{fmt.Errorf("wrapped: %w", store.ErrInvalidID), store.KindInvalidID},
		{store.ErrNotFound, store.KindNotFound},
		{&hook.Error{Stage: hook.StagePreRemove, Err: errors.New("x")}, store.KindHook},
		{errors.New("socket closed"), store.KindStore},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, store.KindOf(tt.err), "%v", tt.err)
	}
	assert.Equal(t, "", store.KindNone.Code())
	assert.Equal(t, "E_INVALID_ID", store.KindInvalidID.Code())
}
