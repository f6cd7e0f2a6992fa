package cursor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dirlistener/dirlistener/pkg/cache"
	"github.com/dirlistener/dirlistener/pkg/entry"
	"github.com/dirlistener/dirlistener/pkg/handler"
)

type memStore struct {
	entries map[entry.DN]*entry.Entry
	cursor  *cache.Cursor
}

func newMemStore() *memStore {
	return &memStore{entries: make(map[entry.DN]*entry.Entry)}
}

func (s *memStore) Get(ctx context.Context, dn entry.DN) (*entry.Entry, error) {
	e, ok := s.entries[dn]
	if !ok {
		return nil, cache.ErrNotFound
	}
	return e, nil
}

func (s *memStore) Put(ctx context.Context, e *entry.Entry) error {
	s.entries[e.DN] = e
	return nil
}

func (s *memStore) Delete(ctx context.Context, dn entry.DN) error {
	delete(s.entries, dn)
	return nil
}

func (s *memStore) Walk(ctx context.Context, fn func(*entry.Entry) error) error {
	for _, e := range s.entries {
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

func (s *memStore) Count(ctx context.Context) (int, error) {
	return len(s.entries), nil
}

func (s *memStore) Cursor(ctx context.Context) (cache.Cursor, error) {
	if s.cursor == nil {
		return cache.Cursor{}, cache.ErrNotFound
	}
	return *s.cursor, nil
}

func (s *memStore) PutCursor(ctx context.Context, c cache.Cursor) error {
	cp := c
	s.cursor = &cp
	return nil
}

func (s *memStore) Close() error { return nil }

func testModules() []*handler.Module {
	return []*handler.Module{
		{Manifest: handler.Manifest{Name: "replication", Description: "repl"}},
		{Manifest: handler.Manifest{Name: "sync", Description: "sync things", Priority: 5}},
	}
}

func TestLoadFreshCache(t *testing.T) {
	m := New(newMemStore())
	r, err := m.Load(context.Background(), "notifier-1", "schema-1", testModules())
	require.NoError(t, err)
	require.True(t, r.Fresh)
	require.True(t, r.NeedsResync())
}

func TestAdvanceThenLoadMatches(t *testing.T) {
	store := newMemStore()
	m := New(store)
	mods := testModules()

	require.NoError(t, m.Advance(context.Background(), "notifier-1", 42, "schema-1", mods))

	r, err := m.Load(context.Background(), "notifier-1", "schema-1", mods)
	require.NoError(t, err)
	require.False(t, r.Fresh)
	require.False(t, r.NotifierChanged)
	require.False(t, r.SchemaChanged)
	require.False(t, r.ModuleSetChanged)
	require.False(t, r.NeedsResync())
	require.Equal(t, uint64(43), r.NextID)
}

func TestLoadDetectsNotifierAndSchemaChange(t *testing.T) {
	store := newMemStore()
	m := New(store)
	mods := testModules()
	require.NoError(t, m.Advance(context.Background(), "notifier-1", 10, "schema-1", mods))

	r, err := m.Load(context.Background(), "notifier-2", "schema-2", mods)
	require.NoError(t, err)
	require.True(t, r.NotifierChanged)
	require.True(t, r.SchemaChanged)
	require.True(t, r.NeedsResync())
}

func TestLoadDetectsModuleSetChange(t *testing.T) {
	store := newMemStore()
	m := New(store)
	mods := testModules()
	require.NoError(t, m.Advance(context.Background(), "notifier-1", 10, "schema-1", mods))

	changed := append([]*handler.Module{}, mods...)
	changed = append(changed, &handler.Module{Manifest: handler.Manifest{Name: "extra", Description: "new handler"}})

	r, err := m.Load(context.Background(), "notifier-1", "schema-1", changed)
	require.NoError(t, err)
	require.True(t, r.ModuleSetChanged)
	require.True(t, r.NeedsResync())
}

func TestComputeModuleSetHashOrderIndependent(t *testing.T) {
	a := testModules()
	b := []*handler.Module{a[1], a[0]}
	require.Equal(t, ComputeModuleSetHash(a), ComputeModuleSetHash(b))
}

func TestComputeModuleSetHashSensitiveToManifestChange(t *testing.T) {
	a := testModules()
	b := testModules()
	b[1].Priority = 99
	require.NotEqual(t, ComputeModuleSetHash(a), ComputeModuleSetHash(b))
}
