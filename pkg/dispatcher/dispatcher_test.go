package dispatcher

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dirlistener/dirlistener/pkg/cache"
	"github.com/dirlistener/dirlistener/pkg/cursor"
	"github.com/dirlistener/dirlistener/pkg/directory"
	"github.com/dirlistener/dirlistener/pkg/entry"
	"github.com/dirlistener/dirlistener/pkg/handler"
	"github.com/dirlistener/dirlistener/pkg/notifier"
	"github.com/dirlistener/dirlistener/pkg/txlog"
)

// --- fakes -----------------------------------------------------------

type fakeNotifier struct {
	nextResults map[uint64]notifier.NextIDResult
	schemaID    uint64
}

func (f *fakeNotifier) GetNextID(ctx context.Context, afterID uint64) (notifier.NextIDResult, error) {
	r, ok := f.nextResults[afterID]
	if !ok {
		return notifier.NextIDResult{ID: afterID}, nil // "already processed"
	}
	return r, nil
}

func (f *fakeNotifier) Alive(ctx context.Context) error       { return nil }
func (f *fakeNotifier) GetSchemaID(ctx context.Context) (uint64, error) { return f.schemaID, nil }
func (f *fakeNotifier) Close() error                          { return nil }

type fakeDirectory struct {
	entries map[entry.DN]*entry.Entry
	changes map[uint64]struct {
		dn  entry.DN
		cmd txlog.Command
	}
}

func (f *fakeDirectory) Read(ctx context.Context, dn entry.DN) (*entry.Entry, error) {
	e, ok := f.entries[dn]
	if !ok {
		return nil, directory.ErrNotFound
	}
	return e, nil
}

func (f *fakeDirectory) ReadChange(ctx context.Context, id uint64) (entry.DN, txlog.Command, error) {
	c, ok := f.changes[id]
	if !ok {
		return "", "", directory.ErrNotFound
	}
	return c.dn, c.cmd, nil
}

func (f *fakeDirectory) Open(ctx context.Context) error { return nil }
func (f *fakeDirectory) Close() error                    { return nil }

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
	s.entries[e.DN] = e.Clone()
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

func (s *memStore) Count(ctx context.Context) (int, error) { return len(s.entries), nil }

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

type fakeHandler struct {
	fail    bool
	invoked []entry.DN
}

func (h *fakeHandler) Handle(ctx context.Context, dn entry.DN, newEntry, oldEntry *entry.Entry, command string) error {
	h.invoked = append(h.invoked, dn)
	if h.fail {
		return errHandlerFailed
	}
	return nil
}

var errHandlerFailed = errors.New("handler failed")

// newTestDispatcher wires a Dispatcher over in-memory fakes.
func newTestDispatcher(t *testing.T, n *fakeNotifier, d *fakeDirectory, store *memStore, mods []*handler.Module) *Dispatcher {
	t.Helper()
	rt := handler.NewRuntime(mods, mustStateStore(t), handler.RuntimeOptions{})
	return New(Config{NotifierStreamID: "notifier-1"}, n, d, store, nil, rt)
}

func mustStateStore(t *testing.T) *handler.StateStore {
	t.Helper()
	s, err := handler.OpenStateStore(t.TempDir())
	require.NoError(t, err)
	return s
}

func dn(s string) entry.DN { return entry.NormalizeDN(s) }

func cursorModuleSetHashFor(t *testing.T, disp *Dispatcher) string {
	t.Helper()
	return cursor.ComputeModuleSetHash(disp.Runtime.Modules())
}

// --- tests -------------------------------------------------------------

func TestProcessColdStartAdd(t *testing.T) {
	repl := &fakeHandler{}
	homeDir := &fakeHandler{}
	mods := []*handler.Module{
		{Manifest: handler.Manifest{Name: "replication"}, Impl: repl},
		{Manifest: handler.Manifest{Name: "home-dir", Priority: 10, Filter: "(uid=*)", Attributes: []string{"uid"}}, Impl: homeDir},
	}

	store := newMemStore()
	alice := dn("cn=alice,ou=p")
	require.NoError(t, store.PutCursor(context.Background(), cache.Cursor{NotifierID: "notifier-1", ChangeNumber: 42}))
	n := &fakeNotifier{nextResults: map[uint64]notifier.NextIDResult{
		42: {ID: 43, DN: alice, Command: "a", HasMeta: true},
	}}
	directoryEntry := entry.New(alice)
	directoryEntry.SetAttribute("sn", [][]byte{[]byte("Doe")})
	directoryEntry.SetAttribute("uid", [][]byte{[]byte("alice")})
	d := &fakeDirectory{entries: map[entry.DN]*entry.Entry{alice: directoryEntry}}

	disp := newTestDispatcher(t, n, d, store, mods)
	processed, err := disp.Tick(context.Background())
	require.NoError(t, err)
	require.True(t, processed)

	require.Len(t, repl.invoked, 1)
	require.Len(t, homeDir.invoked, 1)

	cached, err := store.Get(context.Background(), alice)
	require.NoError(t, err)
	require.True(t, cached.HasPresent("replication"))
	require.True(t, cached.HasPresent("home-dir"))

	cur, err := store.Cursor(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(43), cur.ChangeNumber)
}

func TestProcessModifyShortCircuitsUnaffectedHandler(t *testing.T) {
	repl := &fakeHandler{}
	homeDir := &fakeHandler{}
	mods := []*handler.Module{
		{Manifest: handler.Manifest{Name: "replication"}, Impl: repl},
		{Manifest: handler.Manifest{Name: "home-dir", Priority: 10, Filter: "(uid=*)", Attributes: []string{"uid"}}, Impl: homeDir},
	}

	store := newMemStore()
	alice := dn("cn=alice,ou=p")
	existing := entry.New(alice)
	existing.SetAttribute("uid", [][]byte{[]byte("alice")})
	existing.MarkPresent("replication")
	existing.MarkPresent("home-dir")
	require.NoError(t, store.Put(context.Background(), existing))
	require.NoError(t, store.PutCursor(context.Background(), cache.Cursor{NotifierID: "notifier-1", ChangeNumber: 43}))

	n := &fakeNotifier{nextResults: map[uint64]notifier.NextIDResult{
		43: {ID: 44, DN: alice, Command: "m", HasMeta: true},
	}}
	updated := entry.New(alice)
	updated.SetAttribute("uid", [][]byte{[]byte("alice")})
	updated.SetAttribute("description", [][]byte{[]byte("x")})
	d := &fakeDirectory{entries: map[entry.DN]*entry.Entry{alice: updated}}

	disp := newTestDispatcher(t, n, d, store, mods)
	processed, err := disp.Tick(context.Background())
	require.NoError(t, err)
	require.True(t, processed)

	require.Len(t, repl.invoked, 1, "replication is exempt from short-circuit")
	require.Empty(t, homeDir.invoked, "home-dir's attribute did not change")

	cached, err := store.Get(context.Background(), alice)
	require.NoError(t, err)
	require.True(t, cached.HasPresent("home-dir"))
	require.Equal(t, "x", string(cached.Attribute("description").Values[0]))
}

func TestProcessDeleteInvokesPresentAndHandleEveryDelete(t *testing.T) {
	repl := &fakeHandler{}
	ldapSync := &fakeHandler{}
	mailRewrite := &fakeHandler{}
	mods := []*handler.Module{
		{Manifest: handler.Manifest{Name: "replication"}, Impl: repl},
		{Manifest: handler.Manifest{Name: "ldap-sync"}, Impl: ldapSync},
		{Manifest: handler.Manifest{Name: "mail-rewrite", HandleEveryDelete: true}, Impl: mailRewrite},
	}

	store := newMemStore()
	bob := dn("cn=bob")
	existing := entry.New(bob)
	existing.MarkPresent("replication")
	existing.MarkPresent("ldap-sync")
	require.NoError(t, store.Put(context.Background(), existing))
	require.NoError(t, store.PutCursor(context.Background(), cache.Cursor{NotifierID: "notifier-1", ChangeNumber: 99}))

	n := &fakeNotifier{nextResults: map[uint64]notifier.NextIDResult{
		99: {ID: 100, DN: bob, Command: "d", HasMeta: true},
	}}
	d := &fakeDirectory{entries: map[entry.DN]*entry.Entry{}}

	disp := newTestDispatcher(t, n, d, store, mods)
	processed, err := disp.Tick(context.Background())
	require.NoError(t, err)
	require.True(t, processed)

	require.Len(t, repl.invoked, 1)
	require.Len(t, ldapSync.invoked, 1)
	require.Len(t, mailRewrite.invoked, 1)

	_, err = store.Get(context.Background(), bob)
	require.ErrorIs(t, err, cache.ErrNotFound)
}

func TestProcessHandlerFailureStillAdvancesCursor(t *testing.T) {
	repl := &fakeHandler{}
	homeDir := &fakeHandler{fail: true}
	mods := []*handler.Module{
		{Manifest: handler.Manifest{Name: "replication"}, Impl: repl},
		{Manifest: handler.Manifest{Name: "home-dir"}, Impl: homeDir},
	}

	store := newMemStore()
	carol := dn("cn=carol")
	n := &fakeNotifier{nextResults: map[uint64]notifier.NextIDResult{
		0: {ID: 1, DN: carol, Command: "a", HasMeta: true},
	}}
	directoryEntry := entry.New(carol)
	directoryEntry.SetAttribute("uid", [][]byte{[]byte("carol")})
	d := &fakeDirectory{entries: map[entry.DN]*entry.Entry{carol: directoryEntry}}

	disp := newTestDispatcher(t, n, d, store, mods)
	processed, err := disp.Tick(context.Background())
	require.NoError(t, err)
	require.True(t, processed)

	cached, err := store.Get(context.Background(), carol)
	require.NoError(t, err)
	require.False(t, cached.HasPresent("home-dir"))

	cur, err := store.Cursor(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(1), cur.ChangeNumber)
}

func TestProcessAlreadyProcessedYields(t *testing.T) {
	store := newMemStore()
	require.NoError(t, store.PutCursor(context.Background(), cache.Cursor{NotifierID: "notifier-1", ChangeNumber: 500}))

	n := &fakeNotifier{nextResults: map[uint64]notifier.NextIDResult{}}
	d := &fakeDirectory{entries: map[entry.DN]*entry.Entry{}}

	disp := newTestDispatcher(t, n, d, store, nil)
	processed, err := disp.Tick(context.Background())
	require.NoError(t, err)
	require.False(t, processed)

	cur, err := store.Cursor(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(500), cur.ChangeNumber)
}

func TestProcessOrderingViolationIsFatal(t *testing.T) {
	store := newMemStore()
	require.NoError(t, store.PutCursor(context.Background(), cache.Cursor{NotifierID: "notifier-1", ChangeNumber: 500}))

	n := &fakeNotifier{nextResults: map[uint64]notifier.NextIDResult{
		500: {ID: 502, DN: dn("cn=x"), Command: "m", HasMeta: true},
	}}
	d := &fakeDirectory{entries: map[entry.DN]*entry.Entry{}}

	disp := newTestDispatcher(t, n, d, store, nil)
	_, err := disp.Tick(context.Background())
	require.ErrorIs(t, err, ErrOrdering)

	cur, err := store.Cursor(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(500), cur.ChangeNumber, "cursor must not move on an ordering violation")
}

func TestResumeWalksCacheOnModuleSetChange(t *testing.T) {
	repl := &fakeHandler{}
	newHandler := &fakeHandler{}
	mods := []*handler.Module{
		{Manifest: handler.Manifest{Name: "replication"}, Impl: repl},
		{Manifest: handler.Manifest{Name: "newly-added"}, Impl: newHandler},
	}

	store := newMemStore()
	alice := dn("cn=alice,ou=p")
	existing := entry.New(alice)
	existing.SetAttribute("uid", [][]byte{[]byte("alice")})
	existing.MarkPresent("replication")
	require.NoError(t, store.Put(context.Background(), existing))
	require.NoError(t, store.PutCursor(context.Background(), cache.Cursor{
		NotifierID:    "notifier-1",
		ChangeNumber:  10,
		SchemaID:      "1",
		ModuleSetHash: "stale-hash",
	}))

	n := &fakeNotifier{schemaID: 1}
	d := &fakeDirectory{entries: map[entry.DN]*entry.Entry{}}

	disp := newTestDispatcher(t, n, d, store, mods)
	require.NoError(t, disp.Resume(context.Background()))

	require.Len(t, newHandler.invoked, 1, "module set changed, every handler must re-run against the cache")

	cached, err := store.Get(context.Background(), alice)
	require.NoError(t, err)
	require.True(t, cached.HasPresent("newly-added"))
}

func TestResumeNoopWhenNothingFenced(t *testing.T) {
	mods := []*handler.Module{{Manifest: handler.Manifest{Name: "replication"}, Impl: &fakeHandler{}}}

	store := newMemStore()
	alice := dn("cn=alice,ou=p")
	existing := entry.New(alice)
	existing.MarkPresent("replication")
	require.NoError(t, store.Put(context.Background(), existing))

	n := &fakeNotifier{schemaID: 1}
	d := &fakeDirectory{entries: map[entry.DN]*entry.Entry{}}
	disp := newTestDispatcher(t, n, d, store, mods)

	require.NoError(t, store.PutCursor(context.Background(), cache.Cursor{
		NotifierID:    "notifier-1",
		ChangeNumber:  10,
		SchemaID:      "1",
		ModuleSetHash: cursorModuleSetHashFor(t, disp),
	}))

	require.NoError(t, disp.Resume(context.Background()))

	cached, err := store.Get(context.Background(), alice)
	require.NoError(t, err)
	require.True(t, cached.HasPresent("replication"), "unfenced resume must not touch existing cache state")
}

func TestProcessDirectoryNotFoundOnModifyBecomesDelete(t *testing.T) {
	repl := &fakeHandler{}
	mods := []*handler.Module{{Manifest: handler.Manifest{Name: "replication"}, Impl: repl}}

	store := newMemStore()
	dave := dn("cn=dave")
	existing := entry.New(dave)
	existing.MarkPresent("replication")
	require.NoError(t, store.Put(context.Background(), existing))

	n := &fakeNotifier{nextResults: map[uint64]notifier.NextIDResult{
		0: {ID: 1, DN: dave, Command: "m", HasMeta: true},
	}}
	d := &fakeDirectory{entries: map[entry.DN]*entry.Entry{}} // NOT_FOUND

	disp := newTestDispatcher(t, n, d, store, mods)
	processed, err := disp.Tick(context.Background())
	require.NoError(t, err)
	require.True(t, processed)

	_, err = store.Get(context.Background(), dave)
	require.ErrorIs(t, err, cache.ErrNotFound)
}
