package badger_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dirlistener/dirlistener/pkg/cache"
	badgercache "github.com/dirlistener/dirlistener/pkg/cache/badger"
	"github.com/dirlistener/dirlistener/pkg/entry"
)

func newTestStore(t *testing.T) *badgercache.Store {
	t.Helper()
	s, err := badgercache.Open(badgercache.Options{InMemory: true, Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStoreGetMissing(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	_, err := s.Get(context.Background(), entry.NormalizeDN("cn=nobody"))
	require.ErrorIs(t, err, cache.ErrNotFound)
}

func TestStorePutGetDelete(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	dn := entry.NormalizeDN("cn=alice,ou=people")
	e := entry.New(dn)
	e.SetAttribute("sn", [][]byte{[]byte("Doe")})
	e.MarkPresent("replication")

	require.NoError(t, s.Put(ctx, e))

	got, err := s.Get(ctx, dn)
	require.NoError(t, err)
	assert.Equal(t, "Doe", string(got.Attribute("sn").Values[0]))
	assert.True(t, got.HasPresent("replication"))

	require.NoError(t, s.Delete(ctx, dn))
	_, err = s.Get(ctx, dn)
	require.ErrorIs(t, err, cache.ErrNotFound)

	// Deleting an absent DN is not an error.
	require.NoError(t, s.Delete(ctx, dn))
}

func TestStoreWalkAndCount(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	dns := []entry.DN{
		entry.NormalizeDN("cn=alice,ou=people"),
		entry.NormalizeDN("cn=bob,ou=people"),
		entry.NormalizeDN("cn=carol,ou=people"),
	}
	for _, dn := range dns {
		require.NoError(t, s.Put(ctx, entry.New(dn)))
	}

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	seen := map[entry.DN]bool{}
	require.NoError(t, s.Walk(ctx, func(e *entry.Entry) error {
		seen[e.DN] = true
		return nil
	}))
	assert.Len(t, seen, 3)
	for _, dn := range dns {
		assert.True(t, seen[dn], "expected to walk %s", dn)
	}
}

func TestStoreCursorRoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Cursor(ctx)
	require.ErrorIs(t, err, cache.ErrNotFound)

	c := cache.Cursor{
		NotifierID:    "notifier-1",
		ChangeNumber:  42,
		SchemaID:      "schema-7",
		ModuleSetHash: "deadbeef",
	}
	require.NoError(t, s.PutCursor(ctx, c))

	got, err := s.Cursor(ctx)
	require.NoError(t, err)
	assert.Equal(t, c, got)

	// A later write replaces rather than merges.
	c.ChangeNumber = 43
	require.NoError(t, s.PutCursor(ctx, c))
	got, err = s.Cursor(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(43), got.ChangeNumber)
}
