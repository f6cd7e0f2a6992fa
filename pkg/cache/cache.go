// Package cache defines the storage contract for the local shadow copy of
// directory state and the master replication cursor.
//
// The listener never talks to the directory to answer a question it can
// answer locally: every handler invocation and every resync walk reads
// through this interface, not through pkg/directory.
package cache

import (
	"context"
	"errors"

	"github.com/dirlistener/dirlistener/pkg/entry"
)

// ErrNotFound is returned by Get when no entry is cached for a DN.
var ErrNotFound = errors.New("cache: entry not found")

// ErrCorrupt is returned when a stored record fails to decode. The
// dispatcher treats this as the fatal CACHE_CORRUPTION condition and
// halts rather than guess at the entry's prior state.
var ErrCorrupt = errors.New("cache: corrupt record")

// Cursor is the single, atomically-updated pointer into the directory's
// change log. The listener advances it only after a transaction's
// cache write and txlog append have both committed.
type Cursor struct {
	// NotifierID identifies which change-log stream this cursor belongs
	// to. A changed NotifierID (after a restore or directory migration)
	// forces a full resync.
	NotifierID string

	// ChangeNumber is the last change number fully applied.
	ChangeNumber uint64

	// SchemaID is the directory schema generation the cursor was taken
	// against. A mismatch against the live directory forces a resync.
	SchemaID string

	// ModuleSetHash fingerprints the set of active handler modules and
	// their versions. A mismatch means a handler was added, removed, or
	// upgraded since the cursor was written; the dispatcher then re-runs
	// every loaded handler against the whole cache.
	ModuleSetHash string
}

// Store is the entry cache: a durable, DN-keyed mirror of the subset of
// directory attributes the listener's handlers care about.
type Store interface {
	// Get returns the cached entry for dn. It returns ErrNotFound if no
	// record exists, or ErrCorrupt if the stored record fails to decode.
	Get(ctx context.Context, dn entry.DN) (*entry.Entry, error)

	// Put writes e, replacing any existing record for the same DN. The
	// write is atomic with respect to readers: a concurrent Get never
	// observes a partially written record.
	Put(ctx context.Context, e *entry.Entry) error

	// Delete removes the cached entry for dn. It is not an error to
	// delete a DN that was never cached.
	Delete(ctx context.Context, dn entry.DN) error

	// Walk calls fn once for every cached entry, in DN order. Walk stops
	// and returns fn's error if fn returns a non-nil error. Used for
	// full-cache resync passes.
	Walk(ctx context.Context, fn func(*entry.Entry) error) error

	// Count returns the number of entries currently cached.
	Count(ctx context.Context) (int, error)

	// Cursor returns the persisted master cursor. It returns ErrNotFound
	// on a fresh cache (no transaction has ever committed).
	Cursor(ctx context.Context) (Cursor, error)

	// PutCursor atomically persists the master cursor. Callers must only
	// call this after the corresponding entry write (or batch of entry
	// writes) and transaction-log append for the same transaction have
	// already committed.
	PutCursor(ctx context.Context, c Cursor) error

	// Close releases the underlying storage handle.
	Close() error
}
