// Package cursor wraps the master replication cursor: the
// resume point a dispatcher requests from the notifier on start, plus
// the schema- and module-set-fencing checks that decide whether a full
// cache resync is required before normal processing resumes.
//
// The durable record itself lives in pkg/cache (Cursor/PutCursor,
// written atomically by the badger-backed store); this package adds the
// policy layer the dispatcher and supervisor consult, so neither has to
// know the storage encoding.
package cursor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"

	"github.com/dirlistener/dirlistener/pkg/cache"
	"github.com/dirlistener/dirlistener/pkg/handler"
)

// Manager is a thin policy wrapper around a cache.Store's cursor
// operations.
type Manager struct {
	store cache.Store
}

// New wraps store.
func New(store cache.Store) *Manager {
	return &Manager{store: store}
}

// Resume describes where the dispatcher should pick up processing, and
// whether the directory/handler state has drifted enough since the last
// persisted cursor to require a full resync.
type Resume struct {
	// NextID is the notifier id the dispatcher should request next
	// ("notifier_id + 1"), or 0 on a fresh cache (no cursor yet).
	NextID uint64

	// Fresh is true when no cursor has ever been persisted: every entry
	// the dispatcher sees is effectively new.
	Fresh bool

	// NotifierChanged is true when the persisted cursor names a
	// different notifier stream than currentNotifierID ("a
	// changed NotifierID ... forces a full resync").
	NotifierChanged bool

	// SchemaChanged is true when the persisted schema id no longer
	// matches the directory's current schema id.
	SchemaChanged bool

	// ModuleSetChanged is true when the persisted module-set hash no
	// longer matches the currently loaded module set — a handler was
	// added, removed, or its manifest changed since the cursor was
	// written.
	ModuleSetChanged bool
}

// NeedsResync reports whether any fencing condition requires a full
// cache walk before the dispatcher resumes normal per-transaction
// processing.
func (r Resume) NeedsResync() bool {
	return r.Fresh || r.NotifierChanged || r.SchemaChanged || r.ModuleSetChanged
}

// Load reads the persisted cursor and compares it against the
// currently observed notifier id, schema id, and module set, producing
// a Resume decision.
func (m *Manager) Load(ctx context.Context, currentNotifierID, currentSchemaID string, modules []*handler.Module) (Resume, error) {
	moduleHash := ComputeModuleSetHash(modules)

	c, err := m.store.Cursor(ctx)
	if errors.Is(err, cache.ErrNotFound) {
		return Resume{Fresh: true}, nil
	}
	if err != nil {
		return Resume{}, fmt.Errorf("cursor: load: %w", err)
	}

	return Resume{
		NextID:           c.ChangeNumber + 1,
		NotifierChanged:  c.NotifierID != currentNotifierID,
		SchemaChanged:    c.SchemaID != currentSchemaID,
		ModuleSetChanged: c.ModuleSetHash != moduleHash,
	}, nil
}

// Advance persists the cursor after a transaction's cache write and
// txlog append have both committed. It is
// the dispatcher's final step for a processed transaction.
func (m *Manager) Advance(ctx context.Context, notifierID string, changeNumber uint64, schemaID string, modules []*handler.Module) error {
	return m.store.PutCursor(ctx, cache.Cursor{
		NotifierID:    notifierID,
		ChangeNumber:  changeNumber,
		SchemaID:      schemaID,
		ModuleSetHash: ComputeModuleSetHash(modules),
	})
}

// ComputeModuleSetHash fingerprints the set of loaded handler modules
// and their manifests. The hash is order-independent in the
// module set but sensitive to any manifest field that changes a
// handler's behavior, so upgrading or reconfiguring a handler forces
// the same resync path as adding or removing one.
func ComputeModuleSetHash(modules []*handler.Module) string {
	lines := make([]string, 0, len(modules))
	for _, m := range modules {
		lines = append(lines, fmt.Sprintf(
			"%s|%s|%g|%s|%v|%t|%t",
			m.Name, m.Description, m.Priority, m.Filter, m.Attributes, m.ModRDN, m.HandleEveryDelete,
		))
	}
	sort.Strings(lines)

	h := sha256.New()
	for _, line := range lines {
		h.Write([]byte(line))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}
