// Package dispatcher drives the single-threaded, per-transaction state
// machine at the center of the listener:
//
//	IDLE → got_id → FETCH_META → FETCH_ENTRY → LOAD_OLD → DIFF →
//	RUN_REPLICATION → RUN_OTHERS → COMMIT_CACHE → APPEND_TXLOG →
//	ADVANCE_CURSOR → IDLE
//
// Every transition except IDLE→got_id is driven synchronously by the
// previous step's result; there is no concurrency inside the pipeline.
// The dispatcher owns no goroutines of its own — Run blocks the
// calling goroutine for as long as the pipeline should keep running.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dirlistener/dirlistener/internal/logger"
	"github.com/dirlistener/dirlistener/internal/telemetry"
	"github.com/dirlistener/dirlistener/pkg/cache"
	"github.com/dirlistener/dirlistener/pkg/cursor"
	"github.com/dirlistener/dirlistener/pkg/directory"
	"github.com/dirlistener/dirlistener/pkg/entry"
	"github.com/dirlistener/dirlistener/pkg/handler"
	"github.com/dirlistener/dirlistener/pkg/metrics"
	"github.com/dirlistener/dirlistener/pkg/notifier"
	"github.com/dirlistener/dirlistener/pkg/txlog"
)

// Hook lets the supervisor inject cross-cutting checks (free-space
// watchdog, quarantine sentinel) that must run before every transaction
// without this package importing pkg/supervisor.
type Hook func(ctx context.Context) error

// NotifierClient is the subset of *notifier.Client the dispatcher
// depends on, narrowed out so tests can substitute a fake notifier
// without a live TCP server.
type NotifierClient interface {
	GetNextID(ctx context.Context, afterID uint64) (notifier.NextIDResult, error)
	Alive(ctx context.Context) error
	GetSchemaID(ctx context.Context) (uint64, error)
	Close() error
}

// DirectoryClient is the subset of *directory.Client the dispatcher
// depends on, narrowed out for the same reason.
type DirectoryClient interface {
	Read(ctx context.Context, dn entry.DN) (*entry.Entry, error)
	ReadChange(ctx context.Context, id uint64) (entry.DN, txlog.Command, error)
	Open(ctx context.Context) error
	Close() error
}

// Config configures a Dispatcher.
type Config struct {
	// NotifierStreamID identifies which notifier stream the persisted
	// cursor belongs to; a change forces a full resync. Typically
	// the notifier's configured address.
	NotifierStreamID string

	// IdleThreshold is how long the pipeline can go without a processed
	// transaction before an ALIVE probe and postrun fire.
	IdleThreshold time.Duration

	// PollInterval bounds how often Run retries GET_ID when the notifier
	// reports no new transaction.
	PollInterval time.Duration
}

// Dispatcher wires the notifier, directory, cache, optional txlog, and
// handler runtime into the transaction pipeline.
type Dispatcher struct {
	Notifier  NotifierClient
	Directory DirectoryClient
	Cache     cache.Store
	Txlog     *txlog.Log // nil disables transaction logging
	Runtime   *handler.Runtime
	Cursor    *cursor.Manager

	cfg Config

	// PreTransaction runs at the start of every Process call, before
	// FETCH_META (free-space watchdog, quarantine sentinel).
	PreTransaction Hook

	// Metrics, if set, receives per-transaction and per-handler
	// observations. Nil is safe and
	// costs nothing.
	Metrics *metrics.Dispatcher

	schemaID     string
	lastActivity time.Time
	idleHandled  bool
}

// New builds a Dispatcher. Callers are expected to have already opened
// Notifier and Directory.
func New(cfg Config, n NotifierClient, d DirectoryClient, store cache.Store, log *txlog.Log, rt *handler.Runtime) *Dispatcher {
	if cfg.IdleThreshold == 0 {
		cfg.IdleThreshold = 300 * time.Second
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = time.Second
	}
	return &Dispatcher{
		Notifier:     n,
		Directory:    d,
		Cache:        store,
		Txlog:        log,
		Runtime:      rt,
		Cursor:       cursor.New(store),
		cfg:          cfg,
		lastActivity: time.Now(),
	}
}

// Run drives the pipeline until ctx is canceled or a fatal error
// occurs. A canceled context causes Run to return nil once any
// in-flight transaction has reached COMMIT_CACHE (graceful drain is the
// supervisor's responsibility via ctx cancellation timing; Run itself
// never starts a new transaction once ctx is done).
func (d *Dispatcher) Run(ctx context.Context) error {
	if err := d.Resume(ctx); err != nil {
		return err
	}

	for {
		if ctx.Err() != nil {
			return nil
		}

		processed, err := d.Tick(ctx)
		if err != nil {
			return err
		}

		if processed {
			continue
		}

		if time.Since(d.lastActivity) >= d.cfg.IdleThreshold && !d.idleHandled {
			if err := d.handleIdle(ctx); err != nil {
				return err
			}
			d.idleHandled = true
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(d.cfg.PollInterval):
		}
	}
}

// Resume reads the persisted master cursor and, if any fencing
// condition has tripped since it was written (notifier identity,
// schema generation, or handler module set changed), walks the entire
// cache and re-runs every loaded handler against each cached entry
// before normal per-transaction processing begins. It is idempotent and
// safe to call before every Run; a cursor that fences nothing returns
// immediately.
func (d *Dispatcher) Resume(ctx context.Context) error {
	schemaID, err := d.Notifier.GetSchemaID(ctx)
	if err != nil {
		return fmt.Errorf("dispatcher: fetch schema id for resume: %w", err)
	}
	d.schemaID = strconv.FormatUint(schemaID, 10)

	resume, err := d.Cursor.Load(ctx, d.cfg.NotifierStreamID, d.schemaID, d.Runtime.Modules())
	if err != nil {
		return fmt.Errorf("dispatcher: load cursor: %w", err)
	}
	if !resume.NeedsResync() {
		return nil
	}

	reason := "fresh_cache"
	switch {
	case resume.NotifierChanged:
		reason = "notifier_id"
	case resume.SchemaChanged:
		reason = "schema_id"
	case resume.ModuleSetChanged:
		reason = "module_set"
	}

	ctx, span := telemetry.StartResyncSpan(ctx, reason)
	defer span.End()
	d.Metrics.RecordResync()
	logger.Info("dispatcher: fencing condition detected, resyncing cache against loaded handlers", logger.Reason(reason))

	return d.Cache.Walk(ctx, func(e *entry.Entry) error {
		working := e.Clone()
		entryCtx := logger.WithContext(ctx, logger.NewTransactionContext(0, string(working.DN), "resync"))
		d.runHandlers(entryCtx, working.DN, working, e, working.AttributeNames(), "resync", false)
		if err := d.Cache.Put(ctx, working); err != nil {
			return fmt.Errorf("dispatcher: resync commit %s: %w", working.DN, err)
		}
		return nil
	})
}

// Tick performs a single IDLE→got_id step: it asks the notifier for the
// transaction after the persisted cursor and, if one is available,
// processes it. It reports whether a transaction was processed.
func (d *Dispatcher) Tick(ctx context.Context) (bool, error) {
	lastID, err := d.lastProcessedID(ctx)
	if err != nil {
		return false, err
	}

	result, err := d.Notifier.GetNextID(ctx, lastID)
	if err != nil {
		return false, err
	}

	switch {
	case result.ID == lastID:
		// Boundary behavior: already processed, cursor does not
		// move, dispatcher yields.
		return false, nil
	case result.ID != lastID+1:
		return false, fmt.Errorf("%w: notifier announced %d, expected %d", ErrOrdering, result.ID, lastID+1)
	}

	if err := d.Process(ctx, result); err != nil {
		return false, err
	}

	d.lastActivity = time.Now()
	d.idleHandled = false
	return true, nil
}

func (d *Dispatcher) lastProcessedID(ctx context.Context) (uint64, error) {
	c, err := d.Cache.Cursor(ctx)
	if errors.Is(err, cache.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("dispatcher: read cursor: %w", err)
	}
	return c.ChangeNumber, nil
}

// Process runs one transaction end to end: FETCH_META, FETCH_ENTRY,
// LOAD_OLD, DIFF, RUN_REPLICATION,
// RUN_OTHERS, COMMIT_CACHE, APPEND_TXLOG, ADVANCE_CURSOR. Any
// non-retryable error leaves the cursor unchanged and propagates to the
// caller, which halts the pipeline.
func (d *Dispatcher) Process(ctx context.Context, result notifier.NextIDResult) (err error) {
	start := time.Now()
	dn := result.DN
	command := result.Command

	lc := logger.NewTransactionContext(result.ID, string(dn), command)
	ctx = logger.WithContext(ctx, lc)

	ctx, span := telemetry.StartTransactionSpan(ctx, result.ID, string(dn), command)
	defer func() {
		if err != nil {
			telemetry.RecordError(ctx, err)
		}
		span.End()
		d.Metrics.ObserveTransaction(command, err, time.Since(start))
	}()

	if d.PreTransaction != nil {
		if err = d.PreTransaction(ctx); err != nil {
			return err
		}
	}

	if err = d.fenceSchema(ctx); err != nil {
		return err
	}

	// FETCH_META
	if !result.HasMeta {
		fetchedDN, cmd, ferr := d.Directory.ReadChange(ctx, result.ID)
		if ferr != nil {
			return fmt.Errorf("dispatcher: fetch change metadata for id %d: %w", result.ID, ferr)
		}
		dn = fetchedDN
		command = string(cmd)
		lc.DN, lc.Command = string(dn), command
		telemetry.SetAttributes(ctx, telemetry.DN(string(dn)), telemetry.Command(command))
	}

	// FETCH_ENTRY
	isDelete := txlog.Command(command) == txlog.CommandDelete
	var newEntry *entry.Entry
	if !isDelete {
		e, err := d.Directory.Read(ctx, dn)
		switch {
		case errors.Is(err, directory.ErrNotFound):
			// Boundary behavior: directory read for a MODIFY target
			// returns NOT_FOUND → pipeline proceeds as DELETE.
			isDelete = true
		case err != nil:
			return fmt.Errorf("dispatcher: fetch entry %s: %w", dn, err)
		default:
			newEntry = e
		}
	}

	// LOAD_OLD
	oldEntry, err := d.Cache.Get(ctx, dn)
	switch {
	case errors.Is(err, cache.ErrNotFound):
		oldEntry = nil
	case errors.Is(err, cache.ErrCorrupt):
		return fmt.Errorf("%w: %s: %v", ErrCacheCorruption, dn, err)
	case err != nil:
		return fmt.Errorf("dispatcher: load cached entry %s: %w", dn, err)
	}

	// DIFF
	var changed []string
	if !isDelete {
		changed = entry.Diff(oldEntry, newEntry)
	}

	// Build the working entry that RUN_REPLICATION/RUN_OTHERS mutate and
	// that COMMIT_CACHE ultimately persists (or, for deletes, removes).
	working := buildWorking(dn, newEntry, oldEntry, isDelete)

	// RUN_REPLICATION, RUN_OTHERS
	d.runHandlers(ctx, dn, working, oldEntry, changed, command, isDelete)

	// COMMIT_CACHE
	if isDelete {
		if err := d.Cache.Delete(ctx, dn); err != nil {
			return fmt.Errorf("dispatcher: commit delete %s: %w", dn, err)
		}
	} else {
		if err := d.Cache.Put(ctx, working); err != nil {
			return fmt.Errorf("dispatcher: commit cache %s: %w", dn, err)
		}
	}

	// APPEND_TXLOG
	if d.Txlog != nil {
		if err := d.Txlog.Append(ctx, txlog.Record{ID: result.ID, Command: txlog.Command(command), DN: dn}); err != nil {
			return fmt.Errorf("dispatcher: append txlog %d: %w", result.ID, err)
		}
	}

	// ADVANCE_CURSOR
	if err := d.Cursor.Advance(ctx, d.cfg.NotifierStreamID, result.ID, d.schemaID, d.Runtime.Modules()); err != nil {
		return fmt.Errorf("dispatcher: advance cursor %d: %w", result.ID, err)
	}

	return nil
}

// buildWorking assembles the entry value that gating mutates: for a
// live entry, the freshly-read attributes carrying forward the prior
// module-present set; for a delete, the prior cached entry (so
// handle_every_delete / module-present gating has something to read).
func buildWorking(dn entry.DN, newEntry, oldEntry *entry.Entry, isDelete bool) *entry.Entry {
	if isDelete {
		if oldEntry != nil {
			return oldEntry.Clone()
		}
		return entry.New(dn)
	}

	working := newEntry.Clone()
	if oldEntry != nil {
		for _, name := range oldEntry.PresentNames() {
			working.MarkPresent(name)
		}
	}
	return working
}

// SchemaID returns the directory schema generation the dispatcher last
// fenced against, or the empty string before the first transaction.
// Exposed for status reporting (pkg/api).
func (d *Dispatcher) SchemaID() string {
	return d.schemaID
}

// fenceSchema implements schema fencing: when the notifier's
// authoritative schema generation has advanced past the
// persisted one, the directory binding is reopened before the next
// transaction is processed.
func (d *Dispatcher) fenceSchema(ctx context.Context) error {
	id, err := d.Notifier.GetSchemaID(ctx)
	if err != nil {
		return fmt.Errorf("dispatcher: fetch schema id: %w", err)
	}
	next := strconv.FormatUint(id, 10)

	if d.schemaID == "" {
		d.schemaID = next
		return nil
	}
	if next == d.schemaID {
		return nil
	}

	logger.InfoCtx(ctx, "dispatcher: schema generation advanced, reinitializing directory binding", "old_schema", d.schemaID, "new_schema", next)
	if err := d.Directory.Close(); err != nil {
		logger.WarnCtx(ctx, "dispatcher: close directory before schema reopen failed", logger.Err(err))
	}
	if err := d.Directory.Open(ctx); err != nil {
		return fmt.Errorf("dispatcher: reopen directory after schema fence: %w", err)
	}
	d.schemaID = next
	return nil
}

// handleIdle implements the idle postrun and reconnect behavior: probe
// the notifier with ALIVE; on failure, tear down both
// connections, fire postrun exactly once, and let the next Tick's
// GetNextID/Open calls reconnect with backoff.
func (d *Dispatcher) handleIdle(ctx context.Context) error {
	if err := d.Notifier.Alive(ctx); err != nil {
		logger.Warn("dispatcher: alive probe failed, tearing down connections", logger.Err(err))
		if cerr := d.Notifier.Close(); cerr != nil {
			logger.Warn("dispatcher: close notifier failed", logger.Err(cerr))
		}
		if cerr := d.Directory.Close(); cerr != nil {
			logger.Warn("dispatcher: close directory failed", logger.Err(cerr))
		}
	}

	d.Runtime.Postrun()
	return nil
}
