package dispatcher

import (
	"context"
	"time"

	"github.com/dirlistener/dirlistener/internal/logger"
	"github.com/dirlistener/dirlistener/internal/telemetry"
	"github.com/dirlistener/dirlistener/pkg/entry"
	"github.com/dirlistener/dirlistener/pkg/handler"
)

// runHandlers drives every loaded module against working (the entry
// being built for the next committed cache state) in runtime order,
// applying the non-delete or delete gating rules. working's
// module-present set is mutated in place; it is what gets persisted to
// the cache once every module has run.
func (d *Dispatcher) runHandlers(ctx context.Context, dn entry.DN, working, oldEntry *entry.Entry, changed []string, command string, isDelete bool) {
	for _, m := range d.Runtime.Modules() {
		name := m.Name

		if handler.IsReplication(name) {
			d.invoke(ctx, name, dn, working, oldEntry, command)
			continue
		}

		if isDelete {
			d.gateDelete(ctx, m, dn, working, oldEntry, command)
			continue
		}

		d.gateNonDelete(ctx, m, dn, working, oldEntry, changed, command)
	}
}

// gateNonDelete implements per-handler gating for the non-delete path.
func (d *Dispatcher) gateNonDelete(ctx context.Context, m *handler.Module, dn entry.DN, working, oldEntry *entry.Entry, changed []string, command string) {
	name := m.Name

	if working.HasPresent(name) && len(m.Attributes) > 0 && !entry.Intersects(changed, m.Attributes) {
		// Up to date: re-assert (already a no-op, present stays set) and
		// skip invocation entirely (Invariant 2).
		return
	}

	matched, err := handler.MatchFilter(m.Filter, working)
	if err != nil {
		logger.WarnCtx(logger.WithContext(ctx, logger.FromContext(ctx).WithHandler(name)),
			"dispatcher: handler filter error, treating as no match", logger.Err(err))
		matched = false
	}
	if !matched {
		wasPresent := working.HasPresent(name)
		working.ClearPresent(name)
		if wasPresent {
			d.Runtime.NotifyRemoved(name, dn)
		}
		return
	}

	d.invoke(ctx, name, dn, working, oldEntry, command)
}

// gateDelete implements per-handler gating for the delete path.
func (d *Dispatcher) gateDelete(ctx context.Context, m *handler.Module, dn entry.DN, working, oldEntry *entry.Entry, command string) {
	name := m.Name
	if !working.HasPresent(name) && !m.HandleEveryDelete {
		return
	}
	d.invoke(ctx, name, dn, working, oldEntry, command)
}

// invoke ensures prerun, calls the handler, and updates working's
// module-present set per the success/failure rule common to both
// gating paths. Handler failures are HANDLER_FAILURE:
// logged, never fatal, and the handler's name is withheld so the next
// touch of this DN retries it.
func (d *Dispatcher) invoke(ctx context.Context, name string, dn entry.DN, working, oldEntry *entry.Entry, command string) {
	ctx = logger.WithContext(ctx, logger.FromContext(ctx).WithHandler(name))

	if err := d.Runtime.EnsurePrerun(name); err != nil {
		logger.WarnCtx(ctx, "dispatcher: handler prerun failed", logger.Err(err))
		working.ClearPresent(name)
		return
	}

	m := d.Runtime.Lookup(name)
	var priority float64
	if m != nil {
		priority = m.Priority
	}

	start := time.Now()
	ctx, span := telemetry.StartHandlerSpan(ctx, name, priority)
	err := d.Runtime.Invoke(ctx, name, dn, working, oldEntry, command)
	if err != nil {
		telemetry.RecordError(ctx, err)
	}
	span.End()
	d.Metrics.ObserveHandler(name, err, time.Since(start))

	if err != nil {
		logger.WarnCtx(ctx, "dispatcher: handler failed", logger.Err(err))
		working.ClearPresent(name)
		return
	}

	working.MarkPresent(name)
}
