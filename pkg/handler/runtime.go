package handler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dirlistener/dirlistener/internal/logger"
	"github.com/dirlistener/dirlistener/pkg/entry"
)

// defaultPanicThreshold and defaultPanicWindow bound how many times a
// handler may panic before the runtime asks its owner to quarantine the
// pipeline.
const (
	defaultPanicThreshold = 3
	defaultPanicWindow    = time.Minute
)

// RuntimeOptions configures a Runtime.
type RuntimeOptions struct {
	// NotifyOnFilterLoss controls whether a handler that loses
	// filter-match receives an OnRemoved(dn) call. Default
	// false preserves the source's silent removal.
	NotifyOnFilterLoss bool

	// DropPrivilegesTo is the unprivileged account re-assumed after every
	// hook invocation. Empty disables the drop.
	DropPrivilegesTo string

	// OnRepeatedPanic is invoked when a single handler panics
	// PanicThreshold times within PanicWindow. The runtime itself never
	// touches the filesystem for quarantine; the supervisor owns
	// failed.ldif.
	OnRepeatedPanic func(handlerName string)

	PanicThreshold int
	PanicWindow    time.Duration

	// Metrics, if set, is notified of every recovered handler panic
	//. Nil is safe.
	Metrics PanicRecorder
}

// PanicRecorder is the narrow metrics sink Runtime reports recovered
// handler panics through.
type PanicRecorder interface {
	RecordPanic(handlerName string)
}

// Runtime hosts the loaded, ordered handler modules and drives their
// lifecycle hooks. It replaces the source's module-global linked
// list and retry counters with an explicit struct passed by reference
//.
type Runtime struct {
	opts  RuntimeOptions
	state *StateStore

	mu         sync.Mutex
	modules    []*Module
	byName     map[string]*Module
	prerunDone map[string]bool

	panicMu     sync.Mutex
	panicCounts map[string]int
	panicSince  map[string]time.Time
}

// NewRuntime builds a Runtime over modules, ordering them with
// `replication` first, then ascending priority with ties broken by
// load order (a stable sort preserves the scan order ScanDirs produced).
func NewRuntime(modules []*Module, state *StateStore, opts RuntimeOptions) *Runtime {
	if opts.PanicThreshold == 0 {
		opts.PanicThreshold = defaultPanicThreshold
	}
	if opts.PanicWindow == 0 {
		opts.PanicWindow = defaultPanicWindow
	}

	ordered := make([]*Module, len(modules))
	copy(ordered, modules)
	sort.SliceStable(ordered, func(i, j int) bool {
		iRepl, jRepl := IsReplication(ordered[i].Name), IsReplication(ordered[j].Name)
		if iRepl != jRepl {
			return iRepl
		}
		return ordered[i].Priority < ordered[j].Priority
	})

	byName := make(map[string]*Module, len(ordered))
	for _, m := range ordered {
		byName[m.Name] = m
	}

	return &Runtime{
		opts:        opts,
		state:       state,
		modules:     ordered,
		byName:      byName,
		prerunDone:  make(map[string]bool),
		panicCounts: make(map[string]int),
		panicSince:  make(map[string]time.Time),
	}
}

// Reload replaces the loaded module set in place, re-applying the same
// ordering rule as NewRuntime. Existing prerun/panic-tracking state for modules that
// remain present is left untouched; state for modules no longer loaded
// is simply unreferenced.
func (r *Runtime) Reload(modules []*Module) {
	ordered := make([]*Module, len(modules))
	copy(ordered, modules)
	sort.SliceStable(ordered, func(i, j int) bool {
		iRepl, jRepl := IsReplication(ordered[i].Name), IsReplication(ordered[j].Name)
		if iRepl != jRepl {
			return iRepl
		}
		return ordered[i].Priority < ordered[j].Priority
	})

	byName := make(map[string]*Module, len(ordered))
	for _, m := range ordered {
		byName[m.Name] = m
	}

	r.mu.Lock()
	r.modules = ordered
	r.byName = byName
	r.mu.Unlock()
}

// Modules returns the ordered module list. The dispatcher owns gating
// and per-transaction invocation decisions; Runtime only owns
// lifecycle and state.
func (r *Runtime) Modules() []*Module {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Module, len(r.modules))
	copy(out, r.modules)
	return out
}

// Lookup returns the module named name, or nil.
func (r *Runtime) Lookup(name string) *Module {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byName[name]
}

// Initialize calls Initialize on every module that implements it and has
// not already completed it (tracked via the READY state bit), exactly
// once per process lifetime.
func (r *Runtime) Initialize() {
	for _, m := range r.Modules() {
		init, ok := m.Impl.(Initializer)
		if !ok {
			continue
		}

		ready, err := r.state.IsReady(m.Name)
		if err != nil {
			logger.Warn("handler: read ready state failed", logger.Handler(m.Name), logger.Err(err))
		}
		if ready {
			continue
		}

		if err := r.guarded(m, init.Initialize); err != nil {
			logger.Error("handler: initialize failed", logger.Handler(m.Name), logger.Err(err))
			continue
		}
		if err := r.state.MarkReady(m.Name); err != nil {
			logger.Warn("handler: persist ready state failed", logger.Handler(m.Name), logger.Err(err))
		}
	}
}

// EnsurePrerun calls name's Prerun hook if it has one and has not yet run
// in the current "run".
func (r *Runtime) EnsurePrerun(name string) error {
	r.mu.Lock()
	if r.prerunDone[name] {
		r.mu.Unlock()
		return nil
	}
	m := r.byName[name]
	r.mu.Unlock()

	if m == nil {
		return fmt.Errorf("handler: unknown handler %q", name)
	}

	pre, ok := m.Impl.(Prerunner)
	if ok {
		if err := r.guarded(m, pre.Prerun); err != nil {
			return err
		}
	}

	r.mu.Lock()
	r.prerunDone[name] = true
	r.mu.Unlock()
	return nil
}

// Invoke calls handler name's Handle hook, applying panic recovery and
// the post-invocation privilege drop.
func (r *Runtime) Invoke(ctx context.Context, name string, dn entry.DN, newEntry, oldEntry *entry.Entry, command string) error {
	m := r.Lookup(name)
	if m == nil {
		return fmt.Errorf("handler: unknown handler %q", name)
	}
	return r.guarded(m, func() error {
		return m.Impl.Handle(ctx, dn, newEntry, oldEntry, command)
	})
}

// NotifyRemoved calls name's OnRemoved hook if NotifyOnFilterLoss is
// enabled and the module implements FilterLossNotifiee.
func (r *Runtime) NotifyRemoved(name string, dn entry.DN) {
	if !r.opts.NotifyOnFilterLoss {
		return
	}
	m := r.Lookup(name)
	if m == nil {
		return
	}
	notifiee, ok := m.Impl.(FilterLossNotifiee)
	if !ok {
		return
	}
	if err := r.guarded(m, func() error { return notifiee.OnRemoved(dn) }); err != nil {
		logger.Warn("handler: OnRemoved failed", logger.Handler(name), logger.DN(string(dn)), logger.Err(err))
	}
}

// Postrun calls Postrun on every module that implements it, then clears
// the prerun-done set so the next dispatched transaction starts a new
// "run".
func (r *Runtime) Postrun() {
	for _, m := range r.Modules() {
		post, ok := m.Impl.(Postrunner)
		if !ok {
			continue
		}
		if err := r.guarded(m, post.Postrun); err != nil {
			logger.Warn("handler: postrun failed", logger.Handler(m.Name), logger.Err(err))
		}
	}

	r.mu.Lock()
	r.prerunDone = make(map[string]bool)
	r.mu.Unlock()
}

// Clean calls Clean on every module that implements it, at process
// shutdown. Errors are logged and aggregated, not fatal.
func (r *Runtime) Clean() {
	for _, m := range r.Modules() {
		cl, ok := m.Impl.(Cleaner)
		if !ok {
			continue
		}
		if err := r.guarded(m, cl.Clean); err != nil {
			logger.Warn("handler: clean failed", logger.Handler(m.Name), logger.Err(err))
		}
	}
}

// SetData broadcasts a key/value pair to every module implementing
// DataSetter.
func (r *Runtime) SetData(key, value string) {
	for _, m := range r.Modules() {
		ds, ok := m.Impl.(DataSetter)
		if !ok {
			continue
		}
		if err := r.guarded(m, func() error { return ds.SetData(key, value) }); err != nil {
			logger.Warn("handler: setdata failed", logger.Handler(m.Name), logger.Err(err))
		}
	}
}

// guarded runs fn with panic recovery and a mandatory post-invocation
// privilege drop. A panic is treated as HANDLER_FAILURE: it never
// propagates, but repeated panics from the same handler within a short
// window are escalated via OnRepeatedPanic.
func (r *Runtime) guarded(m *Module, fn func() error) (err error) {
	defer func() {
		if perr := dropPrivilegesTo(r.opts.DropPrivilegesTo); perr != nil {
			logger.Error("handler: failed to drop privileges after hook", logger.Handler(m.Name), logger.Err(perr))
		}
	}()
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("handler %s panicked: %v", m.Name, rec)
			if r.opts.Metrics != nil {
				r.opts.Metrics.RecordPanic(m.Name)
			}
			r.recordPanic(m.Name)
		}
	}()

	return fn()
}

func (r *Runtime) recordPanic(name string) {
	r.panicMu.Lock()
	defer r.panicMu.Unlock()

	now := time.Now()
	since, ok := r.panicSince[name]
	if !ok || now.Sub(since) > r.opts.PanicWindow {
		r.panicSince[name] = now
		r.panicCounts[name] = 0
	}
	r.panicCounts[name]++

	if r.panicCounts[name] >= r.opts.PanicThreshold && r.opts.OnRepeatedPanic != nil {
		r.opts.OnRepeatedPanic(name)
	}
}
