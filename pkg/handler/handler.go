// Package handler hosts the pluggable extension layer: the
// hook set a module implements, its manifest, the per-handler durable
// state, and the runtime that loads, orders, and invokes modules.
//
// Handler modules run as an explicit Go interface rather than an
// embedded scripting interpreter. A module is a value satisfying Handler, either
// statically linked into the binary via Register or loaded from a
// platform shared-library (`.so`) plugin at runtime.
package handler

import (
	"context"

	"github.com/dirlistener/dirlistener/pkg/entry"
)

// Handler is the one hook every module must implement ("Hooks (all
// optional except `handle`)"). command is only meaningful when the
// module's manifest sets ModRDN; non-modrdn modules may ignore it.
type Handler interface {
	Handle(ctx context.Context, dn entry.DN, newEntry, oldEntry *entry.Entry, command string) error
}

// Initializer is called at most once per process lifetime, after load
//.
type Initializer interface {
	Initialize() error
}

// Prerunner is called lazily before the first dispatched invocation of a
// "run".
type Prerunner interface {
	Prerun() error
}

// Postrunner is called when the pipeline has been idle for the
// configured interval.
type Postrunner interface {
	Postrun() error
}

// Cleaner is called once at process shutdown.
type Cleaner interface {
	Clean() error
}

// DataSetter receives broadcast key/value configuration.
type DataSetter interface {
	SetData(key, value string) error
}

// FilterLossNotifiee is called when a handler that was previously
// module-present loses filter-match on a DN, but only when
// HandlerConfig.NotifyOnFilterLoss is true.
type FilterLossNotifiee interface {
	OnRemoved(dn entry.DN) error
}

// Manifest describes a module's static metadata.
type Manifest struct {
	// Name is the module's stable identifier, used as its key in the
	// module-present set and in cache/handlers/<name>. Defaults to the
	// file's base name if empty.
	Name string `json:"name" yaml:"name"`

	// Description is a required human-readable summary.
	Description string `json:"description" yaml:"description"`

	// Priority orders handler invocation: lower runs earlier, ties break
	// by load order. Default 0.
	Priority float64 `json:"priority" yaml:"priority"`

	// Filter is an optional LDAP-style filter string; empty matches
	// every entry.
	Filter string `json:"filter" yaml:"filter"`

	// Attributes is the list of attribute names this handler cares
	// about; empty means "any attribute change is relevant".
	Attributes []string `json:"attributes" yaml:"attributes"`

	// ModRDN, if true, causes Handle's command argument to be
	// meaningful; the manifest's own name for this is "modrdn".
	ModRDN bool `json:"modrdn" yaml:"modrdn"`

	// HandleEveryDelete causes this handler to run on every DELETE
	// regardless of module-present membership.
	HandleEveryDelete bool `json:"handle_every_delete" yaml:"handle_every_delete"`
}

// replicationHandlerName is the sentinel module name that always runs
// first, including on deletes, and is exempt from the "effectively
// unchanged" short-circuit.
const replicationHandlerName = "replication"

// IsReplication reports whether name is the sentinel replication
// handler.
func IsReplication(name string) bool {
	return name == replicationHandlerName
}

// Module pairs a Manifest with its loaded Handler implementation and the
// optional hooks it satisfies.
type Module struct {
	Manifest
	Impl Handler
}
