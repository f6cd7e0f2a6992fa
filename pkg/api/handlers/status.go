package handlers

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/dirlistener/dirlistener/pkg/cache"
	"github.com/dirlistener/dirlistener/pkg/handler"
	"github.com/dirlistener/dirlistener/pkg/supervisor"
)

// CursorReporter exposes the subset of dispatcher state the status
// endpoint needs: the schema generation the dispatcher last fenced
// against. Cursor position itself is read straight from the cache
// store, since that's the durably persisted value.
type CursorReporter interface {
	SchemaID() string
}

// QuarantinePather returns the sentinel path a quarantine checker
// watches, letting the status and admin handlers report/clear it
// without pkg/api depending on pkg/supervisor's concrete type.
type QuarantinePather interface {
	Path() string
}

// ModuleStatus summarizes one loaded handler module for the status
// response.
type ModuleStatus struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Priority    float64  `json:"priority"`
	Filter      string   `json:"filter,omitempty"`
	Attributes  []string `json:"attributes,omitempty"`
}

// StatusHandler reports the dispatcher's operational state: cursor
// position, schema fencing generation, loaded modules, quarantine
// state, and the last few dispatcher errors.
type StatusHandler struct {
	Store      cache.Store
	Runtime    *handler.Runtime
	Cursor     CursorReporter
	Errors     *supervisor.ErrorLog
	Quarantine QuarantinePather
}

type statusResponse struct {
	Cursor         cursorStatus             `json:"cursor"`
	ActiveSchemaID string                   `json:"active_schema_id,omitempty"`
	CacheSize      int                      `json:"cache_entries"`
	Modules        []ModuleStatus           `json:"modules"`
	Quarantined    bool                     `json:"quarantined"`
	RecentErr      []supervisor.ErrorRecord `json:"recent_errors,omitempty"`
}

type cursorStatus struct {
	NotifierID    string `json:"notifier_id"`
	ChangeNumber  uint64 `json:"change_number"`
	SchemaID      string `json:"schema_id"`
	ModuleSetHash string `json:"module_set_hash"`
}

// Get handles GET /status.
func (h *StatusHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	resp := statusResponse{Modules: make([]ModuleStatus, 0)}

	if h.Store != nil {
		c, err := h.Store.Cursor(ctx)
		if err == nil {
			resp.Cursor = cursorStatus{
				NotifierID:    c.NotifierID,
				ChangeNumber:  c.ChangeNumber,
				SchemaID:      c.SchemaID,
				ModuleSetHash: c.ModuleSetHash,
			}
		}
		if n, cerr := h.countWithTimeout(ctx); cerr == nil {
			resp.CacheSize = n
		}
	}

	if h.Cursor != nil {
		resp.ActiveSchemaID = h.Cursor.SchemaID()
	}

	if h.Runtime != nil {
		for _, m := range h.Runtime.Modules() {
			resp.Modules = append(resp.Modules, ModuleStatus{
				Name:        m.Name,
				Description: m.Description,
				Priority:    m.Priority,
				Filter:      m.Filter,
				Attributes:  m.Attributes,
			})
		}
	}

	if h.Quarantine != nil {
		if _, err := os.Stat(h.Quarantine.Path()); err == nil {
			resp.Quarantined = true
		}
	}

	if h.Errors != nil {
		resp.RecentErr = h.Errors.Recent()
	}

	writeJSON(w, http.StatusOK, okResponse(resp))
}

func (h *StatusHandler) countWithTimeout(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return h.Store.Count(ctx)
}
