package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey struct{}

// logContextKey is the key for LogContext in context.Context
var logContextKey = contextKey{}

// LogContext holds the transaction-scoped fields the dispatcher threads
// through a single Process call: the transaction id, the DN it
// targets, the command, and (once handler dispatch begins) the handler
// currently being invoked. WarnCtx/InfoCtx/etc. read it back out so
// every log line inside a transaction carries these fields without
// every call site repeating them.
type LogContext struct {
	TraceID   string // OpenTelemetry trace ID
	SpanID    string // OpenTelemetry span ID
	TxnID     uint64 // Notifier transaction id
	DN        string // Distinguished name the transaction targets
	Command   string // Transaction command: a, m, d, r
	Handler   string // Handler module currently being invoked, if any
	StartTime time.Time
}

// WithContext returns a new context with the given LogContext
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from context, or nil if not present
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewTransactionContext creates a LogContext for the start of a
// dispatcher Process call.
func NewTransactionContext(txnID uint64, dn, command string) *LogContext {
	return &LogContext{
		TxnID:     txnID,
		DN:        dn,
		Command:   command,
		StartTime: time.Now(),
	}
}

// Clone creates a copy of the LogContext
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	return &LogContext{
		TraceID:   lc.TraceID,
		SpanID:    lc.SpanID,
		TxnID:     lc.TxnID,
		DN:        lc.DN,
		Command:   lc.Command,
		Handler:   lc.Handler,
		StartTime: lc.StartTime,
	}
}

// WithHandler returns a copy with the handler name set, for the span of
// a single handler invocation.
func (lc *LogContext) WithHandler(name string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Handler = name
	}
	return clone
}

// WithTrace returns a copy with trace info set
func (lc *LogContext) WithTrace(traceID, spanID string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.TraceID = traceID
		clone.SpanID = spanID
	}
	return clone
}

// DurationMs returns the duration since StartTime in milliseconds
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}
