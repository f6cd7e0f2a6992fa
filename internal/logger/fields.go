package logger

import "log/slog"

// Standard field keys for structured logging across the listener
// pipeline. Use these consistently so every component's log lines are
// queryable on the same keys.
const (
	// Distributed tracing (propagated via LogContext).
	KeyTraceID = "trace_id" // OpenTelemetry trace ID for request correlation
	KeySpanID  = "span_id"  // OpenTelemetry span ID for operation tracking

	// Transaction pipeline.
	KeyTxnID      = "txn_id"      // Transaction id from the notifier stream
	KeyDN         = "dn"          // Distinguished name the transaction targets
	KeyCommand    = "command"     // Transaction command: a, m, d, r
	KeyHandler    = "handler"     // Handler module name
	KeySchemaID   = "schema_id"   // Authoritative directory schema generation
	KeyNotifierID = "notifier_id" // Persisted master cursor notifier id
	KeyReason     = "reason"      // Cause of a fencing/retry/skip decision
	KeyAttempt    = "attempt"     // Reconnect attempt number
	KeyAddress    = "address"     // Notifier or directory network address
	KeyBaseDN     = "base_dn"     // Directory base DN for a search
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
)

// DN returns a slog.Attr for the distinguished name a transaction or
// handler invocation targets.
func DN(dn string) slog.Attr {
	return slog.String(KeyDN, dn)
}

// TxnID returns a slog.Attr for the notifier transaction id.
func TxnID(id uint64) slog.Attr {
	return slog.Uint64(KeyTxnID, id)
}

// Command returns a slog.Attr for a transaction command character.
func Command(cmd string) slog.Attr {
	return slog.String(KeyCommand, cmd)
}

// Handler returns a slog.Attr for a handler module name.
func Handler(name string) slog.Attr {
	return slog.String(KeyHandler, name)
}

// SchemaID returns a slog.Attr for a directory schema generation.
func SchemaID(id string) slog.Attr {
	return slog.String(KeySchemaID, id)
}

// NotifierID returns a slog.Attr for a persisted master cursor id.
func NotifierID(id uint64) slog.Attr {
	return slog.Uint64(KeyNotifierID, id)
}

// Reason returns a slog.Attr naming why a fencing, retry, or skip
// decision was made.
func Reason(reason string) slog.Attr {
	return slog.String(KeyReason, reason)
}

// Attempt returns a slog.Attr for a reconnect attempt number.
func Attempt(n int) slog.Attr {
	return slog.Int(KeyAttempt, n)
}

// Address returns a slog.Attr for a notifier or directory address.
func Address(addr string) slog.Attr {
	return slog.String(KeyAddress, addr)
}

// BaseDN returns a slog.Attr for a directory search base DN.
func BaseDN(dn string) slog.Attr {
	return slog.String(KeyBaseDN, dn)
}

// DurationMs returns a slog.Attr for an operation duration.
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// TraceID returns a slog.Attr for an OpenTelemetry trace ID.
func TraceID(id string) slog.Attr {
	return slog.String(KeyTraceID, id)
}

// SpanID returns a slog.Attr for an OpenTelemetry span ID.
func SpanID(id string) slog.Attr {
	return slog.String(KeySpanID, id)
}

// Err returns a slog.Attr for an error, or a zero Attr for nil so it is
// safe to pass through unconditionally.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}
