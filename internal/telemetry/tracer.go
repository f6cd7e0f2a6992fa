package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys recorded on the per-transaction span and its per-handler
// children.
const (
	AttrDN           = "dirlistener.dn"
	AttrTxnID        = "dirlistener.txn_id"
	AttrCommand      = "dirlistener.command"
	AttrHandler      = "dirlistener.handler"
	AttrHandlerPrio  = "dirlistener.handler_priority"
	AttrNotifierAddr = "dirlistener.notifier_addr"
	AttrSchemaID     = "dirlistener.schema_id"
	AttrResynced     = "dirlistener.resynced"
)

// Span names for the dispatcher pipeline.
const (
	SpanTransaction     = "dispatcher.process"
	SpanHandlerInvoke   = "handler.invoke"
	SpanResync          = "cursor.resync"
	SpanDirectoryRead   = "directory.read"
	SpanDirectoryChange = "directory.read_change"
)

// DN returns an attribute for the distinguished name a span concerns.
func DN(dn string) attribute.KeyValue { return attribute.String(AttrDN, dn) }

// TxnID returns an attribute for the notifier change-log id a span
// concerns.
func TxnID(id uint64) attribute.KeyValue { return attribute.Int64(AttrTxnID, int64(id)) }

// Command returns an attribute for the transaction's command code (a
// txlog.Command value such as "a", "m", "d" or "r").
func Command(cmd string) attribute.KeyValue { return attribute.String(AttrCommand, cmd) }

// HandlerName returns an attribute for the handler module a span concerns.
func HandlerName(name string) attribute.KeyValue { return attribute.String(AttrHandler, name) }

// HandlerPriority returns an attribute for a handler's configured
// priority.
func HandlerPriority(p float64) attribute.KeyValue {
	return attribute.Float64(AttrHandlerPrio, p)
}

// SchemaID returns an attribute for the directory schema generation in
// effect when a span started.
func SchemaID(id string) attribute.KeyValue { return attribute.String(AttrSchemaID, id) }

// Resynced returns an attribute indicating whether a full cache resync
// was triggered before the span's work ran.
func Resynced(v bool) attribute.KeyValue { return attribute.Bool(AttrResynced, v) }

// StartTransactionSpan starts the root span for one dispatcher
// transaction (FETCH_META through ADVANCE_CURSOR).
func StartTransactionSpan(ctx context.Context, id uint64, dn, command string) (context.Context, trace.Span) {
	return StartSpan(ctx, SpanTransaction, trace.WithAttributes(
		TxnID(id), DN(dn), Command(command),
	))
}

// StartHandlerSpan starts a child span for a single handler invocation
// within a transaction.
func StartHandlerSpan(ctx context.Context, name string, priority float64) (context.Context, trace.Span) {
	return StartSpan(ctx, SpanHandlerInvoke, trace.WithAttributes(
		HandlerName(name), HandlerPriority(priority),
	))
}

// StartResyncSpan starts a span covering a full cache resync walk
// triggered by cursor fencing.
func StartResyncSpan(ctx context.Context, reason string) (context.Context, trace.Span) {
	return StartSpan(ctx, SpanResync, trace.WithAttributes(attribute.String("dirlistener.resync_reason", reason)))
}
