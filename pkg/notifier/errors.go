package notifier

import "errors"

// ErrNotConnected is returned by calls issued before Connect has
// succeeded at least once.
var ErrNotConnected = errors.New("notifier: not connected")

// ErrProtocol is returned when a reply is malformed or carries a message
// id the client has no pending request for. A protocol error closes the
// connection, retries once, then escalates.
var ErrProtocol = errors.New("notifier: protocol error")

// ErrOrdering is returned when the notifier announces an id that is
// neither the expected cursor+1 nor the already-processed cursor itself.
// This is fatal: the dispatcher must not write to cache or txlog and
// must exit non-zero.
var ErrOrdering = errors.New("notifier: ordering violation")

// ErrSemantic marks a non-retryable reply from the notifier, e.g. a
// requested id below the notifier's retention window.
var ErrSemantic = errors.New("notifier: semantic error")

// ErrTimeout names a reply that did not arrive before its deadline.
// Client does not return it: a read past the deadline is reported as
// ErrProtocol.
var ErrTimeout = errors.New("notifier: wait timeout")

// ErrNoPendingRequest names a wait with no GetNextID request
// outstanding. Client has no separate wait call and does not return it.
var ErrNoPendingRequest = errors.New("notifier: no pending request")

// ErrReconnectLimitExceeded is returned when the configured retry budget
// (NotifierConfig.Retries) is exhausted. The supervisor treats this as
// fatal so an external process manager can restart the listener.
var ErrReconnectLimitExceeded = errors.New("notifier: reconnect attempts exhausted")
