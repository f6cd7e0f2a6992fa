package directory

import "errors"

// ErrNotFound is returned by Read when the directory has no object at the
// requested DN. The dispatcher treats this as an implicit DELETE when it
// occurs on a MODIFY target.
var ErrNotFound = errors.New("directory: no such object")

// ErrNotConnected names a call made with no open connection. Client does
// not return it: Read and ReadChange open the connection themselves when
// none is open.
var ErrNotConnected = errors.New("directory: not connected")

// ErrInvalidSyntax marks a non-transient LDAP error surfaced to the
// dispatcher unchanged.
var ErrInvalidSyntax = errors.New("directory: invalid syntax")

// ErrReconnectLimitExceeded is returned when the configured retry budget
// is exhausted.
var ErrReconnectLimitExceeded = errors.New("directory: reconnect attempts exhausted")
