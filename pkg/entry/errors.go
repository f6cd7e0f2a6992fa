package entry

import "errors"

// ErrUnsupportedVersion is returned by Decode when a record's version
// byte does not match RecordVersion.
var ErrUnsupportedVersion = errors.New("entry: unsupported record version")

// ErrTruncatedRecord is returned by Decode when a record ends before its
// own length prefixes say it should. The cache treats this as
// CACHE_CORRUPTION.
var ErrTruncatedRecord = errors.New("entry: truncated record")
