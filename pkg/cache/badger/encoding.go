package badger

// ============================================================================
// Database Key Namespace Design
// ============================================================================
//
// Key Namespace Prefixes:
//
// Data Type     Prefix   Key Format          Value
// =========================================================================
// Entry          "e:"    e:<normalized dn>   entry.Encode record
// Master cursor  "c:"    c:master            JSON-encoded Cursor

const (
	prefixEntry  = "e:"
	prefixCursor = "c:master"
)

func keyEntry(dn string) []byte {
	return append([]byte(prefixEntry), dn...)
}

func keyCursor() []byte {
	return []byte(prefixCursor)
}

// dnFromEntryKey strips the entry prefix from a raw badger key, returning
// the normalized DN string it was stored under.
func dnFromEntryKey(key []byte) string {
	return string(key[len(prefixEntry):])
}
