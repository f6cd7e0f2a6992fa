// Package entry defines the in-process representation of directory entries:
// distinguished names, attributes, and the module-present set that the
// dispatcher uses to decide which handlers still need to run.
package entry

import "strings"

// DN is a canonicalized distinguished name. It is the primary key for
// entries in the cache and the only form a DN should take once it leaves
// the directory client.
//
// Canonicalization: ASCII-lowercased, with whitespace trimmed around each
// comma-separated component. Two DNs that differ only by case or
// incidental whitespace compare equal once normalized.
type DN string

// NormalizeDN canonicalizes a raw DN string as read from the notifier or
// the directory client. It must be called exactly once, on ingest; every
// other component treats DN as already canonical.
func NormalizeDN(raw string) DN {
	parts := strings.Split(raw, ",")
	for i, p := range parts {
		parts[i] = strings.ToLower(strings.TrimSpace(p))
	}
	return DN(strings.Join(parts, ","))
}

// String returns the canonical string form.
func (d DN) String() string {
	return string(d)
}

// Empty reports whether the DN carries no components.
func (d DN) Empty() bool {
	return len(d) == 0
}
