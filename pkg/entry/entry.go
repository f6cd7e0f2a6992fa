package entry

import "sort"

// Entry is a DN plus its attribute set plus the module-present set: the
// names of handlers that have successfully reconciled the entry's current
// state.
type Entry struct {
	DN         DN
	attributes map[string]*Attribute // keyed by normalizeAttrName(name)
	present    map[string]struct{}   // handler names
}

// New creates an empty entry for dn.
func New(dn DN) *Entry {
	return &Entry{
		DN:         dn,
		attributes: make(map[string]*Attribute),
		present:    make(map[string]struct{}),
	}
}

// SetAttribute replaces (or inserts) an attribute by name, deduplicating
// its values. A nil or empty value slice removes the attribute, matching
// the directory's "absent" representation.
func (e *Entry) SetAttribute(name string, values [][]byte) {
	key := normalizeAttrName(name)
	if len(values) == 0 {
		delete(e.attributes, key)
		return
	}
	e.attributes[key] = &Attribute{Name: name, Values: dedupeValues(values)}
}

// Attribute returns the named attribute, or nil if absent.
func (e *Entry) Attribute(name string) *Attribute {
	return e.attributes[normalizeAttrName(name)]
}

// AttributeNames returns the sorted (by normalized name) list of attribute
// names present on the entry.
func (e *Entry) AttributeNames() []string {
	names := make([]string, 0, len(e.attributes))
	for k := range e.attributes {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// HasPresent reports whether handler is in the module-present set.
func (e *Entry) HasPresent(handler string) bool {
	_, ok := e.present[handler]
	return ok
}

// MarkPresent adds handler to the module-present set.
func (e *Entry) MarkPresent(handler string) {
	e.present[handler] = struct{}{}
}

// ClearPresent removes handler from the module-present set.
func (e *Entry) ClearPresent(handler string) {
	delete(e.present, handler)
}

// PresentNames returns the sorted module-present set.
func (e *Entry) PresentNames() []string {
	names := make([]string, 0, len(e.present))
	for k := range e.present {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Clone returns a deep copy of the entry, including its module-present
// set. The dispatcher clones the cached old entry before mutating it into
// the next committed state.
func (e *Entry) Clone() *Entry {
	out := New(e.DN)
	for k, v := range e.attributes {
		out.attributes[k] = v.Clone()
	}
	for k := range e.present {
		out.present[k] = struct{}{}
	}
	return out
}
