package entry

import "sort"

// Diff computes the sorted set of attribute names that changed between old
// and new. Either may be nil, representing an absent entry (ADD has a nil
// old, DELETE has a nil new); an absent<->present transition always
// counts as a change.
//
// Diff is pure and deterministic: Diff(e, e) is always empty (Testable
// Property 5), and the result depends only on the two entries' attribute
// sets, never on call order or prior state.
func Diff(old, new *Entry) []string {
	changed := make(map[string]struct{})

	var oldNames, newNames map[string]*Attribute
	if old != nil {
		oldNames = old.attributes
	}
	if new != nil {
		newNames = new.attributes
	}

	for name, oldAttr := range oldNames {
		newAttr, ok := newNames[name]
		if !ok {
			changed[name] = struct{}{}
			continue
		}
		if !equalValueSets(oldAttr.Values, newAttr.Values) {
			changed[name] = struct{}{}
		}
	}
	for name := range newNames {
		if _, ok := oldNames[name]; !ok {
			changed[name] = struct{}{}
		}
	}

	out := make([]string, 0, len(changed))
	for name := range changed {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Intersects reports whether any name in changed appears in interest.
// An empty interest list means "all attributes" per Invariant 2(b) and
// the Handler.Attributes contract.
func Intersects(changed []string, interest []string) bool {
	if len(interest) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(interest))
	for _, n := range interest {
		set[normalizeAttrName(n)] = struct{}{}
	}
	for _, n := range changed {
		if _, ok := set[normalizeAttrName(n)]; ok {
			return true
		}
	}
	return false
}
