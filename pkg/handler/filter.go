package handler

import (
	"fmt"
	"strings"

	ber "github.com/go-asn1-ber/asn1-ber"
	goldap "github.com/go-ldap/ldap/v3"

	"github.com/dirlistener/dirlistener/pkg/entry"
)

// MatchFilter reports whether e matches an LDAP-style filter string.
// An empty filter matches every entry.
//
// Matching uses go-ldap's filter compiler to obtain the filter's
// operator tree, then walks it against the in-process entry
// representation directly — no directory round-trip is involved.
func MatchFilter(filterStr string, e *entry.Entry) (bool, error) {
	if strings.TrimSpace(filterStr) == "" {
		return true, nil
	}

	packet, err := goldap.CompileFilter(filterStr)
	if err != nil {
		return false, fmt.Errorf("handler: compile filter %q: %w", filterStr, err)
	}

	return evalFilter(packet, e), nil
}

func evalFilter(p *ber.Packet, e *entry.Entry) bool {
	switch ber.Tag(p.Tag) {
	case goldap.FilterAnd:
		for _, child := range p.Children {
			if !evalFilter(child, e) {
				return false
			}
		}
		return true

	case goldap.FilterOr:
		for _, child := range p.Children {
			if evalFilter(child, e) {
				return true
			}
		}
		return false

	case goldap.FilterNot:
		if len(p.Children) != 1 {
			return false
		}
		return !evalFilter(p.Children[0], e)

	case goldap.FilterPresent:
		name, _ := p.Value.(string)
		return e.Attribute(name) != nil

	case goldap.FilterEqualityMatch:
		return evalAttributeValueMatch(p, e, func(have, want string) bool {
			return strings.EqualFold(have, want)
		})

	case goldap.FilterGreaterOrEqual:
		return evalAttributeValueMatch(p, e, func(have, want string) bool {
			return have >= want
		})

	case goldap.FilterLessOrEqual:
		return evalAttributeValueMatch(p, e, func(have, want string) bool {
			return have <= want
		})

	case goldap.FilterApproxMatch:
		return evalAttributeValueMatch(p, e, func(have, want string) bool {
			return strings.EqualFold(have, want)
		})

	case goldap.FilterSubstrings:
		return evalSubstrings(p, e)

	default:
		// Unknown filter node types (e.g. FilterExtensibleMatch) are
		// treated as non-matching rather than panicking the dispatcher.
		return false
	}
}

func evalAttributeValueMatch(p *ber.Packet, e *entry.Entry, cmp func(have, want string) bool) bool {
	if len(p.Children) != 2 {
		return false
	}
	name, _ := p.Children[0].Value.(string)
	want, _ := p.Children[1].Value.(string)

	attr := e.Attribute(name)
	if attr == nil {
		return false
	}
	for _, v := range attr.Values {
		if cmp(string(v), want) {
			return true
		}
	}
	return false
}

func evalSubstrings(p *ber.Packet, e *entry.Entry) bool {
	if len(p.Children) != 2 {
		return false
	}
	name, _ := p.Children[0].Value.(string)
	attr := e.Attribute(name)
	if attr == nil {
		return false
	}

	for _, v := range attr.Values {
		have := strings.ToLower(string(v))
		matched := true
		for _, part := range p.Children[1].Children {
			want := strings.ToLower(fmt.Sprintf("%v", part.Value))
			switch part.Tag {
			case 0: // initial
				if !strings.HasPrefix(have, want) {
					matched = false
				}
			case 2: // final
				if !strings.HasSuffix(have, want) {
					matched = false
				}
			default: // any (tag 1)
				if !strings.Contains(have, want) {
					matched = false
				}
			}
			if !matched {
				break
			}
		}
		if matched {
			return true
		}
	}
	return false
}
