package event

import (
	"fmt"
	"strings"
)

// targetKeySeparator splits a routing target's target half from its
// optional key half, e.g. "orders::42".
const targetKeySeparator = "::"

// PublicationTargetIdentifier names a listener a publication is destined
// for. The core treats it as an opaque, non-empty string; typically it is a
// fully qualified method reference of the in-process listener.
type PublicationTargetIdentifier struct {
	value string
}

// NewPublicationTargetIdentifier validates s and returns an identifier.
func NewPublicationTargetIdentifier(s string) (PublicationTargetIdentifier, error) {
	if s == "" {
		return PublicationTargetIdentifier{}, fmt.Errorf("event: target identifier must not be empty")
	}
	return PublicationTargetIdentifier{value: s}, nil
}

// String returns the identifier's textual form.
func (t PublicationTargetIdentifier) String() string { return t.value }

// Equal compares two target identifiers by value.
func (t PublicationTargetIdentifier) Equal(other PublicationTargetIdentifier) bool {
	return t.value == other.value
}

// IsZero reports whether t was never assigned a value.
func (t PublicationTargetIdentifier) IsZero() bool { return t.value == "" }

// RoutingTarget is a (target, key?) pair used by the Externalization Router
// to pick a broker destination and, optionally, a partitioning key. Either
// half may carry an embedded expression of the form "#{...}" to be resolved
// against the event payload at send time.
//
// Textual forms:
//
//	"target"          -> target set, key unset
//	"target::"        -> target set, key set to ""
//	"target::key"     -> target and key both set
//	""                -> neither set
//
// RoutingTarget deliberately hash-collides "target" and "target::" (they
// compare unequal but are considered the same bucket by callers that hash
// on Target() alone); this mirrors a long-standing, tolerated quirk rather
// than a bug.
type RoutingTarget struct {
	target    string
	key       string
	keySet    bool
	targetSet bool
}

// ParseRoutingTarget parses the textual form described above. An empty or
// whitespace-only string parses successfully into a RoutingTarget with
// neither half set; ToRoutingTarget will then fail on it.
func ParseRoutingTarget(s string) RoutingTarget {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return RoutingTarget{}
	}

	idx := strings.Index(trimmed, targetKeySeparator)
	if idx < 0 {
		return RoutingTarget{target: strings.TrimSpace(trimmed), targetSet: true}
	}

	target := strings.TrimSpace(trimmed[:idx])
	key := strings.TrimSpace(trimmed[idx+len(targetKeySeparator):])
	return RoutingTarget{target: target, key: key, keySet: true, targetSet: true}
}

// ForTarget builds a RoutingTarget with no key set.
func ForTarget(target string) RoutingTarget {
	return RoutingTarget{target: strings.TrimSpace(target), targetSet: true}
}

// AndKey returns a copy of r with key set.
func (r RoutingTarget) AndKey(key string) RoutingTarget {
	r.key = strings.TrimSpace(key)
	r.keySet = true
	return r
}

// Target returns the target half.
func (r RoutingTarget) Target() string { return r.target }

// Key returns the key half and whether it was set at all.
func (r RoutingTarget) Key() (string, bool) {
	return r.key, r.keySet
}

// HasKeyExpression reports whether the key half is an embedded expression
// of the form "#{...}".
func (r RoutingTarget) HasKeyExpression() bool {
	if !r.keySet {
		return false
	}
	return strings.HasPrefix(r.key, "#{") && strings.HasSuffix(r.key, "}")
}

// HasTargetExpression reports whether the target half is an embedded
// expression of the form "#{...}".
func (r RoutingTarget) HasTargetExpression() bool {
	return strings.HasPrefix(r.target, "#{") && strings.HasSuffix(r.target, "}")
}

// ToRoutingTarget validates that a target half was parsed and returns r
// unchanged, or fails if the original string was empty/whitespace.
func (r RoutingTarget) ToRoutingTarget() (RoutingTarget, error) {
	if !r.targetSet {
		return RoutingTarget{}, fmt.Errorf("event: %w", ErrNoRoutingTarget)
	}
	return r, nil
}

// String renders r back to its textual form, modulo the whitespace trimmed
// during parsing.
func (r RoutingTarget) String() string {
	if !r.targetSet {
		return ""
	}
	if !r.keySet {
		return r.target
	}
	return r.target + targetKeySeparator + r.key
}

// Equal compares both halves of two routing targets.
func (r RoutingTarget) Equal(other RoutingTarget) bool {
	return r == other
}

// Hash returns a hash consistent with the documented quirk that "target"
// and "target::" collide: it is computed from Target() alone, ignoring
// whether a key is present.
func (r RoutingTarget) Hash() uint64 {
	var h uint64 = 14695981039346656037
	for i := 0; i < len(r.target); i++ {
		h ^= uint64(r.target[i])
		h *= 1099511628211
	}
	return h
}
