// Package module implements the application-module model and its static
// verifier: deriving modules, named interfaces and allowed dependencies from
// a set of packages, and checking architectural rules against them.
package module

import (
	"fmt"
	"strings"
)

// separator is reserved inside an ApplicationModuleIdentifier; it delimits
// a module identifier from a named interface in textual references such as
// "orders::internal".
const separator = "::"

// ApplicationModuleIdentifier names a module. It is immutable, non-empty,
// never contains the reserved separator, and totally ordered by
// lexicographic comparison.
type ApplicationModuleIdentifier struct {
	value string
}

// NewApplicationModuleIdentifier validates s and returns an identifier.
func NewApplicationModuleIdentifier(s string) (ApplicationModuleIdentifier, error) {
	if s == "" {
		return ApplicationModuleIdentifier{}, fmt.Errorf("module: identifier must not be empty")
	}
	if strings.Contains(s, separator) {
		return ApplicationModuleIdentifier{}, fmt.Errorf("module: identifier %q must not contain %q", s, separator)
	}
	return ApplicationModuleIdentifier{value: s}, nil
}

// MustApplicationModuleIdentifier is NewApplicationModuleIdentifier but
// panics on error; intended for static initialization.
func MustApplicationModuleIdentifier(s string) ApplicationModuleIdentifier {
	id, err := NewApplicationModuleIdentifier(s)
	if err != nil {
		panic(err)
	}
	return id
}

// String returns the identifier's textual form.
func (id ApplicationModuleIdentifier) String() string { return id.value }

// IsZero reports whether id was never assigned a value.
func (id ApplicationModuleIdentifier) IsZero() bool { return id.value == "" }

// Less orders identifiers lexicographically.
func (id ApplicationModuleIdentifier) Less(other ApplicationModuleIdentifier) bool {
	return id.value < other.value
}

// Equal reports value equality.
func (id ApplicationModuleIdentifier) Equal(other ApplicationModuleIdentifier) bool {
	return id.value == other.value
}

// NamedInterfaceRef is a reference of the form "module" or
// "module::namedInterface" as used in allowedDependencies declarations.
type NamedInterfaceRef struct {
	Module    ApplicationModuleIdentifier
	Interface string // empty means "any/unnamed not specified"
}

// ParseNamedInterfaceRef parses "module" or "module::interface".
func ParseNamedInterfaceRef(s string) (NamedInterfaceRef, error) {
	parts := strings.SplitN(s, separator, 2)
	mod, err := NewApplicationModuleIdentifier(strings.TrimSpace(parts[0]))
	if err != nil {
		return NamedInterfaceRef{}, err
	}
	ref := NamedInterfaceRef{Module: mod}
	if len(parts) == 2 {
		ref.Interface = strings.TrimSpace(parts[1])
	}
	return ref, nil
}

// String renders the reference back to its textual form.
func (r NamedInterfaceRef) String() string {
	if r.Interface == "" {
		return r.Module.String()
	}
	return r.Module.String() + separator + r.Interface
}
