package module

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Type is a minimal description of a compiled or source-level type: enough
// for the model and verifier to reason about package membership,
// annotations and public-surface references without depending on a
// concrete compiler frontend.
type Type struct {
	// FQName is the fully qualified name, e.g. "orders.internal.OrderPlaced".
	FQName string
	// Package is the owning package path, e.g. "orders.internal".
	Package string
	// Annotations present on this type.
	Annotations []Annotation
	// PublicFieldInjections lists field names injected without a
	// constructor/setter, used by verifier rule 4.
	PublicFieldInjections []string
	// ReferencedTypes restricted to the public surface: public constructor
	// parameters, public method parameters and return types.
	ReferencedTypes []string
	// ListenerOf, if non-empty, names the event types this type listens to
	// as an @EventListener-equivalent method, used for EVENT_LISTENER
	// dependency typing.
	ListenerOf []string
	// UsesComponents lists FQNames of types this type receives via
	// constructor/setter injection, used for USES_COMPONENT typing.
	UsesComponents []string
	// ConfigurationPropertiesOf, if true, marks this type as a bound
	// @ConfigurationProperties-equivalent value type.
	ConfigurationPropertiesOf bool
}

// Annotation is a simplified stand-in for a compiled annotation: a name
// plus string-valued attributes (the core only ever inspects flat lists of
// module/interface references).
type Annotation struct {
	Name   string
	Values map[string][]string
}

// Value returns the first value for key, if any.
func (a Annotation) Value(key string) (string, bool) {
	vs, ok := a.Values[key]
	if !ok || len(vs) == 0 {
		return "", false
	}
	return vs[0], true
}

// generatedPattern matches AOT/proxy-generated artifacts that must be
// excluded from a package's type set: "*$$*Proxy*" and any name containing
// "__".
var generatedPattern = regexp.MustCompile(`\$\$.*Proxy|__`)

// isGenerated reports whether a type name looks synthetic.
func isGenerated(name string) bool {
	return generatedPattern.MatchString(name)
}

// ErrAmbiguousAnnotation is raised by FindAnnotation when more than one
// type in a package carries the requested annotation.
type ErrAmbiguousAnnotation struct {
	Package    string
	Annotation string
	Candidates []string
}

func (e *ErrAmbiguousAnnotation) Error() string {
	sort.Strings(e.Candidates)
	return fmt.Sprintf("module: ambiguous annotation %s in package %s: found on %s",
		e.Annotation, e.Package, strings.Join(e.Candidates, ", "))
}

// Index is the one-shot, immutable catalog of all types ingested from the
// compiled artifact set. It is built once (see NewIndex) and never
// mutated; all downstream lookups are read-only and safe for concurrent
// use.
type Index struct {
	// byPackage maps a package path to its directly declared types, in
	// source/declaration order.
	byPackage map[string][]*Type
	// byFQName maps a fully qualified type name to its Type.
	byFQName map[string]*Type
	// packagePaths are all known package paths in declaration order.
	packagePaths []string
}

// NewIndex builds an Index from a flat slice of Types, discarding
// generated artifacts as described in §4.1. Iteration order downstream
// follows the order types are supplied here; callers that load from a
// deterministic source (declared order, or otherwise lexicographic by
// FQName) get deterministic results end to end.
func NewIndex(types []Type) *Index {
	idx := &Index{
		byPackage: make(map[string][]*Type),
		byFQName:  make(map[string]*Type),
	}

	seenPkg := make(map[string]bool)
	for i := range types {
		t := types[i]
		base := baseName(t.FQName)
		if isGenerated(base) {
			continue
		}
		tc := t
		idx.byFQName[t.FQName] = &tc
		idx.byPackage[t.Package] = append(idx.byPackage[t.Package], &tc)
		if !seenPkg[t.Package] {
			seenPkg[t.Package] = true
			idx.packagePaths = append(idx.packagePaths, t.Package)
		}
	}

	return idx
}

func baseName(fqName string) string {
	if i := strings.LastIndex(fqName, "."); i >= 0 {
		return fqName[i+1:]
	}
	return fqName
}

// Packages returns every package path under root, including root itself,
// in the order they were first encountered while building the index.
func (idx *Index) Packages(root string) []string {
	var out []string
	for _, p := range idx.packagePaths {
		if p == root || strings.HasPrefix(p, root+".") {
			out = append(out, p)
		}
	}
	return out
}

// TypesIn returns the types directly declared in pkg (not sub-packages).
func (idx *Index) TypesIn(pkg string) []*Type {
	return idx.byPackage[pkg]
}

// TypeByName looks up a type by fully qualified name.
func (idx *Index) TypeByName(fqName string) (*Type, bool) {
	t, ok := idx.byFQName[fqName]
	return t, ok
}

// ReferencedTypes returns the public-surface types referenced by t,
// resolved against this index; unresolvable names (external library types)
// are skipped.
func (idx *Index) ReferencedTypes(t *Type) []*Type {
	var out []*Type
	for _, name := range t.ReferencedTypes {
		if rt, ok := idx.byFQName[name]; ok {
			out = append(out, rt)
		}
	}
	return out
}

// FindAnnotation looks for ann first on a package-info-style descriptor
// (a type whose base name is "package-info") and, failing that, on exactly
// one type within pkg. It returns ErrAmbiguousAnnotation if more than one
// type in the package carries it.
func (idx *Index) FindAnnotation(pkg string, ann string) (*Annotation, error) {
	types := idx.byPackage[pkg]

	for _, t := range types {
		if baseName(t.FQName) == "package-info" {
			for _, a := range t.Annotations {
				if a.Name == ann {
					found := a
					return &found, nil
				}
			}
		}
	}

	var matches []*Type
	var found Annotation
	for _, t := range types {
		for _, a := range t.Annotations {
			if a.Name == ann {
				matches = append(matches, t)
				found = a
				break
			}
		}
	}

	switch len(matches) {
	case 0:
		return nil, nil
	case 1:
		return &found, nil
	default:
		names := make([]string, 0, len(matches))
		for _, m := range matches {
			names = append(names, m.FQName)
		}
		return nil, &ErrAmbiguousAnnotation{Package: pkg, Annotation: ann, Candidates: names}
	}
}
