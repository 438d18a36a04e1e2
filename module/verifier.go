package module

import (
	"fmt"
	"sort"
	"strings"
)

// Violation is a single, self-descriptive rule failure.
type Violation struct {
	Rule    string
	Message string
}

func (v Violation) String() string { return v.Message }

// Violations is the immutable, possibly-empty result of running Verify.
// Messages are ordered and deduplicated.
type Violations struct {
	items []Violation
}

// Messages returns each violation's self-descriptive message, ordered and
// deduplicated.
func (vs Violations) Messages() []string {
	seen := map[string]bool{}
	var out []string
	for _, v := range vs.items {
		if !seen[v.Message] {
			seen[v.Message] = true
			out = append(out, v.Message)
		}
	}
	return out
}

// Items returns the raw Violation values in the order they were detected.
func (vs Violations) Items() []Violation { return vs.items }

// IsEmpty reports whether no violations were found.
func (vs Violations) IsEmpty() bool { return len(vs.items) == 0 }

// Error implements error, joining every violation message with newlines.
// Verify itself returns Violations only; callers check IsEmpty.
func (vs Violations) Error() string {
	return strings.Join(vs.Messages(), "\n")
}

func (vs *Violations) add(rule, msg string) {
	vs.items = append(vs.items, Violation{Rule: rule, Message: msg})
}

// Verify evaluates every architectural rule against ams and returns the
// aggregate Violations. Rules are never thrown mid-analysis; every
// applicable rule runs and contributes to the same report (testable
// property 8: running Verify twice on equal inputs returns the same
// violation message set).
func Verify(ams *ApplicationModules) Violations {
	var vs Violations

	modules := ams.Modules()
	for _, m := range modules {
		verifyNoAccessToNonExposedTypes(ams, m, &vs)
		verifyNoBypassingAllowList(ams, m, &vs)
		verifyNoFieldInjection(ams, m, &vs)
		verifyNamedInterfaceReferencesExist(ams, m, &vs)
	}
	verifyNoCycles(ams, &vs)

	sort.SliceStable(vs.items, func(i, j int) bool {
		return vs.items[i].Message < vs.items[j].Message
	})

	return vs
}

// MustVerify is Verify but returns an error (the Violations value itself,
// which implements error) when any violation was found, mirroring the
// Java API's `modules.verify()` throwing on failure.
func MustVerify(ams *ApplicationModules) error {
	vs := Verify(ams)
	if vs.IsEmpty() {
		return nil
	}
	return vs
}

// verifyNoAccessToNonExposedTypes is rule 1: a reference from module A to a
// type in module B is allowed only if B is open, or the type belongs to a
// named interface of B whitelisted by A (when A declares
// allowedDependencies).
func verifyNoAccessToNonExposedTypes(ams *ApplicationModules, a *ApplicationModule, vs *Violations) {
	idx := ams.Index()
	for _, typeName := range a.Classes {
		t, ok := idx.TypeByName(typeName)
		if !ok {
			continue
		}
		for _, ref := range idx.ReferencedTypes(t) {
			b, ok := ams.GetModuleByType(ref.FQName)
			if !ok || b.Identifier.Equal(a.Identifier) {
				continue
			}

			if b.Open {
				continue
			}

			exposedVia := b.NamedInterfacesExposing(ref.FQName)
			if len(exposedVia) == 0 {
				vs.add("no-access-to-non-exposed-types", fmt.Sprintf(
					"module %s references type %s in module %s, but %s does not expose it via any named interface (referencing type: %s)",
					a.Identifier, ref.FQName, b.Identifier, b.Identifier, typeName))
				continue
			}

			if a.HasExplicitAllowedDependencies() {
				if !anyInterfaceWhitelisted(a, b, exposedVia) {
					vs.add("no-access-to-non-exposed-types", fmt.Sprintf(
						"module %s (allowedDependencies: %s) references %s in module %s via named interface(s) %s, none of which is whitelisted (referencing type: %s); %s exposes: %s",
						a.Identifier, strings.Join(allowedDependenciesStrings(a), ", "), ref.FQName, b.Identifier, strings.Join(exposedVia, ","), typeName,
						b.Identifier, strings.Join(b.NamedInterfaceNames(), ", ")))
				}
			}
		}
	}
}

func allowedDependenciesStrings(a *ApplicationModule) []string {
	out := make([]string, 0, len(a.AllowedDependencies))
	for _, ref := range a.AllowedDependencies {
		out = append(out, ref.String())
	}
	return out
}

func anyInterfaceWhitelisted(a, b *ApplicationModule, ifaces []string) bool {
	for _, ref := range a.AllowedDependencies {
		if !ref.Module.Equal(b.Identifier) {
			continue
		}
		if ref.Interface == "" {
			return true // bare "module" allows its unnamed-and-beyond default interface set
		}
		for _, iface := range ifaces {
			if ref.Interface == iface {
				return true
			}
		}
	}
	return false
}

// verifyNoBypassingAllowList is rule 2: if A lists any dependencies, every
// outbound module reference must be whitelisted (module or
// module::interface), independent of whether the type itself is exposed
// (rule 1 already covers the exposure half; this covers modules A never
// declared at all).
func verifyNoBypassingAllowList(ams *ApplicationModules, a *ApplicationModule, vs *Violations) {
	if !a.HasExplicitAllowedDependencies() {
		return
	}
	for _, dep := range ams.Dependencies(a) {
		if dep.Target.Equal(a.Identifier) {
			continue
		}
		allowed := false
		for _, ref := range a.AllowedDependencies {
			if ref.Module.Equal(dep.Target) {
				allowed = true
				break
			}
		}
		if !allowed {
			vs.add("no-bypassing-allow-list", fmt.Sprintf(
				"module %s depends on module %s, which is not listed in %s's allowedDependencies",
				a.Identifier, dep.Target, a.Identifier))
		}
	}
}

// verifyNoCycles is rule 3: no cycles across non-listener edges, computed
// via Tarjan's SCC over the dependency graph with EVENT_LISTENER edges
// removed.
func verifyNoCycles(ams *ApplicationModules, vs *Violations) {
	for _, scc := range StronglyConnectedComponents(ams) {
		sort.Strings(scc)
		vs.add("no-cycles", fmt.Sprintf(
			"cyclic dependency detected across modules: %s", strings.Join(scc, " -> ")))
	}
}

// verifyNoFieldInjection is rule 4: field injection into Spring-managed
// beans is rejected, with the offending field named.
func verifyNoFieldInjection(ams *ApplicationModules, m *ApplicationModule, vs *Violations) {
	idx := ams.Index()
	for _, typeName := range m.Classes {
		t, ok := idx.TypeByName(typeName)
		if !ok {
			continue
		}
		for _, field := range t.PublicFieldInjections {
			vs.add("no-field-injection", fmt.Sprintf(
				"module %s: type %s uses field injection on field %q; use constructor or setter injection instead",
				m.Identifier, typeName, field))
		}
	}
}

// verifyNamedInterfaceReferencesExist is rule 5: a reference to
// module::X where X is not a declared named interface of module fails,
// enumerating the allowed targets.
func verifyNamedInterfaceReferencesExist(ams *ApplicationModules, m *ApplicationModule, vs *Violations) {
	for _, ref := range m.AllowedDependencies {
		if ref.Interface == "" {
			continue
		}
		target, ok := ams.GetModuleByName(ref.Module.String())
		if !ok {
			continue // unknown module is already a fatal ConfigurationError
		}
		if _, ok := target.NamedInterfaceByName(ref.Interface); !ok {
			vs.add("named-interface-reference-must-exist", fmt.Sprintf(
				"module %s declares allowedDependencies on %s::%s, but %s has no named interface %q (allowed targets: %s)",
				m.Identifier, ref.Module, ref.Interface, ref.Module, ref.Interface, strings.Join(target.NamedInterfaceNames(), ", ")))
		}
	}
}
