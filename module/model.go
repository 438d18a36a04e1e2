package module

import (
	"fmt"
	"sort"
	"strings"
)

// UnnamedInterface is the default named interface every module has,
// collecting all types in the base package's top level.
const UnnamedInterface = "unnamed"

// DependencyType tags a reference from one module to another. When more
// than one tag applies to the same edge, DEFAULT is dropped in favor of
// the more specific tag.
type DependencyType string

const (
	DependencyDefault                 DependencyType = "DEFAULT"
	DependencyUsesComponent           DependencyType = "USES_COMPONENT"
	DependencyEventListener           DependencyType = "EVENT_LISTENER"
	DependencyConfigurationProperties DependencyType = "CONFIGURATION_PROPERTIES"
)

// NamedInterface is a declared subset of a module's exposed types.
type NamedInterface struct {
	Name  string
	Types []string // fully qualified type names
}

// Dependency is one outbound edge from a module to a target
// module/interface, tagged with every DependencyType that applies.
type Dependency struct {
	Target ApplicationModuleIdentifier
	Types  []DependencyType
}

// ApplicationModule is a single detected module.
type ApplicationModule struct {
	Identifier          ApplicationModuleIdentifier
	DisplayName         string
	BasePackage         string
	AdditionalPackages  []string
	Open                bool
	AllowedDependencies []NamedInterfaceRef // nil means "any module"; empty non-nil means "none"
	NamedInterfaces     []NamedInterface
	Classes             []string // fully qualified type names owned by this module
}

// HasExplicitAllowedDependencies reports whether this module declared an
// allowedDependencies attribute at all (nil vs empty-but-declared matters:
// nil means unrestricted).
func (m *ApplicationModule) HasExplicitAllowedDependencies() bool {
	return m.AllowedDependencies != nil
}

// NamedInterfaceByName finds a declared named interface, including the
// implicit "unnamed" one.
func (m *ApplicationModule) NamedInterfaceByName(name string) (*NamedInterface, bool) {
	for i := range m.NamedInterfaces {
		if m.NamedInterfaces[i].Name == name {
			return &m.NamedInterfaces[i], true
		}
	}
	return nil, false
}

// NamedInterfaceNames returns every declared named interface name,
// including "unnamed", sorted for stable error messages.
func (m *ApplicationModule) NamedInterfaceNames() []string {
	names := make([]string, 0, len(m.NamedInterfaces))
	for _, ni := range m.NamedInterfaces {
		names = append(names, ni.Name)
	}
	sort.Strings(names)
	return names
}

// Exposes reports whether typeName belongs to any named interface of m (or
// m is Open, in which case every type is exposed).
func (m *ApplicationModule) Exposes(typeName string) bool {
	if m.Open {
		return true
	}
	for _, ni := range m.NamedInterfaces {
		for _, t := range ni.Types {
			if t == typeName {
				return true
			}
		}
	}
	return false
}

// NamedInterfacesExposing returns the names of every named interface that
// exposes typeName.
func (m *ApplicationModule) NamedInterfacesExposing(typeName string) []string {
	var out []string
	for _, ni := range m.NamedInterfaces {
		for _, t := range ni.Types {
			if t == typeName {
				out = append(out, ni.Name)
				break
			}
		}
	}
	return out
}

// Owns reports whether typeName is one of m's classes.
func (m *ApplicationModule) Owns(typeName string) bool {
	for _, c := range m.Classes {
		if c == typeName {
			return true
		}
	}
	return false
}

// DetectionStrategy decides how nested packages map to modules: which
// direct sub-packages of a root are themselves distinct modules.
type DetectionStrategy interface {
	// IsModule reports whether pkg, a direct sub-package of root, is
	// treated as its own module; a rejected pkg belongs to no module.
	IsModule(idx *Index, root, pkg string) bool
}

// DirectSubPackages treats every direct sub-package of the root as its own
// module: the default strategy.
type DirectSubPackages struct{}

func (DirectSubPackages) IsModule(idx *Index, root, pkg string) bool { return true }

// ExplicitlyAnnotated treats a direct sub-package as its own module only if
// it (or a type within it) carries the "@ApplicationModule"-equivalent
// annotation.
type ExplicitlyAnnotated struct {
	AnnotationName string
}

func (e ExplicitlyAnnotated) IsModule(idx *Index, root, pkg string) bool {
	name := e.AnnotationName
	if name == "" {
		name = "ApplicationModule"
	}
	ann, err := idx.FindAnnotation(pkg, name)
	return err == nil && ann != nil
}

// DiscoveryHookFunc adapts a plain function to DetectionStrategy, matching
// spec §4.2's "user-supplied via a discovery hook" strategy.
type DiscoveryHookFunc func(idx *Index, root, pkg string) bool

func (f DiscoveryHookFunc) IsModule(idx *Index, root, pkg string) bool { return f(idx, root, pkg) }

// ModulithicMetadata mirrors the optional @Modulithic-style annotation
// consumed while deriving the module set.
type ModulithicMetadata struct {
	SystemName          string
	AdditionalPackages  []string
	SharedModules       []string
	UseFullyQualifiedNames bool
}

// ApplicationModules is the ordered, immutable collection of detected
// modules plus the index they were derived from.
type ApplicationModules struct {
	modules []*ApplicationModule
	byID    map[string]*ApplicationModule
	typeMod map[string]*ApplicationModule // type FQName -> owning module
	index   *Index
}

// Of derives ApplicationModules from root packages and an Index, applying
// strategy to decide nested-module boundaries. Detection is deterministic
// for a given index/root/strategy: the same inputs always produce the same
// module set, ordering, and dependency edges (testable property 6).
func Of(idx *Index, roots []string, strategy DetectionStrategy, meta *ModulithicMetadata) (*ApplicationModules, error) {
	if strategy == nil {
		strategy = DirectSubPackages{}
	}

	ams := &ApplicationModules{
		byID:    make(map[string]*ApplicationModule),
		typeMod: make(map[string]*ApplicationModule),
		index:   idx,
	}

	for _, root := range roots {
		mods, err := detectModules(idx, root, strategy)
		if err != nil {
			return nil, err
		}
		for _, m := range mods {
			if _, exists := ams.byID[m.Identifier.String()]; exists {
				return nil, NewDuplicateModuleError(m.Identifier.String())
			}
			ams.modules = append(ams.modules, m)
			ams.byID[m.Identifier.String()] = m
		}
	}

	if meta != nil {
		for _, shared := range meta.SharedModules {
			if m, ok := ams.byID[shared]; ok {
				m.Open = true
			}
		}
	}

	for _, m := range ams.modules {
		for _, c := range m.Classes {
			ams.typeMod[c] = m
		}
	}

	if err := resolveAllowedDependencies(ams); err != nil {
		return nil, err
	}

	return ams, nil
}

// detectModules walks root's immediate sub-packages (including those that
// hold types only in nested packages) and builds one module for each that
// strategy.IsModule accepts. Sub-packages it rejects, and types declared in
// root itself, belong to no module.
func detectModules(idx *Index, root string, strategy DetectionStrategy) ([]*ApplicationModule, error) {
	allPkgs := idx.Packages(root)

	directSub := map[string]bool{}
	for _, p := range allPkgs {
		rel := strings.TrimPrefix(p, root+".")
		if rel == "" || rel == p {
			continue
		}
		if i := strings.Index(rel, "."); i >= 0 {
			rel = rel[:i]
		}
		directSub[root+"."+rel] = true
	}

	var moduleRoots []string
	for p := range directSub {
		if strategy.IsModule(idx, root, p) {
			moduleRoots = append(moduleRoots, p)
		}
	}
	sort.Strings(moduleRoots)

	var out []*ApplicationModule
	for _, mr := range moduleRoots {
		id, err := NewApplicationModuleIdentifier(lastSegment(mr))
		if err != nil {
			return nil, err
		}
		m, err := buildModule(idx, id, mr)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func lastSegment(pkg string) string {
	if i := strings.LastIndex(pkg, "."); i >= 0 {
		return pkg[i+1:]
	}
	return pkg
}

// buildModule derives named interfaces, allowed-dependency declarations
// and the owned-class set for the module rooted at basePkg.
func buildModule(idx *Index, id ApplicationModuleIdentifier, basePkg string) (*ApplicationModule, error) {
	m := &ApplicationModule{
		Identifier:  id,
		DisplayName: id.String(),
		BasePackage: basePkg,
	}

	openAnn, err := idx.FindAnnotation(basePkg, "ApplicationModule")
	if err != nil {
		return nil, err
	}
	if openAnn != nil {
		if v, ok := openAnn.Value("open"); ok && v == "true" {
			m.Open = true
		}
		if v, ok := openAnn.Value("displayName"); ok && v != "" {
			m.DisplayName = v
		}
		if vs, ok := openAnn.Values["additionalPackages"]; ok {
			m.AdditionalPackages = vs
		}
		if vs, ok := openAnn.Values["allowedDependencies"]; ok {
			m.AllowedDependencies = make([]NamedInterfaceRef, 0, len(vs))
			for _, v := range vs {
				ref, err := ParseNamedInterfaceRef(v)
				if err != nil {
					return nil, err
				}
				m.AllowedDependencies = append(m.AllowedDependencies, ref)
			}
		}
	}

	pkgs := idx.Packages(basePkg)
	for _, extra := range m.AdditionalPackages {
		pkgs = append(pkgs, idx.Packages(extra)...)
	}

	unnamed := NamedInterface{Name: UnnamedInterface}
	namedByName := map[string]*NamedInterface{}

	for _, pkg := range pkgs {
		pkgIfaceAnn, err := idx.FindAnnotation(pkg, "NamedInterface")
		if err != nil {
			return nil, err
		}

		for _, t := range idx.TypesIn(pkg) {
			m.Classes = append(m.Classes, t.FQName)

			names := typeNamedInterfaces(t, pkgIfaceAnn)
			if len(names) == 0 {
				if pkg == basePkg {
					unnamed.Types = append(unnamed.Types, t.FQName)
				}
				continue
			}
			for _, n := range names {
				ni, ok := namedByName[n]
				if !ok {
					namedByName[n] = &NamedInterface{Name: n}
					ni = namedByName[n]
				}
				ni.Types = append(ni.Types, t.FQName)
			}
		}
	}

	m.NamedInterfaces = append(m.NamedInterfaces, unnamed)
	names := make([]string, 0, len(namedByName))
	for n := range namedByName {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		m.NamedInterfaces = append(m.NamedInterfaces, *namedByName[n])
	}

	return m, nil
}

// typeNamedInterfaces resolves the named interfaces a type belongs to:
// either declared directly on the type, or via a package-level
// @NamedInterface annotation that enumerates member type names.
func typeNamedInterfaces(t *Type, pkgAnn *Annotation) []string {
	var names []string
	for _, a := range t.Annotations {
		if a.Name == "NamedInterface" {
			if vs, ok := a.Values["value"]; ok {
				names = append(names, vs...)
			} else {
				names = append(names, UnnamedInterface)
			}
		}
	}
	if pkgAnn != nil {
		if members, ok := pkgAnn.Values["members"]; ok {
			for _, mname := range members {
				if mname == baseName(t.FQName) {
					if v, ok := pkgAnn.Value("value"); ok {
						names = append(names, v)
					}
				}
			}
		}
	}
	return names
}

// resolveAllowedDependencies validates that every allowedDependencies entry
// names a module that actually exists in this detection pass; an entry
// naming a real module but an undeclared named interface is a Verifier
// concern (rule 5, a Violation, not a fatal error) since it depends on the
// shape of another module that may legitimately change independently.
func resolveAllowedDependencies(ams *ApplicationModules) error {
	for _, m := range ams.modules {
		for _, ref := range m.AllowedDependencies {
			if _, ok := ams.byID[ref.Module.String()]; !ok {
				return NewConfigError(fmt.Sprintf(
					"module %s declares allowedDependencies on unknown module %s", m.Identifier, ref.Module))
			}
		}
	}
	return nil
}

// Modules returns every detected module, in deterministic detection order.
func (ams *ApplicationModules) Modules() []*ApplicationModule {
	out := make([]*ApplicationModule, len(ams.modules))
	copy(out, ams.modules)
	return out
}

// GetModuleByName finds a module by its identifier string.
func (ams *ApplicationModules) GetModuleByName(id string) (*ApplicationModule, bool) {
	m, ok := ams.byID[id]
	return m, ok
}

// GetModuleByType finds the module owning typeName.
func (ams *ApplicationModules) GetModuleByType(typeName string) (*ApplicationModule, bool) {
	m, ok := ams.typeMod[typeName]
	return m, ok
}

// GetModuleForPackage finds the module whose base or additional packages
// contain pkg.
func (ams *ApplicationModules) GetModuleForPackage(pkg string) (*ApplicationModule, bool) {
	for _, m := range ams.modules {
		if m.BasePackage == pkg || strings.HasPrefix(pkg, m.BasePackage+".") {
			return m, true
		}
		for _, extra := range m.AdditionalPackages {
			if extra == pkg || strings.HasPrefix(pkg, extra+".") {
				return m, true
			}
		}
	}
	return nil, false
}

// Index returns the underlying Type/Package Index this model was derived
// from.
func (ams *ApplicationModules) Index() *Index { return ams.index }

// Dependencies computes the typed dependency edges from every module to
// the modules its owned types reference on their public surface. Multiple
// references to the same target module are merged into one Dependency with
// the union of DependencyTypes observed; DEFAULT is dropped whenever a more
// specific tag also applies to that edge.
func (ams *ApplicationModules) Dependencies(m *ApplicationModule) []Dependency {
	byTarget := map[string]map[DependencyType]bool{}

	classify := func(target *ApplicationModule, tags ...DependencyType) {
		if target.Identifier.Equal(m.Identifier) {
			return
		}
		key := target.Identifier.String()
		if byTarget[key] == nil {
			byTarget[key] = map[DependencyType]bool{}
		}
		for _, t := range tags {
			byTarget[key][t] = true
		}
	}

	for _, typeName := range m.Classes {
		t, ok := ams.index.TypeByName(typeName)
		if !ok {
			continue
		}
		for _, ref := range ams.index.ReferencedTypes(t) {
			target, ok := ams.typeMod[ref.FQName]
			if !ok {
				continue
			}
			tag := DependencyDefault
			for _, uc := range t.UsesComponents {
				if uc == ref.FQName {
					tag = DependencyUsesComponent
				}
			}
			if t.ConfigurationPropertiesOf {
				classify(target, tag, DependencyConfigurationProperties)
			} else {
				classify(target, tag)
			}
		}
		for _, evtType := range t.ListenerOf {
			if target, ok := ams.typeMod[evtType]; ok {
				classify(target, DependencyEventListener)
			}
		}
	}

	keys := make([]string, 0, len(byTarget))
	for k := range byTarget {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	deps := make([]Dependency, 0, len(keys))
	for _, k := range keys {
		tagSet := byTarget[k]
		if len(tagSet) > 1 {
			delete(tagSet, DependencyDefault)
		}
		var tags []DependencyType
		for _, t := range []DependencyType{DependencyUsesComponent, DependencyEventListener, DependencyConfigurationProperties, DependencyDefault} {
			if tagSet[t] {
				tags = append(tags, t)
			}
		}
		target, _ := NewApplicationModuleIdentifier(k)
		deps = append(deps, Dependency{Target: target, Types: tags})
	}
	return deps
}
