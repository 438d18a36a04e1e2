package module

import (
	"encoding/json"
)

// exportedDependency is one entry in a module's "dependencies" array.
type exportedDependency struct {
	Target string   `json:"target"`
	Types  []string `json:"types"`
}

// exportedModule is one value in the top-level export map. NamedInterfaces
// is omitted entirely in "simple" exports (encoding/json drops a nil map
// field only with omitempty, which we rely on here).
type exportedModule struct {
	DisplayName     string              `json:"displayName"`
	BasePackage     string              `json:"basePackage"`
	NamedInterfaces map[string][]string `json:"namedInterfaces,omitempty"`
	Dependencies    []exportedDependency `json:"dependencies"`
}

// ExportJSON renders the §6 module-graph JSON export. full=false produces
// the "simple" variant (no namedInterfaces key); full=true includes it.
// Top-level keys are sorted alphabetically, as json.Marshal does for a map;
// ExportOrderedJSON keeps module insertion (detection) order instead.
func (ams *ApplicationModules) ExportJSON(full bool) ([]byte, error) {
	out := make(map[string]exportedModule, len(ams.modules))
	for _, m := range ams.modules {
		out[m.Identifier.String()] = buildExportedModule(ams, m, full)
	}
	return json.Marshal(out)
}

// ExportOrderedJSON renders the same payload as ExportJSON but with
// top-level keys in module insertion (detection) order, matching §6's
// requirement precisely (Go maps do not preserve key order, so this writes
// the object by hand).
func (ams *ApplicationModules) ExportOrderedJSON(full bool) ([]byte, error) {
	buf := []byte{'{'}
	for i, m := range ams.modules {
		if i > 0 {
			buf = append(buf, ',')
		}
		key, err := json.Marshal(m.Identifier.String())
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(buildExportedModule(ams, m, full))
		if err != nil {
			return nil, err
		}
		buf = append(buf, key...)
		buf = append(buf, ':')
		buf = append(buf, val...)
	}
	buf = append(buf, '}')
	return buf, nil
}

func buildExportedModule(ams *ApplicationModules, m *ApplicationModule, full bool) exportedModule {
	em := exportedModule{
		DisplayName: m.DisplayName,
		BasePackage: m.BasePackage,
	}

	if full {
		em.NamedInterfaces = make(map[string][]string, len(m.NamedInterfaces))
		for _, ni := range m.NamedInterfaces {
			em.NamedInterfaces[ni.Name] = ni.Types
		}
	}

	for _, dep := range ams.Dependencies(m) {
		types := make([]string, 0, len(dep.Types))
		for _, t := range dep.Types {
			types = append(types, string(t))
		}
		em.Dependencies = append(em.Dependencies, exportedDependency{
			Target: dep.Target.String(),
			Types:  types,
		})
	}

	return em
}
