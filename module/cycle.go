package module

// tarjan computes the strongly connected components of the dependency
// graph restricted to non-listener edges (events decouple modules, so
// EVENT_LISTENER edges never participate in cycle detection). A component
// with more than one module is a cycle.
type tarjan struct {
	ams     *ApplicationModules
	index   map[string]int
	lowlink map[string]int
	onStack map[string]bool
	stack   []string
	counter int
	sccs    [][]string
}

// nonListenerEdges returns the distinct target module identifiers m
// depends on via any edge that is not purely EVENT_LISTENER.
func nonListenerEdges(ams *ApplicationModules, m *ApplicationModule) []string {
	var out []string
	for _, dep := range ams.Dependencies(m) {
		onlyListener := len(dep.Types) == 1 && dep.Types[0] == DependencyEventListener
		if !onlyListener {
			out = append(out, dep.Target.String())
		}
	}
	return out
}

// StronglyConnectedComponents runs Tarjan's algorithm over the
// non-listener dependency graph and returns every component containing
// more than one module (i.e. every cycle).
func StronglyConnectedComponents(ams *ApplicationModules) [][]string {
	t := &tarjan{
		ams:     ams,
		index:   map[string]int{},
		lowlink: map[string]int{},
		onStack: map[string]bool{},
	}
	for _, m := range ams.Modules() {
		id := m.Identifier.String()
		if _, seen := t.index[id]; !seen {
			t.strongConnect(id)
		}
	}

	var cycles [][]string
	for _, scc := range t.sccs {
		if len(scc) > 1 {
			cycles = append(cycles, scc)
		} else if len(scc) == 1 {
			// A single-module component is a cycle only if it has a
			// self-edge.
			if m, ok := ams.GetModuleByName(scc[0]); ok {
				for _, target := range nonListenerEdges(ams, m) {
					if target == scc[0] {
						cycles = append(cycles, scc)
						break
					}
				}
			}
		}
	}
	return cycles
}

func (t *tarjan) strongConnect(id string) {
	t.index[id] = t.counter
	t.lowlink[id] = t.counter
	t.counter++
	t.stack = append(t.stack, id)
	t.onStack[id] = true

	m, ok := t.ams.GetModuleByName(id)
	if ok {
		for _, target := range nonListenerEdges(t.ams, m) {
			if _, seen := t.index[target]; !seen {
				t.strongConnect(target)
				if t.lowlink[target] < t.lowlink[id] {
					t.lowlink[id] = t.lowlink[target]
				}
			} else if t.onStack[target] {
				if t.index[target] < t.lowlink[id] {
					t.lowlink[id] = t.index[target]
				}
			}
		}
	}

	if t.lowlink[id] == t.index[id] {
		var component []string
		for {
			n := len(t.stack) - 1
			top := t.stack[n]
			t.stack = t.stack[:n]
			t.onStack[top] = false
			component = append(component, top)
			if top == id {
				break
			}
		}
		t.sccs = append(t.sccs, component)
	}
}
