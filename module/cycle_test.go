package module

import "testing"

func TestVerifyDetectsCycle(t *testing.T) {
	orderApi := typ("app.orders.api.OrderApi", "app.orders.api", iface("api"))
	orderApi.ReferencedTypes = []string{"app.catalog.api.CatalogApi"}

	catalogApi := typ("app.catalog.api.CatalogApi", "app.catalog.api", iface("api"))
	catalogApi.ReferencedTypes = []string{"app.orders.api.OrderApi"}

	idx := NewIndex([]Type{orderApi, catalogApi})
	ams, err := Of(idx, []string{"app"}, DirectSubPackages{}, nil)
	if err != nil {
		t.Fatalf("Of() error = %v", err)
	}

	vs := Verify(ams)
	found := false
	for _, msg := range vs.Messages() {
		if contains(msg, "cyclic") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a cycle violation, got %v", vs.Messages())
	}
}

func TestCycleExclusionOfListenerEdges(t *testing.T) {
	orderApi := typ("app.orders.api.OrderApi", "app.orders.api", iface("api"))
	orderApi.ListenerOf = []string{"app.catalog.api.CatalogApi"}

	catalogApi := typ("app.catalog.api.CatalogApi", "app.catalog.api", iface("api"))
	catalogApi.ListenerOf = []string{"app.orders.api.OrderApi"}

	idx := NewIndex([]Type{orderApi, catalogApi})
	ams, err := Of(idx, []string{"app"}, DirectSubPackages{}, nil)
	if err != nil {
		t.Fatalf("Of() error = %v", err)
	}

	cycles := StronglyConnectedComponents(ams)
	if len(cycles) != 0 {
		t.Fatalf("expected no cycles when every edge is EVENT_LISTENER, got %v", cycles)
	}
}
