package module

import "testing"

func TestIndexExcludesGeneratedTypes(t *testing.T) {
	idx := NewIndex([]Type{
		typ("app.orders.OrderService", "app.orders"),
		typ("app.orders.OrderService$$SpringCGLIBProxy", "app.orders"),
		typ("app.orders.Order__Stub", "app.orders"),
	})

	got := idx.TypesIn("app.orders")
	if len(got) != 1 {
		t.Fatalf("expected 1 non-generated type, got %d: %v", len(got), got)
	}
	if got[0].FQName != "app.orders.OrderService" {
		t.Errorf("got %s", got[0].FQName)
	}
}

func TestFindAnnotationAmbiguous(t *testing.T) {
	idx := NewIndex([]Type{
		typ("app.orders.A", "app.orders", iface("api")),
		typ("app.orders.B", "app.orders", iface("api")),
	})

	_, err := idx.FindAnnotation("app.orders", "NamedInterface")
	if err == nil {
		t.Fatal("expected ambiguous annotation error")
	}
	if _, ok := err.(*ErrAmbiguousAnnotation); !ok {
		t.Fatalf("expected *ErrAmbiguousAnnotation, got %T: %v", err, err)
	}
}

func TestFindAnnotationSingle(t *testing.T) {
	idx := NewIndex([]Type{
		typ("app.orders.A", "app.orders", iface("api")),
		typ("app.orders.B", "app.orders"),
	})

	ann, err := idx.FindAnnotation("app.orders", "NamedInterface")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ann == nil {
		t.Fatal("expected annotation to be found")
	}
	if v, _ := ann.Value("value"); v != "api" {
		t.Errorf("got %q", v)
	}
}

func TestFindAnnotationNone(t *testing.T) {
	idx := NewIndex([]Type{typ("app.orders.A", "app.orders")})
	ann, err := idx.FindAnnotation("app.orders", "NamedInterface")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ann != nil {
		t.Fatalf("expected nil annotation, got %+v", ann)
	}
}
