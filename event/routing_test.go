package event

import (
	"errors"
	"testing"
)

// TestParseRoutingTarget covers scenario S1 of the specification.
func TestParseRoutingTarget(t *testing.T) {
	cases := []struct {
		in        string
		wantTgt   string
		wantKey   string
		wantHasKey bool
		wantZero  bool
	}{
		{in: "target", wantTgt: "target", wantHasKey: false},
		{in: "target::", wantTgt: "target", wantKey: "", wantHasKey: true},
		{in: "target::key", wantTgt: "target", wantKey: "key", wantHasKey: true},
		{in: "  target :: key  ", wantTgt: "target", wantKey: "key", wantHasKey: true},
		{in: "", wantZero: true},
	}

	for _, c := range cases {
		rt := ParseRoutingTarget(c.in)
		if c.wantZero {
			if _, err := rt.ToRoutingTarget(); err == nil {
				t.Errorf("ParseRoutingTarget(%q): expected ToRoutingTarget to fail", c.in)
			}
			continue
		}
		if rt.Target() != c.wantTgt {
			t.Errorf("ParseRoutingTarget(%q).Target() = %q, want %q", c.in, rt.Target(), c.wantTgt)
		}
		key, hasKey := rt.Key()
		if hasKey != c.wantHasKey {
			t.Errorf("ParseRoutingTarget(%q) hasKey = %v, want %v", c.in, hasKey, c.wantHasKey)
		}
		if hasKey && key != c.wantKey {
			t.Errorf("ParseRoutingTarget(%q) key = %q, want %q", c.in, key, c.wantKey)
		}
		if _, err := rt.ToRoutingTarget(); err != nil {
			t.Errorf("ParseRoutingTarget(%q): unexpected ToRoutingTarget error: %v", c.in, err)
		}
	}
}

func TestRoutingTargetRoundTrip(t *testing.T) {
	inputs := []string{"target", "target::", "target::key"}
	for _, in := range inputs {
		rt := ParseRoutingTarget(in)
		if got := rt.String(); got != in {
			t.Errorf("round trip %q -> %q", in, got)
		}
	}
}

func TestRoutingTargetEmptyFailsToRoutingTarget(t *testing.T) {
	rt := ParseRoutingTarget("   ")
	_, err := rt.ToRoutingTarget()
	if !errors.Is(err, ErrNoRoutingTarget) {
		t.Fatalf("expected ErrNoRoutingTarget, got %v", err)
	}
}

func TestRoutingTargetHashCollision(t *testing.T) {
	a := ParseRoutingTarget("target")
	b := ParseRoutingTarget("target::")
	if a.Equal(b) {
		t.Fatal("expected target and target:: to compare unequal")
	}
	if a.Hash() != b.Hash() {
		t.Fatal("expected target and target:: to hash-collide, per the documented quirk")
	}
}

func TestHasKeyExpression(t *testing.T) {
	rt := ForTarget("orders").AndKey("#{payload.id}")
	if !rt.HasKeyExpression() {
		t.Fatal("expected key to be recognized as an expression")
	}
	plain := ForTarget("orders").AndKey("42")
	if plain.HasKeyExpression() {
		t.Fatal("expected plain key to not be recognized as an expression")
	}
}
