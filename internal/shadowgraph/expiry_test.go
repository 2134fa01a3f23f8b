package shadowgraph

import "testing"

// TestExpireBelow_Monotone exercises P3: expireBelow never decreases.
func TestExpireBelow_Monotone(t *testing.T) {
	g := newTestGraph()
	chain := linearChain("mono", 1, 20)
	if err := g.InitFrom(chain, 1); err != nil {
		t.Fatalf("InitFrom: %v", err)
	}

	g.ExpireBelow(10)
	if g.ExpireBelowValue() != 10 {
		t.Fatalf("expected expireBelow 10, got %d", g.ExpireBelowValue())
	}

	g.ExpireBelow(5) // decrease request must be ignored
	if g.ExpireBelowValue() != 10 {
		t.Fatalf("expireBelow must not decrease: got %d", g.ExpireBelowValue())
	}

	g.ExpireBelow(15)
	if g.ExpireBelowValue() != 15 {
		t.Fatalf("expected expireBelow 15, got %d", g.ExpireBelowValue())
	}
}

// TestExpiry_WithReservation exercises P2/S4: a live reservation
// protects its generation floor from expiry until closed.
func TestExpiry_WithReservation(t *testing.T) {
	g := newTestGraph()
	chain := linearChain("resv", 0, 21) // generations 0..20
	if err := g.InitFrom(chain, 0); err != nil {
		t.Fatalf("InitFrom: %v", err)
	}

	g.ExpireBelow(10) // removes generations 0..9, floor now at 10
	reservation := g.Reserve() // reserves at current expireBelow (10)

	g.ExpireBelow(15) // blocked by the open reservation at generation 10

	if g.OldestGeneration() != 10 {
		t.Fatalf("reservation at generation 10 should block further expiry, got oldestGeneration=%d", g.OldestGeneration())
	}
	for i := 0; i < 10; i++ {
		if g.IsHashInGraph(chain[i].BaseHash) {
			t.Fatalf("event at generation %d should already be expired", i)
		}
	}
	for i := 10; i < 21; i++ {
		if !g.IsHashInGraph(chain[i].BaseHash) {
			t.Fatalf("event at generation %d should still be present while reservation is open", i)
		}
	}

	reservation.Close()
	g.ExpireBelow(15)

	if g.OldestGeneration() != 15 {
		t.Fatalf("expected oldestGeneration 15 after reservation close, got %d", g.OldestGeneration())
	}
	for i := 0; i < 15; i++ {
		if g.IsHashInGraph(chain[i].BaseHash) {
			t.Fatalf("event at generation %d should have been expired", i)
		}
	}
	for i := 15; i < 21; i++ {
		if !g.IsHashInGraph(chain[i].BaseHash) {
			t.Fatalf("event at generation %d should still be present", i)
		}
	}
}

// TestExpiry_DanglingParentNulled verifies that expiring a parent
// nulls the surviving child's link rather than leaving a stale
// pointer (spec invariant I6).
func TestExpiry_DanglingParentNulled(t *testing.T) {
	g := newTestGraph()
	chain := linearChain("dangle", 0, 5)
	if err := g.InitFrom(chain, 0); err != nil {
		t.Fatalf("InitFrom: %v", err)
	}

	g.ExpireBelow(2)

	survivor, ok := g.Shadow(chain[2].BaseHash)
	if !ok {
		t.Fatal("survivor should remain in graph")
	}
	if survivor.SelfParent() != nil {
		t.Fatal("survivor's self-parent link should be nulled once the parent expires")
	}
}

func TestExpireBelowValueAndOldestGeneration_ZeroGraph(t *testing.T) {
	g := newTestGraph()
	if g.ExpireBelowValue() != 0 {
		t.Fatal("expected zero-valued expireBelow on an empty graph")
	}
	if g.OldestGeneration() != 0 {
		t.Fatal("expected zero-valued oldestGeneration on an empty graph")
	}
}
