package shadowgraph

import (
	"testing"

	"go.uber.org/zap"

	"github.com/hashgraph-io/shadowgraph/internal/event"
)

func newTestGraph() *ShadowGraph {
	return New(zap.NewNop(), NopMetrics{})
}

func TestAdd_Basic(t *testing.T) {
	g := newTestGraph()
	chain := linearChain("a", 1, 3)

	for i, ev := range chain {
		added, err := g.Add(&ev)
		if err != nil {
			t.Fatalf("event %d: unexpected error: %v", i, err)
		}
		if !added {
			t.Fatalf("event %d: expected added=true", i)
		}
	}

	if !g.IsHashInGraph(chain[0].BaseHash) {
		t.Fatal("first event should be in graph")
	}

	tips := g.GetTips()
	if len(tips) != 1 || tips[0].Hash() != chain[2].BaseHash {
		t.Fatalf("expected single tip at chain head, got %d tips", len(tips))
	}
}

func TestAdd_NullEvent(t *testing.T) {
	g := newTestGraph()
	added, err := g.Add(nil)
	if added {
		t.Fatal("expected added=false for nil event")
	}
	if err != ErrNullEvent {
		t.Fatalf("expected ErrNullEvent, got %v", err)
	}
}

func TestAdd_Duplicate(t *testing.T) {
	g := newTestGraph()
	ev := linearChain("dup", 1, 1)[0]

	added, err := g.Add(&ev)
	if !added || err != nil {
		t.Fatalf("first insert: added=%v err=%v", added, err)
	}

	added, err = g.Add(&ev)
	if added {
		t.Fatal("expected added=false on duplicate")
	}
	if err != ErrDuplicateShadow {
		t.Fatalf("expected ErrDuplicateShadow, got %v", err)
	}
}

func TestAdd_ExpiredGeneration(t *testing.T) {
	g := newTestGraph()
	chain := linearChain("e", 5, 3)
	if err := g.InitFrom(chain, 5); err != nil {
		t.Fatalf("InitFrom: %v", err)
	}

	stale := linearChain("stale", 1, 1)[0]
	added, err := g.Add(&stale)
	if added {
		t.Fatal("expected added=false for stale generation")
	}
	if err != ErrExpired {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

// TestAdd_ReciprocalLinks exercises P1: reciprocal parent/child links
// hold after insertion.
func TestAdd_ReciprocalLinks(t *testing.T) {
	g := newTestGraph()
	chain := linearChain("rl", 1, 4)
	for i := range chain {
		if _, err := g.Add(&chain[i]); err != nil {
			t.Fatalf("add %d: %v", i, err)
		}
	}

	for i := 1; i < len(chain); i++ {
		child, _ := g.Shadow(chain[i].BaseHash)
		parent, _ := g.Shadow(chain[i-1].BaseHash)
		if child.SelfParent() != parent {
			t.Fatalf("event %d: selfParent pointer mismatch", i)
		}
		if _, ok := parent.selfChildren[child.Hash()]; !ok {
			t.Fatalf("event %d: parent's selfChildren missing child", i)
		}
	}
}

func TestAdd_OtherParentLinks(t *testing.T) {
	g := newTestGraph()
	base := linearChain("base", 1, 1)[0]
	other := linearChain("other", 1, 1)[0]
	if _, err := g.Add(&base); err != nil {
		t.Fatal(err)
	}
	if _, err := g.Add(&other); err != nil {
		t.Fatal(err)
	}

	baseHash := base.BaseHash
	otherHash := other.BaseHash
	child := event.Event{
		BaseHash:        testHash("child"),
		SelfParentHash:  &baseHash,
		OtherParentHash: &otherHash,
		Generation:      2,
		CreatorID:       1,
	}
	if _, err := g.Add(&child); err != nil {
		t.Fatal(err)
	}

	childShadow, _ := g.Shadow(child.BaseHash)
	otherShadow, _ := g.Shadow(other.BaseHash)
	if childShadow.OtherParent() != otherShadow {
		t.Fatal("otherParent pointer mismatch")
	}
	if _, ok := otherShadow.otherChildren[child.BaseHash]; !ok {
		t.Fatal("other parent's otherChildren missing child")
	}
}

func TestAdd_MissingParentIsSoftDiagnostic(t *testing.T) {
	g := newTestGraph()
	missing := testHash("ghost")
	ev := event.Event{
		BaseHash:       testHash("orphan"),
		SelfParentHash: &missing,
		Generation:     1,
		CreatorID:      1,
	}

	added, err := g.Add(&ev)
	if !added || err != nil {
		t.Fatalf("missing parent must not block insertion: added=%v err=%v", added, err)
	}

	se, _ := g.Shadow(ev.BaseHash)
	if se.SelfParent() != nil {
		t.Fatal("self parent should be nil when the parent was never seen")
	}
}

func TestInitFrom_EmptyRejected(t *testing.T) {
	g := newTestGraph()
	if err := g.InitFrom(nil, 0); err == nil {
		t.Fatal("expected error for empty events")
	}
}

func TestInitFrom_PadsGenerationBuckets(t *testing.T) {
	g := newTestGraph()
	chain := linearChain("pad", 10, 2)
	if err := g.InitFrom(chain, 5); err != nil {
		t.Fatalf("InitFrom: %v", err)
	}
	if g.OldestGeneration() != 10 {
		t.Fatalf("expected oldestGeneration 10, got %d", g.OldestGeneration())
	}
	if g.ExpireBelowValue() != 10 {
		t.Fatalf("expected expireBelow 10, got %d", g.ExpireBelowValue())
	}
	for gen := int64(5); gen < 10; gen++ {
		if _, ok := g.generationIndex[gen]; !ok {
			t.Fatalf("expected padded bucket for generation %d", gen)
		}
	}
}

func TestShadows_PreservesOrderAndMisses(t *testing.T) {
	g := newTestGraph()
	chain := linearChain("sh", 1, 2)
	for i := range chain {
		if _, err := g.Add(&chain[i]); err != nil {
			t.Fatal(err)
		}
	}
	miss := testHash("missing")
	out := g.Shadows([]event.Hash{chain[1].BaseHash, miss, chain[0].BaseHash})
	if out[0].Hash() != chain[1].BaseHash {
		t.Fatal("position 0 mismatch")
	}
	if out[1] != nil {
		t.Fatal("expected nil for miss")
	}
	if out[2].Hash() != chain[0].BaseHash {
		t.Fatal("position 2 mismatch")
	}
}

func TestClear_ResetsState(t *testing.T) {
	g := newTestGraph()
	chain := linearChain("cl", 1, 3)
	for i := range chain {
		if _, err := g.Add(&chain[i]); err != nil {
			t.Fatal(err)
		}
	}
	g.Clear()
	if len(g.GetTips()) != 0 {
		t.Fatal("expected no tips after Clear")
	}
	if g.IsHashInGraph(chain[0].BaseHash) {
		t.Fatal("expected empty graph after Clear")
	}
}
