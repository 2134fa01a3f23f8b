package shadowgraph

import (
	"sync/atomic"

	"github.com/hashgraph-io/shadowgraph/internal/event"
)

// LinkState is the lifecycle of a ShadowEvent inside its owning graph.
// Transitions are Detached -> Inserted -> Expired; Inserted -> Expired
// is the only transition after insertion, matching the escalation
// state machine's "escalation never decays past TERMINATED" shape,
// generalized to a two-step, one-way lifecycle.
type LinkState int32

const (
	// Detached is the transient state between construction and the
	// graph's bookkeeping (hashIndex/tips/generationIndex) being wired
	// in. No ShadowEvent is externally visible in this state.
	Detached LinkState = iota
	// Inserted means the event is live in the graph: reachable via
	// hashIndex, possibly a tip, possibly a parent of later events.
	Inserted
	// Expired means the event has been removed from the graph; its
	// parent links have been nulled and it must not be traversed.
	Expired
)

func (s LinkState) String() string {
	switch s {
	case Detached:
		return "detached"
	case Inserted:
		return "inserted"
	case Expired:
		return "expired"
	default:
		return "unknown"
	}
}

// ShadowEvent is the in-memory DAG node wrapping an immutable Event.
// Equality and hashing are defined by the underlying event's BaseHash;
// two ShadowEvents are the same node iff their BaseHash matches.
//
// selfParent/otherParent are stored as atomic pointers so that
// findAncestors (the one ShadowGraph method that runs without holding
// the graph's mutex, per spec §5) observes either the fully-wired
// parent or nil, never a torn value. Every other field is owned by
// the graph and is only ever touched while the graph's mutex is held.
type ShadowEvent struct {
	ev event.Event

	selfParent  atomic.Pointer[ShadowEvent]
	otherParent atomic.Pointer[ShadowEvent]

	// selfChildren/otherChildren are unordered; only mutated under the
	// owning graph's lock.
	selfChildren  map[event.Hash]*ShadowEvent
	otherChildren map[event.Hash]*ShadowEvent

	state atomic.Int32
}

func newShadowEvent(ev event.Event) *ShadowEvent {
	se := &ShadowEvent{
		ev:            ev,
		selfChildren:  make(map[event.Hash]*ShadowEvent),
		otherChildren: make(map[event.Hash]*ShadowEvent),
	}
	se.state.Store(int32(Detached))
	return se
}

// Event returns the wrapped, immutable Event.
func (se *ShadowEvent) Event() event.Event {
	return se.ev
}

// Hash returns the identity hash of the wrapped event.
func (se *ShadowEvent) Hash() event.Hash {
	return se.ev.BaseHash
}

// Generation returns the wrapped event's generation.
func (se *ShadowEvent) Generation() event.Generation {
	return se.ev.Generation
}

// State returns the current lifecycle state. Safe for concurrent use.
func (se *ShadowEvent) State() LinkState {
	return LinkState(se.state.Load())
}

// SelfParent returns the self-parent ShadowEvent, or nil if this event
// has no self-parent, its self-parent was never found in the graph, or
// its self-parent has since been expired (spec invariant I6: a nulled
// parent link is a legitimate traversal terminator, not an error).
// Safe to call without holding the graph's lock.
func (se *ShadowEvent) SelfParent() *ShadowEvent {
	return se.selfParent.Load()
}

// OtherParent returns the other-parent ShadowEvent, with the same
// nil-means-terminator semantics as SelfParent.
func (se *ShadowEvent) OtherParent() *ShadowEvent {
	return se.otherParent.Load()
}

// selfChildCount returns the number of self-children. Must be called
// with the owning graph's lock held (it is not itself synchronized).
func (se *ShadowEvent) selfChildCount() int {
	return len(se.selfChildren)
}

// disconnect severs every link field, helping the garbage collector
// and satisfying spec's "destruction nulls parent links of surviving
// children" requirement when called on a removed event's children.
// Must be called with the owning graph's lock held.
func (se *ShadowEvent) disconnect() {
	se.selfParent.Store(nil)
	se.otherParent.Store(nil)
	se.selfChildren = nil
	se.otherChildren = nil
}
