package shadowgraph

import "github.com/hashgraph-io/shadowgraph/internal/event"

// Predicate decides whether a candidate ancestor belongs in a
// findAncestors result set. It must not block and must not call back
// into the graph (it runs on the lock-free traversal path).
type Predicate func(se *ShadowEvent) bool

// FindAncestors computes the ancestor closure of sources via
// self-parent and other-parent links, per spec §4.1. It is the single
// ShadowGraph read operation that runs without holding the graph's
// mutex: correctness relies on (a) the caller holding a reservation
// that protects the traversal window from expiry, (b) link fields
// being published atomically at insertion, and (c) a nil parent
// pointer being a legitimate traversal terminator rather than an
// error.
//
// Each node is visited at most once across all sources. Sources
// themselves are never included in the result. Traversal stops at a
// node that is Expired or that predicate rejects.
func FindAncestors(sources []*ShadowEvent, predicate Predicate) map[event.Hash]*ShadowEvent {
	result := make(map[event.Hash]*ShadowEvent)
	visited := make(map[event.Hash]struct{})

	type frame = *ShadowEvent
	var stack []frame

	for _, src := range sources {
		if src == nil {
			continue
		}
		visited[src.Hash()] = struct{}{}
		pushParents(src, &stack)
	}

	for len(stack) > 0 {
		n := len(stack) - 1
		se := stack[n]
		stack = stack[:n]

		h := se.Hash()
		if _, seen := visited[h]; seen {
			continue
		}
		visited[h] = struct{}{}

		if se.State() == Expired {
			continue
		}
		if !predicate(se) {
			continue
		}

		result[h] = se
		pushParents(se, &stack)
	}

	return result
}

func pushParents(se *ShadowEvent, stack *[]*ShadowEvent) {
	if sp := se.SelfParent(); sp != nil {
		*stack = append(*stack, sp)
	}
	if op := se.OtherParent(); op != nil {
		*stack = append(*stack, op)
	}
}
