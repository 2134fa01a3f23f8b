package shadowgraph

import (
	"go.uber.org/zap"

	"github.com/hashgraph-io/shadowgraph/internal/event"
)

// ExpireBelow raises the expiry floor to newGeneration and then
// removes every fully-unprotected generation bucket it can, per spec
// §4.1's "Expiry" algorithm.
//
// Idempotent and self-healing: a newGeneration below the current
// expireBelow is logged and ignored rather than applied (spec §7,
// §9 Open Question — decrease requests are forbidden and surfaced
// only as a diagnostic, never as an error return, since expiry must
// never propagate errors).
func (g *ShadowGraph) ExpireBelow(newGeneration int64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if newGeneration < g.expireBelowVal {
		g.log.Warn("ExpireBelow: ignoring decrease request",
			zap.Int64("current", g.expireBelowVal),
			zap.Int64("requested", newGeneration))
		return
	}
	g.expireBelowVal = newGeneration

	g.pruneReservationsLocked()
	ceiling := g.expireBelowVal
	if len(g.reservations) > 0 {
		oldestReserved := g.reservations[0].Generation()
		if oldestReserved < ceiling {
			ceiling = oldestReserved
		}
	}

	removed := 0
	for g.oldestGeneration < ceiling {
		bucket, ok := g.generationIndex[g.oldestGeneration]
		if ok {
			for hash, se := range bucket {
				g.removeEventLocked(hash, se)
				removed++
			}
			delete(g.generationIndex, g.oldestGeneration)
		}
		g.oldestGeneration++
	}

	if removed > 0 {
		g.metrics.ObserveExpired(removed)
	}
	g.observeSizesLocked()
}

// removeEventLocked deletes a single event's bookkeeping and nulls any
// surviving children's dangling parent pointer to it. Must be called
// with mu held.
func (g *ShadowGraph) removeEventLocked(hash event.Hash, se *ShadowEvent) {
	delete(g.hashIndex, hash)
	delete(g.tips, hash)

	for childHash, child := range se.selfChildren {
		if child.SelfParent() == se {
			child.selfParent.Store(nil)
		}
		_ = childHash
	}
	for childHash, child := range se.otherChildren {
		if child.OtherParent() == se {
			child.otherParent.Store(nil)
		}
		_ = childHash
	}

	se.disconnect()
	se.state.Store(int32(Expired))
}

// pruneReservationsLocked drops zero-refcount reservation entries at
// the head of the ordered list that sit below the current
// expireBelow. Must be called with mu held.
func (g *ShadowGraph) pruneReservationsLocked() {
	i := 0
	for i < len(g.reservations) {
		r := g.reservations[i]
		if r.Generation() >= g.expireBelowVal {
			break
		}
		if r.Refcount() > 0 {
			break
		}
		i++
	}
	if i > 0 {
		g.reservations = g.reservations[i:]
	}
}

// Reserve atomically acquires a reservation at the current
// expireBelow floor. If the tail reservation entry already tracks
// that generation, its refcount is incremented instead of appending a
// new entry (spec §4.2 coalescing rule).
func (g *ShadowGraph) Reserve() *GenerationReservation {
	g.mu.Lock()
	defer g.mu.Unlock()

	if n := len(g.reservations); n > 0 {
		tail := g.reservations[n-1]
		if tail.Generation() == g.expireBelowVal {
			tail.incrementRefcount()
			return tail
		}
	}

	r := newReservation(g.expireBelowVal, g.log)
	g.reservations = append(g.reservations, r)
	g.observeSizesLocked()
	return r
}
