package shadowgraph

import (
	"sync/atomic"

	"go.uber.org/zap"
)

// GenerationReservation is a reference-counted hold on a generation
// floor. While at least one live reservation exists at generation g,
// the owning graph must not expire any event with generation >= g
// (spec invariant I4).
//
// Reservations for the same expireBelow value coalesce (refcount++)
// rather than creating a new list entry — see ShadowGraph.Reserve.
type GenerationReservation struct {
	generation int64
	refcount   atomic.Int32
	log        *zap.Logger
}

func newReservation(generation int64, log *zap.Logger) *GenerationReservation {
	r := &GenerationReservation{generation: generation, log: log}
	r.refcount.Store(1)
	return r
}

// Generation returns the generation this reservation protects.
func (r *GenerationReservation) Generation() int64 {
	return r.generation
}

// Refcount returns the current reference count. Safe for concurrent use.
func (r *GenerationReservation) Refcount() int {
	return int(r.refcount.Load())
}

// incrementRefcount is used only by ShadowGraph.Reserve when a new
// reservation request coalesces with the tail entry already tracking
// this generation.
func (r *GenerationReservation) incrementRefcount() {
	r.refcount.Add(1)
}

// Close decrements the refcount by one. Never panics. Safe to call
// from any goroutine, and safe to call once per Reserve() call that
// produced this pointer — coalesced reservations share one object, so
// each coalesced caller's Close() is a distinct decrement against the
// shared refcount rather than a per-object event. Closing beyond the
// number of outstanding holds (per spec §9, "undefined if closed
// twice") is, per DESIGN.md's Open Question decision, a logged no-op:
// the refcount is the only idempotency guard, and it never goes
// negative.
func (r *GenerationReservation) Close() {
	for {
		cur := r.refcount.Load()
		if cur <= 0 {
			if r.log != nil {
				r.log.Warn("generation reservation closed more times than reserved",
					zap.Int64("generation", r.generation))
			}
			return
		}
		if r.refcount.CompareAndSwap(cur, cur-1) {
			return
		}
	}
}
