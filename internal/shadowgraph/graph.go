// Package shadowgraph implements the replicated, in-memory directed
// acyclic graph of hashgraph events (the "shadow graph") described in
// spec §3–§4.1: hash-indexed storage, parent/child linkage, tip
// tracking, generation-bounded expiry, and reference-counted
// reservations that pin a generation floor against expiry.
package shadowgraph

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/hashgraph-io/shadowgraph/internal/event"
)

// GraphMetrics receives point-in-time observations from a ShadowGraph.
// Implementations must be cheap and non-blocking; the graph calls
// these synchronously while holding its lock. Pass a no-op
// implementation if metrics are not wanted — the graph never reaches
// for a process-wide singleton.
type GraphMetrics interface {
	SetTipCount(n int)
	SetEventCount(n int)
	SetReservationCount(n int)
	ObserveInsert()
	ObserveDuplicate()
	ObserveExpired(count int)
	ObserveMissingParent()
}

// NopMetrics discards every observation. Useful for tests and for
// callers that do not want Prometheus wired in.
type NopMetrics struct{}

func (NopMetrics) SetTipCount(int)        {}
func (NopMetrics) SetEventCount(int)      {}
func (NopMetrics) SetReservationCount(int) {}
func (NopMetrics) ObserveInsert()          {}
func (NopMetrics) ObserveDuplicate()       {}
func (NopMetrics) ObserveExpired(int)      {}
func (NopMetrics) ObserveMissingParent()   {}

type generationBucket = map[event.Hash]*ShadowEvent

// ShadowGraph is the DAG storage component. Every mutating operation
// and every read that must observe a consistent set of links holds
// mu; findAncestors is the one exception, per spec §5.
type ShadowGraph struct {
	mu sync.Mutex

	hashIndex       map[event.Hash]*ShadowEvent
	generationIndex map[int64]generationBucket
	tips            map[event.Hash]*ShadowEvent

	expireBelowVal   int64
	oldestGeneration int64
	reservations     []*GenerationReservation

	log     *zap.Logger
	metrics GraphMetrics
}

// New constructs an empty ShadowGraph. log and metrics must not be
// nil; pass zap.NewNop() / NopMetrics{} if unwanted.
func New(log *zap.Logger, metrics GraphMetrics) *ShadowGraph {
	return &ShadowGraph{
		hashIndex:       make(map[event.Hash]*ShadowEvent),
		generationIndex: make(map[int64]generationBucket),
		tips:            make(map[event.Hash]*ShadowEvent),
		log:             log,
		metrics:         metrics,
	}
}

// InitFrom bootstraps the graph from a generation-ascending sequence
// of events, per spec §4.1. oldestGeneration and expireBelow are set
// to events[0].Generation, each event is inserted via the normal add
// path (per-event insertion errors are logged, not fatal), and empty
// generation buckets are padded down to minGeneration so later queries
// never miss a bucket inside the non-expired window.
//
// Returns ErrInvalidArgument if events is empty.
func (g *ShadowGraph) InitFrom(events []event.Event, minGeneration int64) error {
	if len(events) == 0 {
		return fmt.Errorf("shadowgraph.InitFrom: %w: events must not be empty", ErrInvalidArgument)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	first := int64(events[0].Generation)
	g.oldestGeneration = first
	g.expireBelowVal = first

	for _, ev := range events {
		if _, err := g.addLocked(ev); err != nil {
			g.log.Warn("InitFrom: event insertion failed during bootstrap",
				zap.String("hash", ev.BaseHash.Short()),
				zap.Error(err))
		}
	}

	for gen := minGeneration; gen < first; gen++ {
		if _, ok := g.generationIndex[gen]; !ok {
			g.generationIndex[gen] = make(generationBucket)
		}
	}

	g.observeSizesLocked()
	return nil
}

// Add inserts event ev, returning true iff it was inserted. Returns an
// error for NullEvent/DuplicateShadow/Expired — missing parents are a
// diagnostic, not a hard failure (see spec §4.1 "policy below" and
// DESIGN.md's Open Question decision: soft diagnostic, always, not
// just post-bootstrap).
func (g *ShadowGraph) Add(ev *event.Event) (bool, error) {
	if ev == nil {
		return false, ErrNullEvent
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.addLocked(*ev)
}

func (g *ShadowGraph) addLocked(ev event.Event) (bool, error) {
	status := g.insertableLocked(ev)
	switch status {
	case insertNullEvent:
		return false, ErrNullEvent
	case insertDuplicate:
		g.metrics.ObserveDuplicate()
		return false, ErrDuplicateShadow
	case insertExpired:
		return false, ErrExpired
	}

	se := newShadowEvent(ev)

	if ev.SelfParentHash != nil {
		if parent, ok := g.hashIndex[*ev.SelfParentHash]; ok {
			se.selfParent.Store(parent)
			parent.selfChildren[ev.BaseHash] = se
			delete(g.tips, parent.Hash())
		} else if !g.parentLegitimatelyPurged(*ev.SelfParentHash) {
			g.log.Debug("add: self-parent not found in graph",
				zap.String("event", ev.BaseHash.Short()),
				zap.String("self_parent", ev.SelfParentHash.Short()))
			g.metrics.ObserveMissingParent()
		}
	}

	if ev.OtherParentHash != nil {
		if parent, ok := g.hashIndex[*ev.OtherParentHash]; ok {
			se.otherParent.Store(parent)
			parent.otherChildren[ev.BaseHash] = se
		} else if !g.parentLegitimatelyPurged(*ev.OtherParentHash) {
			g.log.Debug("add: other-parent not found in graph",
				zap.String("event", ev.BaseHash.Short()),
				zap.String("other_parent", ev.OtherParentHash.Short()))
			g.metrics.ObserveMissingParent()
		}
	}

	se.state.Store(int32(Inserted))
	g.hashIndex[ev.BaseHash] = se

	gen := int64(ev.Generation)
	bucket, ok := g.generationIndex[gen]
	if !ok {
		bucket = make(generationBucket)
		g.generationIndex[gen] = bucket
	}
	bucket[ev.BaseHash] = se

	g.tips[ev.BaseHash] = se

	g.metrics.ObserveInsert()
	g.observeSizesLocked()
	return true, nil
}

// parentLegitimatelyPurged always returns false: once a parent has been
// removed by expiry its generation is no longer known, so an absent
// parent removed by expiry cannot be told apart from one never seen.
// Every absent parent is therefore diagnosed and counted through
// ObserveMissingParent.
func (g *ShadowGraph) parentLegitimatelyPurged(parentHash event.Hash) bool {
	_ = parentHash
	return false
}

type insertStatus int

const (
	insertInsertable insertStatus = iota
	insertNullEvent
	insertDuplicate
	insertExpired
)

// insertableLocked classifies ev per spec §4.1. Must be called with
// mu held.
func (g *ShadowGraph) insertableLocked(ev event.Event) insertStatus {
	if ev.IsNil() {
		return insertNullEvent
	}
	if _, exists := g.hashIndex[ev.BaseHash]; exists {
		return insertDuplicate
	}
	if int64(ev.Generation) < g.oldestGeneration {
		return insertExpired
	}
	return insertInsertable
}

// Shadow looks up a single event by hash. O(1).
func (g *ShadowGraph) Shadow(hash event.Hash) (*ShadowEvent, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	se, ok := g.hashIndex[hash]
	return se, ok
}

// Shadows looks up a list of hashes, preserving order; misses are nil
// entries at their position.
func (g *ShadowGraph) Shadows(hashes []event.Hash) []*ShadowEvent {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]*ShadowEvent, len(hashes))
	for i, h := range hashes {
		out[i] = g.hashIndex[h]
	}
	return out
}

// GetTips returns a point-in-time snapshot of the current tip set,
// safe to range over without holding any lock.
func (g *ShadowGraph) GetTips() []*ShadowEvent {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]*ShadowEvent, 0, len(g.tips))
	for _, se := range g.tips {
		out = append(out, se)
	}
	return out
}

// IsHashInGraph reports whether hash is currently present.
func (g *ShadowGraph) IsHashInGraph(hash event.Hash) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.hashIndex[hash]
	return ok
}

// Clear resets the graph to empty, disconnecting every ShadowEvent
// from its links first to help the garbage collector reclaim any
// externally-held references sooner.
func (g *ShadowGraph) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, se := range g.hashIndex {
		se.disconnect()
		se.state.Store(int32(Expired))
	}
	g.hashIndex = make(map[event.Hash]*ShadowEvent)
	g.generationIndex = make(map[int64]generationBucket)
	g.tips = make(map[event.Hash]*ShadowEvent)
	g.expireBelowVal = 0
	g.oldestGeneration = 0
	g.reservations = nil
	g.observeSizesLocked()
}

// observeSizesLocked reports gauge-shaped metrics. Must be called with
// mu held.
func (g *ShadowGraph) observeSizesLocked() {
	g.metrics.SetTipCount(len(g.tips))
	g.metrics.SetEventCount(len(g.hashIndex))
	g.metrics.SetReservationCount(len(g.reservations))
}

// ExpireBelowValue returns the current expireBelow floor. Exposed for
// diagnostics and tests.
func (g *ShadowGraph) ExpireBelowValue() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.expireBelowVal
}

// OldestGeneration returns the smallest generation still physically
// present. Exposed for diagnostics and tests.
func (g *ShadowGraph) OldestGeneration() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.oldestGeneration
}
