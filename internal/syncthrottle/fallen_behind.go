package syncthrottle

import (
	"sync"

	"github.com/hashgraph-io/shadowgraph/internal/event"
)

// ReachableNeighbors is consulted by GetNeighborsForReconnect to
// intersect the set of peers that reported us fallen-behind with the
// set we can currently reach. Kept as an injected collaborator rather
// than a direct dependency on a connection manager, per DESIGN NOTES
// §9's "inject as explicit collaborators" rule.
type ReachableNeighbors interface {
	IsConnected(peer event.NodeID) bool
}

// FallenBehindManager aggregates neighbor reports that this node
// appears to have fallen behind them, per spec §4.5.
type FallenBehindManager struct {
	mu               sync.RWMutex
	reporters        map[event.NodeID]struct{}
	thresholdFrac    float64
	totalNeighbors   func() int
	reachable        ReachableNeighbors
}

// NewFallenBehindManager creates a FallenBehindManager. thresholdFraction
// is the fraction of neighbors whose reports trigger HasFallenBehind
// (spec §6's fallenBehindThresholdFraction). totalNeighbors returns the
// current neighbor count (a live collaborator, since membership can
// change).
func NewFallenBehindManager(thresholdFraction float64, totalNeighbors func() int, reachable ReachableNeighbors) *FallenBehindManager {
	return &FallenBehindManager{
		reporters:      make(map[event.NodeID]struct{}),
		thresholdFrac:  thresholdFraction,
		totalNeighbors: totalNeighbors,
		reachable:      reachable,
	}
}

// ReportFallenBehind records that peer reported us fallen-behind.
// Deduplicated: reporting the same peer again before a reset has no
// additional effect.
func (m *FallenBehindManager) ReportFallenBehind(peer event.NodeID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reporters[peer] = struct{}{}
}

// ResetFallenBehind clears all accumulated reports, called after a
// successful reconnect.
func (m *FallenBehindManager) ResetFallenBehind() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reporters = make(map[event.NodeID]struct{})
}

// HasFallenBehind reports true once the number of unique reporting
// peers exceeds thresholdFraction * totalNeighbors().
func (m *FallenBehindManager) HasFallenBehind() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	total := m.totalNeighbors()
	if total <= 0 {
		return false
	}
	threshold := m.thresholdFrac * float64(total)
	return float64(len(m.reporters)) > threshold
}

// GetNeighborsForReconnect returns the peers most likely to carry the
// history this node is missing: the reporters, intersected with
// currently-connected neighbors.
func (m *FallenBehindManager) GetNeighborsForReconnect() []event.NodeID {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]event.NodeID, 0, len(m.reporters))
	for peer := range m.reporters {
		if m.reachable == nil || m.reachable.IsConnected(peer) {
			out = append(out, peer)
		}
	}
	return out
}

// Reload updates the threshold fraction in place, for config hot-reload
// (spec §6 fallenBehindThresholdFraction is a non-destructive tunable).
func (m *FallenBehindManager) Reload(thresholdFraction float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.thresholdFrac = thresholdFraction
}

// ReporterCount returns the current number of unique reporting peers.
// Exposed for metrics and tests.
func (m *FallenBehindManager) ReporterCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.reporters)
}
