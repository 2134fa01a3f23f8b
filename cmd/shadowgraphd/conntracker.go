package main

import (
	"sync"

	"github.com/hashgraph-io/shadowgraph/internal/event"
)

// connTracker is the process's live view of which peers currently have
// an open sync connection, implementing syncthrottle.ReachableNeighbors
// for FallenBehindManager.GetNeighborsForReconnect.
type connTracker struct {
	mu        sync.RWMutex
	connected map[event.NodeID]int
}

func newConnTracker() *connTracker {
	return &connTracker{connected: make(map[event.NodeID]int)}
}

func (t *connTracker) markConnected(peer event.NodeID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected[peer]++
}

func (t *connTracker) markDisconnected(peer event.NodeID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.connected[peer] <= 1 {
		delete(t.connected, peer)
		return
	}
	t.connected[peer]--
}

// IsConnected implements syncthrottle.ReachableNeighbors.
func (t *connTracker) IsConnected(peer event.NodeID) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.connected[peer] > 0
}
