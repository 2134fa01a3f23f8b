// Package syncthrottle implements the two small concurrency-control
// collaborators a synchronizer needs per spec §4.4–§4.5:
// SimultaneousSyncThrottle (per-peer exclusivity + inbound cap) and
// FallenBehindManager (peer-report accumulation for "we've fallen
// behind the network").
package syncthrottle

import (
	"sync"
	"sync/atomic"

	"github.com/hashgraph-io/shadowgraph/internal/event"
)

// Lease is returned by a successful TrySync and must be released
// exactly once, normally via defer, to free the peer lock and
// decrement the counters it incremented.
type Lease struct {
	release func()
	once    sync.Once
}

// Release is idempotent: a second call is a safe no-op so a deferred
// release composed with an explicit early release cannot double-count.
func (l *Lease) Release() {
	l.once.Do(l.release)
}

// SimultaneousSyncThrottle prevents two concurrent syncs with the same
// peer, caps the number of concurrently accepted inbound (listener)
// syncs, and exposes global sync counts.
//
// Per-peer exclusivity is implemented with capacity-1 channels rather
// than sync.Mutex: the public entry point only ever attempts a
// non-blocking acquire (spec §5: "no blocking waits on the fast
// path"), and a buffered channel's select/default is the idiomatic Go
// shape for that, whereas sync.Mutex has no portable non-blocking
// TryLock equivalent usable the same way across the module's target
// Go version.
type SimultaneousSyncThrottle struct {
	mu               sync.Mutex
	perPeerLocks     map[event.NodeID]chan struct{}
	maxListenerSyncs int32

	numSyncs         atomic.Int64
	numListenerSyncs atomic.Int32
}

// New creates a throttle that rejects inbound syncs once
// numListenerSyncs exceeds maxListenerSyncs.
func New(maxListenerSyncs int) *SimultaneousSyncThrottle {
	return &SimultaneousSyncThrottle{
		perPeerLocks:     make(map[event.NodeID]chan struct{}),
		maxListenerSyncs: int32(maxListenerSyncs),
	}
}

func (t *SimultaneousSyncThrottle) lockFor(peer event.NodeID) chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	ch, ok := t.perPeerLocks[peer]
	if !ok {
		ch = make(chan struct{}, 1)
		t.perPeerLocks[peer] = ch
	}
	return ch
}

// TrySync attempts to reserve exclusive access to peer for one sync
// attempt. Returns (nil, false) if the peer is already mid-sync, or
// if isOutbound is false and the inbound cap is already exceeded.
//
// On success the returned Lease must be released when the sync
// completes (success, failure, or cancellation alike).
func (t *SimultaneousSyncThrottle) TrySync(peer event.NodeID, isOutbound bool) (*Lease, bool) {
	if !isOutbound && t.numListenerSyncs.Load() > t.maxListenerSyncs {
		return nil, false
	}

	lock := t.lockFor(peer)
	select {
	case lock <- struct{}{}:
	default:
		return nil, false
	}

	t.numSyncs.Add(1)
	if !isOutbound {
		t.numListenerSyncs.Add(1)
	}

	lease := &Lease{release: func() {
		<-lock
		t.numSyncs.Add(-1)
		if !isOutbound {
			t.numListenerSyncs.Add(-1)
		}
	}}
	return lease, true
}

// NumSyncs returns the current number of in-flight syncs (inbound and
// outbound combined).
func (t *SimultaneousSyncThrottle) NumSyncs() int64 {
	return t.numSyncs.Load()
}

// NumListenerSyncs returns the current number of in-flight inbound syncs.
func (t *SimultaneousSyncThrottle) NumListenerSyncs() int32 {
	return t.numListenerSyncs.Load()
}

// WaitForAllSyncsToFinish serially blocking-acquires and immediately
// releases every peer's lock, used at shutdown to ensure no sync is
// left mid-flight before the process exits.
func (t *SimultaneousSyncThrottle) WaitForAllSyncsToFinish() {
	t.mu.Lock()
	locks := make([]chan struct{}, 0, len(t.perPeerLocks))
	for _, ch := range t.perPeerLocks {
		locks = append(locks, ch)
	}
	t.mu.Unlock()

	for _, ch := range locks {
		ch <- struct{}{}
		<-ch
	}
}
