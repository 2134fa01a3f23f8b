package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hashgraph-io/shadowgraph/internal/event"
	"github.com/hashgraph-io/shadowgraph/internal/generations"
	"github.com/hashgraph-io/shadowgraph/internal/shadowgraph"
	"github.com/hashgraph-io/shadowgraph/internal/syncthrottle"
	"github.com/hashgraph-io/shadowgraph/internal/wire"
)

// EventIntake hands a received {hashedData, unhashedData} pair to the
// upstream collaborator that reconstructs and validates the full
// Event (hashing, signature checks) before admitting it to the graph.
// Event creation and cryptographic verification are out of scope for
// this module (spec §1); the synchronizer only routes bytes to this
// callback. Must be safe to call from the sync's reader goroutine.
type EventIntake func(peer event.NodeID, payload wire.EventPayload) error

// GenerationsProvider returns this node's current GraphGenerations
// view, read fresh for every sync attempt since consensus updates it
// independently of the shadow graph (spec §1, §4.3 phase 1).
type GenerationsProvider func() generations.Graph

// Metrics receives point-in-time observations about sync attempts.
// Implementations must be cheap and non-blocking.
type Metrics interface {
	ObserveSyncAttempt(outbound bool)
	ObserveSyncRejected(reason string)
	ObserveSyncFallenBehind(status generations.FallenBehindStatus)
	ObserveSyncCompleted(eventsSent, eventsReceived int, duration time.Duration)
	ObserveSyncFailed(reason string)
	ObserveThrottleBytes(n int)
}

// NopMetrics discards every observation.
type NopMetrics struct{}

func (NopMetrics) ObserveSyncAttempt(bool)                                {}
func (NopMetrics) ObserveSyncRejected(string)                             {}
func (NopMetrics) ObserveSyncFallenBehind(generations.FallenBehindStatus) {}
func (NopMetrics) ObserveSyncCompleted(int, int, time.Duration)           {}
func (NopMetrics) ObserveSyncFailed(string)                               {}
func (NopMetrics) ObserveThrottleBytes(int)                               {}

// ThrottleConfig carries the optional trailing bandwidth throttle's
// tunables, spec §4.3 "Optional throttle" / §6 configuration list.
type ThrottleConfig struct {
	Enabled       bool
	MaxBytes      int
	ExtraFactor   float64
	Threshold     float64
	NumberOfNodes int
}

// Config bundles a Synchronizer's fixed collaborators and tunables.
type Config struct {
	Self                event.NodeID
	NumberOfNodes       int
	GenerationsProvider GenerationsProvider
	Intake              EventIntake
	Throttle            ThrottleConfig
	SyncTimeout         time.Duration
	Log                 *zap.Logger
	Metrics             Metrics
	// FallenBehind receives a report whenever this side detects
	// SelfFallenBehind during phase 1 (spec §4.3). Optional.
	FallenBehind *syncthrottle.FallenBehindManager
}

// Synchronizer drives one sync attempt at a time per invocation of
// Sync; callers are responsible for per-peer exclusivity (typically
// via syncthrottle.SimultaneousSyncThrottle) before calling in.
type Synchronizer struct {
	graph *shadowgraph.ShadowGraph
	cfg   Config
}

// New constructs a Synchronizer bound to graph.
func New(graph *shadowgraph.ShadowGraph, cfg Config) *Synchronizer {
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NopMetrics{}
	}
	return &Synchronizer{graph: graph, cfg: cfg}
}

// Outcome summarizes how a sync attempt concluded. Exchanged is true
// iff phase 3 ran to completion and the SYNC_DONE handshake matched.
type Outcome struct {
	Exchanged      bool
	Rejected       bool
	FallenBehind   generations.FallenBehindStatus
	EventsSent     int
	EventsReceived int
}

// Sync drives one bidirectional reconciliation attempt over conn with
// peer, per spec §4.3. isOutbound selects SYNC_REQUEST vs.
// SYNC_ACK/NACK framing roles: the initiating side always writes
// SYNC_REQUEST first.
//
// The caller must already hold this peer's exclusive sync lock and a
// fresh shadowgraph.GenerationReservation is acquired internally and
// released before return on every exit path.
func (s *Synchronizer) Sync(ctx context.Context, conn net.Conn, peer event.NodeID, isOutbound bool) (Outcome, error) {
	sessionID := uuid.New()
	log := s.cfg.Log.With(
		zap.String("session", sessionID.String()),
		zap.Uint32("peer", uint32(peer)),
		zap.Bool("outbound", isOutbound),
	)

	s.cfg.Metrics.ObserveSyncAttempt(isOutbound)
	start := time.Now()

	if deadline := s.cfg.SyncTimeout; deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, deadline)
		defer cancel()
	}
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
		defer conn.SetDeadline(time.Time{})
	}

	reservation := s.graph.Reserve()
	defer reservation.Close()

	outcome, err := s.runPhases(ctx, conn, peer, isOutbound, log)
	if err != nil {
		s.cfg.Metrics.ObserveSyncFailed(classifyFailure(err))
		return outcome, err
	}

	if outcome.FallenBehind != generations.NoneFallenBehind {
		s.cfg.Metrics.ObserveSyncFallenBehind(outcome.FallenBehind)
	}
	if outcome.Rejected {
		s.cfg.Metrics.ObserveSyncRejected("nack")
	}
	if outcome.Exchanged {
		s.cfg.Metrics.ObserveSyncCompleted(outcome.EventsSent, outcome.EventsReceived, time.Since(start))
	}
	return outcome, nil
}

func classifyFailure(err error) string {
	switch {
	case errors.Is(err, ErrProtocol):
		return "protocol"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrCancelled):
		return "cancelled"
	default:
		return "io"
	}
}

func (s *Synchronizer) runPhases(ctx context.Context, conn net.Conn, peer event.NodeID, isOutbound bool, log *zap.Logger) (Outcome, error) {
	var outcome Outcome

	accepted, err := s.phase0(conn, isOutbound, log)
	if err != nil {
		return outcome, err
	}
	if !accepted {
		outcome.Rejected = true
		// Drain the peer's phase-1 payload to preserve stream alignment
		// even though the peer rejected the sync (spec §4.3 phase 0).
		if isOutbound {
			if _, _, err := s.readPhase1(conn); err != nil {
				return outcome, err
			}
		}
		return outcome, nil
	}

	selfGen := s.cfg.GenerationsProvider()
	localTips := s.graph.GetTips()

	// Wrapped from here through the end of the exchange so the optional
	// throttle below can size its payload off actual bytes on the wire
	// (spec §4.3), not the event count.
	cc := newCountingConn(conn)

	peerGen, peerTipHashes, err := s.exchangePhase1(cc, selfGen, localTips)
	if err != nil {
		return outcome, err
	}

	status := generations.SyncFallenBehindStatus(selfGen, peerGen)
	outcome.FallenBehind = status
	if status == generations.SelfFallenBehind && s.cfg.FallenBehind != nil {
		s.cfg.FallenBehind.ReportFallenBehind(peer)
	}
	if status != generations.NoneFallenBehind {
		return outcome, nil
	}

	knownSet, err := s.exchangePhase2(cc, peerTipHashes, localTips)
	if err != nil {
		return outcome, err
	}

	sent, received, err := s.phase3(cc, peer, selfGen, peerGen, localTips, knownSet)
	if err != nil {
		return outcome, err
	}
	outcome.EventsSent = sent
	outcome.EventsReceived = received

	if err := s.syncDoneHandshake(cc); err != nil {
		return outcome, err
	}
	outcome.Exchanged = true

	if ShouldThrottle(s.cfg.Throttle, sent, received) {
		if err := s.runThrottle(cc, cc.BytesWritten()); err != nil {
			return outcome, err
		}
	}

	return outcome, nil
}

func wrapIO(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	if err == io.EOF {
		return fmt.Errorf("%w: connection closed: %v", ErrIO, err)
	}
	return fmt.Errorf("%w: %v", ErrIO, err)
}

func wrapProtocol(err error) error {
	return fmt.Errorf("%w: %v", ErrProtocol, err)
}

// sortByGeneration orders a send list ascending by generation. A
// child's generation is always strictly greater than its parents', so
// this ordering is sufficient to guarantee every event is sent after
// both of its parents that are also in the list (spec §4.3 phase 3
// step 4).
func sortByGeneration(events []*shadowgraph.ShadowEvent) {
	sort.Slice(events, func(i, j int) bool {
		return events[i].Generation() < events[j].Generation()
	})
}
