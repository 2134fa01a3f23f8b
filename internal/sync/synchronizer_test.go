package sync

import (
	"context"
	"errors"
	"net"
	stdsync "sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hashgraph-io/shadowgraph/internal/event"
	"github.com/hashgraph-io/shadowgraph/internal/generations"
	"github.com/hashgraph-io/shadowgraph/internal/shadowgraph"
	"github.com/hashgraph-io/shadowgraph/internal/syncthrottle"
	"github.com/hashgraph-io/shadowgraph/internal/wire"
)

func intakeFor(graph *shadowgraph.ShadowGraph) EventIntake {
	return func(peer event.NodeID, p wire.EventPayload) error {
		ev := decodeEvent(p)
		_, err := graph.Add(&ev)
		if err != nil && errors.Is(err, shadowgraph.ErrDuplicateShadow) {
			return nil
		}
		return err
	}
}

// TestSynchronizer_ReconciliationCompleteness exercises P6/S1: two
// graphs sharing ancestors at generations 6-10, whose windows overlap,
// converge so each side gains the other's non-ancient-only events.
func TestSynchronizer_ReconciliationCompleteness(t *testing.T) {
	chain := buildChainFrom("chain", 1, 15)

	log := zap.NewNop()

	graphA := shadowgraph.New(log, shadowgraph.NopMetrics{})
	require.NoError(t, graphA.InitFrom(chain[0:10], 1)) // gens 1..10

	graphB := shadowgraph.New(log, shadowgraph.NopMetrics{})
	require.NoError(t, graphB.InitFrom(chain[5:15], 6)) // gens 6..15

	genA, err := generations.New(1, 1, 10)
	require.NoError(t, err)
	genB, err := generations.New(6, 6, 15)
	require.NoError(t, err)

	syncA := New(graphA, Config{
		Self:                1,
		NumberOfNodes:       2,
		GenerationsProvider: func() generations.Graph { return genA },
		Intake:              intakeFor(graphA),
		Log:                 log,
	})
	syncB := New(graphB, Config{
		Self:                2,
		NumberOfNodes:       2,
		GenerationsProvider: func() generations.Graph { return genB },
		Intake:              intakeFor(graphB),
		Log:                 log,
	})

	connA, connB := net.Pipe()

	var outA, outB Outcome
	var errA, errB error
	var wg stdsync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		outA, errA = syncA.Sync(context.Background(), connA, 2, true)
	}()
	go func() {
		defer wg.Done()
		outB, errB = syncB.Sync(context.Background(), connB, 1, false)
	}()
	wg.Wait()

	require.NoError(t, errA)
	require.NoError(t, errB)
	require.True(t, outA.Exchanged)
	require.True(t, outB.Exchanged)

	require.True(t, graphA.IsHashInGraph(chain[14].BaseHash), "A must gain B's newer events")
	require.True(t, graphA.IsHashInGraph(chain[10].BaseHash))

	require.False(t, graphB.IsHashInGraph(chain[0].BaseHash), "B must not gain A's ancient-only events")
}

// TestSynchronizer_FallenBehindDetection exercises P8/S2: disjoint
// generation windows are detected as fallen-behind and no events are
// exchanged.
func TestSynchronizer_FallenBehindDetection(t *testing.T) {
	chainA := buildChainFrom("a", 1, 3)
	chainB := buildChainFrom("b", 10, 3)

	log := zap.NewNop()

	graphA := shadowgraph.New(log, shadowgraph.NopMetrics{})
	require.NoError(t, graphA.InitFrom(chainA, 1))
	graphB := shadowgraph.New(log, shadowgraph.NopMetrics{})
	require.NoError(t, graphB.InitFrom(chainB, 10))

	genA, err := generations.New(1, 1, 5)
	require.NoError(t, err)
	genB, err := generations.New(10, 10, 20)
	require.NoError(t, err)

	fbm := syncthrottle.NewFallenBehindManager(0.1, func() int { return 10 }, nil)

	syncA := New(graphA, Config{
		Self:                1,
		NumberOfNodes:       2,
		GenerationsProvider: func() generations.Graph { return genA },
		Intake:              intakeFor(graphA),
		Log:                 log,
		FallenBehind:        fbm,
	})
	syncB := New(graphB, Config{
		Self:                2,
		NumberOfNodes:       2,
		GenerationsProvider: func() generations.Graph { return genB },
		Intake:              intakeFor(graphB),
		Log:                 log,
	})

	connA, connB := net.Pipe()

	var outA, outB Outcome
	var errA, errB error
	var wg stdsync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		outA, errA = syncA.Sync(context.Background(), connA, 2, true)
	}()
	go func() {
		defer wg.Done()
		outB, errB = syncB.Sync(context.Background(), connB, 1, false)
	}()
	wg.Wait()

	require.NoError(t, errA)
	require.NoError(t, errB)

	require.Equal(t, generations.SelfFallenBehind, outA.FallenBehind)
	require.False(t, outA.Exchanged)
	require.Equal(t, 1, fbm.ReporterCount())

	require.Equal(t, generations.OtherFallenBehind, outB.FallenBehind)
	require.False(t, outB.Exchanged)
}

// TestSynchronizer_Throttle exercises S6: with the throttle enabled
// and few events exchanged, the trailing throttle payload is written
// and consumed without disrupting the SYNC_DONE handshake.
func TestSynchronizer_Throttle(t *testing.T) {
	chain := buildChainFrom("shared", 1, 1)

	log := zap.NewNop()
	graphA := shadowgraph.New(log, shadowgraph.NopMetrics{})
	require.NoError(t, graphA.InitFrom(chain, 1))
	graphB := shadowgraph.New(log, shadowgraph.NopMetrics{})
	require.NoError(t, graphB.InitFrom(chain, 1))

	gen, err := generations.New(1, 1, 1)
	require.NoError(t, err)

	throttleCfg := ThrottleConfig{
		Enabled:       true,
		MaxBytes:      4096,
		ExtraFactor:   0.1,
		Threshold:     1.0,
		NumberOfNodes: 2,
	}

	syncA := New(graphA, Config{
		Self:                1,
		NumberOfNodes:       2,
		GenerationsProvider: func() generations.Graph { return gen },
		Intake:              intakeFor(graphA),
		Throttle:            throttleCfg,
		Log:                 log,
	})
	syncB := New(graphB, Config{
		Self:                2,
		NumberOfNodes:       2,
		GenerationsProvider: func() generations.Graph { return gen },
		Intake:              intakeFor(graphB),
		Throttle:            throttleCfg,
		Log:                 log,
	})

	connA, connB := net.Pipe()

	var outA, outB Outcome
	var errA, errB error
	var wg stdsync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		outA, errA = syncA.Sync(context.Background(), connA, 2, true)
	}()
	go func() {
		defer wg.Done()
		outB, errB = syncB.Sync(context.Background(), connB, 1, false)
	}()
	wg.Wait()

	require.NoError(t, errA)
	require.NoError(t, errB)
	require.True(t, outA.Exchanged)
	require.True(t, outB.Exchanged)
}

// TestSynchronizer_ProtocolViolation exercises S5: a peer that sends
// an unexpected control byte mid phase-3 is detected and surfaced as
// ErrProtocol, without hanging the other side.
func TestSynchronizer_ProtocolViolation(t *testing.T) {
	chain := buildChainFrom("solo", 1, 1)
	log := zap.NewNop()
	graphA := shadowgraph.New(log, shadowgraph.NopMetrics{})
	require.NoError(t, graphA.InitFrom(chain, 1))

	gen, err := generations.New(1, 1, 1)
	require.NoError(t, err)

	syncA := New(graphA, Config{
		Self:                1,
		NumberOfNodes:       2,
		GenerationsProvider: func() generations.Graph { return gen },
		Intake:              intakeFor(graphA),
		Log:                 log,
	})

	connA, connB := net.Pipe()

	done := make(chan error, 1)
	go func() {
		_, err := syncA.Sync(context.Background(), connA, 2, true)
		done <- err
	}()

	runMaliciousPeer(t, connB, gen, chain[0].BaseHash)

	err = <-done
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrProtocol))
}

// runMaliciousPeer plays the phase 0-2 protocol honestly, then writes
// a byte that is neither EVENT_NEXT nor EVENT_DONE during phase 3.
func runMaliciousPeer(t *testing.T, conn net.Conn, selfGen generations.Graph, tipHash event.Hash) {
	t.Helper()

	b, err := wire.ReadByte(conn)
	require.NoError(t, err)
	require.Equal(t, wire.SyncRequest, b)
	require.NoError(t, wire.WriteByte(conn, wire.SyncAck))

	var wg stdsync.WaitGroup
	var peerTips []event.Hash
	wg.Add(2)
	go func() {
		defer wg.Done()
		require.NoError(t, wire.WriteGenerations(conn, selfGen))
		require.NoError(t, wire.WriteHashList(conn, []event.Hash{tipHash}))
	}()
	go func() {
		defer wg.Done()
		_, err := wire.ReadGenerations(conn)
		require.NoError(t, err)
		peerTips, err = wire.ReadHashList(conn, 10)
		require.NoError(t, err)
	}()
	wg.Wait()

	wg.Add(2)
	go func() {
		defer wg.Done()
		require.NoError(t, wire.WriteBoolList(conn, []bool{true}))
	}()
	go func() {
		defer wg.Done()
		_, err := wire.ReadBoolList(conn, len(peerTips))
		require.NoError(t, err)
	}()
	wg.Wait()

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for {
			b, err := wire.ReadByte(conn)
			if err != nil {
				return
			}
			if b == wire.EventNext {
				_, _ = wire.ReadEventPayload(conn)
				continue
			}
			return
		}
	}()

	require.NoError(t, wire.WriteByte(conn, 0x99))
	<-drained
}
