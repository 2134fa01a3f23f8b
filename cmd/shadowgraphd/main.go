// Package main — cmd/shadowgraphd/main.go
//
// shadowgraphd entrypoint.
//
// Startup sequence:
//  1. Load and validate config from /etc/shadowgraphd/config.yaml.
//  2. Initialise structured logger (zap, JSON format).
//  3. Open the BoltDB audit ledger.
//  4. Prune stale ledger entries.
//  5. Start the Prometheus metrics server (127.0.0.1:9091).
//  6. Construct the shadow graph, fallen-behind manager, sync throttle,
//     and synchronizer.
//  7. Start the mTLS listener and its accept loop.
//  8. Start the outbound sync loop (one peer at a time, on an interval).
//  9. Start the graph expiry loop.
// 10. Register SIGHUP handler for config hot-reload.
// 11. Block on SIGINT/SIGTERM for graceful shutdown.
//
// Shutdown sequence (on SIGINT/SIGTERM):
//  1. Cancel the root context (propagates to every goroutine).
//  2. Close the listener so no new inbound sync is accepted.
//  3. Wait for in-flight syncs to finish (max 5s).
//  4. Close the audit ledger.
//  5. Flush the logger.
//  6. Exit 0.
//
// On config validation failure: exit 1 immediately.
// On audit ledger open failure: exit 1 immediately.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/hashgraph-io/shadowgraph/internal/audit"
	"github.com/hashgraph-io/shadowgraph/internal/config"
	"github.com/hashgraph-io/shadowgraph/internal/event"
	"github.com/hashgraph-io/shadowgraph/internal/generations"
	"github.com/hashgraph-io/shadowgraph/internal/netconn"
	"github.com/hashgraph-io/shadowgraph/internal/observability"
	"github.com/hashgraph-io/shadowgraph/internal/shadowgraph"
	syncpkg "github.com/hashgraph-io/shadowgraph/internal/sync"
	"github.com/hashgraph-io/shadowgraph/internal/syncthrottle"
	"github.com/hashgraph-io/shadowgraph/internal/wire"
)

func main() {
	// ── Flags ───────────────────────────────────────────────────────
	configPath := flag.String("config", "/etc/shadowgraphd/config.yaml", "Path to config.yaml")
	version := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *version {
		fmt.Printf("shadowgraphd %s (commit=%s built=%s)\n",
			config.Version, config.GitCommit, config.BuildTime)
		os.Exit(0)
	}

	// ── Step 1: Load config ────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: config load failed: %v\n", err)
		os.Exit(1)
	}

	// ── Step 2: Initialise logger ──────────────────────────────────
	log, err := buildLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync() //nolint:errcheck

	log.Info("shadowgraphd starting",
		zap.String("version", config.Version),
		zap.String("commit", config.GitCommit),
		zap.String("built", config.BuildTime),
		zap.Uint32("node_id", cfg.NodeID),
		zap.String("config", *configPath),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Step 3: Open audit ledger ──────────────────────────────────
	ledger, err := audit.Open(cfg.Storage.DBPath, cfg.Storage.RetentionDays)
	if err != nil {
		log.Fatal("audit ledger open failed", zap.Error(err),
			zap.String("path", cfg.Storage.DBPath))
	}
	defer ledger.Close() //nolint:errcheck
	log.Info("audit ledger opened", zap.String("path", cfg.Storage.DBPath))

	// ── Step 4: Prune stale ledger entries ─────────────────────────
	if pruned, err := ledger.PruneOld(); err != nil {
		log.Warn("ledger pruning failed", zap.Error(err))
	} else {
		log.Info("ledger pruned", zap.Int("deleted", pruned))
	}

	// ── Step 5: Prometheus metrics ──────────────────────────────────
	metrics := observability.NewMetrics()
	go func() {
		if err := metrics.ServeMetrics(ctx, cfg.Observability.MetricsAddr); err != nil {
			log.Error("metrics server error", zap.Error(err))
		}
	}()
	log.Info("metrics server started", zap.String("addr", cfg.Observability.MetricsAddr))

	// ── Step 6: Shadow graph and synchronizer wiring ────────────────
	graph := shadowgraph.New(log, metrics)
	self := event.NodeID(cfg.NodeID)

	throttle := syncthrottle.New(cfg.Sync.MaxListenerSyncs)
	connTracker := newConnTracker()
	fallenBehind := syncthrottle.NewFallenBehindManager(
		cfg.FallenBehind.ThresholdFraction,
		func() int { return len(cfg.Listener.Peers) },
		connTracker,
	)

	synchronizer := syncpkg.New(graph, syncpkg.Config{
		Self:                self,
		NumberOfNodes:       cfg.NumberOfNodes,
		GenerationsProvider: graphGenerationsProvider(graph),
		Intake:              intakeEvents(graph, log),
		Throttle: syncpkg.ThrottleConfig{
			Enabled:       cfg.Throttle.Enabled,
			MaxBytes:      cfg.Throttle.MaxBytes,
			ExtraFactor:   cfg.Throttle.ExtraFactor,
			Threshold:     cfg.Throttle.Threshold,
			NumberOfNodes: cfg.NumberOfNodes,
		},
		SyncTimeout:  cfg.Sync.SyncTimeout,
		Log:          log,
		Metrics:      metrics,
		FallenBehind: fallenBehind,
	})

	mat := netconn.TLSMaterial{
		CertFile: cfg.Listener.TLSCertFile,
		KeyFile:  cfg.Listener.TLSKeyFile,
		CAFile:   cfg.Listener.TLSCAFile,
	}

	// ── Step 7: mTLS listener and accept loop ───────────────────────
	lis, err := netconn.Listen(cfg.Listener.Addr, mat)
	if err != nil {
		log.Fatal("listener start failed", zap.Error(err), zap.String("addr", cfg.Listener.Addr))
	}
	defer lis.Close() //nolint:errcheck
	log.Info("listener started", zap.String("addr", cfg.Listener.Addr))

	go runAcceptLoop(ctx, lis, throttle, synchronizer, connTracker, ledger, log)

	// ── Step 8: Outbound sync loop ──────────────────────────────────
	go runOutboundLoop(ctx, cfg, mat, throttle, synchronizer, connTracker, fallenBehind, ledger, log)

	// ── Step 9: Graph expiry loop ────────────────────────────────────
	go runExpiryLoop(ctx, graph, cfg.Graph.ExpiryInterval, log)

	// ── Step 10: SIGHUP hot-reload ───────────────────────────────────
	sighup := make(chan os.Signal, 1)
	signal.Notify(sighup, syscall.SIGHUP)
	go func() {
		for range sighup {
			log.Info("SIGHUP received — reloading config...")
			newCfg, err := config.Load(*configPath)
			if err != nil {
				log.Error("config hot-reload failed — retaining old config", zap.Error(err))
				continue
			}
			// Only non-destructive tunables are live-applied; listener
			// address, TLS material, and the audit DB path require a
			// restart (see internal/config's hot-reload doc comment).
			fallenBehind.Reload(newCfg.FallenBehind.ThresholdFraction)
			log.Info("config hot-reload successful",
				zap.Float64("new_fallen_behind_threshold", newCfg.FallenBehind.ThresholdFraction))
		}
	}()

	// ── Step 11: Wait for shutdown signal ────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("shutdown signal received", zap.String("signal", sig.String()))

	cancel()
	_ = lis.Close()

	drained := make(chan struct{})
	go func() {
		throttle.WaitForAllSyncsToFinish()
		close(drained)
	}()
	select {
	case <-drained:
		log.Info("in-flight syncs drained")
	case <-time.After(5 * time.Second):
		log.Warn("shutdown drain timeout — forcing exit")
	}

	log.Info("shadowgraphd shutdown complete")
}

// runAcceptLoop accepts inbound mTLS connections and drives one Sync
// per connection, subject to the listener's concurrent-sync cap
// (spec §4.4, §6 maxListenerSyncs).
func runAcceptLoop(
	ctx context.Context,
	lis *netconn.Listener,
	throttle *syncthrottle.SimultaneousSyncThrottle,
	synchronizer *syncpkg.Synchronizer,
	tracker *connTracker,
	ledger *audit.Ledger,
	log *zap.Logger,
) {
	for {
		conn, err := lis.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			log.Warn("accept failed", zap.Error(err))
			continue
		}

		go func() {
			defer conn.Close() //nolint:errcheck

			peer, err := netconn.PeerNodeID(conn)
			if err != nil {
				log.Warn("inbound connection rejected: could not attribute peer", zap.Error(err))
				return
			}

			lease, ok := throttle.TrySync(peer, false)
			if !ok {
				log.Debug("inbound sync rejected: over listener cap or peer busy", zap.Uint32("peer", uint32(peer)))
				return
			}
			defer lease.Release()

			tracker.markConnected(peer)
			defer tracker.markDisconnected(peer)

			runOneSync(ctx, synchronizer, conn, peer, false, ledger, log)
		}()
	}
}

// runOutboundLoop periodically dials one configured peer and drives an
// outbound Sync attempt, per spec §4.2's "periodically attempt to
// reconcile with a peer" gossip-about-gossip posture.
func runOutboundLoop(
	ctx context.Context,
	cfg *config.Config,
	mat netconn.TLSMaterial,
	throttle *syncthrottle.SimultaneousSyncThrottle,
	synchronizer *syncpkg.Synchronizer,
	tracker *connTracker,
	fallenBehind *syncthrottle.FallenBehindManager,
	ledger *audit.Ledger,
	log *zap.Logger,
) {
	if len(cfg.Listener.Peers) == 0 {
		log.Info("no static peers configured — outbound sync loop idle")
		return
	}

	ticker := time.NewTicker(cfg.Sync.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		peer := choosePeer(cfg.Listener.Peers, fallenBehind)

		lease, ok := throttle.TrySync(event.NodeID(peer.NodeID), true)
		if !ok {
			continue
		}

		dialCtx, cancel := context.WithTimeout(ctx, cfg.Sync.SyncTimeout)
		conn, err := netconn.Dial(dialCtx, peer.Addr, mat)
		cancel()
		if err != nil {
			lease.Release()
			log.Warn("outbound dial failed", zap.Uint32("peer", peer.NodeID), zap.Error(err))
			continue
		}

		nodeID := event.NodeID(peer.NodeID)
		go func() {
			defer lease.Release()
			defer conn.Close() //nolint:errcheck
			tracker.markConnected(nodeID)
			defer tracker.markDisconnected(nodeID)
			runOneSync(ctx, synchronizer, conn, nodeID, true, ledger, log)
		}()
	}
}

// choosePeer picks a peer to dial, preferring one that has reported us
// fallen-behind (spec §4.5 GetNeighborsForReconnect) and falling back
// to a uniform random pick from the static list.
func choosePeer(peers []config.PeerConfig, fallenBehind *syncthrottle.FallenBehindManager) config.PeerConfig {
	if reconnect := fallenBehind.GetNeighborsForReconnect(); len(reconnect) > 0 {
		want := reconnect[rand.Intn(len(reconnect))]
		for _, p := range peers {
			if event.NodeID(p.NodeID) == want {
				return p
			}
		}
	}
	return peers[rand.Intn(len(peers))]
}

// runOneSync drives a single Sync call and records its outcome to the
// audit ledger. A failed audit write is logged, never fatal (spec
// note: "a failed audit write must never abort a sync").
func runOneSync(
	ctx context.Context,
	synchronizer *syncpkg.Synchronizer,
	conn net.Conn,
	peer event.NodeID,
	outbound bool,
	ledger *audit.Ledger,
	log *zap.Logger,
) {
	start := time.Now()
	outcome, err := synchronizer.Sync(ctx, conn, peer, outbound)
	duration := time.Since(start)

	entry := audit.SessionEntry{
		Peer:           uint32(peer),
		Outbound:       outbound,
		EventsSent:     outcome.EventsSent,
		EventsReceived: outcome.EventsReceived,
		Duration:       duration,
	}
	switch {
	case err != nil:
		entry.Phase = "failed"
		entry.FailureReason = err.Error()
		log.Warn("sync failed", zap.Uint32("peer", uint32(peer)), zap.Bool("outbound", outbound), zap.Error(err))
	case outcome.Rejected:
		entry.Phase = "rejected"
	case outcome.FallenBehind != generations.NoneFallenBehind:
		entry.Phase = "fallen_behind"
	case outcome.Exchanged:
		entry.Phase = "exchanged"
		log.Info("sync completed",
			zap.Uint32("peer", uint32(peer)),
			zap.Bool("outbound", outbound),
			zap.Int("sent", outcome.EventsSent),
			zap.Int("received", outcome.EventsReceived),
			zap.Duration("duration", duration))
	}

	if err := ledger.Append(entry); err != nil {
		log.Warn("audit ledger write failed", zap.Error(err))
	}
}

// runExpiryLoop periodically calls ExpireBelow with the non-ancient
// floor (spec §4.1 expiry). Consensus itself is out of scope for this
// module; graphGenerationsProvider stands in for it by deriving a
// window from the graph's own observed generations. That floor is the
// graph's oldest generation, so this loop never removes an event that
// is in the graph.
func runExpiryLoop(ctx context.Context, graph *shadowgraph.ShadowGraph, interval time.Duration, log *zap.Logger) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		floor := graphGenerationsProvider(graph)().MinGenNonAncient
		graph.ExpireBelow(floor)
	}
}

// graphGenerationsProvider derives a syncpkg.GenerationsProvider from
// the shadow graph's own observed generation bounds. This node does
// not run consensus (spec §1 Non-goals); in a full deployment, this
// provider would instead read the live GraphGenerations view computed
// by the platform's consensus algorithm.
func graphGenerationsProvider(graph *shadowgraph.ShadowGraph) syncpkg.GenerationsProvider {
	return func() generations.Graph {
		oldest := graph.OldestGeneration()
		if oldest < generations.FirstGeneration {
			oldest = generations.FirstGeneration
		}
		maxGen := oldest
		for _, tip := range graph.GetTips() {
			if g := int64(tip.Generation()); g > maxGen {
				maxGen = g
			}
		}
		g, err := generations.New(oldest, oldest, maxGen)
		if err != nil {
			return generations.Graph{MinRoundGeneration: oldest, MinGenNonAncient: oldest, MaxRoundGeneration: oldest}
		}
		return g
	}
}

// intakeEvents adapts a raw wire.EventPayload into the graph's Add
// path. Full event reconstruction (decoding HashedData/UnhashedData
// into a parent-linked event.Event, signature verification) happens
// upstream of this module per spec §1; this placeholder only routes a
// payload that already decodes into an event.Event to the graph.
func intakeEvents(graph *shadowgraph.ShadowGraph, log *zap.Logger) syncpkg.EventIntake {
	return func(peer event.NodeID, payload wire.EventPayload) error {
		ev, err := decodeEvent(payload)
		if err != nil {
			log.Warn("dropping undecodable event payload",
				zap.Uint32("peer", uint32(peer)), zap.Error(err))
			return nil
		}
		if _, err := graph.Add(&ev); err != nil {
			log.Debug("event insertion rejected",
				zap.Uint32("peer", uint32(peer)), zap.Error(err))
		}
		return nil
	}
}

// buildLogger constructs a zap.Logger with the given level and format.
func buildLogger(level, format string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var cfg zap.Config
	if format == "console" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)

	return cfg.Build()
}
