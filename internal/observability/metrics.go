// Package observability — metrics.go
//
// Prometheus metrics for the shadowgraph gossip substrate.
//
// Endpoint: GET /metrics on 127.0.0.1:9091 (configurable).
// Format: Prometheus text exposition format (OpenMetrics compatible).
//
// Metric naming convention: shadowgraph_<subsystem>_<name>_<unit>
//
// All metrics are registered on a dedicated prometheus.Registry (not the
// default global registry) to avoid collisions with other instrumented
// libraries in the same process.
//
// Cardinality control:
//   - Peer node id is NOT used as a label (unbounded over a node's
//     lifetime as peers join/leave); only small fixed enums (outcome,
//     fallen-behind status) are labels.
package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hashgraph-io/shadowgraph/internal/generations"
)

// Metrics holds all Prometheus metric descriptors for the shadowgraph
// process. It implements shadowgraph.GraphMetrics and sync.Metrics
// directly, so it can be passed to both without an adapter.
type Metrics struct {
	registry *prometheus.Registry

	// ─── Shadow graph ─────────────────────────────────────────────────

	GraphTipCount         prometheus.Gauge
	GraphEventCount        prometheus.Gauge
	GraphReservationCount  prometheus.Gauge
	GraphInsertsTotal       prometheus.Counter
	GraphDuplicatesTotal    prometheus.Counter
	GraphExpiredTotal       prometheus.Counter
	GraphMissingParentTotal prometheus.Counter

	// ─── Synchronizer ─────────────────────────────────────────────────

	// SyncAttemptsTotal counts every sync attempt, inbound and outbound.
	SyncAttemptsTotal prometheus.Counter

	// SyncRejectedTotal counts syncs rejected at phase 0 (listener busy,
	// over the concurrent-sync cap). Labels: reason (nack).
	SyncRejectedTotal *prometheus.CounterVec

	// SyncFallenBehindTotal counts syncs that resolved to a fallen-behind
	// status instead of exchanging events. Labels: status
	// (self_fallen_behind, other_fallen_behind).
	SyncFallenBehindTotal *prometheus.CounterVec

	// SyncCompletedTotal counts syncs that completed an event exchange.
	SyncCompletedTotal prometheus.Counter

	// SyncFailedTotal counts syncs that ended in an error. Labels: reason
	// (protocol, io, cancelled, timeout).
	SyncFailedTotal *prometheus.CounterVec

	// SyncDurationSeconds records end-to-end sync duration.
	SyncDurationSeconds prometheus.Histogram

	// EventsSentTotal / EventsReceivedTotal count events exchanged across
	// all syncs.
	EventsSentTotal     prometheus.Counter
	EventsReceivedTotal prometheus.Counter

	// ThrottleBytesEmittedTotal counts filler bytes emitted by the
	// bandwidth throttle.
	ThrottleBytesEmittedTotal prometheus.Counter

	// ─── Process ──────────────────────────────────────────────────────

	ProcessUptimeSeconds prometheus.Gauge

	startTime time.Time
}

// NewMetrics creates and registers all shadowgraph Prometheus metrics.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		GraphTipCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "shadowgraph", Subsystem: "graph", Name: "tip_count",
			Help: "Current number of tip events in the shadow graph.",
		}),
		GraphEventCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "shadowgraph", Subsystem: "graph", Name: "event_count",
			Help: "Current number of events held in the shadow graph.",
		}),
		GraphReservationCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "shadowgraph", Subsystem: "graph", Name: "reservation_count",
			Help: "Current number of open generation reservations.",
		}),
		GraphInsertsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shadowgraph", Subsystem: "graph", Name: "inserts_total",
			Help: "Total events successfully inserted into the shadow graph.",
		}),
		GraphDuplicatesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shadowgraph", Subsystem: "graph", Name: "duplicates_total",
			Help: "Total insert attempts rejected as duplicates.",
		}),
		GraphExpiredTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shadowgraph", Subsystem: "graph", Name: "expired_total",
			Help: "Total events removed by expiry.",
		}),
		GraphMissingParentTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shadowgraph", Subsystem: "graph", Name: "missing_parent_total",
			Help: "Total insertions observed with an unresolvable parent hash.",
		}),

		SyncAttemptsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shadowgraph", Subsystem: "sync", Name: "attempts_total",
			Help: "Total sync attempts, inbound and outbound.",
		}),
		SyncRejectedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shadowgraph", Subsystem: "sync", Name: "rejected_total",
			Help: "Total syncs rejected at phase 0, by reason.",
		}, []string{"reason"}),
		SyncFallenBehindTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shadowgraph", Subsystem: "sync", Name: "fallen_behind_total",
			Help: "Total syncs resolving to a fallen-behind status, by side.",
		}, []string{"status"}),
		SyncCompletedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shadowgraph", Subsystem: "sync", Name: "completed_total",
			Help: "Total syncs that completed an event exchange.",
		}),
		SyncFailedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shadowgraph", Subsystem: "sync", Name: "failed_total",
			Help: "Total syncs that ended in an error, by reason.",
		}, []string{"reason"}),
		SyncDurationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "shadowgraph", Subsystem: "sync", Name: "duration_seconds",
			Help:    "End-to-end sync duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
		EventsSentTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shadowgraph", Subsystem: "sync", Name: "events_sent_total",
			Help: "Total events sent across all syncs.",
		}),
		EventsReceivedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shadowgraph", Subsystem: "sync", Name: "events_received_total",
			Help: "Total events received across all syncs.",
		}),
		ThrottleBytesEmittedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shadowgraph", Subsystem: "sync", Name: "throttle_bytes_emitted_total",
			Help: "Total filler bytes emitted by the bandwidth throttle.",
		}),

		ProcessUptimeSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "shadowgraph", Subsystem: "process", Name: "uptime_seconds",
			Help: "Seconds since the process started.",
		}),
	}

	reg.MustRegister(
		m.GraphTipCount, m.GraphEventCount, m.GraphReservationCount,
		m.GraphInsertsTotal, m.GraphDuplicatesTotal, m.GraphExpiredTotal, m.GraphMissingParentTotal,
		m.SyncAttemptsTotal, m.SyncRejectedTotal, m.SyncFallenBehindTotal,
		m.SyncCompletedTotal, m.SyncFailedTotal, m.SyncDurationSeconds,
		m.EventsSentTotal, m.EventsReceivedTotal, m.ThrottleBytesEmittedTotal,
		m.ProcessUptimeSeconds,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)

	return m
}

// ─── shadowgraph.GraphMetrics ───────────────────────────────────────

func (m *Metrics) SetTipCount(n int)         { m.GraphTipCount.Set(float64(n)) }
func (m *Metrics) SetEventCount(n int)       { m.GraphEventCount.Set(float64(n)) }
func (m *Metrics) SetReservationCount(n int) { m.GraphReservationCount.Set(float64(n)) }
func (m *Metrics) ObserveInsert()            { m.GraphInsertsTotal.Inc() }
func (m *Metrics) ObserveDuplicate()         { m.GraphDuplicatesTotal.Inc() }
func (m *Metrics) ObserveExpired(count int)  { m.GraphExpiredTotal.Add(float64(count)) }
func (m *Metrics) ObserveMissingParent()     { m.GraphMissingParentTotal.Inc() }

// ─── sync.Metrics ───────────────────────────────────────────────────

func (m *Metrics) ObserveSyncAttempt(outbound bool) {
	m.SyncAttemptsTotal.Inc()
	_ = outbound // direction is not a label: unbounded only by a small fixed enum, but not useful to split on here
}

func (m *Metrics) ObserveSyncRejected(reason string) {
	m.SyncRejectedTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveSyncFallenBehind(status generations.FallenBehindStatus) {
	m.SyncFallenBehindTotal.WithLabelValues(status.String()).Inc()
}

func (m *Metrics) ObserveSyncCompleted(eventsSent, eventsReceived int, d time.Duration) {
	m.SyncCompletedTotal.Inc()
	m.SyncDurationSeconds.Observe(d.Seconds())
	m.EventsSentTotal.Add(float64(eventsSent))
	m.EventsReceivedTotal.Add(float64(eventsReceived))
}

func (m *Metrics) ObserveSyncFailed(reason string) {
	m.SyncFailedTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveThrottleBytes(n int) {
	m.ThrottleBytesEmittedTotal.Add(float64(n))
}

// ServeMetrics starts the Prometheus HTTP metrics server on addr. Blocks
// until ctx is cancelled or the server fails.
func (m *Metrics) ServeMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go m.updateUptime(ctx)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("metrics server on %s: %w", addr, err)
	}
	return nil
}

func (m *Metrics) updateUptime(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.ProcessUptimeSeconds.Set(time.Since(m.startTime).Seconds())
		case <-ctx.Done():
			return
		}
	}
}
