package sync

import (
	"math"
	"math/rand"
	"net"

	"github.com/hashgraph-io/shadowgraph/internal/wire"
)

// runThrottle implements spec §4.3's optional trailing bandwidth
// throttle: when enabled, each side writes a burst of pseudo-random
// 32-bit integers sized off how many bytes it just put on the wire,
// intended to slow a fast peer down to let a slow one catch up.
// bytesSent is the actual byte count from a countingConn wrapped
// around the connection for phases 1-3, not the event count — those
// diverge exactly when ShouldThrottle fires, since it only fires on a
// near-empty exchange.
func (s *Synchronizer) runThrottle(conn net.Conn, bytesSent int) error {
	cfg := s.cfg.Throttle

	writeCh := make(chan error, 1)
	readCh := make(chan error, 1)

	go func() { writeCh <- s.writeThrottlePayload(conn, cfg, bytesSent) }()
	go func() {
		maxValues := cfg.MaxBytes / 4
		readCh <- classifyWireErr(wire.ReadThrottle(conn, maxValues))
	}()

	if err := <-writeCh; err != nil {
		return err
	}
	if err := <-readCh; err != nil {
		return err
	}
	return nil
}

func (s *Synchronizer) writeThrottlePayload(conn net.Conn, cfg ThrottleConfig, bytesSent int) error {
	n := throttleByteCount(cfg, bytesSent)
	count := n / 4
	values := make([]uint32, count)
	for i := range values {
		values[i] = rand.Uint32()
	}
	if err := wire.WriteThrottle(conn, values); err != nil {
		return wrapIO(err)
	}
	s.cfg.Metrics.ObserveThrottleBytes(count * 4)
	return nil
}

// throttleByteCount computes n = clamp(1 + bytesSent*extraFactor, 0, maxThrottleBytes),
// per spec §4.3.
func throttleByteCount(cfg ThrottleConfig, bytesSent int) int {
	raw := 1 + float64(bytesSent)*cfg.ExtraFactor
	if raw < 0 {
		raw = 0
	}
	if raw > float64(cfg.MaxBytes) {
		raw = float64(cfg.MaxBytes)
	}
	return int(math.Round(raw))
}

// ShouldThrottle reports whether the optional throttle should fire for
// this sync, per spec §6: active only when both sides exchanged fewer
// events than a falling-behind threshold derived from network size.
func ShouldThrottle(cfg ThrottleConfig, eventsSent, eventsReceived int) bool {
	if !cfg.Enabled {
		return false
	}
	limit := int(cfg.Threshold * float64(cfg.NumberOfNodes))
	return eventsSent < limit && eventsReceived < limit
}
