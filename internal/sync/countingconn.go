package sync

import (
	"net"
	"sync/atomic"
)

// countingConn wraps a net.Conn and tallies bytes written through it,
// so the trailing throttle (spec §4.3) can size its filler payload off
// actual wire traffic rather than the event count — the two diverge
// precisely when ShouldThrottle fires, since it only fires on a small
// exchange.
type countingConn struct {
	net.Conn
	written atomic.Int64
}

func newCountingConn(conn net.Conn) *countingConn {
	return &countingConn{Conn: conn}
}

func (c *countingConn) Write(p []byte) (int, error) {
	n, err := c.Conn.Write(p)
	c.written.Add(int64(n))
	return n, err
}

// BytesWritten returns the total bytes written through this wrapper so far.
func (c *countingConn) BytesWritten() int {
	return int(c.written.Load())
}
