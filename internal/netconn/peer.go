package netconn

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"

	"github.com/hashgraph-io/shadowgraph/internal/event"
)

// PeerNodeID extracts the remote NodeID from a TLS connection's
// verified client certificate: the CommonName is the peer's NodeID
// rendered as decimal, matching the teacher's node_id-to-certificate
// trust model (gossip.trustedPeers) adapted from a lookup map to an
// identity encoded directly in the certificate. Forces the handshake
// if it has not already completed.
func PeerNodeID(conn net.Conn) (event.NodeID, error) {
	tlsConn, ok := conn.(*tls.Conn)
	if !ok {
		return 0, fmt.Errorf("netconn: connection is not TLS")
	}
	if err := tlsConn.HandshakeContext(context.Background()); err != nil {
		return 0, fmt.Errorf("netconn: TLS handshake: %w", err)
	}
	state := tlsConn.ConnectionState()
	if len(state.PeerCertificates) == 0 {
		return 0, fmt.Errorf("netconn: no peer certificate presented")
	}
	cn := state.PeerCertificates[0].Subject.CommonName
	id, err := strconv.ParseUint(cn, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("netconn: peer certificate CommonName %q is not a NodeID: %w", cn, err)
	}
	return event.NodeID(id), nil
}
