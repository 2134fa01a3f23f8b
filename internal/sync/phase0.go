package sync

import (
	"net"

	"go.uber.org/zap"

	"github.com/hashgraph-io/shadowgraph/internal/wire"
)

// phase0 performs the framing handshake: the initiator writes
// SYNC_REQUEST and waits for SYNC_ACK/SYNC_NACK; the acceptor reads
// SYNC_REQUEST and writes SYNC_ACK (this implementation always
// accepts — callers reject earlier by never invoking Sync when the
// throttle or fallen-behind manager already said no). Returns whether
// the sync was accepted.
func (s *Synchronizer) phase0(conn net.Conn, isOutbound bool, log *zap.Logger) (bool, error) {
	if isOutbound {
		if err := wire.WriteByte(conn, wire.SyncRequest); err != nil {
			return false, wrapIO(err)
		}
		b, err := wire.ReadByte(conn)
		if err != nil {
			return false, wrapIO(err)
		}
		switch b {
		case wire.SyncAck:
			return true, nil
		case wire.SyncNack:
			log.Debug("sync rejected by peer")
			return false, nil
		default:
			return false, wrapProtocol(errUnexpectedByte(b))
		}
	}

	b, err := wire.ReadByte(conn)
	if err != nil {
		return false, wrapIO(err)
	}
	if b != wire.SyncRequest {
		return false, wrapProtocol(errUnexpectedByte(b))
	}
	if err := wire.WriteByte(conn, wire.SyncAck); err != nil {
		return false, wrapIO(err)
	}
	return true, nil
}

// RejectInbound refuses an inbound sync in place of Sync, for a
// listener-side driver whose throttle or fallen-behind manager has
// already said no; shadowgraphd does not call it and closes refused
// connections instead. It writes SYNC_NACK and drains the caller's phase-1
// payload so the stream stays aligned for reuse. maxTips caps the
// drained tip-hash list the same way a normal phase 1 read would.
func RejectInbound(conn net.Conn, maxTips int) error {
	if b, err := wire.ReadByte(conn); err != nil {
		return wrapIO(err)
	} else if b != wire.SyncRequest {
		return wrapProtocol(errUnexpectedByte(b))
	}
	if err := wire.WriteByte(conn, wire.SyncNack); err != nil {
		return wrapIO(err)
	}
	if _, err := wire.ReadGenerations(conn); err != nil {
		return classifyWireErr(err)
	}
	if _, err := wire.ReadHashList(conn, maxTips); err != nil {
		return classifyWireErr(err)
	}
	return nil
}

type unexpectedByteError byte

func (e unexpectedByteError) Error() string {
	return "unexpected control byte"
}

func errUnexpectedByte(b byte) error {
	return unexpectedByteError(b)
}
