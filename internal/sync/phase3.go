package sync

import (
	"net"

	"go.uber.org/zap"

	"github.com/hashgraph-io/shadowgraph/internal/event"
	"github.com/hashgraph-io/shadowgraph/internal/generations"
	"github.com/hashgraph-io/shadowgraph/internal/shadowgraph"
	"github.com/hashgraph-io/shadowgraph/internal/wire"
)

// nonAncientAndUnknown builds the predicate spec §4.3 phase 3 calls
// pred/pred': a candidate belongs in the result iff it is not already
// in known and its generation is at or above threshold. Expiry is
// handled by shadowgraph.FindAncestors itself.
func nonAncientAndUnknown(known map[event.Hash]*shadowgraph.ShadowEvent, threshold int64) shadowgraph.Predicate {
	return func(se *shadowgraph.ShadowEvent) bool {
		if _, ok := known[se.Hash()]; ok {
			return false
		}
		return int64(se.Generation()) >= threshold
	}
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

// buildSendList computes the set of events this side must send the
// peer, per spec §4.3 phase 3 steps 1-4.
func (s *Synchronizer) buildSendList(selfGen, peerGen generations.Graph, knownSet map[event.Hash]*shadowgraph.ShadowEvent) []*shadowgraph.ShadowEvent {
	threshold := maxInt64(selfGen.MinRoundGeneration, peerGen.MinGenNonAncient)

	seeds := make([]*shadowgraph.ShadowEvent, 0, len(knownSet))
	for _, se := range knownSet {
		seeds = append(seeds, se)
	}

	ancestors := shadowgraph.FindAncestors(seeds, nonAncientAndUnknown(knownSet, threshold))

	extended := make(map[event.Hash]*shadowgraph.ShadowEvent, len(knownSet)+len(ancestors))
	for h, se := range knownSet {
		extended[h] = se
	}
	for h, se := range ancestors {
		extended[h] = se
	}

	currentTips := s.graph.GetTips()
	pred := nonAncientAndUnknown(extended, threshold)

	var unknownTips []*shadowgraph.ShadowEvent
	for _, t := range currentTips {
		if pred(t) {
			unknownTips = append(unknownTips, t)
		}
	}

	sendSet := shadowgraph.FindAncestors(unknownTips, pred)
	for _, t := range unknownTips {
		sendSet[t.Hash()] = t
	}

	out := make([]*shadowgraph.ShadowEvent, 0, len(sendSet))
	for _, se := range sendSet {
		out = append(out, se)
	}
	sortByGeneration(out)
	return out
}

// phase3 builds the send list and runs the concurrent event exchange.
// Cancellation is by closing conn (spec §5): both goroutines below are
// blocked only on conn I/O, which SetDeadline (set by Sync) or an
// external Close unblocks.
func (s *Synchronizer) phase3(
	conn net.Conn,
	peer event.NodeID,
	selfGen, peerGen generations.Graph,
	localTips []*shadowgraph.ShadowEvent,
	knownSet map[event.Hash]*shadowgraph.ShadowEvent,
) (sent, received int, err error) {
	sendList := s.buildSendList(selfGen, peerGen, knownSet)

	writeCh := make(chan error, 1)
	readCh := make(chan struct {
		n   int
		err error
	}, 1)

	go func() {
		writeCh <- writeEvents(conn, sendList)
	}()
	go func() {
		n, err := s.readEvents(conn, peer)
		readCh <- struct {
			n   int
			err error
		}{n, err}
	}()

	werr := <-writeCh
	rr := <-readCh

	if werr != nil {
		return len(sendList), rr.n, werr
	}
	if rr.err != nil {
		return len(sendList), rr.n, rr.err
	}
	return len(sendList), rr.n, nil
}

func writeEvents(conn net.Conn, sendList []*shadowgraph.ShadowEvent) error {
	for _, se := range sendList {
		ev := se.Event()
		payload := wire.EventPayload{HashedData: ev.HashedData, UnhashedData: ev.UnhashedData}
		if err := wire.WriteEventRecord(conn, payload); err != nil {
			return wrapIO(err)
		}
	}
	if err := wire.WriteByte(conn, wire.EventDone); err != nil {
		return wrapIO(err)
	}
	return nil
}

func (s *Synchronizer) readEvents(conn net.Conn, peer event.NodeID) (int, error) {
	count := 0
	for {
		b, err := wire.ReadByte(conn)
		if err != nil {
			return count, wrapIO(err)
		}
		switch b {
		case wire.EventNext:
			payload, err := wire.ReadEventPayload(conn)
			if err != nil {
				return count, classifyWireErr(err)
			}
			if s.cfg.Intake != nil {
				if err := s.cfg.Intake(peer, payload); err != nil {
					s.cfg.Log.Warn("event intake rejected payload", zap.Error(err))
				}
			}
			count++
		case wire.EventDone:
			return count, nil
		default:
			return count, wrapProtocol(errUnexpectedByte(b))
		}
	}
}

// syncDoneHandshake writes SYNC_DONE and reads the peer's SYNC_DONE
// concurrently, per spec §4.3's terminating handshake.
func (s *Synchronizer) syncDoneHandshake(conn net.Conn) error {
	writeCh := make(chan error, 1)
	readCh := make(chan error, 1)

	go func() { writeCh <- wire.WriteByte(conn, wire.SyncDone) }()
	go func() {
		b, err := wire.ReadByte(conn)
		if err != nil {
			readCh <- wrapIO(err)
			return
		}
		if b != wire.SyncDone {
			readCh <- wrapProtocol(errUnexpectedByte(b))
			return
		}
		readCh <- nil
	}()

	if err := <-writeCh; err != nil {
		return wrapIO(err)
	}
	if err := <-readCh; err != nil {
		return err
	}
	return nil
}
