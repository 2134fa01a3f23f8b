package sync

import (
	"net"

	"github.com/hashgraph-io/shadowgraph/internal/event"
	"github.com/hashgraph-io/shadowgraph/internal/shadowgraph"
	"github.com/hashgraph-io/shadowgraph/internal/wire"
)

// exchangePhase2 sends, for each peer tip hash, whether this side
// already has it; reads the peer's equivalent vector (one bool per
// local tip, order matching localTips); and seeds the known set per
// spec §4.3 phase 2: every local shadow matching a peer tip hash we
// already have, plus every local tip the peer reported having.
func (s *Synchronizer) exchangePhase2(conn net.Conn, peerTipHashes []event.Hash, localTips []*shadowgraph.ShadowEvent) (map[event.Hash]*shadowgraph.ShadowEvent, error) {
	knownSet := make(map[event.Hash]*shadowgraph.ShadowEvent)

	haveBools := make([]bool, len(peerTipHashes))
	for i, h := range peerTipHashes {
		if se, ok := s.graph.Shadow(h); ok {
			haveBools[i] = true
			knownSet[h] = se
		}
	}

	type ioResult struct{ err error }
	writeCh := make(chan ioResult, 1)
	readCh := make(chan struct {
		bools []bool
		err   error
	}, 1)

	go func() {
		writeCh <- ioResult{wire.WriteBoolList(conn, haveBools)}
	}()
	go func() {
		bools, err := wire.ReadBoolList(conn, len(localTips))
		readCh <- struct {
			bools []bool
			err   error
		}{bools, err}
	}()

	wr := <-writeCh
	rr := <-readCh

	if wr.err != nil {
		return nil, wrapIO(wr.err)
	}
	if rr.err != nil {
		return nil, classifyWireErr(rr.err)
	}

	for i, has := range rr.bools {
		if has {
			t := localTips[i]
			knownSet[t.Hash()] = t
		}
	}

	return knownSet, nil
}
