package sync

import (
	"net"

	"github.com/hashgraph-io/shadowgraph/internal/event"
	"github.com/hashgraph-io/shadowgraph/internal/generations"
	"github.com/hashgraph-io/shadowgraph/internal/shadowgraph"
	"github.com/hashgraph-io/shadowgraph/internal/wire"
)

// exchangePhase1 writes this side's generations and tip hashes, reads
// the peer's, and returns them. Per spec §4.3 phase 1, the read and
// write run concurrently on the connection's two half-streams.
func (s *Synchronizer) exchangePhase1(conn net.Conn, selfGen generations.Graph, localTips []*shadowgraph.ShadowEvent) (generations.Graph, []event.Hash, error) {
	tipHashes := make([]event.Hash, len(localTips))
	for i, t := range localTips {
		tipHashes[i] = t.Hash()
	}

	type writeResult struct{ err error }
	type readResult struct {
		gen    generations.Graph
		hashes []event.Hash
		err    error
	}

	writeCh := make(chan writeResult, 1)
	readCh := make(chan readResult, 1)

	go func() {
		writeCh <- writeResult{writePhase1(conn, selfGen, tipHashes)}
	}()
	go func() {
		g, h, err := s.readPhase1(conn)
		readCh <- readResult{g, h, err}
	}()

	wr := <-writeCh
	rr := <-readCh

	if wr.err != nil {
		return generations.Graph{}, nil, wr.err
	}
	if rr.err != nil {
		return generations.Graph{}, nil, rr.err
	}
	return rr.gen, rr.hashes, nil
}

func writePhase1(conn net.Conn, selfGen generations.Graph, tipHashes []event.Hash) error {
	if err := wire.WriteGenerations(conn, selfGen); err != nil {
		return wrapIO(err)
	}
	if err := wire.WriteHashList(conn, tipHashes); err != nil {
		return wrapIO(err)
	}
	return nil
}

// readPhase1 reads a peer's GraphGenerations and tip hash list. The
// tip list is capped at the configured network node count (spec §6);
// a zero/negative NumberOfNodes leaves the wire package's hard cap as
// the only bound.
func (s *Synchronizer) readPhase1(conn net.Conn) (generations.Graph, []event.Hash, error) {
	gen, err := wire.ReadGenerations(conn)
	if err != nil {
		if ge, ok := asInvalidGenerations(err); ok {
			return generations.Graph{}, nil, wrapProtocol(ge)
		}
		return generations.Graph{}, nil, wrapIO(err)
	}
	hashes, err := wire.ReadHashList(conn, s.cfg.NumberOfNodes)
	if err != nil {
		return generations.Graph{}, nil, classifyWireErr(err)
	}
	return gen, hashes, nil
}

func classifyWireErr(err error) error {
	if isProtocolErr(err) {
		return wrapProtocol(err)
	}
	return wrapIO(err)
}
