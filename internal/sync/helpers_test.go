package sync

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/hashgraph-io/shadowgraph/internal/event"
	"github.com/hashgraph-io/shadowgraph/internal/wire"
)

// buildChainFrom constructs n events in a single self-parent chain,
// generations startGen..startGen+n-1. Used only to exercise the
// synchronizer against a realistic DAG shape; event identity/hashing
// is out of this module's scope in production (spec §1), so tests
// fabricate hashes directly.
func buildChainFrom(seed string, startGen int64, n int) []event.Event {
	events := make([]event.Event, n)
	var prevHash *event.Hash
	for i := 0; i < n; i++ {
		h := sha256.Sum256([]byte(fmt.Sprintf("%s-%d", seed, i)))
		ev := event.Event{
			BaseHash:   h,
			Generation: event.Generation(startGen + int64(i)),
			CreatorID:  1,
		}
		if prevHash != nil {
			ph := *prevHash
			ev.SelfParentHash = &ph
		}
		ev.HashedData = encodeEvent(ev).HashedData
		events[i] = ev
		hh := h
		prevHash = &hh
	}
	return events
}

// encodeEvent and decodeEvent stand in for the production event codec
// that lives outside this module's scope (spec §1: "serialization of
// individual events on the wire" is an external collaborator's
// concern). They let tests drive EventIntake end to end without that
// collaborator existing.
func encodeEvent(ev event.Event) wire.EventPayload {
	var buf bytes.Buffer
	buf.Write(ev.BaseHash[:])
	writeOptionalHash(&buf, ev.SelfParentHash)
	writeOptionalHash(&buf, ev.OtherParentHash)
	var genBuf [8]byte
	binary.BigEndian.PutUint64(genBuf[:], uint64(ev.Generation))
	buf.Write(genBuf[:])
	var creatorBuf [4]byte
	binary.BigEndian.PutUint32(creatorBuf[:], uint32(ev.CreatorID))
	buf.Write(creatorBuf[:])
	return wire.EventPayload{HashedData: buf.Bytes()}
}

func writeOptionalHash(buf *bytes.Buffer, h *event.Hash) {
	if h == nil {
		buf.WriteByte(0)
		return
	}
	buf.WriteByte(1)
	buf.Write(h[:])
}

func decodeEvent(payload wire.EventPayload) event.Event {
	data := payload.HashedData
	var ev event.Event
	copy(ev.BaseHash[:], data[0:32])
	off := 32

	off, ev.SelfParentHash = readOptionalHash(data, off)
	off, ev.OtherParentHash = readOptionalHash(data, off)

	ev.Generation = event.Generation(int64(binary.BigEndian.Uint64(data[off : off+8])))
	off += 8
	ev.CreatorID = event.NodeID(binary.BigEndian.Uint32(data[off : off+4]))
	return ev
}

func readOptionalHash(data []byte, off int) (int, *event.Hash) {
	if data[off] == 0 {
		return off + 1, nil
	}
	var h event.Hash
	copy(h[:], data[off+1:off+1+32])
	return off + 1 + 32, &h
}
