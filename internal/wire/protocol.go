// Package wire implements the byte-level framing spec §6 defines for
// the shadow graph's reconciliation protocol: fixed one-byte control
// constants, big-endian multi-byte integers, and 32-bit-length-prefixed
// lists. Nothing here is protocol-logic — internal/sync drives the
// phases; this package only encodes/decodes their payloads.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/hashgraph-io/shadowgraph/internal/event"
	"github.com/hashgraph-io/shadowgraph/internal/generations"
)

// Control byte constants, per spec §6. The specific numeric values are
// implementation-agreed, not externally mandated — what matters is
// that every peer on the network agrees on them.
const (
	SyncRequest byte = 0x42
	SyncAck     byte = 0x43
	SyncNack    byte = 0x44
	SyncDone    byte = 0x45

	EventNext byte = 0x48
	EventDone byte = 0x4A
)

// hardHashListCap bounds a phase-1 tip-hash list so a misbehaving or
// corrupt peer cannot force an unbounded allocation. Per spec §6 the
// real bound is the network's node count; ReadHashList's maxLen
// argument carries it.
const hardHashListCap = 1 << 20

// WriteByte writes a single control byte.
func WriteByte(w io.Writer, b byte) error {
	_, err := w.Write([]byte{b})
	return err
}

// ReadByte reads a single byte, surfacing EOF/short-read as-is so
// callers can distinguish a clean stream close from a protocol error.
func ReadByte(r io.Reader) (byte, error) {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

// WriteUint32 writes a big-endian length/count prefix.
func WriteUint32(w io.Writer, v uint32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

// ReadUint32 reads a big-endian length/count prefix.
func ReadUint32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

// WriteGenerations writes a GraphGenerations triple.
func WriteGenerations(w io.Writer, g generations.Graph) error {
	data, err := g.MarshalBinary()
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// ReadGenerations reads a GraphGenerations triple.
func ReadGenerations(r io.Reader) (generations.Graph, error) {
	buf := make([]byte, 24)
	if _, err := io.ReadFull(r, buf); err != nil {
		return generations.Graph{}, err
	}
	var g generations.Graph
	if err := g.UnmarshalBinary(buf); err != nil {
		return generations.Graph{}, err
	}
	return g, nil
}

// WriteHashList writes a length-prefixed list of event hashes.
func WriteHashList(w io.Writer, hashes []event.Hash) error {
	if err := WriteUint32(w, uint32(len(hashes))); err != nil {
		return err
	}
	for _, h := range hashes {
		if _, err := w.Write(h[:]); err != nil {
			return err
		}
	}
	return nil
}

// ReadHashList reads a length-prefixed list of event hashes. maxLen
// bounds the accepted count (spec §6: "capped at the network node
// count; overflow is a protocol error").
func ReadHashList(r io.Reader, maxLen int) ([]event.Hash, error) {
	n, err := ReadUint32(r)
	if err != nil {
		return nil, err
	}
	if maxLen > 0 && int(n) > maxLen {
		return nil, fmt.Errorf("%w: tip list length %d exceeds cap %d", ErrProtocol, n, maxLen)
	}
	if int(n) > hardHashListCap {
		return nil, fmt.Errorf("%w: tip list length %d exceeds hard cap %d", ErrProtocol, n, hardHashListCap)
	}
	out := make([]event.Hash, n)
	for i := range out {
		if _, err := io.ReadFull(r, out[i][:]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// WriteBoolList writes a length-prefixed list of booleans, one byte each.
func WriteBoolList(w io.Writer, bs []bool) error {
	if err := WriteUint32(w, uint32(len(bs))); err != nil {
		return err
	}
	buf := make([]byte, len(bs))
	for i, b := range bs {
		if b {
			buf[i] = 1
		}
	}
	_, err := w.Write(buf)
	return err
}

// ReadBoolList reads a length-prefixed list of booleans. expectedLen,
// if >= 0, is checked exactly: spec §6 makes a tip-count mismatch a
// hard protocol error, not a soft truncate/pad.
func ReadBoolList(r io.Reader, expectedLen int) ([]bool, error) {
	n, err := ReadUint32(r)
	if err != nil {
		return nil, err
	}
	if expectedLen >= 0 && int(n) != expectedLen {
		return nil, fmt.Errorf("%w: boolean list length %d != expected %d", ErrProtocol, n, expectedLen)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	out := make([]bool, n)
	for i, b := range buf {
		out[i] = b != 0
	}
	return out, nil
}

// EventPayload is the hashed/unhashed data pair carried by an
// EVENT_NEXT record, per spec §6.
type EventPayload struct {
	HashedData   []byte
	UnhashedData []byte
}

// WriteEventRecord writes a single {EVENT_NEXT, hashedData, unhashedData} record.
func WriteEventRecord(w io.Writer, p EventPayload) error {
	if err := WriteByte(w, EventNext); err != nil {
		return err
	}
	if err := writeBytes(w, p.HashedData); err != nil {
		return err
	}
	return writeBytes(w, p.UnhashedData)
}

func writeBytes(w io.Writer, data []byte) error {
	if err := WriteUint32(w, uint32(len(data))); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

func readBytes(r io.Reader, maxLen int) ([]byte, error) {
	n, err := ReadUint32(r)
	if err != nil {
		return nil, err
	}
	if maxLen > 0 && int(n) > maxLen {
		return nil, fmt.Errorf("%w: payload length %d exceeds cap %d", ErrProtocol, n, maxLen)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// MaxEventPayloadBytes bounds a single event's hashed+unhashed payload
// to guard against a corrupt length prefix forcing a huge allocation.
const MaxEventPayloadBytes = 16 << 20

// ReadEventPayload reads the hashedData/unhashedData pair that follows
// an already-consumed EVENT_NEXT byte.
func ReadEventPayload(r io.Reader) (EventPayload, error) {
	hashed, err := readBytes(r, MaxEventPayloadBytes)
	if err != nil {
		return EventPayload{}, err
	}
	unhashed, err := readBytes(r, MaxEventPayloadBytes)
	if err != nil {
		return EventPayload{}, err
	}
	return EventPayload{HashedData: hashed, UnhashedData: unhashed}, nil
}

// WriteThrottle writes the optional bandwidth-throttle payload: a
// 32-bit length L followed by L 32-bit integers.
func WriteThrottle(w io.Writer, values []uint32) error {
	if err := WriteUint32(w, uint32(len(values))); err != nil {
		return err
	}
	for _, v := range values {
		if err := WriteUint32(w, v); err != nil {
			return err
		}
	}
	return nil
}

// ReadThrottle reads and discards the throttle payload, enforcing
// spec §6's "L is bounded by maxThrottleBytes/4" cap.
func ReadThrottle(r io.Reader, maxValues int) error {
	n, err := ReadUint32(r)
	if err != nil {
		return err
	}
	if int(n) > maxValues {
		return fmt.Errorf("%w: throttle length %d exceeds cap %d", ErrProtocol, n, maxValues)
	}
	buf := make([]byte, 4)
	for i := uint32(0); i < n; i++ {
		if _, err := io.ReadFull(r, buf); err != nil {
			return err
		}
	}
	return nil
}
