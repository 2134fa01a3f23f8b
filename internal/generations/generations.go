// Package generations implements the GraphGenerations wire value: the
// triple of generation numbers a node exchanges with a peer at the
// start of a sync so both sides can detect fallen-behind and bound
// their ancestor searches to the non-ancient window.
//
// The triple itself is computed by the consensus algorithm (out of
// scope for this module — see spec §1); this package only owns its
// shape, validation, and wire encoding.
package generations

import (
	"encoding/binary"
	"fmt"
)

// FirstGeneration is the smallest generation number the platform ever
// assigns. A minRoundGeneration below this is invalid.
const FirstGeneration int64 = 1

// byteLen is the encoded size: three signed 64-bit big-endian integers.
const byteLen = 3 * 8

// Graph is the immutable {minRound, minNonAncient, maxRound} triple.
//
// Invariant: MinRoundGeneration <= MinGenNonAncient <= MaxRoundGeneration,
// and MinRoundGeneration >= FirstGeneration.
type Graph struct {
	MinRoundGeneration int64
	MinGenNonAncient   int64
	MaxRoundGeneration int64
}

// New validates and constructs a Graph. Returns ErrInvalidGenerations
// if the ordering invariant or the floor constant is violated.
func New(minRound, minNonAncient, maxRound int64) (Graph, error) {
	g := Graph{
		MinRoundGeneration: minRound,
		MinGenNonAncient:   minNonAncient,
		MaxRoundGeneration: maxRound,
	}
	if err := g.validate(); err != nil {
		return Graph{}, err
	}
	return g, nil
}

func (g Graph) validate() error {
	if g.MinRoundGeneration < FirstGeneration {
		return fmt.Errorf("%w: minRoundGeneration %d below floor %d",
			ErrInvalidGenerations, g.MinRoundGeneration, FirstGeneration)
	}
	if g.MinRoundGeneration > g.MinGenNonAncient {
		return fmt.Errorf("%w: minRoundGeneration %d > minGenNonAncient %d",
			ErrInvalidGenerations, g.MinRoundGeneration, g.MinGenNonAncient)
	}
	if g.MinGenNonAncient > g.MaxRoundGeneration {
		return fmt.Errorf("%w: minGenNonAncient %d > maxRoundGeneration %d",
			ErrInvalidGenerations, g.MinGenNonAncient, g.MaxRoundGeneration)
	}
	return nil
}

// MarshalBinary encodes g as three big-endian int64s, in the order
// minRoundGeneration, minGenNonAncient, maxRoundGeneration — the exact
// layout spec §6 requires for the phase-1 payload.
func (g Graph) MarshalBinary() ([]byte, error) {
	buf := make([]byte, byteLen)
	binary.BigEndian.PutUint64(buf[0:8], uint64(g.MinRoundGeneration))
	binary.BigEndian.PutUint64(buf[8:16], uint64(g.MinGenNonAncient))
	binary.BigEndian.PutUint64(buf[16:24], uint64(g.MaxRoundGeneration))
	return buf, nil
}

// UnmarshalBinary decodes a Graph from the wire layout produced by
// MarshalBinary and validates it. The receiver's prior value, if any,
// is discarded even on error.
func (g *Graph) UnmarshalBinary(data []byte) error {
	if len(data) != byteLen {
		return fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidGenerations, byteLen, len(data))
	}
	decoded := Graph{
		MinRoundGeneration: int64(binary.BigEndian.Uint64(data[0:8])),
		MinGenNonAncient:   int64(binary.BigEndian.Uint64(data[8:16])),
		MaxRoundGeneration: int64(binary.BigEndian.Uint64(data[16:24])),
	}
	if err := decoded.validate(); err != nil {
		return err
	}
	*g = decoded
	return nil
}

// FallenBehindStatus classifies the relationship between two peers'
// generation windows, per spec §4.3 phase 1.
type FallenBehindStatus int

const (
	// NoneFallenBehind means the two windows overlap; a sync may proceed.
	NoneFallenBehind FallenBehindStatus = iota
	// OtherFallenBehind means the peer appears to be behind self.
	OtherFallenBehind
	// SelfFallenBehind means self appears to be behind the peer.
	SelfFallenBehind
)

func (s FallenBehindStatus) String() string {
	switch s {
	case NoneFallenBehind:
		return "none"
	case OtherFallenBehind:
		return "other_fallen_behind"
	case SelfFallenBehind:
		return "self_fallen_behind"
	default:
		return "unknown"
	}
}

// SyncFallenBehindStatus compares self's and the peer's generation
// windows per spec §4.3:
//
//	OtherFallenBehind if other.MaxRoundGeneration < self.MinRoundGeneration
//	SelfFallenBehind  if self.MaxRoundGeneration  < other.MinRoundGeneration
//	NoneFallenBehind  otherwise
func SyncFallenBehindStatus(self, other Graph) FallenBehindStatus {
	switch {
	case other.MaxRoundGeneration < self.MinRoundGeneration:
		return OtherFallenBehind
	case self.MaxRoundGeneration < other.MinRoundGeneration:
		return SelfFallenBehind
	default:
		return NoneFallenBehind
	}
}
