package main

import (
	"crypto/sha256"
	"fmt"

	"github.com/hashgraph-io/shadowgraph/internal/event"
	"github.com/hashgraph-io/shadowgraph/internal/wire"
)

// decodeEvent reconstructs an event.Event from a wire.EventPayload.
//
// Real event assembly — parent-hash extraction, generation assignment,
// creator identity, signature verification over UnhashedData — is
// consensus's job and out of scope for this module (spec §1). This
// decoder is the narrowest stand-in that lets a standalone
// shadowgraphd process run end to end: it derives BaseHash directly
// from HashedData and stores both halves of the payload verbatim,
// without parent linkage. A real deployment replaces this function
// with the platform's own event codec.
func decodeEvent(p wire.EventPayload) (event.Event, error) {
	if len(p.HashedData) == 0 {
		return event.Event{}, fmt.Errorf("decodeEvent: empty hashed payload")
	}
	sum := sha256.Sum256(p.HashedData)
	return event.Event{
		BaseHash:     event.Hash(sum),
		HashedData:   p.HashedData,
		UnhashedData: p.UnhashedData,
	}, nil
}
