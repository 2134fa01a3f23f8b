package shadowgraph

import (
	"crypto/sha256"
	"fmt"

	"github.com/hashgraph-io/shadowgraph/internal/event"
)

func testHash(label string) event.Hash {
	return sha256.Sum256([]byte(label))
}

// linearChain builds n events in a single self-parent chain, labeled
// "label-i", generations startGen..startGen+n-1.
func linearChain(label string, startGen int64, n int) []event.Event {
	events := make([]event.Event, n)
	var prev *event.Hash
	for i := 0; i < n; i++ {
		h := testHash(fmt.Sprintf("%s-%d", label, i))
		ev := event.Event{BaseHash: h, Generation: event.Generation(startGen + int64(i)), CreatorID: 1}
		if prev != nil {
			ph := *prev
			ev.SelfParentHash = &ph
		}
		events[i] = ev
		hh := h
		prev = &hh
	}
	return events
}
