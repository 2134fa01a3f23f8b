package shadowgraph

import "errors"

// Insertion outcomes. NullEvent, DuplicateShadow, and Expired are
// non-fatal result values reported to the event-intake caller, not
// panics — see spec §4.1 and §7.
var (
	// ErrNullEvent is returned when add is called with a nil event.
	ErrNullEvent = errors.New("shadowgraph: null event")

	// ErrDuplicateShadow is returned when the event's base hash is
	// already present in the graph.
	ErrDuplicateShadow = errors.New("shadowgraph: duplicate shadow")

	// ErrExpired is returned when the event's generation is below the
	// graph's oldestGeneration floor.
	ErrExpired = errors.New("shadowgraph: event generation already expired")

	// ErrInvalidArgument is returned by initFrom for an empty/nil event
	// sequence.
	ErrInvalidArgument = errors.New("shadowgraph: invalid argument")
)
