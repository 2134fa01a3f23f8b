package generations

import "errors"

// ErrInvalidGenerations is returned by New/UnmarshalBinary when the
// {minRound, minNonAncient, maxRound} ordering invariant, or the
// platform's first-generation floor, is violated.
var ErrInvalidGenerations = errors.New("generations: invalid triple")
