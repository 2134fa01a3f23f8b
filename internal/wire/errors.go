package wire

import "errors"

// ErrProtocol marks a wire-format violation: wrong control byte,
// length mismatch, or a length that overflows a documented cap.
// Fatal to the sync it occurred in, never to the process.
var ErrProtocol = errors.New("wire: protocol violation")
