// Package sync drives the three-phase peer reconciliation protocol
// described in spec §4.3: framing, tips/generations exchange, tip
// boolean exchange, and event exchange, with an optional trailing
// bandwidth throttle.
package sync

import "errors"

// ErrProtocol marks a wire-format violation encountered during a sync:
// an unexpected control byte, a length mismatch, or a SYNC_DONE
// handshake mismatch. Fatal to the sync it occurred in, never to the
// process (spec §7).
var ErrProtocol = errors.New("sync: protocol violation")

// ErrIO wraps an underlying connection read/write failure. Fatal to
// this sync only.
var ErrIO = errors.New("sync: io failure")

// ErrCancelled is the sentinel for a sync cancelled before completion.
// Sync does not return it: cancelling its context does not interrupt a
// sync in progress, and a connection closed mid-sync surfaces as ErrIO.
var ErrCancelled = errors.New("sync: cancelled")

// ErrTimeout reports that the sync exceeded its wall-clock deadline.
// Equivalent to cancellation in effect (spec §5).
var ErrTimeout = errors.New("sync: timeout")
