package sync

import (
	"errors"

	"github.com/hashgraph-io/shadowgraph/internal/generations"
	"github.com/hashgraph-io/shadowgraph/internal/wire"
)

func isProtocolErr(err error) bool {
	return errors.Is(err, wire.ErrProtocol)
}

func asInvalidGenerations(err error) (error, bool) {
	if errors.Is(err, generations.ErrInvalidGenerations) {
		return err, true
	}
	return nil, false
}
