package netconn

import (
	"context"
	"testing"
	"time"

	"github.com/hashgraph-io/shadowgraph/internal/event"
)

type nodeIDOrErr struct {
	ID  event.NodeID
	Err error
}

func TestPeerNodeID_ExtractsFromClientCertificate(t *testing.T) {
	mat := generateTestMaterialWithCN(t, t.TempDir(), "42")

	lis, err := Listen("127.0.0.1:0", mat)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer lis.Close()

	serverDone := make(chan nodeIDOrErr, 1)
	go func() {
		conn, err := lis.Accept()
		if err != nil {
			serverDone <- nodeIDOrErr{Err: err}
			return
		}
		defer conn.Close()
		id, err := PeerNodeID(conn)
		serverDone <- nodeIDOrErr{ID: id, Err: err}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := Dial(ctx, lis.Addr().String(), mat)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	result := <-serverDone
	if result.Err != nil {
		t.Fatalf("PeerNodeID: %v", result.Err)
	}
	if result.ID != 42 {
		t.Fatalf("expected peer NodeID 42, got %d", result.ID)
	}
}
