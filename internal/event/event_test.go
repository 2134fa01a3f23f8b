package event

import "testing"

func TestHash_StringAndShort(t *testing.T) {
	var h Hash
	h[0] = 0xab
	h[1] = 0xcd

	if got := h.String(); got[:4] != "abcd" {
		t.Fatalf("expected hex prefix abcd, got %s", got)
	}
	if len(h.Short()) != 8 {
		t.Fatalf("expected short hash of length 8, got %d", len(h.Short()))
	}
}

func TestHash_IsZero(t *testing.T) {
	var zero Hash
	if !zero.IsZero() {
		t.Fatal("expected zero-valued hash to report IsZero")
	}
	nonZero := Hash{1}
	if nonZero.IsZero() {
		t.Fatal("expected non-zero hash to report !IsZero")
	}
}

func TestNodeID_String(t *testing.T) {
	if got := NodeID(7).String(); got != "node-7" {
		t.Fatalf("unexpected NodeID string: %s", got)
	}
}

func TestEvent_IsNil(t *testing.T) {
	var e *Event
	if !e.IsNil() {
		t.Fatal("expected nil *Event to report IsNil")
	}
	e = &Event{}
	if e.IsNil() {
		t.Fatal("expected non-nil *Event to report !IsNil")
	}
}
