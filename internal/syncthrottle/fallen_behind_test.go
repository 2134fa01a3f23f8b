package syncthrottle

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hashgraph-io/shadowgraph/internal/event"
)

type fakeReachable struct {
	connected map[event.NodeID]bool
}

func (f *fakeReachable) IsConnected(peer event.NodeID) bool {
	return f.connected[peer]
}

func TestFallenBehindManager_ThresholdCrossing(t *testing.T) {
	m := NewFallenBehindManager(0.5, func() int { return 4 }, nil)

	require.False(t, m.HasFallenBehind())

	m.ReportFallenBehind(event.NodeID(1))
	require.False(t, m.HasFallenBehind(), "1/4 reporters must not exceed a 0.5 threshold")

	m.ReportFallenBehind(event.NodeID(2))
	require.False(t, m.HasFallenBehind(), "2/4 reporters equals, not exceeds, the threshold")

	m.ReportFallenBehind(event.NodeID(3))
	require.True(t, m.HasFallenBehind(), "3/4 reporters exceeds a 0.5 threshold")
}

func TestFallenBehindManager_ReportIsDeduplicated(t *testing.T) {
	m := NewFallenBehindManager(0.1, func() int { return 10 }, nil)

	m.ReportFallenBehind(event.NodeID(1))
	m.ReportFallenBehind(event.NodeID(1))
	m.ReportFallenBehind(event.NodeID(1))

	require.Equal(t, 1, m.ReporterCount())
}

func TestFallenBehindManager_Reset(t *testing.T) {
	m := NewFallenBehindManager(0.1, func() int { return 2 }, nil)

	m.ReportFallenBehind(event.NodeID(1))
	require.True(t, m.HasFallenBehind())

	m.ResetFallenBehind()
	require.False(t, m.HasFallenBehind())
	require.Equal(t, 0, m.ReporterCount())
}

func TestFallenBehindManager_ZeroNeighbors(t *testing.T) {
	m := NewFallenBehindManager(0.1, func() int { return 0 }, nil)
	m.ReportFallenBehind(event.NodeID(1))
	require.False(t, m.HasFallenBehind(), "a zero-neighbor graph can never be fallen-behind")
}

func TestFallenBehindManager_GetNeighborsForReconnect_NoReachableFilter(t *testing.T) {
	m := NewFallenBehindManager(0.1, func() int { return 10 }, nil)
	m.ReportFallenBehind(event.NodeID(1))
	m.ReportFallenBehind(event.NodeID(2))

	got := m.GetNeighborsForReconnect()
	require.ElementsMatch(t, []event.NodeID{1, 2}, got)
}

func TestFallenBehindManager_GetNeighborsForReconnect_IntersectsReachable(t *testing.T) {
	reachable := &fakeReachable{connected: map[event.NodeID]bool{1: true, 2: false}}
	m := NewFallenBehindManager(0.1, func() int { return 10 }, reachable)

	m.ReportFallenBehind(event.NodeID(1))
	m.ReportFallenBehind(event.NodeID(2))
	m.ReportFallenBehind(event.NodeID(3))

	got := m.GetNeighborsForReconnect()
	require.ElementsMatch(t, []event.NodeID{1}, got)
}
