package discovery

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPeerTableUpsertAndSnapshot(t *testing.T) {
	table := NewPeerTable()
	table.Upsert(Peer{ID: "alice", Addr: &net.UDPAddr{IP: net.ParseIP("10.0.0.2"), Port: 18521}})
	table.Upsert(Peer{ID: "bob", Addr: &net.UDPAddr{IP: net.ParseIP("10.0.0.3"), Port: 18521}})

	require.Equal(t, 2, table.Len())

	snap := table.Snapshot()
	require.Len(t, snap, 2)
}

func TestPeerTableUpsertRefreshesExistingEntry(t *testing.T) {
	table := NewPeerTable()
	table.Upsert(Peer{ID: "alice", Addr: &net.UDPAddr{IP: net.ParseIP("10.0.0.2"), Port: 18521}})
	table.Upsert(Peer{ID: "alice", Addr: &net.UDPAddr{IP: net.ParseIP("10.0.0.9"), Port: 18521}})

	require.Equal(t, 1, table.Len())
	snap := table.Snapshot()
	require.Equal(t, "10.0.0.9", snap[0].Addr.IP.String())
}

func TestPeerRemovalMidSend(t *testing.T) {
	// E6 — remove a peer from the table between two sender iterations;
	// surviving peers remain in the snapshot.
	table := NewPeerTable()
	table.Upsert(Peer{ID: "alice", Addr: &net.UDPAddr{IP: net.ParseIP("10.0.0.2"), Port: 18521}})
	table.Upsert(Peer{ID: "bob", Addr: &net.UDPAddr{IP: net.ParseIP("10.0.0.3"), Port: 18521}})

	table.Remove("alice")

	snap := table.Snapshot()
	require.Len(t, snap, 1)
	require.Equal(t, "bob", snap[0].ID)
}
