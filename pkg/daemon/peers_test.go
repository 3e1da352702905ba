package daemon

import (
	"net/netip"
	"testing"
)

func TestPeerTableUnknownPeer(t *testing.T) {
	table := newPeerTable()

	if _, _, known := table.SharedCounts("ghost"); known {
		t.Error("unknown peer should not be known")
	}
	if _, ok := table.Address("ghost"); ok {
		t.Error("unknown peer should have no address")
	}
}

func TestPeerTableNormalizesUsernames(t *testing.T) {
	table := newPeerTable()
	table.ObserveStatus("  Alice ", true, 10, 2)

	files, dirs, known := table.SharedCounts("alice")
	if !known || files != 10 || dirs != 2 {
		t.Fatalf("counts = %d/%d known=%v, want 10/2 true", files, dirs, known)
	}
	if table.Len() != 1 {
		t.Errorf("Len = %d, want 1", table.Len())
	}
}

func TestPeerTableKeepsAddressAcrossStatusUpdates(t *testing.T) {
	table := newPeerTable()
	addr := netip.MustParseAddr("198.51.100.7")

	table.ObserveAddress("bob", addr)
	table.ObserveStatus("bob", false, 0, 0)

	got, ok := table.Address("bob")
	if !ok || got != addr {
		t.Fatalf("Address = %v ok=%v, want %v true", got, ok, addr)
	}
}

func TestPeerTableIgnoresEmptyAndInvalid(t *testing.T) {
	table := newPeerTable()

	table.ObserveStatus("", true, 1, 1)
	table.ObserveAddress("carol", netip.Addr{})

	if table.Len() != 0 {
		t.Errorf("Len = %d, want 0", table.Len())
	}
}
