package daemon

import (
	"net/netip"
	"strings"
	"sync"
)

// peerStatus is what the daemon remembers about one overlay peer.
type peerStatus struct {
	files       int
	directories int
	online      bool
	addr        netip.Addr
	hasAddr     bool
}

// peerTable caches peer share counts and addresses as the overlay reports
// them. The group resolver consults it when classifying counterparties:
// share counts drive the leecher test, addresses drive the blacklist test.
// A peer the table has never heard of resolves as unknown.
type peerTable struct {
	mu    sync.RWMutex
	peers map[string]peerStatus
}

func newPeerTable() *peerTable {
	return &peerTable{peers: make(map[string]peerStatus)}
}

func peerKey(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// ObserveStatus records a user-status update from the coordination server.
func (t *peerTable) ObserveStatus(username string, online bool, files, directories int) {
	key := peerKey(username)
	if key == "" {
		return
	}
	t.mu.Lock()
	st := t.peers[key]
	st.online = online
	st.files = files
	st.directories = directories
	t.peers[key] = st
	t.mu.Unlock()
}

// ObserveAddress records a peer's last known address.
func (t *peerTable) ObserveAddress(username string, addr netip.Addr) {
	key := peerKey(username)
	if key == "" || !addr.IsValid() {
		return
	}
	t.mu.Lock()
	st := t.peers[key]
	st.addr = addr
	st.hasAddr = true
	t.peers[key] = st
	t.mu.Unlock()
}

// SharedCounts implements groups.StatsProvider.
func (t *peerTable) SharedCounts(username string) (files, directories int, known bool) {
	t.mu.RLock()
	st, ok := t.peers[peerKey(username)]
	t.mu.RUnlock()
	if !ok {
		return 0, 0, false
	}
	return st.files, st.directories, true
}

// Address implements groups.AddressProvider.
func (t *peerTable) Address(username string) (netip.Addr, bool) {
	t.mu.RLock()
	st, ok := t.peers[peerKey(username)]
	t.mu.RUnlock()
	if !ok || !st.hasAddr {
		return netip.Addr{}, false
	}
	return st.addr, true
}

// Len returns the number of tracked peers.
func (t *peerTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.peers)
}
