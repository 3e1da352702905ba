// Package groups resolves overlay usernames to the policy group that
// governs their transfers.
//
// Three groups are built in: "default" for unmatched users, "leechers" for
// users sharing less than the configured thresholds, and "blacklisted" for
// counterparties that must never be served. Operator-defined groups take
// precedence over the built-ins and are matched in priority order.
package groups

import (
	"net/netip"
	"sort"
	"strings"
	"sync"

	"github.com/seekd/seekd/pkg/blacklist"
	"github.com/seekd/seekd/pkg/config"
)

// Built-in group names.
const (
	Default     = "default"
	Leechers    = "leechers"
	Blacklisted = "blacklisted"
)

// Strategy selects how queued transfers are picked within a group.
type Strategy int

const (
	// RoundRobin rotates across the group's users, serving each user's
	// transfers in FIFO order.
	RoundRobin Strategy = iota

	// FirstInFirstOut serves the group's oldest queued transfer
	// regardless of user.
	FirstInFirstOut
)

// String returns the strategy name as used in configuration.
func (s Strategy) String() string {
	if s == FirstInFirstOut {
		return "fifo"
	}
	return "round_robin"
}

// ParseStrategy maps a configuration string to a Strategy.
// Unknown values fall back to RoundRobin.
func ParseStrategy(s string) Strategy {
	if strings.EqualFold(strings.TrimSpace(s), "fifo") {
		return FirstInFirstOut
	}
	return RoundRobin
}

// Group is one resolved policy bundle.
type Group struct {
	Name     string
	Priority int
	Strategy Strategy

	// Slots caps concurrent transfers for the group's members.
	// 0 means no group-level cap.
	Slots int

	// SpeedLimit caps aggregate group bandwidth in bytes per second.
	// 0 means unlimited.
	SpeedLimit int64

	// Members lists explicit usernames for operator-defined groups.
	// Empty for the built-ins, whose membership is derived.
	Members []string
}

// IsBlacklisted reports whether this is the blacklisted group.
func (g Group) IsBlacklisted() bool {
	return g.Name == Blacklisted
}

// StatsProvider reports a peer's advertised share counts. Counts arrive
// through the overlay's user-status stream; a peer the daemon has not heard
// about resolves with known=false and is never classified as a leecher.
type StatsProvider interface {
	SharedCounts(username string) (files, directories int, known bool)
}

// AddressProvider reports a peer's last known IP address, when one is
// available, for the blacklist membership test.
type AddressProvider interface {
	Address(username string) (netip.Addr, bool)
}

// Resolver maps usernames to groups from the current configuration.
type Resolver struct {
	mu          sync.RWMutex
	userDefined []Group
	memberIndex map[string]int
	defaults    Group
	leechers    Group
	thresholds  config.LeecherThresholds

	stats StatsProvider
	addrs AddressProvider
	list  *blacklist.Blacklist
}

// NewResolver builds a resolver from the groups configuration.
// stats, addrs, and list may be nil; the corresponding checks are skipped.
func NewResolver(cfg config.GroupsConfig, stats StatsProvider, addrs AddressProvider, list *blacklist.Blacklist) *Resolver {
	r := &Resolver{
		stats: stats,
		addrs: addrs,
		list:  list,
	}
	r.Reconfigure(cfg)
	return r
}

// Reconfigure rebuilds the group table from a new configuration snapshot.
// In-flight transfers keep the group they were admitted under; only future
// resolutions see the new table.
func (r *Resolver) Reconfigure(cfg config.GroupsConfig) {
	userDefined := make([]Group, 0, len(cfg.UserDefined))
	for name, gc := range cfg.UserDefined {
		members := make([]string, len(gc.Members))
		for i, m := range gc.Members {
			members[i] = strings.ToLower(strings.TrimSpace(m))
		}
		userDefined = append(userDefined, Group{
			Name:       name,
			Priority:   gc.Priority,
			Strategy:   ParseStrategy(gc.Strategy),
			Slots:      gc.Slots,
			SpeedLimit: int64(gc.SpeedLimit),
			Members:    members,
		})
	}

	// Configuration maps are unordered; membership conflicts resolve by
	// priority, then name, so repeated loads agree.
	sort.Slice(userDefined, func(i, j int) bool {
		if userDefined[i].Priority != userDefined[j].Priority {
			return userDefined[i].Priority < userDefined[j].Priority
		}
		return userDefined[i].Name < userDefined[j].Name
	})

	memberIndex := make(map[string]int)
	for i, g := range userDefined {
		for _, m := range g.Members {
			if _, taken := memberIndex[m]; !taken {
				memberIndex[m] = i
			}
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.userDefined = userDefined
	r.memberIndex = memberIndex
	r.defaults = Group{
		Name:       Default,
		Priority:   cfg.Default.Priority,
		Strategy:   ParseStrategy(cfg.Default.Strategy),
		Slots:      cfg.Default.Slots,
		SpeedLimit: int64(cfg.Default.SpeedLimit),
	}
	r.leechers = Group{
		Name:       Leechers,
		Priority:   cfg.Leechers.Priority,
		Strategy:   ParseStrategy(cfg.Leechers.Strategy),
		Slots:      cfg.Leechers.Slots,
		SpeedLimit: int64(cfg.Leechers.SpeedLimit),
	}
	r.thresholds = cfg.Leechers.Thresholds
}

// SetBlacklist replaces the IP blacklist used for membership tests.
func (r *Resolver) SetBlacklist(list *blacklist.Blacklist) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.list = list
}

// Resolve returns the effective group for a username.
//
// Order: blacklist short-circuit, first operator-defined group containing
// the name, leechers when the peer's advertised share counts fall below the
// thresholds, default otherwise.
func (r *Resolver) Resolve(username string) Group {
	key := strings.ToLower(strings.TrimSpace(username))

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.isBlacklistedLocked(key) {
		return Group{Name: Blacklisted, Priority: 1 << 30}
	}

	if i, ok := r.memberIndex[key]; ok {
		return r.userDefined[i]
	}

	if r.stats != nil {
		files, dirs, known := r.stats.SharedCounts(username)
		if known && (files < r.thresholds.Files || dirs < r.thresholds.Directories) {
			return r.leechers
		}
	}

	return r.defaults
}

// Groups returns every resolvable group ordered by priority: the
// operator-defined groups followed by the built-ins.
func (r *Resolver) Groups() []Group {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Group, 0, len(r.userDefined)+2)
	out = append(out, r.userDefined...)
	out = append(out, r.defaults, r.leechers)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}

func (r *Resolver) isBlacklistedLocked(username string) bool {
	if r.list == nil || r.addrs == nil {
		return false
	}
	addr, ok := r.addrs.Address(username)
	if !ok {
		return false
	}
	return r.list.Contains(addr)
}
