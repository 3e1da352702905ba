package transfers

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// governorChunk bounds a single token acquisition so large writes make
// progress in pieces instead of stalling for one huge grant.
const governorChunk = 32 * 1024

// Governor owns the token buckets that cap transfer bandwidth: one bucket
// per group per direction plus one global bucket per direction. Bucket
// capacity equals one second of the configured rate. The global bucket is
// the final cap.
type Governor struct {
	mu     sync.Mutex
	global [2]*rate.Limiter
	groups map[string]*rate.Limiter
}

// NewGovernor creates a governor with both directions unlimited.
func NewGovernor() *Governor {
	g := &Governor{groups: make(map[string]*rate.Limiter)}
	g.global[Download] = newLimiter(0)
	g.global[Upload] = newLimiter(0)
	return g
}

// newLimiter builds a bucket for the given rate; 0 means unlimited.
func newLimiter(bytesPerSecond int64) *rate.Limiter {
	if bytesPerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(bytesPerSecond), int(bytesPerSecond))
}

// SetGlobalLimit replaces the direction's global bucket.
func (g *Governor) SetGlobalLimit(dir Direction, bytesPerSecond int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.global[dir] = newLimiter(bytesPerSecond)
}

// SetGroupLimit replaces a group's bucket for one direction.
func (g *Governor) SetGroupLimit(dir Direction, group string, bytesPerSecond int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.groups[groupKey(dir, group)] = newLimiter(bytesPerSecond)
}

// DropGroup forgets a group's buckets, for groups removed by a
// configuration change.
func (g *Governor) DropGroup(group string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.groups, groupKey(Download, group))
	delete(g.groups, groupKey(Upload, group))
}

func groupKey(dir Direction, group string) string {
	return dir.String() + "/" + group
}

// GroupNames returns the names of all groups holding buckets.
func (g *Governor) GroupNames() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	seen := make(map[string]bool)
	var names []string
	for k := range g.groups {
		if i := strings.IndexByte(k, '/'); i >= 0 {
			name := k[i+1:]
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	return names
}

func (g *Governor) limiters(dir Direction, group string) (grp, global *rate.Limiter) {
	g.mu.Lock()
	defer g.mu.Unlock()
	grp = g.groups[groupKey(dir, group)]
	return grp, g.global[dir]
}

// HasBudget reports whether the group and global buckets both hold at
// least one whole token. The scheduler uses it as the admission gate; an
// exhausted bucket delays admission until the next governor tick. A bucket
// that cannot pass a single byte counts as exhausted even though refill
// accrues fractional tokens between the drain and this call.
func (g *Governor) HasBudget(dir Direction, group string) bool {
	grp, global := g.limiters(dir, group)
	if global.Limit() != rate.Inf && global.Tokens() < 1 {
		return false
	}
	if grp != nil && grp.Limit() != rate.Inf && grp.Tokens() < 1 {
		return false
	}
	return true
}

// Stream returns the per-transfer governor handed to the byte pump. It
// draws from the group bucket first, then the global one.
func (g *Governor) Stream(dir Direction, group string) *StreamGovernor {
	return &StreamGovernor{parent: g, dir: dir, group: group}
}

// StreamGovernor suspends a single transfer's byte stream until tokens are
// available. It satisfies the overlay library's rate-governor hook.
type StreamGovernor struct {
	parent *Governor
	dir    Direction
	group  string
}

// WaitN blocks until n bytes may move. Acquisition is chunked so partial
// progress is possible; limiter replacement after a reconfigure is picked
// up at the next chunk.
func (sg *StreamGovernor) WaitN(ctx context.Context, n int) error {
	for n > 0 {
		chunk := n
		if chunk > governorChunk {
			chunk = governorChunk
		}

		grp, global := sg.parent.limiters(sg.dir, sg.group)
		if grp != nil {
			if err := waitCapped(ctx, grp, chunk); err != nil {
				return err
			}
		}
		if err := waitCapped(ctx, global, chunk); err != nil {
			return err
		}
		n -= chunk
	}
	return nil
}

// waitCapped waits for n tokens, clamping n to the limiter's burst so a
// rate below the chunk size cannot make WaitN unsatisfiable.
func waitCapped(ctx context.Context, l *rate.Limiter, n int) error {
	if l.Limit() == rate.Inf {
		return nil
	}
	if burst := l.Burst(); n > burst && burst > 0 {
		for n > 0 {
			step := n
			if step > burst {
				step = burst
			}
			if err := l.WaitN(ctx, step); err != nil {
				return err
			}
			n -= step
		}
		return nil
	}
	return l.WaitN(ctx, n)
}
