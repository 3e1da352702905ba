// Package blacklist parses IP blacklist files and answers IPv4
// containment queries.
//
// Three formats are supported: plain CIDR lists, PeerGuardian P2P
// ("label:start-end"), and eMule DAT ("start - end , level , label").
// Lookups are served from a 256-entry first-octet index, so the average
// query touches a handful of ranges regardless of list size.
package blacklist

import (
	"bufio"
	"fmt"
	"io"
	"net/netip"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/seekd/seekd/pkg/seekerr"
)

// Format identifies a blacklist file format.
type Format int

const (
	FormatUnknown Format = iota
	FormatCIDR
	FormatP2P
	FormatDAT
)

// String returns the format name.
func (f Format) String() string {
	switch f {
	case FormatCIDR:
		return "cidr"
	case FormatP2P:
		return "p2p"
	case FormatDAT:
		return "dat"
	default:
		return "unknown"
	}
}

// ParseFormat maps a configuration string to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cidr":
		return FormatCIDR, nil
	case "p2p":
		return FormatP2P, nil
	case "dat":
		return FormatDAT, nil
	case "", "auto":
		return FormatUnknown, nil
	default:
		return FormatUnknown, seekerr.Newf(seekerr.KindInvalidArgument, "unknown blacklist format %q", s)
	}
}

// Range is an inclusive IPv4 address range.
type Range struct {
	Start uint32
	End   uint32
}

// Blacklist answers IPv4 containment queries against a set of ranges.
type Blacklist struct {
	mu      sync.RWMutex
	buckets [256][]Range
	count   int
}

// New creates an empty blacklist.
func New() *Blacklist {
	return &Blacklist{}
}

// LoadFile reads a blacklist file, auto-detecting the format when format
// is FormatUnknown, and returns the number of ranges added.
func (b *Blacklist) LoadFile(path string, format Format) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, seekerr.Wrap(seekerr.KindLocalIO, "opening blacklist", err)
	}
	defer f.Close()

	if format == FormatUnknown {
		format, err = DetectFormat(f)
		if err != nil {
			return 0, err
		}
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return 0, seekerr.Wrap(seekerr.KindLocalIO, "rewinding blacklist", err)
		}
	}
	return b.Load(f, format)
}

// Load parses ranges from r in the given format and adds them.
func (b *Blacklist) Load(r io.Reader, format Format) (int, error) {
	var parse func(string) (Range, bool, error)
	switch format {
	case FormatCIDR:
		parse = parseCIDRLine
	case FormatP2P:
		parse = parseP2PLine
	case FormatDAT:
		parse = parseDATLine
	default:
		return 0, seekerr.New(seekerr.KindInvalidArgument, "blacklist format not specified")
	}

	var added []Range
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		rng, ok, err := parse(scanner.Text())
		if err != nil {
			return 0, seekerr.Wrap(seekerr.KindInvalidArgument, fmt.Sprintf("line %d", line), err)
		}
		if ok {
			added = append(added, rng)
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, seekerr.Wrap(seekerr.KindLocalIO, "reading blacklist", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, rng := range added {
		b.insert(rng)
	}
	b.compact()
	return len(added), nil
}

// insert splits the range at /8 boundaries and stores each piece in the
// bucket for its first octet. Caller holds the write lock.
func (b *Blacklist) insert(rng Range) {
	start := rng.Start
	for start <= rng.End {
		bucket := start >> 24
		bucketEnd := bucket<<24 | 0x00FFFFFF
		end := rng.End
		if end > bucketEnd {
			end = bucketEnd
		}
		b.buckets[bucket] = append(b.buckets[bucket], Range{Start: start, End: end})
		if end == 0xFFFFFFFF {
			break
		}
		start = end + 1
	}
}

// compact sorts each bucket and merges overlapping or adjacent ranges.
// Caller holds the write lock.
func (b *Blacklist) compact() {
	total := 0
	for i := range b.buckets {
		ranges := b.buckets[i]
		if len(ranges) == 0 {
			continue
		}
		sort.Slice(ranges, func(a, c int) bool { return ranges[a].Start < ranges[c].Start })

		merged := ranges[:1]
		for _, r := range ranges[1:] {
			last := &merged[len(merged)-1]
			if r.Start <= last.End || (last.End != 0xFFFFFFFF && r.Start == last.End+1) {
				if r.End > last.End {
					last.End = r.End
				}
				continue
			}
			merged = append(merged, r)
		}
		b.buckets[i] = merged
		total += len(merged)
	}
	b.count = total
}

// Contains reports whether the IPv4 address is covered. Non-IPv4
// addresses are never contained.
func (b *Blacklist) Contains(addr netip.Addr) bool {
	if addr.Is4In6() {
		addr = addr.Unmap()
	}
	if !addr.Is4() {
		return false
	}
	v4 := addr.As4()
	ip := uint32(v4[0])<<24 | uint32(v4[1])<<16 | uint32(v4[2])<<8 | uint32(v4[3])

	b.mu.RLock()
	defer b.mu.RUnlock()

	bucket := b.buckets[v4[0]]
	if len(bucket) == 0 {
		return false
	}
	// First range starting after ip; the candidate is the one before it.
	i := sort.Search(len(bucket), func(j int) bool { return bucket[j].Start > ip })
	if i == 0 {
		return false
	}
	return ip <= bucket[i-1].End
}

// ContainsString parses s as an IP address and checks containment.
// Unparseable input is treated as not contained.
func (b *Blacklist) ContainsString(s string) bool {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return false
	}
	return b.Contains(addr)
}

// Len returns the number of merged ranges.
func (b *Blacklist) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}

// Clear removes every range.
func (b *Blacklist) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.buckets {
		b.buckets[i] = nil
	}
	b.count = 0
}

// Ranges returns the merged ranges in ascending order.
func (b *Blacklist) Ranges() []Range {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Range, 0, b.count)
	for i := range b.buckets {
		out = append(out, b.buckets[i]...)
	}
	return out
}

// DetectFormat inspects the first meaningful lines of r and guesses the
// format. The reader is consumed.
func DetectFormat(r io.Reader) (Format, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	inspected := 0
	for scanner.Scan() && inspected < 50 {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		inspected++
		switch {
		case strings.Contains(line, ",") && strings.Contains(line, "-"):
			return FormatDAT, nil
		case strings.Contains(line, ":") && strings.Contains(line, "-"):
			return FormatP2P, nil
		case strings.Contains(line, "/") || parsesAsIPv4(line):
			return FormatCIDR, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return FormatUnknown, seekerr.Wrap(seekerr.KindLocalIO, "reading blacklist", err)
	}
	return FormatUnknown, seekerr.New(seekerr.KindInvalidArgument, "unable to detect blacklist format")
}

func parsesAsIPv4(s string) bool {
	addr, err := netip.ParseAddr(s)
	return err == nil && addr.Is4()
}
