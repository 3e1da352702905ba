package blacklist

import (
	"fmt"
	"net/netip"
	"strings"
)

// parseCIDRLine parses one CIDR-list line. Bare addresses are treated as
// /32. Blank lines and comments yield ok=false.
func parseCIDRLine(line string) (Range, bool, error) {
	line = stripComment(line)
	if line == "" {
		return Range{}, false, nil
	}

	if !strings.Contains(line, "/") {
		ip, err := parseDottedQuad(line)
		if err != nil {
			return Range{}, false, err
		}
		return Range{Start: ip, End: ip}, true, nil
	}

	prefix, err := netip.ParsePrefix(line)
	if err != nil {
		return Range{}, false, fmt.Errorf("invalid CIDR %q: %w", line, err)
	}
	if !prefix.Addr().Is4() {
		// IPv6 entries are tolerated and skipped; containment is IPv4 only.
		return Range{}, false, nil
	}

	v4 := prefix.Addr().As4()
	base := uint32(v4[0])<<24 | uint32(v4[1])<<16 | uint32(v4[2])<<8 | uint32(v4[3])
	bits := prefix.Bits()
	mask := uint32(0xFFFFFFFF)
	if bits < 32 {
		mask = ^(uint32(0xFFFFFFFF) >> bits)
	}
	start := base & mask
	end := start | ^mask
	return Range{Start: start, End: end}, true, nil
}

// parseP2PLine parses one PeerGuardian line: "label:start-end". Labels
// may themselves contain colons; the range follows the last one.
func parseP2PLine(line string) (Range, bool, error) {
	line = stripComment(line)
	if line == "" {
		return Range{}, false, nil
	}

	sep := strings.LastIndex(line, ":")
	if sep < 0 {
		return Range{}, false, fmt.Errorf("invalid p2p line %q: missing ':'", line)
	}
	return parseDashRange(line[sep+1:])
}

// parseDATLine parses one eMule DAT line: "start - end , level , label".
func parseDATLine(line string) (Range, bool, error) {
	line = stripComment(line)
	if line == "" {
		return Range{}, false, nil
	}

	fields := strings.SplitN(line, ",", 2)
	return parseDashRange(fields[0])
}

func parseDashRange(s string) (Range, bool, error) {
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		return Range{}, false, fmt.Errorf("invalid range %q: missing '-'", s)
	}
	start, err := parseDottedQuad(parts[0])
	if err != nil {
		return Range{}, false, err
	}
	end, err := parseDottedQuad(parts[1])
	if err != nil {
		return Range{}, false, err
	}
	if end < start {
		return Range{}, false, fmt.Errorf("invalid range %q: end precedes start", s)
	}
	return Range{Start: start, End: end}, true, nil
}

// parseDottedQuad parses an IPv4 address tolerating the zero-padded
// octets DAT files use ("001.002.003.000").
func parseDottedQuad(s string) (uint32, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return 0, fmt.Errorf("invalid IPv4 address %q", s)
	}

	var ip uint32
	for _, part := range parts {
		if part == "" || len(part) > 3 {
			return 0, fmt.Errorf("invalid IPv4 address %q", s)
		}
		octet := 0
		for _, c := range part {
			if c < '0' || c > '9' {
				return 0, fmt.Errorf("invalid IPv4 address %q", s)
			}
			octet = octet*10 + int(c-'0')
		}
		if octet > 255 {
			return 0, fmt.Errorf("invalid IPv4 address %q", s)
		}
		ip = ip<<8 | uint32(octet)
	}
	return ip, nil
}

// stripComment removes trailing comments and surrounding whitespace.
func stripComment(line string) string {
	if i := strings.IndexAny(line, "#;"); i >= 0 {
		line = line[:i]
	}
	return strings.TrimSpace(line)
}
