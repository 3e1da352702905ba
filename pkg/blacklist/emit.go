package blacklist

import (
	"bufio"
	"fmt"
	"io"
	"math/bits"

	"github.com/seekd/seekd/pkg/seekerr"
)

// Emit writes the merged ranges to w in the given format. Labels from the
// source files are not retained; emitted P2P and DAT lines carry a
// generic one. Coverage is preserved exactly.
func (b *Blacklist) Emit(w io.Writer, format Format) error {
	ranges := b.Ranges()
	bw := bufio.NewWriter(w)

	for _, rng := range ranges {
		switch format {
		case FormatCIDR:
			for _, block := range coveringPrefixes(rng) {
				if _, err := fmt.Fprintf(bw, "%s/%d\n", formatQuad(block.base), block.bits); err != nil {
					return seekerr.Wrap(seekerr.KindLocalIO, "writing blacklist", err)
				}
			}
		case FormatP2P:
			if _, err := fmt.Fprintf(bw, "blocked:%s-%s\n", formatQuad(rng.Start), formatQuad(rng.End)); err != nil {
				return seekerr.Wrap(seekerr.KindLocalIO, "writing blacklist", err)
			}
		case FormatDAT:
			if _, err := fmt.Fprintf(bw, "%s - %s , 000 , blocked\n", formatPaddedQuad(rng.Start), formatPaddedQuad(rng.End)); err != nil {
				return seekerr.Wrap(seekerr.KindLocalIO, "writing blacklist", err)
			}
		default:
			return seekerr.New(seekerr.KindInvalidArgument, "blacklist format not specified")
		}
	}
	if err := bw.Flush(); err != nil {
		return seekerr.Wrap(seekerr.KindLocalIO, "writing blacklist", err)
	}
	return nil
}

type cidrBlock struct {
	base uint32
	bits int
}

// coveringPrefixes decomposes an inclusive range into the minimal set of
// CIDR blocks covering exactly the same addresses.
func coveringPrefixes(rng Range) []cidrBlock {
	var out []cidrBlock
	start := rng.Start
	for {
		// Largest block aligned at start.
		maxBits := 32
		if start != 0 {
			maxBits = bits.TrailingZeros32(start)
		}
		// Shrink until the block fits within the remaining range.
		size := uint64(1) << maxBits
		remaining := uint64(rng.End) - uint64(start) + 1
		for size > remaining {
			size >>= 1
			maxBits--
		}
		out = append(out, cidrBlock{base: start, bits: 32 - maxBits})

		next := uint64(start) + size
		if next > uint64(rng.End) {
			return out
		}
		start = uint32(next)
	}
}

func formatQuad(ip uint32) string {
	return fmt.Sprintf("%d.%d.%d.%d", ip>>24, ip>>16&0xFF, ip>>8&0xFF, ip&0xFF)
}

func formatPaddedQuad(ip uint32) string {
	return fmt.Sprintf("%03d.%03d.%03d.%03d", ip>>24, ip>>16&0xFF, ip>>8&0xFF, ip&0xFF)
}
