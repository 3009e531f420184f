package harness

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// fullDumpLimit is the size up to which both sequences are dumped whole.
// Above it the diff shows an aligned window around the first divergence,
// which is what actually matters when a 25 KB payload differs in one
// record.
const fullDumpLimit = 512

// diffWindow is the number of bytes shown on each side of the first
// divergence for large payloads.
const diffWindow = 128

// DiffHex renders a human-readable diff of two byte sequences for
// mismatch diagnosis: lengths, the offset of the first divergence, and
// hex dumps of both sides.
func DiffHex(want, got []byte) string {
	var sb strings.Builder

	off := firstDiff(want, got)
	fmt.Fprintf(&sb, "sent %d bytes, received %d bytes; first divergence at offset %d\n",
		len(want), len(got), off)

	if len(want) <= fullDumpLimit && len(got) <= fullDumpLimit {
		sb.WriteString("--- sent ---\n")
		sb.WriteString(hex.Dump(want))
		sb.WriteString("--- received ---\n")
		sb.WriteString(hex.Dump(got))
		return sb.String()
	}

	// Align the window to 16-byte rows so offsets in both dumps line up.
	lo := off - diffWindow
	if lo < 0 {
		lo = 0
	}
	lo &^= 0xF
	hi := off + diffWindow

	fmt.Fprintf(&sb, "--- sent [%d:%d] ---\n", lo, min(hi, len(want)))
	sb.WriteString(hex.Dump(slice(want, lo, hi)))
	fmt.Fprintf(&sb, "--- received [%d:%d] ---\n", lo, min(hi, len(got)))
	sb.WriteString(hex.Dump(slice(got, lo, hi)))
	return sb.String()
}

// firstDiff returns the offset of the first differing byte, or the shorter
// length when one sequence is a prefix of the other.
func firstDiff(a, b []byte) int {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}

func slice(p []byte, lo, hi int) []byte {
	if lo >= len(p) {
		return nil
	}
	if hi > len(p) {
		hi = len(p)
	}
	return p[lo:hi]
}
