package introspect

import (
	"fmt"
	"strings"
)

// bytesPerLine matches the teacher's hex-dump width convention (16 bytes,
// 2 groups of 8), used nowhere else in the pack but a standard hexdump
// layout.
const bytesPerLine = 16

// DumpNative renders a native buffer as an offset/hex/ASCII listing purely
// for human debugging (SPEC_FULL.md supplemented feature 1, grounded on
// original_source/pyjion/pyjit.cpp's dump_asm path). It never interprets or
// re-executes the bytes; the backend stays opaque.
func DumpNative(native []byte) string {
	if len(native) == 0 {
		return ""
	}
	var b strings.Builder
	for off := 0; off < len(native); off += bytesPerLine {
		end := off + bytesPerLine
		if end > len(native) {
			end = len(native)
		}
		chunk := native[off:end]
		fmt.Fprintf(&b, "%08x  ", off)
		for i := 0; i < bytesPerLine; i++ {
			if i < len(chunk) {
				fmt.Fprintf(&b, "%02x ", chunk[i])
			} else {
				b.WriteString("   ")
			}
			if i == 7 {
				b.WriteByte(' ')
			}
		}
		b.WriteString(" |")
		for _, c := range chunk {
			if c >= 0x20 && c < 0x7f {
				b.WriteByte(c)
			} else {
				b.WriteByte('.')
			}
		}
		b.WriteString("|\n")
	}
	return b.String()
}
