package introspect

import (
	"bytes"
	"io"

	"github.com/pierrec/lz4"
)

// compressPayload lz4-compresses an IL or native buffer before it goes out
// over the event stream (SPEC_FULL.md DOMAIN STACK: these buffers can run
// tens of KB per compilation). Returns nil for an empty input.
func compressPayload(raw []byte) []byte {
	if len(raw) == 0 {
		return nil
	}
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(raw); err != nil {
		return nil
	}
	if err := w.Close(); err != nil {
		return nil
	}
	return buf.Bytes()
}

// decompressPayload reverses compressPayload. Nothing in this module calls
// it.
func decompressPayload(compressed []byte) ([]byte, error) {
	if len(compressed) == 0 {
		return nil, nil
	}
	r := lz4.NewReader(bytes.NewReader(compressed))
	return io.ReadAll(r)
}
