// internal/driver/escpos/stream.go
package escpos

import (
	"bytes"
	"encoding/hex"
)

// CommandStream is an immutable, ordered byte sequence ready for the transport
type CommandStream struct {
	b []byte
}

// NewCommandStream copies parts into a new stream
func NewCommandStream(parts ...[]byte) CommandStream {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	buf := make([]byte, 0, n)
	for _, p := range parts {
		buf = append(buf, p...)
	}
	return CommandStream{b: buf}
}

// Len returns the number of bytes in the stream
func (s CommandStream) Len() int { return len(s.b) }

// Bytes returns a copy of the stream contents
func (s CommandStream) Bytes() []byte {
	return append([]byte(nil), s.b...)
}

// Chunks splits the stream into consecutive slices of at most size bytes.
// The returned slices are copies.
func (s CommandStream) Chunks(size int) [][]byte {
	if size <= 0 || len(s.b) == 0 {
		return nil
	}
	out := make([][]byte, 0, (len(s.b)+size-1)/size)
	for off := 0; off < len(s.b); off += size {
		end := off + size
		if end > len(s.b) {
			end = len(s.b)
		}
		out = append(out, append([]byte(nil), s.b[off:end]...))
	}
	return out
}

// Contains reports whether sub occurs in the stream
func (s CommandStream) Contains(sub []byte) bool {
	return bytes.Contains(s.b, sub)
}

// Equal reports whether both streams hold the same bytes
func (s CommandStream) Equal(other CommandStream) bool {
	return bytes.Equal(s.b, other.b)
}

// Hex renders the stream for previews and logs
func (s CommandStream) Hex() string {
	return hex.EncodeToString(s.b)
}
