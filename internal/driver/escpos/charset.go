// internal/driver/escpos/charset.go
package escpos

import (
	"golang.org/x/text/encoding/charmap"
)

// Printers power up in code page 437 after ESC @, so text is encoded to it directly.
var codePage = charmap.CodePage437

const replacementByte = '?'

// encodeText maps s to single-byte code page 437. Runes the code page cannot
// represent become '?', control characters (LF included) become spaces so
// text never breaks a fixed-width row.
func encodeText(s string) []byte {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		switch {
		case r < 0x20 || r == 0x7F:
			out = append(out, ' ')
			continue
		case r < 0x80:
			out = append(out, byte(r))
			continue
		}
		if b, ok := codePage.EncodeRune(r); ok {
			out = append(out, b)
			continue
		}
		out = append(out, replacementByte)
	}
	return out
}
