// internal/driver/escpos/opcodes.go
package escpos

import "fmt"

// Opcodes is the documented command set. Values are bit-exact and must not be changed
// per printer family; CutPartialAlt exists for families that ignore GS V 66.
var Opcodes = struct {
	Initialize []byte

	BoldOn  []byte
	BoldOff []byte

	AlignLeft   []byte
	AlignCenter []byte
	AlignRight  []byte

	LineFeed  []byte
	FeedLines []byte // + line count byte

	CutPartial    []byte
	CutPartialAlt []byte
	CutFull       []byte

	DrawerKick []byte
}{
	Initialize: []byte{0x1B, 0x40}, // ESC @

	BoldOn:  []byte{0x1B, 0x45, 0x01}, // ESC E 1
	BoldOff: []byte{0x1B, 0x45, 0x00}, // ESC E 0

	AlignLeft:   []byte{0x1B, 0x61, 0x00}, // ESC a 0
	AlignCenter: []byte{0x1B, 0x61, 0x01}, // ESC a 1
	AlignRight:  []byte{0x1B, 0x61, 0x02}, // ESC a 2

	LineFeed:  []byte{0x0A},       // LF
	FeedLines: []byte{0x1B, 0x64}, // ESC d + n

	CutPartial:    []byte{0x1D, 0x56, 0x42, 0x00}, // GS V 66 0
	CutPartialAlt: []byte{0x1B, 0x69},             // ESC i
	CutFull:       []byte{0x1D, 0x56, 0x00},       // GS V 0

	DrawerKick: []byte{0x1B, 0x70, 0x00, 0x19, 0xFA}, // ESC p 0 25 250
}

// CutMode selects the cut opcode appended after the trailing feed
type CutMode string

const (
	CutModePartial    CutMode = "partial"
	CutModePartialAlt CutMode = "partial_alt"
	CutModeFull       CutMode = "full"
)

// ParseCutMode validates a configured cut mode
func ParseCutMode(s string) (CutMode, error) {
	switch CutMode(s) {
	case CutModePartial, CutModePartialAlt, CutModeFull:
		return CutMode(s), nil
	case "":
		return CutModePartial, nil
	}
	return "", fmt.Errorf("unknown cut mode %q", s)
}

// CutOpcode returns the opcode for mode
func CutOpcode(mode CutMode) []byte {
	switch mode {
	case CutModeFull:
		return Opcodes.CutFull
	case CutModePartialAlt:
		return Opcodes.CutPartialAlt
	default:
		return Opcodes.CutPartial
	}
}

// FeedOpcode returns ESC d n
func FeedOpcode(lines byte) []byte {
	return append(append([]byte(nil), Opcodes.FeedLines...), lines)
}

// KeepAliveProbe is the side-effect-free command sent by the keep-alive monitor
func KeepAliveProbe() CommandStream {
	return NewCommandStream(Opcodes.Initialize)
}

// DrawerKickCommand builds the drawer-kick stream
func DrawerKickCommand() CommandStream {
	return NewCommandStream(Opcodes.DrawerKick)
}
