// internal/driver/escpos/layout.go
package escpos

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Column widths. Every receipt layout shares these values.
const (
	PaperWidth58mm = 32
	PaperWidth80mm = 48

	QuantityColumn = 4
	AmountColumn   = 10
	IndentColumn   = 4
)

// NameColumn returns the width left for the item name on a line of width columns
func NameColumn(width int) int {
	return width - QuantityColumn - AmountColumn
}

// FormatMoney renders d with exactly two decimals and comma thousands separators
func FormatMoney(d decimal.Decimal) string {
	s := d.Abs().StringFixed(2)
	intPart, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, frac = s[:i], s[i:]
	}

	groups := make([]string, 0, len(intPart)/3+1)
	lead := len(intPart) % 3
	if lead > 0 {
		groups = append(groups, intPart[:lead])
	}
	for i := lead; i < len(intPart); i += 3 {
		groups = append(groups, intPart[i:i+3])
	}

	out := strings.Join(groups, ",") + frac
	if d.IsNegative() && !d.Round(2).IsZero() {
		out = "-" + out
	}
	return out
}

// fit truncates or right-pads encoded text to exactly width bytes
func fit(text []byte, width int) []byte {
	if width <= 0 {
		return nil
	}
	if len(text) >= width {
		return append([]byte(nil), text[:width]...)
	}
	out := make([]byte, width)
	copy(out, text)
	for i := len(text); i < width; i++ {
		out[i] = ' '
	}
	return out
}

// fitRight truncates or left-pads encoded text to exactly width bytes.
// Overlong text keeps its rightmost bytes so amounts stay readable.
func fitRight(text []byte, width int) []byte {
	if width <= 0 {
		return nil
	}
	if len(text) >= width {
		return append([]byte(nil), text[len(text)-width:]...)
	}
	out := bytes.Repeat([]byte{' '}, width-len(text))
	return append(out, text...)
}

// itemRow lays out "qty name amount" in exactly width bytes. A quantity
// wider than its column takes space from the name, never its own digits.
func itemRow(qty int, name, amount string, width int) []byte {
	q := []byte(strconv.Itoa(qty) + "x")
	nameWidth := NameColumn(width)
	if len(q) >= QuantityColumn {
		q = append(q, ' ')
		nameWidth -= len(q) - QuantityColumn
	} else {
		q = fit(q, QuantityColumn)
	}

	row := make([]byte, 0, width)
	row = append(row, q...)
	row = append(row, fit(encodeText(name), nameWidth)...)
	row = append(row, fitRight([]byte(amount), AmountColumn)...)
	return row
}

// annotationRow is the indented secondary line under an item
func annotationRow(text, amount string, width int) []byte {
	row := make([]byte, 0, width)
	row = append(row, bytes.Repeat([]byte{' '}, IndentColumn)...)
	row = append(row, fit(encodeText(text), width-IndentColumn-AmountColumn)...)
	row = append(row, fitRight([]byte(amount), AmountColumn)...)
	return row
}

// labelValueRow puts label on the left and value flush right within width
func labelValueRow(label, value string, width int) []byte {
	v := encodeText(value)
	if len(v) >= width {
		return fitRight(v, width)
	}
	return append(fit(encodeText(label), width-len(v)), v...)
}

// textRow encodes text and clips it to width
func textRow(text string, width int) []byte {
	b := encodeText(text)
	if len(b) > width {
		b = b[:width]
	}
	return b
}

func separator(width int) []byte {
	return bytes.Repeat([]byte{'-'}, width)
}
