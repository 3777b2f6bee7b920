// internal/driver/escpos/compiler.go
package escpos

import (
	"bytes"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"printer-service/pkg/receipt"
)

const (
	dateLayout      = "2006-01-02"
	timeLayout      = "15:04"
	printedAtLayout = "2006-01-02 15:04:05"
)

// CompilerOptions fixes the layout of every receipt a Compiler produces
type CompilerOptions struct {
	Width          int
	FeedLines      int
	CutMode        CutMode
	CurrencyPrefix string
}

// DefaultCompilerOptions returns the 58mm layout with a partial cut
func DefaultCompilerOptions() CompilerOptions {
	return CompilerOptions{
		Width:     PaperWidth58mm,
		FeedLines: 4,
		CutMode:   CutModePartial,
	}
}

// Compiler turns receipts into command streams. It holds no mutable state and
// never reads the wall clock; the same receipt and clock always give the same bytes.
type Compiler struct {
	opts CompilerOptions
}

// NewCompiler creates a new Compiler
func NewCompiler(opts CompilerOptions) (*Compiler, error) {
	if opts.Width != PaperWidth58mm && opts.Width != PaperWidth80mm {
		return nil, fmt.Errorf("unsupported paper width %d, want %d or %d", opts.Width, PaperWidth58mm, PaperWidth80mm)
	}
	if opts.FeedLines < 0 || opts.FeedLines > 255 {
		return nil, fmt.Errorf("feed lines must be between 0 and 255, got %d", opts.FeedLines)
	}
	if _, err := ParseCutMode(string(opts.CutMode)); err != nil {
		return nil, err
	}
	if opts.CutMode == "" {
		opts.CutMode = CutModePartial
	}
	return &Compiler{opts: opts}, nil
}

// Options returns the layout options
func (c *Compiler) Options() CompilerOptions {
	return c.opts
}

// Compile renders r into a command stream using clock for any time shown on paper
func (c *Compiler) Compile(r *receipt.Model, clock time.Time) CommandStream {
	w := &streamBuilder{width: c.opts.Width}

	w.raw(Opcodes.Initialize)
	c.header(w, r, clock)
	w.row(separator(w.width))
	c.items(w, r.Items)
	w.row(separator(w.width))
	c.totals(w, &r.Totals)
	c.payment(w, r)
	c.footer(w, r, clock)

	w.raw(FeedOpcode(byte(c.opts.FeedLines)))
	w.raw(CutOpcode(c.opts.CutMode))

	return NewCommandStream(w.buf.Bytes())
}

func (c *Compiler) header(w *streamBuilder, r *receipt.Model, clock time.Time) {
	w.raw(Opcodes.AlignCenter)
	w.raw(Opcodes.BoldOn)
	w.text(r.Header.StoreName)
	w.raw(Opcodes.BoldOff)
	for _, line := range r.HeaderLines {
		w.text(line)
	}

	w.raw(Opcodes.AlignLeft)
	w.text("Order: #" + r.Header.OrderID)

	date, tm := r.Header.Date, r.Header.Time
	if date == "" {
		date = clock.Format(dateLayout)
	}
	if tm == "" {
		tm = clock.Format(timeLayout)
	}
	w.row(labelValueRow("Date: "+date, "Time: "+tm, w.width))

	if r.Header.Cashier != "" {
		w.text("Cashier: " + r.Header.Cashier)
	}
	if r.Header.CustomerName != "" {
		w.text("Customer: " + r.Header.CustomerName)
	}
}

func (c *Compiler) items(w *streamBuilder, items []receipt.LineItem) {
	for _, item := range items {
		amount := item.LineTotal
		if item.IsFree {
			amount = decimal.Zero
		}
		w.row(itemRow(item.Quantity, item.Name, FormatMoney(amount), w.width))

		switch {
		case item.IsFree:
			w.row(annotationRow("FREE (redeemed)", "", w.width))
		case item.IsPercentDiscounted:
			if disc := item.DiscountAmount(); !disc.IsZero() {
				label := fmt.Sprintf("Less %s%% discount", item.DiscountPercent.String())
				w.row(annotationRow(label, FormatMoney(disc.Neg()), w.width))
			}
		}
	}
}

func (c *Compiler) totals(w *streamBuilder, t *receipt.Totals) {
	w.raw(Opcodes.AlignRight)
	w.row(labelValueRow("Subtotal", FormatMoney(t.Subtotal), w.width))

	for _, kind := range receipt.DiscountOrder {
		for _, d := range t.NamedDiscounts {
			if d.Kind != kind || d.Amount.IsZero() {
				continue
			}
			w.row(labelValueRow(discountLabel(d), FormatMoney(d.Amount.Abs().Neg()), w.width))
		}
	}

	w.row(labelValueRow("Tax", FormatMoney(t.Tax), w.width))

	w.raw(Opcodes.BoldOn)
	w.row(labelValueRow("TOTAL", c.opts.CurrencyPrefix+FormatMoney(t.GrandTotal), w.width))
	w.raw(Opcodes.BoldOff)
}

func (c *Compiler) payment(w *streamBuilder, r *receipt.Model) {
	t := &r.Totals
	w.raw(Opcodes.AlignLeft)
	if r.PaymentMethod != "" {
		w.text("Payment: " + r.PaymentMethod)
	}
	w.row(labelValueRow("Tendered", FormatMoney(t.Tendered), w.width))
	w.row(labelValueRow("Change", FormatMoney(t.Change), w.width))
	if t.IsPartialPayment {
		w.row(labelValueRow("Balance due", FormatMoney(t.RemainingBalance), w.width))
	}
}

func (c *Compiler) footer(w *streamBuilder, r *receipt.Model, clock time.Time) {
	w.raw(Opcodes.AlignCenter)
	for _, line := range r.FooterLines {
		w.text(line)
	}
	w.text("Printed " + clock.Format(printedAtLayout))
}

func discountLabel(d receipt.NamedDiscount) string {
	switch d.Kind {
	case receipt.DiscountSeniorPWD:
		return "Senior/PWD discount"
	case receipt.DiscountRedemption:
		return "Redemption"
	case receipt.DiscountEmployee:
		return "Employee discount"
	case receipt.DiscountShareholder:
		return "Shareholder discount"
	}
	if d.Label != "" {
		return d.Label
	}
	return "Discount"
}

type streamBuilder struct {
	buf   bytes.Buffer
	width int
}

func (w *streamBuilder) raw(b []byte) {
	w.buf.Write(b)
}

func (w *streamBuilder) row(b []byte) {
	w.buf.Write(b)
	w.buf.Write(Opcodes.LineFeed)
}

func (w *streamBuilder) text(s string) {
	w.row(textRow(s, w.width))
}
