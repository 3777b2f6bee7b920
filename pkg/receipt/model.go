// pkg/receipt/model.go
package receipt

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Model is a finalized receipt handed over by the billing engine.
// The printer side only reads it.
type Model struct {
	Header        Header     `json:"header"`
	Items         []LineItem `json:"items"`
	Totals        Totals     `json:"totals"`
	PaymentMethod string     `json:"payment_method"`
	HeaderLines   []string   `json:"header_lines,omitempty"`
	FooterLines   []string   `json:"footer_lines,omitempty"`
}

// Header holds store and order metadata
type Header struct {
	StoreName    string `json:"store_name"`
	OrderID      string `json:"order_id"`
	Date         string `json:"date,omitempty"`
	Time         string `json:"time,omitempty"`
	Cashier      string `json:"cashier,omitempty"`
	CustomerName string `json:"customer_name,omitempty"`
}

// LineItem is one ordered product
type LineItem struct {
	Name                string          `json:"name"`
	Quantity            int             `json:"quantity"`
	UnitPrice           decimal.Decimal `json:"unit_price"`
	LineTotal           decimal.Decimal `json:"line_total"`
	IsFree              bool            `json:"is_free"`
	IsPercentDiscounted bool            `json:"is_percent_discounted"`
	DiscountPercent     decimal.Decimal `json:"discount_percent"`
}

// DiscountAmount returns the percentage discount taken off LineTotal, rounded to cents
func (li LineItem) DiscountAmount() decimal.Decimal {
	if !li.IsPercentDiscounted || li.IsFree || li.DiscountPercent.IsZero() {
		return decimal.Zero
	}
	return li.LineTotal.Mul(li.DiscountPercent).Div(decimal.NewFromInt(100)).Round(2)
}

// DiscountKind names the canonical discount categories
type DiscountKind string

const (
	DiscountSeniorPWD   DiscountKind = "senior_pwd"
	DiscountRedemption  DiscountKind = "redemption"
	DiscountEmployee    DiscountKind = "employee"
	DiscountShareholder DiscountKind = "shareholder"
	DiscountCustom      DiscountKind = "custom"
)

// DiscountOrder is the fixed order discount rows are printed in
var DiscountOrder = []DiscountKind{
	DiscountSeniorPWD,
	DiscountRedemption,
	DiscountEmployee,
	DiscountShareholder,
	DiscountCustom,
}

// NamedDiscount is one order-level discount
type NamedDiscount struct {
	Kind   DiscountKind    `json:"kind"`
	Label  string          `json:"label,omitempty"`
	Amount decimal.Decimal `json:"amount"`
}

// Totals is the settled money block of a receipt
type Totals struct {
	Subtotal         decimal.Decimal `json:"subtotal"`
	NamedDiscounts   []NamedDiscount `json:"named_discounts,omitempty"`
	Tax              decimal.Decimal `json:"tax"`
	GrandTotal       decimal.Decimal `json:"grand_total"`
	Tendered         decimal.Decimal `json:"tendered"`
	Change           decimal.Decimal `json:"change"`
	IsPartialPayment bool            `json:"is_partial_payment"`
	RemainingBalance decimal.Decimal `json:"remaining_balance"`
}

// Validate checks the fields the printer relies on
func (m *Model) Validate() error {
	if m.Header.StoreName == "" {
		return fmt.Errorf("header.store_name is required")
	}
	if m.Header.OrderID == "" {
		return fmt.Errorf("header.order_id is required")
	}
	for i, item := range m.Items {
		if item.Name == "" {
			return fmt.Errorf("items[%d].name is required", i)
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("items[%d].quantity must be positive", i)
		}
		if item.IsPercentDiscounted && (item.DiscountPercent.IsNegative() || item.DiscountPercent.GreaterThan(decimal.NewFromInt(100))) {
			return fmt.Errorf("items[%d].discount_percent must be between 0 and 100", i)
		}
	}
	for i, d := range m.Totals.NamedDiscounts {
		if !knownDiscount(d.Kind) {
			return fmt.Errorf("totals.named_discounts[%d].kind %q is unknown", i, d.Kind)
		}
	}
	return nil
}

func knownDiscount(kind DiscountKind) bool {
	for _, k := range DiscountOrder {
		if k == kind {
			return true
		}
	}
	return false
}
