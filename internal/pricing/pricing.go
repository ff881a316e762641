package pricing

import "math"

// QuoteItem is a single quote line as edited in the quote form.
type QuoteItem struct {
	ProductID   *int64 `json:"productId,omitempty"`
	Description string `json:"description,omitempty"`
	Quantity    Amount `json:"quantity"`
	UnitPrice   Amount `json:"unitPrice"`
	TaxRate     Amount `json:"taxRate"`
	Discount    Amount `json:"discount"`
}

// LineValue returns quantity × unit price, before tax and discount.
func (it QuoteItem) LineValue() float64 {
	return float64(it.Quantity) * float64(it.UnitPrice)
}

// ChargeType categorizes an additional charge.
type ChargeType string

const (
	ChargeShipping     ChargeType = "shipping"
	ChargeInstallation ChargeType = "installation"
	ChargePackaging    ChargeType = "packaging"
	ChargeOther        ChargeType = "other"
)

// AdditionalCharge is a quote-level amount added on top of the items.
// A null amount decodes to zero.
type AdditionalCharge struct {
	Type   ChargeType `json:"type"`
	Amount Amount     `json:"amount"`
}

// Totals contains roll-up values for a quote. Values are never rounded.
type Totals struct {
	Subtotal float64 `json:"subtotal"`
	Tax      float64 `json:"tax"`
	Discount float64 `json:"discount"`
	Charges  float64 `json:"charges"`
	Total    float64 `json:"total"`
}

// ComputeTotals aggregates items and additional charges into quote totals.
//
// Tax is applied to the gross line value; the per-line discount does not
// reduce the taxable base. Nil inputs count as empty.
func ComputeTotals(items []QuoteItem, charges []AdditionalCharge) Totals {
	var t Totals
	for _, it := range items {
		line := it.LineValue()
		t.Subtotal += line
		t.Tax += float64(it.TaxRate) * line
		t.Discount += float64(it.Discount)
	}
	for _, c := range charges {
		t.Charges += float64(c.Amount)
	}

	t.Total = t.Subtotal + t.Tax + t.Charges - t.Discount
	return t
}

// Finite reports whether every total is a finite number. Infinite inputs
// such as "Infinity" propagate into the totals and cannot be stored as JSON.
func (t Totals) Finite() bool {
	for _, v := range []float64{t.Subtotal, t.Tax, t.Discount, t.Charges, t.Total} {
		if math.IsInf(v, 0) || math.IsNaN(v) {
			return false
		}
	}
	return true
}
