package pricing

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"
)

var approx = cmpopts.EquateApprox(0, 1e-9)

func TestComputeTotals_Empty(t *testing.T) {
	got := ComputeTotals(nil, nil)
	if diff := cmp.Diff(Totals{}, got); diff != "" {
		t.Fatalf("unexpected totals (-want +got):\n%s", diff)
	}

	got = ComputeTotals([]QuoteItem{}, []AdditionalCharge{})
	require.Equal(t, Totals{}, got)
}

func TestComputeTotals_SingleItem(t *testing.T) {
	items := []QuoteItem{{Quantity: 2, UnitPrice: 100, TaxRate: 0.1, Discount: 5}}

	got := ComputeTotals(items, nil)

	want := Totals{Subtotal: 200, Tax: 20, Discount: 5, Charges: 0, Total: 215}
	if diff := cmp.Diff(want, got, approx); diff != "" {
		t.Fatalf("unexpected totals (-want +got):\n%s", diff)
	}
}

func TestComputeTotals_TaxIgnoresDiscount(t *testing.T) {
	items := []QuoteItem{{Quantity: 1, UnitPrice: 1000, TaxRate: 0.19, Discount: 500}}

	got := ComputeTotals(items, nil)

	require.InDelta(t, 190, got.Tax, 1e-9)
	require.InDelta(t, 1000+190-500, got.Total, 1e-9)
}

func TestComputeTotals_WithCharges(t *testing.T) {
	items := []QuoteItem{
		{Quantity: 3, UnitPrice: 10, TaxRate: 0.1},
		{Quantity: 1, UnitPrice: 50, Discount: 2.5},
	}
	charges := []AdditionalCharge{
		{Type: ChargeShipping, Amount: 12},
		{Type: ChargeInstallation, Amount: 8},
		{Type: ChargeOther},
	}

	got := ComputeTotals(items, charges)

	want := Totals{Subtotal: 80, Tax: 3, Discount: 2.5, Charges: 20, Total: 100.5}
	if diff := cmp.Diff(want, got, approx); diff != "" {
		t.Fatalf("unexpected totals (-want +got):\n%s", diff)
	}
}

func TestComputeTotals_NegativeValuesPassThrough(t *testing.T) {
	items := []QuoteItem{{Quantity: -1, UnitPrice: 40, TaxRate: 0.5}}

	got := ComputeTotals(items, []AdditionalCharge{{Amount: -5}})

	require.InDelta(t, -40, got.Subtotal, 1e-9)
	require.InDelta(t, -20, got.Tax, 1e-9)
	require.InDelta(t, -65, got.Total, 1e-9)
}

func TestComputeTotals_OrderIndependent(t *testing.T) {
	items := []QuoteItem{
		{Quantity: 2, UnitPrice: 19.99, TaxRate: 0.16, Discount: 1},
		{Quantity: 7, UnitPrice: 3.5, TaxRate: 0.05},
		{Quantity: 1, UnitPrice: 250, TaxRate: 0.19, Discount: 25},
		{Quantity: 0.5, UnitPrice: 80},
	}
	reversed := make([]QuoteItem, len(items))
	for i, it := range items {
		reversed[len(items)-1-i] = it
	}
	rotated := append(append([]QuoteItem{}, items[2:]...), items[:2]...)

	base := ComputeTotals(items, nil)
	for name, perm := range map[string][]QuoteItem{"reversed": reversed, "rotated": rotated} {
		got := ComputeTotals(perm, nil)
		if diff := cmp.Diff(base, got, approx); diff != "" {
			t.Fatalf("%s: totals differ (-base +got):\n%s", name, diff)
		}
	}
}

func TestComputeTotals_Idempotent(t *testing.T) {
	items := []QuoteItem{{Quantity: 4, UnitPrice: 12.5, TaxRate: 0.2, Discount: 3}}
	charges := []AdditionalCharge{{Type: ChargePackaging, Amount: 6}}

	first := ComputeTotals(items, charges)
	second := ComputeTotals(items, charges)

	require.Equal(t, first, second)
}

func TestComputeTotals_FromLenientJSON(t *testing.T) {
	var input struct {
		Items             Items   `json:"items"`
		AdditionalCharges Charges `json:"additionalCharges"`
	}
	body := `{
		"items": [
			{"quantity": "2", "unitPrice": "abc", "taxRate": 0.1, "discount": null},
			{"quantity": 1, "unitPrice": "50", "taxRate": "", "discount": "5"},
			"not an item",
			{"quantity": true, "unitPrice": [30], "taxRate": {}, "discount": "NaN"}
		],
		"additionalCharges": [
			{"type": "shipping", "amount": null},
			{"type": "other", "amount": "7.5"},
			{"type": 3}
		]
	}`
	require.NoError(t, json.Unmarshal([]byte(body), &input))
	require.Len(t, input.Items, 4)
	require.Len(t, input.AdditionalCharges, 3)

	got := ComputeTotals(input.Items, input.AdditionalCharges)

	want := Totals{Subtotal: 80, Tax: 0, Discount: 5, Charges: 7.5, Total: 82.5}
	if diff := cmp.Diff(want, got, approx); diff != "" {
		t.Fatalf("unexpected totals (-want +got):\n%s", diff)
	}
}

func TestComputeTotals_NonArrayInputsAreEmpty(t *testing.T) {
	var input struct {
		Items             Items   `json:"items"`
		AdditionalCharges Charges `json:"additionalCharges"`
	}
	body := `{"items": {"quantity": 1, "unitPrice": 10}, "additionalCharges": "free shipping"}`
	require.NoError(t, json.Unmarshal([]byte(body), &input))

	require.Empty(t, input.Items)
	require.Empty(t, input.AdditionalCharges)
	require.Equal(t, Totals{}, ComputeTotals(input.Items, input.AdditionalCharges))
}

func TestItems_KeepsProductAndDescription(t *testing.T) {
	var items Items
	body := `[{"productId": 12, "description": "Cable 2.5mm", "quantity": 3, "unitPrice": 4}, {"productId": "x"}]`
	require.NoError(t, json.Unmarshal([]byte(body), &items))

	require.Len(t, items, 2)
	require.NotNil(t, items[0].ProductID)
	require.Equal(t, int64(12), *items[0].ProductID)
	require.Equal(t, "Cable 2.5mm", items[0].Description)
	require.Nil(t, items[1].ProductID)
}

func TestTotals_Finite(t *testing.T) {
	require.True(t, ComputeTotals([]QuoteItem{{Quantity: 1, UnitPrice: 10}}, nil).Finite())

	var items Items
	require.NoError(t, json.Unmarshal([]byte(`[{"quantity":1,"unitPrice":"Infinity"}]`), &items))
	require.False(t, ComputeTotals(items, nil).Finite())
}
