// Package pricing computes canonical order totals. It is pure: no
// persistence, no context, same inputs always produce same outputs.
package pricing

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LineItem is the pricing view of an order item. UnitPrice is the
// pre-tax unit price. AfterTaxPrice, when valid, is the tax-inclusive
// unit price; invalid means the product is untaxed.
type LineItem struct {
	ProductID     uuid.UUID
	Quantity      int32
	UnitPrice     decimal.Decimal
	AfterTaxPrice decimal.NullDecimal
}

// Totals is the full money breakdown of an order. ItemTax and
// ItemDiscount are positional, matching the input slice.
type Totals struct {
	Subtotal     decimal.Decimal
	Tax          decimal.Decimal
	Total        decimal.Decimal
	ItemTax      []decimal.Decimal
	ItemDiscount []decimal.Decimal
}

// ComputeTotals derives subtotal, per-item tax, per-item discount
// shares and the order total from items plus an order-level discount.
//
// The subtotal always sums pre-tax unit prices. Per-item tax is
// floor(max(0, afterTax-unit) * qty), floored per item before summing
// so the sum of rounded parts is authoritative. A positive discount is
// distributed proportionally to item subtotals with the last item
// taking the exact remainder, so the shares always sum to the
// discount. The slice order given by the caller is the canonical
// ordering for the remainder item: the lifecycle service passes
// persisted items ascending by (created_at, id) with new items
// appended.
func ComputeTotals(items []LineItem, discount decimal.Decimal) Totals {
	subtotal := decimal.Zero
	tax := decimal.Zero
	itemTax := make([]decimal.Decimal, len(items))

	for i, item := range items {
		qty := decimal.NewFromInt32(item.Quantity)
		subtotal = subtotal.Add(item.UnitPrice.Mul(qty))

		itemTax[i] = decimal.Zero
		if item.AfterTaxPrice.Valid {
			perUnit := item.AfterTaxPrice.Decimal.Sub(item.UnitPrice)
			if perUnit.IsNegative() {
				// Malformed data: after-tax price below pre-tax price.
				perUnit = decimal.Zero
			}
			itemTax[i] = perUnit.Mul(qty).Floor()
		}
		tax = tax.Add(itemTax[i])
	}

	itemDiscount := distributeDiscount(items, subtotal, discount)

	total := subtotal.Add(tax).Sub(discount)
	if total.IsNegative() {
		total = decimal.Zero
	}

	return Totals{
		Subtotal:     subtotal,
		Tax:          tax,
		Total:        total,
		ItemTax:      itemTax,
		ItemDiscount: itemDiscount,
	}
}

// distributeDiscount allocates discount proportionally to each item's
// subtotal, rounding each share to a whole currency unit. The last
// item receives discount minus everything already allocated, never a
// separately rounded share.
func distributeDiscount(items []LineItem, subtotal, discount decimal.Decimal) []decimal.Decimal {
	shares := make([]decimal.Decimal, len(items))
	for i := range shares {
		shares[i] = decimal.Zero
	}
	if len(items) == 0 || !discount.IsPositive() || !subtotal.IsPositive() {
		return shares
	}

	allocated := decimal.Zero
	for i, item := range items[:len(items)-1] {
		itemSubtotal := item.UnitPrice.Mul(decimal.NewFromInt32(item.Quantity))
		share := discount.Mul(itemSubtotal).Div(subtotal).Round(0)
		shares[i] = share
		allocated = allocated.Add(share)
	}
	shares[len(items)-1] = discount.Sub(allocated)
	return shares
}
