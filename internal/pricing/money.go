// Package pricing computes proposal totals and keeps the multi-variant
// pricing model consistent.
package pricing

import "kpbuilder/api/internal/proposal"

// RowTotal is qty*price reduced by the row discount percentage. Inputs are
// expected to be sanitized by the proposal parsers.
func RowTotal(item proposal.Item) float64 {
	total := item.Qty * item.Price
	if item.Discount > 0 {
		total *= 1 - item.Discount/100
	}
	return total
}

// Subtotal sums item rows; group rows contribute nothing.
func Subtotal(rows []proposal.Row) float64 {
	var sum float64
	for _, row := range rows {
		if row.IsGroup() {
			continue
		}
		sum += RowTotal(row.Item)
	}
	return sum
}

func SubtotalItems(items []proposal.Item) float64 {
	var sum float64
	for _, item := range items {
		sum += RowTotal(item)
	}
	return sum
}

// VATAmount is charged on top of the resolved subtotal.
func VATAmount(p proposal.Proposal) float64 {
	if !p.IncludeVAT || p.VATRate == 0 {
		return 0
	}
	return SubtotalItems(ResolveItems(p)) * p.VATRate / 100
}

func Total(p proposal.Proposal) float64 {
	subtotal := SubtotalItems(ResolveItems(p))
	if !p.IncludeVAT {
		return subtotal
	}
	return subtotal + VATAmount(p)
}

// Totals is the money summary of the rows currently in effect.
type Totals struct {
	Subtotal   float64 `json:"subtotal"`
	VAT        float64 `json:"vat"`
	Total      float64 `json:"total"`
	IncludeVAT bool    `json:"includeVat"`
	VATRate    float64 `json:"vatRate"`
	Currency   string  `json:"currency"`
}

func Compute(p proposal.Proposal) Totals {
	subtotal := SubtotalItems(ResolveItems(p))
	vat := VATAmount(p)
	total := subtotal
	if p.IncludeVAT {
		total += vat
	}
	return Totals{
		Subtotal:   subtotal,
		VAT:        vat,
		Total:      total,
		IncludeVAT: p.IncludeVAT,
		VATRate:    p.VATRate,
		Currency:   ResolveCurrency(p),
	}
}
