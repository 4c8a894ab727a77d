package pricing

import (
	"errors"
	"fmt"

	"kpbuilder/api/internal/proposal"
)

// ErrLastVariant is returned when removing a variant would leave none.
var ErrLastVariant = errors.New("cannot remove the last pricing variant")

// IDFunc produces a fresh identifier for the given entity kind.
type IDFunc func(prefix string) string

// DefaultVariantName is the label for the n-th (1-based) variant.
func DefaultVariantName(n int) string {
	return fmt.Sprintf("Вариант %d", n)
}

// ResolveActiveVariant picks the variant whose rows are priced right now:
// the explicit pointer, else the recommended variant, else the first one.
// It reports false for single pricing mode or an empty variant list.
func ResolveActiveVariant(p proposal.Proposal) (proposal.Variant, bool) {
	if p.PricingMode != proposal.PricingVariants || len(p.ProductVariants) == 0 {
		return proposal.Variant{}, false
	}
	if p.ActiveVariantID != "" {
		for _, v := range p.ProductVariants {
			if v.ID == p.ActiveVariantID {
				return v, true
			}
		}
	}
	for _, v := range p.ProductVariants {
		if v.IsRecommended {
			return v, true
		}
	}
	return p.ProductVariants[0], true
}

// ResolveItems returns the flat list of lines used for money math.
func ResolveItems(p proposal.Proposal) []proposal.Item {
	if v, ok := ResolveActiveVariant(p); ok {
		return v.Items()
	}
	if p.Items == nil {
		return []proposal.Item{}
	}
	return p.Items
}

// ResolveCurrency prefers the active variant's override.
func ResolveCurrency(p proposal.Proposal) string {
	if v, ok := ResolveActiveVariant(p); ok && v.Currency != "" {
		return v.Currency
	}
	if p.Currency == "" {
		return proposal.DefaultCurrency
	}
	return p.Currency
}

// MigrateLegacyToVariants moves a legacy item list into a single
// recommended variant. Proposals that already have variants are returned
// unchanged.
func MigrateLegacyToVariants(p proposal.Proposal, newID IDFunc) proposal.Proposal {
	if len(p.ProductVariants) > 0 {
		return p
	}
	rows := make([]proposal.Row, 0, len(p.Items))
	for _, item := range p.Items {
		item.ID = newID("row")
		rows = append(rows, proposal.ItemRow(item, ""))
	}
	variant := proposal.Variant{
		ID:            newID("variant"),
		Name:          DefaultVariantName(1),
		IsRecommended: true,
		Rows:          rows,
	}
	p.ProductVariants = []proposal.Variant{variant}
	p.PricingMode = proposal.PricingVariants
	p.ActiveVariantID = variant.ID
	return p
}

// CanRemoveVariant is the guard for the remove action: one variant must stay.
func CanRemoveVariant(variants []proposal.Variant) bool {
	return len(variants) > 1
}

// AddVariant appends an empty variant. The first variant of a list is
// recommended, later ones are not.
func AddVariant(variants []proposal.Variant, name string, newID IDFunc) ([]proposal.Variant, proposal.Variant) {
	if name == "" {
		name = DefaultVariantName(len(variants) + 1)
	}
	added := proposal.Variant{
		ID:            newID("variant"),
		Name:          name,
		IsRecommended: len(variants) == 0,
		Rows:          []proposal.Row{},
	}
	out := CloneVariants(variants)
	return append(out, added), added
}

// DuplicateVariant copies a variant with fresh variant, row and group ids.
func DuplicateVariant(variants []proposal.Variant, sourceID string, newID IDFunc) ([]proposal.Variant, proposal.Variant, bool) {
	for _, v := range variants {
		if v.ID != sourceID {
			continue
		}
		dup := proposal.Variant{
			ID:          newID("variant"),
			Name:        v.Name + " (копия)",
			Description: v.Description,
			Currency:    v.Currency,
			Rows:        RebaseRows(v.Rows, newID),
		}
		out := CloneVariants(variants)
		return append(out, dup), dup, true
	}
	return CloneVariants(variants), proposal.Variant{}, false
}

// RemoveVariant deletes a variant. The recommended flag moves to the first
// remaining variant when its holder is removed.
func RemoveVariant(variants []proposal.Variant, id string) ([]proposal.Variant, error) {
	if !CanRemoveVariant(variants) {
		return CloneVariants(variants), ErrLastVariant
	}
	out := make([]proposal.Variant, 0, len(variants))
	removedRecommended := false
	for _, v := range variants {
		if v.ID == id {
			removedRecommended = v.IsRecommended
			continue
		}
		out = append(out, cloneVariant(v))
	}
	if removedRecommended && !hasRecommended(out) {
		out[0].IsRecommended = true
	}
	return out, nil
}

// SetRecommended marks exactly one variant as recommended. An unknown id
// leaves the flags untouched.
func SetRecommended(variants []proposal.Variant, id string) []proposal.Variant {
	out := CloneVariants(variants)
	found := false
	for _, v := range out {
		if v.ID == id {
			found = true
			break
		}
	}
	if !found {
		return out
	}
	for i := range out {
		out[i].IsRecommended = out[i].ID == id
	}
	return out
}

// Normalize heals a proposal's variant structure: variants mode always has
// at least one variant, exactly one variant is recommended and the active
// pointer references an existing variant.
func Normalize(p proposal.Proposal, newID IDFunc) proposal.Proposal {
	if p.PricingMode == proposal.PricingVariants && len(p.ProductVariants) == 0 {
		return MigrateLegacyToVariants(p, newID)
	}
	if len(p.ProductVariants) == 0 {
		return p
	}

	variants := CloneVariants(p.ProductVariants)
	recommended := -1
	for i := range variants {
		if variants[i].IsRecommended && recommended == -1 {
			recommended = i
			continue
		}
		variants[i].IsRecommended = false
	}
	if recommended == -1 {
		recommended = 0
		variants[0].IsRecommended = true
	}

	activeOK := false
	for _, v := range variants {
		if v.ID == p.ActiveVariantID {
			activeOK = true
			break
		}
	}
	if !activeOK {
		p.ActiveVariantID = variants[recommended].ID
	}
	p.ProductVariants = variants
	return p
}

// RebaseRows copies rows with fresh ids. Group ids are mapped before item
// rows are rewritten, so every groupId follows its group; references to
// groups that are not in the list are dropped. Every group row gets its own
// id; when two groups share an old id, items follow the first of them.
func RebaseRows(rows []proposal.Row, newID IDFunc) []proposal.Row {
	groupIDs := make(map[string]string)
	fresh := make([]string, len(rows))
	for i, row := range rows {
		if row.IsGroup() {
			fresh[i] = newID("group")
			if _, seen := groupIDs[row.ID]; !seen {
				groupIDs[row.ID] = fresh[i]
			}
		}
	}
	out := make([]proposal.Row, 0, len(rows))
	for i, row := range rows {
		if row.IsGroup() {
			out = append(out, proposal.GroupRow(fresh[i], row.Title))
			continue
		}
		item := row.Item
		item.ID = newID("row")
		out = append(out, proposal.ItemRow(item, groupIDs[row.GroupID]))
	}
	return out
}

// CloneVariants deep-copies a variant list.
func CloneVariants(variants []proposal.Variant) []proposal.Variant {
	out := make([]proposal.Variant, len(variants))
	for i, v := range variants {
		out[i] = cloneVariant(v)
	}
	return out
}

func cloneVariant(v proposal.Variant) proposal.Variant {
	rows := make([]proposal.Row, len(v.Rows))
	copy(rows, v.Rows)
	v.Rows = rows
	return v
}

func hasRecommended(variants []proposal.Variant) bool {
	for _, v := range variants {
		if v.IsRecommended {
			return true
		}
	}
	return false
}
