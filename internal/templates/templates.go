// Package templates saves proposals as reusable templates and instantiates
// templates into new proposals.
package templates

import (
	"encoding/json"
	"time"

	"kpbuilder/api/internal/blocks"
	"kpbuilder/api/internal/pricing"
	"kpbuilder/api/internal/proposal"
)

// Defaults is the part of a proposal a template carries. Identity, tenant,
// client, title, status and audit fields are never part of it.
type Defaults struct {
	ProblemDesc        string `json:"problemDesc,omitempty"`
	SolutionDesc       string `json:"solutionDesc,omitempty"`
	AdditionalDesc     string `json:"additionalDesc,omitempty"`
	Deadline           string `json:"deadline,omitempty"`
	PaymentTerms       string `json:"paymentTerms,omitempty"`
	PaymentTermsCustom string `json:"paymentTermsCustom,omitempty"`
	Notes              string `json:"notes,omitempty"`
	CTAText            string `json:"ctaText,omitempty"`
	CTAButtonText      string `json:"ctaButtonText,omitempty"`
	CTAButtonURL       string `json:"ctaButtonUrl,omitempty"`

	Items           []proposal.Item       `json:"items"`
	PricingMode     proposal.PricingMode  `json:"pricingMode"`
	ProductVariants []proposal.Variant    `json:"productVariants"`
	ActiveVariantID string                `json:"activeVariantId,omitempty"`
	ProductsView    proposal.ProductsView `json:"productsView"`
	Currency        string                `json:"currency"`
	IncludeVAT      bool                  `json:"includeVat"`
	VATRate         float64               `json:"vatRate"`

	Advantages        []proposal.Advantage `json:"advantages"`
	AdvantagesColumns int                  `json:"advantagesColumns"`
	GalleryImages     []string             `json:"galleryImages"`
	ContentBlocks     json.RawMessage      `json:"contentBlocks,omitempty"`
}

// Template is a stored proposal template.
type Template struct {
	ID          string               `json:"id"`
	WorkspaceID string               `json:"workspaceId"`
	Name        string               `json:"name"`
	Description string               `json:"description,omitempty"`
	Category    string               `json:"category,omitempty"`
	Defaults    Defaults             `json:"defaults"`
	Sections    []proposal.SectionID `json:"sections"`
	IsDefault   bool                 `json:"isDefault"`
	CreatedAt   time.Time            `json:"createdAt"`
}

// ExtractDefaults copies the allow-listed fields of p into a structure that
// shares no memory with it.
func ExtractDefaults(p proposal.Proposal) Defaults {
	d := Defaults{
		ProblemDesc:        p.ProblemDesc,
		SolutionDesc:       p.SolutionDesc,
		AdditionalDesc:     p.AdditionalDesc,
		Deadline:           p.Deadline,
		PaymentTerms:       p.PaymentTerms,
		PaymentTermsCustom: p.PaymentTermsCustom,
		Notes:              p.Notes,
		CTAText:            p.CTAText,
		CTAButtonText:      p.CTAButtonText,
		CTAButtonURL:       p.CTAButtonURL,
		Items:              p.Items,
		PricingMode:        p.PricingMode,
		ProductVariants:    p.ProductVariants,
		ActiveVariantID:    p.ActiveVariantID,
		ProductsView:       p.ProductsView,
		Currency:           p.Currency,
		IncludeVAT:         p.IncludeVAT,
		VATRate:            p.VATRate,
		Advantages:         p.Advantages,
		AdvantagesColumns:  p.AdvantagesColumns,
		GalleryImages:      p.GalleryImages,
		ContentBlocks:      p.ContentBlocks,
	}
	return d.Clone()
}

// Clone deep-copies the defaults.
func (d Defaults) Clone() Defaults {
	out := d
	out.Items = append([]proposal.Item{}, d.Items...)
	out.ProductVariants = pricing.CloneVariants(d.ProductVariants)
	out.Advantages = append([]proposal.Advantage{}, d.Advantages...)
	out.GalleryImages = append([]string{}, d.GalleryImages...)
	if d.ContentBlocks != nil {
		out.ContentBlocks = append(json.RawMessage{}, d.ContentBlocks...)
	}
	return out
}

// FilterSections keeps known section ids once each, in order, and falls
// back to every section when nothing valid remains.
func FilterSections(raw any) []proposal.SectionID {
	return proposal.FilterSections(raw)
}

// SectionsOf returns the template section list for a proposal's visibility
// setting; an unrestricted proposal yields every section.
func SectionsOf(visible []proposal.SectionID) []proposal.SectionID {
	if visible == nil {
		return proposal.AllSections()
	}
	return FilterSections(visible)
}

// FromProposal builds a template from an existing proposal.
func FromProposal(p proposal.Proposal, name, description, category string) Template {
	return Template{
		WorkspaceID: p.WorkspaceID,
		Name:        name,
		Description: description,
		Category:    category,
		Defaults:    ExtractDefaults(p),
		Sections:    SectionsOf(p.VisibleSections),
	}
}

// RebaseIDs returns a copy of d where every item, advantage, variant and
// row id is regenerated, price table items inside the content blocks
// included. Group links inside each variant follow their
// groups, and the active variant pointer follows its variant. The second
// result reports that a set but unknown active pointer was replaced by the
// first variant.
func RebaseIDs(d Defaults, newID pricing.IDFunc) (Defaults, bool) {
	out := d.Clone()

	for i := range out.Items {
		out.Items[i].ID = newID("item")
	}
	for i := range out.Advantages {
		out.Advantages[i].ID = newID("adv")
	}

	variantIDs := make(map[string]string, len(out.ProductVariants))
	for i := range out.ProductVariants {
		fresh := newID("variant")
		variantIDs[out.ProductVariants[i].ID] = fresh
		out.ProductVariants[i].ID = fresh
	}
	for i := range out.ProductVariants {
		out.ProductVariants[i].Rows = pricing.RebaseRows(out.ProductVariants[i].Rows, newID)
	}
	out.ContentBlocks = rebaseBlockIDs(out.ContentBlocks, newID)

	fellBack := false
	if out.ActiveVariantID != "" {
		if mapped, ok := variantIDs[out.ActiveVariantID]; ok {
			out.ActiveVariantID = mapped
		} else if len(out.ProductVariants) > 0 {
			out.ActiveVariantID = out.ProductVariants[0].ID
			fellBack = true
		} else {
			out.ActiveVariantID = ""
		}
	}
	return out, fellBack
}

// rebaseBlockIDs rewrites price table item ids. Documents that do not parse
// or carry no such ids are returned unchanged.
func rebaseBlockIDs(raw json.RawMessage, newID pricing.IDFunc) json.RawMessage {
	if len(raw) == 0 {
		return raw
	}
	doc, err := blocks.Parse(raw)
	if err != nil {
		return raw
	}
	rebased, n := blocks.RebaseItemIDs(doc, newID)
	if n == 0 {
		return raw
	}
	encoded, err := json.Marshal(rebased)
	if err != nil {
		return raw
	}
	return encoded
}

// Apply instantiates the template into target. Identity, tenant, client and
// title of target are kept; every other allow-listed field comes from the
// template with fresh ids. The bool result is RebaseIDs' fallback flag.
func Apply(t Template, target proposal.Proposal, newID pricing.IDFunc) (proposal.Proposal, bool) {
	d, fellBack := RebaseIDs(t.Defaults, newID)

	target.ProblemDesc = d.ProblemDesc
	target.SolutionDesc = d.SolutionDesc
	target.AdditionalDesc = d.AdditionalDesc
	target.Deadline = d.Deadline
	target.PaymentTerms = d.PaymentTerms
	target.PaymentTermsCustom = d.PaymentTermsCustom
	target.Notes = d.Notes
	target.CTAText = d.CTAText
	target.CTAButtonText = d.CTAButtonText
	target.CTAButtonURL = d.CTAButtonURL
	target.Items = d.Items
	target.PricingMode = d.PricingMode
	target.ProductVariants = d.ProductVariants
	target.ActiveVariantID = d.ActiveVariantID
	target.ProductsView = d.ProductsView
	target.Currency = d.Currency
	target.IncludeVAT = d.IncludeVAT
	target.VATRate = d.VATRate
	target.Advantages = d.Advantages
	target.AdvantagesColumns = d.AdvantagesColumns
	target.GalleryImages = d.GalleryImages
	target.ContentBlocks = d.ContentBlocks
	target.VisibleSections = SectionsOf(t.Sections)
	return target, fellBack
}

// ParseDefaults reads stored template defaults with the proposal parsers,
// so malformed rows are dropped the same way they are for proposals.
func ParseDefaults(data []byte) (Defaults, error) {
	p, err := proposal.ParseProposal(data)
	if err != nil {
		return Defaults{}, err
	}
	return ExtractDefaults(p), nil
}
