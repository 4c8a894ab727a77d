// Package proposal holds the commercial proposal document model and the
// defensive parsers that turn persisted JSON into it.
package proposal

import (
	"encoding/json"
	"time"
)

type PricingMode string

const (
	PricingSingle   PricingMode = "single"
	PricingVariants PricingMode = "variants"
)

type Status string

const (
	StatusDraft    Status = "draft"
	StatusSent     Status = "sent"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
)

// DefaultUnit is shown for items without an explicit unit label.
const DefaultUnit = "шт"

// DefaultCurrency applies when a proposal carries no currency code.
const DefaultCurrency = "RUB"

// Item is a priced line of the legacy flat list and the payload of item rows.
type Item struct {
	ID          string  `json:"id"`
	ProductID   string  `json:"productId,omitempty"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Qty         float64 `json:"qty"`
	Price       float64 `json:"price"`
	Discount    float64 `json:"discount,omitempty"`
	Unit        string  `json:"unit,omitempty"`
}

// UnitLabel returns the unit or the default label.
func (i Item) UnitLabel() string {
	if i.Unit == "" {
		return DefaultUnit
	}
	return i.Unit
}

type RowType string

const (
	RowGroup RowType = "group"
	RowItem  RowType = "item"
)

// Row is one line of a variant table. Group rows only use ID and Title;
// item rows use the embedded Item and may point at a group via GroupID.
type Row struct {
	Type    RowType `json:"type"`
	Title   string  `json:"title,omitempty"`
	GroupID string  `json:"groupId,omitempty"`
	Item
}

func (r Row) IsGroup() bool { return r.Type == RowGroup }

// GroupRow builds a group separator row.
func GroupRow(id, title string) Row {
	return Row{Type: RowGroup, Title: title, Item: Item{ID: id}}
}

// ItemRow wraps an item into a table row.
func ItemRow(item Item, groupID string) Row {
	return Row{Type: RowItem, GroupID: groupID, Item: item}
}

type Variant struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Description   string `json:"description,omitempty"`
	IsRecommended bool   `json:"isRecommended"`
	Currency      string `json:"currency,omitempty"`
	Rows          []Row  `json:"rows"`
}

// Items projects the variant's item rows to plain items.
func (v Variant) Items() []Item {
	items := make([]Item, 0, len(v.Rows))
	for _, row := range v.Rows {
		if row.IsGroup() {
			continue
		}
		items = append(items, row.Item)
	}
	return items
}

type ProductsView struct {
	ShowUnitColumn     bool `json:"showUnitColumn"`
	ShowDiscountColumn bool `json:"showDiscountColumn"`
}

// DefaultProductsView is used when the stored settings are absent or malformed.
func DefaultProductsView() ProductsView {
	return ProductsView{ShowUnitColumn: true, ShowDiscountColumn: true}
}

type Advantage struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Icon        string `json:"icon,omitempty"`
}

// Proposal is the aggregate document of one commercial offer.
type Proposal struct {
	ID          string `json:"id,omitempty"`
	WorkspaceID string `json:"workspaceId"`
	ClientID    string `json:"clientId,omitempty"`

	Title              string `json:"title"`
	Recipient          string `json:"recipient,omitempty"`
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

	Items           []Item       `json:"items"`
	PricingMode     PricingMode  `json:"pricingMode"`
	ProductVariants []Variant    `json:"productVariants"`
	ActiveVariantID string       `json:"activeVariantId,omitempty"`
	ProductsView    ProductsView `json:"productsView"`
	Currency        string       `json:"currency"`
	IncludeVAT      bool         `json:"includeVat"`
	VATRate         float64      `json:"vatRate"`

	Advantages        []Advantage `json:"advantages"`
	AdvantagesColumns int         `json:"advantagesColumns"`
	// VisibleSections nil means every section renders.
	VisibleSections []SectionID `json:"visibleSections"`
	GalleryImages   []string    `json:"galleryImages"`
	// ContentBlocks is the rich editor document rendered inside the context section.
	ContentBlocks json.RawMessage `json:"contentBlocks,omitempty"`

	Version           int       `json:"version"`
	Status            Status    `json:"status"`
	SharePasswordHash string    `json:"-"`
	CreatedBy         string    `json:"createdBy,omitempty"`
	UpdatedBy         string    `json:"updatedBy,omitempty"`
	CreatedAt         time.Time `json:"createdAt,omitempty"`
	UpdatedAt         time.Time `json:"updatedAt,omitempty"`
}

// Workspace is the letterhead projection of the issuing company.
type Workspace struct {
	ID           string `json:"id" yaml:"id"`
	Name         string `json:"name" yaml:"name"`
	LogoURL      string `json:"logoUrl,omitempty" yaml:"logoUrl"`
	SignatureURL string `json:"signatureUrl,omitempty" yaml:"signatureUrl"`
	StampURL     string `json:"stampUrl,omitempty" yaml:"stampUrl"`
	SignerName   string `json:"signerName,omitempty" yaml:"signerName"`
	SignerRole   string `json:"signerRole,omitempty" yaml:"signerRole"`
	LegalName    string `json:"legalName,omitempty" yaml:"legalName"`
	INN          string `json:"inn,omitempty" yaml:"inn"`
	KPP          string `json:"kpp,omitempty" yaml:"kpp"`
	OGRN         string `json:"ogrn,omitempty" yaml:"ogrn"`
	Address      string `json:"address,omitempty" yaml:"address"`
	BankName     string `json:"bankName,omitempty" yaml:"bankName"`
	BIK          string `json:"bik,omitempty" yaml:"bik"`
	BankAccount  string `json:"bankAccount,omitempty" yaml:"bankAccount"`
	CorrAccount  string `json:"corrAccount,omitempty" yaml:"corrAccount"`
	Phone        string `json:"phone,omitempty" yaml:"phone"`
	Email        string `json:"email,omitempty" yaml:"email"`
	Website      string `json:"website,omitempty" yaml:"website"`
	PrimaryColor string `json:"primaryColor,omitempty" yaml:"primaryColor"`
}

// HasLegalDetails reports whether any requisites are filled in.
func (w Workspace) HasLegalDetails() bool {
	return w.LegalName != "" || w.INN != "" || w.KPP != "" || w.OGRN != "" || w.Address != "" ||
		w.BankName != "" || w.BIK != "" || w.BankAccount != "" || w.CorrAccount != ""
}

type Client struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Company string `json:"company,omitempty"`
	Role    string `json:"role,omitempty"`
}

// Product is a catalog entry that can be imported as a proposal item.
type Product struct {
	ID          string  `json:"id"`
	WorkspaceID string  `json:"workspaceId"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	SKU         string  `json:"sku,omitempty"`
	Price       float64 `json:"price"`
	Unit        string  `json:"unit,omitempty"`
	Currency    string  `json:"currency,omitempty"`
}

// ItemFromProduct copies catalog data into a new line with quantity 1.
func ItemFromProduct(p Product, id string) Item {
	return Item{
		ID:          id,
		ProductID:   p.ID,
		Name:        p.Name,
		Description: p.Description,
		Qty:         1,
		Price:       p.Price,
		Unit:        p.Unit,
	}
}

// MarshalJSON keeps group rows free of the empty item fields.
func (r Row) MarshalJSON() ([]byte, error) {
	if r.IsGroup() {
		return json.Marshal(struct {
			Type  RowType `json:"type"`
			ID    string  `json:"id"`
			Title string  `json:"title"`
		}{RowGroup, r.ID, r.Title})
	}
	type plain Row
	return json.Marshal(plain(r))
}
