// Package render turns a proposal into the self-contained HTML document
// shared by the editor preview, the public share page and PDF export.
package render

import (
	"bytes"
	"embed"
	"html/template"
	"regexp"
	"strings"

	"kpbuilder/api/internal/blocks"
	"kpbuilder/api/internal/pricing"
	"kpbuilder/api/internal/proposal"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplate = template.Must(
	template.New("proposal.html").Funcs(template.FuncMap{
		"add": func(a, b int) int { return a + b },
	}).ParseFS(templateFS, "templates/proposal.html"),
)

const (
	defaultPrimaryColor = "#1f4fd1"
	dateLayout          = "02.01.2006"
)

var hexColor = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

var paymentTermLabels = map[string]string{
	"prepaid":  "100% предоплата",
	"50-50":    "50% предоплата, 50% после сдачи работ",
	"postpaid": "Оплата после сдачи работ",
}

// Render produces the complete HTML document. Output depends only on its
// arguments; the same input always yields identical bytes. ws and client may
// be nil.
func Render(p proposal.Proposal, ws *proposal.Workspace, client *proposal.Client) string {
	data := buildPage(p, ws, client)
	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, data); err != nil {
		// Only reachable through a broken template; keep the contract of
		// always returning a document.
		return "<!DOCTYPE html><html><head><meta charset=\"UTF-8\"></head><body><h1>" +
			template.HTMLEscapeString(p.Title) + "</h1></body></html>"
	}
	return buf.String()
}

type page struct {
	Title        string
	PrimaryColor template.CSS
	Letterhead   *letterhead
	Basic        *basicSection
	Context      *contextSection
	Advantages   *advantagesSection
	Products     *productsSection
	Terms        *termsSection
	Gallery      *gallerySection
	Contacts     *contactsSection
}

type letterhead struct {
	Name    string
	LogoURL template.URL
}

type basicSection struct {
	Title     string
	Recipient string
	Client    string
	Date      string
}

type contextSection struct {
	ProblemDesc    string
	SolutionDesc   string
	AdditionalDesc string
	BlocksHTML     template.HTML
}

type advantagesSection struct {
	Columns int
	Cards   []proposal.Advantage
}

type productsSection struct {
	Variant      *variantHeader
	ShowUnit     bool
	ShowDiscount bool
	Colspan      int
	Rows         []tableRow
	Subtotal     string
	IncludeVAT   bool
	VATLabel     string
	VAT          string
	Total        string
}

type variantHeader struct {
	Name          string
	Description   string
	IsRecommended bool
}

type tableRow struct {
	IsGroup     bool
	Title       string
	Number      int
	Name        string
	Description string
	Qty         string
	Unit        string
	Price       string
	Discount    string
	Sum         string
}

type termsSection struct {
	Deadline     string
	PaymentTerms string
	Notes        string
}

type gallerySection struct {
	Images []template.URL
}

type contactsSection struct {
	Company      string
	Phone        string
	Email        string
	Website      string
	Requisites   []requisite
	SignerName   string
	SignerRole   string
	SignatureURL template.URL
	StampURL     template.URL
	CTAText      string
	CTAButton    string
	CTAURL       template.URL
}

type requisite struct {
	Label string
	Value string
}

func buildPage(p proposal.Proposal, ws *proposal.Workspace, client *proposal.Client) page {
	data := page{
		Title:        p.Title,
		PrimaryColor: template.CSS(defaultPrimaryColor),
	}
	if data.Title == "" {
		data.Title = "Коммерческое предложение"
	}
	if ws != nil {
		if hexColor.MatchString(ws.PrimaryColor) {
			data.PrimaryColor = template.CSS(ws.PrimaryColor)
		}
		lh := letterhead{Name: ws.Name, LogoURL: imageURL(ws.LogoURL)}
		if lh.Name != "" || lh.LogoURL != "" {
			data.Letterhead = &lh
		}
	}

	show := func(id proposal.SectionID) bool {
		return proposal.SectionVisible(p.VisibleSections, id)
	}
	if show(proposal.SectionBasic) {
		data.Basic = basic(p, client)
	}
	if show(proposal.SectionContext) {
		data.Context = contextBlock(p)
	}
	if show(proposal.SectionAdvantages) {
		data.Advantages = advantages(p)
	}
	if show(proposal.SectionProducts) {
		data.Products = products(p)
	}
	if show(proposal.SectionTerms) {
		data.Terms = terms(p)
	}
	if show(proposal.SectionGallery) {
		data.Gallery = gallery(p)
	}
	if show(proposal.SectionContacts) {
		data.Contacts = contacts(p, ws)
	}
	return data
}

func basic(p proposal.Proposal, client *proposal.Client) *basicSection {
	s := basicSection{Title: p.Title, Recipient: p.Recipient}
	if client != nil {
		parts := make([]string, 0, 3)
		for _, part := range []string{client.Name, client.Role, client.Company} {
			if part = strings.TrimSpace(part); part != "" {
				parts = append(parts, part)
			}
		}
		s.Client = strings.Join(parts, ", ")
	}
	switch {
	case !p.UpdatedAt.IsZero():
		s.Date = p.UpdatedAt.Format(dateLayout)
	case !p.CreatedAt.IsZero():
		s.Date = p.CreatedAt.Format(dateLayout)
	}
	if s.Title == "" && s.Recipient == "" && s.Client == "" {
		return nil
	}
	return &s
}

func contextBlock(p proposal.Proposal) *contextSection {
	s := contextSection{
		ProblemDesc:    strings.TrimSpace(p.ProblemDesc),
		SolutionDesc:   strings.TrimSpace(p.SolutionDesc),
		AdditionalDesc: strings.TrimSpace(p.AdditionalDesc),
		BlocksHTML:     template.HTML(blocks.RenderJSON(p.ContentBlocks, pricing.ResolveCurrency(p))),
	}
	if s.ProblemDesc == "" && s.SolutionDesc == "" && s.AdditionalDesc == "" && s.BlocksHTML == "" {
		return nil
	}
	return &s
}

func advantages(p proposal.Proposal) *advantagesSection {
	if len(p.Advantages) == 0 {
		return nil
	}
	return &advantagesSection{
		Columns: AdvantagesColumns(p.AdvantagesColumns, len(p.Advantages)),
		Cards:   p.Advantages,
	}
}

// AdvantagesColumns is the grid width: three or more cards always use
// three columns, otherwise the stored value clamped to 1..3.
func AdvantagesColumns(stored, cards int) int {
	if cards >= 3 {
		return 3
	}
	return proposal.ParseAdvantagesColumns(stored)
}

// Colspan is the column count of the products table.
func Colspan(view proposal.ProductsView) int {
	n := 5
	if view.ShowUnitColumn {
		n++
	}
	if view.ShowDiscountColumn {
		n++
	}
	return n
}

func products(p proposal.Proposal) *productsSection {
	var rows []proposal.Row
	s := productsSection{
		ShowUnit:     p.ProductsView.ShowUnitColumn,
		ShowDiscount: p.ProductsView.ShowDiscountColumn,
		Colspan:      Colspan(p.ProductsView),
	}
	if v, ok := pricing.ResolveActiveVariant(p); ok {
		rows = v.Rows
		s.Variant = &variantHeader{Name: v.Name, Description: v.Description, IsRecommended: v.IsRecommended}
	} else {
		rows = make([]proposal.Row, 0, len(p.Items))
		for _, item := range p.Items {
			rows = append(rows, proposal.ItemRow(item, ""))
		}
	}
	if len(rows) == 0 {
		return nil
	}

	currency := pricing.ResolveCurrency(p)
	number := 0
	for _, row := range rows {
		if row.IsGroup() {
			s.Rows = append(s.Rows, tableRow{IsGroup: true, Title: row.Title})
			continue
		}
		number++
		discount := "—"
		if row.Discount > 0 {
			discount = pricing.FormatQty(row.Discount) + "%"
		}
		s.Rows = append(s.Rows, tableRow{
			Number:      number,
			Name:        row.Name,
			Description: row.Description,
			Qty:         pricing.FormatQty(row.Qty),
			Unit:        row.UnitLabel(),
			Price:       pricing.FormatMoney(row.Price, currency),
			Discount:    discount,
			Sum:         pricing.FormatMoney(pricing.RowTotal(row.Item), currency),
		})
	}

	totals := pricing.Compute(p)
	s.Subtotal = pricing.FormatMoney(totals.Subtotal, currency)
	s.Total = pricing.FormatMoney(totals.Total, currency)
	if totals.IncludeVAT {
		s.IncludeVAT = true
		s.VATLabel = "НДС " + pricing.FormatQty(totals.VATRate) + "%"
		s.VAT = pricing.FormatMoney(totals.VAT, currency)
	}
	return &s
}

// PaymentTermsLabel returns the display text for the stored payment terms.
func PaymentTermsLabel(value, custom string) string {
	if label, ok := paymentTermLabels[value]; ok {
		return label
	}
	if custom = strings.TrimSpace(custom); custom != "" {
		return custom
	}
	return value
}

func terms(p proposal.Proposal) *termsSection {
	s := termsSection{
		Deadline:     strings.TrimSpace(p.Deadline),
		PaymentTerms: strings.TrimSpace(PaymentTermsLabel(p.PaymentTerms, p.PaymentTermsCustom)),
		Notes:        strings.TrimSpace(p.Notes),
	}
	if s.Deadline == "" && s.PaymentTerms == "" && s.Notes == "" {
		return nil
	}
	return &s
}

func gallery(p proposal.Proposal) *gallerySection {
	var images []template.URL
	for _, src := range p.GalleryImages {
		if u := imageURL(src); u != "" {
			images = append(images, u)
		}
	}
	if len(images) == 0 {
		return nil
	}
	return &gallerySection{Images: images}
}

func contacts(p proposal.Proposal, ws *proposal.Workspace) *contactsSection {
	s := contactsSection{
		CTAText:   strings.TrimSpace(p.CTAText),
		CTAButton: strings.TrimSpace(p.CTAButtonText),
	}
	if link, ok := blocks.SafeLinkURL(p.CTAButtonURL); ok {
		s.CTAURL = template.URL(link)
	}
	if s.CTAURL == "" {
		s.CTAButton = ""
	}
	if ws != nil {
		s.Company = ws.Name
		s.Phone = ws.Phone
		s.Email = ws.Email
		s.Website = ws.Website
		s.SignerName = ws.SignerName
		s.SignerRole = ws.SignerRole
		s.SignatureURL = imageURL(ws.SignatureURL)
		s.StampURL = imageURL(ws.StampURL)
		if ws.HasLegalDetails() {
			s.Requisites = requisites(*ws)
		}
	}
	if s.Phone == "" && s.Email == "" && s.Website == "" && len(s.Requisites) == 0 &&
		s.SignerName == "" && s.SignatureURL == "" && s.StampURL == "" &&
		s.CTAText == "" && s.CTAButton == "" {
		return nil
	}
	return &s
}

func requisites(ws proposal.Workspace) []requisite {
	all := []requisite{
		{"Юр. лицо", ws.LegalName},
		{"ИНН", ws.INN},
		{"КПП", ws.KPP},
		{"ОГРН", ws.OGRN},
		{"Адрес", ws.Address},
		{"Банк", ws.BankName},
		{"БИК", ws.BIK},
		{"Р/с", ws.BankAccount},
		{"К/с", ws.CorrAccount},
	}
	out := make([]requisite, 0, len(all))
	for _, r := range all {
		if r.Value = strings.TrimSpace(r.Value); r.Value != "" {
			out = append(out, r)
		}
	}
	return out
}

func imageURL(raw string) template.URL {
	if src, ok := blocks.SafeImageURL(raw); ok {
		return template.URL(src)
	}
	return ""
}
