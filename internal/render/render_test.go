package render

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"kpbuilder/api/internal/proposal"
)

func sampleProposal() proposal.Proposal {
	return proposal.Proposal{
		ID:           "p1",
		Title:        "Разработка сайта",
		Recipient:    "ООО «Ромашка»",
		ProblemDesc:  "Старый сайт не продаёт",
		SolutionDesc: "Новый лендинг",
		Deadline:     "30 дней",
		PaymentTerms: "50-50",
		Items: []proposal.Item{
			{ID: "i1", Name: "Дизайн", Qty: 2, Price: 100, Discount: 10},
		},
		PricingMode:       proposal.PricingSingle,
		ProductsView:      proposal.DefaultProductsView(),
		Currency:          "RUB",
		IncludeVAT:        true,
		VATRate:           20,
		AdvantagesColumns: 2,
		UpdatedAt:         time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestRenderEscapesUserText(t *testing.T) {
	p := sampleProposal()
	p.Title = "<script>alert(1)</script>"
	p.Notes = `"quoted" & 'single'`

	out := Render(p, nil, nil)
	assert.Contains(t, out, "&lt;script&gt;")
	assert.NotContains(t, out, "<script>alert(1)")
	assert.Contains(t, out, "&#34;quoted&#34; &amp; &#39;single&#39;")
}

func TestRenderIsDeterministic(t *testing.T) {
	p := sampleProposal()
	ws := &proposal.Workspace{Name: "Studio", Phone: "+7 900 000-00-00", INN: "7700000000"}
	client := &proposal.Client{Name: "Иван", Company: "Ромашка"}

	first := Render(p, ws, client)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Render(p, ws, client))
	}
}

func TestRenderDocumentShell(t *testing.T) {
	out := Render(sampleProposal(), nil, nil)
	assert.True(t, strings.HasPrefix(out, "<!DOCTYPE html>"))
	assert.Contains(t, out, "@page { size: A4;")
	assert.Contains(t, out, "window.parent.postMessage")
	assert.Contains(t, out, "Дата: 01.03.2025")
}

func TestRenderHonoursVisibleSections(t *testing.T) {
	p := sampleProposal()
	p.VisibleSections = []proposal.SectionID{proposal.SectionProducts}

	out := Render(p, nil, nil)
	assert.NotContains(t, out, "Старый сайт не продаёт")
	assert.NotContains(t, out, "kp-section-context")
	assert.NotContains(t, out, "kp-section-terms")
	assert.Contains(t, out, "kp-section-products")
}

func TestRenderSkipsEmptySections(t *testing.T) {
	p := proposal.Proposal{Title: "Пусто", ProductsView: proposal.DefaultProductsView()}

	out := Render(p, nil, nil)
	assert.Contains(t, out, "kp-section-basic")
	for _, section := range []string{"context", "advantages", "products", "terms", "gallery", "contacts"} {
		assert.NotContains(t, out, "kp-section-"+section, section)
	}
}

func TestRenderGroupRowColspan(t *testing.T) {
	p := sampleProposal()
	p.PricingMode = proposal.PricingVariants
	p.ProductsView = proposal.ProductsView{ShowUnitColumn: false, ShowDiscountColumn: true}
	p.ProductVariants = []proposal.Variant{{
		ID:            "v1",
		Name:          "Стандарт",
		IsRecommended: true,
		Rows: []proposal.Row{
			proposal.GroupRow("g1", "Пакет А"),
			proposal.ItemRow(proposal.Item{ID: "r1", Name: "Один", Qty: 1, Price: 10}, "g1"),
			proposal.ItemRow(proposal.Item{ID: "r2", Name: "Два", Qty: 1, Price: 20}, "g1"),
		},
	}}

	out := Render(p, nil, nil)
	assert.Contains(t, out, `<tr class="kp-group-row"><td colspan="6">Пакет А</td></tr>`)
	assert.NotContains(t, out, "<th>Ед.</th>")
	assert.Contains(t, out, "Скидка")
	assert.Contains(t, out, "Рекомендуем")
	assert.Contains(t, out, "<td>1</td><td>Один</td>")
	assert.Contains(t, out, "<td>2</td><td>Два</td>")
}

func TestColspan(t *testing.T) {
	assert.Equal(t, 7, Colspan(proposal.ProductsView{ShowUnitColumn: true, ShowDiscountColumn: true}))
	assert.Equal(t, 6, Colspan(proposal.ProductsView{ShowUnitColumn: true}))
	assert.Equal(t, 5, Colspan(proposal.ProductsView{}))
}

func TestRenderTotals(t *testing.T) {
	p := sampleProposal()

	out := Render(p, nil, nil)
	assert.Contains(t, out, "Сумма без НДС")
	assert.Contains(t, out, "НДС 20%")
	assert.Contains(t, out, "216,00\u00a0₽")

	p.IncludeVAT = false
	out = Render(p, nil, nil)
	assert.NotContains(t, out, "НДС")
	assert.Contains(t, out, ">Итого<")
	assert.Contains(t, out, "180,00\u00a0₽")
}

func TestAdvantagesColumns(t *testing.T) {
	assert.Equal(t, 3, AdvantagesColumns(1, 3))
	assert.Equal(t, 3, AdvantagesColumns(2, 5))
	assert.Equal(t, 2, AdvantagesColumns(2, 2))
	assert.Equal(t, 1, AdvantagesColumns(1, 1))
	assert.Equal(t, 3, AdvantagesColumns(0, 1))

	p := sampleProposal()
	p.AdvantagesColumns = 1
	p.Advantages = []proposal.Advantage{{ID: "a", Title: "A"}, {ID: "b", Title: "B"}, {ID: "c", Title: "C"}}
	assert.Contains(t, Render(p, nil, nil), `class="kp-adv-grid kp-adv-cols-3"`)
}

func TestPaymentTermsLabel(t *testing.T) {
	assert.Equal(t, "100% предоплата", PaymentTermsLabel("prepaid", "ignored"))
	assert.Equal(t, "Оплата после сдачи работ", PaymentTermsLabel("postpaid", ""))
	assert.Equal(t, "Три этапа", PaymentTermsLabel("custom", " Три этапа "))
	assert.Equal(t, "custom", PaymentTermsLabel("custom", ""))
}

func TestRenderDropsUnsafeURLs(t *testing.T) {
	p := sampleProposal()
	p.GalleryImages = []string{"javascript:alert(1)", "https://cdn.example.com/a.jpg"}
	p.CTAButtonText = "Связаться"
	p.CTAButtonURL = "javascript:alert(2)"
	ws := &proposal.Workspace{Name: "Studio", LogoURL: "data:image/png;base64,AAAA", Email: "hi@example.com", PrimaryColor: "red;}</style>"}

	out := Render(p, ws, nil)
	assert.NotContains(t, out, "javascript:")
	assert.Contains(t, out, `src="https://cdn.example.com/a.jpg"`)
	assert.Contains(t, out, `src="data:image/png;base64,AAAA"`)
	assert.NotContains(t, out, "Связаться")
	assert.Contains(t, out, defaultPrimaryColor)
}

func TestRenderContentBlocksInContext(t *testing.T) {
	p := proposal.Proposal{
		Title:         "Blocks",
		ContentBlocks: []byte(`{"type":"doc","content":[{"type":"paragraph","content":[{"type":"text","text":"Из редактора"}]}]}`),
	}

	out := Render(p, nil, nil)
	assert.Contains(t, out, "kp-section-context")
	assert.Contains(t, out, "<p>Из редактора</p>")
}

func TestRenderSkipsEmptyContentBlocks(t *testing.T) {
	p := proposal.Proposal{
		Title:         "Blocks",
		ContentBlocks: []byte(`{"type":"doc","content":[{"type":"paragraph"},{"type":"heading","attrs":{"level":2},"content":[{"type":"text","text":""}]}]}`),
	}

	out := Render(p, nil, nil)
	assert.NotContains(t, out, "kp-section-context")
	assert.NotContains(t, out, `<div class="kp-blocks">`)
}

func TestRenderRequisitesOnlyWithLegalDetails(t *testing.T) {
	p := sampleProposal()

	out := Render(p, &proposal.Workspace{Name: "Studio", Phone: "+7 900 000-00-00"}, nil)
	assert.Contains(t, out, "kp-section-contacts")
	assert.NotContains(t, out, `<table class="kp-requisites">`)

	out = Render(p, &proposal.Workspace{Name: "Studio", INN: "7700000000", BIK: "044525225"}, nil)
	assert.Contains(t, out, `<table class="kp-requisites">`)
	assert.Contains(t, out, "<tr><td>ИНН</td><td>7700000000</td></tr>")
	assert.Contains(t, out, "<tr><td>БИК</td><td>044525225</td></tr>")
	assert.NotContains(t, out, "<td>КПП</td>")
}
