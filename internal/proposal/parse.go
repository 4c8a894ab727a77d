package proposal

import (
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"
)

// ErrNotObject is returned when the top-level document is not a JSON object.
var ErrNotObject = errors.New("proposal document is not a JSON object")

// FilterValid parses every element of raw with parse and keeps only the
// elements that pass. A non-array input yields an empty slice.
func FilterValid[T any](raw any, parse func(any) (T, bool)) []T {
	values, ok := raw.([]any)
	if !ok {
		return []T{}
	}
	out := make([]T, 0, len(values))
	for _, value := range values {
		if parsed, ok := parse(value); ok {
			out = append(out, parsed)
		}
	}
	return out
}

// ToNumber coerces a stored value into a finite number. null, empty
// strings, garbage and non-finite values all become 0.
func ToNumber(v any) float64 {
	n, ok := NumberValue(v)
	if !ok {
		return 0
	}
	return n
}

// NumberValue is ToNumber that also reports whether v held a usable number.
func NumberValue(v any) (float64, bool) {
	var n float64
	switch value := v.(type) {
	case nil:
		return 0, false
	case float64:
		n = value
	case float32:
		n = float64(value)
	case int:
		n = float64(value)
	case int64:
		n = float64(value)
	case json.Number:
		parsed, err := value.Float64()
		if err != nil {
			return 0, false
		}
		n = parsed
	case bool:
		if value {
			return 1, true
		}
		return 0, true
	case string:
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return 0, false
		}
		n = parsed
	default:
		return 0, false
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

func nonNegative(v any) float64 {
	n := ToNumber(v)
	if n < 0 {
		return 0
	}
	return n
}

func clampPercent(v any) float64 {
	n := ToNumber(v)
	switch {
	case n < 0:
		return 0
	case n > 100:
		return 100
	default:
		return n
	}
}

func asMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

// asID accepts string or numeric identifiers.
func asID(v any) string {
	switch value := v.(type) {
	case string:
		return strings.TrimSpace(value)
	case float64:
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return ""
		}
		return strconv.FormatFloat(value, 'f', -1, 64)
	case int:
		return strconv.Itoa(value)
	case int64:
		return strconv.FormatInt(value, 10)
	case json.Number:
		return value.String()
	default:
		return ""
	}
}

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}

func asTime(v any) time.Time {
	s, ok := v.(string)
	if !ok || s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

// ParseItem validates one priced line. Rows without an id are rejected.
func ParseItem(v any) (Item, bool) {
	m, ok := asMap(v)
	if !ok {
		return Item{}, false
	}
	id := asID(m["id"])
	if id == "" {
		return Item{}, false
	}
	return Item{
		ID:          id,
		ProductID:   asID(m["productId"]),
		Name:        asString(m["name"]),
		Description: asString(m["description"]),
		Qty:         nonNegative(m["qty"]),
		Price:       nonNegative(m["price"]),
		Discount:    clampPercent(m["discount"]),
		Unit:        strings.TrimSpace(asString(m["unit"])),
	}, true
}

// ParseRow validates a variant row. A missing type is read as an item row
// (rows saved before grouping existed); unknown types are rejected.
func ParseRow(v any) (Row, bool) {
	m, ok := asMap(v)
	if !ok {
		return Row{}, false
	}
	switch RowType(asString(m["type"])) {
	case RowGroup:
		id := asID(m["id"])
		if id == "" {
			return Row{}, false
		}
		return GroupRow(id, asString(m["title"])), true
	case RowItem, "":
		item, ok := ParseItem(m)
		if !ok {
			return Row{}, false
		}
		return ItemRow(item, asID(m["groupId"])), true
	default:
		return Row{}, false
	}
}

func ParseVariant(v any) (Variant, bool) {
	m, ok := asMap(v)
	if !ok {
		return Variant{}, false
	}
	id := asID(m["id"])
	if id == "" {
		return Variant{}, false
	}
	return Variant{
		ID:            id,
		Name:          asString(m["name"]),
		Description:   asString(m["description"]),
		IsRecommended: asBool(m["isRecommended"]),
		Currency:      strings.ToUpper(strings.TrimSpace(asString(m["currency"]))),
		Rows:          FilterValid(m["rows"], ParseRow),
	}, true
}

func ParseAdvantage(v any) (Advantage, bool) {
	m, ok := asMap(v)
	if !ok {
		return Advantage{}, false
	}
	id := asID(m["id"])
	if id == "" {
		return Advantage{}, false
	}
	return Advantage{
		ID:          id,
		Title:       asString(m["title"]),
		Description: asString(m["description"]),
		Icon:        asString(m["icon"]),
	}, true
}

func ParseItems(raw any) []Item { return FilterValid(raw, ParseItem) }
func ParseRows(raw any) []Row { return FilterValid(raw, ParseRow) }
func ParseVariants(raw any) []Variant { return FilterValid(raw, ParseVariant) }
func ParseAdvantages(raw any) []Advantage { return FilterValid(raw, ParseAdvantage) }

// ParseGallery keeps non-empty string entries only.
func ParseGallery(raw any) []string {
	return FilterValid(raw, func(v any) (string, bool) {
		s, ok := v.(string)
		s = strings.TrimSpace(s)
		return s, ok && s != ""
	})
}

// ParseProductsView reads the column visibility flags. Missing flags take
// their defaults; a non-object or a flag of the wrong type fails the parse.
func ParseProductsView(raw any) (ProductsView, bool) {
	m, ok := asMap(raw)
	if !ok {
		return ProductsView{}, false
	}
	view := DefaultProductsView()
	if v, present := m["showUnitColumn"]; present && v != nil {
		b, ok := v.(bool)
		if !ok {
			return ProductsView{}, false
		}
		view.ShowUnitColumn = b
	}
	if v, present := m["showDiscountColumn"]; present && v != nil {
		b, ok := v.(bool)
		if !ok {
			return ProductsView{}, false
		}
		view.ShowDiscountColumn = b
	}
	return view, true
}

// ParseAdvantagesColumns returns 1, 2 or 3. Anything else, null included,
// falls back to 3.
func ParseAdvantagesColumns(raw any) int {
	n, ok := NumberValue(raw)
	if !ok {
		return 3
	}
	if _, isBool := raw.(bool); isBool {
		return 3
	}
	cols := int(math.Trunc(n))
	if cols < 1 || cols > 3 {
		return 3
	}
	return cols
}

func ParsePricingMode(raw any) PricingMode {
	if mode := PricingMode(asString(raw)); mode == PricingVariants {
		return PricingVariants
	}
	return PricingSingle
}

func ParseStatus(raw any) Status {
	switch status := Status(asString(raw)); status {
	case StatusDraft, StatusSent, StatusAccepted, StatusRejected:
		return status
	default:
		return StatusDraft
	}
}

func ParseCurrency(raw any) string {
	code := strings.ToUpper(strings.TrimSpace(asString(raw)))
	if code == "" {
		return DefaultCurrency
	}
	return code
}

// ParseProposal decodes persisted or client-supplied JSON. Only a top-level
// value that is not an object is an error; everything below it degrades to
// defaults.
func ParseProposal(data []byte) (Proposal, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return Proposal{}, err
	}
	m, ok := asMap(raw)
	if !ok {
		return Proposal{}, ErrNotObject
	}
	return ParseProposalMap(m), nil
}

// ParseProposalMap builds a proposal from an already decoded JSON object.
func ParseProposalMap(m map[string]any) Proposal {
	view, ok := ParseProductsView(m["productsView"])
	if !ok {
		view = DefaultProductsView()
	}
	return Proposal{
		ID:                 asID(m["id"]),
		WorkspaceID:        asID(m["workspaceId"]),
		ClientID:           asID(m["clientId"]),
		Title:              asString(m["title"]),
		Recipient:          asString(m["recipient"]),
		ProblemDesc:        asString(m["problemDesc"]),
		SolutionDesc:       asString(m["solutionDesc"]),
		AdditionalDesc:     asString(m["additionalDesc"]),
		Deadline:           asString(m["deadline"]),
		PaymentTerms:       asString(m["paymentTerms"]),
		PaymentTermsCustom: asString(m["paymentTermsCustom"]),
		Notes:              asString(m["notes"]),
		CTAText:            asString(m["ctaText"]),
		CTAButtonText:      asString(m["ctaButtonText"]),
		CTAButtonURL:       strings.TrimSpace(asString(m["ctaButtonUrl"])),
		Items:              ParseItems(m["items"]),
		PricingMode:        ParsePricingMode(m["pricingMode"]),
		ProductVariants:    ParseVariants(m["productVariants"]),
		ActiveVariantID:    asID(m["activeVariantId"]),
		ProductsView:       view,
		Currency:           ParseCurrency(m["currency"]),
		IncludeVAT:         asBool(m["includeVat"]),
		VATRate:            clampPercent(m["vatRate"]),
		Advantages:         ParseAdvantages(m["advantages"]),
		AdvantagesColumns:  ParseAdvantagesColumns(m["advantagesColumns"]),
		VisibleSections:    ParseVisibleSections(m["visibleSections"]),
		GalleryImages:      ParseGallery(m["galleryImages"]),
		ContentBlocks:      parseBlocks(m["contentBlocks"]),
		Version:            int(nonNegative(m["version"])),
		Status:             ParseStatus(m["status"]),
		CreatedBy:          asString(m["createdBy"]),
		UpdatedBy:          asString(m["updatedBy"]),
		CreatedAt:          asTime(m["createdAt"]),
		UpdatedAt:          asTime(m["updatedAt"]),
	}
}

func parseBlocks(raw any) json.RawMessage {
	if _, ok := asMap(raw); !ok {
		return nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil
	}
	return data
}

func ParseWorkspace(raw any) Workspace {
	m, _ := asMap(raw)
	return Workspace{
		ID:           asID(m["id"]),
		Name:         asString(m["name"]),
		LogoURL:      asString(m["logoUrl"]),
		SignatureURL: asString(m["signatureUrl"]),
		StampURL:     asString(m["stampUrl"]),
		SignerName:   asString(m["signerName"]),
		SignerRole:   asString(m["signerRole"]),
		LegalName:    asString(m["legalName"]),
		INN:          asString(m["inn"]),
		KPP:          asString(m["kpp"]),
		OGRN:         asString(m["ogrn"]),
		Address:      asString(m["address"]),
		BankName:     asString(m["bankName"]),
		BIK:          asString(m["bik"]),
		BankAccount:  asString(m["bankAccount"]),
		CorrAccount:  asString(m["corrAccount"]),
		Phone:        asString(m["phone"]),
		Email:        asString(m["email"]),
		Website:      asString(m["website"]),
		PrimaryColor: asString(m["primaryColor"]),
	}
}

func ParseClient(raw any) Client {
	m, _ := asMap(raw)
	return Client{
		ID:      asID(m["id"]),
		Name:    asString(m["name"]),
		Email:   asString(m["email"]),
		Phone:   asString(m["phone"]),
		Company: asString(m["company"]),
		Role:    asString(m["role"]),
	}
}
