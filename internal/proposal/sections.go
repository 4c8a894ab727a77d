package proposal

// SectionID names an independently toggleable block of the rendered document.
type SectionID string

const (
	SectionBasic      SectionID = "basic"
	SectionContext    SectionID = "context"
	SectionAdvantages SectionID = "advantages"
	SectionProducts   SectionID = "products"
	SectionTerms      SectionID = "terms"
	SectionGallery    SectionID = "gallery"
	SectionContacts   SectionID = "contacts"
)

// AllSections returns the canonical section order.
func AllSections() []SectionID {
	return []SectionID{
		SectionBasic,
		SectionContext,
		SectionAdvantages,
		SectionProducts,
		SectionTerms,
		SectionGallery,
		SectionContacts,
	}
}

func IsKnownSection(id string) bool {
	switch SectionID(id) {
	case SectionBasic, SectionContext, SectionAdvantages, SectionProducts, SectionTerms, SectionGallery, SectionContacts:
		return true
	default:
		return false
	}
}

// FilterSections keeps known section ids in first-seen order without
// duplicates. Anything that leaves no section at all (nil, non-array, only
// bogus ids) yields the full canonical list.
func FilterSections(raw any) []SectionID {
	var values []any
	switch v := raw.(type) {
	case []any:
		values = v
	case []string:
		for _, s := range v {
			values = append(values, s)
		}
	case []SectionID:
		for _, s := range v {
			values = append(values, string(s))
		}
	}

	seen := make(map[SectionID]struct{}, len(values))
	out := make([]SectionID, 0, len(values))
	for _, value := range values {
		s, ok := value.(string)
		if !ok || !IsKnownSection(s) {
			continue
		}
		id := SectionID(s)
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	if len(out) == 0 {
		return AllSections()
	}
	return out
}

// ParseVisibleSections differs from FilterSections only for absent input:
// null means "no restriction" and stays nil.
func ParseVisibleSections(raw any) []SectionID {
	if raw == nil {
		return nil
	}
	return FilterSections(raw)
}

// SectionVisible reports whether the allow-list admits the section.
func SectionVisible(visible []SectionID, id SectionID) bool {
	if visible == nil {
		return true
	}
	for _, v := range visible {
		if v == id {
			return true
		}
	}
	return false
}
