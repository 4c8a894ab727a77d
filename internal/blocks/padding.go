package blocks

import (
	"math"

	"kpbuilder/api/internal/proposal"
)

// maxPixels caps any stored pixel length so oversized values cannot
// overflow int.
const maxPixels = 10000

// Padding is the vertical spacing of a top-level block, in CSS pixels.
type Padding struct {
	Top    int `json:"paddingTop"`
	Bottom int `json:"paddingBottom"`
}

var (
	textPadding      = Padding{Top: 8, Bottom: 8}
	twoColumnPadding = Padding{Top: 20, Bottom: 20}
	flushPadding     = Padding{Top: 0, Bottom: 0}
	tablePadding     = Padding{Top: 12, Bottom: 12}
)

// DefaultPadding returns the spacing a block type gets when its attributes
// carry none.
func DefaultPadding(blockType string) Padding {
	switch blockType {
	case TypeTwoColumn:
		return twoColumnPadding
	case TypeImage, TypeSpacer:
		return flushPadding
	case TypePriceTable:
		return tablePadding
	default:
		return textPadding
	}
}

// NormalizePadding reads paddingTop/paddingBottom from attrs. Missing,
// non-numeric or negative values take the block type's default, not zero.
func NormalizePadding(blockType string, attrs map[string]any) Padding {
	def := DefaultPadding(blockType)
	return Padding{
		Top:    paddingValue(attrs["paddingTop"], def.Top),
		Bottom: paddingValue(attrs["paddingBottom"], def.Bottom),
	}
}

func paddingValue(raw any, fallback int) int {
	if _, isBool := raw.(bool); isBool {
		return fallback
	}
	n, ok := proposal.NumberValue(raw)
	if !ok || n < 0 {
		return fallback
	}
	return pixels(n)
}

func pixels(n float64) int {
	return int(math.Round(math.Min(n, maxPixels)))
}

// NormalizeDocument returns a copy of doc where every top-level block carries
// explicit, canonical padding attributes.
func NormalizeDocument(doc Node) Node {
	out := doc.Clone()
	for i := range out.Content {
		block := &out.Content[i]
		pad := NormalizePadding(block.Type, block.Attrs)
		if block.Attrs == nil {
			block.Attrs = make(map[string]any, 2)
		}
		block.Attrs["paddingTop"] = pad.Top
		block.Attrs["paddingBottom"] = pad.Bottom
	}
	return out
}
