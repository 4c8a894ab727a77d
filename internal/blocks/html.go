package blocks

import (
	"encoding/json"
	"fmt"
	"html"
	"strings"

	"kpbuilder/api/internal/pricing"
	"kpbuilder/api/internal/proposal"
)

const (
	defaultHeadingLevel = 2
	defaultSpacerHeight = 24
	defaultColumnGap    = 24
)

var textAligns = map[string]bool{"left": true, "center": true, "right": true, "justify": true}

// RenderJSON renders a stored document. Invalid documents and documents
// without visible content render as "".
func RenderJSON(raw json.RawMessage, currency string) string {
	if len(raw) == 0 {
		return ""
	}
	doc, err := Parse(raw)
	if err != nil || doc.IsEmpty() {
		return ""
	}
	return ToHTML(doc, currency)
}

// ToHTML renders a document to HTML. Every top-level block is wrapped with
// its normalized padding; currency is the fallback for price tables that do
// not set their own.
func ToHTML(doc Node, currency string) string {
	r := renderer{currency: currency}
	var b strings.Builder
	for _, block := range doc.Content {
		body := r.node(block)
		if body == "" {
			continue
		}
		pad := NormalizePadding(block.Type, block.Attrs)
		fmt.Fprintf(&b, "<div class=\"kp-block kp-block-%s\" style=\"padding-top:%dpx;padding-bottom:%dpx\">\n%s</div>\n",
			html.EscapeString(block.Type), pad.Top, pad.Bottom, body)
	}
	return b.String()
}

type renderer struct {
	currency string
}

func (r renderer) node(n Node) string {
	switch n.Type {
	case TypeDoc:
		return r.content(n.Content)
	case TypeParagraph:
		return fmt.Sprintf("<p%s>%s</p>\n", alignStyle(n), r.content(n.Content))
	case TypeHeading:
		level := headingLevel(n.attr("level"))
		return fmt.Sprintf("<h%d%s>%s</h%d>\n", level, alignStyle(n), r.content(n.Content), level)
	case TypeBulletList:
		return fmt.Sprintf("<ul>\n%s</ul>\n", r.content(n.Content))
	case TypeOrderedList:
		return fmt.Sprintf("<ol>\n%s</ol>\n", r.content(n.Content))
	case TypeListItem:
		return fmt.Sprintf("<li>%s</li>\n", r.content(n.Content))
	case TypeBlockquote:
		return fmt.Sprintf("<blockquote>\n%s</blockquote>\n", r.content(n.Content))
	case TypeCodeBlock:
		return fmt.Sprintf("<pre><code>%s</code></pre>\n", html.EscapeString(plainText(n)))
	case TypeImage:
		return image(n)
	case TypeSpacer:
		height := defaultSpacerHeight
		if v, ok := nonNegativeInt(n.attr("height")); ok {
			height = v
		}
		return fmt.Sprintf("<div class=\"kp-spacer\" style=\"height:%dpx\"></div>\n", height)
	case TypeTwoColumn:
		return r.twoColumn(n)
	case TypeColumn:
		return r.content(n.Content)
	case TypePriceTable:
		return r.priceTable(n)
	case TypeHorizontalRule:
		return "<hr>\n"
	case TypeHardBreak:
		return "<br>"
	case TypeText:
		return textWithMarks(n.Text, n.Marks)
	default:
		return r.content(n.Content)
	}
}

func (r renderer) content(nodes []Node) string {
	var b strings.Builder
	for _, child := range nodes {
		b.WriteString(r.node(child))
	}
	return b.String()
}

func (r renderer) twoColumn(n Node) string {
	gap := defaultColumnGap
	if v, ok := nonNegativeInt(n.attr("gap")); ok {
		gap = v
	}
	var cols []Node
	for _, child := range n.Content {
		if child.Type == TypeColumn {
			cols = append(cols, child)
		}
	}
	for len(cols) < 2 {
		cols = append(cols, Node{Type: TypeColumn})
	}
	var b strings.Builder
	fmt.Fprintf(&b, "<div class=\"kp-two-col\" style=\"display:flex;gap:%dpx\">\n", gap)
	for _, col := range cols[:2] {
		fmt.Fprintf(&b, "<div class=\"kp-col\" style=\"flex:1;min-width:0\">\n%s</div>\n", r.content(col.Content))
	}
	b.WriteString("</div>\n")
	return b.String()
}

func (r renderer) priceTable(n Node) string {
	items := proposal.ParseItems(n.attr("items"))
	currency := r.currency
	if code := n.stringAttr("currency"); code != "" {
		currency = proposal.ParseCurrency(code)
	}
	if currency == "" {
		currency = proposal.DefaultCurrency
	}

	var b strings.Builder
	b.WriteString("<table class=\"kp-table kp-block-table\">\n<thead><tr><th>№</th><th>Наименование</th><th>Кол-во</th><th>Цена</th><th>Сумма</th></tr></thead>\n<tbody>\n")
	for i, item := range items {
		fmt.Fprintf(&b, "<tr><td>%d</td><td>%s</td><td>%s %s</td><td>%s</td><td>%s</td></tr>\n",
			i+1,
			html.EscapeString(item.Name),
			html.EscapeString(pricing.FormatQty(item.Qty)),
			html.EscapeString(item.UnitLabel()),
			html.EscapeString(pricing.FormatMoney(item.Price, currency)),
			html.EscapeString(pricing.FormatMoney(pricing.RowTotal(item), currency)),
		)
	}
	b.WriteString("</tbody>\n")
	if show, ok := n.attr("showTotal").(bool); !ok || show {
		fmt.Fprintf(&b, "<tfoot><tr><td colspan=\"4\">Итого</td><td>%s</td></tr></tfoot>\n",
			html.EscapeString(pricing.FormatMoney(pricing.SubtotalItems(items), currency)))
	}
	b.WriteString("</table>\n")
	return b.String()
}

func image(n Node) string {
	src, ok := SafeImageURL(n.stringAttr("src"))
	if !ok {
		return ""
	}
	style := "max-width:100%"
	if width, ok := nonNegativeInt(n.attr("width")); ok && width > 0 {
		style = fmt.Sprintf("width:%dpx;max-width:100%%", width)
	}
	return fmt.Sprintf("<img src=\"%s\" alt=\"%s\" style=\"%s\">\n",
		html.EscapeString(src), html.EscapeString(n.stringAttr("alt")), style)
}

func textWithMarks(text string, marks []Mark) string {
	if text == "" {
		return ""
	}
	out := html.EscapeString(text)
	// Innermost mark is the last one.
	for i := len(marks) - 1; i >= 0; i-- {
		switch marks[i].Type {
		case "bold":
			out = "<strong>" + out + "</strong>"
		case "italic":
			out = "<em>" + out + "</em>"
		case "underline":
			out = "<u>" + out + "</u>"
		case "strike":
			out = "<s>" + out + "</s>"
		case "code":
			out = "<code>" + out + "</code>"
		case "link":
			href, _ := marks[i].Attrs["href"].(string)
			if safe, ok := SafeLinkURL(href); ok {
				out = fmt.Sprintf("<a href=\"%s\">%s</a>", html.EscapeString(safe), out)
			}
		}
	}
	return out
}

func plainText(n Node) string {
	if n.Type == TypeText {
		return n.Text
	}
	if n.Type == TypeHardBreak {
		return "\n"
	}
	var b strings.Builder
	for _, child := range n.Content {
		b.WriteString(plainText(child))
	}
	return b.String()
}

func alignStyle(n Node) string {
	align := n.stringAttr("textAlign")
	if !textAligns[align] || align == "left" {
		return ""
	}
	return fmt.Sprintf(" style=\"text-align:%s\"", align)
}

func headingLevel(raw any) int {
	n, ok := proposal.NumberValue(raw)
	if !ok {
		return defaultHeadingLevel
	}
	level := int(n)
	if level < 1 || level > 6 {
		return defaultHeadingLevel
	}
	return level
}

func nonNegativeInt(raw any) (int, bool) {
	if _, isBool := raw.(bool); isBool {
		return 0, false
	}
	n, ok := proposal.NumberValue(raw)
	if !ok || n < 0 {
		return 0, false
	}
	return pixels(n), true
}
