// Package blocks models the rich content document produced by the block
// editor and renders it to static HTML.
package blocks

import (
	"encoding/json"
	"fmt"
)

// Block type names as stored by the editor.
const (
	TypeDoc            = "doc"
	TypeParagraph      = "paragraph"
	TypeHeading        = "heading"
	TypeBulletList     = "bulletList"
	TypeOrderedList    = "orderedList"
	TypeListItem       = "listItem"
	TypeBlockquote     = "blockquote"
	TypeCodeBlock      = "codeBlock"
	TypeImage          = "image"
	TypeSpacer         = "spacer"
	TypeTwoColumn      = "twoColumn"
	TypeColumn         = "column"
	TypePriceTable     = "priceTable"
	TypeHorizontalRule = "horizontalRule"
	TypeHardBreak      = "hardBreak"
	TypeText           = "text"
)

// Node is one element of the editor document tree.
type Node struct {
	Type    string         `json:"type"`
	Attrs   map[string]any `json:"attrs,omitempty"`
	Content []Node         `json:"content,omitempty"`
	Text    string         `json:"text,omitempty"`
	Marks   []Mark         `json:"marks,omitempty"`
}

// Mark is inline text formatting.
type Mark struct {
	Type  string         `json:"type"`
	Attrs map[string]any `json:"attrs,omitempty"`
}

// Parse decodes a stored document. Anything that is not a "doc" object is
// rejected.
func Parse(raw json.RawMessage) (Node, error) {
	if len(raw) == 0 {
		return Node{}, fmt.Errorf("parse blocks: empty document")
	}
	var doc Node
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Node{}, fmt.Errorf("parse blocks: %w", err)
	}
	if doc.Type != TypeDoc {
		return Node{}, fmt.Errorf("parse blocks: unexpected root type %q", doc.Type)
	}
	return doc, nil
}

// IsEmpty reports whether the document has no visible content.
func (n Node) IsEmpty() bool {
	switch n.Type {
	case TypeText:
		return n.Text == ""
	case TypeImage, TypeSpacer, TypeHorizontalRule, TypePriceTable, TypeHardBreak:
		return false
	}
	for _, child := range n.Content {
		if !child.IsEmpty() {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the node.
func (n Node) Clone() Node {
	out := Node{Type: n.Type, Text: n.Text, Attrs: cloneMap(n.Attrs)}
	if n.Content != nil {
		out.Content = make([]Node, len(n.Content))
		for i, child := range n.Content {
			out.Content[i] = child.Clone()
		}
	}
	if n.Marks != nil {
		out.Marks = make([]Mark, len(n.Marks))
		for i, mark := range n.Marks {
			out.Marks[i] = Mark{Type: mark.Type, Attrs: cloneMap(mark.Attrs)}
		}
	}
	return out
}

// RebaseItemIDs returns a copy of doc where every price table item that
// carries an id gets a fresh one from newID. The count is the number of ids
// replaced.
func RebaseItemIDs(doc Node, newID func(prefix string) string) (Node, int) {
	out := doc.Clone()
	return out, rebaseItemIDs(&out, newID)
}

func rebaseItemIDs(n *Node, newID func(prefix string) string) int {
	count := 0
	if n.Type == TypePriceTable {
		items, _ := n.attr("items").([]any)
		for _, raw := range items {
			item, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			if _, has := item["id"]; has {
				item["id"] = newID("item")
				count++
			}
		}
	}
	for i := range n.Content {
		count += rebaseItemIDs(&n.Content[i], newID)
	}
	return count
}

func (n Node) attr(key string) any {
	if n.Attrs == nil {
		return nil
	}
	return n.Attrs[key]
}

func (n Node) stringAttr(key string) string {
	s, _ := n.attr(key).(string)
	return s
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch value := v.(type) {
	case map[string]any:
		return cloneMap(value)
	case []any:
		out := make([]any, len(value))
		for i, elem := range value {
			out[i] = cloneValue(elem)
		}
		return out
	default:
		return value
	}
}
