package evtx

import (
	"strconv"

	"github.com/Velocidex/ordereddict"
)

// LayoutPart is one fragment of a LayoutEntry's content: either literal
// text or a reference into the record's substitution vector (§4.8).
type LayoutPart struct {
	Literal bool
	Text    string
	Index   int // meaningful when !Literal
}

// LayoutEntry is one Data/child-element entry of an EventData or UserData
// section, in document order.
type LayoutEntry struct {
	Name  string // empty if the entry carries no Name
	Parts []LayoutPart
}

// HasSubstitution reports whether any part of the entry references a
// substitution slot, used by build_args_from_layout to decide between
// "emit referenced values" and "emit joined literal text".
func (e LayoutEntry) HasSubstitution() bool {
	for _, p := range e.Parts {
		if !p.Literal {
			return true
		}
	}
	return false
}

// ExtractLayout builds the ordered EventData/UserData layout for a rendered
// template root (§4.8). subs is the substitution vector the same root was
// rendered against; it is also used to resolve BXml substitutions found
// inside the data section (flattened into the outer layout per rule 1c).
func ExtractLayout(root *Element, subs []Substitution) []LayoutEntry {
	if ed := root.FirstChildElement("EventData"); ed != nil {
		return extractEventData(ed, subs)
	}
	if ud := root.FirstChildElement("UserData"); ud != nil {
		return extractUserData(ud, subs)
	}
	return nil
}

func extractEventData(eventData *Element, subs []Substitution) []LayoutEntry {
	var out []LayoutEntry
	for _, data := range eventData.Children {
		if data.Kind != NodeElement || data.Name != "Data" {
			continue
		}
		name := resolveAttrText(data.Attr("Name"), subs)
		parts, flattened := collectParts(data, subs)
		if flattened != nil {
			out = append(out, flattened...)
			continue
		}
		out = append(out, LayoutEntry{Name: name, Parts: parts})
	}
	return out
}

func extractUserData(userData *Element, subs []Substitution) []LayoutEntry {
	inner := firstElementChild(userData)
	if inner == nil {
		return nil
	}
	var out []LayoutEntry
	for _, child := range inner.Children {
		if child.Kind != NodeElement {
			continue
		}
		parts, flattened := collectParts(child, subs)
		if flattened != nil {
			out = append(out, flattened...)
			continue
		}
		out = append(out, LayoutEntry{Name: child.Name, Parts: parts})
	}
	return out
}

func firstElementChild(n *Element) *Element {
	for _, c := range n.Children {
		if c.Kind == NodeElement {
			return c
		}
	}
	return nil
}

// collectParts walks n's content in document order. If n's content is a
// single BXml substitution, its inner layout is extracted and returned as
// flattened entries (rule 1c/2's "descend as above"); otherwise parts holds
// the literal/substitution sequence for this single entry.
func collectParts(n *Element, subs []Substitution) (parts []LayoutPart, flattened []LayoutEntry) {
	for _, c := range n.Children {
		switch c.Kind {
		case NodeText, NodeCDATA:
			parts = append(parts, LayoutPart{Literal: true, Text: c.Text})
		case NodeSubstitution:
			if int(c.SubID) < len(subs) && subs[c.SubID].Value.Type == VTBXml {
				inner, innerSubs, err := parseEmbeddedBXmlValue(subs[c.SubID].Value)
				if err == nil && inner != nil {
					flattened = ExtractLayout(inner, innerSubs)
					continue
				}
			}
			parts = append(parts, LayoutPart{Literal: false, Index: int(c.SubID)})
		}
	}
	return parts, flattened
}

func resolveAttrText(v *BNode, subs []Substitution) string {
	if v == nil {
		return ""
	}
	switch v.Kind {
	case NodeText:
		return v.Text
	case NodeSubstitution:
		if int(v.SubID) < len(subs) {
			return subs[v.SubID].Value.FormatForRender()
		}
	}
	return ""
}

// parseEmbeddedBXmlValue parses an embedded BXml substitution's tree, used
// by both the renderer and the layout flattening rule. Each call reparses;
// callers needing both rendered text and layout should parse once and share
// the result rather than calling this twice on a hot path.
func parseEmbeddedBXmlValue(v Value) (*Element, []Substitution, error) {
	if v.Owner == nil {
		return nil, nil, nil
	}
	parser := newBXMLParser(v.Owner, v.Owner.cursor().Clone(0), true)
	return parser.parseEmbeddedFragment(v.BXmlOffset)
}

// BuildArgsFromLayout produces the positional message-argument strings per
// §4.8: entries with at least one substitution reference emit each
// referenced value (arrays expanded element-by-element); literal-only
// entries emit their joined literal text, empty strings preserved to keep
// positional alignment with %1..%n.
func BuildArgsFromLayout(layout []LayoutEntry, subs []Substitution, max int) []string {
	var args []string
	for _, e := range layout {
		if e.HasSubstitution() {
			for _, p := range e.Parts {
				if p.Literal {
					continue
				}
				if p.Index >= len(subs) {
					args = append(args, "")
					continue
				}
				v := subs[p.Index].Value
				if v.Type == VTWStringArray && len(v.Array) > 0 {
					args = append(args, v.Array...)
					continue
				}
				args = append(args, v.FormatForRender())
			}
			continue
		}
		var joined string
		for _, p := range e.Parts {
			joined += p.Text
		}
		args = append(args, joined)
	}
	if max > 0 && len(args) > max {
		args = args[:max]
	}
	return args
}

// LayoutToOrderedDict normalizes a layout into a name->value dict the way
// Windows EventData/UserData most often gets consumed: entries with a Name
// attribute key the dict by that name, unnamed entries fall back to their
// positional index, in document order. Unlike a plain map, Set/Get here
// preserve that order on JSON marshal, which matters for ResolvedEvent.Data
// comparisons and golden-file tests.
func LayoutToOrderedDict(layout []LayoutEntry, subs []Substitution) *ordereddict.Dict {
	result := ordereddict.NewDict()
	for i, e := range layout {
		key := e.Name
		if key == "" {
			key = strconv.Itoa(i)
		}
		if e.HasSubstitution() {
			var values []string
			for _, p := range e.Parts {
				if p.Literal {
					continue
				}
				if p.Index >= len(subs) {
					values = append(values, "")
					continue
				}
				v := subs[p.Index].Value
				if v.Type == VTWStringArray && len(v.Array) > 0 {
					values = append(values, v.Array...)
					continue
				}
				values = append(values, v.FormatForRender())
			}
			if len(values) == 1 {
				result.Set(key, values[0])
			} else {
				result.Set(key, values)
			}
			continue
		}
		var joined string
		for _, p := range e.Parts {
			joined += p.Text
		}
		result.Set(key, joined)
	}
	return result
}
