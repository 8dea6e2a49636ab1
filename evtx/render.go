package evtx

import (
	"fmt"
	"strings"
)

// Renderer walks a template's Element tree plus a substitution vector and
// produces XML text (§4.7). It is stateless across calls; one Renderer can
// render any number of (root, substitutions) pairs.
type Renderer struct {
	// PrettyIndent enables the two-space-per-depth cosmetic indentation;
	// callers that only need a normalized form for comparison (§8) can
	// leave it off.
	PrettyIndent bool
}

// NewRenderer returns a Renderer with default (compact) formatting.
func NewRenderer() *Renderer { return &Renderer{} }

// Render produces the XML text for root using subs to fill substitution
// holes, recursively rendering embedded BXml substitutions per §4.7.
func (rd *Renderer) Render(root *Element, subs []Substitution) (string, error) {
	var sb strings.Builder
	if err := rd.renderElement(&sb, root, subs, 0); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func (rd *Renderer) renderElement(sb *strings.Builder, el *Element, subs []Substitution, depth int) error {
	if el == nil {
		return nil
	}
	indent := ""
	if rd.PrettyIndent {
		indent = strings.Repeat("  ", depth)
	}
	sb.WriteString(indent)
	sb.WriteByte('<')
	sb.WriteString(el.Name)
	for _, a := range el.Attrs {
		val, err := rd.renderValueNode(a.Value, subs, true)
		if err != nil {
			return err
		}
		fmt.Fprintf(sb, " %s=\"%s\"", a.Name, val)
	}

	hasChildElements := false
	for _, c := range el.Children {
		if c.Kind == NodeElement {
			hasChildElements = true
			break
		}
	}

	if len(el.Children) == 0 {
		sb.WriteString("/>")
		if rd.PrettyIndent {
			sb.WriteByte('\n')
		}
		return nil
	}
	sb.WriteByte('>')
	if rd.PrettyIndent && hasChildElements {
		sb.WriteByte('\n')
	}
	for _, c := range el.Children {
		switch c.Kind {
		case NodeElement:
			if err := rd.renderElement(sb, c, subs, depth+1); err != nil {
				return err
			}
		default:
			text, err := rd.renderValueNode(c, subs, false)
			if err != nil {
				return err
			}
			sb.WriteString(text)
		}
	}
	if rd.PrettyIndent && hasChildElements {
		sb.WriteString(indent)
	}
	sb.WriteString("</")
	sb.WriteString(el.Name)
	sb.WriteByte('>')
	if rd.PrettyIndent {
		sb.WriteByte('\n')
	}
	return nil
}

// renderValueNode renders a single content/attribute-value node: literal
// text (escaped), CDATA, char/entity refs, or a resolved substitution.
func (rd *Renderer) renderValueNode(n *BNode, subs []Substitution, attrCtx bool) (string, error) {
	if n == nil {
		return "", nil
	}
	switch n.Kind {
	case NodeText:
		return escapeXML(n.Text, attrCtx), nil
	case NodeCDATA:
		return "<![CDATA[" + n.Text + "]]>", nil
	case NodeCharRef:
		return fmt.Sprintf("&#x%X;", n.CharRefValue), nil
	case NodeEntityRef:
		return "&" + n.EntityName + ";", nil
	case NodeSubstitution:
		return rd.renderSubstitution(n, subs)
	default:
		return "", nil
	}
}

func (rd *Renderer) renderSubstitution(n *BNode, subs []Substitution) (string, error) {
	if int(n.SubID) >= len(subs) {
		if n.SubOptional {
			return "", nil
		}
		warnf("substitution index out of range", map[string]interface{}{"id": n.SubID, "count": len(subs)})
		return "", nil
	}
	sub := subs[n.SubID]
	if sub.Value.Type == VTNull {
		return "", nil
	}
	if sub.Value.Type == VTBXml {
		text, err := rd.renderEmbedded(sub.Value)
		if err != nil {
			return "", err
		}
		return text, nil
	}
	return escapeXML(sub.Value.FormatForRender(), false), nil
}

// renderEmbedded recursively parses and renders an embedded BXml
// substitution per §4.7, cloning a fresh cursor over the owning chunk so
// the embedded parse never shares mutable state with whatever parse
// produced this substitution.
func (rd *Renderer) renderEmbedded(v Value) (string, error) {
	if v.Owner == nil {
		return "", nil
	}
	parser := newBXMLParser(v.Owner, v.Owner.cursor().Clone(0), true)
	root, subs, err := parser.parseEmbeddedFragment(v.BXmlOffset)
	if err != nil {
		return "", wrapf(KindOutOfBounds, err, "render embedded BXml at %#x", v.BXmlOffset)
	}
	return rd.Render(root, subs)
}

// escapeXML applies §4.7's escaping table and strips disallowed control
// characters before escaping.
func escapeXML(s string, attrCtx bool) string {
	var sb strings.Builder
	for _, r := range s {
		if isStrippedControl(r) {
			continue
		}
		switch r {
		case '&':
			sb.WriteString("&amp;")
		case '<':
			sb.WriteString("&lt;")
		case '>':
			sb.WriteString("&gt;")
		case '"':
			sb.WriteString("&quot;")
		case '\'':
			sb.WriteString("&#x27;")
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

func isStrippedControl(r rune) bool {
	if r == '\t' || r == '\n' || r == '\r' {
		return false
	}
	if r <= 0x1F {
		return true
	}
	if r >= 0x7F && r <= 0x9F {
		return true
	}
	return false
}
