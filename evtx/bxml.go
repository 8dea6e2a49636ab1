package evtx

const maxSubstitutionCount = 1024

// bxmlParser walks a chunk-relative byte range, dispatching on token bytes
// and materializing a tree of BNode. base is the chunk-relative offset
// corresponding to cur's local position 0, needed to translate string/
// template offset fields (always absolute chunk-relative on the wire) back
// into comparisons against "this node's own offset" per §4.6.
type bxmlParser struct {
	owner    *ChunkHeader
	cur      *BinaryCursor
	base     int
	embedded bool
}

func newBXMLParser(owner *ChunkHeader, cur *BinaryCursor, embedded bool) *bxmlParser {
	return &bxmlParser{owner: owner, cur: cur, embedded: embedded}
}

// absPos converts the cursor's current local position to an absolute
// chunk-relative offset.
func (p *bxmlParser) absPos() int { return p.base + p.cur.Tell() }

// localOf converts an absolute chunk-relative offset back to this parser's
// local cursor coordinate space.
func (p *bxmlParser) localOf(abs int) int { return abs - p.base }

// parseRootFragment implements §4.6's Phase 1 + Phase 2 for a record's
// top-level BXML envelope (embedded=false).
func (p *bxmlParser) parseRootFragment(start, end int) (*Element, []Substitution, error) {
	p.cur.Seek(p.localOf(start))
	children, templateRef, inline, stoppedAtEOS, err := p.parseTopLevel(end)
	if err != nil {
		return nil, nil, err
	}

	declaredSum := 0
	for _, c := range children {
		declaredSum += c.DeclaredLength()
	}

	var root *Element
	if templateRef != nil {
		_, tmplRoot, err := p.owner.GetActualTemplate(templateRef.offset)
		if err != nil {
			warnf("template missing, rendering empty envelope", map[string]interface{}{"offset": templateRef.offset, "error": err.Error()})
			root = &Element{Kind: NodeElement, Name: "Event"}
		} else {
			root = tmplRoot
		}
	} else if inline != nil {
		root = inline
	} else {
		root = &Element{Kind: NodeElement, Name: "Event"}
	}

	if !stoppedAtEOS {
		// Phase 1 ran off the end of the record without an EndOfStream;
		// there is no reliable substitution header to locate.
		return root, nil, nil
	}

	subs, ok := p.tryReadSubstitutionHeader(start+declaredSum-1, false)
	if !ok {
		subs, ok = p.tryReadSubstitutionHeader(start+declaredSum, false)
		if ok {
			warnf("substitution header found without the -1 correction", map[string]interface{}{"start": start})
		}
	}
	if !ok {
		warnf("substitution header failed sanity checks, rendering with empty args", map[string]interface{}{"start": start})
		return root, nil, nil
	}
	return root, subs, nil
}

// parseEmbeddedFragment implements §4.7's embedded-mode variant: base_offset
// is an absolute chunk-relative offset into the owning chunk's full byte
// range (not the substitution's own declared-length slice).
func (p *bxmlParser) parseEmbeddedFragment(baseOffset int) (*Element, []Substitution, error) {
	p.embedded = true
	p.cur.Seek(p.localOf(baseOffset))
	children, templateRef, inline, _, err := p.parseTopLevel(p.base + p.cur.Len())
	if err != nil {
		return nil, nil, err
	}

	declaredSum := 0
	for _, c := range children {
		declaredSum += c.DeclaredLength()
	}

	var root *Element
	if templateRef != nil {
		_, tmplRoot, err := p.owner.GetActualTemplate(templateRef.offset)
		if err != nil {
			warnf("embedded template missing", map[string]interface{}{"offset": templateRef.offset, "error": err.Error()})
			root = &Element{Kind: NodeElement, Name: "Event"}
		} else {
			root = tmplRoot
		}
	} else if inline != nil {
		root = inline
	} else {
		root = &Element{Kind: NodeElement, Name: "Event"}
	}

	subs, ok := p.tryReadSubstitutionHeader(baseOffset+declaredSum, true)
	if !ok {
		warnf("embedded substitution header failed sanity checks", map[string]interface{}{"base": baseOffset})
		return root, nil, nil
	}
	return root, subs, nil
}

// parseFragmentBody parses a template definition's raw BXML children
// (§4.7): no substitution header follows a template body, only holes.
func (p *bxmlParser) parseFragmentBody(start, end int) (*Element, error) {
	p.cur.Seek(p.localOf(start))
	_, _, inline, _, err := p.parseTopLevel(end)
	if err != nil {
		return nil, err
	}
	if inline == nil {
		return &Element{Kind: NodeElement, Name: "Event"}, nil
	}
	return inline, nil
}

type templateRef struct {
	offset int
	id     uint32
}

// parseTopLevel reads fragment-level children (StartOfStream markers,
// inline Elements, at most one TemplateInstance) until EndOfStream, an
// embedded-mode TemplateInstance (which stops immediately per §4.7), or end
// is reached. It returns the collected children (for declared-length
// summation), the TemplateInstance reference if one was seen, the first
// inline Element if no TemplateInstance was used, and whether the loop
// stopped because it saw EndOfStream.
func (p *bxmlParser) parseTopLevel(end int) (children []*BNode, tref *templateRef, inline *Element, stoppedAtEOS bool, err error) {
	for p.absPos() < end {
		nodeStartAbs := p.absPos()
		tok, flags, rerr := p.readToken()
		if rerr != nil {
			return children, tref, inline, false, nil //nolint: bounds hit, stop gracefully
		}
		switch tok {
		case tokEndOfStream:
			return children, tref, inline, true, nil
		case tokFragmentHeader:
			if _, rerr := p.cur.ReadBytes(3); rerr != nil {
				return children, tref, inline, false, nil
			}
			children = append(children, &BNode{Kind: NodeStreamMarker, declaredLen: 4})
		case tokTemplateInstance:
			node, ref, rerr := p.parseTemplateInstanceAt(nodeStartAbs, flags)
			if rerr != nil {
				return children, tref, inline, false, wrapf(KindOutOfBounds, rerr, "parse TemplateInstance at %#x", nodeStartAbs)
			}
			children = append(children, node)
			tref = ref
			if p.embedded {
				return children, tref, inline, false, nil
			}
		case tokOpenStartElement:
			el, rerr := p.parseElement(nodeStartAbs, flags)
			if rerr != nil {
				return children, tref, inline, false, wrapf(KindOutOfBounds, rerr, "parse element at %#x", nodeStartAbs)
			}
			children = append(children, el)
			if inline == nil && tref == nil {
				inline = el
			}
		default:
			warnf("unknown top-level token, stopping scope", map[string]interface{}{"token": tok, "offset": nodeStartAbs})
			return children, tref, inline, false, nil
		}
	}
	return children, tref, inline, false, nil
}

// readToken reads the token byte and splits it into (token, flags).
func (p *bxmlParser) readToken() (tok, flags int, err error) {
	b, err := p.cur.U8()
	if err != nil {
		return 0, 0, err
	}
	return int(b) & 0x0F, int(b) >> 4, nil
}

// parseElement parses a full OpenStartElement subtree: header, optional
// inline name, attributes, and content up to its matching close token.
func (p *bxmlParser) parseElement(nodeStartAbs, flags int) (*Element, error) {
	hasAttrs := flags&flagHasAttributes != 0

	if _, err := p.cur.U16LE(); err != nil { // unknown0
		return nil, err
	}
	contentSize, err := p.cur.U32LE()
	if err != nil {
		return nil, err
	}
	stringOffset, err := p.cur.U32LE()
	if err != nil {
		return nil, err
	}

	tagLen := 11
	var attrsListSize uint32
	if hasAttrs {
		if attrsListSize, err = p.cur.U32LE(); err != nil {
			return nil, err
		}
		tagLen += 4
	}
	_ = attrsListSize

	name, inlineLen, err := p.resolveName(nodeStartAbs, int(stringOffset))
	if err != nil {
		return nil, err
	}
	tagLen += inlineLen

	el := &Element{Kind: NodeElement, Name: name, declaredLen: tagLen}
	contentEnd := nodeStartAbs + tagLen + int(contentSize)

	// Attribute list, if present, precedes CloseStartElement/CloseEmptyElement.
	for hasAttrs {
		tok, aFlags, err := p.readToken()
		if err != nil {
			return nil, err
		}
		if tok == tokAttribute {
			attr, err := p.parseAttribute(p.absPos()-1, aFlags)
			if err != nil {
				return nil, err
			}
			el.Attrs = append(el.Attrs, attr)
			continue
		}
		// rewind: this token is the start-tag terminator, handled below.
		p.cur.Seek(p.cur.Tell() - 1)
		break
	}

	tok, _, err := p.readToken()
	if err != nil {
		return nil, err
	}
	switch tok {
	case tokCloseEmptyElement:
		return el, nil
	case tokCloseStartElement:
		// fall through to content parsing
	default:
		return nil, newErr(KindUnknownToken, "expected close-start/close-empty after element open, got %#x", tok)
	}

	for {
		if p.absPos() >= contentEnd {
			// Declared content budget exhausted without a CloseElement; the
			// writer is trusted to have placed one exactly at contentEnd, but
			// a truncated/malformed record must not pull us past it.
			return el, nil
		}
		childStartAbs := p.absPos()
		ctok, cFlags, err := p.readToken()
		if err != nil {
			return nil, err
		}
		switch ctok {
		case tokCloseElement:
			return el, nil
		case tokEndOfStream:
			return el, nil
		case tokOpenStartElement:
			child, err := p.parseElement(childStartAbs, cFlags)
			if err != nil {
				return nil, err
			}
			el.Children = append(el.Children, child)
		case tokValue:
			v, err := p.parseValueNode()
			if err != nil {
				return nil, err
			}
			el.Children = append(el.Children, v)
		case tokCDataSection:
			cd, err := p.parseCDATA()
			if err != nil {
				return nil, err
			}
			el.Children = append(el.Children, cd)
		case tokCharacterReference:
			cr, err := p.parseCharRef()
			if err != nil {
				return nil, err
			}
			el.Children = append(el.Children, cr)
		case tokEntityReference:
			er, err := p.parseEntityRef(childStartAbs)
			if err != nil {
				return nil, err
			}
			el.Children = append(el.Children, er)
		case tokPIProcTarget:
			pi, err := p.parsePI(childStartAbs)
			if err != nil {
				return nil, err
			}
			el.Children = append(el.Children, pi)
		case tokNormalSubstitution, tokOptionalSubstitution:
			sub, err := p.parseSubstitutionRef(ctok == tokOptionalSubstitution)
			if err != nil {
				return nil, err
			}
			el.Children = append(el.Children, sub)
		case tokTemplateInstance:
			// Embedded fragments sometimes nest another template instance
			// as a substitution value's content; not expected as direct
			// element content, but handled defensively.
			_, _, err := p.parseTemplateInstanceAt(childStartAbs, cFlags)
			if err != nil {
				return nil, err
			}
		default:
			warnf("unknown child token, stopping element scope", map[string]interface{}{"token": ctok, "offset": childStartAbs})
			return el, nil
		}
	}
}

// resolveName resolves an OpenStartElement/Attribute string_offset: if it
// points inside the node itself (inline), the NameString is parsed right
// there and interned; otherwise it is looked up (or lazily loaded) in the
// chunk's string table via an independent cursor per §4.3/§4.6.
func (p *bxmlParser) resolveName(nodeStartAbs, stringOffset int) (string, int, error) {
	if stringOffset > nodeStartAbs {
		ns, total, err := ParseNameString(p.owner.cursor(), stringOffset)
		if err != nil {
			return "", 0, err
		}
		p.owner.internString(ns)
		// advance our own cursor past the inline bytes we just read via a
		// cloned cursor, since they are physically part of our stream too.
		p.cur.Seek(p.localOf(stringOffset) + total)
		return ns.Value, total, nil
	}
	ns, err := p.owner.AddString(stringOffset)
	if err != nil {
		return "", 0, err
	}
	return ns.Value, 0, nil
}

func (p *bxmlParser) parseAttribute(nodeStartAbs int, flags int) (Attribute, error) {
	stringOffset, err := p.cur.U32LE()
	if err != nil {
		return Attribute{}, err
	}
	name, _, err := p.resolveName(nodeStartAbs, int(stringOffset))
	if err != nil {
		return Attribute{}, err
	}
	tok, _, err := p.readToken()
	if err != nil {
		return Attribute{}, err
	}
	var valueNode *BNode
	switch tok {
	case tokValue:
		valueNode, err = p.parseValueNode()
	case tokNormalSubstitution, tokOptionalSubstitution:
		valueNode, err = p.parseSubstitutionRef(tok == tokOptionalSubstitution)
	default:
		return Attribute{}, newErr(KindUnknownToken, "unexpected attribute value token %#x", tok)
	}
	if err != nil {
		return Attribute{}, err
	}
	return Attribute{Name: name, Value: valueNode}, nil
}

func (p *bxmlParser) parseValueNode() (*BNode, error) {
	vt, err := p.cur.U8()
	if err != nil {
		return nil, err
	}
	v, err := decodeVariant(p.cur, p.owner, modeTopLevel, VariantType(vt), 0)
	if err != nil && !IsKind(err, KindUnknownVariant) {
		return nil, err
	}
	return &BNode{Kind: NodeText, Text: v.FormatForRender()}, nil
}

func (p *bxmlParser) parseCDATA() (*BNode, error) {
	s, err := p.cur.ReadWStringPrefixed()
	if err != nil {
		return nil, err
	}
	return &BNode{Kind: NodeCDATA, Text: s}, nil
}

func (p *bxmlParser) parseCharRef() (*BNode, error) {
	v, err := p.cur.U16LE()
	if err != nil {
		return nil, err
	}
	return &BNode{Kind: NodeCharRef, CharRefValue: v}, nil
}

func (p *bxmlParser) parseEntityRef(nodeStartAbs int) (*BNode, error) {
	stringOffset, err := p.cur.U32LE()
	if err != nil {
		return nil, err
	}
	name, _, err := p.resolveName(nodeStartAbs, int(stringOffset))
	if err != nil {
		return nil, err
	}
	return &BNode{Kind: NodeEntityRef, EntityName: name}, nil
}

func (p *bxmlParser) parsePI(nodeStartAbs int) (*BNode, error) {
	stringOffset, err := p.cur.U32LE()
	if err != nil {
		return nil, err
	}
	target, _, err := p.resolveName(nodeStartAbs, int(stringOffset))
	if err != nil {
		return nil, err
	}
	tok, _, err := p.readToken()
	if err != nil {
		return nil, err
	}
	var data string
	if tok == tokPIProcData {
		data, err = p.cur.ReadWStringPrefixed()
		if err != nil {
			return nil, err
		}
	}
	return &BNode{Kind: NodePI, PITarget: target, PIData: data}, nil
}

// parseSubstitutionRef reads a NormalSubstitution/OptionalSubstitution hole:
// id u16, type u8. The type here is the template's own declaration of the
// expected type; the renderer formats by the substitution table's actual
// type and does not read this one (§4.6).
func (p *bxmlParser) parseSubstitutionRef(optional bool) (*BNode, error) {
	id, err := p.cur.U16LE()
	if err != nil {
		return nil, err
	}
	vt, err := p.cur.U8()
	if err != nil {
		return nil, err
	}
	return &BNode{Kind: NodeSubstitution, SubID: id, SubOptional: optional, SubType: VariantType(vt), declaredLen: 4}, nil
}

// parseTemplateInstanceAt parses the fixed TemplateInstance fields
// (unknown u8, template_id u32, template_offset u32) and, in non-embedded
// mode, any physically-resident template body that follows, advancing the
// cursor past it. Embedded mode never advances past resident bytes — they
// live elsewhere in the chunk and are fetched via the chunk's template
// cache instead (§4.7).
func (p *bxmlParser) parseTemplateInstanceAt(nodeStartAbs int, flags int) (*BNode, *templateRef, error) {
	if _, err := p.cur.U8(); err != nil { // unknown marker, expected 0x01
		return nil, nil, err
	}
	templateID, err := p.cur.U32LE()
	if err != nil {
		return nil, nil, err
	}
	templateOffset, err := p.cur.U32LE()
	if err != nil {
		return nil, nil, err
	}

	declared := 10 // token + unknown + id + offset

	if !p.embedded && int(templateOffset) > nodeStartAbs {
		td, err := p.owner.AddTemplate(int(templateOffset))
		if err != nil {
			return nil, nil, err
		}
		resumeAbs := int(templateOffset) + templateHeaderSize + int(td.DataLength)
		p.cur.Seek(p.localOf(resumeAbs))
		declared += templateHeaderSize + int(td.DataLength)
	} else {
		// Ensure the template is reachable via the chunk cache even if this
		// particular instance did not carry it resident (or is embedded).
		if _, err := p.owner.GetTemplate(int(templateOffset)); err != nil {
			return nil, nil, err
		}
	}

	node := &BNode{Kind: NodeStreamMarker, declaredLen: declared}
	return node, &templateRef{offset: int(templateOffset), id: templateID}, nil
}

// tryReadSubstitutionHeader attempts to read the substitution count,
// declarations, and values starting at absOffset, applying the sanity
// bounds of §5 ("counts <= 1024, declared sizes fit remaining bytes").
// Returns ok=false if the header fails those checks.
func (p *bxmlParser) tryReadSubstitutionHeader(absOffset int, embedded bool) ([]Substitution, bool) {
	local := p.localOf(absOffset)
	if local < 0 || local > p.cur.Len() {
		return nil, false
	}
	probe := p.cur // share the slab; use a throwaway position
	saved := probe.Tell()
	defer probe.Seek(saved)

	probe.Seek(local)
	count, err := probe.U32LE()
	if err != nil || count > maxSubstitutionCount {
		return nil, false
	}

	type decl struct {
		size uint16
		typ  uint8
	}
	decls := make([]decl, count)
	for i := range decls {
		size, err := probe.U16LE()
		if err != nil {
			return nil, false
		}
		typ, err := probe.U8()
		if err != nil {
			return nil, false
		}
		if _, err := probe.U8(); err != nil { // reserved
			return nil, false
		}
		decls[i] = decl{size: size, typ: typ}
	}

	remaining := 0
	for _, d := range decls {
		remaining += int(d.size)
	}
	if p.localOf(absOffset)+int(4+4*count)+remaining > probe.Len() {
		return nil, false
	}

	subs := make([]Substitution, count)
	for i, d := range decls {
		v, err := decodeVariant(probe, p.owner, modeSubstitution, VariantType(d.typ), int(d.size))
		if err != nil && !IsKind(err, KindUnknownVariant) {
			return nil, false
		}
		subs[i] = Substitution{ID: uint16(i), Type: VariantType(d.typ), Value: v}
	}
	return subs, true
}
