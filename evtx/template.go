package evtx

// templateHeaderSize is the 24-byte fixed header preceding a template's
// BXML children: next_offset(4) + guid(16, whose first 4 bytes double as
// the template id) + data_length(4), per §3.
const templateHeaderSize = 24

// TemplateDefinition is a parsed template: header plus its BXML child
// bytes. It is identified by chunk-relative offset and cached by the owning
// ChunkHeader (§4.3's addTemplate/getTemplate).
type TemplateDefinition struct {
	Offset     int // chunk-relative
	NextOffset uint32
	TemplateID uint32
	GUID       [16]byte
	DataLength uint32

	// childrenOffset/childrenLength bound the BXML bytes following the header.
	childrenOffset int
	childrenLength int

	// root is populated lazily by (*ChunkHeader).GetActualTemplate.
	root *Element
}

// ParseTemplateDefinition reads a template header + its data_length bytes
// of BXML children at the given chunk-relative offset.
func ParseTemplateDefinition(cur *BinaryCursor, offset int) (*TemplateDefinition, error) {
	c := cur.Clone(offset)
	next, err := c.U32LE()
	if err != nil {
		return nil, wrapf(KindOutOfBounds, err, "read template.next at %#x", offset)
	}
	guidBytes, err := c.ReadBytes(16)
	if err != nil {
		return nil, wrapf(KindOutOfBounds, err, "read template.guid at %#x", offset)
	}
	dataLen, err := c.U32LE()
	if err != nil {
		return nil, wrapf(KindOutOfBounds, err, "read template.data_length at %#x", offset)
	}

	td := &TemplateDefinition{
		Offset:         offset,
		NextOffset:     next,
		DataLength:     dataLen,
		childrenOffset: offset + templateHeaderSize,
		childrenLength: int(dataLen),
	}
	copy(td.GUID[:], guidBytes)
	td.TemplateID = u32le(guidBytes[:4])
	if _, err := cur.Peek(td.childrenOffset, td.childrenLength); err != nil {
		return nil, wrapf(KindOutOfBounds, err, "template %#x declares %d bytes past chunk end", offset, dataLen)
	}
	return td, nil
}

func u32le(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// Root parses (and caches) this template's BXML children into an Element
// tree, using owner's interning tables for name/template resolution.
func (td *TemplateDefinition) Root(owner *ChunkHeader) (*Element, error) {
	if td.root != nil {
		return td.root, nil
	}
	parser := newBXMLParser(owner, owner.cursor().Clone(0), false)
	root, err := parser.parseFragmentBody(td.childrenOffset, td.childrenOffset+td.childrenLength)
	if err != nil {
		return nil, wrapf(KindOutOfBounds, err, "parse template %#x body", td.Offset)
	}
	td.root = root
	return td.root, nil
}
