package evtx

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestChunkHeader(buf []byte) *ChunkHeader {
	return &ChunkHeader{
		cur:       NewCursor(buf),
		base:      0,
		strings:   make(map[int]*NameString),
		templates: make(map[int]*TemplateDefinition),
	}
}

// putInlineNameString writes a NameString node at pos and returns the total
// bytes written, matching writeNameString but kept local for readability
// next to the byte-offset arithmetic below.
func putInlineNameString(buf []byte, pos int, value string) int {
	return writeNameString(buf, pos, 0, 0, value)
}

func TestParseFragmentBodyParsesElementWithAttributeAndSubstitutionChild(t *testing.T) {
	buf := make([]byte, 80)

	buf[0] = 0x41 // OpenStartElement, hasAttributes flag set
	binary.LittleEndian.PutUint32(buf[3:], 36) // content_size
	binary.LittleEndian.PutUint32(buf[7:], 15) // string_offset (inline, "Data")
	binary.LittleEndian.PutUint32(buf[11:], 0) // attrs_list_size (unused by the parser)
	n := putInlineNameString(buf, 15, "Data")
	require.Equal(t, 18, n)

	buf[33] = 0x06                              // Attribute token
	binary.LittleEndian.PutUint32(buf[34:], 38) // attribute name string_offset (inline, "Name")
	n = putInlineNameString(buf, 38, "Name")
	require.Equal(t, 18, n)

	buf[56] = 0x05 // Value token
	buf[57] = byte(VTString)
	binary.LittleEndian.PutUint16(buf[58:], 3)
	copy(buf[60:], "Foo")

	buf[63] = 0x02 // CloseStartElement
	buf[64] = 0x0D // NormalSubstitution
	binary.LittleEndian.PutUint16(buf[65:], 2)
	buf[67] = byte(VTString)
	buf[68] = 0x04 // CloseElement
	buf[69] = 0x00 // EndOfStream

	owner := newTestChunkHeader(buf)
	p := newBXMLParser(owner, NewCursor(buf), false)
	root, err := p.parseFragmentBody(0, len(buf))
	require.NoError(t, err)

	require.Equal(t, "Data", root.Name)
	require.Len(t, root.Attrs, 1)
	require.Equal(t, "Name", root.Attrs[0].Name)
	require.Equal(t, NodeText, root.Attrs[0].Value.Kind)
	require.Equal(t, "Foo", root.Attrs[0].Value.Text)

	require.Len(t, root.Children, 1)
	sub := root.Children[0]
	require.Equal(t, NodeSubstitution, sub.Kind)
	require.Equal(t, uint16(2), sub.SubID)
	require.Equal(t, VTString, sub.SubType)
	require.False(t, sub.SubOptional)
}

func TestParseElementContentBudgetExhaustedReturnsGracefully(t *testing.T) {
	buf := make([]byte, 24)
	buf[0] = 0x01 // OpenStartElement, no attributes
	binary.LittleEndian.PutUint32(buf[3:], 0) // content_size: no room for any content
	binary.LittleEndian.PutUint32(buf[7:], 11) // string_offset (inline, "X")
	putInlineNameString(buf, 11, "X")
	buf[23] = 0x02 // CloseStartElement, required even with no attributes

	owner := newTestChunkHeader(buf)
	p := newBXMLParser(owner, NewCursor(buf), false)
	root, err := p.parseFragmentBody(0, len(buf))
	require.NoError(t, err)
	require.Equal(t, "X", root.Name)
	require.Empty(t, root.Children)
}

func buildResidentTemplateAt(buf []byte, offset int, body []byte) {
	binary.LittleEndian.PutUint32(buf[offset:], 0)     // next
	binary.LittleEndian.PutUint32(buf[offset+4:], 0xAB) // guid[0:4] doubles as template id
	binary.LittleEndian.PutUint32(buf[offset+20:], uint32(len(body)))
	copy(buf[offset+templateHeaderSize:], body)
}

func TestParseTemplateInstanceAtResidentTemplateAdvancesPastBody(t *testing.T) {
	const templateOffset = 9
	body := []byte{tokEndOfStream}
	buf := make([]byte, templateOffset+templateHeaderSize+len(body))
	buf[0] = 0x01                                          // unknown marker
	binary.LittleEndian.PutUint32(buf[1:], 0xCAFE)          // template_id field on the instance
	binary.LittleEndian.PutUint32(buf[5:], templateOffset) // template_offset, resident
	buildResidentTemplateAt(buf, templateOffset, body)

	owner := newTestChunkHeader(buf)
	p := newBXMLParser(owner, NewCursor(buf), false)
	node, ref, err := p.parseTemplateInstanceAt(0, 0)
	require.NoError(t, err)
	require.Equal(t, templateOffset, ref.offset)
	require.Equal(t, uint32(0xCAFE), ref.id)
	require.Equal(t, 10+templateHeaderSize+len(body), node.DeclaredLength())
	require.Equal(t, templateOffset+templateHeaderSize+len(body), p.cur.Tell())

	// the resident template is reachable via the chunk's cache too
	_, ok := owner.templates[templateOffset]
	require.True(t, ok)
}

func TestParseTemplateInstanceAtEmbeddedDoesNotConsumeResidentBytes(t *testing.T) {
	const templateOffset = 9
	body := []byte{tokEndOfStream}
	buf := make([]byte, templateOffset+templateHeaderSize+len(body))
	buf[0] = 0x01
	binary.LittleEndian.PutUint32(buf[1:], 0xCAFE)
	binary.LittleEndian.PutUint32(buf[5:], templateOffset)
	buildResidentTemplateAt(buf, templateOffset, body)

	owner := newTestChunkHeader(buf)
	p := newBXMLParser(owner, NewCursor(buf), true)
	_, ref, err := p.parseTemplateInstanceAt(0, 0)
	require.NoError(t, err)
	require.Equal(t, templateOffset, ref.offset)
	require.Equal(t, 9, p.cur.Tell()) // only the fixed instance fields were consumed

	_, ok := owner.templates[templateOffset]
	require.True(t, ok) // still cached for later embedded-fragment resolution
}

func TestTryReadSubstitutionHeaderRejectsCountAboveMax(t *testing.T) {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf, 2000) // exceeds maxSubstitutionCount
	owner := newTestChunkHeader(buf)
	p := newBXMLParser(owner, NewCursor(buf), false)
	_, ok := p.tryReadSubstitutionHeader(0, false)
	require.False(t, ok)
}

func TestTryReadSubstitutionHeaderRejectsWhenDeclaredSizesExceedRemaining(t *testing.T) {
	buf := make([]byte, 9) // header parses (needs 8 bytes) but leaves no room for the declared 2-byte value
	binary.LittleEndian.PutUint32(buf, 1)
	binary.LittleEndian.PutUint16(buf[4:], 2)
	buf[6] = byte(VTUint16)
	owner := newTestChunkHeader(buf)
	p := newBXMLParser(owner, NewCursor(buf), false)
	_, ok := p.tryReadSubstitutionHeader(0, false)
	require.False(t, ok)
}

func TestTryReadSubstitutionHeaderDecodesDeclaredValues(t *testing.T) {
	buf := make([]byte, 32)
	binary.LittleEndian.PutUint32(buf, 1) // count
	binary.LittleEndian.PutUint16(buf[4:], 2)
	buf[6] = byte(VTUint16)
	buf[7] = 0 // reserved
	binary.LittleEndian.PutUint16(buf[8:], 999)

	owner := newTestChunkHeader(buf)
	p := newBXMLParser(owner, NewCursor(buf), false)
	subs, ok := p.tryReadSubstitutionHeader(0, false)
	require.True(t, ok)
	require.Len(t, subs, 1)
	require.Equal(t, VTUint16, subs[0].Type)
	require.Equal(t, uint64(999), subs[0].Value.U64)
}
