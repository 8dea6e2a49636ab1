package evtx

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

// buildTemplateBuf lays out a template header (next, guid, data_length) at
// offset 0 followed by body bytes, per ParseTemplateDefinition's layout.
func buildTemplateBuf(guidFirst4 uint32, body []byte) []byte {
	buf := make([]byte, templateHeaderSize+len(body))
	binary.LittleEndian.PutUint32(buf[0:], 0) // next
	binary.LittleEndian.PutUint32(buf[4:], guidFirst4)
	binary.LittleEndian.PutUint32(buf[20:], uint32(len(body)))
	copy(buf[templateHeaderSize:], body)
	return buf
}

func TestParseTemplateDefinitionReadsHeaderFields(t *testing.T) {
	body := []byte{tokEndOfStream}
	buf := buildTemplateBuf(0xCAFEBABE, body)

	td, err := ParseTemplateDefinition(NewCursor(buf), 0)
	require.NoError(t, err)
	require.Equal(t, uint32(0xCAFEBABE), td.TemplateID)
	require.Equal(t, uint32(len(body)), td.DataLength)
	require.Equal(t, templateHeaderSize, td.childrenOffset)
	require.Equal(t, len(body), td.childrenLength)
}

func TestParseTemplateDefinitionRejectsDeclaredLengthPastChunkEnd(t *testing.T) {
	buf := buildTemplateBuf(0, nil)
	binary.LittleEndian.PutUint32(buf[20:], 1000) // claim far more body than exists
	_, err := ParseTemplateDefinition(NewCursor(buf), 0)
	require.Error(t, err)
	require.True(t, IsKind(err, KindOutOfBounds))
}

func TestTemplateRootParsesMinimalEndOfStreamBodyAsDefaultEventElement(t *testing.T) {
	body := []byte{tokEndOfStream}
	buf := buildTemplateBuf(1, body)
	td, err := ParseTemplateDefinition(NewCursor(buf), 0)
	require.NoError(t, err)

	owner := &ChunkHeader{
		cur:       NewCursor(buf),
		base:      0,
		strings:   make(map[int]*NameString),
		templates: make(map[int]*TemplateDefinition),
	}

	root, err := td.Root(owner)
	require.NoError(t, err)
	require.Equal(t, NodeElement, root.Kind)
	require.Equal(t, "Event", root.Name)

	// second call hits the cached root without reparsing
	root2, err := td.Root(owner)
	require.NoError(t, err)
	require.Same(t, root, root2)
}
