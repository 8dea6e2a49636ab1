package evtx

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeVariantTopLevelWString(t *testing.T) {
	// length-prefixed, top-level mode: u16 count then UTF-16LE units.
	slab := []byte{0x02, 0x00, 'h', 0x00, 'i', 0x00}
	cur := NewCursor(slab)
	v, err := decodeVariant(cur, nil, modeTopLevel, VTWString, 0)
	require.NoError(t, err)
	require.Equal(t, "hi", v.Str)
	require.Equal(t, len(slab), cur.Tell())
}

func TestDecodeVariantSubstitutionWStringUsesDeclaredSize(t *testing.T) {
	// substitution mode: no length prefix, declaredSize is authoritative,
	// and the cursor must land exactly at start+declaredSize even though
	// "hi\x00" only has 2 meaningful UTF-16 units.
	slab := []byte{'h', 0x00, 'i', 0x00, 0x00, 0x00, 0xFF}
	cur := NewCursor(slab)
	v, err := decodeVariant(cur, nil, modeSubstitution, VTWString, 6)
	require.NoError(t, err)
	require.Equal(t, "hi", v.Str)
	require.Equal(t, 6, cur.Tell())
}

func TestDecodeVariantFixedWidthIntegers(t *testing.T) {
	cur := NewCursor([]byte{0x2A, 0x00, 0x00, 0x00})
	v, err := decodeVariant(cur, nil, modeSubstitution, VTUint32, 4)
	require.NoError(t, err)
	require.Equal(t, uint64(42), v.U64)
	require.Equal(t, 4, cur.Tell())
}

func TestDecodeVariantUnknownTypeAdvancesByDeclaredSize(t *testing.T) {
	cur := NewCursor([]byte{1, 2, 3, 4, 5, 6})
	v, err := decodeVariant(cur, nil, modeSubstitution, VariantType(0x7E), 4)
	require.Error(t, err)
	require.True(t, IsKind(err, KindUnknownVariant))
	require.Equal(t, VariantType(0x7E), v.Type)
	require.Equal(t, 4, cur.Tell(), "must still advance so sibling substitutions stay aligned")
}

func TestFormatGUIDMixedEndianness(t *testing.T) {
	// Data1 and Data2/Data3 are little-endian on disk, Data4 is a raw byte
	// sequence; this fixture mirrors a well-known all-zero-but-one GUID.
	b := []byte{
		0x01, 0x00, 0x00, 0x00, // Data1 = 1, little-endian
		0x02, 0x00, // Data2 = 2
		0x03, 0x00, // Data3 = 3
		0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF, 0x11, 0x22,
	}
	require.Equal(t, "{00000001-0002-0003-AABB-CCDDEEFF1122}", formatGUID(b))
}

func TestFormatSIDWellKnownLocalSystem(t *testing.T) {
	// S-1-5-18 (LocalSystem): revision 1, authority 5 (big-endian 6 bytes),
	// one sub-authority of 18.
	b := []byte{
		0x01,                   // revision
		0x01,                   // sub-authority count
		0x00, 0x00, 0x00, 0x00, 0x00, 0x05, // authority, big-endian
		0x12, 0x00, 0x00, 0x00, // sub-authority 18, little-endian
	}
	require.Equal(t, "S-1-5-18", formatSID(b))
}

func TestSplitWStringArrayStripsTrailingNULOnly(t *testing.T) {
	// "one\x00two\x00\x00" as UTF-16LE: two NUL-separated entries, then the
	// array's own trailing NUL, which must not produce a spurious "" entry.
	raw := utf16Bytes("one\x00two\x00\x00")
	parts := splitWStringArray(raw)
	require.Equal(t, []string{"one", "two"}, parts)
}

func TestValueFormatForRenderHexAndBinary(t *testing.T) {
	require.Equal(t, "0x2a", Value{Type: VTHex32, U64: 42}.FormatForRender())
	require.Equal(t, "DEADBEEF", Value{Type: VTBinary, Bin: []byte{0xDE, 0xAD, 0xBE, 0xEF}}.FormatForRender())
	require.Equal(t, "", Value{Type: VTNull}.FormatForRender())
	require.Equal(t, "true", Value{Type: VTBoolean, Bool: true}.FormatForRender())
}

// utf16Bytes encodes a Go string (ASCII-only, NUL-containing) to raw
// UTF-16LE bytes for test fixtures.
func utf16Bytes(s string) []byte {
	out := make([]byte, 0, len(s)*2)
	for _, r := range s {
		out = append(out, byte(r), 0x00)
	}
	return out
}
