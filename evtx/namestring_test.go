package evtx

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseNameStringReadsValueNextOffsetAndHash(t *testing.T) {
	buf := make([]byte, 32)
	n := writeNameString(buf, 0, 0x40, 0xBEEF, "Provider")

	ns, total, err := ParseNameString(NewCursor(buf), 0)
	require.NoError(t, err)
	require.Equal(t, "Provider", ns.Value)
	require.Equal(t, uint32(0x40), ns.NextOffset)
	require.Equal(t, uint16(0xBEEF), ns.Hash)
	require.Equal(t, uint16(len("Provider")), ns.StoredLen)
	require.Equal(t, n, total)
	require.Equal(t, 8+2*len("Provider")+2, total)
}

func TestParseNameStringAtNonZeroOffsetIsChunkRelative(t *testing.T) {
	buf := make([]byte, 64)
	writeNameString(buf, 20, 0, 0, "X")

	ns, _, err := ParseNameString(NewCursor(buf), 20)
	require.NoError(t, err)
	require.Equal(t, 20, ns.Offset)
	require.Equal(t, "X", ns.Value)
}

func TestParseNameStringTruncatedBufferFails(t *testing.T) {
	buf := make([]byte, 6) // shorter than the 8-byte fixed header
	_, _, err := ParseNameString(NewCursor(buf), 0)
	require.Error(t, err)
}
