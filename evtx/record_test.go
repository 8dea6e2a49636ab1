package evtx

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func buildRecordBuf(size uint32, recordNumber uint64, ts uint64) []byte {
	buf := make([]byte, size)
	binary.LittleEndian.PutUint32(buf[0:], recordMagic)
	binary.LittleEndian.PutUint32(buf[4:], size)
	binary.LittleEndian.PutUint64(buf[8:], recordNumber)
	binary.LittleEndian.PutUint64(buf[16:], ts)
	binary.LittleEndian.PutUint32(buf[size-4:], size) // trailing duplicate
	return buf
}

func TestParseRecordReadsHeaderFields(t *testing.T) {
	buf := buildRecordBuf(40, 7, 132000000000000000)
	r, n, err := ParseRecord(NewCursor(buf), 0, nil)
	require.NoError(t, err)
	require.Equal(t, 40, n)
	require.Equal(t, uint32(40), r.Size)
	require.Equal(t, uint64(7), r.RecordNumber)
	require.Equal(t, uint64(132000000000000000), r.Timestamp)
	require.NoError(t, r.Verify())
}

func TestParseRecordBadMagicFails(t *testing.T) {
	buf := buildRecordBuf(40, 1, 0)
	binary.LittleEndian.PutUint32(buf[0:], 0xDEADBEEF)
	_, _, err := ParseRecord(NewCursor(buf), 0, nil)
	require.Error(t, err)
	require.True(t, IsKind(err, KindInvalidRecord))
}

func TestParseRecordSizeZeroIsSentinelEndOfChunk(t *testing.T) {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf[0:], recordMagic)
	binary.LittleEndian.PutUint32(buf[4:], 0)
	r, n, err := ParseRecord(NewCursor(buf), 0, nil)
	require.NoError(t, err)
	require.Equal(t, 0, n)
	require.Equal(t, uint32(0), r.Size)
}

func TestParseRecordOversizedFails(t *testing.T) {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf[0:], recordMagic)
	binary.LittleEndian.PutUint32(buf[4:], maxRecordSize+1)
	_, _, err := ParseRecord(NewCursor(buf), 0, nil)
	require.Error(t, err)
	require.True(t, IsKind(err, KindInvalidRecord))
}

func TestRecordVerifyDetectsTrailingSizeMismatch(t *testing.T) {
	buf := buildRecordBuf(40, 1, 0)
	binary.LittleEndian.PutUint32(buf[36:], 41) // corrupt trailing duplicate
	r, _, err := ParseRecord(NewCursor(buf), 0, nil)
	require.NoError(t, err)
	err = r.Verify()
	require.Error(t, err)
	require.True(t, IsKind(err, KindInvalidRecord))
}

func TestRecordTimestampAsDateConvertsFiletime(t *testing.T) {
	want := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r := &Record{Timestamp: filetimeFromTime(want)}
	got := r.TimestampAsDate()
	require.True(t, want.Equal(got))
}
