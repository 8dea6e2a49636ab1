package evtx

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestContainsFoldIsCaseInsensitiveSubstring(t *testing.T) {
	require.True(t, containsFold("Microsoft-Windows-Security-Auditing", "security"))
	require.True(t, containsFold("Microsoft-Windows-Security-Auditing", "MICROSOFT"))
	require.False(t, containsFold("Microsoft-Windows-Security-Auditing", "kernel"))
	require.True(t, containsFold("anything", ""))
}

func TestPassesHeaderFilterByEventIDAndProvider(t *testing.T) {
	r := &Reader{cfg: Config{EventIDs: []uint32{4624, 4625}, Provider: "security"}}
	ev := &ResolvedEvent{EventID: 4624, Provider: "Microsoft-Windows-Security-Auditing"}
	require.True(t, r.passesHeaderFilter(ev))

	evWrongID := &ResolvedEvent{EventID: 1, Provider: "Microsoft-Windows-Security-Auditing"}
	require.False(t, r.passesHeaderFilter(evWrongID))

	evWrongProvider := &ResolvedEvent{EventID: 4624, Provider: "Microsoft-Windows-Kernel-General"}
	require.False(t, r.passesHeaderFilter(evWrongProvider))
}

func TestPassesHeaderFilterNoFiltersConfiguredPassesEverything(t *testing.T) {
	r := &Reader{}
	require.True(t, r.passesHeaderFilter(&ResolvedEvent{EventID: 1, Provider: "Anything"}))
}

func TestPassesTimeFilterSinceUntilWindow(t *testing.T) {
	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	until := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
	r := &Reader{cfg: Config{Since: &since, Until: &until}}

	inWindow := &Record{Timestamp: filetimeFromTime(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))}
	require.True(t, r.passesTimeFilter(inWindow))

	before := &Record{Timestamp: filetimeFromTime(time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC))}
	require.False(t, r.passesTimeFilter(before))

	after := &Record{Timestamp: filetimeFromTime(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))}
	require.False(t, r.passesTimeFilter(after))
}

func TestResolvePaginationLastComputesSkipFromNextRecordID(t *testing.T) {
	r := &Reader{cfg: Config{Start: 5, Limit: 10, Last: 3}}
	fh := &FileHeader{NextRecordID: 20}
	skip, limit := r.resolvePagination(fh)
	require.Equal(t, 16, skip) // 20 - 1 - 3
	require.Equal(t, 3, limit)
}

func TestResolvePaginationLastClampsSkipToZeroWhenFewerRecordsThanLast(t *testing.T) {
	r := &Reader{cfg: Config{Last: 10}}
	fh := &FileHeader{NextRecordID: 4}
	skip, limit := r.resolvePagination(fh)
	require.Equal(t, 0, skip)
	require.Equal(t, 10, limit)
}

func TestResolvePaginationUsesStartLimitWhenNoLast(t *testing.T) {
	r := &Reader{cfg: Config{Start: 5, Limit: 10}}
	skip, limit := r.resolvePagination(nil)
	require.Equal(t, 5, skip)
	require.Equal(t, 10, limit)
}

// filetimeFromTime is the inverse of filetimeToTime, used only to build
// test fixtures.
func filetimeFromTime(t time.Time) uint64 {
	ms := t.UnixMilli() + filetimeEpochOffsetMs
	return uint64(ms) * 10000
}
