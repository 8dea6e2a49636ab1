package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/NickSmet/ts-evtx/evtx"
)

func batchReqs() []evtx.BatchRequest {
	return []evtx.BatchRequest{
		{Provider: "Provider", EventID: 1, Locale: "en-US"},
		{Provider: "Provider", EventID: 2, Locale: "en-US"},
	}
}

func TestMemoryGetReturnsFirstCandidate(t *testing.T) {
	m := NewMemory("test-fixture", "en-US")
	m.Add("Microsoft-Windows-Kernel-General", 1, "en-US", "first template %1")
	m.Add("Microsoft-Windows-Kernel-General", 1, "en-US", "second template %1")

	text, ok, err := m.Get(context.Background(), "Microsoft-Windows-Kernel-General", 1, "en-US")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "first template %1", text)
}

func TestMemoryGetMissingKeyReturnsNotFound(t *testing.T) {
	m := NewMemory("test-fixture", "en-US")
	_, ok, err := m.Get(context.Background(), "Nope", 99, "en-US")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemoryGetCandidatesReturnsAll(t *testing.T) {
	m := NewMemory("test-fixture", "en-US")
	m.Add("Provider", 5, "en-US", "a", "b")
	cands, err := m.GetCandidates(context.Background(), "Provider", 5, "en-US")
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, cands)
}

func TestMemoryGetBatchMixesHitsAndMisses(t *testing.T) {
	m := NewMemory("test-fixture", "en-US")
	m.Add("Provider", 1, "en-US", "hit")

	texts, oks, err := m.GetBatch(context.Background(), batchReqs())
	require.NoError(t, err)
	require.Equal(t, []string{"hit", ""}, texts)
	require.Equal(t, []bool{true, false}, oks)
}

func TestMemoryInfoReportsEntryCount(t *testing.T) {
	m := NewMemory("test-fixture", "en-US")
	m.Add("A", 1, "en-US", "x")
	m.Add("B", 2, "en-US", "y")
	m.Add("A", 1, "en-US", "x2") // same key, should not bump EntryCount again

	info, err := m.Info(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, info.EntryCount)
	require.Equal(t, "test-fixture", info.Source)
}
