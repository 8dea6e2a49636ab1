package evtx

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReorderArgsRestartManagerSessionStarted(t *testing.T) {
	layout := []LayoutEntry{
		{Name: "RmSessionId", Parts: []LayoutPart{{Literal: false, Index: 0}}},
		{Name: "UTCStartTime", Parts: []LayoutPart{{Literal: false, Index: 1}}},
	}
	subs := []Substitution{
		{Value: Value{Type: VTUint32, U64: 42}},
		{Value: Value{Type: VTWString, Str: "2024-05-01T12:00:00Z"}},
	}
	args := reorderArgs("Microsoft-Windows-RestartManager", 10000, layout, subs)
	require.Equal(t, []string{"42", "2024-05-01T12:00:00Z"}, args)
}

func TestReorderArgsFallsBackToAlternateNames(t *testing.T) {
	layout := []LayoutEntry{
		{Name: "Session", Parts: []LayoutPart{{Literal: false, Index: 0}}},
		{Name: "Time", Parts: []LayoutPart{{Literal: false, Index: 1}}},
	}
	subs := []Substitution{
		{Value: Value{Type: VTUint32, U64: 9}},
		{Value: Value{Type: VTWString, Str: "2024-05-01T12:00:00Z"}},
	}
	args := reorderArgs("Microsoft-Windows-RestartManager", 10001, layout, subs)
	require.Equal(t, []string{"9", "2024-05-01T12:00:00Z"}, args)
}

func TestReorderArgsAppClosing(t *testing.T) {
	layout := []LayoutEntry{
		{Name: "FullPath", Parts: []LayoutPart{{Literal: true, Text: "C:\\app.exe"}}},
		{Name: "Pid", Parts: []LayoutPart{{Literal: false, Index: 0}}},
		{Name: "Reason", Parts: []LayoutPart{{Literal: true, Text: "blocking restart"}}},
	}
	subs := []Substitution{
		{Value: Value{Type: VTUint32, U64: 1234}},
	}
	args := reorderArgs("Microsoft-Windows-RestartManager", 10010, layout, subs)
	require.Equal(t, []string{"C:\\app.exe", "1234", "blocking restart"}, args)
}

func TestReorderArgsNilForUnknownProviderOrEvent(t *testing.T) {
	require.Nil(t, reorderArgs("Microsoft-Windows-RestartManager", 99999, nil, nil))
	require.Nil(t, reorderArgs("SomeOtherProvider", 10000, nil, nil))
}
