package evtx

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLevelNameMapsKnownLevels(t *testing.T) {
	require.Equal(t, "LogAlways", levelName(0))
	require.Equal(t, "Critical", levelName(1))
	require.Equal(t, "Warning", levelName(3))
	require.Equal(t, "Unknown(9)", levelName(9))
}

func TestExtractSystemFieldsReadsLiteralAndSubstitutionBackedAttrs(t *testing.T) {
	system := elem("System", nil,
		elem("Provider", []Attribute{
			{Name: "Name", Value: subNode(0)},
			{Name: "Guid", Value: textNode("{00000000-0000-0000-0000-000000000000}")},
		}),
		elem("EventID", nil, textNode("4624")),
		elem("Level", nil, textNode("4")),
		elem("Channel", nil, textNode("Security")),
		elem("Computer", nil, textNode("HOST1")),
		elem("Execution", []Attribute{
			{Name: "ProcessID", Value: textNode("1234")},
			{Name: "ThreadID", Value: textNode("5678")},
		}),
	)
	root := elem("Event", nil, system)
	subs := []Substitution{{Value: Value{Type: VTString, Str: "Microsoft-Windows-Security-Auditing"}}}

	a := NewEventAssembler(nil, false, DataItemsNone)
	ev := a.newEventWithSystemFields(&Record{}, root, subs)

	require.Equal(t, "Microsoft-Windows-Security-Auditing", ev.Provider)
	require.Equal(t, "{00000000-0000-0000-0000-000000000000}", ev.ProviderGUID)
	require.Equal(t, uint32(4624), ev.EventID)
	require.Equal(t, 4, ev.Level)
	require.Equal(t, "Information", ev.LevelName)
	require.Equal(t, "Security", ev.Channel)
	require.Equal(t, "HOST1", ev.Computer)
	require.Equal(t, uint32(1234), ev.Execution.ProcessID)
	require.Equal(t, uint32(5678), ev.Execution.ThreadID)
}

func TestExtractSystemFieldsMissingSystemDefaultsLevelLogAlways(t *testing.T) {
	root := elem("Event", nil)
	a := NewEventAssembler(nil, false, DataItemsNone)
	ev := a.newEventWithSystemFields(&Record{}, root, nil)
	require.Equal(t, "LogAlways", ev.LevelName)
}

func TestParseHexOrUintChildPrefersHexPrefix(t *testing.T) {
	el := elem("Keywords", nil, textNode("0x8000000000000000"))
	require.Equal(t, uint64(0x8000000000000000), parseHexOrUintChild(el, nil))

	el2 := elem("Keywords", nil, textNode("42"))
	require.Equal(t, uint64(42), parseHexOrUintChild(el2, nil))
}
