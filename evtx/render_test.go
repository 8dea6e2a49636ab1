package evtx

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRenderCompactElementWithAttributesAndText(t *testing.T) {
	root := elem("EventID", []Attribute{
		{Name: "Qualifiers", Value: textNode("16384")},
	}, textNode("4624"))

	out, err := NewRenderer().Render(root, nil)
	require.NoError(t, err)
	require.Equal(t, `<EventID Qualifiers="16384">4624</EventID>`, out)
}

func TestRenderEmptyElementSelfCloses(t *testing.T) {
	root := elem("Data", nameAttr("Foo"))
	out, err := NewRenderer().Render(root, nil)
	require.NoError(t, err)
	require.Equal(t, `<Data Name="Foo"/>`, out)
}

func TestRenderSubstitutesAndEscapes(t *testing.T) {
	root := elem("Data", nil, subNode(0))
	subs := []Substitution{
		{Value: Value{Type: VTWString, Str: `<script> & "quotes"`}},
	}
	out, err := NewRenderer().Render(root, subs)
	require.NoError(t, err)
	require.Equal(t, `<Data>&lt;script&gt; &amp; &quot;quotes&quot;</Data>`, out)
}

func TestRenderOptionalSubstitutionOutOfRangeIsEmpty(t *testing.T) {
	root := elem("Data", nil, &BNode{Kind: NodeSubstitution, SubID: 5, SubOptional: true})
	out, err := NewRenderer().Render(root, nil)
	require.NoError(t, err)
	require.Equal(t, `<Data></Data>`, out)
}

func TestRenderNullSubstitutionIsEmpty(t *testing.T) {
	root := elem("Data", nil, subNode(0))
	subs := []Substitution{{Value: Value{Type: VTNull}}}
	out, err := NewRenderer().Render(root, subs)
	require.NoError(t, err)
	require.Equal(t, `<Data></Data>`, out)
}

func TestEscapeXMLStripsControlCharsButKeepsTabNewline(t *testing.T) {
	require.Equal(t, "a\tb\nc", escapeXML("a\tb\x01\nc", false))
}

func TestEscapeXMLEscapesQuoteInBothContexts(t *testing.T) {
	require.Equal(t, "a&quot;b", escapeXML(`a"b`, true))
	require.Equal(t, "a&quot;b", escapeXML(`a"b`, false))
}
