package textutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeSpace(t *testing.T) {
	require.Equal(t, "a b c", NormalizeSpace("  a\n\tb   c \n"))
	require.Equal(t, "", NormalizeSpace(" \n\t "))
}

func TestContainsAny(t *testing.T) {
	keywords := []string{"experience", "qualifications"}
	require.True(t, ContainsAny("5+ years of EXPERIENCE required", keywords))
	require.False(t, ContainsAny("great benefits", keywords))
}

func TestKeywordWindow(t *testing.T) {
	text := "We offer great benefits. Experience with Go required, plus distributed systems background and on-call rotation."

	// earliest keyword wins, window truncates with an ellipsis
	window := KeywordWindow(text, []string{"experience", "go"}, 30)
	require.Equal(t, "Experience with Go required, p...", window)

	// short tail is returned whole
	window = KeywordWindow(text, []string{"rotation"}, 30)
	require.Equal(t, "rotation.", window)

	require.Empty(t, KeywordWindow(text, []string{"salary"}, 30))
}
