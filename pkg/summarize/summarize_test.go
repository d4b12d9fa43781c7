package summarize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripMarkdown(t *testing.T) {
	in := "## Summary\n- **Token** is `pumping`\n* People are *excited*"
	out := StripMarkdown(in)
	assert.NotContains(t, out, "#")
	assert.NotContains(t, out, "**")
	assert.NotContains(t, out, "`")
	assert.Contains(t, out, "Token is pumping")
}

func TestKeywordSentiment(t *testing.T) {
	assert.Equal(t, "bullish", KeywordSentiment("The chat is very bullish on this token."))
	assert.Equal(t, "bearish", KeywordSentiment("Several users warn it could be a rug."))
	assert.Equal(t, "mixed", KeywordSentiment("Some are optimistic, others skeptical."))
	assert.Equal(t, "neutral", KeywordSentiment("People discussed the chart."))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 100))

	long := strings.Repeat("a", 600)
	assert.Len(t, Truncate(long, 500), 500)

	// Never splits a multibyte rune.
	s := "aa🚀"
	got := Truncate(s, 3)
	assert.Equal(t, "aa", got)
}

func TestRuleBased(t *testing.T) {
	s := RuleBased("BONK", 7, 3, "bullish")
	assert.Contains(t, s, "BONK")
	assert.Contains(t, s, "7")
	assert.Contains(t, s, "3")
	assert.Contains(t, s, "bullish")

	anon := RuleBased("", 1, 1, "neutral")
	assert.Contains(t, anon, "this token")
}
