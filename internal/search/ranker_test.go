package search

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRankAllTermsScoresHigherThanPartial(t *testing.T) {
	full := Rank("the quick brown fox", "quick fox")
	partial := Rank("the quick brown fox jumps", "quick missing")

	assert.Greater(t, full.Score, partial.Score)
}

func TestRankAllTermsBonus(t *testing.T) {
	// One word-boundary occurrence of a single term: 1 substring + 1 boundary,
	// then the 1.5x all-terms bonus.
	res := Rank("the quick brown fox", "quick")
	assert.InDelta(t, 3.0, res.Score, 0.001)

	// Two terms, both boundary matches: (2+2) * 1.5.
	res = Rank("the quick brown fox", "quick fox")
	assert.InDelta(t, 6.0, res.Score, 0.001)
}

func TestRankWordBoundaryCountsDouble(t *testing.T) {
	boundary := Rank("cat sat", "cat")
	embedded := Rank("concatenate", "cat")

	// Both contain the term, so both get the bonus; the boundary match
	// counts double the bare substring match.
	assert.Greater(t, boundary.Score, embedded.Score)
	assert.InDelta(t, 1.5, embedded.Score, 0.001)
}

func TestRankHighlightWrapsTerms(t *testing.T) {
	res := Rank("the quick brown fox", "quick fox")
	assert.Equal(t, "the **quick** brown **fox**", res.Highlight)
}

func TestRankHighlightTruncatesWithEllipsis(t *testing.T) {
	long := strings.Repeat("filler words here ", 20) + "needle in the haystack " + strings.Repeat("more filler ", 20)
	res := Rank(long, "needle haystack")

	require.Contains(t, res.Highlight, "**needle**")
	assert.True(t, strings.HasPrefix(res.Highlight, "...") || strings.HasSuffix(res.Highlight, "..."))
	// Window plus delimiters and ellipses bounds the snippet length.
	assert.LessOrEqual(t, len(res.Highlight), windowSize+len("...")*2+4*len("**"))
}

func TestRankPicksDensestWindow(t *testing.T) {
	content := "alpha " + strings.Repeat("x", 200) + " alpha beta"
	res := Rank(content, "alpha beta")

	// The window holding both terms wins over the earlier single-term one.
	assert.Contains(t, res.Highlight, "**alpha** **beta**")
}

func TestRankDeterministic(t *testing.T) {
	a := Rank("some content with words", "content words")
	b := Rank("some content with words", "content words")
	assert.Equal(t, a, b)
}

func TestRankEmptyQuery(t *testing.T) {
	res := Rank("content", "")
	assert.Equal(t, "content", res.Highlight)
	assert.Zero(t, res.Score)
}

func TestRankCaseInsensitive(t *testing.T) {
	res := Rank("The QUICK brown fox", "quick")
	assert.Contains(t, res.Highlight, "**QUICK**")
	assert.Greater(t, res.Score, 0.0)
}
