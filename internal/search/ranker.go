package search

import (
	"sort"
	"strings"
	"unicode"
)

// windowSize is the snippet length scanned for term density.
const windowSize = 150

// allTermsBonus is applied when every query term appears in the content.
const allTermsBonus = 1.5

const ellipsis = "..."

// Result carries the rendered snippet and the relevance score for one
// (content, query) pair.
type Result struct {
	Highlight string  `json:"highlight"`
	Score     float64 `json:"score"`
}

// Rank extracts a highlighted snippet and computes a relevance score.
// Deterministic: the same (content, query) pair always yields the same
// result.
func Rank(content, query string) Result {
	terms := tokenize(query)
	if len(terms) == 0 || content == "" {
		return Result{Highlight: content}
	}

	lower := strings.ToLower(content)

	return Result{
		Highlight: extractHighlight(content, lower, terms),
		Score:     score(lower, terms),
	}
}

func tokenize(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	terms := fields[:0]
	for _, f := range fields {
		if f != "" {
			terms = append(terms, f)
		}
	}
	return terms
}

// extractHighlight scans every start offset, scoring each by how many terms
// fall inside the fixed window starting there. The leftmost offset with the
// strictly highest term count wins.
func extractHighlight(content, lower string, terms []string) string {
	best, bestCount := 0, -1
	for i := 0; i <= len(lower); i++ {
		end := i + windowSize
		if end > len(lower) {
			end = len(lower)
		}
		window := lower[i:end]
		count := 0
		for _, t := range terms {
			if strings.Contains(window, t) {
				count++
			}
		}
		if count > bestCount {
			best, bestCount = i, count
		}
	}

	end := best + windowSize
	if end > len(content) {
		end = len(content)
	}
	snippet := boldTerms(content[best:end], terms)

	if best > 0 {
		snippet = ellipsis + snippet
	}
	if end < len(content) {
		snippet += ellipsis
	}
	return snippet
}

// boldTerms wraps every case-insensitive term occurrence in ** delimiters.
// Overlapping matches merge into a single wrapped span.
func boldTerms(snippet string, terms []string) string {
	lower := strings.ToLower(snippet)

	type span struct{ start, end int }
	var spans []span
	for _, t := range terms {
		for from := 0; ; {
			idx := strings.Index(lower[from:], t)
			if idx < 0 {
				break
			}
			start := from + idx
			spans = append(spans, span{start, start + len(t)})
			from = start + len(t)
		}
	}
	if len(spans) == 0 {
		return snippet
	}

	sort.Slice(spans, func(i, j int) bool {
		if spans[i].start != spans[j].start {
			return spans[i].start < spans[j].start
		}
		return spans[i].end > spans[j].end
	})

	merged := spans[:1]
	for _, s := range spans[1:] {
		last := &merged[len(merged)-1]
		if s.start <= last.end {
			if s.end > last.end {
				last.end = s.end
			}
			continue
		}
		merged = append(merged, s)
	}

	var b strings.Builder
	prev := 0
	for _, s := range merged {
		b.WriteString(snippet[prev:s.start])
		b.WriteString("**")
		b.WriteString(snippet[s.start:s.end])
		b.WriteString("**")
		prev = s.end
	}
	b.WriteString(snippet[prev:])
	return b.String()
}

// score sums per-term frequency, with word-boundary hits counting double a
// bare substring hit, then applies the all-terms bonus.
func score(lower string, terms []string) float64 {
	total := 0.0
	allPresent := true
	for _, t := range terms {
		substr := countOccurrences(lower, t)
		if substr == 0 {
			allPresent = false
			continue
		}
		total += float64(substr + countWordMatches(lower, t))
	}
	if allPresent {
		total *= allTermsBonus
	}
	return total
}

func countOccurrences(s, term string) int {
	count, from := 0, 0
	for {
		idx := strings.Index(s[from:], term)
		if idx < 0 {
			return count
		}
		count++
		from += idx + len(term)
	}
}

func countWordMatches(s, term string) int {
	count, from := 0, 0
	for {
		idx := strings.Index(s[from:], term)
		if idx < 0 {
			return count
		}
		start := from + idx
		end := start + len(term)
		if boundaryBefore(s, start) && boundaryAfter(s, end) {
			count++
		}
		from = end
	}
}

func boundaryBefore(s string, i int) bool {
	if i == 0 {
		return true
	}
	return !isWordRune(rune(s[i-1]))
}

func boundaryAfter(s string, i int) bool {
	if i >= len(s) {
		return true
	}
	return !isWordRune(rune(s[i]))
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}
