package preview

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/orsinium-labs/stopwords"

	"github.com/stationhq/stationkit/pkg/links"
)

// keyword frequency extraction over the flat projection. Stopwords are
// filtered through the English list plus a small writing-specific set.
type keywordExtractor struct {
	checker *stopwords.Stopwords
	custom  map[string]bool
}

func newKeywordExtractor() *keywordExtractor {
	return &keywordExtractor{
		checker: stopwords.MustGet("en"),
		custom: map[string]bool{
			"also": true, "just": true, "really": true, "thing": true,
			"things": true, "lot": true, "bit": true, "etc": true,
		},
	}
}

// minKeywordLen filters short tokens that survive stopword checks ("im", "ive").
const minKeywordLen = 3

// Extract returns the top max keywords by frequency, ties broken
// alphabetically so output is stable across runs.
func (k *keywordExtractor) Extract(text string, max int) []string {
	if max <= 0 {
		return nil
	}

	counts := make(map[string]int)
	for _, raw := range strings.Fields(links.Canonicalize(text)) {
		word := strings.Trim(raw, ".-'&/#_")
		if utf8.RuneCountInString(word) < minKeywordLen {
			continue
		}
		if k.custom[word] || k.checker.Contains(word) {
			continue
		}
		counts[word]++
	}

	words := make([]string, 0, len(counts))
	for w := range counts {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if counts[words[i]] != counts[words[j]] {
			return counts[words[i]] > counts[words[j]]
		}
		return words[i] < words[j]
	})

	if len(words) > max {
		words = words[:max]
	}
	return words
}
