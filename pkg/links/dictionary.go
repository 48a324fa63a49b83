// Package links detects mentions of known documents inside a flat text
// projection. A single Aho-Corasick automaton compiled from document titles
// serves as both title lookup and text scanner, so the preview pipeline can
// surface cross-document references without per-title substring searches.
package links

import (
	"github.com/coregx/ahocorasick"
)

// Dictionary is a compiled title automaton.
type Dictionary struct {
	ac *ahocorasick.Automaton

	// Pattern index -> document IDs (distinct documents may share a title).
	patternToIDs [][]string

	// Canonical title -> pattern index.
	patternIndex map[string]int

	// Document ID -> display title.
	titles map[string]string

	patterns []string
}

// Mention is a detected reference to a known document.
type Mention struct {
	DocumentID  string `json:"documentId"`
	Title       string `json:"title"`
	Start       int    `json:"start"` // Byte offset in the scanned text
	End         int    `json:"end"`   // Byte offset (exclusive)
	MatchedText string `json:"matchedText"`
}

// minTitleLen filters out one- and two-rune titles, which match everywhere.
const minTitleLen = 3

// Compile builds a Dictionary from id -> title pairs.
func Compile(titles map[string]string) (*Dictionary, error) {
	d := &Dictionary{
		patternIndex: make(map[string]int),
		titles:       make(map[string]string, len(titles)),
	}

	for id, title := range titles {
		key := Canonicalize(title)
		if len(key) < minTitleLen {
			continue
		}
		d.titles[id] = title

		if idx, exists := d.patternIndex[key]; exists {
			d.patternToIDs[idx] = append(d.patternToIDs[idx], id)
			continue
		}
		idx := len(d.patterns)
		d.patterns = append(d.patterns, key)
		d.patternIndex[key] = idx
		d.patternToIDs = append(d.patternToIDs, []string{id})
	}

	if len(d.patterns) == 0 {
		return d, nil
	}

	// LeftmostLongest so "Launch Plan B" wins over "Launch Plan".
	ac, err := ahocorasick.NewBuilder().
		AddStrings(d.patterns).
		SetMatchKind(ahocorasick.LeftmostLongest).
		SetPrefilter(true).
		Build()
	if err != nil {
		return nil, err
	}
	d.ac = ac

	return d, nil
}

// Scan finds mentions of known documents in text. selfID excludes the
// document being scanned, so a document never reports a mention of itself
// just because its own title appears in its body.
func (d *Dictionary) Scan(text, selfID string) []Mention {
	if d == nil || d.ac == nil || text == "" {
		return nil
	}

	canon := Canonicalize(text)
	canonToOrig := offsetMap(text)

	// The overlapping scan reports "Launch Plan" inside "Launch Plan B";
	// keep only spans not contained in a longer match.
	matches := dropContained(d.ac.FindAllOverlapping([]byte(canon)))
	mentions := make([]Mention, 0, len(matches))
	seen := make(map[string]bool)

	for _, m := range matches {
		origStart := mapOffset(m.Start, canonToOrig, len(text))
		origEnd := mapOffset(m.End, canonToOrig, len(text))
		if origStart >= len(text) || origEnd > len(text) || origStart >= origEnd {
			continue
		}

		for _, id := range d.patternToIDs[m.PatternID] {
			if id == selfID || seen[id] {
				continue
			}
			seen[id] = true
			mentions = append(mentions, Mention{
				DocumentID:  id,
				Title:       d.titles[id],
				Start:       origStart,
				End:         origEnd,
				MatchedText: text[origStart:origEnd],
			})
		}
	}

	return mentions
}

// dropContained removes matches whose span lies inside a strictly longer
// match's span.
func dropContained(matches []ahocorasick.Match) []ahocorasick.Match {
	if len(matches) < 2 {
		return matches
	}
	kept := matches[:0]
	for i, m := range matches {
		contained := false
		for j, other := range matches {
			if i == j {
				continue
			}
			if other.Start <= m.Start && m.End <= other.End && other.End-other.Start > m.End-m.Start {
				contained = true
				break
			}
		}
		if !contained {
			kept = append(kept, m)
		}
	}
	return kept
}

// Len returns the number of compiled title patterns.
func (d *Dictionary) Len() int {
	if d == nil {
		return 0
	}
	return len(d.patterns)
}
