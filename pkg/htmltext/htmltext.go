// Package htmltext derives plain text, counts, and preview fragments from
// the editor's HTML projection. The parser is deliberately small: it handles
// the well-formed subset Tiptap/ProseMirror emits, nothing more.
package htmltext

import (
	"strings"
	"unicode/utf8"
)

// Flatten strips tags from html, replacing each tag with a single space so
// adjacent block elements don't merge into one word. Runs of whitespace are
// collapsed.
func Flatten(html string) string {
	var text strings.Builder
	text.Grow(len(html))

	inTag := false
	lastWasSpace := true
	for _, ch := range html {
		switch {
		case ch == '<':
			inTag = true
			if !lastWasSpace {
				text.WriteByte(' ')
				lastWasSpace = true
			}
		case ch == '>':
			inTag = false
		case !inTag:
			if ch == ' ' || ch == '\n' || ch == '\t' || ch == '\r' {
				if !lastWasSpace {
					text.WriteByte(' ')
					lastWasSpace = true
				}
			} else {
				text.WriteRune(ch)
				lastWasSpace = false
			}
		}
	}

	return strings.TrimSpace(decodeEntities(text.String()))
}

// CountWords counts whitespace-separated words in the flattened text.
func CountWords(html string) int {
	return len(strings.Fields(Flatten(html)))
}

// CountChars counts runes in the flattened text, spaces included.
func CountChars(html string) int {
	return utf8.RuneCountInString(Flatten(html))
}

// Excerpt returns the first maxRunes runes of the first non-empty paragraph,
// with an ellipsis if truncated. Headings are skipped so the excerpt reads
// like body text rather than repeating the title.
func Excerpt(html string, maxRunes int) string {
	for _, block := range splitBlocks(html) {
		if block.tag == "p" || block.tag == "blockquote" {
			text := Flatten(block.inner)
			if text == "" {
				continue
			}
			return truncate(text, maxRunes)
		}
	}
	// No paragraph found; fall back to whatever text exists.
	return truncate(Flatten(html), maxRunes)
}

// FirstImage returns the src of the first <img> in the document, or "".
func FirstImage(html string) string {
	lower := strings.ToLower(html)
	pos := 0
	for {
		idx := strings.Index(lower[pos:], "<img")
		if idx < 0 {
			return ""
		}
		start := pos + idx
		end := strings.IndexByte(html[start:], '>')
		if end < 0 {
			return ""
		}
		if src := attrValue(html[start:start+end], "src"); src != "" {
			return src
		}
		pos = start + end + 1
	}
}

type block struct {
	tag   string
	inner string
}

// splitBlocks pulls out top-level block elements in document order.
func splitBlocks(html string) []block {
	var blocks []block
	lower := strings.ToLower(html)
	pos := 0
	for pos < len(html) {
		open := strings.IndexByte(lower[pos:], '<')
		if open < 0 {
			break
		}
		open += pos
		close := strings.IndexByte(lower[open:], '>')
		if close < 0 {
			break
		}
		close += open

		tag := tagName(lower[open+1 : close])
		if tag == "" || strings.HasPrefix(tag, "/") {
			pos = close + 1
			continue
		}

		closing := "</" + tag + ">"
		endIdx := strings.Index(lower[close+1:], closing)
		if endIdx < 0 {
			pos = close + 1
			continue
		}
		endIdx += close + 1

		blocks = append(blocks, block{tag: tag, inner: html[close+1 : endIdx]})
		pos = endIdx + len(closing)
	}
	return blocks
}

func tagName(tag string) string {
	tag = strings.TrimSpace(tag)
	for i, ch := range tag {
		if ch == ' ' || ch == '\t' || ch == '\n' || ch == '/' {
			return tag[:i]
		}
	}
	return tag
}

// attrValue extracts a quoted attribute value from a raw tag string.
func attrValue(tag, name string) string {
	lower := strings.ToLower(tag)
	idx := strings.Index(lower, name+"=")
	if idx < 0 {
		return ""
	}
	rest := tag[idx+len(name)+1:]
	if rest == "" {
		return ""
	}
	quote := rest[0]
	if quote != '"' && quote != '\'' {
		return ""
	}
	end := strings.IndexByte(rest[1:], quote)
	if end < 0 {
		return ""
	}
	return rest[1 : 1+end]
}

func truncate(s string, maxRunes int) string {
	if maxRunes <= 0 || utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:maxRunes])) + "…"
}

var entityReplacer = strings.NewReplacer(
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&#39;", "'",
	"&nbsp;", " ",
)

func decodeEntities(s string) string {
	if !strings.ContainsRune(s, '&') {
		return s
	}
	return entityReplacer.Replace(s)
}
