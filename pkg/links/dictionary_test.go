package links

import "testing"

func compile(t *testing.T, titles map[string]string) *Dictionary {
	t.Helper()
	d, err := Compile(titles)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	return d
}

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Launch Plan", "launch plan"},
		{"  Many   Spaces  ", "many spaces"},
		{"Q&A: Part-Two", "q&a part-two"},
		{"Curly’s — Dash", "curly's - dash"},
		{"Trailing!", "trailing"},
	}
	for _, tt := range tests {
		if got := Canonicalize(tt.in); got != tt.want {
			t.Errorf("Canonicalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCompileFiltersShortTitles(t *testing.T) {
	d := compile(t, map[string]string{
		"a": "Go",
		"b": "Launch Plan",
	})
	if d.Len() != 1 {
		t.Errorf("Expected 1 pattern after filtering, got %d", d.Len())
	}
}

func TestScanFindsMentions(t *testing.T) {
	d := compile(t, map[string]string{
		"doc-plan": "Launch Plan",
	})

	text := "See the Launch Plan before Friday."
	mentions := d.Scan(text, "self")
	if len(mentions) != 1 {
		t.Fatalf("Expected 1 mention, got %d", len(mentions))
	}
	m := mentions[0]
	if m.DocumentID != "doc-plan" || m.Title != "Launch Plan" {
		t.Errorf("Mention identity mismatch: %+v", m)
	}
	if m.MatchedText != "Launch Plan" {
		t.Errorf("MatchedText = %q, span [%d,%d)", m.MatchedText, m.Start, m.End)
	}
	if text[m.Start:m.End] != m.MatchedText {
		t.Errorf("Span does not address the original text")
	}
}

func TestScanIsCaseAndPunctuationInsensitive(t *testing.T) {
	d := compile(t, map[string]string{
		"doc-plan": "Launch Plan",
	})

	mentions := d.Scan("read: LAUNCH   plan!", "")
	if len(mentions) != 1 {
		t.Fatalf("Expected 1 mention, got %d", len(mentions))
	}
	if mentions[0].MatchedText != "LAUNCH   plan" {
		t.Errorf("MatchedText = %q", mentions[0].MatchedText)
	}
}

func TestScanExcludesSelf(t *testing.T) {
	d := compile(t, map[string]string{
		"doc-plan": "Launch Plan",
	})
	if got := d.Scan("The Launch Plan mentions itself.", "doc-plan"); len(got) != 0 {
		t.Errorf("Self mention not excluded: %+v", got)
	}
}

func TestScanPrefersLongestTitle(t *testing.T) {
	d := compile(t, map[string]string{
		"short": "Launch Plan",
		"long":  "Launch Plan B",
	})

	mentions := d.Scan("Ship per Launch Plan B next week.", "")
	if len(mentions) != 1 {
		t.Fatalf("Expected 1 mention, got %d: %+v", len(mentions), mentions)
	}
	if mentions[0].DocumentID != "long" {
		t.Errorf("Expected the longer title to win, got %+v", mentions[0])
	}
}

func TestScanSharedTitleReportsAllDocuments(t *testing.T) {
	d := compile(t, map[string]string{
		"one": "Weekly Notes",
		"two": "Weekly Notes",
	})

	mentions := d.Scan("Check Weekly Notes.", "")
	if len(mentions) != 2 {
		t.Fatalf("Expected both documents reported, got %d", len(mentions))
	}
}

func TestScanDeduplicatesRepeats(t *testing.T) {
	d := compile(t, map[string]string{
		"doc-plan": "Launch Plan",
	})

	mentions := d.Scan("Launch Plan, and again the Launch Plan.", "")
	if len(mentions) != 1 {
		t.Errorf("Expected one mention per document, got %d", len(mentions))
	}
}

func TestNilAndEmptyDictionary(t *testing.T) {
	var d *Dictionary
	if got := d.Scan("anything", ""); got != nil {
		t.Errorf("Nil dictionary scan returned %+v", got)
	}
	if d.Len() != 0 {
		t.Errorf("Nil dictionary Len = %d", d.Len())
	}

	empty := compile(t, map[string]string{})
	if got := empty.Scan("anything", ""); got != nil {
		t.Errorf("Empty dictionary scan returned %+v", got)
	}
}
