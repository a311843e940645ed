package retrieval

import (
	"strings"
	"testing"
)

func TestSnippetShortTextVerbatim(t *testing.T) {
	text := "A short description of the works."
	if got := Snippet(text, "works", 200); got != text {
		t.Errorf("Snippet = %q, want the text verbatim", got)
	}
}

func TestSnippetLengthBound(t *testing.T) {
	long := strings.Repeat("stormwater detention basin design for the northern region ", 50)
	queries := []string{"basin", "stormwater detention", "nothing matching here", ""}
	for _, q := range queries {
		got := Snippet(long, q, 200)
		if len(got) > 200+len(ellipsis) {
			t.Errorf("Snippet(%q) length = %d, want <= %d", q, len(got), 200+len(ellipsis))
		}
	}
}

func TestSnippetPicksRelevantWindow(t *testing.T) {
	filler := strings.Repeat("general project administration notes ", 20)
	text := filler + "the stormwater detention basin overflows during peak events " + filler

	got := Snippet(text, "stormwater basin", 200)
	if !strings.Contains(strings.ToLower(got), "stormwater") {
		t.Errorf("snippet %q does not cover the query terms", got)
	}
}

func TestSnippetNoMatchStartsAtBeginning(t *testing.T) {
	text := strings.Repeat("alpha beta gamma delta ", 40)
	got := Snippet(text, "zeta", 200)
	if !strings.HasPrefix(got, "alpha beta") {
		t.Errorf("snippet %q should start at the beginning when nothing matches", got)
	}
	if !strings.HasSuffix(got, ellipsis) {
		t.Errorf("truncated snippet %q should end with %q", got, ellipsis)
	}
}

func TestSnippetDropsLeadingPartialWord(t *testing.T) {
	// A 60-byte unbroken token at the start forces any later window to open
	// mid-word; the matched term is only reachable from the offset-50 window.
	text := strings.Repeat("x", 60) + " " + strings.Repeat("word ", 12) + "basin " + strings.Repeat("word ", 40)

	got := Snippet(text, "basin", 100)
	if strings.HasPrefix(got, "x") {
		t.Errorf("snippet %q starts with a partial word", got)
	}
	if !strings.Contains(got, "basin") {
		t.Errorf("snippet %q does not cover the query term", got)
	}
}

func TestSnippetScoresDistinctTermsNotOccurrences(t *testing.T) {
	// The first window repeats one term; a later window covers both terms
	// once. Covering both must beat repeating one.
	text := strings.Repeat("alpha ", 8) + strings.Repeat("zz ", 40) + "alpha basin " + strings.Repeat("zz ", 40)

	got := Snippet(text, "alpha basin", 100)
	if !strings.Contains(got, "basin") {
		t.Errorf("snippet %q should cover the window with both terms, not the one repeating a single term", got)
	}
	if !strings.HasSuffix(got, ellipsis) {
		t.Errorf("truncated snippet %q should end with %q", got, ellipsis)
	}
}

func TestSnippetEndsOnWordBoundary(t *testing.T) {
	text := strings.Repeat("hydraulic modelling undertaken for the catchment ", 30)
	got := Snippet(text, "catchment", 200)
	trimmed := strings.TrimSuffix(got, ellipsis)
	if strings.HasSuffix(trimmed, " ") {
		t.Errorf("snippet %q has trailing space before ellipsis", got)
	}
	// The cut must not leave a partial word: the last token of the snippet
	// must be a full token of the source text.
	fields := strings.Fields(trimmed)
	last := fields[len(fields)-1]
	if !strings.Contains(text, last+" ") && !strings.HasSuffix(text, last) {
		t.Errorf("snippet ends mid-word: %q", last)
	}
}
