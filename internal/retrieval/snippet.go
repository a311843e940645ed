package retrieval

import "strings"

const (
	// SnippetLength is the default snippet size in bytes, before the ellipsis.
	SnippetLength = 200
	snippetStride = 50
	ellipsis      = "..."
)

// Snippet returns an excerpt of text at most maxLen bytes long (plus an
// ellipsis when truncated), chosen by sliding a window over the text and
// picking the first window covering the most distinct query terms. Each term
// counts once per window regardless of how often it repeats.
func Snippet(text, query string, maxLen int) string {
	text = strings.TrimSpace(text)
	if len(text) <= maxLen {
		return text
	}

	terms := strings.Fields(strings.ToLower(query))
	lower := strings.ToLower(text)

	bestStart, bestCount := 0, -1
	for start := 0; start < len(text)-maxLen; start += snippetStride {
		window := lower[start : start+maxLen]
		count := 0
		for _, t := range terms {
			if strings.Contains(window, t) {
				count++
			}
		}
		if count > bestCount {
			bestStart, bestCount = start, count
		}
	}

	snippet := text[bestStart : bestStart+maxLen]
	// A window that does not start the text may open mid-word; drop the
	// leading partial word.
	if bestStart > 0 {
		if i := strings.Index(snippet, " "); i >= 0 {
			snippet = snippet[i+1:]
		}
	}
	// Cut the trailing partial word before appending the ellipsis.
	if i := strings.LastIndex(snippet, " "); i > 0 {
		snippet = snippet[:i]
	}
	return strings.TrimSpace(snippet) + ellipsis
}
