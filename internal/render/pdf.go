package render

import (
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDF renders PDF files by concatenating row text page by page, preserving
// line structure so the extractor's line-oriented rules keep working.
type PDF struct{}

func (PDF) Render(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}
	defer f.Close()

	var sb strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			return "", fmt.Errorf("reading pdf page %d: %w", i, err)
		}
		for _, row := range rows {
			for _, word := range row.Content {
				sb.WriteString(word.S)
			}
			sb.WriteString("\n")
		}
	}

	return cleanText(sb.String()), nil
}
