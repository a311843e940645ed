package render

import (
	"fmt"
	"os"
)

// Plaintext renders .txt and .md files verbatim.
type Plaintext struct{}

func (Plaintext) Render(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading file: %w", err)
	}
	return cleanText(string(data)), nil
}
