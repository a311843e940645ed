// Package render acquires plain text from source document files. It is the
// boundary to the document formats themselves: everything downstream of it
// (extraction, scoring, indexing) works on raw text only.
package render

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ErrUnsupportedType is returned for file extensions no renderer handles.
var ErrUnsupportedType = fmt.Errorf("unsupported file type")

// Renderer extracts the plain text of a single source document.
type Renderer interface {
	// Render returns the document text, or an error if the file cannot be
	// read or decoded at all.
	Render(path string) (string, error)
}

// Supported reports whether path has an extension some renderer handles.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf", ".docx", ".txt", ".md":
		return true
	}
	return false
}

// ForFile returns the renderer responsible for the file's extension.
func ForFile(path string) (Renderer, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return PDF{}, nil
	case ".docx":
		return DOCX{}, nil
	case ".txt", ".md":
		return Plaintext{}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, filepath.Ext(path))
}

// Render dispatches to the renderer for the file's extension.
func Render(path string) (string, error) {
	r, err := ForFile(path)
	if err != nil {
		return "", err
	}
	return r.Render(path)
}

// cleanText normalizes line endings and strips control characters that PDF
// and DOCX extraction tend to leave behind.
func cleanText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.ReplaceAll(s, "\x0c", " ")
	s = strings.ReplaceAll(s, "\x0b", " ")
	return strings.TrimSpace(s)
}
