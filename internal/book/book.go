// Package book defines the parsed-book data model shared by the pipeline.
package book

import "strings"

// Chapter is a single unit of a parsed book. Immutable once produced;
// the pipeline replaces chapters rather than editing them in place.
type Chapter struct {
	Title     string `json:"title"`
	Content   string `json:"content"`
	EpubType  string `json:"epub_type,omitempty"`
	GuideType string `json:"guide_type,omitempty"`
	StartPos  int    `json:"start_pos,omitempty"`
}

// ParsedBook is the input contract to the conversion pipeline. How it was
// produced (EPUB, plain text, ...) is opaque to the core.
type ParsedBook struct {
	Title    string    `json:"title"`
	Author   string    `json:"author,omitempty"`
	Language string    `json:"language,omitempty"`
	Chapters []Chapter `json:"chapters"`
}

// JoinedText returns the concatenation of all chapter contents separated by
// blank lines, used when chapter structure must be recovered from flat text.
func (b *ParsedBook) JoinedText() string {
	parts := make([]string, 0, len(b.Chapters))
	for _, ch := range b.Chapters {
		if strings.TrimSpace(ch.Content) == "" {
			continue
		}
		parts = append(parts, ch.Content)
	}
	return strings.Join(parts, "\n\n")
}
