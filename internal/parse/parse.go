// Package parse produces ParsedBook values from source files. Format
// support is intentionally thin; everything downstream of a ParsedBook is
// format-agnostic.
package parse

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jackzampolin/reader/internal/book"
)

// textPageLines is how many lines of a plain-text file make one "Page N"
// chapter. The heading detector recovers real structure downstream.
const textPageLines = 50

// File parses a source file by extension.
func File(path string) (*book.ParsedBook, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".epub":
		return EPUB(path)
	case ".txt", ".text", "":
		return Text(path)
	default:
		return nil, fmt.Errorf("unsupported input format: %s", filepath.Ext(path))
	}
}

// Text parses a plain-text file into page-granular chapters. Form feeds
// mark page boundaries when present; otherwise fixed line blocks do.
func Text(path string) (*book.ParsedBook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read text file: %w", err)
	}

	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	title := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	var pages []string
	if strings.Contains(text, "\f") {
		pages = strings.Split(text, "\f")
	} else {
		lines := strings.Split(text, "\n")
		for i := 0; i < len(lines); i += textPageLines {
			end := i + textPageLines
			if end > len(lines) {
				end = len(lines)
			}
			pages = append(pages, strings.Join(lines[i:end], "\n"))
		}
	}

	bk := &book.ParsedBook{Title: title}
	for i, page := range pages {
		if strings.TrimSpace(page) == "" {
			continue
		}
		bk.Chapters = append(bk.Chapters, book.Chapter{
			Title:   fmt.Sprintf("Page %d", i+1),
			Content: page,
		})
	}
	if len(bk.Chapters) == 0 {
		return nil, fmt.Errorf("text file is empty: %s", path)
	}
	return bk, nil
}
