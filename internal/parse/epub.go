package parse

import (
	"fmt"
	"strings"

	"github.com/simp-lee/epub"

	"github.com/jackzampolin/reader/internal/book"
)

// landmarkGuideTypes maps navigation landmark labels onto OPF guide types
// the classifier understands.
var landmarkGuideTypes = map[string]string{
	"table of contents": "toc",
	"contents":          "toc",
	"cover":             "title-page",
	"title page":        "title-page",
	"copyright":         "copyright-page",
	"copyright page":    "copyright-page",
	"dedication":        "dedication",
	"index":             "index",
	"glossary":          "glossary",
	"bibliography":      "bibliography",
	"start of content":  "text",
	"begin reading":     "text",
}

// EPUB parses an EPUB file into a ParsedBook, carrying navigation landmark
// hints through so the classifier's metadata signal has real input.
func EPUB(path string) (*book.ParsedBook, error) {
	eb, err := epub.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open epub: %w", err)
	}
	defer eb.Close()

	meta := eb.Metadata()
	bk := &book.ParsedBook{}
	if len(meta.Titles) > 0 {
		bk.Title = meta.Titles[0]
	}
	if len(meta.Authors) > 0 {
		bk.Author = meta.Authors[0].Name
	}
	if len(meta.Language) > 0 {
		bk.Language = meta.Language[0]
	}

	guideByHref := make(map[string]string)
	for _, lm := range eb.Landmarks() {
		href := stripFragment(lm.Href)
		if guideType, ok := landmarkGuideTypes[strings.ToLower(strings.TrimSpace(lm.Title))]; ok && href != "" {
			guideByHref[href] = guideType
		}
	}

	for i, ch := range eb.Chapters() {
		text, err := ch.TextContent()
		if err != nil {
			return nil, fmt.Errorf("extract chapter %d text: %w", i, err)
		}
		if strings.TrimSpace(text) == "" {
			continue
		}

		title := strings.TrimSpace(ch.Title)
		if title == "" {
			title = fmt.Sprintf("Section %d", i+1)
		}

		bk.Chapters = append(bk.Chapters, book.Chapter{
			Title:     title,
			Content:   text,
			GuideType: guideByHref[stripFragment(ch.Href)],
		})
	}

	if len(bk.Chapters) == 0 {
		return nil, fmt.Errorf("epub has no readable chapters: %s", path)
	}
	if bk.Title == "" {
		bk.Title = path
	}
	return bk, nil
}

func stripFragment(href string) string {
	if i := strings.IndexByte(href, '#'); i >= 0 {
		return href[:i]
	}
	return href
}
