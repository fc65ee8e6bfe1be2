package pipeline

import (
	"fmt"
	"strings"

	"github.com/jackzampolin/reader/internal/book"
	"github.com/jackzampolin/reader/internal/headings"
	"github.com/jackzampolin/reader/internal/textproc"
)

// plannedBook is the chunked, junk-trimmed form of the input book.
type plannedBook struct {
	Chapters []book.Chapter
	Plan     *textproc.Plan
}

// errEmptyBook is raised before any synthesis when no narrative text
// survives trimming and cleaning.
var errEmptyBook = fmt.Errorf("no narrative content to convert")

// plan trims junk chapters, recovers structure from page-based input, cleans
// the text, and chunks the result. Pure planning; no output is touched.
func (o *Orchestrator) plan(bk book.ParsedBook) (*plannedBook, error) {
	if len(bk.Chapters) == 0 {
		return nil, errEmptyBook
	}

	start, end := o.classifier.ContentBounds(bk.Chapters, o.settings.Sensitivity)
	kept := bk.Chapters[start:end]
	if start > 0 || end < len(bk.Chapters) {
		o.logger.Info("trimmed non-narrative chapters",
			"dropped_front", start,
			"dropped_back", len(bk.Chapters)-end,
			"kept", len(kept))
	}

	// Page-granular input lost its logical structure; recover it from the
	// concatenated text. When no structure is found the whole cleaned body
	// becomes a single chapter.
	if headings.IsPageBased(kept) {
		joined := (&book.ParsedBook{Chapters: kept}).JoinedText()
		if detected := o.detector.Detect(joined, kept); len(detected) > 0 {
			o.logger.Info("recovered chapter structure from flat text", "chapters", len(detected))
			kept = detected
		} else {
			title := bk.Title
			if title == "" {
				title = headings.UntitledTitle
			}
			kept = []book.Chapter{{Title: title, Content: joined}}
		}
	}

	cleaned := make([]book.Chapter, 0, len(kept))
	for _, ch := range kept {
		ch.Content = textproc.Clean(ch.Content)
		cleaned = append(cleaned, ch)
	}

	chunkCap := o.settings.ChunkChars
	if limit := o.synth.MaxInputChars(); limit > 0 && chunkCap > limit {
		chunkCap = limit
	}
	chunker := textproc.NewChunker(chunkCap)

	plan := chunker.PlanBook(cleaned)
	if plan.TotalChunks() == 0 {
		return nil, errEmptyBook
	}

	nonEmpty := 0
	for _, c := range plan.Chunks {
		if strings.TrimSpace(c.Text) != "" {
			nonEmpty++
		}
	}
	o.logger.Info("planned conversion",
		"chapters", len(cleaned),
		"chunks", plan.TotalChunks(),
		"speakable_chunks", nonEmpty,
		"chunk_cap", chunkCap)

	return &plannedBook{Chapters: cleaned, Plan: plan}, nil
}
