package headings

import (
	"fmt"
	"strings"
	"testing"

	"github.com/jackzampolin/reader/internal/book"
)

func TestIsPageBased(t *testing.T) {
	pages := []book.Chapter{{Title: "Page 1"}, {Title: "Page 2"}, {Title: "page 3"}}
	if !IsPageBased(pages) {
		t.Fatalf("expected page-based detection")
	}

	mixed := []book.Chapter{{Title: "Page 1"}, {Title: "Chapter 1"}}
	if IsPageBased(mixed) {
		t.Fatalf("mixed titles must not read as page-based")
	}

	if IsPageBased(nil) {
		t.Fatalf("empty chapter list must not read as page-based")
	}
}

func TestDetect_RealTitlesPassThrough(t *testing.T) {
	d := New()
	chapters := []book.Chapter{
		{Title: "The Beginning", Content: "text"},
		{Title: "The End", Content: "more text"},
	}
	got := d.Detect("ignored", chapters)
	if len(got) != 2 || got[0].Title != "The Beginning" {
		t.Fatalf("real titles must pass through unchanged, got %#v", got)
	}
}

func TestDetect_KnownSectionsFromFlatText(t *testing.T) {
	d := New()

	prose := "The story continued through the long afternoon and into the night."
	var sb strings.Builder
	for _, section := range []string{"Prologue", "Chapter I", "Chapter II", "Epilogue"} {
		sb.WriteString("\n" + section + "\n\n")
		for i := 0; i < 5; i++ {
			sb.WriteString(prose + "\n")
		}
	}

	var pages []book.Chapter
	for i := 0; i < 50; i++ {
		pages = append(pages, book.Chapter{Title: fmt.Sprintf("Page %d", i+1)})
	}

	got := d.Detect(sb.String(), pages)
	if len(got) != 4 {
		t.Fatalf("expected 4 chapters, got %d: %v", len(got), titlesOf(got))
	}
	want := []string{"Prologue", "Chapter I", "Chapter II", "Epilogue"}
	for i, title := range want {
		if got[i].Title != title {
			t.Fatalf("chapter %d: expected %q, got %q", i, title, got[i].Title)
		}
	}
	if !strings.Contains(got[1].Content, "long afternoon") {
		t.Fatalf("chapter content missing: %q", got[1].Content[:50])
	}
}

func TestDetect_IsolatedTitleLines(t *testing.T) {
	d := New()
	text := strings.Join([]string{
		"",
		"The Long Road Home",
		"",
		"He walked for days without rest, following the river north.",
		"The villages grew sparse as the mountains drew closer.",
		"",
		"A Cold Welcome",
		"",
		"No one opened their doors to strangers in that valley.",
	}, "\n")

	got := d.Detect(text, nil)
	if len(got) != 2 {
		t.Fatalf("expected 2 chapters from isolated titles, got %d: %v", len(got), titlesOf(got))
	}
	if got[0].Title != "The Long Road Home" || got[1].Title != "A Cold Welcome" {
		t.Fatalf("unexpected titles: %v", titlesOf(got))
	}
}

func TestDetect_AllCapsFormatting(t *testing.T) {
	d := New()
	text := strings.Join([]string{
		"THE GATHERING STORM",
		"",
		"the soldiers waited in the rain for orders that never came.",
		"mud covered everything they owned.",
		"",
		"THE LONG RETREAT",
		"",
		"they marched south for nine days.",
	}, "\n")

	got := d.Detect(text, nil)
	if len(got) != 2 {
		t.Fatalf("expected 2 chapters from formatting, got %d: %v", len(got), titlesOf(got))
	}
}

func TestDetect_PageHeadersRejected(t *testing.T) {
	d := New()
	text := strings.Join([]string{
		"some lowercase paragraph text continues here for a while.",
		"14 THE NOVEL",
		"",
		"more lowercase paragraph text continues here as well.",
		"THE NOVEL 15",
		"",
		"and a final lowercase paragraph closes out the page.",
	}, "\n")

	got := d.Detect(text, nil)
	if len(got) != 0 {
		t.Fatalf("page headers must not become chapters, got %v", titlesOf(got))
	}
}

func TestDetect_NoStructureReturnsEmpty(t *testing.T) {
	d := New()
	text := "just one long paragraph of lowercase text with no headings at all.\nit keeps going.\nand going."
	if got := d.Detect(text, nil); len(got) != 0 {
		t.Fatalf("expected no chapters, got %v", titlesOf(got))
	}
}

func TestDetect_PreambleBecomesUntitled(t *testing.T) {
	d := New()
	text := strings.Join([]string{
		"This opening text precedes any heading and is long enough to keep around.",
		"",
		"Chapter I",
		"",
		"The first chapter begins here with its own paragraph of text.",
		"",
		"Chapter II",
		"",
		"The second chapter follows directly after the first one ends.",
	}, "\n")

	got := d.Detect(text, nil)
	if len(got) != 3 {
		t.Fatalf("expected untitled preamble + 2 chapters, got %d: %v", len(got), titlesOf(got))
	}
	if got[0].Title != UntitledTitle {
		t.Fatalf("expected %q first, got %q", UntitledTitle, got[0].Title)
	}
}

func TestDeduplicateFacingPages(t *testing.T) {
	block := make([]string, 50)
	for i := range block {
		block[i] = fmt.Sprintf("line %d of the original page content, repeated verbatim", i)
	}
	distinct := make([]string, 50)
	for i := range distinct {
		distinct[i] = fmt.Sprintf("entirely different material on this page, item %d", i)
	}

	var lines []string
	lines = append(lines, block...)
	lines = append(lines, block...) // facing-page duplicate
	lines = append(lines, distinct...)

	out := deduplicateFacingPages(strings.Join(lines, "\n"))
	outLines := strings.Split(out, "\n")
	if len(outLines) != 100 {
		t.Fatalf("expected duplicate block dropped (100 lines), got %d", len(outLines))
	}
}

func TestSimilarity(t *testing.T) {
	if s := similarity("abc", "abc"); s != 1.0 {
		t.Fatalf("identical strings: expected 1.0, got %.3f", s)
	}
	if s := similarity("abc", "xyz"); s != 0.0 {
		t.Fatalf("disjoint strings: expected 0.0, got %.3f", s)
	}
	if s := similarity("", ""); s != 1.0 {
		t.Fatalf("empty strings: expected 1.0, got %.3f", s)
	}
	if s := similarity("abcd", "abxd"); s < 0.7 || s > 0.8 {
		t.Fatalf("expected ~0.75, got %.3f", s)
	}
}

func titlesOf(chapters []book.Chapter) []string {
	out := make([]string, len(chapters))
	for i, ch := range chapters {
		out[i] = ch.Title
	}
	return out
}
