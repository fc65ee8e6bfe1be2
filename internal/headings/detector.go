// Package headings recovers chapter boundaries from flat text when the
// upstream parser only produced page-granular chunks.
//
// Detection is tiered: parser-provided titles pass through untouched; known
// section names and isolated title-like lines come next; ALL-CAPS formatting
// shapes are the last resort. The first tier yielding at least two headings
// wins.
package headings

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/jackzampolin/reader/internal/book"
)

const (
	// minHeadings is the number of headings a tier must produce to be trusted.
	minHeadings = 2

	// minPreambleChars is the minimum length of text before the first heading
	// worth keeping as an "(Untitled)" chapter.
	minPreambleChars = 50

	// dedupBlockLines and dedupSimilarity govern facing-page deduplication:
	// consecutive 50-line blocks whose 500-char prefixes are >= 80% similar
	// are dropped as bilingual facing-page repetitions.
	dedupBlockLines  = 50
	dedupSimilarity  = 0.80
	dedupComparePref = 500
)

// UntitledTitle names the chapter synthesized from text preceding the first
// detected heading.
const UntitledTitle = "(Untitled)"

// knownSections are section names that are always headings when they occupy
// a line of their own (optionally followed by a period).
var knownSections = []string{
	// Front matter
	`Translator'?s?\s+Note`, `Editor'?s?\s+Note`, `Author'?s?\s+Note`,
	`Preface`, `Foreword`, `Introduction`, `Prologue`,
	`A\s+Note\s+on\s+the\s+Text`, `Acknowledgm?ents?`,
	`Dedication`,
	// Structural
	`Part\s+[IVXLCDMivxlcdm\d]+(?:\s*[:\-\x{2014}]\s*.+)?`,
	`Book\s+[IVXLCDMivxlcdm\d]+(?:\s*[:\-\x{2014}]\s*.+)?`,
	`Chapter\s+[IVXLCDMivxlcdm\d]+(?:\s*[:\-\x{2014}]\s*.+)?`,
	`Section\s+[IVXLCDMivxlcdm\d]+(?:\s*[:\-\x{2014}]\s*.+)?`,
	`Act\s+[IVXLCDMivxlcdm\d]+`, `Scene\s+[IVXLCDMivxlcdm\d]+`,
	// Back matter
	`Epilogue`, `Afterword`, `Postscript`,
	`Appendix(?:\s+[A-Za-z\d]+)?`, `Appendices`,
	`Index`, `Glossary`, `Bibliography`, `References`,
	`Notes?`, `Endnotes?`, `Footnotes?`,
	`Further\s+Reading`, `Suggested\s+Reading`,
	`Chronology`, `Timeline`,
	`About\s+the\s+Author`,
	`Table\s+of\s+Contents`, `Contents`,
}

var (
	rePageTitle    = regexp.MustCompile(`(?i)^Page\s+\d+$`)
	reNumberedPara = regexp.MustCompile(`^\d+\.\s+[a-z"\x{201c}]`)
	reBareNumber   = regexp.MustCompile(`^\d+$`)
	rePageHeader   = regexp.MustCompile(`^\d+\s+[A-Z]|[A-Z]\s+\d+$`)
	reMidSentence  = regexp.MustCompile(`^[a-z]`)
)

type heading struct {
	line  int
	title string
}

// Detector performs tiered chapter detection over extracted text.
type Detector struct {
	knownRe *regexp.Regexp
}

// New returns a Detector with the known-section catalog compiled.
func New() *Detector {
	return &Detector{
		knownRe: regexp.MustCompile(`(?i)^(?:` + strings.Join(knownSections, `|`) + `)\.?\s*$`),
	}
}

// IsPageBased reports whether every chapter title is of the form "Page N",
// meaning the parser lost the logical structure.
func IsPageBased(chapters []book.Chapter) bool {
	if len(chapters) == 0 {
		return false
	}
	for _, ch := range chapters {
		if !rePageTitle.MatchString(ch.Title) {
			return false
		}
	}
	return true
}

// Detect recovers chapters from text. If the provided chapters already carry
// real titles they are returned unchanged. Returns an empty slice when no
// tier finds at least two headings; the caller then treats the whole body as
// a single chapter.
func (d *Detector) Detect(text string, chapters []book.Chapter) []book.Chapter {
	if len(chapters) > 0 && !IsPageBased(chapters) {
		return chapters
	}

	text = deduplicateFacingPages(text)
	lines := strings.Split(text, "\n")

	if found := d.findHeadings(lines); len(found) >= minHeadings {
		return splitAtHeadings(lines, found)
	}

	if found := findByFormatting(lines); len(found) >= minHeadings {
		return splitAtHeadings(lines, found)
	}

	return nil
}

// --- Tier B: known sections and isolated title lines ---

func (d *Detector) findHeadings(lines []string) []heading {
	var found []heading

	for i, line := range lines {
		stripped := strings.TrimSpace(line)
		if len(stripped) < 2 || len(stripped) > 80 {
			continue
		}
		if isNoise(stripped) {
			continue
		}

		if d.knownRe.MatchString(stripped) {
			found = append(found, heading{i, stripped})
			continue
		}

		// Short isolated title-like line: at most 60 chars, not a sentence
		// continuation, blank line both before and after, no terminal
		// sentence punctuation, no commas.
		if len(stripped) <= 60 && !reMidSentence.MatchString(stripped) {
			blankBefore := i == 0 || strings.TrimSpace(lines[i-1]) == ""
			blankAfter := i == len(lines)-1 || strings.TrimSpace(lines[i+1]) == ""
			if blankBefore && blankAfter {
				last := stripped[len(stripped)-1]
				if !strings.ContainsRune(".!?,;:", rune(last)) && !strings.Contains(stripped, ",") {
					if strings.IndexFunc(stripped, unicode.IsLetter) >= 0 {
						found = append(found, heading{i, stripped})
					}
				}
			}
		}
	}

	return found
}

// --- Tier C: formatting shapes ---

func findByFormatting(lines []string) []heading {
	var found []heading

	for i, line := range lines {
		stripped := strings.TrimSpace(line)
		if len(stripped) < 3 || len(stripped) > 60 {
			continue
		}
		if isNoise(stripped) {
			continue
		}

		alpha := 0
		allUpper := true
		for _, r := range stripped {
			if unicode.IsLetter(r) {
				alpha++
				if !unicode.IsUpper(r) {
					allUpper = false
				}
			}
		}
		if alpha < 3 || !allUpper {
			continue
		}
		// Running page headers ("12  TITLE", "TITLE  12") are not chapters.
		if rePageHeader.MatchString(stripped) {
			continue
		}
		blankBefore := i == 0 || strings.TrimSpace(lines[i-1]) == ""
		blankAfter := i == len(lines)-1 || strings.TrimSpace(lines[i+1]) == ""
		if blankBefore || blankAfter {
			found = append(found, heading{i, stripped})
		}
	}

	return found
}

func isNoise(stripped string) bool {
	return reBareNumber.MatchString(stripped) || reNumberedPara.MatchString(stripped)
}

// --- Facing-page deduplication ---

// deduplicateFacingPages drops consecutive near-duplicate line blocks, which
// show up in scans of bilingual editions where every page is printed twice.
func deduplicateFacingPages(text string) string {
	lines := strings.Split(text, "\n")
	if len(lines) < dedupBlockLines*2 {
		return text
	}

	var blocks [][]string
	for i := 0; i < len(lines); i += dedupBlockLines {
		end := i + dedupBlockLines
		if end > len(lines) {
			end = len(lines)
		}
		blocks = append(blocks, lines[i:end])
	}

	kept := [][]string{blocks[0]}
	for _, blk := range blocks[1:] {
		prevText := strings.TrimSpace(strings.Join(kept[len(kept)-1], " "))
		currText := strings.TrimSpace(strings.Join(blk, " "))
		if prevText == "" || currText == "" {
			kept = append(kept, blk)
			continue
		}
		if similarity(prefixStr(prevText, dedupComparePref), prefixStr(currText, dedupComparePref)) < dedupSimilarity {
			kept = append(kept, blk)
		}
	}

	var out []string
	for _, blk := range kept {
		out = append(out, blk...)
	}
	return strings.Join(out, "\n")
}

// similarity is the longest-common-subsequence ratio 2*LCS/(len(a)+len(b)),
// the same measure difflib-style matchers report for two sequences.
func similarity(a, b string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	// Two-row DP over bytes.
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
			} else if prev[j] >= curr[j-1] {
				curr[j] = prev[j]
			} else {
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	lcs := prev[len(b)]
	return 2.0 * float64(lcs) / float64(len(a)+len(b))
}

func prefixStr(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// --- Splitting ---

func splitAtHeadings(lines []string, found []heading) []book.Chapter {
	var chapters []book.Chapter

	if found[0].line > 0 {
		pre := strings.TrimSpace(strings.Join(lines[:found[0].line], "\n"))
		if len(pre) > minPreambleChars {
			chapters = append(chapters, book.Chapter{Title: UntitledTitle, Content: pre})
		}
	}

	for idx, h := range found {
		end := len(lines)
		if idx+1 < len(found) {
			end = found[idx+1].line
		}
		content := strings.TrimSpace(strings.Join(lines[h.line+1:end], "\n"))
		chapters = append(chapters, book.Chapter{Title: h.title, Content: content})
	}

	return chapters
}
