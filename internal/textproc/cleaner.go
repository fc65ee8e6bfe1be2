// Package textproc prepares narrative text for synthesis: cleanup of
// extraction artifacts, typographic normalization, and bounded chunking.
package textproc

import (
	"regexp"
	"strings"
)

var (
	hyphenBreak = regexp.MustCompile(`(\w+)-\s*\n\s*(\w+)`)
	isbnLine    = regexp.MustCompile(`(?im)^.*ISBN[-:\s]*\d{10,13}.*$`)
	// Catalog blocks: runs of 5+ capitalized titles with no sentence punctuation.
	catalogBlock = regexp.MustCompile(`(?m)([A-Z][A-Za-z\s]{10,60}\b\s*){5,}`)

	// minCatalogChars keeps the catalog filter from eating short runs of
	// capitalized prose; only blocks long enough to be a real backlist go.
	minCatalogChars = 200
)

// Clean repairs extraction artifacts that hurt pronunciation: words broken
// across lines by hyphenation, standalone ISBN lines, and long runs of
// capitalized titles (catalog blocks) left over from publisher backlists.
func Clean(text string) string {
	text = hyphenBreak.ReplaceAllString(text, `$1$2`)
	text = isbnLine.ReplaceAllString(text, "")

	for _, match := range catalogBlock.FindAllString(text, -1) {
		if len(match) > minCatalogChars {
			text = strings.ReplaceAll(text, match, "")
		}
	}

	return text
}

// typographicReplacer maps characters synthesizers mispronounce onto plain
// ASCII equivalents. These substitutions change audio output and are part of
// the chunking contract, not a cosmetic step.
var typographicReplacer = strings.NewReplacer(
	" ", " ", // non-breaking space
	"–", "-", // en dash
	"—", "-", // em dash
	"‘", "'", // left single quote
	"’", "'", // right single quote
	"“", `"`, // left double quote
	"”", `"`, // right double quote
)

// NormalizeTypography replaces typographic characters with straight
// equivalents before chunking.
func NormalizeTypography(text string) string {
	return typographicReplacer.Replace(text)
}
