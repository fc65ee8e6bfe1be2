package classify

import "regexp"

// Compiled pattern families for the content-pattern signal. Each family has a
// high-count threshold that forces a 1.0 score and a low-count threshold that
// interpolates into [0.5, 0.9]. The first family that fires wins.
var (
	reCopyright = regexp.MustCompile(`(?i)(?:copyright|\x{00a9}|all rights reserved|ISBN[-:\s]*[\dX-]{10,}|` +
		`published by|first (?:edition|printing|published)|` +
		`printed in|library of congress|cataloging.in.publication|` +
		`no part of this (?:book|publication)|` +
		`permission .{0,40} publisher)`)

	reTOC = regexp.MustCompile(`(?im)(?:^\s*(?:chapter|part|section)\s+[\divxlc]+\b.*\d+\s*$|` +
		`^\s*\d+\.\s+.{5,60}\s+\d+\s*$|` +
		`^\s*.{5,60}\.{3,}\s*\d+\s*$)`)

	reIndex = regexp.MustCompile(`(?m)^\s*[A-Z][a-z]+(?:,\s*\d[\d,\s-]*)+\s*$`)

	reBibliography = regexp.MustCompile(`(?im)(?:^\s*[A-Z][a-z]+,\s+[A-Z]\..*\(\d{4}\)|` +
		`^\s*\[\d+\]\s+|` +
		`(?:et al\.|pp?\.\s*\d+|vol\.\s*\d+|eds?\.|trans\.))`)

	rePraise = regexp.MustCompile(`(?i)(?:[\x{201c}\x{201d}"'].{20,200}[\x{201c}\x{201d}"']` +
		`\s*[-\x{2014}\x{2013}]\s*[A-Z][a-z]+ [A-Z]|` +
		`praise for\b|advance praise|` +
		`new york times|wall street journal|washington post|` +
		`bestselling author|award.winning)`)

	reAboutAuthor = regexp.MustCompile(`(?i)(?:is the author of|lives in|was born in|` +
		`has written|graduated from|teaches at|` +
		`is a (?:professor|writer|journalist|novelist|poet)|` +
		`her (?:novels?|books?|works?) include|` +
		`his (?:novels?|books?|works?) include)`)

	reCatalog = regexp.MustCompile(`(?m)^\s*[A-Z][A-Z\s]{5,50}\s*$(?:\s*^[A-Z][A-Z\s]{5,50}\s*$){3,}`)

	reCommaNumber  = regexp.MustCompile(`\d+,\s*\d+`)
	reSentenceEnd  = regexp.MustCompile(`[.!?]`)
	reNumericTitle = regexp.MustCompile(`^[ivxlcdm\d\s.]+$`)
)

// Title keyword sets. Lookups run against lowercased, trimmed titles.
var junkTitlesExact = map[string]struct{}{
	"bibliography": {}, "references": {}, "index": {}, "glossary": {},
	"contents": {}, "table of contents": {}, "endnotes": {}, "footnotes": {},
	"notes": {}, "copyright": {}, "copyright page": {}, "colophon": {},
	"about the author": {}, "about the authors": {}, "about the editor": {},
	"about the publisher": {}, "about the translator": {},
	"acknowledgments": {}, "acknowledgements": {},
	"also by": {}, "other books by": {}, "books by": {},
	"other works": {}, "other titles": {}, "novels and story collections": {},
	"praise for": {}, "praise": {}, "advance praise": {}, "reviews": {},
	"blurbs": {}, "endorsements": {}, "testimonials": {},
	"catalog": {}, "catalogue": {}, "backlist": {},
	"dedication": {}, "epigraph": {},
	"title page": {}, "half title": {}, "half-title": {},
	"frontispiece": {}, "list of illustrations": {}, "list of figures": {},
	"list of tables": {}, "list of maps": {}, "list of plates": {},
	"list of abbreviations": {}, "abbreviations": {},
	"permissions": {}, "credits": {}, "photo credits": {}, "image credits": {},
	"about this book": {}, "a note on the text": {},
	"further reading": {}, "suggested reading": {}, "recommended reading": {},
	"resources": {}, "appendix": {}, "appendices": {},
	"chronology": {}, "timeline": {},
	"dramatis personae": {}, "cast of characters": {},
}

var junkTitlesPrefix = []string{
	"also by", "other books", "books by", "praise for",
	"copyright", "about the", "a note on", "a note from",
	"list of", "works by", "novels by", "selected",
	"further reading", "suggested reading",
}

var contentTitlesExact = map[string]struct{}{
	"prologue": {}, "epilogue": {}, "introduction": {}, "foreword": {}, "preface": {},
	"afterword": {}, "postscript": {}, "interlude": {}, "intermezzo": {},
}

var contentTitlesPrefix = []string{
	"chapter", "part", "book", "act", "scene", "section",
	"prologue", "epilogue", "introduction", "foreword", "preface",
	"afterword",
}

// EPUB semantic types and OPF guide reference types. Content types force a
// chapter to content regardless of other signals; junk types force junk.
var epubJunkTypes = map[string]struct{}{
	"copyright-page": {}, "colophon": {}, "toc": {}, "loi": {}, "lot": {}, "index": {},
	"glossary": {}, "bibliography": {}, "acknowledgments": {}, "dedication": {},
	"epigraph": {}, "titlepage": {}, "halftitlepage": {}, "imprint": {},
	"other-credits": {}, "errata": {}, "contributors": {},
}

var epubContentTypes = map[string]struct{}{
	"bodymatter": {}, "chapter": {}, "prologue": {}, "epilogue": {}, "introduction": {},
	"foreword": {}, "preface": {}, "afterword": {}, "part": {}, "division": {},
	"volume": {}, "subchapter": {}, "preamble": {}, "conclusion": {},
}

var opfJunkTypes = map[string]struct{}{
	"copyright-page": {}, "toc": {}, "loi": {}, "lot": {}, "index": {}, "glossary": {},
	"bibliography": {}, "colophon": {}, "title-page": {}, "dedication": {},
}

var opfContentTypes = map[string]struct{}{
	"text": {}, "bodymatter": {}, "preface": {}, "foreword": {}, "introduction": {},
}

// categoryKeywords maps matched title keywords to result categories.
var categoryKeywords = []struct {
	category Category
	keywords []string
}{
	{CategoryCopyright, []string{"copyright", "permissions", "credits"}},
	{CategoryTOC, []string{"contents", "table of contents"}},
	{CategoryIndex, []string{"index", "glossary", "abbreviations"}},
	{CategoryBibliography, []string{"bibliography", "references", "notes", "endnotes",
		"footnotes", "further reading", "suggested reading", "recommended reading"}},
	{CategoryPraise, []string{"praise", "blurbs", "endorsements", "testimonials",
		"reviews", "advance praise"}},
	{CategoryAboutAuthor, []string{"about the", "a note on", "a note from"}},
	{CategoryCatalog, []string{"also by", "other books", "books by", "other works",
		"other titles", "novels", "works by", "selected", "catalog", "catalogue", "backlist"}},
	{CategoryFrontMatter, []string{"title page", "half title", "frontispiece",
		"dedication", "epigraph", "list of"}},
	{CategoryBackMatter, []string{"appendix", "appendices", "chronology", "timeline",
		"resources", "dramatis personae", "cast of characters"}},
}
