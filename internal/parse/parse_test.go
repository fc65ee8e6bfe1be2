package parse

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestText_FormFeedPages(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "novel.txt")
	content := "first page text\fsecond page text\fthird page text"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	bk, err := Text(path)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if bk.Title != "novel" {
		t.Fatalf("title from stem: got %q", bk.Title)
	}
	if len(bk.Chapters) != 3 {
		t.Fatalf("expected 3 pages, got %d", len(bk.Chapters))
	}
	if bk.Chapters[1].Title != "Page 2" || bk.Chapters[1].Content != "second page text" {
		t.Fatalf("unexpected page 2: %+v", bk.Chapters[1])
	}
}

func TestText_LineBlockPages(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "flat.txt")
	lines := make([]string, 120)
	for i := range lines {
		lines[i] = "line of text"
	}
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0o644); err != nil {
		t.Fatal(err)
	}

	bk, err := Text(path)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(bk.Chapters) != 3 {
		t.Fatalf("expected 3 fifty-line pages, got %d", len(bk.Chapters))
	}
}

func TestText_Empty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.txt")
	if err := os.WriteFile(path, []byte("  \n \n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Text(path); err == nil {
		t.Fatalf("empty file must error")
	}
}

func TestFile_UnsupportedExtension(t *testing.T) {
	if _, err := File("book.pdf"); err == nil {
		t.Fatalf("pdf must be rejected")
	}
}

func TestStripFragment(t *testing.T) {
	if got := stripFragment("ch01.xhtml#part2"); got != "ch01.xhtml" {
		t.Fatalf("fragment not stripped: %q", got)
	}
	if got := stripFragment("ch01.xhtml"); got != "ch01.xhtml" {
		t.Fatalf("plain href changed: %q", got)
	}
}
