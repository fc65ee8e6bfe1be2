package checkpoint

import (
	"os"
	"path/filepath"
	"testing"
)

func testStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	output := filepath.Join(dir, "book.mp3")
	return NewStore(output, nil), output
}

func writeOutput(t *testing.T, path string, size int) {
	t.Helper()
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatal(err)
	}
}

func baseCheckpoint() Checkpoint {
	return Checkpoint{
		SourcePath:          "/books/book.epub",
		SourceHash:          "abcd1234abcd1234",
		TotalChunks:         100,
		CompletedChunks:     50,
		OutputSizeBytes:     4096,
		SettingsFingerprint: "deadbeef",
	}
}

func baseRequirements() Requirements {
	return Requirements{
		SourcePath:  "/books/book.epub",
		SourceHash:  "abcd1234abcd1234",
		Fingerprint: "deadbeef",
		TotalChunks: 100,
	}
}

func TestPathFor(t *testing.T) {
	cases := map[string]string{
		"/out/book.mp3": "/out/book.checkpoint",
		"/out/book.wav": "/out/book.checkpoint",
		"/out/book":     "/out/book.checkpoint",
	}
	for in, want := range cases {
		if got := PathFor(in); got != want {
			t.Fatalf("PathFor(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	s, output := testStore(t)
	writeOutput(t, output, 4096)

	if err := s.Save(baseCheckpoint()); err != nil {
		t.Fatalf("save: %v", err)
	}

	cp, ok := s.Load(baseRequirements())
	if !ok {
		t.Fatalf("expected checkpoint to load")
	}
	if cp.CompletedChunks != 50 || cp.TotalChunks != 100 || cp.OutputSizeBytes != 4096 {
		t.Fatalf("round trip mismatch: %+v", cp)
	}
	if cp.Timestamp == 0 {
		t.Fatalf("timestamp not stamped on save")
	}
}

func TestLoad_MissingCheckpoint(t *testing.T) {
	s, _ := testStore(t)
	if _, ok := s.Load(baseRequirements()); ok {
		t.Fatalf("expected no checkpoint")
	}
}

func TestLoad_FingerprintMismatch(t *testing.T) {
	s, output := testStore(t)
	writeOutput(t, output, 4096)
	if err := s.Save(baseCheckpoint()); err != nil {
		t.Fatal(err)
	}

	req := baseRequirements()
	req.Fingerprint = "cafef00d"
	if _, ok := s.Load(req); ok {
		t.Fatalf("fingerprint mismatch must discard checkpoint")
	}
}

func TestLoad_TotalChunksMismatch(t *testing.T) {
	s, output := testStore(t)
	writeOutput(t, output, 4096)
	if err := s.Save(baseCheckpoint()); err != nil {
		t.Fatal(err)
	}

	req := baseRequirements()
	req.TotalChunks = 101
	if _, ok := s.Load(req); ok {
		t.Fatalf("plan size mismatch must discard checkpoint")
	}
}

func TestLoad_OutputSizeMismatch(t *testing.T) {
	s, output := testStore(t)
	writeOutput(t, output, 4095) // one byte short
	if err := s.Save(baseCheckpoint()); err != nil {
		t.Fatal(err)
	}

	if _, ok := s.Load(baseRequirements()); ok {
		t.Fatalf("output size mismatch must discard checkpoint")
	}
}

func TestLoad_OutputMissing(t *testing.T) {
	s, _ := testStore(t)
	// Checkpoint exists but output was deleted.
	if err := s.Save(baseCheckpoint()); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.Load(baseRequirements()); ok {
		t.Fatalf("missing output must discard checkpoint")
	}
}

func TestLoad_SourceHashMismatch(t *testing.T) {
	s, output := testStore(t)
	writeOutput(t, output, 4096)
	if err := s.Save(baseCheckpoint()); err != nil {
		t.Fatal(err)
	}

	req := baseRequirements()
	req.SourceHash = "0000000000000000"
	if _, ok := s.Load(req); ok {
		t.Fatalf("source hash mismatch must discard checkpoint")
	}
}

func TestLoad_SourceHashOptional(t *testing.T) {
	s, output := testStore(t)
	writeOutput(t, output, 4096)
	if err := s.Save(baseCheckpoint()); err != nil {
		t.Fatal(err)
	}

	req := baseRequirements()
	req.SourceHash = ""
	if _, ok := s.Load(req); !ok {
		t.Fatalf("empty requirement hash must skip the source check")
	}
}

func TestLoad_TornWriteTolerated(t *testing.T) {
	s, output := testStore(t)
	writeOutput(t, output, 4096)
	if err := os.WriteFile(s.Path(), []byte(`{"source_path": "/books/b`), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, ok := s.Load(baseRequirements()); ok {
		t.Fatalf("torn record must read as no checkpoint")
	}
}

func TestClear(t *testing.T) {
	s, output := testStore(t)
	writeOutput(t, output, 4096)
	if err := s.Save(baseCheckpoint()); err != nil {
		t.Fatal(err)
	}

	if err := s.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, err := os.Stat(s.Path()); !os.IsNotExist(err) {
		t.Fatalf("checkpoint file survived clear")
	}
	// Clearing again is fine.
	if err := s.Clear(); err != nil {
		t.Fatalf("second clear: %v", err)
	}
}

func TestSourceHash(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "src.txt")
	if err := os.WriteFile(path, []byte("content"), 0o644); err != nil {
		t.Fatal(err)
	}

	first := SourceHash(path)
	if first == "" {
		t.Fatalf("expected a hash for a readable file")
	}
	if second := SourceHash(path); second != first {
		t.Fatalf("hash not stable: %s vs %s", first, second)
	}

	if err := os.WriteFile(path, []byte("different"), 0o644); err != nil {
		t.Fatal(err)
	}
	if changed := SourceHash(path); changed == first {
		t.Fatalf("hash did not change with content")
	}

	if got := SourceHash(filepath.Join(dir, "missing")); got != "" {
		t.Fatalf("missing file must hash to empty, got %q", got)
	}
}
