package pipeline

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jackzampolin/reader/internal/book"
	"github.com/jackzampolin/reader/internal/checkpoint"
	"github.com/jackzampolin/reader/internal/config"
	"github.com/jackzampolin/reader/internal/synth"
	"github.com/jackzampolin/reader/internal/sysload"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSettings() config.Settings {
	s := config.Default()
	s.Backend = synth.MockName
	s.Format = "wav"
	s.ChunkChars = 120
	s.Mode = config.ModeSequential
	s.MaxWorkers = 3
	s.BatchChunks = 2
	s.CheckpointInterval = 2
	s.MaxRetries = 3
	s.RetryDelay = time.Millisecond
	s.ChunkDelay = 0
	return s
}

func newTestOrchestrator(t *testing.T, settings config.Settings, mock *synth.Mock) *Orchestrator {
	t.Helper()
	o, err := New(Config{
		Settings:    settings,
		Synthesizer: mock,
		Sampler:     &sysload.StaticSampler{S: sysload.Sample{CPUPercent: 10, MemoryPercent: 10}},
		Logger:      discardLogger(),
	})
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	return o
}

// testSentence builds one ~85-char sentence; with ChunkChars=120 each
// sentence lands in its own chunk, so tests can target chunks by text.
func testSentence(i int) string {
	return fmt.Sprintf("Sentence number %02d continues the tale across the quiet valley toward morning light.", i)
}

// testBook is three protected-title chapters of six one-chunk sentences each.
func testBook() book.ParsedBook {
	bk := book.ParsedBook{Title: "The Quiet Valley", Author: "A. Author"}
	n := 0
	for c := 1; c <= 3; c++ {
		var sb strings.Builder
		for s := 0; s < 6; s++ {
			sb.WriteString(testSentence(n))
			sb.WriteString(" ")
			n++
		}
		bk.Chapters = append(bk.Chapters, book.Chapter{
			Title:   fmt.Sprintf("Chapter %d", c),
			Content: sb.String(),
		})
	}
	return bk
}

func convertTo(t *testing.T, o *Orchestrator, bk book.ParsedBook, output string) *ConvertResult {
	t.Helper()
	res, err := o.Convert(context.Background(), ConvertRequest{Book: bk, OutputPath: output})
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	return res
}

func readFile(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestConvert_CleanWAVRun(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "book.wav")

	res := convertTo(t, newTestOrchestrator(t, testSettings(), synth.NewMock()), testBook(), output)

	if res.Stats.TotalChunks != 18 {
		t.Fatalf("expected 18 chunks, got %d", res.Stats.TotalChunks)
	}
	if res.Stats.StartChunk != 0 || res.Stats.Silences != 0 {
		t.Fatalf("unexpected stats: %+v", res.Stats)
	}

	data := readFile(t, output)
	if len(data) <= 44 {
		t.Fatalf("output suspiciously small: %d bytes", len(data))
	}
	// Header validity: RIFF size = file - 8, data size = file - 44.
	if riff := binary.LittleEndian.Uint32(data[4:8]); riff != uint32(len(data)-8) {
		t.Fatalf("riff size %d, want %d", riff, len(data)-8)
	}
	if dataSize := binary.LittleEndian.Uint32(data[40:44]); dataSize != uint32(len(data)-44) {
		t.Fatalf("data size %d, want %d", dataSize, len(data)-44)
	}

	// Checkpoint must be gone after completion.
	if _, err := os.Stat(checkpoint.PathFor(output)); !os.IsNotExist(err) {
		t.Fatalf("checkpoint survived completion")
	}

	// One marker per chapter, monotone, covering the stream.
	if len(res.Markers) != 3 {
		t.Fatalf("expected 3 chapter markers, got %d", len(res.Markers))
	}
	if res.Markers[0].Start != 0 {
		t.Fatalf("first marker must start at 0")
	}
	for i := 1; i < len(res.Markers); i++ {
		if res.Markers[i].Start <= res.Markers[i-1].Start {
			t.Fatalf("markers not monotone: %+v", res.Markers)
		}
		if res.Markers[i-1].End != res.Markers[i].Start {
			t.Fatalf("marker %d end %s != marker %d start %s", i-1, res.Markers[i-1].End, i, res.Markers[i].Start)
		}
	}
}

func TestConvert_Deterministic(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "a.wav")
	second := filepath.Join(dir, "b.wav")

	convertTo(t, newTestOrchestrator(t, testSettings(), synth.NewMock()), testBook(), first)
	convertTo(t, newTestOrchestrator(t, testSettings(), synth.NewMock()), testBook(), second)

	if string(readFile(t, first)) != string(readFile(t, second)) {
		t.Fatalf("two identical runs produced different bytes")
	}
}

func TestConvert_ParallelMatchesSequential(t *testing.T) {
	dir := t.TempDir()
	seqOut := filepath.Join(dir, "seq.wav")
	parOut := filepath.Join(dir, "par.wav")

	convertTo(t, newTestOrchestrator(t, testSettings(), synth.NewMock()), testBook(), seqOut)

	parallel := testSettings()
	parallel.Mode = config.ModeParallel
	parallel.MaxWorkers = 3
	convertTo(t, newTestOrchestrator(t, parallel, synth.NewMock()), testBook(), parOut)

	if string(readFile(t, seqOut)) != string(readFile(t, parOut)) {
		t.Fatalf("parallel output differs from sequential output")
	}
}

func TestConvert_JunkChaptersDoNotReachAudio(t *testing.T) {
	dir := t.TempDir()
	trimmed := filepath.Join(dir, "trimmed.wav")
	contentOnly := filepath.Join(dir, "content.wav")

	content := testBook()

	withJunk := book.ParsedBook{Title: content.Title, Author: content.Author}
	withJunk.Chapters = append(withJunk.Chapters, book.Chapter{
		Title:   "Copyright",
		Content: "Copyright 2020. All rights reserved. ISBN 978-1-234567-89-0. Published by Example House. Printed in the USA.",
	})
	withJunk.Chapters = append(withJunk.Chapters, content.Chapters...)
	withJunk.Chapters = append(withJunk.Chapters, book.Chapter{
		Title:   "Index",
		Content: "Adams, 1, 5\nBrown, 2, 7\nClark, 3, 9\nDavis, 4, 11\nEvans, 6, 13\nFord, 8, 15\nGrant, 10, 17\nHayes, 12, 19\nInman, 14, 21\nJones, 16, 23\nKent, 18, 25\nLowe, 20, 27",
	})

	convertTo(t, newTestOrchestrator(t, testSettings(), synth.NewMock()), withJunk, trimmed)
	convertTo(t, newTestOrchestrator(t, testSettings(), synth.NewMock()), content, contentOnly)

	if string(readFile(t, trimmed)) != string(readFile(t, contentOnly)) {
		t.Fatalf("junk chapters leaked into the audio stream")
	}
}

func TestConvert_ResumeProducesIdenticalBytes(t *testing.T) {
	dir := t.TempDir()
	resumable := filepath.Join(dir, "resumable.wav")
	clean := filepath.Join(dir, "clean.wav")

	bk := testBook()
	failText := testSentence(9) // a chunk in chapter 2

	// First attempt dies at chunk 9 with a non-retryable error.
	mock := synth.NewMock()
	mock.FailNext(failText, 999, synth.KindFatal)
	o := newTestOrchestrator(t, testSettings(), mock)
	_, err := o.Convert(context.Background(), ConvertRequest{Book: bk, OutputPath: resumable})
	if err == nil {
		t.Fatalf("expected the injected failure to surface")
	}
	if !strings.Contains(err.Error(), "chunk 9") {
		t.Fatalf("failure must name the chunk index: %v", err)
	}
	if _, statErr := os.Stat(checkpoint.PathFor(resumable)); statErr != nil {
		t.Fatalf("failed run must leave a checkpoint: %v", statErr)
	}

	// The partial output must be exactly the flushed prefix the checkpoint claims.
	store := checkpoint.NewStore(resumable, discardLogger())
	cp, ok := store.Load(checkpoint.Requirements{Fingerprint: testSettings().Fingerprint(), TotalChunks: 18})
	if !ok {
		t.Fatalf("checkpoint must be loadable with the same settings")
	}
	if cp.CompletedChunks != 9 {
		t.Fatalf("expected 9 completed chunks, got %d", cp.CompletedChunks)
	}

	// Second attempt with the same settings resumes and completes.
	mock2 := synth.NewMock()
	o2 := newTestOrchestrator(t, testSettings(), mock2)
	res, err := o2.Convert(context.Background(), ConvertRequest{Book: bk, OutputPath: resumable})
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if res.Stats.StartChunk != 9 {
		t.Fatalf("expected resume from chunk 9, got %d", res.Stats.StartChunk)
	}
	if res.Markers != nil {
		t.Fatalf("resumed runs must not emit chapter markers")
	}
	if int64(mock2.RequestCount()) != 9 {
		t.Fatalf("resume must synthesize only the remaining 9 chunks, did %d", mock2.RequestCount())
	}

	// Byte-identical to a clean run.
	convertTo(t, newTestOrchestrator(t, testSettings(), synth.NewMock()), bk, clean)
	if string(readFile(t, resumable)) != string(readFile(t, clean)) {
		t.Fatalf("resumed output differs from clean run")
	}

	if _, statErr := os.Stat(checkpoint.PathFor(resumable)); !os.IsNotExist(statErr) {
		t.Fatalf("checkpoint survived completed resume")
	}
}

func TestConvert_SettingsChangeInvalidatesCheckpoint(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "book.wav")
	bk := testBook()

	mock := synth.NewMock()
	mock.FailNext(testSentence(9), 999, synth.KindFatal)
	o := newTestOrchestrator(t, testSettings(), mock)
	if _, err := o.Convert(context.Background(), ConvertRequest{Book: bk, OutputPath: output}); err == nil {
		t.Fatalf("expected injected failure")
	}

	// Speed changes the fingerprint; the checkpoint must be discarded.
	changed := testSettings()
	changed.Speed = 1.1
	res, err := newTestOrchestrator(t, changed, synth.NewMock()).
		Convert(context.Background(), ConvertRequest{Book: bk, OutputPath: output})
	if err != nil {
		t.Fatalf("convert with changed settings: %v", err)
	}
	if res.Stats.StartChunk != 0 {
		t.Fatalf("changed settings must rebuild from scratch, resumed at %d", res.Stats.StartChunk)
	}
}

func TestConvert_TransientFailuresAreInvisible(t *testing.T) {
	dir := t.TempDir()
	flaky := filepath.Join(dir, "flaky.wav")
	clean := filepath.Join(dir, "clean.wav")
	bk := testBook()

	mock := synth.NewMock()
	mock.FailNext(testSentence(7), 2, synth.KindTransient)
	res := convertTo(t, newTestOrchestrator(t, testSettings(), mock), bk, flaky)
	if res.Stats.Retries < 2 {
		t.Fatalf("expected at least 2 retries, got %d", res.Stats.Retries)
	}
	if res.Stats.Silences != 0 {
		t.Fatalf("retried chunk must not become silence")
	}

	convertTo(t, newTestOrchestrator(t, testSettings(), synth.NewMock()), bk, clean)
	if string(readFile(t, flaky)) != string(readFile(t, clean)) {
		t.Fatalf("retries leaked into output bytes")
	}
}

func TestConvert_ContinueOnErrorSubstitutesSilence(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "book.wav")
	bk := testBook()

	settings := testSettings()
	settings.ContinueOnError = true

	mock := synth.NewMock()
	mock.FailNext(testSentence(7), 999, synth.KindTransient)
	res := convertTo(t, newTestOrchestrator(t, settings, mock), bk, output)

	if res.Stats.Silences != 1 {
		t.Fatalf("expected exactly one silence substitution, got %d", res.Stats.Silences)
	}
	if res.Stats.TotalChunks != 18 {
		t.Fatalf("all chunks must be accounted for")
	}
	data := readFile(t, output)
	if riff := binary.LittleEndian.Uint32(data[4:8]); riff != uint32(len(data)-8) {
		t.Fatalf("header sizes wrong after silence substitution")
	}
}

func TestConvert_Cancellation(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "book.wav")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := newTestOrchestrator(t, testSettings(), synth.NewMock())
	_, err := o.Convert(ctx, ConvertRequest{Book: testBook(), OutputPath: output})
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}

	// A checkpoint and a valid output prefix are left behind.
	if _, statErr := os.Stat(checkpoint.PathFor(output)); statErr != nil {
		t.Fatalf("cancelled run must leave a checkpoint: %v", statErr)
	}
	info, statErr := os.Stat(output)
	if statErr != nil {
		t.Fatalf("cancelled run must leave the output file: %v", statErr)
	}
	if info.Size() < 44 {
		t.Fatalf("output is not a valid wav prefix: %d bytes", info.Size())
	}
}

func TestConvert_EmptyBook(t *testing.T) {
	dir := t.TempDir()
	o := newTestOrchestrator(t, testSettings(), synth.NewMock())

	if _, err := o.Convert(context.Background(), ConvertRequest{
		Book:       book.ParsedBook{Title: "Empty"},
		OutputPath: filepath.Join(dir, "empty.wav"),
	}); err == nil {
		t.Fatalf("empty book must be an input error")
	}

	blank := book.ParsedBook{Title: "Blank", Chapters: []book.Chapter{{Title: "Chapter 1", Content: "   \n  "}}}
	if _, err := o.Convert(context.Background(), ConvertRequest{
		Book:       blank,
		OutputPath: filepath.Join(dir, "blank.wav"),
	}); err == nil {
		t.Fatalf("whitespace-only book must be an input error")
	}
}

func TestConvert_PageBasedInputRecoversChapters(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "flat.wav")

	prose := "The story continued through the long afternoon and into the night again."
	var sb strings.Builder
	for _, section := range []string{"Prologue", "Chapter I", "Chapter II", "Epilogue"} {
		sb.WriteString(section + "\n\n")
		for i := 0; i < 4; i++ {
			sb.WriteString(prose + "\n")
		}
		sb.WriteString("\n")
	}

	// Page-granular chapters, structure only visible in the flat text.
	var bk book.ParsedBook
	bk.Title = "Flat Book"
	lines := strings.Split(sb.String(), "\n")
	for i := 0; i < len(lines); i += 6 {
		end := i + 6
		if end > len(lines) {
			end = len(lines)
		}
		bk.Chapters = append(bk.Chapters, book.Chapter{
			Title:   fmt.Sprintf("Page %d", i/6+1),
			Content: strings.Join(lines[i:end], "\n"),
		})
	}

	res := convertTo(t, newTestOrchestrator(t, testSettings(), synth.NewMock()), bk, output)
	if len(res.Markers) != 4 {
		t.Fatalf("expected 4 recovered chapters, got %d markers", len(res.Markers))
	}
	want := []string{"Prologue", "Chapter I", "Chapter II", "Epilogue"}
	for i, m := range res.Markers {
		if m.Title != want[i] {
			t.Fatalf("marker %d: expected %q, got %q", i, want[i], m.Title)
		}
	}
}
