package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/jackzampolin/reader/internal/audio"
)

// streamWriter owns the single output stream. WAV output is appended
// directly; MP3 output accumulates PCM and appends encoder output every
// batchChunks chunks. All writes come from the orchestrator's controlling
// goroutine, one chunk boundary at a time, so the file is always a valid
// prefix.
type streamWriter struct {
	path      string
	container string // container of the stream target ("wav" or "mp3")
	format    audio.Format
	enc       *audio.Encoder
	batchSize int
	logger    *slog.Logger

	f             *os.File
	pending       [][]byte // PCM payloads awaiting a batch encode (mp3 only)
	size          int64    // current file size in bytes
	flushedChunks int      // chunks whose bytes are fully on disk
}

func newStreamWriter(path, container string, format audio.Format, enc *audio.Encoder, batchSize int, logger *slog.Logger) *streamWriter {
	if batchSize <= 0 {
		batchSize = 4
	}
	return &streamWriter{
		path:      path,
		container: strings.ToLower(container),
		format:    format,
		enc:       enc,
		batchSize: batchSize,
		logger:    logger.With("component", "writer"),
	}
}

// openFresh truncates the target and, for WAV, writes a placeholder header
// whose sizes are rewritten at finalize.
func (w *streamWriter) openFresh() error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	w.f = f
	w.size = 0
	w.flushedChunks = 0

	if w.container == audio.FormatWAV {
		header := audio.EncodeHeader(w.format, 0)
		if _, err := f.Write(header); err != nil {
			return fmt.Errorf("write wav header: %w", err)
		}
		w.size = int64(len(header))
	}
	return nil
}

// openAppend resumes writing at the end of an existing valid prefix. The
// checkpoint loader has already verified resumeSize against the file.
func (w *streamWriter) openAppend(resumeSize int64, completedChunks int) error {
	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open output for append: %w", err)
	}
	w.f = f
	w.size = resumeSize
	w.flushedChunks = completedChunks
	return nil
}

// writeChunk accepts one chunk's PCM payload. For WAV the bytes reach disk
// before returning; for MP3 they may sit in the pending batch until flush.
func (w *streamWriter) writeChunk(ctx context.Context, pcm []byte) error {
	switch w.container {
	case audio.FormatWAV:
		if _, err := w.f.Write(pcm); err != nil {
			return fmt.Errorf("append pcm: %w", err)
		}
		if err := w.f.Sync(); err != nil {
			return fmt.Errorf("sync output: %w", err)
		}
		w.size += int64(len(pcm))
		w.flushedChunks++
		return nil
	case audio.FormatMP3:
		w.pending = append(w.pending, pcm)
		if len(w.pending) >= w.batchSize {
			return w.flush(ctx)
		}
		return nil
	default:
		return fmt.Errorf("stream writer cannot append container %q", w.container)
	}
}

// flush encodes and appends any pending batch. No-op for WAV.
func (w *streamWriter) flush(ctx context.Context) error {
	if len(w.pending) == 0 {
		return nil
	}

	total := 0
	for _, p := range w.pending {
		total += len(p)
	}
	combined := make([]byte, 0, total)
	for _, p := range w.pending {
		combined = append(combined, p...)
	}

	encoded, err := w.enc.EncodeBytes(ctx, audio.WrapPCM(w.format, combined), w.container)
	if err != nil {
		return fmt.Errorf("encode batch of %d chunks: %w", len(w.pending), err)
	}
	if _, err := w.f.Write(encoded); err != nil {
		return fmt.Errorf("append encoded batch: %w", err)
	}
	if err := w.f.Sync(); err != nil {
		return fmt.Errorf("sync output: %w", err)
	}

	w.size += int64(len(encoded))
	w.flushedChunks += len(w.pending)
	w.logger.Debug("flushed encode batch", "chunks", len(w.pending), "bytes", len(encoded))
	w.pending = w.pending[:0]
	return nil
}

// finalize flushes pending audio and, for WAV, rewrites the header sizes to
// match the finished stream.
func (w *streamWriter) finalize(ctx context.Context) error {
	if err := w.flush(ctx); err != nil {
		return err
	}
	if err := w.f.Close(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}
	w.f = nil

	if w.container == audio.FormatWAV {
		if err := audio.RewriteSizes(w.path); err != nil {
			return err
		}
	}
	return nil
}

// close releases the file handle without finalizing (error and cancel
// paths). Pending unencoded chunks are dropped; they were never counted as
// flushed.
func (w *streamWriter) close() {
	if w.f != nil {
		w.f.Close()
		w.f = nil
	}
}
