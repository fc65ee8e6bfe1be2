// Package checkpoint persists pipeline progress so a crashed or killed run
// can resume producing the same output bytes a clean run would have.
//
// One small JSON record sits next to the output file; the output file itself
// is the ground truth and the record is advisory. Any verification failure
// on load is treated as "no checkpoint".
package checkpoint

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Checkpoint is the persisted progress record. completed_chunks counts
// chunks whose bytes are fully on disk; output_size_bytes must match the
// output file exactly for the record to be trusted.
type Checkpoint struct {
	SourcePath          string `json:"source_path"`
	SourceHash          string `json:"source_hash,omitempty"`
	TotalChunks         int    `json:"total_chunks"`
	CompletedChunks     int    `json:"completed_chunks"`
	OutputSizeBytes     int64  `json:"output_size_bytes"`
	SettingsFingerprint string `json:"settings_fingerprint"`
	Timestamp           int64  `json:"timestamp"`
}

// ProgressPercent returns completion as a percentage.
func (c *Checkpoint) ProgressPercent() float64 {
	if c.TotalChunks == 0 {
		return 0
	}
	return float64(c.CompletedChunks) / float64(c.TotalChunks) * 100
}

// PathFor derives the checkpoint path from an output path by suffix
// substitution: "book.mp3" -> "book.checkpoint".
func PathFor(outputPath string) string {
	ext := filepath.Ext(outputPath)
	return strings.TrimSuffix(outputPath, ext) + ".checkpoint"
}

// Requirements is what the current run demands of a stored checkpoint for it
// to be resumable.
type Requirements struct {
	SourcePath  string
	SourceHash  string // empty skips the source-hash check
	Fingerprint string
	TotalChunks int
}

// Store reads and writes the checkpoint record for one output target.
type Store struct {
	outputPath string
	path       string
	logger     *slog.Logger
}

// NewStore creates a store for the given output file.
func NewStore(outputPath string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		outputPath: outputPath,
		path:       PathFor(outputPath),
		logger:     logger.With("component", "checkpoint"),
	}
}

// Path returns the checkpoint file location.
func (s *Store) Path() string {
	return s.path
}

// Save writes the record as a whole-file replacement. A torn write is
// tolerable: the next load's verification will reject it.
func (s *Store) Save(cp Checkpoint) error {
	cp.Timestamp = time.Now().Unix()
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	s.logger.Debug("checkpoint saved",
		"completed", cp.CompletedChunks,
		"total", cp.TotalChunks,
		"output_bytes", cp.OutputSizeBytes)
	return nil
}

// Load returns a verified checkpoint or (nil, false). It accepts a record
// only when it deserializes cleanly, the fingerprint and planned total match,
// the output file's size equals the recorded size, and (when req.SourceHash
// is set) the source file is unchanged. Every failure is non-fatal.
func (s *Store) Load(req Requirements) (*Checkpoint, bool) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, false
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		s.logger.Warn("checkpoint unreadable, starting fresh", "error", err)
		return nil, false
	}

	if cp.SettingsFingerprint != req.Fingerprint {
		s.logger.Info("checkpoint settings fingerprint mismatch, starting fresh",
			"stored", cp.SettingsFingerprint, "current", req.Fingerprint)
		return nil, false
	}
	if cp.TotalChunks != req.TotalChunks {
		s.logger.Info("checkpoint chunk plan mismatch, starting fresh",
			"stored", cp.TotalChunks, "current", req.TotalChunks)
		return nil, false
	}
	if cp.CompletedChunks < 0 || cp.CompletedChunks > cp.TotalChunks {
		s.logger.Warn("checkpoint progress out of range, starting fresh",
			"completed", cp.CompletedChunks, "total", cp.TotalChunks)
		return nil, false
	}

	info, err := os.Stat(s.outputPath)
	if err != nil {
		s.logger.Info("output file missing, starting fresh", "path", s.outputPath)
		return nil, false
	}
	if info.Size() != cp.OutputSizeBytes {
		s.logger.Info("output size does not match checkpoint, starting fresh",
			"file_bytes", info.Size(), "checkpoint_bytes", cp.OutputSizeBytes)
		return nil, false
	}

	if req.SourceHash != "" && cp.SourceHash != "" && cp.SourceHash != req.SourceHash {
		s.logger.Info("source file changed since checkpoint, starting fresh")
		return nil, false
	}

	return &cp, true
}

// Clear removes the checkpoint record. Missing files are fine.
func (s *Store) Clear() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove checkpoint: %w", err)
	}
	return nil
}

// SourceHash returns a fast content hash of the source file, or "" when the
// file cannot be read (the hash check is optional by contract).
func SourceHash(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return ""
	}
	return fmt.Sprintf("%016x", h.Sum64())
}
