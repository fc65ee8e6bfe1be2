package audio

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
)

// Containers the encoder can emit. Only wav grows by raw PCM appends; mp3
// grows by appending separately encoded batches, and m4a/m4b require a
// finalize pass over accumulated PCM.
const (
	FormatWAV = "wav"
	FormatMP3 = "mp3"
	FormatM4A = "m4a"
	FormatM4B = "m4b"
)

// SupportedFormat reports whether the container name is one the encoder emits.
func SupportedFormat(format string) bool {
	switch strings.ToLower(format) {
	case FormatWAV, FormatMP3, FormatM4A, FormatM4B:
		return true
	default:
		return false
	}
}

// StreamAppendable reports whether the container grows by raw byte appends
// without a finalize conversion (only WAV qualifies).
func StreamAppendable(format string) bool {
	return strings.ToLower(format) == FormatWAV
}

// Encoder converts accumulated WAV audio into compressed containers by
// shelling out to ffmpeg.
type Encoder struct {
	logger  *slog.Logger
	bitrate string
}

// EncoderConfig configures an Encoder.
type EncoderConfig struct {
	Logger  *slog.Logger
	Bitrate string // e.g. "192k"; applies to mp3/m4a/m4b
}

// NewEncoder creates an Encoder.
func NewEncoder(cfg EncoderConfig) *Encoder {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	bitrate := cfg.Bitrate
	if bitrate == "" {
		bitrate = "192k"
	}
	return &Encoder{
		logger:  logger.With("component", "encoder"),
		bitrate: bitrate,
	}
}

// Available checks that ffmpeg and ffprobe are on PATH.
func (e *Encoder) Available() error {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		return fmt.Errorf("ffprobe not found in PATH: %w", err)
	}
	return nil
}

// Convert transcodes inputWAV into outputPath in the target container.
func (e *Encoder) Convert(ctx context.Context, inputWAV, outputPath, format string) error {
	args := []string{"-i", inputWAV}
	switch strings.ToLower(format) {
	case FormatMP3:
		args = append(args, "-codec:a", "libmp3lame", "-b:a", e.bitrate)
	case FormatM4A, FormatM4B:
		args = append(args, "-codec:a", "aac", "-b:a", e.bitrate, "-f", "mp4")
	case FormatWAV:
		args = append(args, "-codec:a", "pcm_s16le")
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
	args = append(args, "-y", outputPath)

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg failed: %w\nOutput: %s", err, string(output))
	}
	e.logger.Debug("converted container", "input", inputWAV, "output", outputPath, "format", format)
	return nil
}

// EncodeBytes transcodes an in-memory WAV frame and returns the compressed
// container bytes. Used for the batched MP3 stream-append path.
func (e *Encoder) EncodeBytes(ctx context.Context, wav []byte, format string) ([]byte, error) {
	tmpIn, err := os.CreateTemp("", "reader-batch-*.wav")
	if err != nil {
		return nil, fmt.Errorf("create temp wav: %w", err)
	}
	defer os.Remove(tmpIn.Name())

	if _, err := tmpIn.Write(wav); err != nil {
		tmpIn.Close()
		return nil, fmt.Errorf("write temp wav: %w", err)
	}
	if err := tmpIn.Close(); err != nil {
		return nil, fmt.Errorf("close temp wav: %w", err)
	}

	tmpOut, err := os.CreateTemp("", "reader-batch-*."+format)
	if err != nil {
		return nil, fmt.Errorf("create temp output: %w", err)
	}
	tmpOut.Close()
	defer os.Remove(tmpOut.Name())

	if err := e.Convert(ctx, tmpIn.Name(), tmpOut.Name(), format); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(tmpOut.Name())
	if err != nil {
		return nil, fmt.Errorf("read encoded batch: %w", err)
	}
	return data, nil
}

// ProbeDurationMS returns the duration of an audio file in milliseconds via
// ffprobe.
func (e *Encoder) ProbeDurationMS(ctx context.Context, audioPath string) (int, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		audioPath,
	)

	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w", err)
	}

	var durationSec float64
	if _, err := fmt.Sscanf(strings.TrimSpace(string(output)), "%f", &durationSec); err != nil {
		return 0, fmt.Errorf("failed to parse duration: %w", err)
	}

	return int(durationSec * 1000), nil
}
