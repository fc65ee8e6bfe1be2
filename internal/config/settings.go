// Package config holds conversion settings, their on-disk representation,
// and the settings fingerprint that gates checkpoint compatibility.
package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"
)

// Execution modes for the orchestrator.
const (
	ModeSequential = "sequential"
	ModeParallel   = "parallel"
)

// Settings is every knob that shapes a conversion run. It is threaded
// explicitly into the orchestrator at construction; nothing reads global
// state.
type Settings struct {
	// Audio-affecting settings; all participate in the fingerprint.
	Backend    string  `mapstructure:"backend" yaml:"backend"`
	Voice      string  `mapstructure:"voice" yaml:"voice"`
	Speed      float64 `mapstructure:"speed" yaml:"speed"`
	SampleRate int     `mapstructure:"sample_rate" yaml:"sample_rate"`
	Format     string  `mapstructure:"format" yaml:"format"`
	ChunkChars int     `mapstructure:"chunk_chars" yaml:"chunk_chars"`
	Bitrate    string  `mapstructure:"bitrate" yaml:"bitrate"`

	// Content selection.
	Sensitivity float64 `mapstructure:"sensitivity" yaml:"sensitivity"`

	// Scheduling knobs; excluded from the fingerprint because they cannot
	// change output bytes.
	Mode               string        `mapstructure:"mode" yaml:"mode"`
	MaxWorkers         int           `mapstructure:"max_workers" yaml:"max_workers"`
	BatchChunks        int           `mapstructure:"batch_chunks" yaml:"batch_chunks"`
	CheckpointInterval int           `mapstructure:"checkpoint_interval" yaml:"checkpoint_interval"`
	MaxRetries         int           `mapstructure:"max_retries" yaml:"max_retries"`
	RetryDelay         time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
	ContinueOnError    bool          `mapstructure:"continue_on_error" yaml:"continue_on_error"`
	MaxCPUPercent      float64       `mapstructure:"max_cpu_percent" yaml:"max_cpu_percent"`
	ChunkDelay         time.Duration `mapstructure:"chunk_delay" yaml:"chunk_delay"`
}

// Default returns the settings a fresh install runs with.
func Default() Settings {
	return Settings{
		Backend:            "openai",
		Voice:              "",
		Speed:              1.0,
		SampleRate:         0, // adopt the backend's native rate
		Format:             "mp3",
		ChunkChars:         400,
		Bitrate:            "192k",
		Sensitivity:        0.5,
		Mode:               ModeSequential,
		MaxWorkers:         runtime.NumCPU(),
		BatchChunks:        4,
		CheckpointInterval: 25,
		MaxRetries:         3,
		RetryDelay:         2 * time.Second,
		ContinueOnError:    false,
		MaxCPUPercent:      75.0,
		ChunkDelay:         0,
	}
}

// Validate rejects settings combinations before any synthesis happens.
func (s Settings) Validate() error {
	if s.Backend == "" {
		return fmt.Errorf("backend is required")
	}
	if s.Speed < 0.25 || s.Speed > 4.0 {
		return fmt.Errorf("speed %.2f out of range [0.25, 4.0]", s.Speed)
	}
	switch strings.ToLower(s.Format) {
	case "wav", "mp3", "m4a", "m4b":
	default:
		return fmt.Errorf("unsupported output format: %s", s.Format)
	}
	if s.ChunkChars < 50 {
		return fmt.Errorf("chunk_chars %d too small; minimum 50", s.ChunkChars)
	}
	if s.Sensitivity < 0 || s.Sensitivity > 1 {
		return fmt.Errorf("sensitivity %.2f out of range [0, 1]", s.Sensitivity)
	}
	switch s.Mode {
	case ModeSequential, ModeParallel:
	default:
		return fmt.Errorf("mode must be %q or %q", ModeSequential, ModeParallel)
	}
	if s.Mode == ModeParallel && s.MaxWorkers < 1 {
		return fmt.Errorf("max_workers must be at least 1 in parallel mode")
	}
	return nil
}
