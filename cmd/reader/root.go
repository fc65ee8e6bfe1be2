package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/reader/internal/config"
	"github.com/jackzampolin/reader/internal/home"
	"github.com/jackzampolin/reader/version"
)

var (
	cfgFile  string
	homeDir  string
	logLevel string
)

// ParseLogLevel converts a string log level to slog.Level.
// Supports: debug, info, warn, error (case-insensitive).
func ParseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level %q: must be debug, info, warn, or error", level)
	}
}

// GetLogLevel returns the configured log level, checking:
// 1. CLI flag (--log-level)
// 2. Environment variable (READER_LOG_LEVEL)
// 3. Default (info)
func GetLogLevel() slog.Level {
	level := logLevel
	if level == "" {
		level = os.Getenv("READER_LOG_LEVEL")
	}
	if level == "" {
		level = "info"
	}

	parsed, err := ParseLogLevel(level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v, using info\n", err)
		return slog.LevelInfo
	}
	return parsed
}

// newLogger builds the process logger at the configured level.
func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: GetLogLevel()}))
}

// loadEnv resolves the home directory and configuration for a command.
func loadEnv() (*home.Dir, *config.Manager, error) {
	h, err := home.New(homeDir)
	if err != nil {
		return nil, nil, err
	}
	if err := h.EnsureExists(); err != nil {
		return nil, nil, err
	}
	if cfgFile == "" && !h.ConfigExists() {
		if err := config.WriteDefault(h.ConfigPath()); err != nil {
			return nil, nil, err
		}
	}
	mgr, err := config.NewManager(cfgFile, h)
	if err != nil {
		return nil, nil, err
	}
	return h, mgr, nil
}

var rootCmd = &cobra.Command{
	Use:   "reader",
	Short: "Convert books to audiobooks with a neural TTS backend",
	Long: `Reader converts long-form written works into a single continuous audio
file by orchestrating a text-to-speech backend across many small text
fragments and streaming the synthesized audio to disk.

The pipeline includes:
  - Multi-signal filtering of non-narrative sections (copyright, TOC, index)
  - Chapter recovery from flat page-based text
  - Sentence-aware chunking sized to the TTS backend
  - Resumable checkpoints keyed by a settings fingerprint
  - Adaptive CPU backpressure in parallel mode`,
	Version: version.GitRelease,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $HOME/.reader/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&homeDir, "home", "", "home directory (default $HOME/.reader)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")

	rootCmd.AddCommand(convertCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(voicesCmd)
	rootCmd.AddCommand(versionCmd)
}
