package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/reader/internal/audio"
	"github.com/jackzampolin/reader/internal/config"
	"github.com/jackzampolin/reader/internal/parse"
	"github.com/jackzampolin/reader/internal/pipeline"
)

var (
	convertOutput      string
	convertBackend     string
	convertVoice       string
	convertSpeed       float64
	convertFormat      string
	convertMode        string
	convertWorkers     int
	convertSensitivity float64
	convertContinue    bool
	convertChunkChars  int
	convertNoChapters  bool
)

var convertCmd = &cobra.Command{
	Use:   "convert <book.epub|book.txt>",
	Short: "Convert a book into a single audio file",
	Long: `Convert parses the input, filters non-narrative sections, chunks the
text, and streams synthesized audio to the output file. Interrupted runs
resume from the last checkpoint when re-invoked with the same settings.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sourcePath := args[0]
		logger := newLogger()

		_, mgr, err := loadEnv()
		if err != nil {
			return err
		}
		settings := applyConvertFlags(cmd, mgr.Settings())

		output := convertOutput
		if output == "" {
			stem := strings.TrimSuffix(sourcePath, filepath.Ext(sourcePath))
			output = stem + "." + strings.ToLower(settings.Format)
		}

		bk, err := parse.File(sourcePath)
		if err != nil {
			return err
		}
		logger.Info("parsed book", "title", bk.Title, "chapters", len(bk.Chapters))

		backend, err := selectBackend(buildRegistry(logger), settings)
		if err != nil {
			return err
		}

		orch, err := pipeline.New(pipeline.Config{
			Settings:    settings,
			Synthesizer: backend,
			Logger:      logger,
		})
		if err != nil {
			return err
		}

		started := time.Now()
		result, err := orch.Convert(cmd.Context(), pipeline.ConvertRequest{
			Book:       *bk,
			SourcePath: sourcePath,
			OutputPath: output,
		})
		if err != nil {
			if errors.Is(err, pipeline.ErrCancelled) {
				fmt.Println(err)
				return nil
			}
			return err
		}

		if !convertNoChapters && len(result.Markers) > 0 {
			if err := audio.WriteTags(result.OutputPath, settings.Format, bk.Title, bk.Author, result.Markers); err != nil {
				logger.Warn("failed to write chapter metadata", "error", err)
			}
		}

		fmt.Printf("Wrote %s (%d chunks, %s)\n", result.OutputPath, result.Stats.TotalChunks, time.Since(started).Round(time.Second))
		if result.Stats.Silences > 0 {
			fmt.Printf("  %d chunk(s) substituted with silence\n", result.Stats.Silences)
		}
		return nil
	},
}

// applyConvertFlags overlays explicitly-set flags on the loaded settings.
func applyConvertFlags(cmd *cobra.Command, s config.Settings) config.Settings {
	if cmd.Flags().Changed("backend") {
		s.Backend = convertBackend
	}
	if cmd.Flags().Changed("voice") {
		s.Voice = convertVoice
	}
	if cmd.Flags().Changed("speed") {
		s.Speed = convertSpeed
	}
	if cmd.Flags().Changed("format") {
		s.Format = convertFormat
	}
	if cmd.Flags().Changed("mode") {
		s.Mode = convertMode
	}
	if cmd.Flags().Changed("workers") {
		s.MaxWorkers = convertWorkers
	}
	if cmd.Flags().Changed("sensitivity") {
		s.Sensitivity = convertSensitivity
	}
	if cmd.Flags().Changed("continue-on-error") {
		s.ContinueOnError = convertContinue
	}
	if cmd.Flags().Changed("chunk-chars") {
		s.ChunkChars = convertChunkChars
	}
	return s
}

func init() {
	convertCmd.Flags().StringVarP(&convertOutput, "output", "o", "", "output file (default: input stem + format extension)")
	convertCmd.Flags().StringVar(&convertBackend, "backend", "", "TTS backend (openai, mock)")
	convertCmd.Flags().StringVar(&convertVoice, "voice", "", "voice identifier")
	convertCmd.Flags().Float64Var(&convertSpeed, "speed", 1.0, "speech rate multiplier")
	convertCmd.Flags().StringVar(&convertFormat, "format", "", "output container: wav, mp3, m4a, m4b")
	convertCmd.Flags().StringVar(&convertMode, "mode", "", "execution mode: sequential, parallel")
	convertCmd.Flags().IntVar(&convertWorkers, "workers", 0, "max workers in parallel mode")
	convertCmd.Flags().Float64Var(&convertSensitivity, "sensitivity", 0.5, "junk-filter sensitivity in [0,1]")
	convertCmd.Flags().BoolVar(&convertContinue, "continue-on-error", false, "substitute silence for chunks that fail all retries")
	convertCmd.Flags().IntVar(&convertChunkChars, "chunk-chars", 0, "max characters per synthesis fragment")
	convertCmd.Flags().BoolVar(&convertNoChapters, "no-chapters", false, "skip writing chapter markers to the output")
}
