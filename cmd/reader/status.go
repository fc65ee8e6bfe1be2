package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/reader/internal/checkpoint"
)

var statusCmd = &cobra.Command{
	Use:   "status <output-file>",
	Short: "Show checkpoint progress for an output file",
	Long: `Status reads the checkpoint record next to the output file and reports
conversion progress. A torn or missing record reads as "no checkpoint";
this command never modifies anything.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := checkpoint.PathFor(args[0])

		data, err := os.ReadFile(path)
		if err != nil {
			// m4a/m4b runs stream PCM into a sibling .pcm.wav and checkpoint that.
			stem := strings.TrimSuffix(args[0], filepath.Ext(args[0]))
			data, err = os.ReadFile(checkpoint.PathFor(stem + ".pcm.wav"))
		}
		if err != nil {
			fmt.Printf("No checkpoint for %s\n", args[0])
			return nil
		}

		var cp checkpoint.Checkpoint
		if err := json.Unmarshal(data, &cp); err != nil {
			// Torn writes are expected while a run is in flight.
			fmt.Printf("No checkpoint for %s (unreadable record)\n", args[0])
			return nil
		}

		fmt.Printf("Source:      %s\n", cp.SourcePath)
		fmt.Printf("Progress:    %d/%d chunks (%.1f%%)\n", cp.CompletedChunks, cp.TotalChunks, cp.ProgressPercent())
		fmt.Printf("Output size: %.1f MB\n", float64(cp.OutputSizeBytes)/(1024*1024))
		fmt.Printf("Fingerprint: %s\n", cp.SettingsFingerprint)
		fmt.Printf("Saved:       %s\n", time.Unix(cp.Timestamp, 0).Format(time.RFC3339))
		return nil
	},
}
