package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/reader/internal/synth"
)

var voicesCmd = &cobra.Command{
	Use:   "voices",
	Short: "List voices for the configured backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger()

		_, mgr, err := loadEnv()
		if err != nil {
			return err
		}

		backend, err := selectBackend(buildRegistry(logger), mgr.Settings())
		if err != nil {
			return err
		}

		lister, ok := backend.(synth.VoiceLister)
		if !ok {
			fmt.Printf("Backend %q does not expose a voice catalog\n", backend.Name())
			return nil
		}

		voices, err := lister.ListVoices(cmd.Context())
		if err != nil {
			return fmt.Errorf("list voices: %w", err)
		}
		for _, v := range voices {
			fmt.Println(v)
		}
		return nil
	},
}
