package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/jackzampolin/reader/internal/config"
	"github.com/jackzampolin/reader/internal/synth"
)

// buildRegistry wires the available synthesizer backends. The mock backend
// is always present for dry runs; remote backends register when their
// credentials resolve.
func buildRegistry(logger *slog.Logger) *synth.Registry {
	reg := synth.NewRegistry(logger)
	reg.Register(synth.MockName, synth.NewMock())

	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		reg.Register(synth.OpenAIName, synth.NewOpenAI(synth.OpenAIConfig{APIKey: key}))
	}
	return reg
}

// selectBackend resolves the configured backend from the registry.
func selectBackend(reg *synth.Registry, settings config.Settings) (synth.Synthesizer, error) {
	s, err := reg.Get(settings.Backend)
	if err != nil {
		return nil, fmt.Errorf("backend %q unavailable (registered: %v): %w", settings.Backend, reg.List(), err)
	}
	return s, nil
}
