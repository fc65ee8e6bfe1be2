package config

import (
	"regexp"
	"testing"
)

func TestFingerprint_Stable(t *testing.T) {
	s := Default()
	first := s.Fingerprint()
	second := s.Fingerprint()
	if first != second {
		t.Fatalf("fingerprint not stable: %s vs %s", first, second)
	}
	if !regexp.MustCompile(`^[0-9a-f]{8}$`).MatchString(first) {
		t.Fatalf("fingerprint not 8 hex chars: %q", first)
	}
}

func TestFingerprint_AudioSettingsParticipate(t *testing.T) {
	base := Default()

	mutations := []func(*Settings){
		func(s *Settings) { s.Backend = "mock" },
		func(s *Settings) { s.Voice = "af_nicole" },
		func(s *Settings) { s.Speed = 1.1 },
		func(s *Settings) { s.SampleRate = 22050 },
		func(s *Settings) { s.Format = "wav" },
		func(s *Settings) { s.ChunkChars = 800 },
		func(s *Settings) { s.Bitrate = "128k" },
	}
	for i, mutate := range mutations {
		s := Default()
		mutate(&s)
		if s.Fingerprint() == base.Fingerprint() {
			t.Fatalf("mutation %d did not change the fingerprint", i)
		}
	}
}

func TestFingerprint_SchedulingKnobsExcluded(t *testing.T) {
	base := Default()

	s := Default()
	s.Mode = ModeParallel
	s.MaxWorkers = 16
	s.CheckpointInterval = 5
	s.MaxRetries = 9
	s.ContinueOnError = true
	s.MaxCPUPercent = 50

	if s.Fingerprint() != base.Fingerprint() {
		t.Fatalf("scheduling knobs must not invalidate checkpoints")
	}
}

func TestValidate(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}

	bad := []func(*Settings){
		func(s *Settings) { s.Backend = "" },
		func(s *Settings) { s.Speed = 0.1 },
		func(s *Settings) { s.Speed = 5.0 },
		func(s *Settings) { s.Format = "ogg" },
		func(s *Settings) { s.ChunkChars = 10 },
		func(s *Settings) { s.Sensitivity = 1.5 },
		func(s *Settings) { s.Mode = "turbo" },
		func(s *Settings) { s.Mode = ModeParallel; s.MaxWorkers = 0 },
	}
	for i, mutate := range bad {
		s := Default()
		mutate(&s)
		if err := s.Validate(); err == nil {
			t.Fatalf("mutation %d should fail validation", i)
		}
	}
}
