package config

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// fingerprintLen is the number of hex characters kept from the digest.
const fingerprintLen = 8

// Fingerprint is a stable content-addressed digest over every setting that
// can change the resulting audio bytes. If any of these change, existing
// checkpoints are invalidated; scheduling knobs deliberately do not
// participate so sequential and parallel runs share checkpoints.
func (s Settings) Fingerprint() string {
	canonical := strings.Join([]string{
		"backend=" + s.Backend,
		"voice=" + s.Voice,
		fmt.Sprintf("speed=%.3f", s.Speed),
		fmt.Sprintf("sample_rate=%d", s.SampleRate),
		"format=" + strings.ToLower(s.Format),
		fmt.Sprintf("chunk_chars=%d", s.ChunkChars),
		"bitrate=" + s.Bitrate,
	}, "\n") + "\n"

	sum := sha256.Sum256([]byte(canonical))
	return fmt.Sprintf("%x", sum)[:fingerprintLen]
}
