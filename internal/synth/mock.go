package synth

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackzampolin/reader/internal/audio"
)

// MockName identifies the mock backend in the registry.
const MockName = "mock"

// Mock is a deterministic Synthesizer for tests and dry runs. Audio is a
// function of the input text alone: each character yields a fixed number of
// samples of a triangle wave seeded by the character value, so two runs over
// the same text produce byte-identical output.
type Mock struct {
	// Configurable behavior
	Rate          int           // Sample rate (default 24000)
	CharsPerSec   int           // Speaking pace driving samples per char (default 15)
	MaxChars      int           // Input ceiling (default 4096)
	Latency       time.Duration // Artificial delay per call
	FailChunks    map[string]int // text -> remaining failures to inject
	FailKind      Kind           // kind of injected failures (default KindTransient)

	mu           sync.Mutex
	requestCount atomic.Int64
}

// NewMock creates a mock backend with sensible defaults.
func NewMock() *Mock {
	return &Mock{
		Rate:        24000,
		CharsPerSec: 15,
		MaxChars:    4096,
	}
}

// Name returns the backend identifier.
func (m *Mock) Name() string {
	return MockName
}

// MaxInputChars returns the configured ceiling.
func (m *Mock) MaxInputChars() int {
	if m.MaxChars <= 0 {
		return 4096
	}
	return m.MaxChars
}

// SampleRate returns the configured rate.
func (m *Mock) SampleRate() int {
	if m.Rate <= 0 {
		return 24000
	}
	return m.Rate
}

// MaxConcurrency marks the mock as safe for parallel use.
func (m *Mock) MaxConcurrency() int {
	return 8
}

// RequestCount returns how many synthesis calls were made.
func (m *Mock) RequestCount() int64 {
	return m.requestCount.Load()
}

// FailNext schedules the next n calls for the exact text to fail with kind.
func (m *Mock) FailNext(text string, n int, kind Kind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailChunks == nil {
		m.FailChunks = make(map[string]int)
	}
	m.FailChunks[text] = n
	m.FailKind = kind
}

// ListVoices returns a small fixed catalog.
func (m *Mock) ListVoices(ctx context.Context) ([]string, error) {
	return []string{"af_sarah", "af_nicole", "am_adam"}, nil
}

// Synthesize produces a deterministic WAV frame for the text.
func (m *Mock) Synthesize(ctx context.Context, req *Request) (*Result, error) {
	start := time.Now()
	m.requestCount.Add(1)

	if err := ctx.Err(); err != nil {
		return nil, &Error{Kind: KindCancelled, Message: "mock cancelled", Err: err}
	}
	if m.Latency > 0 {
		select {
		case <-ctx.Done():
			return nil, &Error{Kind: KindCancelled, Message: "mock cancelled", Err: ctx.Err()}
		case <-time.After(m.Latency):
		}
	}

	if len([]rune(req.Text)) > m.MaxInputChars() {
		return nil, OverLength(fmt.Sprintf("input of %d chars exceeds mock limit %d", len([]rune(req.Text)), m.MaxInputChars()))
	}

	m.mu.Lock()
	if remaining, ok := m.FailChunks[req.Text]; ok && remaining > 0 {
		m.FailChunks[req.Text] = remaining - 1
		kind := m.FailKind
		m.mu.Unlock()
		return nil, &Error{Kind: kind, Message: "injected mock failure"}
	}
	m.mu.Unlock()

	pcm := m.renderPCM(req.Text, req.Speed)
	return &Result{
		WAV:           audio.WrapPCM(audio.Mono16(m.SampleRate()), pcm),
		ExecutionTime: time.Since(start),
	}, nil
}

// renderPCM generates samplesPerChar triangle-wave samples per input byte.
// Speed scales the per-char duration the way a real engine talks faster.
func (m *Mock) renderPCM(text string, speed float64) []byte {
	if speed <= 0 {
		speed = 1.0
	}
	samplesPerChar := int(float64(m.SampleRate()) / (float64(m.charsPerSec()) * speed))
	if samplesPerChar < 1 {
		samplesPerChar = 1
	}

	pcm := make([]byte, 0, len(text)*samplesPerChar*2)
	var sample [2]byte
	for i := 0; i < len(text); i++ {
		amp := int16(int(text[i])%64) * 128
		for s := 0; s < samplesPerChar; s++ {
			// Triangle ramp, period 32 samples.
			phase := int16(s % 32)
			if phase > 16 {
				phase = 32 - phase
			}
			v := amp / 16 * phase
			binary.LittleEndian.PutUint16(sample[:], uint16(v))
			pcm = append(pcm, sample[0], sample[1])
		}
	}
	return pcm
}

func (m *Mock) charsPerSec() int {
	if m.CharsPerSec <= 0 {
		return 15
	}
	return m.CharsPerSec
}

var (
	_ Synthesizer         = (*Mock)(nil)
	_ VoiceLister         = (*Mock)(nil)
	_ ConcurrencyReporter = (*Mock)(nil)
)
