package synth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	// OpenAIName identifies the OpenAI backend in the registry.
	OpenAIName = "openai"

	openAIDefaultModel = openai.SpeechModelTTS1HD
	openAIDefaultVoice = "onyx"

	// openAIMaxInputChars is OpenAI's documented TTS input ceiling.
	openAIMaxInputChars = 4096

	// openAISampleRate is the native rate of OpenAI wav speech output.
	openAISampleRate = 24000
)

// OpenAIConfig holds configuration for the OpenAI TTS backend.
type OpenAIConfig struct {
	APIKey     string
	Model      string        // "tts-1-hd" (default), "tts-1", "gpt-4o-mini-tts"
	Voice      string        // "onyx" (default)
	RateLimit  int           // Requests per minute
	Timeout    time.Duration // HTTP timeout
	BaseURL    string        // Optional (tests)
	HTTPClient *http.Client  // Optional (tests)
}

// OpenAI implements Synthesizer against the OpenAI speech API, requesting
// WAV frames so the pipeline can extract PCM without transcoding.
type OpenAI struct {
	model   string
	voice   string
	limiter *RateLimiter
	client  openai.Client
}

// NewOpenAI creates an OpenAI synthesizer.
func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	if cfg.Model == "" {
		cfg.Model = openAIDefaultModel
	}
	if cfg.Voice == "" {
		cfg.Voice = openAIDefaultVoice
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 480 // ~8 rps
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 300 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAI{
		model:   cfg.Model,
		voice:   cfg.Voice,
		limiter: NewRateLimiter(cfg.RateLimit),
		client:  openai.NewClient(opts...),
	}
}

// Name returns the backend identifier.
func (o *OpenAI) Name() string {
	return OpenAIName
}

// MaxInputChars returns OpenAI's input ceiling.
func (o *OpenAI) MaxInputChars() int {
	return openAIMaxInputChars
}

// SampleRate returns the native wav output rate.
func (o *OpenAI) SampleRate() int {
	return openAISampleRate
}

// MaxConcurrency allows a handful of in-flight requests; the API is
// stateless per call.
func (o *OpenAI) MaxConcurrency() int {
	return 4
}

// HealthCheck verifies the API is reachable and the key is valid.
func (o *OpenAI) HealthCheck(ctx context.Context) error {
	page, err := o.client.Models.List(ctx)
	if err != nil {
		return fmt.Errorf("openai models list failed: %w", mapOpenAIError(err))
	}
	if page == nil {
		return fmt.Errorf("openai models list returned nil response")
	}
	return nil
}

// ListVoices returns the fixed OpenAI speech voice catalog.
func (o *OpenAI) ListVoices(ctx context.Context) ([]string, error) {
	return []string{"alloy", "ash", "coral", "echo", "fable", "nova", "onyx", "sage", "shimmer"}, nil
}

// Synthesize converts one text fragment to a WAV frame.
func (o *OpenAI) Synthesize(ctx context.Context, req *Request) (*Result, error) {
	start := time.Now()

	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, Fatal("text is required", nil)
	}
	if len([]rune(text)) > openAIMaxInputChars {
		return nil, OverLength(fmt.Sprintf("input of %d chars exceeds openai limit %d", len([]rune(text)), openAIMaxInputChars))
	}

	voice := strings.TrimSpace(req.Voice)
	if voice == "" {
		voice = o.voice
	}
	speed := req.Speed
	if speed <= 0 {
		speed = 1.0
	}

	if err := o.limiter.Wait(ctx); err != nil {
		return nil, &Error{Kind: KindCancelled, Message: "rate limiter wait interrupted", Err: err}
	}

	params := openai.AudioSpeechNewParams{
		Input:          text,
		Model:          openai.SpeechModel(o.model),
		Voice:          openai.AudioSpeechNewParamsVoice(voice),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatWAV,
		Speed:          openai.Float(speed),
	}

	resp, err := o.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return nil, mapOpenAIError(err)
	}
	defer resp.Body.Close()

	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, Transient("reading openai audio response", err)
	}

	return &Result{WAV: wav, ExecutionTime: time.Since(start)}, nil
}

// mapOpenAIError classifies SDK errors into the pipeline's error kinds.
func mapOpenAIError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindCancelled, Message: "openai request cancelled", Err: err}
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests:
			retryAfter := time.Duration(0)
			if apiErr.Response != nil {
				retryAfter = parseRetryAfter(apiErr.Response.Header.Get("Retry-After"))
			}
			return &Error{
				Kind:       KindTransient,
				Message:    fmt.Sprintf("openai rate limited: %s", apiErr.Message),
				RetryAfter: retryAfter,
				Err:        err,
			}
		case apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden:
			return Fatal(fmt.Sprintf("openai auth failed (status %d)", apiErr.StatusCode), err)
		case apiErr.StatusCode >= 500:
			return Transient(fmt.Sprintf("openai server error (status %d)", apiErr.StatusCode), err)
		case apiErr.StatusCode == http.StatusBadRequest && strings.Contains(strings.ToLower(apiErr.Message), "string too long"):
			return OverLength(apiErr.Message)
		default:
			return Fatal(fmt.Sprintf("openai error (status %d): %s", apiErr.StatusCode, apiErr.Message), err)
		}
	}
	return Transient("openai request failed", err)
}

// parseRetryAfter handles both delay-seconds and HTTP-date forms.
func parseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(value); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

var (
	_ Synthesizer         = (*OpenAI)(nil)
	_ VoiceLister         = (*OpenAI)(nil)
	_ HealthChecker       = (*OpenAI)(nil)
	_ ConcurrencyReporter = (*OpenAI)(nil)
)
