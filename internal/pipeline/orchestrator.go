// Package pipeline drives book-to-audio conversion: planning, synthesis,
// incremental output, checkpointing, backpressure, and final encoding.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	retry "github.com/avast/retry-go/v4"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jackzampolin/reader/internal/audio"
	"github.com/jackzampolin/reader/internal/book"
	"github.com/jackzampolin/reader/internal/checkpoint"
	"github.com/jackzampolin/reader/internal/classify"
	"github.com/jackzampolin/reader/internal/config"
	"github.com/jackzampolin/reader/internal/headings"
	"github.com/jackzampolin/reader/internal/synth"
	"github.com/jackzampolin/reader/internal/sysload"
	"github.com/jackzampolin/reader/internal/textproc"
)

// silenceDuration is the audio substituted for blank or unrecoverable
// chunks, keeping the chunk-index-to-time mapping monotonic.
const silenceDuration = 100 * time.Millisecond

// ErrCancelled is returned when the caller's context ends a run. The output
// file is left as a valid prefix behind a fresh checkpoint.
var ErrCancelled = errors.New("conversion cancelled")

// Config assembles an Orchestrator.
type Config struct {
	Settings    config.Settings
	Synthesizer synth.Synthesizer
	Encoder     *audio.Encoder
	Sampler     sysload.Sampler
	Logger      *slog.Logger
}

// Orchestrator owns the conversion lifecycle end to end. Construct once per
// settings value; Convert may be called repeatedly.
type Orchestrator struct {
	settings   config.Settings
	synth      synth.Synthesizer
	enc        *audio.Encoder
	sampler    sysload.Sampler
	classifier *classify.Classifier
	detector   *headings.Detector
	logger     *slog.Logger

	// serializeSynth guards backends that do not declare concurrency
	// support; text prep and encoding still parallelize around the lock.
	serializeSynth bool
	synthMu        sync.Mutex
}

// ConvertRequest names the input book, its source file (for checkpoint
// keying; optional), and the output target.
type ConvertRequest struct {
	Book       book.ParsedBook
	SourcePath string
	OutputPath string
}

// Stats summarizes a completed run for operator visibility.
type Stats struct {
	TotalChunks      int
	StartChunk       int
	Silences         int
	Retries          int
	WorkerReductions int
	WorkerRecoveries int
	OutputBytes      int64
}

// ConvertResult is what a successful conversion produced. Markers is nil on
// resumed runs, where per-chunk durations of already-written audio are
// unknown.
type ConvertResult struct {
	OutputPath string
	Markers    []audio.Marker
	Stats      Stats
}

// New creates an Orchestrator. Settings are validated here so input errors
// surface before any synthesis or output exists.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Synthesizer == nil {
		return nil, fmt.Errorf("synthesizer is required")
	}
	if err := cfg.Settings.Validate(); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	enc := cfg.Encoder
	if enc == nil {
		enc = audio.NewEncoder(audio.EncoderConfig{Logger: logger, Bitrate: cfg.Settings.Bitrate})
	}
	sampler := cfg.Sampler
	if sampler == nil {
		sampler = sysload.NewHostSampler()
	}

	return &Orchestrator{
		settings:       cfg.Settings,
		synth:          cfg.Synthesizer,
		enc:            enc,
		sampler:        sampler,
		classifier:     classify.New(),
		detector:       headings.New(),
		logger:         logger.With("component", "pipeline"),
		serializeSynth: synth.MaxConcurrencyOf(cfg.Synthesizer) <= 1,
	}, nil
}

// runState carries the mutable state of one Convert call.
type runState struct {
	writer      *streamWriter
	store       *checkpoint.Store
	req         ConvertRequest
	fingerprint string
	sourceHash  string
	total       int
	lastSaved   int
	format      audio.Format
	durations   []time.Duration
	logger      *slog.Logger

	silences   atomic.Int64
	retries    atomic.Int64
	reductions int
	recoveries int
}

// Convert produces the final encoded artifact, blocking until done or an
// unrecoverable error surfaces. A prior compatible checkpoint resumes the
// run; otherwise any partial output is truncated and rebuilt.
func (o *Orchestrator) Convert(ctx context.Context, req ConvertRequest) (*ConvertResult, error) {
	if req.OutputPath == "" {
		return nil, fmt.Errorf("output path is required")
	}

	runID := uuid.NewString()[:8]
	logger := o.logger.With("run", runID, "book", req.Book.Title)

	planned, err := o.plan(req.Book)
	if err != nil {
		return nil, err
	}
	total := planned.Plan.TotalChunks()

	// The backend's native rate is authoritative; a configured rate exists
	// to catch config/backend disagreement before hours of synthesis.
	rate := o.synth.SampleRate()
	if o.settings.SampleRate != 0 && o.settings.SampleRate != rate {
		return nil, fmt.Errorf("configured sample rate %d does not match backend native rate %d", o.settings.SampleRate, rate)
	}
	sfmt := audio.Mono16(rate)

	if hc, ok := o.synth.(synth.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return nil, fmt.Errorf("synthesizer health check failed: %w", err)
		}
	}

	container := strings.ToLower(o.settings.Format)
	streamPath := req.OutputPath
	streamContainer := container
	if !audio.StreamAppendable(container) && container != audio.FormatMP3 {
		// m4a/m4b cannot grow by appends; accumulate PCM in a sibling wav
		// and encode the container in one finalize pass.
		streamPath = strings.TrimSuffix(req.OutputPath, filepath.Ext(req.OutputPath)) + ".pcm.wav"
		streamContainer = audio.FormatWAV
	}

	fingerprint := o.settings.Fingerprint()
	store := checkpoint.NewStore(streamPath, logger)
	sourceHash := ""
	if req.SourcePath != "" {
		sourceHash = checkpoint.SourceHash(req.SourcePath)
	}

	w := newStreamWriter(streamPath, streamContainer, sfmt, o.enc, o.settings.BatchChunks, logger)

	start := 0
	cp, resumed := store.Load(checkpoint.Requirements{
		SourcePath:  req.SourcePath,
		SourceHash:  sourceHash,
		Fingerprint: fingerprint,
		TotalChunks: total,
	})
	if resumed {
		start = cp.CompletedChunks
		if err := w.openAppend(cp.OutputSizeBytes, cp.CompletedChunks); err != nil {
			return nil, err
		}
		logger.Info("resuming from checkpoint",
			"completed", start, "total", total, "output_bytes", cp.OutputSizeBytes)
	} else {
		if err := w.openFresh(); err != nil {
			return nil, err
		}
	}
	defer w.close()

	st := &runState{
		writer:      w,
		store:       store,
		req:         req,
		fingerprint: fingerprint,
		sourceHash:  sourceHash,
		total:       total,
		lastSaved:   start,
		format:      sfmt,
		durations:   make([]time.Duration, total),
		logger:      logger,
	}

	if o.settings.Mode == config.ModeParallel {
		err = o.runParallel(ctx, planned, st, start)
	} else {
		err = o.runSequential(ctx, planned, st, start)
	}
	if err != nil {
		return nil, err
	}

	if err := w.finalize(ctx); err != nil {
		return nil, fmt.Errorf("finalize output: %w", err)
	}

	if streamPath != req.OutputPath {
		if err := o.enc.Convert(ctx, streamPath, req.OutputPath, container); err != nil {
			return nil, fmt.Errorf("encode final container: %w", err)
		}
		if err := os.Remove(streamPath); err != nil {
			logger.Warn("failed to remove intermediate pcm stream", "path", streamPath, "error", err)
		}
	}

	if err := store.Clear(); err != nil {
		logger.Warn("failed to clear checkpoint", "error", err)
	}

	var markers []audio.Marker
	if start == 0 {
		markers = st.buildMarkers(planned)
	}

	outInfo, _ := os.Stat(req.OutputPath)
	var outBytes int64
	if outInfo != nil {
		outBytes = outInfo.Size()
	}

	logger.Info("conversion complete",
		"output", req.OutputPath,
		"chunks", total,
		"resumed_from", start,
		"silences", st.silences.Load(),
		"retries", st.retries.Load())

	return &ConvertResult{
		OutputPath: req.OutputPath,
		Markers:    markers,
		Stats: Stats{
			TotalChunks:      total,
			StartChunk:       start,
			Silences:         int(st.silences.Load()),
			Retries:          int(st.retries.Load()),
			WorkerReductions: st.reductions,
			WorkerRecoveries: st.recoveries,
			OutputBytes:      outBytes,
		},
	}, nil
}

// --- Sequential mode ---

func (o *Orchestrator) runSequential(ctx context.Context, planned *plannedBook, st *runState, start int) error {
	bp := newBackpressure(o.sampler, o.settings.MaxCPUPercent, 1, st.logger)
	chunks := planned.Plan.Chunks

	for i := start; i < st.total; i++ {
		if ctx.Err() != nil {
			return o.cancelRun(ctx, st, i)
		}

		pcm, err := o.produceChunk(ctx, chunks[i], st)
		if err != nil {
			return o.failChunk(ctx, st, i, err)
		}

		if err := st.writer.writeChunk(ctx, pcm); err != nil {
			st.save()
			return fmt.Errorf("writing chunk %d: %w", i, err)
		}
		st.durations[i] = st.format.Duration(len(pcm))
		st.maybeCheckpoint(o.settings.CheckpointInterval)

		if i+1 < st.total {
			bp.betweenChunks(ctx)
			if o.settings.ChunkDelay > 0 {
				sleep(ctx, o.settings.ChunkDelay)
			}
		}
	}
	return nil
}

// --- Parallel mode ---

func (o *Orchestrator) runParallel(ctx context.Context, planned *plannedBook, st *runState, start int) error {
	bp := newBackpressure(o.sampler, o.settings.MaxCPUPercent, o.settings.MaxWorkers, st.logger)
	chunks := planned.Plan.Chunks

	i := start
	for i < st.total {
		if ctx.Err() != nil {
			return o.cancelRun(ctx, st, i)
		}

		workers := bp.workers
		batch := o.settings.BatchChunks * workers
		if batch < workers {
			batch = workers
		}
		if i+batch > st.total {
			batch = st.total - i
		}

		results := make([][]byte, batch)
		errs := make([]error, batch)
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(workers)
		for j := 0; j < batch; j++ {
			g.Go(func() error {
				pcm, err := o.produceChunk(gctx, chunks[i+j], st)
				if err != nil {
					errs[j] = err
					return err
				}
				results[j] = pcm
				return nil
			})
		}
		groupErr := g.Wait()

		// Write the contiguous prefix of completed chunks in index order;
		// anything past the first failure is discarded and re-synthesized
		// on resume.
		wrote := 0
		for j := 0; j < batch; j++ {
			if errs[j] != nil || results[j] == nil {
				break
			}
			if err := st.writer.writeChunk(ctx, results[j]); err != nil {
				st.save()
				return fmt.Errorf("writing chunk %d: %w", i+j, err)
			}
			st.durations[i+j] = st.format.Duration(len(results[j]))
			wrote++
		}
		st.maybeCheckpoint(o.settings.CheckpointInterval)

		if groupErr != nil {
			failed := i + wrote
			for j := wrote; j < batch; j++ {
				if errs[j] != nil {
					failed = i + j
					break
				}
			}
			return o.failChunk(ctx, st, failed, groupErr)
		}

		i += batch
		if i < st.total {
			bp.afterBatch(ctx)
		}
	}

	st.reductions = bp.reductions
	st.recoveries = bp.recoveries
	return nil
}

// --- Chunk production ---

// produceChunk yields the PCM bytes for one chunk: silence for blank text,
// synthesized audio otherwise, with retry, shrink-on-over-length, and the
// continue_on_error policy applied.
func (o *Orchestrator) produceChunk(ctx context.Context, chunk textproc.Chunk, st *runState) ([]byte, error) {
	if strings.TrimSpace(chunk.Text) == "" {
		st.silences.Add(1)
		return audio.Silence(st.format, silenceDuration), nil
	}

	pcm, err := o.synthesizeWithRetry(ctx, chunk.Text, st)
	if err == nil {
		return pcm, nil
	}

	switch synth.KindOf(err) {
	case synth.KindCancelled:
		return nil, err
	case synth.KindOverLength:
		// A chunk over the backend budget is a chunker bug; shrink and retry
		// at a tighter cap before giving up.
		if pcm, serr := o.synthesizeShrunk(ctx, chunk.Text, st); serr == nil {
			return pcm, nil
		}
		st.logger.Warn("chunk over length even after shrink, substituting silence", "chunk", chunk.Index)
		st.silences.Add(1)
		return audio.Silence(st.format, silenceDuration), nil
	default:
		if o.settings.ContinueOnError {
			st.logger.Warn("chunk failed after retries, substituting silence",
				"chunk", chunk.Index, "error", err)
			st.silences.Add(1)
			return audio.Silence(st.format, silenceDuration), nil
		}
		return nil, err
	}
}

func (o *Orchestrator) synthesizeWithRetry(ctx context.Context, text string, st *runState) ([]byte, error) {
	var pcm []byte
	attempts := uint(o.settings.MaxRetries) + 1

	err := retry.Do(
		func() error {
			res, err := o.callSynth(ctx, text)
			if err != nil {
				return err
			}
			p, f, err := audio.ExtractPCM(res.WAV)
			if err != nil {
				return synth.Fatal("backend returned malformed wav", err)
			}
			if f != st.format {
				return synth.Fatal(fmt.Sprintf("backend produced %dHz/%dch/%dbit, run expects %dHz/%dch/%dbit",
					f.SampleRate, f.Channels, f.BitsPerSample,
					st.format.SampleRate, st.format.Channels, st.format.BitsPerSample), nil)
			}
			pcm = p
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(o.settings.RetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.MaxDelay(30*time.Second),
		retry.RetryIf(synth.IsRetryable),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			st.retries.Add(1)
			st.logger.Warn("synthesis failed, retrying", "attempt", n+1, "error", err)
		}),
	)
	return pcm, err
}

// callSynth serializes the backend call when the backend has not declared
// itself safe for concurrent use.
func (o *Orchestrator) callSynth(ctx context.Context, text string) (*synth.Result, error) {
	if o.serializeSynth {
		o.synthMu.Lock()
		defer o.synthMu.Unlock()
	}
	return o.synth.Synthesize(ctx, &synth.Request{
		Text:  text,
		Voice: o.settings.Voice,
		Speed: o.settings.Speed,
	})
}

// synthesizeShrunk re-splits an over-length fragment at half the configured
// cap and concatenates the parts' PCM.
func (o *Orchestrator) synthesizeShrunk(ctx context.Context, text string, st *runState) ([]byte, error) {
	tighter := o.settings.ChunkChars / 2
	if tighter < 50 {
		tighter = 50
	}
	parts := textproc.NewChunker(tighter).Split(text)
	if len(parts) <= 1 {
		return nil, synth.OverLength("fragment does not shrink further")
	}

	var out []byte
	for _, part := range parts {
		pcm, err := o.synthesizeWithRetry(ctx, part, st)
		if err != nil {
			return nil, err
		}
		out = append(out, pcm...)
	}
	return out, nil
}

// --- Failure and cancellation paths ---

// cancelRun flushes complete pending chunks, writes a final checkpoint, and
// returns the cancelled terminal state. No partial chunk bytes ever reach
// the output.
func (o *Orchestrator) cancelRun(ctx context.Context, st *runState, idx int) error {
	flushCtx := context.WithoutCancel(ctx)
	if err := st.writer.flush(flushCtx); err != nil {
		st.logger.Warn("flush on cancel failed", "error", err)
	}
	st.save()
	return fmt.Errorf("%w at chunk %d of %d; rerun with the same settings to resume", ErrCancelled, idx, st.total)
}

// failChunk handles an unrecoverable chunk error: checkpoint what is on
// disk and surface a failure naming the chunk and the resume point.
func (o *Orchestrator) failChunk(ctx context.Context, st *runState, idx int, err error) error {
	if synth.KindOf(err) == synth.KindCancelled {
		return o.cancelRun(ctx, st, idx)
	}
	flushCtx := context.WithoutCancel(ctx)
	if ferr := st.writer.flush(flushCtx); ferr != nil {
		st.logger.Warn("flush on failure failed", "error", ferr)
	}
	st.save()
	// Non-retryable errors stop after the first attempt.
	attempts := 1
	if synth.IsRetryable(err) {
		attempts = o.settings.MaxRetries + 1
	}
	return fmt.Errorf("chunk %d failed after %d attempts: %w; rerun with the same settings to resume from chunk %d",
		idx, attempts, err, st.writer.flushedChunks)
}

// --- Checkpointing ---

// maybeCheckpoint saves when at least interval chunks reached disk since the
// last save.
func (st *runState) maybeCheckpoint(interval int) {
	if interval <= 0 {
		interval = 25
	}
	if st.writer.flushedChunks-st.lastSaved < interval {
		return
	}
	st.save()
}

// save writes a checkpoint matching exactly what is on disk. Write failures
// are logged and the run continues; the output file is the ground truth.
func (st *runState) save() {
	cp := checkpoint.Checkpoint{
		SourcePath:          st.req.SourcePath,
		SourceHash:          st.sourceHash,
		TotalChunks:         st.total,
		CompletedChunks:     st.writer.flushedChunks,
		OutputSizeBytes:     st.writer.size,
		SettingsFingerprint: st.fingerprint,
	}
	if err := st.store.Save(cp); err != nil {
		st.logger.Warn("checkpoint write failed, continuing", "error", err)
		return
	}
	st.lastSaved = st.writer.flushedChunks
}

// --- Chapter markers ---

// buildMarkers derives chapter marker offsets from the cumulative duration
// of prior chunks. Only meaningful when every chunk was synthesized in this
// run, so resumed runs return no markers.
func (st *runState) buildMarkers(planned *plannedBook) []audio.Marker {
	plan := planned.Plan
	if len(plan.Titles) == 0 || len(plan.Chunks) == 0 {
		return nil
	}

	var markers []audio.Marker
	var cum time.Duration
	current := -1
	for i, d := range st.durations {
		ci := plan.ChapterOf[i]
		if ci != current {
			markers = append(markers, audio.Marker{Title: plan.Titles[ci], Start: cum})
			current = ci
		}
		cum += d
	}
	for k := range markers {
		if k+1 < len(markers) {
			markers[k].End = markers[k+1].Start
		} else {
			markers[k].End = cum
		}
	}
	return markers
}
