package batch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fmueller/voxbatch/internal/audio"
	"github.com/fmueller/voxbatch/internal/metrics"
)

// Transcriber is the capability the worker shares with the synchronous
// request path; the whisper guard implements it.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath, language string) (string, error)
}

const (
	// dequeueWait bounds how long the loop blocks before re-checking the
	// stop signal, which bounds Stop latency when the queue is idle.
	dequeueWait = time.Second
	// stopGracePeriod bounds how long Stop waits for the loop to exit.
	stopGracePeriod = 5 * time.Second
)

type procState int

const (
	procStopped procState = iota
	procRunning
	procStopping
)

// Options configures a Processor. Converter and Transcriber are required;
// everything else has a usable default.
type Options struct {
	Queue       *Store
	Converter   audio.Converter
	Transcriber Transcriber
	Metrics     *metrics.Set
	Logger      *zap.Logger

	DefaultSourceDir string
	DefaultOutputDir string

	// Now is the clock used for timing and transcript timestamps.
	Now func() time.Time
}

// Processor is the single background worker draining the work item store.
// One Processor runs per process; per-item failures are contained so the
// loop survives any number of consecutive bad files.
type Processor struct {
	queue       *Store
	converter   audio.Converter
	transcriber Transcriber
	metrics     *metrics.Set
	log         *zap.Logger
	stats       *Tracker
	now         func() time.Time

	defaultSourceDir string
	defaultOutputDir string

	mu      sync.Mutex
	state   procState
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewProcessor(opts Options) *Processor {
	if opts.Queue == nil {
		opts.Queue = NewStore()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.DefaultOutputDir == "" {
		opts.DefaultOutputDir = "./output"
	}
	if opts.DefaultSourceDir == "" {
		opts.DefaultSourceDir = "./audio_input"
	}

	return &Processor{
		queue:            opts.Queue,
		converter:        opts.Converter,
		transcriber:      opts.Transcriber,
		metrics:          opts.Metrics,
		log:              opts.Logger,
		stats:            NewTracker(),
		now:              opts.Now,
		defaultSourceDir: opts.DefaultSourceDir,
		defaultOutputDir: opts.DefaultOutputDir,
	}
}

// Queue exposes the underlying store for status reporting and tests.
func (p *Processor) Queue() *Store {
	return p.queue
}

// Start launches the worker goroutine. Calling Start while already running
// is a no-op.
func (p *Processor) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == procRunning {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	p.state = procRunning
	p.started = true

	go p.run(ctx, p.done)
	p.log.Info("queue processor started")
}

// Stop signals the loop to exit at its next wait boundary and waits up to
// the grace period for it to finish. An in-flight item always completes; a
// join that outlasts the grace period is logged and abandoned.
func (p *Processor) Stop() {
	p.mu.Lock()
	if p.state != procRunning {
		p.mu.Unlock()
		return
	}
	p.state = procStopping
	cancel := p.cancel
	done := p.done
	p.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-time.After(stopGracePeriod):
		p.log.Warn("queue processor did not stop within grace period; abandoning join")
	}

	p.mu.Lock()
	p.state = procStopped
	p.mu.Unlock()
	p.log.Info("queue processor stopped")
}

// Status returns the current snapshot. It fails with ErrNotStarted until the
// first Start call.
func (p *Processor) Status() (Snapshot, error) {
	p.mu.Lock()
	started := p.started
	running := p.state == procRunning
	p.mu.Unlock()

	if !started {
		return Snapshot{}, ErrNotStarted
	}

	snap := p.stats.Snapshot()
	snap.IsRunning = running
	snap.QueueSize = p.queue.Size()
	return snap, nil
}

func (p *Processor) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		if ctx.Err() != nil {
			return
		}

		item, ok := p.queue.TryDequeue(ctx, dequeueWait)
		if !ok {
			continue
		}

		p.processItem(ctx, item)
		p.observeQueueDepth()
	}
}

func (p *Processor) processItem(ctx context.Context, item WorkItem) {
	name := filepath.Base(item.SourcePath)
	started := p.now()

	p.stats.SetCurrent(name)
	defer p.stats.ClearCurrent()

	p.log.Info("processing file", zap.String("file", name))
	kind, err := p.handleItem(ctx, item)
	elapsed := p.now().Sub(started)

	if err != nil {
		p.stats.RecordFailure(elapsed)
		p.observeItem(kind, elapsed)
		p.log.Warn("failed to process file",
			zap.String("file", name),
			zap.String("kind", kind),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return
	}

	p.stats.RecordSuccess(elapsed)
	p.observeItem("success", elapsed)
	p.log.Info("processed file", zap.String("file", name), zap.Duration("elapsed", elapsed))
}

// handleItem runs the per-item pipeline and classifies any failure. A panic
// from the converter or engine is contained here; the loop must never die.
func (p *Processor) handleItem(ctx context.Context, item WorkItem) (kind string, err error) {
	defer func() {
		if r := recover(); r != nil {
			kind = kindInternal
			err = fmt.Errorf("panic while processing %s: %v", item.SourcePath, r)
		}
	}()

	wavPath, convErr := p.converter.ToCanonical(ctx, item.SourcePath)
	if convErr != nil {
		return kindConversionFailed, fmt.Errorf("convert to canonical wav: %w", convErr)
	}
	if strings.TrimSpace(wavPath) == "" {
		return kindConversionFailed, errors.New("converter returned no usable path")
	}

	// Queue items always use auto-detection; there is nobody to ask.
	text, trErr := p.transcriber.Transcribe(ctx, wavPath, "")
	if trErr != nil {
		return kindTranscriptionFailed, fmt.Errorf("transcribe: %w", trErr)
	}
	if strings.TrimSpace(text) == "" {
		return kindEmptyResult, errors.New("empty transcription result")
	}

	if wrErr := p.writeTranscript(item, text); wrErr != nil {
		return kindPersistFailed, wrErr
	}

	return "", nil
}

func (p *Processor) observeItem(outcome string, elapsed time.Duration) {
	if p.metrics == nil {
		return
	}
	p.metrics.ItemsProcessed.WithLabelValues(outcome).Inc()
	p.metrics.ProcessingDuration.Observe(elapsed.Seconds())
}

func (p *Processor) observeQueueDepth() {
	if p.metrics == nil {
		return
	}
	p.metrics.QueueDepth.Set(float64(p.queue.Size()))
}
