package whisper

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrUnavailable is returned when the shared engine could not be initialized.
var ErrUnavailable = errors.New("transcription engine unavailable")

// LoadFunc performs the expensive one-time initialization: locating the
// whisper binary and resolving (possibly downloading) the model file.
type LoadFunc func(ctx context.Context) (Engine, string, error)

type guardState int

const (
	stateUninitialized guardState = iota
	stateInitializing
	stateReady
	stateFailed
)

// GuardStats reports the guard's own inference-layer counters. Errors here
// count failed engine invocations, which is distinct from the batch worker's
// per-item failure count (an item can fail before the engine is ever called).
type GuardStats struct {
	ModelLoaded    bool    `json:"model_loaded"`
	ModelPath      string  `json:"model_path,omitempty"`
	TotalProcessed int64   `json:"total_processed"`
	TotalTime      float64 `json:"total_time"`
	AverageTime    float64 `json:"average_time"`
	Errors         int64   `json:"errors"`
}

// Guard owns the shared transcription engine. Initialization happens lazily,
// at most once at a time, with concurrent callers waiting on the in-flight
// attempt instead of starting their own. A failed attempt is not cached: the
// next access retries, so transient failures heal without a restart.
//
// The engine itself is not known to be reentrant, so Guard also serializes
// the inference call. The batch worker and synchronous HTTP requests share
// one Guard and therefore never run whisper concurrently.
type Guard struct {
	loadFn LoadFunc
	log    *zap.Logger

	mu        sync.Mutex
	state     guardState
	done      chan struct{}
	engine    Engine
	modelPath string
	loadErr   error

	inferMu sync.Mutex

	statsMu      sync.Mutex
	processed    int64
	totalSeconds float64
	errorCount   int64
}

func NewGuard(loadFn LoadFunc, logger *zap.Logger) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guard{loadFn: loadFn, log: logger}
}

// IsReady reports whether the engine is loaded. When no initialization has
// been attempted yet it kicks one off in the background and returns false;
// callers that need to wait use EnsureLoaded.
func (g *Guard) IsReady() bool {
	g.mu.Lock()
	switch g.state {
	case stateReady:
		g.mu.Unlock()
		return true
	case stateInitializing:
		g.mu.Unlock()
		return false
	}

	done := g.beginLoadLocked()
	g.mu.Unlock()

	go func() {
		g.load(context.Background(), done)
	}()
	return false
}

// EnsureLoaded blocks until the engine reaches ready or the current attempt
// fails. If the previous attempt failed, a fresh one is started. Returns true
// only when the engine is ready.
func (g *Guard) EnsureLoaded(ctx context.Context) bool {
	g.mu.Lock()
	switch g.state {
	case stateReady:
		g.mu.Unlock()
		return true

	case stateInitializing:
		done := g.done
		g.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return false
		}

	default: // uninitialized, or failed and due for a retry
		done := g.beginLoadLocked()
		g.mu.Unlock()
		g.load(ctx, done)
	}

	g.mu.Lock()
	ready := g.state == stateReady
	g.mu.Unlock()
	return ready
}

// beginLoadLocked transitions to initializing and returns the channel the
// attempt will close on completion. Callers must hold g.mu.
func (g *Guard) beginLoadLocked() chan struct{} {
	g.state = stateInitializing
	g.done = make(chan struct{})
	return g.done
}

func (g *Guard) load(ctx context.Context, done chan struct{}) {
	started := time.Now()
	g.log.Info("loading transcription engine")

	engine, modelPath, err := g.loadFn(ctx)

	g.mu.Lock()
	if err != nil {
		g.state = stateFailed
		g.engine = nil
		g.modelPath = ""
		g.loadErr = err
		g.mu.Unlock()
		close(done)
		g.log.Error("failed to load transcription engine", zap.Error(err))
		return
	}

	g.state = stateReady
	g.engine = engine
	g.modelPath = modelPath
	g.loadErr = nil
	g.mu.Unlock()
	close(done)
	g.log.Info("transcription engine loaded",
		zap.String("model", modelPath),
		zap.Duration("elapsed", time.Since(started)))
}

// Transcribe runs the shared engine on an already-canonical audio file.
// Language is a hint; empty or "auto" means automatic detection.
func (g *Guard) Transcribe(ctx context.Context, audioPath, language string) (string, error) {
	if !g.EnsureLoaded(ctx) {
		g.mu.Lock()
		loadErr := g.loadErr
		g.mu.Unlock()
		if loadErr != nil {
			return "", fmt.Errorf("%w: %s", ErrUnavailable, loadErr)
		}
		return "", ErrUnavailable
	}

	g.mu.Lock()
	engine := g.engine
	modelPath := g.modelPath
	g.mu.Unlock()

	g.inferMu.Lock()
	defer g.inferMu.Unlock()

	started := time.Now()
	text, err := engine.Transcribe(ctx, TranscriptionRequest{
		AudioPath: audioPath,
		ModelPath: modelPath,
		Language:  normalizeLanguage(language),
	})
	if err != nil {
		g.statsMu.Lock()
		g.errorCount++
		g.statsMu.Unlock()
		return "", err
	}

	elapsed := time.Since(started)
	g.statsMu.Lock()
	g.processed++
	g.totalSeconds += elapsed.Seconds()
	g.statsMu.Unlock()

	return strings.TrimSpace(text), nil
}

func (g *Guard) Stats() GuardStats {
	g.mu.Lock()
	loaded := g.state == stateReady
	modelPath := g.modelPath
	g.mu.Unlock()

	g.statsMu.Lock()
	defer g.statsMu.Unlock()

	stats := GuardStats{
		ModelLoaded:    loaded,
		ModelPath:      modelPath,
		TotalProcessed: g.processed,
		TotalTime:      g.totalSeconds,
		Errors:         g.errorCount,
	}
	if g.processed > 0 {
		stats.AverageTime = g.totalSeconds / float64(g.processed)
	}
	return stats
}

func normalizeLanguage(language string) string {
	trimmed := strings.TrimSpace(strings.ToLower(language))
	switch trimmed {
	case "", "auto", "none":
		return "auto"
	default:
		return trimmed
	}
}
