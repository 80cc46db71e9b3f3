package batch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stubConverter struct {
	fn func(ctx context.Context, path string) (string, error)
}

func (s *stubConverter) ToCanonical(ctx context.Context, path string) (string, error) {
	if s.fn != nil {
		return s.fn(ctx, path)
	}
	return path, nil
}

type stubTranscriber struct {
	fn func(ctx context.Context, audioPath, language string) (string, error)
}

func (s *stubTranscriber) Transcribe(ctx context.Context, audioPath, language string) (string, error) {
	if s.fn != nil {
		return s.fn(ctx, audioPath, language)
	}
	return "stub transcript", nil
}

func enqueueN(t *testing.T, proc *Processor, outputDir string, names ...string) {
	t.Helper()
	dir := t.TempDir()
	for _, name := range names {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte("audio"), 0o644))
		require.NoError(t, proc.AddFile(path, outputDir))
	}
}

func waitForProcessed(t *testing.T, proc *Processor, n int64) Snapshot {
	t.Helper()
	var snap Snapshot
	require.Eventually(t, func() bool {
		var err error
		snap, err = proc.Status()
		return err == nil && snap.TotalProcessed >= n
	}, 10*time.Second, 10*time.Millisecond)
	return snap
}

func TestProcessorSurvivesFailingItems(t *testing.T) {
	t.Parallel()

	conv := &stubConverter{fn: func(_ context.Context, path string) (string, error) {
		if strings.Contains(path, "bad") {
			return "", errors.New("unreadable container")
		}
		return path, nil
	}}

	proc := NewProcessor(Options{Converter: conv, Transcriber: &stubTranscriber{}})
	out := t.TempDir()
	enqueueN(t, proc, out, "ok1.wav", "bad2.wav", "ok3.wav", "bad4.wav", "ok5.wav")

	proc.Start()
	defer proc.Stop()

	snap := waitForProcessed(t, proc, 5)
	require.EqualValues(t, 5, snap.TotalProcessed)
	require.EqualValues(t, 3, snap.SuccessfulProcessed)
	require.EqualValues(t, 2, snap.FailedProcessed)
	require.Equal(t, snap.TotalProcessed, snap.SuccessfulProcessed+snap.FailedProcessed)
	require.True(t, snap.IsRunning)
	require.Zero(t, snap.QueueSize)
}

func TestProcessorWritesTranscriptConvention(t *testing.T) {
	t.Parallel()

	fixed := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	proc := NewProcessor(Options{
		Converter: &stubConverter{},
		Transcriber: &stubTranscriber{fn: func(context.Context, string, string) (string, error) {
			return "hello from the booth", nil
		}},
		Now: func() time.Time { return fixed },
	})

	src := filepath.Join(t.TempDir(), "speech.wav")
	require.NoError(t, os.WriteFile(src, []byte("audio"), 0o644))
	out := t.TempDir()
	require.NoError(t, proc.AddFile(src, out))

	proc.Start()
	defer proc.Stop()
	waitForProcessed(t, proc, 1)

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "speech_transcription.txt", entries[0].Name())

	content, err := os.ReadFile(filepath.Join(out, "speech_transcription.txt"))
	require.NoError(t, err)

	lines := strings.Split(string(content), "\n")
	require.Equal(t, "Source: "+src, lines[0])
	require.Equal(t, "Processed: 2025-03-14 09:26:53", lines[1])
	require.Equal(t, "Service: Voxbatch Queue Processor", lines[2])
	require.Equal(t, strings.Repeat("=", 60), lines[3])
	require.Equal(t, "", lines[4])

	parts := strings.SplitN(string(content), "\n\n", 2)
	require.Len(t, parts, 2)
	require.Equal(t, "hello from the booth", parts[1])
}

func TestProcessorCountsEmptyResultAsFailure(t *testing.T) {
	t.Parallel()

	proc := NewProcessor(Options{
		Converter: &stubConverter{},
		Transcriber: &stubTranscriber{fn: func(context.Context, string, string) (string, error) {
			return "   \n ", nil
		}},
	})
	out := t.TempDir()
	enqueueN(t, proc, out, "quiet.wav")

	proc.Start()
	defer proc.Stop()

	snap := waitForProcessed(t, proc, 1)
	require.EqualValues(t, 1, snap.FailedProcessed)
	require.Zero(t, snap.SuccessfulProcessed)

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestProcessorContainsPanics(t *testing.T) {
	t.Parallel()

	proc := NewProcessor(Options{
		Converter: &stubConverter{},
		Transcriber: &stubTranscriber{fn: func(_ context.Context, path, _ string) (string, error) {
			if strings.Contains(path, "boom") {
				panic("engine blew up")
			}
			return "fine", nil
		}},
	})
	out := t.TempDir()
	enqueueN(t, proc, out, "boom.wav", "calm.wav")

	proc.Start()
	defer proc.Stop()

	snap := waitForProcessed(t, proc, 2)
	require.EqualValues(t, 1, snap.FailedProcessed)
	require.EqualValues(t, 1, snap.SuccessfulProcessed)
	require.True(t, snap.IsRunning)
}

func TestProcessorPreservesEnqueueOrder(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var seen []string
	proc := NewProcessor(Options{
		Converter: &stubConverter{},
		Transcriber: &stubTranscriber{fn: func(_ context.Context, path, _ string) (string, error) {
			mu.Lock()
			seen = append(seen, filepath.Base(path))
			mu.Unlock()
			return "text", nil
		}},
	})
	enqueueN(t, proc, t.TempDir(), "a.wav", "b.wav", "c.wav")

	proc.Start()
	defer proc.Stop()
	waitForProcessed(t, proc, 3)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"a.wav", "b.wav", "c.wav"}, seen)
}

func TestProcessorGracefulStopFinishesInFlightItem(t *testing.T) {
	t.Parallel()

	processing := make(chan struct{}, 3)
	proc := NewProcessor(Options{
		Converter: &stubConverter{},
		Transcriber: &stubTranscriber{fn: func(context.Context, string, string) (string, error) {
			processing <- struct{}{}
			time.Sleep(100 * time.Millisecond)
			return "slow text", nil
		}},
	})
	enqueueN(t, proc, t.TempDir(), "a.wav", "b.wav", "c.wav")

	proc.Start()
	<-processing // first item is mid-flight

	stopStarted := time.Now()
	proc.Stop()
	require.Less(t, time.Since(stopStarted), stopGracePeriod)

	snap, err := proc.Status()
	require.NoError(t, err)
	require.False(t, snap.IsRunning)
	require.GreaterOrEqual(t, snap.TotalProcessed, int64(1))
	require.Equal(t, snap.TotalProcessed, snap.SuccessfulProcessed+snap.FailedProcessed)
	require.Empty(t, snap.CurrentFile)
}

func TestProcessorStartIsIdempotentAndStopIsSafe(t *testing.T) {
	t.Parallel()

	proc := NewProcessor(Options{Converter: &stubConverter{}, Transcriber: &stubTranscriber{}})

	proc.Stop() // never started; no-op

	proc.Start()
	proc.Start()
	snap, err := proc.Status()
	require.NoError(t, err)
	require.True(t, snap.IsRunning)

	proc.Stop()
	proc.Stop()
	snap, err = proc.Status()
	require.NoError(t, err)
	require.False(t, snap.IsRunning)
}

func TestProcessorStatusBeforeStart(t *testing.T) {
	t.Parallel()

	proc := NewProcessor(Options{Converter: &stubConverter{}, Transcriber: &stubTranscriber{}})
	_, err := proc.Status()
	require.ErrorIs(t, err, ErrNotStarted)
}
