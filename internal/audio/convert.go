package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// Converter turns an arbitrary input audio file into the canonical form the
// whisper engine accepts: 16 kHz mono PCM WAV. Conversion is idempotent; an
// already-canonical input is returned unchanged.
type Converter interface {
	ToCanonical(ctx context.Context, path string) (string, error)
}

// FFmpeg converts via an external ffmpeg binary.
type FFmpeg struct {
	// Binary is the ffmpeg executable; empty means "ffmpeg" on PATH.
	Binary string
	// TempDir receives converted files; empty means os.TempDir().
	TempDir string
	Logger  *zap.Logger
}

func (f *FFmpeg) ToCanonical(ctx context.Context, path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.New("audio path is required")
	}
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("stat audio file: %w", err)
	}

	// WAV passes through untouched; whisper-cli resamples on its own.
	if strings.EqualFold(filepath.Ext(path), ".wav") {
		return path, nil
	}

	binary := f.Binary
	if binary == "" {
		binary = "ffmpeg"
	}
	tempDir := f.TempDir
	if tempDir == "" {
		tempDir = os.TempDir()
	}

	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	out := filepath.Join(tempDir, base+"_16k.wav")

	cmd := exec.CommandContext(ctx, binary,
		"-y", "-i", path,
		"-ac", "1", "-ar", "16000",
		"-f", "wav",
		out,
	)
	var stderr bytes.Buffer
	cmd.Stdout = &stderr
	cmd.Stderr = &stderr

	f.log().Debug("converting audio to canonical wav", zap.String("input", path), zap.String("output", out))
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("ffmpeg convert %s: %w (%s)", filepath.Base(path), err, lastLine(stderr.String()))
	}

	return out, nil
}

func (f *FFmpeg) log() *zap.Logger {
	if f.Logger == nil {
		return zap.NewNop()
	}
	return f.Logger
}

// lastLine keeps ffmpeg error output to a single useful line; its banner and
// stream maps would otherwise drown the actual failure reason.
func lastLine(output string) string {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) == 0 {
		return ""
	}
	return strings.TrimSpace(lines[len(lines)-1])
}
