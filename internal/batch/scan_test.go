package batch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("data"), 0o644))
	}
}

func TestFindAudioFilesFiltersByExtension(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFiles(t, dir,
		"a.wav", "b.MP3", "nested/c.flac", "nested/deeper/d.OGG",
		"notes.txt", "clip.avi", "e.m4a.bak",
	)

	files, err := FindAudioFiles(dir)
	require.NoError(t, err)
	require.Len(t, files, 4)
	for _, f := range files {
		require.True(t, IsSupportedAudio(f), f)
	}
}

func TestFindAudioFilesMissingDirectory(t *testing.T) {
	t.Parallel()

	_, err := FindAudioFiles(filepath.Join(t.TempDir(), "no", "such", "path"))
	require.ErrorIs(t, err, ErrDirectoryNotFound)
}

func TestFindAudioFilesRejectsRegularFileRoot(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFiles(t, dir, "a.wav")

	_, err := FindAudioFiles(filepath.Join(dir, "a.wav"))
	require.ErrorIs(t, err, ErrDirectoryNotFound)
}

func TestAddDirectoryEnqueuesDiscoveredFiles(t *testing.T) {
	t.Parallel()

	source := t.TempDir()
	output := filepath.Join(t.TempDir(), "out", "deep")
	writeFiles(t, source, "a.wav", "b.mp3", "skip.txt")

	proc := NewProcessor(Options{})
	added, err := proc.AddDirectory(source, output)
	require.NoError(t, err)
	require.Equal(t, 2, added)
	require.Equal(t, 2, proc.Queue().Size())
	require.DirExists(t, output)
}

func TestAddDirectoryEmptyDirectoryIsNotAnError(t *testing.T) {
	t.Parallel()

	proc := NewProcessor(Options{DefaultOutputDir: t.TempDir()})
	added, err := proc.AddDirectory(t.TempDir(), "")
	require.NoError(t, err)
	require.Zero(t, added)
	require.Zero(t, proc.Queue().Size())
}

func TestAddDirectoryMissingSourceLeavesQueueUntouched(t *testing.T) {
	t.Parallel()

	proc := NewProcessor(Options{DefaultOutputDir: t.TempDir()})
	_, err := proc.AddDirectory(filepath.Join(t.TempDir(), "missing"), "")
	require.ErrorIs(t, err, ErrDirectoryNotFound)
	require.Zero(t, proc.Queue().Size())
}

func TestAddFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFiles(t, dir, "one.ogg")

	proc := NewProcessor(Options{DefaultOutputDir: t.TempDir()})
	require.NoError(t, proc.AddFile(filepath.Join(dir, "one.ogg"), ""))
	require.Equal(t, 1, proc.Queue().Size())

	err := proc.AddFile(filepath.Join(dir, "ghost.ogg"), "")
	require.ErrorIs(t, err, ErrFileNotFound)
	require.Equal(t, 1, proc.Queue().Size())
}

func TestAddFileRejectsDirectory(t *testing.T) {
	t.Parallel()

	proc := NewProcessor(Options{DefaultOutputDir: t.TempDir()})
	err := proc.AddFile(t.TempDir(), "")
	require.ErrorIs(t, err, ErrFileNotFound)
}
