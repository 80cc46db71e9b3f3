package batch

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Extensions the scanner considers audio input, matched case-insensitively.
var supportedExtensions = map[string]struct{}{
	".ogg":  {},
	".m4a":  {},
	".wav":  {},
	".mp3":  {},
	".flac": {},
	".aac":  {},
	".mp4":  {},
}

func IsSupportedAudio(path string) bool {
	_, ok := supportedExtensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

// FindAudioFiles walks root recursively and returns every regular file with a
// supported extension, in directory-traversal order.
func FindAudioFiles(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrDirectoryNotFound, root)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrDirectoryNotFound, root)
	}

	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if IsSupportedAudio(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}

	return files, nil
}

// AddDirectory scans sourceDir and enqueues one work item per discovered
// audio file, all targeting outputDir. Empty arguments fall back to the
// configured defaults. Returns the number of items enqueued; a directory
// with no matching files yields zero and no error.
func (p *Processor) AddDirectory(sourceDir, outputDir string) (int, error) {
	if strings.TrimSpace(sourceDir) == "" {
		sourceDir = p.defaultSourceDir
	}

	outputDir, err := p.resolveOutputDir(outputDir)
	if err != nil {
		return 0, err
	}

	files, err := FindAudioFiles(sourceDir)
	if err != nil {
		return 0, err
	}
	if len(files) == 0 {
		p.log.Warn("no audio files found", zap.String("dir", sourceDir))
		return 0, nil
	}

	now := time.Now()
	for _, file := range files {
		p.queue.Enqueue(WorkItem{SourcePath: file, OutputDir: outputDir, EnqueuedAt: now})
	}
	p.observeQueueDepth()

	p.log.Info("directory added to queue",
		zap.String("dir", sourceDir),
		zap.Int("files", len(files)),
		zap.String("output", outputDir))
	return len(files), nil
}

// AddFile enqueues a single audio file.
func (p *Processor) AddFile(path, outputDir string) error {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return fmt.Errorf("%w: %s", ErrFileNotFound, path)
	}

	outputDir, err = p.resolveOutputDir(outputDir)
	if err != nil {
		return err
	}

	p.queue.Enqueue(WorkItem{SourcePath: path, OutputDir: outputDir, EnqueuedAt: time.Now()})
	p.observeQueueDepth()

	p.log.Info("file added to queue", zap.String("file", path), zap.String("output", outputDir))
	return nil
}

func (p *Processor) resolveOutputDir(outputDir string) (string, error) {
	if strings.TrimSpace(outputDir) == "" {
		outputDir = p.defaultOutputDir
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrOutputDirCreate, outputDir, err)
	}
	return outputDir, nil
}
