package batch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// serviceIdentifier is the fixed third header line of every transcript file.
// Downstream tooling matches on these prefixes; do not reword them.
const serviceIdentifier = "Voxbatch Queue Processor"

const transcriptSuffix = "_transcription.txt"

// TranscriptPath returns where the transcript for sourcePath lands inside
// outputDir: <base>_transcription.txt.
func TranscriptPath(outputDir, sourcePath string) string {
	base := strings.TrimSuffix(filepath.Base(sourcePath), filepath.Ext(sourcePath))
	return filepath.Join(outputDir, base+transcriptSuffix)
}

func (p *Processor) writeTranscript(item WorkItem, text string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Source: %s\n", item.SourcePath)
	fmt.Fprintf(&b, "Processed: %s\n", p.now().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Service: %s\n", serviceIdentifier)
	b.WriteString(strings.Repeat("=", 60))
	b.WriteString("\n\n")
	b.WriteString(text)

	path := TranscriptPath(item.OutputDir, item.SourcePath)
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write transcript %s: %w", path, err)
	}
	return nil
}
