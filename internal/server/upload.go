package server

import (
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// saveUpload writes the uploaded audio into the configured upload directory.
// The name keeps the client/segment scheme of the original service plus a
// short random suffix so concurrent uploads from one client cannot collide.
func (s *Server) saveUpload(file multipart.File, originalName, clientID, segment string) (string, error) {
	if err := os.MkdirAll(s.cfg.UploadDir, 0o755); err != nil {
		return "", fmt.Errorf("create upload directory: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(originalName))
	if ext == "" {
		ext = ".wav"
	}

	name := fmt.Sprintf("%s_%s_%s_%s%s",
		sanitizeComponent(clientID),
		s.cfg.SegmentName,
		sanitizeComponent(segment),
		uuid.NewString()[:8],
		ext,
	)
	path := filepath.Join(s.cfg.UploadDir, name)

	dst, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, file); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("write upload file: %w", err)
	}

	return path, nil
}

// sanitizeComponent keeps client-supplied values from escaping the upload
// directory or producing hostile file names.
func sanitizeComponent(value string) string {
	var b strings.Builder
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	cleaned := strings.Trim(b.String(), ".")
	if cleaned == "" {
		return "unknown"
	}
	return cleaned
}
