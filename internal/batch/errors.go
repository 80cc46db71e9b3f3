package batch

import "errors"

// Enqueue-time errors, surfaced to the caller; nothing is queued when one of
// these is returned.
var (
	ErrDirectoryNotFound = errors.New("source directory does not exist")
	ErrFileNotFound      = errors.New("audio file does not exist")
	ErrOutputDirCreate   = errors.New("cannot create output directory")
)

// ErrNotStarted is returned by Status before the first Start call.
var ErrNotStarted = errors.New("queue processor has not been started")

// Item-time failure kinds. These never reach enqueue callers; they show up in
// logs, metrics labels, and the failure counter only.
const (
	kindConversionFailed    = "conversion_failed"
	kindTranscriptionFailed = "transcription_failed"
	kindEmptyResult         = "empty_result"
	kindPersistFailed       = "persist_failed"
	kindInternal            = "internal_error"
)
