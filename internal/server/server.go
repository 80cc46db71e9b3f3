package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/fmueller/voxbatch/internal/audio"
	"github.com/fmueller/voxbatch/internal/batch"
	"github.com/fmueller/voxbatch/internal/config"
	"github.com/fmueller/voxbatch/internal/metrics"
	"github.com/fmueller/voxbatch/internal/whisper"
)

const serviceName = "voxbatch speech-to-text service"

// uploadLimit bounds a single /transcribe request body.
const uploadLimit = 100 << 20

// TranscriptionService is the slice of the whisper guard the HTTP layer
// needs; it keeps handlers testable without a real engine.
type TranscriptionService interface {
	IsReady() bool
	Transcribe(ctx context.Context, audioPath, language string) (string, error)
	Stats() whisper.GuardStats
}

// Server wires the HTTP surface to the batch processor and the shared
// transcription guard. It is thin glue: every decision of consequence lives
// in the packages it delegates to.
type Server struct {
	processor *batch.Processor
	guard     TranscriptionService
	converter audio.Converter
	metrics   *metrics.Set
	log       *zap.Logger
	cfg       *config.Config
	version   string
	startedAt time.Time

	reqMu              sync.Mutex
	totalRequests      int64
	successfulRequests int64
	failedRequests     int64
}

type Options struct {
	Processor *batch.Processor
	Guard     TranscriptionService
	Converter audio.Converter
	Metrics   *metrics.Set
	Logger    *zap.Logger
	Config    *config.Config
	Version   string
}

func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Config == nil {
		opts.Config = config.Load()
	}
	return &Server{
		processor: opts.Processor,
		guard:     opts.Guard,
		converter: opts.Converter,
		metrics:   opts.Metrics,
		log:       opts.Logger,
		cfg:       opts.Config,
		version:   opts.Version,
		startedAt: time.Now(),
	}
}

func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	r.HandleFunc("/transcribe", s.handleTranscribe).Methods(http.MethodPost)
	// Legacy path kept for clients of the original service.
	r.HandleFunc("/update/", s.handleTranscribe).Methods(http.MethodPost)
	r.HandleFunc("/queue/add", s.handleQueueAdd).Methods(http.MethodPost)
	r.HandleFunc("/queue/file", s.handleQueueFile).Methods(http.MethodPost)
	r.HandleFunc("/queue/status", s.handleQueueStatus).Methods(http.MethodGet)
	r.HandleFunc("/queue/clear", s.handleQueueClear).Methods(http.MethodPost)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}
	return r
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"service":     serviceName,
		"version":     s.version,
		"status":      "running",
		"model_ready": s.engineReady(),
		"uptime":      time.Since(s.startedAt).Seconds(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	ready := s.engineReady()
	status := "healthy"
	code := http.StatusOK
	if !ready {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	s.writeJSON(w, code, map[string]any{
		"service":       serviceName,
		"status":        status,
		"model_ready":   ready,
		"whisper_stats": s.guard.Stats(),
		"service_stats": s.requestStats(),
		"uptime":        time.Since(s.startedAt).Seconds(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"service_stats": s.requestStats(),
		"whisper_stats": s.guard.Stats(),
		"uptime":        time.Since(s.startedAt).Seconds(),
	})
}

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	endpoint := r.URL.Path

	r.Body = http.MaxBytesReader(w, r.Body, uploadLimit)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		s.requestDone(endpoint, false)
		s.httpError(w, http.StatusBadRequest, fmt.Sprintf("invalid multipart form: %v", err))
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	clientID := r.FormValue("client_id")
	if clientID == "" {
		// The original service accepted camelCase on its legacy route.
		clientID = r.FormValue("clientId")
	}
	if clientID == "" {
		s.requestDone(endpoint, false)
		s.httpError(w, http.StatusBadRequest, "client_id is required")
		return
	}

	segment := r.FormValue("segment_number")
	if segment == "" {
		segment = "unknown"
	}
	language := r.FormValue("language")

	file, header, err := r.FormFile("file")
	if err != nil {
		s.requestDone(endpoint, false)
		s.httpError(w, http.StatusBadRequest, "audio file is required")
		return
	}
	defer file.Close()

	s.log.Info("transcription request",
		zap.String("file", header.Filename),
		zap.String("client", clientID),
		zap.String("segment", segment))

	uploadPath, err := s.saveUpload(file, header.Filename, clientID, segment)
	if err != nil {
		s.requestDone(endpoint, false)
		s.httpError(w, http.StatusInternalServerError, fmt.Sprintf("store upload: %v", err))
		return
	}
	defer s.removeUploads(uploadPath)

	canonical, err := s.converter.ToCanonical(r.Context(), uploadPath)
	if err != nil {
		s.requestDone(endpoint, false)
		s.httpError(w, http.StatusInternalServerError, fmt.Sprintf("convert audio: %v", err))
		return
	}
	if canonical != uploadPath {
		defer s.removeUploads(canonical)
	}

	text, err := s.guard.Transcribe(r.Context(), canonical, language)
	if err != nil {
		s.requestDone(endpoint, false)
		code := http.StatusInternalServerError
		if errors.Is(err, whisper.ErrUnavailable) {
			code = http.StatusServiceUnavailable
		}
		s.httpError(w, code, fmt.Sprintf("transcription error: %v", err))
		return
	}

	if s.cfg.LogTranscripts {
		s.log.Info("transcription result",
			zap.String("client", clientID),
			zap.String("file", header.Filename),
			zap.String("text", text))
	}

	reportedLanguage := language
	if normalized := languageOrAuto(language); normalized == "" {
		reportedLanguage = "auto-detected"
	}

	s.requestDone(endpoint, true)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"success":         true,
		"translated_text": text,
		"processing_time": math.Round(time.Since(started).Seconds()*100) / 100,
		"filename":        header.Filename,
		"segment_number":  segment,
		"language":        reportedLanguage,
	})
}

func (s *Server) handleQueueAdd(w http.ResponseWriter, r *http.Request) {
	sourceDir := r.FormValue("source_dir")
	if sourceDir == "" {
		s.requestDone("/queue/add", false)
		s.httpError(w, http.StatusBadRequest, "source_dir is required")
		return
	}

	added, err := s.processor.AddDirectory(sourceDir, r.FormValue("output_dir"))
	if err != nil {
		s.requestDone("/queue/add", false)
		code := http.StatusInternalServerError
		if errors.Is(err, batch.ErrDirectoryNotFound) {
			code = http.StatusNotFound
		}
		s.httpError(w, code, fmt.Sprintf("error adding to queue: %v", err))
		return
	}

	s.requestDone("/queue/add", true)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"message":     fmt.Sprintf("Directory added to queue: %s", sourceDir),
		"files_added": added,
		"queue_size":  s.processor.Queue().Size(),
	})
}

func (s *Server) handleQueueFile(w http.ResponseWriter, r *http.Request) {
	path := r.FormValue("file_path")
	if path == "" {
		s.requestDone("/queue/file", false)
		s.httpError(w, http.StatusBadRequest, "file_path is required")
		return
	}

	if err := s.processor.AddFile(path, r.FormValue("output_dir")); err != nil {
		s.requestDone("/queue/file", false)
		code := http.StatusInternalServerError
		if errors.Is(err, batch.ErrFileNotFound) {
			code = http.StatusNotFound
		}
		s.httpError(w, code, fmt.Sprintf("error adding to queue: %v", err))
		return
	}

	s.requestDone("/queue/file", true)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"message":    fmt.Sprintf("File added to queue: %s", path),
		"queue_size": s.processor.Queue().Size(),
	})
}

func (s *Server) handleQueueStatus(w http.ResponseWriter, _ *http.Request) {
	snap, err := s.processor.Status()
	if err != nil {
		s.httpError(w, http.StatusServiceUnavailable, "file queue processor not available")
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleQueueClear(w http.ResponseWriter, _ *http.Request) {
	cleared := s.processor.Queue().Clear()
	s.log.Info("queue cleared", zap.Int("dropped", cleared))
	s.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"cleared": cleared,
	})
}

func (s *Server) requestStats() map[string]int64 {
	s.reqMu.Lock()
	defer s.reqMu.Unlock()
	return map[string]int64{
		"total_requests":      s.totalRequests,
		"successful_requests": s.successfulRequests,
		"failed_requests":     s.failedRequests,
	}
}

func (s *Server) requestDone(endpoint string, success bool) {
	s.reqMu.Lock()
	s.totalRequests++
	if success {
		s.successfulRequests++
	} else {
		s.failedRequests++
	}
	s.reqMu.Unlock()

	if s.metrics != nil {
		outcome := "success"
		if !success {
			outcome = "failure"
		}
		s.metrics.RequestsTotal.WithLabelValues(endpoint, outcome).Inc()
	}
}

// engineReady reports guard readiness and keeps the gauge in sync with it.
func (s *Server) engineReady() bool {
	ready := s.guard.IsReady()
	if s.metrics != nil {
		value := 0.0
		if ready {
			value = 1.0
		}
		s.metrics.EngineReady.Set(value)
	}
	return ready
}

func (s *Server) removeUploads(path string) {
	if err := os.Remove(path); err != nil {
		s.log.Warn("could not delete temporary file", zap.String("path", path), zap.Error(err))
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("failed to encode response", zap.Error(err))
	}
}

// httpError mirrors the {"detail": ...} error body of the original service.
func (s *Server) httpError(w http.ResponseWriter, code int, detail string) {
	s.writeJSON(w, code, map[string]string{"detail": detail})
}

func languageOrAuto(language string) string {
	switch strings.ToLower(strings.TrimSpace(language)) {
	case "", "auto", "none":
		return ""
	default:
		return language
	}
}
