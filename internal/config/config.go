package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds the environment-driven settings of the voxbatch service.
type Config struct {
	// HTTP
	Addr string

	// Directories
	SourceDir string
	OutputDir string
	UploadDir string

	// Whisper model
	Model    string
	ModelDir string

	// Upload file naming
	SegmentName string

	// Logging
	LogLevel       string
	LogFormat      string
	LogTranscripts bool
}

// Load reads configuration from the environment, honoring a .env file in the
// working directory when present. Every key has a default; Load never fails.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Addr:           getEnv("VOXBATCH_ADDR", ":8338"),
		SourceDir:      getEnv("AUDIO_SOURCE_DIR", "./audio_input"),
		OutputDir:      getEnv("OUTPUT_DIR", "./output"),
		UploadDir:      getEnv("UPLOAD_DIR", "./uploads"),
		Model:          getEnv("VOXBATCH_MODEL", "small"),
		ModelDir:       getEnv("VOXBATCH_MODEL_DIR", ""),
		SegmentName:    getEnv("SEGMENT_NAME", "segment"),
		LogLevel:       strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:      strings.ToLower(getEnv("LOG_FORMAT", "console")),
		LogTranscripts: getEnvBool("TRANSCRIPTION_OUT_LOG", false),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}

	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
