package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fmueller/voxbatch/internal/audio"
	"github.com/fmueller/voxbatch/internal/batch"
	"github.com/fmueller/voxbatch/internal/config"
	"github.com/fmueller/voxbatch/internal/logging"
	"github.com/fmueller/voxbatch/internal/metrics"
	"github.com/fmueller/voxbatch/internal/server"
	"github.com/fmueller/voxbatch/internal/version"
	"github.com/fmueller/voxbatch/internal/whisper"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(app *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the transcription service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.runServe(cmd.Context())
		},
	}

	bindLoggingFlags(cmd, app)
	bindProgressFlag(cmd, app)
	bindModelFlags(cmd, app)
	bindServeFlags(cmd, app)

	return cmd
}

// runServe is the composition root: configuration, logger, whisper guard,
// converter, batch processor and HTTP server are wired here and nowhere else.
func (a *appState) runServe(ctx context.Context) error {
	cfg := config.Load()
	if a.addr != "" {
		cfg.Addr = a.addr
	}
	if a.model == "" {
		a.model = cfg.Model
	}
	if a.modelDir == "" {
		a.modelDir = cfg.ModelDir
	}

	logger, err := logging.New(logging.Options{
		Verbose: a.verbose,
		JSON:    a.jsonLogs || cfg.LogFormat == "json",
		Level:   cfg.LogLevel,
	})
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()
	a.logger = logger

	guard := whisper.NewGuard(a.engineLoader(), logger.Named("whisper"))
	converter := &audio.FFmpeg{Logger: logger.Named("audio")}
	set := metrics.New()

	proc := batch.NewProcessor(batch.Options{
		Converter:        converter,
		Transcriber:      guard,
		Metrics:          set,
		Logger:           logger.Named("batch"),
		DefaultSourceDir: cfg.SourceDir,
		DefaultOutputDir: cfg.OutputDir,
	})

	srv := server.New(server.Options{
		Processor: proc,
		Guard:     guard,
		Converter: converter,
		Metrics:   set,
		Logger:    logger.Named("http"),
		Config:    cfg,
		Version:   version.Resolve(),
	})

	// Kick off the model load now so the first request does not pay for it.
	// The service still starts when loading fails; /health reports it.
	guard.IsReady()

	proc.Start()
	defer proc.Stop()

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("service listening", zap.String("addr", cfg.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return <-serveErr
}
