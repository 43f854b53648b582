package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"

	"github.com/codebuildervaibhav/memo-transcriber/internal/cleanup"
	"github.com/codebuildervaibhav/memo-transcriber/internal/config"
	"github.com/codebuildervaibhav/memo-transcriber/internal/executor"
	"github.com/codebuildervaibhav/memo-transcriber/internal/handlers"
	"github.com/codebuildervaibhav/memo-transcriber/internal/ingest"
	"github.com/codebuildervaibhav/memo-transcriber/internal/logging"
	"github.com/codebuildervaibhav/memo-transcriber/internal/queue"
	"github.com/codebuildervaibhav/memo-transcriber/internal/report"
	"github.com/codebuildervaibhav/memo-transcriber/internal/storage"
	"github.com/codebuildervaibhav/memo-transcriber/internal/telemetry"
	"github.com/codebuildervaibhav/memo-transcriber/internal/transcription"
	"github.com/codebuildervaibhav/memo-transcriber/internal/types"
	"github.com/codebuildervaibhav/memo-transcriber/internal/watcher"
)

const (
	version       = "1.0.0"
	logBufferSize = 1000
	stopTimeout   = 30 * time.Second
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (default $CONFIG_PATH or config/config.yaml)")
	flag.Parse()

	cfg, err := config.Load(config.ResolvePath(*configPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logBuffer := logging.NewLogBuffer(logBufferSize)
	log := logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}, logBuffer)

	if err := run(cfg, log, logBuffer); err != nil {
		log.Fatal().Err(err).Msg("Server failed")
	}
}

func run(cfg *config.Config, log zerolog.Logger, logBuffer *logging.LogBuffer) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cleanup.EnsureDirs(cfg.Storage.UploadDir, cfg.Storage.CacheDir, cfg.Storage.TempDir); err != nil {
		return fmt.Errorf("prepare directories: %w", err)
	}

	shutdownTelemetry, err := telemetry.Setup(ctx, telemetry.Config{
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		ServiceName: cfg.Telemetry.ServiceName,
		Version:     version,
	}, log)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			log.Warn().Err(err).Msg("Telemetry shutdown failed")
		}
	}()

	log.Info().Msg("Initializing components...")
	pipeline, err := buildPipeline(ctx, cfg, log)
	if err != nil {
		return err
	}

	registry := queue.NewRegistry()
	dispatcher := queue.NewDispatcher(pipeline, registry, queue.Options{
		Workers:   cfg.Workers.Count,
		QueueSize: cfg.Workers.QueueSize,
		Overflow:  cfg.Workers.Overflow,
	}, log)
	dispatcher.Start()

	detach := report.NewConsole(os.Stdout, log).Attach(registry)
	defer detach()

	jobMetrics, err := telemetry.NewJobMetrics(otel.Meter(telemetry.MeterName))
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	defer jobMetrics.Attach(registry)()

	catalog, err := storage.NewCatalog(cfg.Storage.Database)
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	defer catalog.Close()

	store, err := storage.NewUploadStore(cfg.Storage.UploadDir)
	if err != nil {
		return fmt.Errorf("open upload store: %w", err)
	}
	svc := ingest.NewService(store, dispatcher, catalog, log)

	sweeper := cleanup.NewScheduler(
		[]string{cfg.Storage.TempDir, cfg.Storage.CacheDir},
		time.Duration(cfg.Cleanup.IntervalMinutes)*time.Minute,
		time.Duration(cfg.Cleanup.MaxAgeHours)*time.Hour,
		registry,
		log,
	)
	sweeper.Start()
	defer sweeper.Stop()

	if cfg.Watcher.Enabled {
		w, err := watcher.New(cfg.Watcher.Dir, func(ctx context.Context, path string) error {
			_, err := svc.Submit(ctx, path, types.SourceWatcher)
			return err
		}, cfg.Watcher.Settle, log)
		if err != nil {
			return fmt.Errorf("start watcher: %w", err)
		}
		defer w.Close()
		go func() {
			if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("File watcher stopped")
			}
		}()
	}

	app := fiber.New(fiber.Config{
		BodyLimit:             cfg.Limits.MaxFileSizeMB * 1024 * 1024,
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept",
	}))

	handlers.Mount(app, handlers.Set{
		Upload:  handlers.NewUploadHandler(svc, cfg.Limits.MaxFileSizeMB, log),
		Files:   handlers.NewFilesHandler(store, catalog, log),
		Uploads: handlers.NewUploadsHandler(catalog, log),
		Jobs:    handlers.NewJobsHandler(registry),
		GDrive:  handlers.NewGDriveHandler(driveSource(ctx, cfg, log), svc, log),
		Events:  handlers.NewEventsHandler(registry, log),
		Logs:    logBuffer,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Info().Msgf("Server starting on %s", addr)
	log.Info().Msg("Endpoints:")
	log.Info().Msg("   GET  /                    - Service status")
	log.Info().Msg("   POST /api/upload          - Upload .m4a recording")
	log.Info().Msg("   GET  /api/files           - List uploaded recordings")
	log.Info().Msg("   GET  /api/uploads         - Submission history")
	log.Info().Msg("   GET  /api/jobs[/:id]      - Job status and transcripts")
	log.Info().Msg("   POST /api/import/gdrive   - Import from Google Drive link")
	log.Info().Msg("   GET  /ws/jobs             - WebSocket job events")
	log.Info().Msg("   GET  /logs                - View server logs")

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- app.Listen(addr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
		log.Info().Msg("Shutting down gracefully...")
	}

	if err := app.Shutdown(); err != nil {
		log.Warn().Err(err).Msg("HTTP shutdown failed")
	}

	sctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	if err := dispatcher.Stop(sctx); err != nil {
		log.Warn().Err(err).Msg("Workers did not finish before the deadline")
	}
	return nil
}

// buildPipeline wires ffmpeg normalization, pyannote diarization and whisper
// recognition into one Pipeline
func buildPipeline(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*transcription.Pipeline, error) {
	exec := executor.New()

	normalizer := transcription.NewNormalizer(transcription.NormalizerConfig{
		FFmpegPath: cfg.FFmpeg.Binary,
		CacheDir:   cfg.Storage.CacheDir,
		Timeout:    cfg.FFmpeg.Timeout,
	}, exec, log)

	if cfg.Diarization.HFToken == "" {
		log.Warn().Msg("HF_TOKEN not set; the diarization sidecar may refuse requests")
	}
	pyannote := transcription.NewPyannoteClient(transcription.PyannoteConfig{
		BaseURL:     cfg.Diarization.URL,
		HFToken:     cfg.Diarization.HFToken,
		NumSpeakers: cfg.Diarization.NumSpeakers,
		MinSpeakers: cfg.Diarization.MinSpeakers,
		MaxSpeakers: cfg.Diarization.MaxSpeakers,
	})
	hctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if pyannote.IsAvailable(hctx) {
		log.Info().Str("url", cfg.Diarization.URL).Msg("Pyannote loaded")
	} else {
		log.Warn().Str("url", cfg.Diarization.URL).Msg("Pyannote sidecar not reachable; jobs will fail until it is up")
	}
	cancel()
	diarizer := transcription.NewDiarizationEngine(pyannote, cfg.Diarization.Timeout, log)

	recognizer, err := transcription.NewRecognizer(transcription.WhisperConfig{
		Backend:  cfg.Whisper.Backend,
		Binary:   cfg.Whisper.Binary,
		Model:    cfg.Whisper.Model,
		Language: cfg.Whisper.Language,
		URL:      cfg.Whisper.URL,
		TempDir:  cfg.Storage.TempDir,
	}, exec)
	if err != nil {
		return nil, fmt.Errorf("init speech recognizer: %w", err)
	}
	log.Info().Str("backend", cfg.Whisper.Backend).Str("model", cfg.Whisper.Model).Msg("Speech recognizer ready")
	transcriber := transcription.NewSegmentTranscriber(recognizer, cfg.Storage.TempDir, cfg.Whisper.Timeout, log)

	return transcription.NewPipeline(normalizer, diarizer, transcriber, log), nil
}

// driveSource returns nil when Drive credentials are missing or unusable
func driveSource(ctx context.Context, cfg *config.Config, log zerolog.Logger) handlers.DriveSource {
	if _, err := os.Stat(cfg.GoogleDrive.CredentialsFile); err != nil {
		log.Info().Msg("Google Drive credentials not found - Drive import disabled")
		return nil
	}
	client, err := storage.NewDriveClient(ctx, cfg.GoogleDrive.CredentialsFile, cfg.GoogleDrive.TokenFile)
	if err != nil {
		log.Warn().Err(err).Msg("Google Drive not available")
		return nil
	}
	log.Info().Msg("Google Drive integration enabled")
	return client
}
