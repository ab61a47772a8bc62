package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/mrsingh-rishi/voice-doctor/audio"
	"github.com/mrsingh-rishi/voice-doctor/config"
	"github.com/mrsingh-rishi/voice-doctor/llm"
	"github.com/mrsingh-rishi/voice-doctor/metrics"
	"github.com/mrsingh-rishi/voice-doctor/model"
	"github.com/mrsingh-rishi/voice-doctor/output"
	"github.com/mrsingh-rishi/voice-doctor/pipeline"
	"github.com/mrsingh-rishi/voice-doctor/server"
	"github.com/mrsingh-rishi/voice-doctor/storage"
	"github.com/mrsingh-rishi/voice-doctor/stt"
	"github.com/mrsingh-rishi/voice-doctor/tts"
	"github.com/mrsingh-rishi/voice-doctor/workers"
)

const serviceName = "voice-doctor"

func main() {
	configPath := flag.String("config", "", "Path to YAML configuration file")
	envPath := flag.String("env", ".env", "Path to .env file")
	audioPath := flag.String("audio", "", "Run a single consultation on this recording and exit")
	imagePath := flag.String("image", "", "Optional image for the single consultation")
	flag.Parse()

	// Load .env if present
	if err := godotenv.Load(*envPath); err != nil {
		fmt.Fprintln(os.Stderr, "No .env file found, falling back to environment variables")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Logging)
	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("config_path", *configPath),
		slog.String("stt_provider", cfg.Transcription.Provider),
		slog.String("tts_provider", cfg.Speech.Provider),
		slog.String("vision_model", cfg.Vision.Model),
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	appMetrics := metrics.NewMetrics(reg)

	layout := storage.Provision(logger,
		cfg.Storage.WorkDir,
		cfg.Storage.InputsDir,
		cfg.Storage.OutputsDir,
		cfg.Storage.ImagesDir,
		cfg.Storage.NormalizedDir,
	)

	events := output.NewBroadcaster(logger)
	orchestrator, err := buildOrchestrator(cfg, layout, events, appMetrics, logger)
	if err != nil {
		logger.Error("Failed to build pipeline", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *audioPath != "" {
		if err := runOnce(ctx, orchestrator, *audioPath, *imagePath); err != nil {
			logger.Error("Consultation failed", slog.String("error", err.Error()))
			fmt.Fprintf(os.Stderr, "Error: %v\n%s\n", err, server.RetryHint)
			os.Exit(1)
		}
		return
	}

	if err := serve(ctx, cfg, layout, orchestrator, events, reg, appMetrics, logger); err != nil {
		logger.Error("Server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func buildOrchestrator(cfg *config.Config, layout storage.Layout, events *output.Broadcaster, m *metrics.Metrics, logger *slog.Logger) (*pipeline.Orchestrator, error) {
	normalizer := audio.NewNormalizer(cfg.Transcription.FFmpegPath, layout.Normalized, logger)

	var transcriber pipeline.Transcriber
	switch cfg.Transcription.Provider {
	case config.ProviderDeepgram:
		client, err := stt.NewDeepgramClient(
			cfg.Transcription.DeepgramAPIKey,
			cfg.Transcription.DeepgramURL,
			cfg.Transcription.DeepgramModel,
			cfg.Transcription.Language,
			cfg.Transcription.GetTimeoutDuration(),
			normalizer,
			logger,
		)
		if err != nil {
			return nil, errors.Wrap(err, "deepgram client")
		}
		transcriber = client
	default:
		client, err := stt.NewGroqClient(stt.GroqConfig{
			APIKey:   cfg.Transcription.APIKey,
			BaseURL:  cfg.Transcription.BaseURL,
			Model:    cfg.Transcription.Model,
			Language: cfg.Transcription.Language,
			Timeout:  cfg.Transcription.GetTimeoutDuration(),
		}, normalizer, logger)
		if err != nil {
			return nil, errors.Wrap(err, "groq client")
		}
		transcriber = client
	}

	analyzer, err := llm.NewOpenAIClient(
		cfg.Vision.APIKey,
		cfg.Vision.BaseURL,
		cfg.Vision.Model,
		cfg.Vision.GetTimeoutDuration(),
		logger,
	)
	if err != nil {
		return nil, errors.Wrap(err, "vision client")
	}

	var synthesizer pipeline.Synthesizer
	switch cfg.Speech.Provider {
	case config.ProviderGTTS:
		synthesizer = tts.NewGTTSClient(cfg.Speech.GTTSURL, cfg.Speech.Language, cfg.Speech.GetTimeoutDuration(), logger)
	default:
		client, err := tts.NewElevenLabsClient(
			cfg.Speech.APIKey,
			cfg.Speech.BaseURL,
			cfg.Speech.VoiceID,
			cfg.Speech.ModelID,
			cfg.Speech.OutputFormat,
			cfg.Speech.GetTimeoutDuration(),
			logger,
		)
		if err != nil {
			return nil, errors.Wrap(err, "elevenlabs client")
		}
		synthesizer = client
	}

	return pipeline.New(pipeline.Config{
		SystemPrompt:   cfg.Vision.SystemPrompt,
		VisionModel:    cfg.Vision.Model,
		OutputDir:      layout.Outputs,
		OutputFileName: cfg.Output.FileName,
		PerRequest:     cfg.Output.PerRequest,
	}, transcriber, analyzer, synthesizer, logger,
		pipeline.WithObserver(events),
		pipeline.WithMetrics(m),
	)
}

func runOnce(ctx context.Context, orchestrator *pipeline.Orchestrator, audioPath, imagePath string) error {
	result, err := orchestrator.Run(ctx, model.Request{AudioPath: audioPath, ImagePath: imagePath})
	if err != nil {
		return err
	}
	fmt.Printf("Transcript: %s\n", result.Transcript)
	fmt.Printf("Doctor: %s\n", result.ResponseText)
	fmt.Printf("Audio: %s\n", result.AudioPath)
	return nil
}

func serve(ctx context.Context, cfg *config.Config, layout storage.Layout, orchestrator *pipeline.Orchestrator, events *output.Broadcaster, reg *prometheus.Registry, m *metrics.Metrics, logger *slog.Logger) error {
	worker, err := workers.NewConsultationWorker(orchestrator, cfg.HTTP.QueueCapacity, m, logger)
	if err != nil {
		return err
	}
	worker.Start()

	httpServer, err := server.New(server.Config{
		Address:        cfg.HTTP.Address,
		MaxUploadBytes: cfg.HTTP.MaxUploadBytes,
		InputsDir:      layout.Inputs,
		ImagesDir:      layout.Images,
		OutputsDir:     layout.Outputs,
	}, worker, events, reg, m, logger)
	if err != nil {
		worker.Stop()
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Listen()
	}()

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-errCh:
		worker.Stop()
		return errors.Wrap(err, "listen")
	}

	logger.Info("Starting graceful shutdown...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
	}
	worker.Stop()
	logger.Info("Service stopped")
	return nil
}

// initLogger initializes the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var out *os.File
	switch cfg.Output {
	case "stdout":
		out = os.Stdout
	case "stderr", "":
		out = os.Stderr
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stderr\n", cfg.Output, err)
			out = os.Stderr
		} else {
			out = file
		}
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
