// Package pipeline sequences a consultation: transcription, image analysis
// and speech synthesis.
//
// Transcription and synthesis failures abort the run. Analysis failures never
// do: the orchestrator substitutes a sentinel text and carries on so the user
// still hears a reply.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/mrsingh-rishi/voice-doctor/metrics"
	"github.com/mrsingh-rishi/voice-doctor/model"
	"github.com/mrsingh-rishi/voice-doctor/vision"
)

//go:generate mockgen -destination=mock_pipeline_test.go -package=pipeline . Transcriber,Analyzer,Synthesizer,Observer

const (
	NoImageResponse       = "No image provided for me to analyze"
	ImageNotFoundResponse = "Could not analyze image - file not found"
	analysisErrorPrefix   = "Error analyzing image: "
)

var (
	ErrTranscription = errors.New("transcription failed")
	ErrSynthesis     = errors.New("speech synthesis failed")
)

// Transcriber turns recorded audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// Analyzer asks a vision-language model about an image.
type Analyzer interface {
	Analyze(ctx context.Context, prompt string, image vision.EncodedImage, modelID string) (string, error)
}

// Synthesizer speaks text into outputPath.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, outputPath string) (string, error)
}

// Observer receives stage events as a run progresses.
type Observer interface {
	Observe(event model.StageEvent)
}

// StageError is returned when a critical stage aborts the run. It matches
// both its Kind sentinel and the underlying provider error.
type StageError struct {
	Stage model.Stage
	Kind  error
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%v: %v", e.Kind, e.Err)
}

func (e *StageError) Unwrap() []error { return []error{e.Kind, e.Err} }

// Config carries the settings every run needs.
type Config struct {
	SystemPrompt string
	VisionModel  string
	OutputDir    string
	// OutputFileName is the fixed name of the synthesized file. When
	// PerRequest is set the request id replaces its stem instead.
	OutputFileName string
	PerRequest     bool
}

// Orchestrator runs consultations one stage after another.
type Orchestrator struct {
	config      Config
	transcriber Transcriber
	analyzer    Analyzer
	synthesizer Synthesizer
	observer    Observer
	metrics     *metrics.Metrics
	logger      *slog.Logger
	encode      func(path string) (vision.EncodedImage, error)
	now         func() time.Time
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithObserver registers an observer for stage events.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) { o.observer = obs }
}

// WithMetrics records stage durations and outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// New builds an Orchestrator from its three collaborators.
func New(cfg Config, transcriber Transcriber, analyzer Analyzer, synthesizer Synthesizer, logger *slog.Logger, opts ...Option) (*Orchestrator, error) {
	if transcriber == nil || analyzer == nil || synthesizer == nil {
		return nil, errors.New("transcriber, analyzer and synthesizer are required")
	}
	if strings.TrimSpace(cfg.SystemPrompt) == "" {
		return nil, errors.New("system prompt is required")
	}
	if cfg.OutputDir == "" {
		return nil, errors.New("output dir is required")
	}
	if cfg.OutputFileName == "" {
		cfg.OutputFileName = "final.mp3"
	}

	o := &Orchestrator{
		config:      cfg,
		transcriber: transcriber,
		analyzer:    analyzer,
		synthesizer: synthesizer,
		logger:      logger,
		encode:      vision.Encode,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// BuildPrompt prefixes the transcript with the system instruction.
func BuildPrompt(systemPrompt, transcript string) string {
	return systemPrompt + transcript
}

// OutputPath returns where the synthesized reply for requestID is written.
func (o *Orchestrator) OutputPath(requestID string) string {
	name := o.config.OutputFileName
	if o.config.PerRequest {
		ext := filepath.Ext(name)
		if ext == "" {
			ext = ".mp3"
		}
		name = requestID + ext
	}
	return filepath.Join(o.config.OutputDir, name)
}

// Run executes one consultation to completion.
func (o *Orchestrator) Run(ctx context.Context, req model.Request) (*model.Result, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	logger := o.logger.With(slog.String("request_id", req.ID))

	transcript, err := o.transcribe(ctx, logger, req)
	if err != nil {
		o.metrics.RecordRun("transcription_failed")
		o.emit(req.ID, model.StageDone, model.StatusFailed, err.Error())
		return nil, err
	}

	responseText, degraded := o.analyze(ctx, logger, req, transcript)

	audioPath, err := o.synthesize(ctx, logger, req, responseText)
	if err != nil {
		o.metrics.RecordRun("synthesis_failed")
		o.emit(req.ID, model.StageDone, model.StatusFailed, err.Error())
		return nil, err
	}

	outcome := "success"
	if degraded {
		outcome = "degraded"
	}
	o.metrics.RecordRun(outcome)
	o.emit(req.ID, model.StageDone, model.StatusSucceeded, audioPath)

	logger.Info("Consultation finished",
		slog.Bool("degraded", degraded),
		slog.String("audio_path", audioPath),
	)
	return &model.Result{
		RequestID:    req.ID,
		Transcript:   transcript,
		ResponseText: responseText,
		AudioPath:    audioPath,
		Degraded:     degraded,
	}, nil
}

func (o *Orchestrator) transcribe(ctx context.Context, logger *slog.Logger, req model.Request) (string, error) {
	o.emit(req.ID, model.StageTranscribe, model.StatusStarted, "")
	start := o.now()

	transcript, err := o.transcriber.Transcribe(ctx, req.AudioPath)
	if err == nil && strings.TrimSpace(transcript) == "" {
		err = errors.New("no speech recognized")
	}
	o.metrics.RecordStage(string(model.StageTranscribe), o.now().Sub(start), err != nil)

	if err != nil {
		logger.Error("Error during transcription",
			slog.String("audio_path", req.AudioPath),
			slog.String("error", err.Error()),
		)
		o.emit(req.ID, model.StageTranscribe, model.StatusFailed, err.Error())
		return "", &StageError{Stage: model.StageTranscribe, Kind: ErrTranscription, Err: err}
	}

	logger.Info("Got transcript", slog.String("transcript", transcript))
	o.emit(req.ID, model.StageTranscribe, model.StatusSucceeded, transcript)
	return transcript, nil
}

// analyze never fails; the bool reports whether the text is a fallback for a
// failed analysis.
func (o *Orchestrator) analyze(ctx context.Context, logger *slog.Logger, req model.Request, transcript string) (string, bool) {
	if req.ImagePath == "" {
		o.emit(req.ID, model.StageAnalyze, model.StatusSkipped, NoImageResponse)
		return NoImageResponse, false
	}

	o.emit(req.ID, model.StageAnalyze, model.StatusStarted, "")
	start := o.now()

	text, err := o.runAnalysis(ctx, req.ImagePath, transcript)
	o.metrics.RecordStage(string(model.StageAnalyze), o.now().Sub(start), err != nil)

	if err == nil {
		o.emit(req.ID, model.StageAnalyze, model.StatusSucceeded, text)
		return text, false
	}

	var fallback string
	if errors.Is(err, vision.ErrImageNotFound) {
		logger.Error("Image file not found", slog.String("image_path", req.ImagePath), slog.String("error", err.Error()))
		fallback = ImageNotFoundResponse
	} else {
		logger.Error("Error analyzing image", slog.String("error", err.Error()))
		fallback = analysisErrorPrefix + err.Error()
	}
	o.metrics.RecordDegraded()
	o.emit(req.ID, model.StageAnalyze, model.StatusDegraded, fallback)
	return fallback, true
}

func (o *Orchestrator) runAnalysis(ctx context.Context, imagePath, transcript string) (string, error) {
	image, err := o.encode(imagePath)
	if err != nil {
		return "", err
	}
	text, err := o.analyzer.Analyze(ctx, BuildPrompt(o.config.SystemPrompt, transcript), image, o.config.VisionModel)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", errors.New("vision model returned an empty response")
	}
	return text, nil
}

func (o *Orchestrator) synthesize(ctx context.Context, logger *slog.Logger, req model.Request, text string) (string, error) {
	o.emit(req.ID, model.StageSynthesize, model.StatusStarted, "")
	start := o.now()

	outputPath := o.OutputPath(req.ID)
	logger.Info("Synthesizing voice response", slog.String("output_path", outputPath))

	path, err := o.synthesizer.Synthesize(ctx, text, outputPath)
	o.metrics.RecordStage(string(model.StageSynthesize), o.now().Sub(start), err != nil)

	if err != nil {
		logger.Error("Error generating voice response", slog.String("error", err.Error()))
		o.emit(req.ID, model.StageSynthesize, model.StatusFailed, err.Error())
		return "", &StageError{Stage: model.StageSynthesize, Kind: ErrSynthesis, Err: err}
	}

	o.emit(req.ID, model.StageSynthesize, model.StatusSucceeded, path)
	return path, nil
}

func (o *Orchestrator) emit(requestID string, stage model.Stage, status model.StageStatus, detail string) {
	if o.observer == nil {
		return
	}
	o.observer.Observe(model.StageEvent{
		RequestID: requestID,
		Stage:     stage,
		Status:    status,
		Detail:    detail,
		Time:      o.now(),
	})
}
