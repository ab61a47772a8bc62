package stt

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"
)

// DefaultGroqBaseURL is Groq's OpenAI-compatible endpoint.
const DefaultGroqBaseURL = "https://api.groq.com/openai/v1"

// GroqClient transcribes audio through Groq's Whisper deployment.
type GroqClient struct {
	Client     *openai.Client
	Model      string
	Language   string
	normalizer Normalizer
	logger     *slog.Logger
}

// GroqConfig configures a GroqClient.
type GroqConfig struct {
	APIKey   string
	BaseURL  string
	Model    string
	Language string
	Timeout  time.Duration
}

// NewGroqClient builds a GroqClient. A zero Timeout leaves the HTTP client
// without a deadline.
func NewGroqClient(cfg GroqConfig, normalizer Normalizer, logger *slog.Logger) (*GroqClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("API key is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("model is required")
	}
	if normalizer == nil {
		return nil, errors.New("normalizer is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultGroqBaseURL
	}
	if cfg.Language == "" {
		cfg.Language = "en"
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &GroqClient{
		Client:     openai.NewClientWithConfig(clientCfg),
		Model:      cfg.Model,
		Language:   cfg.Language,
		normalizer: normalizer,
		logger:     logger,
	}, nil
}

// Transcribe normalizes audioPath and sends it for recognition.
func (g *GroqClient) Transcribe(ctx context.Context, audioPath string) (string, error) {
	normalized, err := g.normalizer.Normalize(ctx, audioPath)
	if err != nil {
		return "", &TranscriptionError{Provider: "groq", Err: err}
	}

	g.logger.Info("Sending audio to Groq",
		slog.String("path", normalized),
		slog.String("model", g.Model),
	)
	resp, err := g.Client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    g.Model,
		FilePath: normalized,
		Language: g.Language,
	})
	if err != nil {
		g.logger.Error("Groq transcription failed", slog.String("error", err.Error()))
		return "", &TranscriptionError{Provider: "groq", Err: errors.Wrap(err, "create transcription")}
	}

	text := strings.TrimSpace(resp.Text)
	g.logger.Info("Transcription received", slog.Int("chars", len(text)))
	return text, nil
}
