package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const DefaultDeepgramURL = "https://api.deepgram.com/v1/listen"

// DeepgramClient transcribes pre-recorded audio with Deepgram's REST API.
type DeepgramClient struct {
	APIKey     string
	Endpoint   string
	Model      string
	Language   string
	httpClient *http.Client
	normalizer Normalizer
	logger     *slog.Logger
}

type TranscriptionMessage struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// NewDeepgramClient builds a DeepgramClient for the given endpoint.
func NewDeepgramClient(apiKey, endpoint, model, language string, timeout time.Duration, normalizer Normalizer, logger *slog.Logger) (*DeepgramClient, error) {
	if apiKey == "" {
		return nil, errors.New("API key is required")
	}
	if normalizer == nil {
		return nil, errors.New("normalizer is required")
	}
	if endpoint == "" {
		endpoint = DefaultDeepgramURL
	}
	if model == "" {
		model = "nova-2"
	}
	if language == "" {
		language = "en"
	}
	return &DeepgramClient{
		APIKey:     apiKey,
		Endpoint:   endpoint,
		Model:      model,
		Language:   language,
		httpClient: &http.Client{Timeout: timeout},
		normalizer: normalizer,
		logger:     logger,
	}, nil
}

// Transcribe normalizes audioPath and posts the MP3 bytes to Deepgram.
func (dg *DeepgramClient) Transcribe(ctx context.Context, audioPath string) (string, error) {
	normalized, err := dg.normalizer.Normalize(ctx, audioPath)
	if err != nil {
		return "", &TranscriptionError{Provider: "deepgram", Err: err}
	}

	text, err := dg.transcribeFile(ctx, normalized)
	if err != nil {
		dg.logger.Error("Deepgram transcription failed", slog.String("error", err.Error()))
		return "", &TranscriptionError{Provider: "deepgram", Err: err}
	}
	dg.logger.Info("Transcription received", slog.Int("chars", len(text)))
	return text, nil
}

func (dg *DeepgramClient) transcribeFile(ctx context.Context, path string) (string, error) {
	audio, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrap(err, "read normalized audio")
	}

	base, err := url.Parse(dg.Endpoint)
	if err != nil {
		return "", errors.Wrap(err, "parse endpoint")
	}
	q := base.Query()
	q.Set("model", dg.Model)
	q.Set("language", dg.Language)
	q.Set("punctuate", "true")
	q.Set("smart_format", "true")
	base.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base.String(), bytes.NewReader(audio))
	if err != nil {
		return "", errors.Wrap(err, "build request")
	}
	req.Header.Set("Authorization", fmt.Sprintf("Token %s", dg.APIKey))
	req.Header.Set("Content-Type", "audio/mpeg")

	resp, err := dg.httpClient.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "HTTP request error")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrap(err, "read response body")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", errors.Errorf("bad status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var msg TranscriptionMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return "", errors.Wrap(err, "parse Deepgram response")
	}
	if len(msg.Results.Channels) == 0 || len(msg.Results.Channels[0].Alternatives) == 0 {
		return "", errors.New("no transcription alternatives found in Deepgram response")
	}
	return strings.TrimSpace(msg.Results.Channels[0].Alternatives[0].Transcript), nil
}
