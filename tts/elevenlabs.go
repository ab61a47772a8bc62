package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const DefaultElevenLabsURL = "https://api.elevenlabs.io"

type ElevenLabsClient struct {
	APIKey       string
	BaseURL      string
	VoiceId      string
	ModelId      string
	OutputFormat string
	httpClient   *http.Client
	logger       *slog.Logger
}

func NewElevenLabsClient(apiKey, baseURL, voiceId, modelId, outputFormat string, timeout time.Duration, logger *slog.Logger) (*ElevenLabsClient, error) {
	if apiKey == "" {
		return nil, errors.New("API key is required")
	}
	if voiceId == "" {
		return nil, errors.New("voice id is required")
	}
	if modelId == "" {
		return nil, errors.New("model id is required")
	}
	if baseURL == "" {
		baseURL = DefaultElevenLabsURL
	}
	if outputFormat == "" {
		outputFormat = "mp3_44100_128"
	}
	return &ElevenLabsClient{
		APIKey:       apiKey,
		BaseURL:      strings.TrimRight(baseURL, "/"),
		VoiceId:      voiceId,
		ModelId:      modelId,
		OutputFormat: outputFormat,
		httpClient:   &http.Client{Timeout: timeout},
		logger:       logger,
	}, nil
}

func (client *ElevenLabsClient) Synthesize(ctx context.Context, text, outputPath string) (string, error) {
	audio, err := client.generateSpeech(ctx, text)
	if err == nil {
		err = writeAudio(outputPath, audio)
	}
	if err != nil {
		client.logger.Error("Error generating voice response", slog.String("error", err.Error()))
		return "", &SynthesisError{Provider: "elevenlabs", Err: err}
	}

	client.logger.Info("Audio saved",
		slog.String("path", outputPath),
		slog.Int("bytes", len(audio)),
	)
	return outputPath, nil
}

func (client *ElevenLabsClient) generateSpeech(ctx context.Context, text string) ([]byte, error) {
	base, err := url.Parse(fmt.Sprintf("%s/v1/text-to-speech/%s", client.BaseURL, url.PathEscape(client.VoiceId)))
	if err != nil {
		return nil, errors.Wrap(err, "parse url")
	}
	q := base.Query()
	q.Set("output_format", client.OutputFormat)
	base.RawQuery = q.Encode()

	payload := map[string]interface{}{
		"text":     text,
		"model_id": client.ModelId,
	}
	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "marshal payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base.String(), bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("xi-api-key", client.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	resp, err := client.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "HTTP request error")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read audio")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("bad status: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return body, nil
}
