package llm

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"

	"github.com/mrsingh-rishi/voice-doctor/vision"
)

// DefaultBaseURL points the OpenAI SDK at Groq's compatible endpoint.
const DefaultBaseURL = "https://api.groq.com/openai/v1"

// OpenAIClient asks a multimodal chat model about an image.
type OpenAIClient struct {
	Client *openai.Client
	Model  string
	logger *slog.Logger
}

// NewOpenAIClient builds a client for any OpenAI-compatible endpoint. model is
// used when Analyze is called without an explicit model id.
func NewOpenAIClient(apiKey, baseURL, model string, timeout time.Duration, logger *slog.Logger) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, errors.New("API key is required")
	}
	if model == "" {
		return nil, errors.New("model is required")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = strings.TrimRight(baseURL, "/")
	cfg.HTTPClient = &http.Client{Timeout: timeout}

	return &OpenAIClient{
		Client: openai.NewClientWithConfig(cfg),
		Model:  model,
		logger: logger,
	}, nil
}

// Analyze sends prompt and image as one user turn and returns the model's
// reply. An empty modelID selects the client default.
func (c *OpenAIClient) Analyze(ctx context.Context, prompt string, image vision.EncodedImage, modelID string) (string, error) {
	if modelID == "" {
		modelID = c.Model
	}

	req := openai.ChatCompletionRequest{
		Model: modelID,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeText,
						Text: prompt,
					},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL: image.DataURL(),
						},
					},
				},
			},
		},
	}

	c.logger.Info("Sending image to vision model",
		slog.String("model", modelID),
		slog.String("mime_type", image.MIMEType),
		slog.Int("prompt_chars", len(prompt)),
	)
	resp, err := c.Client.CreateChatCompletion(ctx, req)
	if err != nil {
		c.logger.Error("Error analyzing image", slog.String("error", err.Error()))
		return "", errors.Wrap(err, "create chat completion")
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("vision model returned no choices")
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	c.logger.Info("Vision response received", slog.Int("chars", len(content)))
	return content, nil
}
