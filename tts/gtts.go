package tts

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	DefaultGTTSURL = "https://translate.google.com/translate_tts"

	// gttsMaxChars is the longest text the translate endpoint accepts per call.
	gttsMaxChars = 200
)

// GTTSClient speaks text with the Google Translate voice. It needs no API key
// and serves as the local fallback provider.
type GTTSClient struct {
	Endpoint   string
	Language   string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewGTTSClient(endpoint, language string, timeout time.Duration, logger *slog.Logger) *GTTSClient {
	if endpoint == "" {
		endpoint = DefaultGTTSURL
	}
	if language == "" {
		language = "en"
	}
	return &GTTSClient{
		Endpoint:   endpoint,
		Language:   language,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func (g *GTTSClient) Synthesize(ctx context.Context, text, outputPath string) (string, error) {
	chunks := splitText(text, gttsMaxChars)
	if len(chunks) == 0 {
		return "", &SynthesisError{Provider: "gtts", Err: errors.New("no text to speak")}
	}

	var audio []byte
	for i, chunk := range chunks {
		part, err := g.fetch(ctx, chunk, i, len(chunks))
		if err != nil {
			g.logger.Error("Error generating voice response",
				slog.Int("chunk", i),
				slog.String("error", err.Error()),
			)
			return "", &SynthesisError{Provider: "gtts", Err: err}
		}
		audio = append(audio, part...)
	}

	if err := writeAudio(outputPath, audio); err != nil {
		return "", &SynthesisError{Provider: "gtts", Err: err}
	}
	g.logger.Info("Audio saved",
		slog.String("path", outputPath),
		slog.Int("chunks", len(chunks)),
		slog.Int("bytes", len(audio)),
	)
	return outputPath, nil
}

func (g *GTTSClient) fetch(ctx context.Context, text string, idx, total int) ([]byte, error) {
	base, err := url.Parse(g.Endpoint)
	if err != nil {
		return nil, errors.Wrap(err, "parse endpoint")
	}
	q := base.Query()
	q.Set("ie", "UTF-8")
	q.Set("client", "tw-ob")
	q.Set("tl", g.Language)
	q.Set("q", text)
	q.Set("total", strconv.Itoa(total))
	q.Set("idx", strconv.Itoa(idx))
	q.Set("textlen", strconv.Itoa(len([]rune(text))))
	base.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base.String(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "HTTP request error")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read audio")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("bad status: %s", resp.Status)
	}
	return body, nil
}

// splitText breaks text into pieces of at most max runes, preferring to cut
// at spaces.
func splitText(text string, max int) []string {
	var chunks []string
	var current []rune

	flush := func() {
		if s := strings.TrimSpace(string(current)); s != "" {
			chunks = append(chunks, s)
		}
		current = current[:0]
	}

	for _, word := range strings.Fields(text) {
		w := []rune(word)
		for len(w) > max {
			flush()
			chunks = append(chunks, string(w[:max]))
			w = w[max:]
		}
		needed := len(w)
		if len(current) > 0 {
			needed++
		}
		if len(current)+needed > max {
			flush()
		}
		if len(current) > 0 {
			current = append(current, ' ')
		}
		current = append(current, w...)
	}
	flush()
	return chunks
}
