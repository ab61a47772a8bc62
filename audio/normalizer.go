// Package audio re-encodes recorded audio into MP3 before it is uploaded to a
// transcription provider.
package audio

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrAudioNotFound     = errors.New("audio file not found")
	ErrUnsupportedFormat = errors.New("unsupported audio format")
)

var supportedFormats = map[string]bool{
	"wav": true, "mp3": true, "m4a": true, "mp4": true,
	"ogg": true, "oga": true, "opus": true, "webm": true,
	"flac": true, "aac": true, "mpeg": true, "mpga": true,
}

// Format returns the lower-cased container extension of path without the dot.
func Format(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}

// IsSupported reports whether the extension of path names a known container.
func IsSupported(path string) bool {
	return supportedFormats[Format(path)]
}

// Runner executes an external command and returns its combined output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Normalizer converts audio files into MP3 with ffmpeg.
type Normalizer struct {
	ffmpeg    string
	outputDir string
	runner    Runner
	logger    *slog.Logger
}

// NewNormalizer returns a Normalizer writing into outputDir.
func NewNormalizer(ffmpegPath, outputDir string, logger *slog.Logger) *Normalizer {
	return NewNormalizerWithRunner(ffmpegPath, outputDir, execRunner{}, logger)
}

// NewNormalizerWithRunner is NewNormalizer with a custom command runner.
func NewNormalizerWithRunner(ffmpegPath, outputDir string, runner Runner, logger *slog.Logger) *Normalizer {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Normalizer{
		ffmpeg:    ffmpegPath,
		outputDir: outputDir,
		runner:    runner,
		logger:    logger,
	}
}

// OutputPath is where Normalize writes the re-encoded copy of input.
func (n *Normalizer) OutputPath(input string) string {
	stem := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	return filepath.Join(n.outputDir, stem+"_audio.mp3")
}

// Normalize re-encodes input to MP3 and returns the new path.
func (n *Normalizer) Normalize(ctx context.Context, input string) (string, error) {
	if input == "" {
		return "", errors.Wrap(ErrAudioNotFound, "audio file is required")
	}
	if err := checkReadable(input); err != nil {
		n.logger.Error("Audio file not found", slog.String("path", input), slog.String("error", err.Error()))
		return "", errors.Wrapf(ErrAudioNotFound, "%s: %v", input, err)
	}

	format := Format(input)
	if !supportedFormats[format] {
		return "", errors.Wrapf(ErrUnsupportedFormat, "%q (%s)", format, input)
	}

	output := n.OutputPath(input)
	n.logger.Info("Normalizing audio",
		slog.String("input", input),
		slog.String("format", format),
		slog.String("output", output),
	)

	out, err := n.runner.Run(ctx, n.ffmpeg,
		"-hide_banner", "-loglevel", "error",
		"-y", "-f", demuxer(format), "-i", input,
		"-vn", "-acodec", "libmp3lame", output,
	)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", errors.Wrapf(ctxErr, "normalize %s", input)
		}
		var execErr *exec.Error
		if errors.As(err, &execErr) {
			return "", errors.Wrapf(err, "run %s", n.ffmpeg)
		}
		n.logger.Error("ffmpeg could not decode audio",
			slog.String("input", input),
			slog.String("error", err.Error()),
			slog.String("output", strings.TrimSpace(string(out))),
		)
		return "", errors.Wrapf(ErrUnsupportedFormat, "decode %s: %s", input, strings.TrimSpace(string(out)))
	}

	n.logger.Info("Audio normalized", slog.String("output", output))
	return output, nil
}

// checkReadable fails unless path is a regular file that can be opened.
func checkReadable(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	if info.IsDir() {
		return errors.New("is a directory")
	}
	return nil
}

// demuxer maps file extensions onto ffmpeg input format names.
func demuxer(format string) string {
	switch format {
	case "m4a", "mp4":
		return "mov"
	case "oga", "opus":
		return "ogg"
	case "mpeg", "mpga":
		return "mp3"
	case "webm":
		return "matroska"
	default:
		return format
	}
}
