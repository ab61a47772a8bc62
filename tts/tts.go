// Package tts turns response text into a spoken audio file.
package tts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// Synthesizer writes spoken text to outputPath and returns the path.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, outputPath string) (string, error)
}

// SynthesisError wraps a failed synthesis attempt.
type SynthesisError struct {
	Provider string
	Err      error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("%s synthesis failed: %v", e.Provider, e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }

// writeAudio replaces path with data. The bytes land in a temporary file in
// the same directory first so a failed write never leaves a partial file.
func writeAudio(path string, data []byte) error {
	if len(data) == 0 {
		return errors.New("provider returned no audio")
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tts-*")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "write audio")
	}
	if err := tmp.Chmod(0644); err != nil {
		tmp.Close()
		return errors.Wrap(err, "chmod audio")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close audio")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.Wrapf(err, "move audio to %s", path)
	}
	return nil
}
