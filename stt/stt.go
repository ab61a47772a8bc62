// Package stt turns recorded speech into text. Audio is normalized to MP3
// before it is sent to the selected provider.
package stt

import (
	"context"
	"fmt"
)

// Transcriber converts an audio file into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// Normalizer re-encodes an audio file and returns the path of the copy.
type Normalizer interface {
	Normalize(ctx context.Context, path string) (string, error)
}

// TranscriptionError wraps any failure of a transcription attempt, including
// normalization of the input.
type TranscriptionError struct {
	Provider string
	Err      error
}

func (e *TranscriptionError) Error() string {
	return fmt.Sprintf("%s transcription failed: %v", e.Provider, e.Err)
}

func (e *TranscriptionError) Unwrap() error { return e.Err }
