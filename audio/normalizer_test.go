package audio

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
)

type fakeRunner struct {
	calls  [][]string
	output []byte
	err    error
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	if f.err != nil {
		return f.output, f.err
	}
	// Mimic ffmpeg writing its last argument.
	if err := os.WriteFile(args[len(args)-1], []byte("ID3"), 0644); err != nil {
		return nil, err
	}
	return f.output, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeInput(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("RIFF"), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestNormalize(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	input := writeInput(t, in, "2026-02-03T21-04_audio.WAV")

	runner := &fakeRunner{}
	n := NewNormalizerWithRunner("ffmpeg", out, runner, testLogger())

	got, err := n.Normalize(context.Background(), input)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	want := filepath.Join(out, "2026-02-03T21-04_audio_audio.mp3")
	if got != want {
		t.Errorf("expected output %q, got %q", want, got)
	}
	if _, err := os.Stat(got); err != nil {
		t.Errorf("normalized file missing: %v", err)
	}
	if len(runner.calls) != 1 {
		t.Fatalf("expected one ffmpeg call, got %d", len(runner.calls))
	}
	cmd := strings.Join(runner.calls[0], " ")
	for _, part := range []string{"ffmpeg", "-f wav", "-i " + input, "-acodec libmp3lame", want} {
		if !strings.Contains(cmd, part) {
			t.Errorf("command %q missing %q", cmd, part)
		}
	}
}

func TestNormalizeDemuxer(t *testing.T) {
	tests := map[string]string{
		"a.m4a":  "-f mov",
		"a.opus": "-f ogg",
		"a.webm": "-f matroska",
		"a.mpga": "-f mp3",
		"a.flac": "-f flac",
	}
	for name, flag := range tests {
		t.Run(name, func(t *testing.T) {
			runner := &fakeRunner{}
			n := NewNormalizerWithRunner("", t.TempDir(), runner, testLogger())
			if _, err := n.Normalize(context.Background(), writeInput(t, t.TempDir(), name)); err != nil {
				t.Fatalf("Normalize failed: %v", err)
			}
			if cmd := strings.Join(runner.calls[0], " "); !strings.Contains(cmd, flag) {
				t.Errorf("command %q missing %q", cmd, flag)
			}
		})
	}
}

func TestNormalizeErrors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name   string
		input  string
		runner *fakeRunner
		want   error
	}{
		{
			name:   "empty path",
			input:  "",
			runner: &fakeRunner{},
			want:   ErrAudioNotFound,
		},
		{
			name:   "missing file",
			input:  filepath.Join(dir, "missing.wav"),
			runner: &fakeRunner{},
			want:   ErrAudioNotFound,
		},
		{
			name:   "directory instead of file",
			input:  dir,
			runner: &fakeRunner{},
			want:   ErrAudioNotFound,
		},
		{
			name:   "unknown extension",
			input:  writeInput(t, dir, "voice.xyz"),
			runner: &fakeRunner{},
			want:   ErrUnsupportedFormat,
		},
		{
			name:   "decoder rejects container",
			input:  writeInput(t, dir, "broken.ogg"),
			runner: &fakeRunner{err: errors.New("exit status 1"), output: []byte("Invalid data found")},
			want:   ErrUnsupportedFormat,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := NewNormalizerWithRunner("ffmpeg", t.TempDir(), tt.runner, testLogger())
			_, err := n.Normalize(context.Background(), tt.input)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
			if tt.want == ErrAudioNotFound && len(tt.runner.calls) != 0 {
				t.Error("ffmpeg must not run for a missing input")
			}
		})
	}
}

func TestNormalizeMissingBinary(t *testing.T) {
	input := writeInput(t, t.TempDir(), "voice.wav")
	runner := &fakeRunner{err: &exec.Error{Name: "ffmpeg", Err: exec.ErrNotFound}}
	n := NewNormalizerWithRunner("ffmpeg", t.TempDir(), runner, testLogger())

	_, err := n.Normalize(context.Background(), input)
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, ErrUnsupportedFormat) || errors.Is(err, ErrAudioNotFound) {
		t.Errorf("missing binary should not be reported as an input problem: %v", err)
	}
}

func TestIsSupported(t *testing.T) {
	if !IsSupported("/tmp/x.MP3") {
		t.Error("expected .MP3 to be supported")
	}
	if IsSupported("/tmp/x") {
		t.Error("expected file without extension to be unsupported")
	}
}

func TestNormalizeUnreadableFile(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root can read any file")
	}
	input := writeInput(t, t.TempDir(), "voice.wav")
	if err := os.Chmod(input, 0); err != nil {
		t.Fatal(err)
	}
	runner := &fakeRunner{}
	n := NewNormalizerWithRunner("ffmpeg", t.TempDir(), runner, testLogger())

	_, err := n.Normalize(context.Background(), input)
	if !errors.Is(err, ErrAudioNotFound) {
		t.Fatalf("expected ErrAudioNotFound, got %v", err)
	}
	if len(runner.calls) != 0 {
		t.Error("ffmpeg must not run for an unreadable input")
	}
}

func TestNormalizeCanceled(t *testing.T) {
	input := writeInput(t, t.TempDir(), "voice.wav")
	runner := &fakeRunner{err: errors.New("signal: killed")}
	n := NewNormalizerWithRunner("ffmpeg", t.TempDir(), runner, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := n.Normalize(ctx, input)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("canceled run reported as unsupported format: %v", err)
	}
}
