package storage

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEnsureDirIdempotent(t *testing.T) {
	base := t.TempDir()
	logger := testLogger()

	first := EnsureDir(logger, base, "outputs")
	second := EnsureDir(logger, base, "outputs")

	if first != second {
		t.Errorf("expected same path on both calls, got %q and %q", first, second)
	}
	if !filepath.IsAbs(first) {
		t.Errorf("expected absolute path, got %q", first)
	}
	info, err := os.Stat(first)
	if err != nil {
		t.Fatalf("directory not created: %v", err)
	}
	if !info.IsDir() {
		t.Errorf("%q is not a directory", first)
	}
}

func TestEnsureDirCreatesParents(t *testing.T) {
	base := t.TempDir()
	path := EnsureDir(testLogger(), base, filepath.Join("audio_records", "inputs"))

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("nested directory not created: %v", err)
	}
	if path != filepath.Join(base, "audio_records", "inputs") {
		t.Errorf("unexpected path %q", path)
	}
}

func TestEnsureDirNeverFails(t *testing.T) {
	base := t.TempDir()
	blocker := filepath.Join(base, "file")
	if err := os.WriteFile(blocker, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	// A regular file in the way cannot be turned into a directory; the
	// provisioner still hands back the resolved path.
	path := EnsureDir(testLogger(), base, filepath.Join("file", "sub"))
	if path != filepath.Join(blocker, "sub") {
		t.Errorf("unexpected path %q", path)
	}
}

func TestProvision(t *testing.T) {
	base := t.TempDir()
	layout := Provision(testLogger(), base, "in", "out", "img", "norm")

	for _, dir := range []string{layout.Inputs, layout.Outputs, layout.Images, layout.Normalized} {
		if _, err := os.Stat(dir); err != nil {
			t.Errorf("directory %q missing: %v", dir, err)
		}
	}
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"rash.jpg", "rash.jpg"},
		{"../../etc/passwd", "passwd"},
		{`C:\Users\me\voice.wav`, "voice.wav"},
		{"..", ""},
		{"/", ""},
	}
	for _, tt := range tests {
		if got := SanitizeName(tt.in); got != tt.want {
			t.Errorf("SanitizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSaveUpload(t *testing.T) {
	dir := t.TempDir()

	path, err := SaveUpload(dir, "../voice.wav", strings.NewReader("RIFF"))
	if err != nil {
		t.Fatalf("SaveUpload failed: %v", err)
	}
	if path != filepath.Join(dir, "voice.wav") {
		t.Errorf("upload escaped its directory: %q", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "RIFF" {
		t.Errorf("unexpected content %q", data)
	}

	if _, err := SaveUpload(dir, "..", strings.NewReader("x")); err == nil {
		t.Error("expected error for unusable file name")
	}
}
