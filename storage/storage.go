// Package storage provisions the working directories of the service and
// persists uploaded files into them.
package storage

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// EnsureDir creates base/rel if it does not exist and returns the absolute
// path. It never fails the caller: creation errors are logged, a second
// attempt is made with parents enabled, and the path is returned regardless.
func EnsureDir(logger *slog.Logger, base, rel string) string {
	path := rel
	if !filepath.IsAbs(rel) {
		path = filepath.Join(base, rel)
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}

	if err := os.Mkdir(path, 0755); err != nil && !os.IsExist(err) {
		logger.Warn("Error creating directory, retrying with parents",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		if err := os.MkdirAll(path, 0755); err != nil {
			logger.Error("Failed to create directory",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
			return path
		}
	}

	logger.Debug("Directory created or already exists", slog.String("path", path))
	return path
}

// Layout holds the resolved directories used by a pipeline.
type Layout struct {
	Inputs     string
	Outputs    string
	Images     string
	Normalized string
}

// Provision resolves and creates every directory of the layout.
func Provision(logger *slog.Logger, workDir, inputs, outputs, images, normalized string) Layout {
	return Layout{
		Inputs:     EnsureDir(logger, workDir, inputs),
		Outputs:    EnsureDir(logger, workDir, outputs),
		Images:     EnsureDir(logger, workDir, images),
		Normalized: EnsureDir(logger, workDir, normalized),
	}
}

// SanitizeName strips any directory components from an uploaded file name.
// It returns an empty string when nothing usable remains.
func SanitizeName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)
	if name == "." || name == "/" || name == ".." {
		return ""
	}
	return name
}

// SaveUpload copies r into dir/name and returns the written path.
func SaveUpload(dir, name string, r io.Reader) (string, error) {
	clean := SanitizeName(name)
	if clean == "" {
		return "", errors.Errorf("invalid file name %q", name)
	}
	path := filepath.Join(dir, clean)

	f, err := os.Create(path)
	if err != nil {
		return "", errors.Wrapf(err, "create %s", path)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return "", errors.Wrapf(err, "write %s", path)
	}
	if err := f.Close(); err != nil {
		return "", errors.Wrapf(err, "close %s", path)
	}
	return path, nil
}
