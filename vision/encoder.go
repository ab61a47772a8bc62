// Package vision prepares uploaded photos for inline transport in a JSON
// chat request.
package vision

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

var ErrImageNotFound = errors.New("image file not found")

// EncodedImage is a base64 rendition of an image file.
type EncodedImage struct {
	MIMEType string
	Data     string
}

// DataURL renders the image as a data: URL.
func (e EncodedImage) DataURL() string {
	return "data:" + e.MIMEType + ";base64," + e.Data
}

// IsSupported reports whether path has one of the accepted image extensions.
func IsSupported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg", ".png":
		return true
	}
	return false
}

// MIMEType guesses the image type from the file extension.
func MIMEType(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".png") {
		return "image/png"
	}
	return "image/jpeg"
}

// Encode reads the image at path and base64 encodes it.
func Encode(path string) (EncodedImage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return EncodedImage{}, errors.Wrapf(ErrImageNotFound, "%s", path)
		}
		return EncodedImage{}, errors.Wrap(err, "error encoding image")
	}
	return EncodedImage{
		MIMEType: MIMEType(path),
		Data:     base64.StdEncoding.EncodeToString(data),
	}, nil
}
