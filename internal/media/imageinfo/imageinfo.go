// Package imageinfo identifies generated image payloads before they are
// stored, so a backend that answers with an error page or a truncated body is
// caught at the gateway rather than at assembly time.
package imageinfo

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/chai2010/webp"
)

// ErrUnsupported is returned when the payload is not a decodable image.
var ErrUnsupported = errors.New("imageinfo: unsupported or corrupt image")

// Info describes a decoded image header.
type Info struct {
	Format string
	Width  int
	Height int
}

// Ext returns the file extension matching the detected format.
func (i Info) Ext() string {
	switch i.Format {
	case "jpeg":
		return "jpg"
	case "":
		return "bin"
	default:
		return i.Format
	}
}

// Detect decodes the image header from data.
func Detect(data []byte) (Info, error) {
	if len(data) == 0 {
		return Info{}, fmt.Errorf("%w: empty payload", ErrUnsupported)
	}
	if isWebP(data) {
		cfg, err := webp.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			return Info{}, fmt.Errorf("%w: webp: %v", ErrUnsupported, err)
		}
		return validate(Info{Format: "webp", Width: cfg.Width, Height: cfg.Height})
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Info{}, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	return validate(Info{Format: format, Width: cfg.Width, Height: cfg.Height})
}

func validate(info Info) (Info, error) {
	if info.Width <= 0 || info.Height <= 0 {
		return Info{}, fmt.Errorf("%w: zero dimensions", ErrUnsupported)
	}
	return info, nil
}

func isWebP(data []byte) bool {
	return len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP"))
}
