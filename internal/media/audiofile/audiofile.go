// Package audiofile identifies audio containers from their leading bytes.
// Synthesized speech arrives as raw bytes with no trustworthy content type,
// and user-supplied background music must be checked before ffmpeg sees it.
package audiofile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dhowden/tag"
)

// ErrUnknownFormat is returned when the payload is not a recognised audio container.
var ErrUnknownFormat = errors.New("audiofile: unknown audio format")

// Identify inspects r and returns the file extension for its container.
func Identify(r io.ReadSeeker) (string, error) {
	head := make([]byte, 12)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", fmt.Errorf("%w: %v", ErrUnknownFormat, err)
	}
	head = head[:n]
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	if len(head) >= 12 && bytes.Equal(head[0:4], []byte("RIFF")) && bytes.Equal(head[8:12], []byte("WAVE")) {
		return "wav", nil
	}

	_, fileType, tagErr := tag.Identify(r)
	if tagErr == nil {
		switch fileType {
		case tag.MP3:
			return "mp3", nil
		case tag.FLAC:
			return "flac", nil
		case tag.OGG:
			return "ogg", nil
		case tag.M4A, tag.M4B, tag.M4P, tag.ALAC:
			return "m4a", nil
		case tag.UnknownFileType:
			if len(head) >= 8 && bytes.Equal(head[4:8], []byte("ftyp")) {
				return "m4a", nil
			}
		}
	}
	// Bare MPEG audio frames carry no tag header.
	if len(head) >= 2 && head[0] == 0xFF && head[1]&0xE0 == 0xE0 {
		return "mp3", nil
	}
	return "", ErrUnknownFormat
}

// IdentifyBytes identifies an in-memory payload.
func IdentifyBytes(data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty payload", ErrUnknownFormat)
	}
	return Identify(bytes.NewReader(data))
}

// IdentifyFile identifies the file at path.
func IdentifyFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return Identify(f)
}
