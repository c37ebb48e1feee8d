// Package media defines the references used to pass stored media between
// pipeline stages.
package media

import (
	"os"
	"path/filepath"
	"strings"
)

// Locator is an opaque reference to a stored media blob. Callers pass it
// between stages and resolve it with Path only when handing it to a tool.
type Locator string

// Kind classifies stored blobs.
type Kind string

const (
	KindImage Kind = "image"
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

// Path returns the filesystem path behind the locator.
func (l Locator) Path() string {
	return string(l)
}

// IsZero reports whether the locator is empty.
func (l Locator) IsZero() bool {
	return strings.TrimSpace(string(l)) == ""
}

// Ext returns the lowercase file extension without the dot.
func (l Locator) Ext() string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(string(l))), ".")
}

// Exists reports whether the blob is still present on disk.
func (l Locator) Exists() bool {
	if l.IsZero() {
		return false
	}
	info, err := os.Stat(string(l))
	return err == nil && !info.IsDir() && info.Size() > 0
}

func (l Locator) String() string {
	return string(l)
}
