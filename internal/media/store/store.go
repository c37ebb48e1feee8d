// Package store persists generated media blobs under unique per-run and
// per-segment paths and hands back Locators.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"

	"reelforge/internal/fileutil"
	"reelforge/internal/media"
	"reelforge/internal/textutil"
)

// ErrRunLocked is returned when another process already drives the run.
var ErrRunLocked = errors.New("run is locked by another process")

// Key addresses one blob slot inside a run.
type Key struct {
	RunID string
	Kind  media.Kind
	Index int
}

func (k Key) validate() error {
	if strings.TrimSpace(k.RunID) == "" {
		return errors.New("store key: empty run id")
	}
	if k.Kind == "" {
		return errors.New("store key: empty kind")
	}
	if k.Index < 0 {
		return fmt.Errorf("store key: negative index %d", k.Index)
	}
	return nil
}

// Store writes media blobs below a root directory.
//
// Layout: <root>/runs/<run_id>/<kind>/<index>-<sha256[:12]>.<ext>. The hash
// suffix makes a retried segment land on a new path instead of overwriting
// the file a previous attempt produced.
type Store struct {
	root string
}

// Open prepares the store root.
func Open(root string) (*Store, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, errors.New("media store: empty root")
	}
	if err := os.MkdirAll(filepath.Join(root, "runs"), 0o755); err != nil {
		return nil, fmt.Errorf("media store: %w", err)
	}
	return &Store{root: root}, nil
}

// Root returns the store root directory.
func (s *Store) Root() string {
	return s.root
}

// RunDir returns the directory holding every blob of a run.
func (s *Store) RunDir(runID string) string {
	return filepath.Join(s.root, "runs", textutil.SanitizeToken(runID))
}

func (s *Store) blobPath(key Key, digest, ext string) string {
	ext = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
	if ext == "" {
		ext = "bin"
	}
	name := fmt.Sprintf("%03d-%s.%s", key.Index, digest[:12], ext)
	return filepath.Join(s.RunDir(key.RunID), string(key.Kind), name)
}

// Put stores data for key and returns its locator.
func (s *Store) Put(ctx context.Context, key Key, ext string, data []byte) (media.Locator, error) {
	if err := key.validate(); err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", errors.New("media store: empty payload")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path := s.blobPath(key, fileutil.HashBytes(data), ext)
	if err := fileutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return "", fmt.Errorf("media store: write %s: %w", path, err)
	}
	return media.Locator(path), nil
}

// Adopt moves a file produced by an external tool into the store.
func (s *Store) Adopt(ctx context.Context, key Key, ext, src string) (media.Locator, error) {
	if err := key.validate(); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	info, err := os.Stat(src)
	if err != nil {
		return "", fmt.Errorf("media store: adopt: %w", err)
	}
	if info.Size() == 0 {
		return "", errors.New("media store: adopt: empty file")
	}
	digest, err := fileutil.HashFile(src)
	if err != nil {
		return "", fmt.Errorf("media store: hash: %w", err)
	}
	path := s.blobPath(key, digest, ext)
	if err := fileutil.MoveFile(src, path); err != nil {
		return "", fmt.Errorf("media store: adopt %s: %w", src, err)
	}
	return media.Locator(path), nil
}

// ScratchFile returns a fresh temp file path inside the run directory for a
// tool that insists on writing its own output file. The caller must Adopt or
// remove it.
func (s *Store) ScratchFile(key Key, ext string) (string, error) {
	if err := key.validate(); err != nil {
		return "", err
	}
	dir := filepath.Join(s.RunDir(key.RunID), "scratch")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	f, err := os.CreateTemp(dir, fmt.Sprintf("%s-%03d-*.%s", key.Kind, key.Index, strings.TrimPrefix(ext, ".")))
	if err != nil {
		return "", err
	}
	name := f.Name()
	_ = f.Close()
	return name, nil
}

// WorkDir creates a private scratch directory for a run's assembly pass.
func (s *Store) WorkDir(runID string) (string, func(), error) {
	base := filepath.Join(s.RunDir(runID), "work")
	if err := os.MkdirAll(base, 0o755); err != nil {
		return "", nil, err
	}
	dir, err := os.MkdirTemp(base, "assemble-*")
	if err != nil {
		return "", nil, err
	}
	return dir, func() { _ = os.RemoveAll(dir) }, nil
}

// LockRun takes an exclusive, non-blocking file lock on the run so that two
// processes cannot drive it concurrently. The returned function releases it.
func (s *Store) LockRun(runID string) (func() error, error) {
	dir := s.RunDir(runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	lock := flock.New(filepath.Join(dir, "run.lock"))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunLocked, runID)
	}
	return lock.Unlock, nil
}

// RemoveRun deletes every blob stored for the run.
func (s *Store) RemoveRun(runID string) error {
	return os.RemoveAll(s.RunDir(runID))
}
