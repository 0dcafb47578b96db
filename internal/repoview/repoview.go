// Package repoview provides the read-only Repository View the planner
// operates over, and the separate write capability the Applier alone may
// hold (spec.md §4.1). The core never issues a file write through View.
package repoview

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/EffortlessMetrics/buildfix/internal/gitfacts"
	"github.com/EffortlessMetrics/buildfix/internal/pathsafe"
)

// ErrNotFound is returned by ReadText for a path that does not exist
// under the repository root.
var ErrNotFound = errors.New("repoview: file not found")

// View is a read-only capability over repository file contents.
type View interface {
	Root() string
	ReadText(path string) ([]byte, error)
	Exists(path string) bool
	GitHead() (sha string, ok bool)
	WorkingTreeDirty() (dirty bool, ok bool)
}

// Writer is the sole write capability over a repository, held only by
// the Applier.
type Writer interface {
	WriteFile(path string, content []byte) error
}

// FS is a View backed by an on-disk repository, scoping every read
// through an os.Root the way internal/safeio scopes reads in the
// teacher repo.
type FS struct {
	root string
}

// NewFS builds an FS rooted at root, which must already be an absolute,
// cleaned directory path.
func NewFS(root string) *FS {
	return &FS{root: filepath.Clean(root)}
}

func (f *FS) Root() string { return f.root }

func (f *FS) ReadText(path string) ([]byte, error) {
	canon, err := pathsafe.Canonicalize(path)
	if err != nil {
		return nil, err
	}
	root, err := os.OpenRoot(f.root)
	if err != nil {
		return nil, fmt.Errorf("open repository root: %w", err)
	}
	defer root.Close()

	file, err := root.Open(filepath.FromSlash(canon))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, canon)
		}
		return nil, err
	}
	defer file.Close()
	return io.ReadAll(file)
}

func (f *FS) Exists(path string) bool {
	canon, err := pathsafe.Canonicalize(path)
	if err != nil {
		return false
	}
	info, err := os.Stat(filepath.Join(f.root, filepath.FromSlash(canon)))
	return err == nil && !info.IsDir()
}

func (f *FS) GitHead() (string, bool) {
	sha, err := gitfacts.HeadSHA(f.root)
	if err != nil {
		return "", false
	}
	return sha, true
}

func (f *FS) WorkingTreeDirty() (bool, bool) {
	dirty, err := gitfacts.WorkingTreeDirty(f.root)
	if err != nil {
		return false, false
	}
	return dirty, true
}

// FSWriter is the Writer counterpart of FS; only the Applier constructs
// one.
type FSWriter struct {
	root string
}

// NewFSWriter builds a Writer rooted at the same directory as an FS view.
func NewFSWriter(root string) *FSWriter {
	return &FSWriter{root: filepath.Clean(root)}
}

// WriteFile writes content atomically: a sibling temp file is written,
// fsynced, and renamed over the target, so a crash mid-write never
// leaves a partially-written target (spec.md §4.6 step 4).
func (w *FSWriter) WriteFile(path string, content []byte) error {
	canon, err := pathsafe.Canonicalize(path)
	if err != nil {
		return err
	}
	target := filepath.Join(w.root, filepath.FromSlash(canon))
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return fmt.Errorf("create parent directories for %s: %w", canon, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".buildfix-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", canon, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file for %s: %w", canon, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("fsync temp file for %s: %w", canon, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file for %s: %w", canon, err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		return fmt.Errorf("rename into place for %s: %w", canon, err)
	}
	return nil
}
