package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	sourcesDir = "sources"
	clipsDir   = "clips"
)

// Workspace is a job-scoped temporary directory exclusively owned by one job
// run. It holds downloaded sources, extracted clips and the final artifact.
type Workspace struct {
	root string
}

// NewWorkspace creates a fresh directory for jobID under baseDir.
// If baseDir is empty, os.TempDir() is used. Two runs of the same job never
// share a directory.
func NewWorkspace(baseDir, jobID string) (*Workspace, error) {
	if baseDir == "" {
		baseDir = filepath.Join(os.TempDir(), "clipper")
	}

	if err := os.MkdirAll(baseDir, 0750); err != nil {
		return nil, fmt.Errorf("create workspace base directory: %w", err)
	}

	root, err := os.MkdirTemp(baseDir, "job_"+SafeName(jobID)+"_*")
	if err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}

	for _, dir := range []string{sourcesDir, clipsDir} {
		if err := os.Mkdir(filepath.Join(root, dir), 0750); err != nil {
			_ = os.RemoveAll(root)
			return nil, fmt.Errorf("create workspace %s directory: %w", dir, err)
		}
	}

	return &Workspace{root: root}, nil
}

// Root returns the workspace directory path.
func (w *Workspace) Root() string {
	return w.root
}

// SourceDir returns a directory reserved for one video's downloads,
// creating it on first use.
func (w *Workspace) SourceDir(videoID string) (string, error) {
	dir := filepath.Join(w.root, sourcesDir, UniqueName(videoID))
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", fmt.Errorf("create source directory: %w", err)
	}
	return dir, nil
}

// ClipPath returns the path for the clip of the segment at index.
// The zero-padded index keeps directory listings in segment order.
func (w *Workspace) ClipPath(index int, videoID string) string {
	return filepath.Join(w.root, clipsDir, fmt.Sprintf("segment_%03d_%s.mp4", index, SafeName(videoID)))
}

// OutputPath returns the path of the combined artifact.
func (w *Workspace) OutputPath() string {
	return filepath.Join(w.root, ArtifactName)
}

// Owns reports whether p lies inside the workspace. Files outside it,
// such as read-only content mount files, are never released.
func (w *Workspace) Owns(p string) bool {
	rel, err := filepath.Rel(w.root, p)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Release removes the given files if they belong to the workspace.
// It continues even if some files fail to delete, returning the first error.
func (w *Workspace) Release(paths ...string) error {
	var firstErr error
	for _, p := range paths {
		if !w.Owns(p) {
			continue
		}
		if err := os.RemoveAll(p); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("remove %s: %w", p, err)
		}
	}
	return firstErr
}

// Cleanup deletes the whole workspace. It is safe to call more than once.
func (w *Workspace) Cleanup() error {
	if err := os.RemoveAll(w.root); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove workspace: %w", err)
	}
	return nil
}

// SafeName maps an identifier to a single path element containing only
// letters, digits, '-' and '_'.
func SafeName(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "_"
	}
	return b.String()
}

// UniqueName is SafeName with a short hash of s appended whenever SafeName
// had to rewrite s, so "a.b" and "a_b" never share a path element. Names
// that are already safe are returned unchanged.
func UniqueName(s string) string {
	safe := SafeName(s)
	if safe == s {
		return s
	}
	sum := sha256.Sum256([]byte(s))
	return safe + "~" + hex.EncodeToString(sum[:6])
}
