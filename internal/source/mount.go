package source

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/vohoanvu/JRE-clipper-sub000/internal/storage"
)

// Compile-time check that MountLocator implements Locator.
var _ Locator = (*MountLocator)(nil)

// MountLocator finds videos in a read-only content store mounted on the
// local filesystem. Files are used in place and never copied or deleted.
type MountLocator struct {
	root string
}

// NewMountLocator creates a locator over root.
func NewMountLocator(root string) *MountLocator {
	return &MountLocator{root: root}
}

// mountPatterns are tried in order, first at the top level of the mount,
// then anywhere below it.
func mountPatterns(videoID string) []string {
	id := escapeGlob(videoID)
	return []string{id + ".mp4", id + "_*.mp4", id + "*.mp4"}
}

// Locate returns the best matching file for videoID.
func (m *MountLocator) Locate(ctx context.Context, videoID string, _ *storage.Workspace) (string, error) {
	patterns := mountPatterns(videoID)

	for _, pattern := range patterns {
		matches, err := filepath.Glob(filepath.Join(m.root, pattern))
		if err != nil {
			return "", err
		}
		sort.Strings(matches)
		for _, match := range matches {
			if checkMedia(match, MinValidSize) == nil {
				return match, nil
			}
		}
	}

	// Recursive pass. WalkDir visits in lexical order, so the first hit per
	// pattern is deterministic.
	found := make([]string, len(patterns))
	err := filepath.WalkDir(m.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == m.root {
				return err
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || filepath.Dir(p) == m.root {
			return nil
		}
		for i, pattern := range patterns {
			if found[i] != "" {
				continue
			}
			if ok, _ := filepath.Match(pattern, d.Name()); ok && checkMedia(p, MinValidSize) == nil {
				found[i] = p
			}
		}
		if found[0] != "" {
			return fs.SkipAll
		}
		return nil
	})
	if err != nil && !errors.Is(err, fs.SkipAll) {
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrNotFound
		}
		return "", err
	}

	for _, p := range found {
		if p != "" {
			return p, nil
		}
	}
	return "", ErrNotFound
}

// escapeGlob quotes glob metacharacters in a literal.
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
