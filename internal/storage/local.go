package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Compile-time check that LocalPublisher implements Publisher.
var _ Publisher = (*LocalPublisher)(nil)

// LocalPublisher copies artifacts into a directory served over HTTP by the
// worker itself. It is meant for development and single-host deployments.
type LocalPublisher struct {
	dir     string
	baseURL string
}

// NewLocalPublisher creates a publisher writing under dir and returning URLs
// of the form <baseURL>/artifacts/<jobID>/final_video.mp4.
// The directory is created if it doesn't exist.
func NewLocalPublisher(dir, baseURL string) (*LocalPublisher, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "clipper-artifacts")
	}

	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create artifact directory: %w", err)
	}

	return &LocalPublisher{dir: dir, baseURL: strings.TrimSuffix(baseURL, "/")}, nil
}

// Dir returns the artifact directory.
func (p *LocalPublisher) Dir() string {
	return p.dir
}

// Publish copies localPath to <dir>/<jobID>/final_video.mp4.
func (p *LocalPublisher) Publish(ctx context.Context, localPath, jobID string) (string, error) {
	select {
	case <-ctx.Done():
		return "", &PublishError{Kind: PublishGeneric, Op: "copy artifact", Err: ctx.Err()}
	default:
	}

	info, err := os.Stat(p.dir)
	if err != nil {
		kind := PublishGeneric
		if errors.Is(err, os.ErrNotExist) {
			kind = PublishNotFound
		}
		return "", &PublishError{Kind: kind, Op: "check directory " + p.dir, Err: err}
	}
	if !info.IsDir() {
		return "", &PublishError{Kind: PublishNotFound, Op: "check directory " + p.dir, Err: errors.New("not a directory")}
	}

	key := filepath.FromSlash(ObjectKey("", jobID))
	dst := filepath.Join(p.dir, key)
	if err := copyFile(localPath, dst); err != nil {
		kind := PublishGeneric
		if errors.Is(err, os.ErrPermission) {
			kind = PublishPermission
		}
		return "", &PublishError{Kind: kind, Op: "copy artifact", Err: err}
	}

	return p.baseURL + "/artifacts/" + filepath.ToSlash(key), nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src) // #nosec G304 - path is inside the job workspace
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0750); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload_*")
	if err != nil {
		return err
	}
	if _, err := io.Copy(tmp, in); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), dst)
}
