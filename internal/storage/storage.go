// Package storage manages job workspaces on local disk and publishes final
// artifacts to durable storage.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
)

// ArtifactName is the file name of every published artifact.
const ArtifactName = "final_video.mp4"

// ErrPublishFailed is returned, wrapped in a *PublishError, for every failed publish.
var ErrPublishFailed = errors.New("publish failed")

// Publisher uploads a finished artifact and returns a reference clients can
// retrieve it with over HTTP(S).
type Publisher interface {
	Publish(ctx context.Context, localPath, jobID string) (url string, err error)
}

// PublishErrorKind classifies publish failures for operators.
type PublishErrorKind string

const (
	// PublishPermission means the credentials may not write to the destination.
	PublishPermission PublishErrorKind = "permission"
	// PublishNotFound means the destination bucket or directory does not exist.
	PublishNotFound PublishErrorKind = "not_found"
	// PublishGeneric covers every other failure.
	PublishGeneric PublishErrorKind = "generic"
)

// PublishError describes a failed publish step.
type PublishError struct {
	Kind PublishErrorKind
	Op   string
	Err  error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish %s (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

// Is reports every PublishError as ErrPublishFailed.
func (e *PublishError) Is(target error) bool {
	return target == ErrPublishFailed
}

// ObjectKey returns the job-scoped key of the artifact, e.g.
// edited-clips/<jobID>/final_video.mp4.
func ObjectKey(prefix, jobID string) string {
	return path.Join(prefix, UniqueName(jobID), ArtifactName)
}
