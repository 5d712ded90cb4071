package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 answers HeadBucket and PutObject for one bucket.
type fakeS3 struct {
	mu          sync.Mutex
	headStatus  int
	putStatus   int
	putPath     string
	putBody     string
	contentType string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.Method {
	case http.MethodHead:
		w.WriteHeader(f.headStatus)
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.putPath = r.URL.Path
		f.putBody = string(body)
		f.contentType = r.Header.Get("Content-Type")
		w.WriteHeader(f.putStatus)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestPublisher(t *testing.T, endpoint string, public bool) *S3Publisher {
	t.Helper()
	cfg := S3Config{
		Bucket:          "test-bucket",
		Region:          "us-east-1",
		Endpoint:        endpoint,
		AccessKeyID:     "test-access-key",
		SecretAccessKey: "test-secret-key",
		PublicURLs:      public,
	}
	client, err := NewS3Client(context.Background(), cfg)
	require.NoError(t, err)
	return NewS3Publisher(client, cfg)
}

func TestNewS3Publisher_Defaults(t *testing.T) {
	pub := newTestPublisher(t, "http://localhost:4566", false)

	assert.Equal(t, "test-bucket", pub.bucket)
	assert.Equal(t, "edited-clips", pub.prefix)
	assert.Equal(t, MaxSignedURLTTL, pub.expiry)
}

func TestNewS3Publisher_ClampsExpiry(t *testing.T) {
	client, err := NewS3Client(context.Background(), S3Config{Region: "us-east-1"})
	require.NoError(t, err)

	assert.Equal(t, MaxSignedURLTTL, NewS3Publisher(client, S3Config{URLExpiry: 30 * 24 * time.Hour}).expiry)
	assert.Equal(t, time.Hour, NewS3Publisher(client, S3Config{URLExpiry: time.Hour}).expiry)
}

func TestS3Publisher_Publish_SignedURL(t *testing.T) {
	fake := &fakeS3{headStatus: http.StatusOK, putStatus: http.StatusOK}
	server := httptest.NewServer(fake)
	defer server.Close()

	pub := newTestPublisher(t, server.URL, false)

	url, err := pub.Publish(context.Background(), writeArtifact(t, "test content"), "J1")
	require.NoError(t, err)

	assert.Equal(t, "/test-bucket/edited-clips/J1/final_video.mp4", fake.putPath)
	assert.Equal(t, "test content", fake.putBody)
	assert.Equal(t, "video/mp4", fake.contentType)

	assert.True(t, strings.HasPrefix(url, server.URL+"/test-bucket/edited-clips/J1/final_video.mp4?"), url)
	assert.Contains(t, url, "X-Amz-Signature=")
	assert.Contains(t, url, "X-Amz-Expires=604800")
}

func TestS3Publisher_Publish_PublicURL(t *testing.T) {
	fake := &fakeS3{headStatus: http.StatusOK, putStatus: http.StatusOK}
	server := httptest.NewServer(fake)
	defer server.Close()

	pub := newTestPublisher(t, server.URL, true)

	url, err := pub.Publish(context.Background(), writeArtifact(t, "test content"), "J1")
	require.NoError(t, err)
	assert.Equal(t, server.URL+"/test-bucket/edited-clips/J1/final_video.mp4", url)
}

func TestS3Publisher_Publish_ClassifiesFailures(t *testing.T) {
	tests := []struct {
		name       string
		headStatus int
		putStatus  int
		want       PublishErrorKind
	}{
		{"bucket forbidden", http.StatusForbidden, http.StatusOK, PublishPermission},
		{"bucket missing", http.StatusNotFound, http.StatusOK, PublishNotFound},
		{"upload forbidden", http.StatusOK, http.StatusForbidden, PublishPermission},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeS3{headStatus: tt.headStatus, putStatus: tt.putStatus}
			server := httptest.NewServer(fake)
			defer server.Close()

			pub := newTestPublisher(t, server.URL, false)

			_, err := pub.Publish(context.Background(), writeArtifact(t, "x"), "J1")
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrPublishFailed)

			var pubErr *PublishError
			require.ErrorAs(t, err, &pubErr)
			assert.Equal(t, tt.want, pubErr.Kind)
		})
	}
}

func TestS3Publisher_Publish_EmptyArtifact(t *testing.T) {
	fake := &fakeS3{headStatus: http.StatusOK, putStatus: http.StatusOK}
	server := httptest.NewServer(fake)
	defer server.Close()

	pub := newTestPublisher(t, server.URL, false)

	_, err := pub.Publish(context.Background(), writeArtifact(t, ""), "J1")
	assert.ErrorIs(t, err, ErrPublishFailed)
	assert.Empty(t, fake.putPath, "nothing must be uploaded for an empty artifact")
}
