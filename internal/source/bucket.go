package source

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/vohoanvu/JRE-clipper-sub000/internal/storage"
)

// BucketAPI is the subset of the S3 client used by BucketLocator.
type BucketAPI interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Compile-time check that BucketLocator implements Locator.
var _ Locator = (*BucketLocator)(nil)

// BucketLocator copies pre-fetched episodes from an object-storage bucket.
// Objects are named "<videoID>_<title>.mp4" (sometimes with a doubled
// ".mp4.mp4" suffix).
type BucketLocator struct {
	client BucketAPI
	bucket string
}

// NewBucketLocator creates a locator over bucket.
func NewBucketLocator(client BucketAPI, bucket string) *BucketLocator {
	return &BucketLocator{client: client, bucket: bucket}
}

// Locate downloads the first matching object into the video's workspace directory.
func (b *BucketLocator) Locate(ctx context.Context, videoID string, ws *storage.Workspace) (string, error) {
	key, err := b.findKey(ctx, videoID)
	if err != nil {
		return "", err
	}

	dir, err := ws.SourceDir(videoID)
	if err != nil {
		return "", err
	}
	dst := filepath.Join(dir, storage.UniqueName(videoID)+"_bucket.mp4")

	if err := b.download(ctx, key, dst); err != nil {
		_ = os.Remove(dst)
		return "", err
	}
	if err := checkMedia(dst, MinValidSize); err != nil {
		_ = os.Remove(dst)
		return "", err
	}
	return dst, nil
}

func (b *BucketLocator) findKey(ctx context.Context, videoID string) (string, error) {
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(videoID + "_"),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return "", fmt.Errorf("list bucket %s: %w", b.bucket, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if strings.HasSuffix(strings.ToLower(key), ".mp4") && aws.ToInt64(obj.Size) >= MinValidSize {
				keys = append(keys, key)
			}
		}
	}
	if len(keys) == 0 {
		return "", ErrNotFound
	}
	sort.Strings(keys)
	return keys[0], nil
}

func (b *BucketLocator) download(ctx context.Context, key, dst string) error {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("get object %s: %w", key, err)
	}
	defer out.Body.Close()

	f, err := os.Create(dst) // #nosec G304 - path is inside the job workspace
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(f, out.Body); err != nil {
		_ = f.Close()
		return fmt.Errorf("copy object %s: %w", key, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", dst, err)
	}
	return nil
}
