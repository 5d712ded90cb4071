package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// MaxSignedURLTTL is the longest validity SigV4 presigning allows.
const MaxSignedURLTTL = 7 * 24 * time.Hour

// S3Config holds the configuration for S3-compatible storage.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string // Optional: for custom S3-compatible endpoints
	AccessKeyID     string // Optional: AWS access key ID
	SecretAccessKey string // Optional: AWS secret access key
	KeyPrefix       string // Defaults to "edited-clips"
	PublicURLs      bool   // Return plain object URLs instead of signed ones
	URLExpiry       time.Duration
}

// NewS3Client builds an S3 client from cfg. The client is a long-lived,
// process-scoped handle shared by every job run.
func NewS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	var configOpts []func(*config.LoadOptions) error
	configOpts = append(configOpts, config.WithRegion(cfg.Region))

	// Use static credentials if provided
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		configOpts = append(configOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, configOpts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var clientOpts []func(*s3.Options)
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	return s3.NewFromConfig(awsCfg, clientOpts...), nil
}

// Compile-time check that S3Publisher implements Publisher.
var _ Publisher = (*S3Publisher)(nil)

// S3Publisher uploads artifacts to an S3 bucket and returns signed or public URLs.
type S3Publisher struct {
	client   *s3.Client
	presign  *s3.PresignClient
	bucket   string
	region   string
	endpoint string
	prefix   string
	public   bool
	expiry   time.Duration
}

// NewS3Publisher creates a publisher over an existing client.
func NewS3Publisher(client *s3.Client, cfg S3Config) *S3Publisher {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "edited-clips"
	}
	expiry := cfg.URLExpiry
	if expiry <= 0 || expiry > MaxSignedURLTTL {
		expiry = MaxSignedURLTTL
	}
	return &S3Publisher{
		client:   client,
		presign:  s3.NewPresignClient(client),
		bucket:   cfg.Bucket,
		region:   cfg.Region,
		endpoint: strings.TrimSuffix(cfg.Endpoint, "/"),
		prefix:   prefix,
		public:   cfg.PublicURLs,
		expiry:   expiry,
	}
}

// Publish checks the bucket is reachable, uploads localPath under the job's
// key and returns a retrieval URL.
func (p *S3Publisher) Publish(ctx context.Context, localPath, jobID string) (string, error) {
	if _, err := p.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(p.bucket)}); err != nil {
		return "", &PublishError{Kind: classifyS3Error(err), Op: "check bucket " + p.bucket, Err: err}
	}

	f, err := os.Open(localPath) // #nosec G304 - path is inside the job workspace
	if err != nil {
		return "", &PublishError{Kind: PublishGeneric, Op: "open artifact", Err: err}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", &PublishError{Kind: PublishGeneric, Op: "stat artifact", Err: err}
	}
	if info.Size() == 0 {
		return "", &PublishError{Kind: PublishGeneric, Op: "stat artifact", Err: errors.New("artifact is empty")}
	}

	key := ObjectKey(p.prefix, jobID)
	_, err = p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(p.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String("video/mp4"),
	})
	if err != nil {
		return "", &PublishError{Kind: classifyS3Error(err), Op: "upload " + key, Err: err}
	}

	if p.public {
		return p.publicURL(key), nil
	}

	req, err := p.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(p.expiry))
	if err != nil {
		return "", &PublishError{Kind: PublishGeneric, Op: "sign " + key, Err: err}
	}
	return req.URL, nil
}

func (p *S3Publisher) publicURL(key string) string {
	if p.endpoint != "" {
		return fmt.Sprintf("%s/%s/%s", p.endpoint, p.bucket, key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", p.bucket, p.region, key)
}

// classifyS3Error maps an SDK error to a PublishErrorKind using the API error
// code when present, otherwise the HTTP status.
func classifyS3Error(err error) PublishErrorKind {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDenied", "Forbidden", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return PublishPermission
		case "NoSuchBucket", "NotFound", "NoSuchKey":
			return PublishNotFound
		}
	}

	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.HTTPStatusCode() {
		case http.StatusForbidden, http.StatusUnauthorized:
			return PublishPermission
		case http.StatusNotFound:
			return PublishNotFound
		}
	}

	return PublishGeneric
}
