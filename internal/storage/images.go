package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/spec-kit/account-service/internal/config"
)

// ErrNotImage is returned for uploads whose content type is not image/*.
var ErrNotImage = errors.New("content type is not an image")

// imageExtensions pins the extension for common types; mime lists several per type.
var imageExtensions = map[string]string{
	"image/jpeg":    "jpg",
	"image/png":     "png",
	"image/gif":     "gif",
	"image/webp":    "webp",
	"image/svg+xml": "svg",
	"image/avif":    "avif",
}

type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// ImageStore uploads profile pictures to an S3 compatible bucket.
type ImageStore struct {
	client  objectPutter
	bucket  string
	baseURL string
	now     func() time.Time
}

// NewImageStore builds a store from configuration.
func NewImageStore(ctx context.Context, cfg config.StorageConfig) (*ImageStore, error) {
	if !cfg.Enabled() {
		return nil, errors.New("S3_BUCKET not configured")
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return newImageStore(client, cfg), nil
}

func newImageStore(client objectPutter, cfg config.StorageConfig) *ImageStore {
	baseURL := cfg.PublicBaseURL
	if baseURL == "" {
		if cfg.Endpoint != "" {
			baseURL = strings.TrimRight(cfg.Endpoint, "/") + "/" + cfg.Bucket
		} else {
			baseURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
		}
	}
	return &ImageStore{client: client, bucket: cfg.Bucket, baseURL: baseURL, now: time.Now}
}

// Upload stores data and returns its public URL.
func (s *ImageStore) Upload(ctx context.Context, data []byte, contentType string) (string, error) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || !strings.HasPrefix(mediaType, "image/") {
		return "", ErrNotImage
	}

	key := s.objectKey(mediaType)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(mediaType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}
	return s.baseURL + "/" + key, nil
}

func (s *ImageStore) objectKey(mediaType string) string {
	d := s.now().UTC()
	ext, ok := imageExtensions[mediaType]
	if !ok {
		ext = strings.TrimPrefix(mediaType, "image/")
		if exts, _ := mime.ExtensionsByType(mediaType); len(exts) > 0 {
			ext = strings.TrimPrefix(exts[len(exts)-1], ".")
		}
	}
	return fmt.Sprintf("profile-pictures/%d/%02d/%02d/%s.%s", d.Year(), d.Month(), d.Day(), uuid.NewString(), ext)
}
