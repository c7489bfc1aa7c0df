package media

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gcs "cloud.google.com/go/storage"
)

type objectWriter func(ctx context.Context, bucket, object, contentType string, data []byte) error

// GCSConfig configures the Cloud Storage backend.
type GCSConfig struct {
	Bucket string
	// PublicBaseURL defaults to https://storage.googleapis.com/{bucket}.
	PublicBaseURL string
	Namer         ObjectNamer
}

// GCSUploader writes objects to a publicly readable bucket.
type GCSUploader struct {
	bucket string
	base   string
	namer  ObjectNamer
	write  objectWriter
}

// NewGCSUploader constructs an uploader backed by client.
func NewGCSUploader(client *gcs.Client, cfg GCSConfig) (*GCSUploader, error) {
	if client == nil {
		return nil, errors.New("media: storage client is required")
	}
	return newGCSUploader(cfg, func(ctx context.Context, bucket, object, contentType string, data []byte) error {
		w := client.Bucket(bucket).Object(object).NewWriter(ctx)
		w.ContentType = contentType
		w.CacheControl = "public, max-age=31536000, immutable"
		if _, err := w.Write(data); err != nil {
			_ = w.Close()
			return err
		}
		return w.Close()
	})
}

func newGCSUploader(cfg GCSConfig, write objectWriter) (*GCSUploader, error) {
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, errors.New("media: bucket name is required")
	}
	base := strings.TrimSpace(cfg.PublicBaseURL)
	if base == "" {
		base = "https://storage.googleapis.com/" + bucket
	}
	return &GCSUploader{bucket: bucket, base: base, namer: cfg.Namer, write: write}, nil
}

// Upload stores the file and returns its public URL.
func (u *GCSUploader) Upload(ctx context.Context, file File) (string, error) {
	key, err := u.namer.Name(file)
	if err != nil {
		return "", &UploadError{Backend: "gcs", Err: err}
	}
	if err := u.write(ctx, u.bucket, key, file.ContentType, file.Data); err != nil {
		return "", &UploadError{Backend: "gcs", Err: fmt.Errorf("write gs://%s/%s: %w", u.bucket, key, err)}
	}
	return publicURL(u.base, key), nil
}
