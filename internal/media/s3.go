package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type s3PutAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Config configures an S3 compatible backend.
type S3Config struct {
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	// EndpointURL selects a non-AWS provider and switches to path-style addressing.
	EndpointURL string
	// PublicBaseURL defaults to the virtual-hosted bucket URL.
	PublicBaseURL string
	Namer         ObjectNamer
}

// S3Uploader writes objects with PutObject.
type S3Uploader struct {
	api    s3PutAPI
	bucket string
	base   string
	namer  ObjectNamer
}

// NewS3Uploader loads AWS configuration and builds the client. Static credentials are used when
// both keys are set, otherwise the default chain applies.
func NewS3Uploader(ctx context.Context, cfg S3Config) (*S3Uploader, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("media: bucket name is required")
	}
	opts := []func(*config.LoadOptions) error{}
	if region := strings.TrimSpace(cfg.Region); region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("media: load aws config: %w", err)
	}
	endpoint := strings.TrimSpace(cfg.EndpointURL)
	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	return newS3Uploader(client, cfg, awsConfig.Region)
}

func newS3Uploader(api s3PutAPI, cfg S3Config, region string) (*S3Uploader, error) {
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, errors.New("media: bucket name is required")
	}
	base := strings.TrimSpace(cfg.PublicBaseURL)
	switch {
	case base != "":
	case cfg.EndpointURL != "":
		base = strings.TrimRight(cfg.EndpointURL, "/") + "/" + bucket
	case region != "":
		base = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", bucket, region)
	default:
		base = fmt.Sprintf("https://%s.s3.amazonaws.com", bucket)
	}
	return &S3Uploader{api: api, bucket: bucket, base: base, namer: cfg.Namer}, nil
}

// Upload stores the file and returns its public URL.
func (u *S3Uploader) Upload(ctx context.Context, file File) (string, error) {
	key, err := u.namer.Name(file)
	if err != nil {
		return "", &UploadError{Backend: "s3", Err: err}
	}
	_, err = u.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(file.Data),
		ContentType:   aws.String(file.ContentType),
		ContentLength: aws.Int64(file.Size()),
		CacheControl:  aws.String("public, max-age=31536000, immutable"),
	})
	if err != nil {
		return "", &UploadError{Backend: "s3", Err: fmt.Errorf("put s3://%s/%s: %w", u.bucket, key, err)}
	}
	return publicURL(u.base, key), nil
}
