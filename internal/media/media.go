// Package media pushes uploaded images to an S3-compatible object store and
// hands back their public URLs.
package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hongminglow/channel-be/internal/config"
	"github.com/hongminglow/channel-be/internal/logger"
	"github.com/hongminglow/channel-be/internal/metrics"
)

// ErrDisabled is returned when no media host is configured.
var ErrDisabled = errors.New("media upload is not configured")

// Asset is a stored file.
type Asset struct {
	URL         string
	Key         string
	ContentType string
}

// Uploader stores a local file durably and returns where it can be fetched.
// The local file is removed once the attempt finishes, successful or not.
type Uploader interface {
	Upload(ctx context.Context, localPath string) (Asset, error)
}

// PutObjectAPI is the part of *s3.Client the uploader needs.
type PutObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Options tunes key layout and retries.
type S3Options struct {
	Bucket          string
	PublicBaseURL   string
	KeyPrefix       string
	MaxRetries      uint64
	InitialInterval time.Duration
}

// S3Uploader implements Uploader on top of PutObject.
type S3Uploader struct {
	client PutObjectAPI
	opts   S3Options
	log    *logger.Logger
}

var loadDefaultAWSConfig = awsconfig.LoadDefaultConfig

// NewS3Client builds an S3 client for the configured endpoint and static credentials.
func NewS3Client(ctx context.Context, cfg config.MediaConfig) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := loadDefaultAWSConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// NewS3Uploader wraps client. Zero retry settings fall back to 3 retries starting at 200ms.
func NewS3Uploader(client PutObjectAPI, opts S3Options, log *logger.Logger) *S3Uploader {
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = 200 * time.Millisecond
	}
	return &S3Uploader{client: client, opts: opts, log: log.Named("media")}
}

// Upload validates that localPath is an image and stores it under a random key.
func (u *S3Uploader) Upload(ctx context.Context, localPath string) (Asset, error) {
	defer os.Remove(localPath) //nolint:errcheck

	info, err := DetectImage(localPath)
	if err != nil {
		metrics.UploadsTotal.WithLabelValues("fail").Inc()
		return Asset{}, err
	}
	key := u.opts.KeyPrefix + uuid.NewString() + info.Extension

	put := func() error {
		f, err := os.Open(localPath)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("open upload: %w", err))
		}
		defer f.Close()
		_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(u.opts.Bucket),
			Key:         aws.String(key),
			Body:        f,
			ContentType: aws.String(info.ContentType),
		})
		return err
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = u.opts.InitialInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, u.opts.MaxRetries), ctx)
	notify := func(err error, wait time.Duration) {
		u.log.WithContext(ctx).Warn("put object failed, retrying", zap.String("key", key), zap.Duration("wait", wait), zap.Error(err))
	}
	if err := backoff.RetryNotify(put, policy, notify); err != nil {
		metrics.UploadsTotal.WithLabelValues("fail").Inc()
		u.log.WithContext(ctx).Error("upload failed", zap.String("key", key), zap.Error(err))
		return Asset{}, fmt.Errorf("put object: %w", err)
	}

	metrics.UploadsTotal.WithLabelValues("ok").Inc()
	return Asset{
		URL:         u.opts.PublicBaseURL + "/" + key,
		Key:         key,
		ContentType: info.ContentType,
	}, nil
}

// DisabledUploader rejects every upload; it keeps the server bootable without a media host.
type DisabledUploader struct{}

func (DisabledUploader) Upload(_ context.Context, localPath string) (Asset, error) {
	os.Remove(localPath) //nolint:errcheck
	return Asset{}, ErrDisabled
}
