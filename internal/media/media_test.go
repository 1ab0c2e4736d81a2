package media

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hongminglow/channel-be/internal/config"
	"github.com/hongminglow/channel-be/internal/logger"
)

type fakeS3 struct {
	mu       sync.Mutex
	failures int
	calls    int
	bodies   map[string][]byte
	types    map[string]string
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("503 slow down")
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	if f.bodies == nil {
		f.bodies = map[string][]byte{}
		f.types = map[string]string{}
	}
	f.bodies[aws.ToString(in.Key)] = body
	f.types[aws.ToString(in.Key)] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func writePNG(t *testing.T, dir string) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	path := filepath.Join(dir, "avatar.png")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
	return path
}

func newUploader(client PutObjectAPI) *S3Uploader {
	return NewS3Uploader(client, S3Options{
		Bucket:          "avatars",
		PublicBaseURL:   "https://cdn.example/avatars",
		KeyPrefix:       "users/",
		MaxRetries:      2,
		InitialInterval: time.Millisecond,
	}, logger.Nop())
}

func TestDetectImage(t *testing.T) {
	dir := t.TempDir()
	info, err := DetectImage(writePNG(t, dir))
	require.NoError(t, err)
	assert.Equal(t, "png", info.Format)
	assert.Equal(t, "image/png", info.ContentType)
	assert.Equal(t, ".png", info.Extension)
	assert.Equal(t, 4, info.Width)
	assert.Equal(t, 3, info.Height)

	text := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(text, []byte("hello"), 0o600))
	_, err = DetectImage(text)
	assert.ErrorIs(t, err, ErrNotAnImage)

	_, err = DetectImage(filepath.Join(dir, "missing.png"))
	assert.Error(t, err)
}

func TestUpload_Success(t *testing.T) {
	client := &fakeS3{}
	path := writePNG(t, t.TempDir())

	asset, err := newUploader(client).Upload(context.Background(), path)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(asset.Key, "users/"))
	assert.True(t, strings.HasSuffix(asset.Key, ".png"))
	assert.Equal(t, "https://cdn.example/avatars/"+asset.Key, asset.URL)
	assert.Equal(t, "image/png", client.types[asset.Key])
	assert.NotEmpty(t, client.bodies[asset.Key])

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "local file must be removed")
}

func TestUpload_RetriesTransientFailures(t *testing.T) {
	client := &fakeS3{failures: 2}
	asset, err := newUploader(client).Upload(context.Background(), writePNG(t, t.TempDir()))
	require.NoError(t, err)
	assert.Equal(t, 3, client.calls)
	assert.NotEmpty(t, client.bodies[asset.Key])
}

func TestUpload_GivesUp(t *testing.T) {
	client := &fakeS3{failures: 10}
	path := writePNG(t, t.TempDir())

	_, err := newUploader(client).Upload(context.Background(), path)
	require.Error(t, err)
	assert.Equal(t, 3, client.calls)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "local file must be removed on failure too")
}

func TestUpload_RejectsNonImage(t *testing.T) {
	client := &fakeS3{}
	path := filepath.Join(t.TempDir(), "evil.png")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh"), 0o600))

	_, err := newUploader(client).Upload(context.Background(), path)
	assert.ErrorIs(t, err, ErrNotAnImage)
	assert.Zero(t, client.calls)
}

func TestDisabledUploader(t *testing.T) {
	path := writePNG(t, t.TempDir())
	_, err := DisabledUploader{}.Upload(context.Background(), path)
	assert.ErrorIs(t, err, ErrDisabled)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestNewS3Client_AppliesOptions(t *testing.T) {
	orig := loadDefaultAWSConfig
	t.Cleanup(func() { loadDefaultAWSConfig = orig })

	var seen awsconfig.LoadOptions
	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		for _, fn := range optFns {
			require.NoError(t, fn(&seen))
		}
		return aws.Config{Region: seen.Region}, nil
	}

	client, err := NewS3Client(context.Background(), config.MediaConfig{
		Region:    "eu-west-1",
		Endpoint:  "http://127.0.0.1:9000",
		AccessKey: "minio",
		SecretKey: "minio-secret",
	})
	require.NoError(t, err)
	require.NotNil(t, client)
	assert.Equal(t, "eu-west-1", seen.Region)
	require.NotNil(t, seen.Credentials)

	creds, err := seen.Credentials.Retrieve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "minio", creds.AccessKeyID)
	assert.Equal(t, "eu-west-1", client.Options().Region)
	assert.True(t, client.Options().UsePathStyle)
	assert.Equal(t, "http://127.0.0.1:9000", aws.ToString(client.Options().BaseEndpoint))
}

func TestNewS3Client_LoadError(t *testing.T) {
	orig := loadDefaultAWSConfig
	t.Cleanup(func() { loadDefaultAWSConfig = orig })
	loadDefaultAWSConfig = func(context.Context, ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, errors.New("no config")
	}

	_, err := NewS3Client(context.Background(), config.MediaConfig{Region: "us-east-1"})
	assert.Error(t, err)
}
