// Package publish uploads finished recordings to S3-compatible storage.
package publish

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/breeze-rmm/recorder/internal/config"
	"github.com/breeze-rmm/recorder/internal/logging"
)

var log = logging.L("publish")

// defaultRegion is used for custom endpoints that ignore the region.
const defaultRegion = "us-east-1"

var contentTypes = map[string]string{
	".mp4":  "video/mp4",
	".m4a":  "audio/mp4",
	".wav":  "audio/wav",
	".yaml": "application/yaml",
}

// putter is the part of manager.Uploader the publisher needs.
type putter interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Uploader puts local files under a key prefix in one bucket.
type S3Uploader struct {
	bucket string
	prefix string
	up     putter
}

// Enabled reports whether cfg asks for uploads at all.
func Enabled(cfg config.S3Config) bool {
	return strings.TrimSpace(cfg.Bucket) != ""
}

// NewS3Uploader builds an uploader from the default AWS credential chain,
// overridden by static keys and a custom endpoint when configured.
func NewS3Uploader(ctx context.Context, cfg config.S3Config) (*S3Uploader, error) {
	if !Enabled(cfg) {
		return nil, errors.New("s3 bucket is required")
	}

	region := cfg.Region
	if region == "" {
		region = defaultRegion
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken)))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})

	return &S3Uploader{
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		up:     manager.NewUploader(client),
	}, nil
}

// ObjectKey joins prefix and the base name of localPath with forward
// slashes.
func ObjectKey(prefix, localPath string) string {
	name := filepath.Base(localPath)
	prefix = strings.Trim(strings.ReplaceAll(prefix, `\`, "/"), "/")
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}

// Upload sends one file and returns its object location.
func (u *S3Uploader) Upload(ctx context.Context, localPath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	key := ObjectKey(u.prefix, localPath)
	input := &s3.PutObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(key),
		Body:   f,
	}
	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(localPath))]; ok {
		input.ContentType = aws.String(ct)
	}

	out, err := u.up.Upload(ctx, input)
	if err != nil {
		return "", fmt.Errorf("upload s3://%s/%s: %w", u.bucket, key, err)
	}
	if out.Location != "" {
		return out.Location, nil
	}
	return fmt.Sprintf("s3://%s/%s", u.bucket, key), nil
}

// Result is the outcome of publishing one file.
type Result struct {
	Path     string
	Location string
	Err      error
}

// PublishAll uploads each path in order. Failures are logged and returned
// per file; they never stop the remaining uploads.
func (u *S3Uploader) PublishAll(ctx context.Context, paths ...string) []Result {
	results := make([]Result, 0, len(paths))
	for _, p := range paths {
		loc, err := u.Upload(ctx, p)
		if err != nil {
			log.Warn("upload failed", logging.KeyPath, p, logging.KeyError, err)
		} else {
			log.Info("uploaded", logging.KeyPath, p, "location", loc)
		}
		results = append(results, Result{Path: p, Location: loc, Err: err})
	}
	return results
}
