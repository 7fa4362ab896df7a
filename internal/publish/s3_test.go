package publish

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/breeze-rmm/recorder/internal/config"
)

type fakePutter struct {
	inputs []*s3.PutObjectInput
	bodies []string
	err    error
}

func (f *fakePutter) Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	body, _ := io.ReadAll(input.Body)
	f.inputs = append(f.inputs, input)
	f.bodies = append(f.bodies, string(body))
	if f.err != nil {
		return nil, f.err
	}
	return &manager.UploadOutput{}, nil
}

func TestObjectKey(t *testing.T) {
	tests := []struct {
		prefix, path, want string
	}{
		{"", "/out/video_07-09-2025_17-13.mp4", "video_07-09-2025_17-13.mp4"},
		{"recordings", "/out/a.mp4", "recordings/a.mp4"},
		{"/recordings/2025/", "/out/a.mp4", "recordings/2025/a.mp4"},
		{`team\clips`, "a.m4a", "team/clips/a.m4a"},
	}
	for _, tt := range tests {
		if got := ObjectKey(tt.prefix, tt.path); got != tt.want {
			t.Errorf("ObjectKey(%q, %q) = %q, want %q", tt.prefix, tt.path, got, tt.want)
		}
	}
}

func TestUploadSetsKeyAndContentType(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "video_x.mp4")
	if err := os.WriteFile(path, []byte("mp4 data"), 0o600); err != nil {
		t.Fatal(err)
	}

	fp := &fakePutter{}
	u := &S3Uploader{bucket: "clips", prefix: "rec", up: fp}
	loc, err := u.Upload(context.Background(), path)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if loc != "s3://clips/rec/video_x.mp4" {
		t.Fatalf("location = %q", loc)
	}
	in := fp.inputs[0]
	if aws.ToString(in.Bucket) != "clips" || aws.ToString(in.Key) != "rec/video_x.mp4" {
		t.Fatalf("bucket/key = %s/%s", aws.ToString(in.Bucket), aws.ToString(in.Key))
	}
	if aws.ToString(in.ContentType) != "video/mp4" {
		t.Fatalf("content type = %q", aws.ToString(in.ContentType))
	}
	if fp.bodies[0] != "mp4 data" {
		t.Fatalf("body = %q", fp.bodies[0])
	}
}

func TestPublishAllContinuesAfterFailure(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "a.m4a")
	if err := os.WriteFile(good, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	missing := filepath.Join(dir, "missing.yaml")

	fp := &fakePutter{}
	u := &S3Uploader{bucket: "b", up: fp}
	results := u.PublishAll(context.Background(), missing, good)

	if len(results) != 2 {
		t.Fatalf("got %d results", len(results))
	}
	if results[0].Err == nil {
		t.Fatal("expected error for missing file")
	}
	if results[1].Err != nil || results[1].Location != "s3://b/a.m4a" {
		t.Fatalf("second result = %+v", results[1])
	}
}

func TestUploadWrapsSDKError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.mp4")
	if err := os.WriteFile(path, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	sdkErr := errors.New("access denied")
	u := &S3Uploader{bucket: "b", up: &fakePutter{err: sdkErr}}
	if _, err := u.Upload(context.Background(), path); !errors.Is(err, sdkErr) {
		t.Fatalf("err = %v, want wrapped %v", err, sdkErr)
	}
}

func TestNewS3UploaderRequiresBucket(t *testing.T) {
	if _, err := NewS3Uploader(context.Background(), config.S3Config{}); err == nil {
		t.Fatal("expected error without bucket")
	}
	if Enabled(config.S3Config{Bucket: " "}) {
		t.Fatal("blank bucket should not enable publishing")
	}
}

func TestNewS3UploaderStaticCredentials(t *testing.T) {
	t.Setenv("AWS_PROFILE", "")
	u, err := NewS3Uploader(context.Background(), config.S3Config{
		Bucket:          "b",
		Endpoint:        "http://127.0.0.1:9000",
		PathStyle:       true,
		AccessKeyID:     "minio",
		SecretAccessKey: "minio123",
	})
	if err != nil {
		t.Fatalf("NewS3Uploader: %v", err)
	}
	if u.bucket != "b" {
		t.Fatalf("bucket = %q", u.bucket)
	}
}
