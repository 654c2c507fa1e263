package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectGetter is the subset of the S3 client used to fetch a source file.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// ParseS3URI splits s3://bucket/key.
func ParseS3URI(uri string) (bucket, key string, err error) {
	rest, found := strings.CutPrefix(uri, "s3://")
	if !found {
		return "", "", fmt.Errorf("not an s3 URI: %s", uri)
	}
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("s3 URI must be s3://bucket/key, got %s", uri)
	}
	return bucket, key, nil
}

// FetchObject downloads bucket/key into dir and returns the local path. The
// local file keeps the key's base name so its extension selects the engine.
func FetchObject(ctx context.Context, client ObjectGetter, bucket, key, dir string) (string, error) {
	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", fmt.Errorf("%w: failed to get s3://%s/%s: %w", ErrDataAccess, bucket, key, err)
	}
	defer out.Body.Close()

	local := filepath.Join(dir, path.Base(key))
	f, err := os.Create(local)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", local, err)
	}
	if _, err := io.Copy(f, out.Body); err != nil {
		f.Close()
		return "", fmt.Errorf("%w: failed to download s3://%s/%s: %w", ErrDataAccess, bucket, key, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close %s: %w", local, err)
	}
	return local, nil
}

// NewS3Client builds an S3 client from the default AWS config chain.
// S3_ENDPOINT selects an S3-compatible endpoint (MinIO) with path-style
// addressing; S3_ACCESS_KEY_ID/S3_SECRET_ACCESS_KEY override credentials.
func NewS3Client(ctx context.Context) (*s3.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region := os.Getenv("S3_REGION"); region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	accessKeyID := os.Getenv("S3_ACCESS_KEY_ID")
	secretAccessKey := os.Getenv("S3_SECRET_ACCESS_KEY")
	if (accessKeyID == "") != (secretAccessKey == "") {
		return nil, fmt.Errorf("S3_ACCESS_KEY_ID and S3_SECRET_ACCESS_KEY must be set together")
	}
	if accessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	endpoint := os.Getenv("S3_ENDPOINT")
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

func openS3(ctx context.Context, log *slog.Logger, uri string) (*SQLSource, error) {
	bucket, key, err := ParseS3URI(uri)
	if err != nil {
		return nil, err
	}
	client, err := NewS3Client(ctx)
	if err != nil {
		return nil, err
	}
	dir, err := os.MkdirTemp("", "sensorcube-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	local, err := FetchObject(ctx, client, bucket, key, dir)
	if err != nil {
		os.RemoveAll(dir)
		return nil, err
	}
	log.Debug("source: fetched object", "bucket", bucket, "key", key, "path", local)

	src, err := openFile(ctx, log, local)
	if err != nil {
		os.RemoveAll(dir)
		return nil, err
	}
	src.local = local
	src.cleanup = append(src.cleanup, func() error {
		return os.RemoveAll(dir)
	})
	return src, nil
}
