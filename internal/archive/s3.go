package archive

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"inkwell/internal/config"
)

// S3Archiver mirrors exported notes into an S3 bucket. Credentials come
// from static config keys when present, otherwise the standard AWS
// credential chain.
type S3Archiver struct {
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

// NewS3Archiver creates an archiver targeting the configured bucket and key prefix.
func NewS3Archiver(ctx context.Context, cfg config.ArchiveConfig) (*S3Archiver, error) {
	if cfg.S3Bucket == "" {
		return nil, fmt.Errorf("s3 archive requires a bucket")
	}

	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.S3Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.S3Region))
	}
	if cfg.S3AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKeyID, cfg.S3SecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg)
	return &S3Archiver{
		uploader: manager.NewUploader(client),
		bucket:   cfg.S3Bucket,
		prefix:   cfg.S3Prefix,
	}, nil
}

func (a *S3Archiver) Store(ctx context.Context, vaultPath string, data []byte) error {
	key := vaultPath
	if a.prefix != "" {
		key = path.Join(a.prefix, vaultPath)
	}

	_, err := a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("text/markdown"),
	})
	if err != nil {
		return fmt.Errorf("uploading %s to s3://%s: %w", vaultPath, a.bucket, err)
	}
	return nil
}

var _ Archiver = (*S3Archiver)(nil)
