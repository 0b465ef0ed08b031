package storage

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
)

// S3Options configures the S3 backend. Credentials fall back to the AWS
// default chain when AccessKey is empty.
type S3Options struct {
	Bucket    string `yaml:"bucket" json:"bucket"`
	Region    string `yaml:"region" json:"region"`
	Prefix    string `yaml:"prefix" json:"prefix"`
	Endpoint  string `yaml:"endpoint" json:"endpoint"`
	AccessKey string `yaml:"access_key" json:"-"`
	SecretKey string `yaml:"secret_key" json:"-"`
}

// S3 uploads originals to a bucket. Stored files have no local path, so
// re-extraction is not offered for them.
type S3 struct {
	bucket   string
	prefix   string
	uploader s3manageriface.UploaderAPI
}

func NewS3(opts S3Options) (*S3, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3 storage requires a bucket")
	}
	cfg := &aws.Config{}
	if opts.Region != "" {
		cfg.Region = aws.String(opts.Region)
	}
	if opts.Endpoint != "" {
		cfg.Endpoint = aws.String(opts.Endpoint)
		cfg.S3ForcePathStyle = aws.Bool(true)
	}
	if opts.AccessKey != "" {
		cfg.Credentials = credentials.NewStaticCredentials(opts.AccessKey, opts.SecretKey, "")
	}

	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}
	return newS3WithUploader(opts, s3manager.NewUploader(sess)), nil
}

func newS3WithUploader(opts S3Options, up s3manageriface.UploaderAPI) *S3 {
	return &S3{bucket: opts.Bucket, prefix: opts.Prefix, uploader: up}
}

func (s *S3) Name() string { return BackendS3 }

func (s *S3) LocalPath(string) (string, bool) { return "", false }

// Key returns the object key of filename.
func (s *S3) Key(filename string) string {
	return path.Join(s.prefix, originalDir, filename)
}

// Put streams srcPath to the bucket and records its SHA-256 as object metadata.
func (s *S3) Put(ctx context.Context, srcPath, filename string) error {
	name, err := cleanName(filename)
	if err != nil {
		return err
	}
	sum, err := hashFile(srcPath)
	if err != nil {
		return fmt.Errorf("failed to hash source: %w", err)
	}
	f, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer f.Close()

	input := &s3manager.UploadInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(s.Key(name)),
		Body:     f,
		Metadata: map[string]*string{"sha256": aws.String(sum)},
	}
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		input.ContentType = aws.String(ct)
	}
	if _, err := s.uploader.UploadWithContext(ctx, input); err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}
	return nil
}
