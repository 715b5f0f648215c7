package attachment

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/ignite/campaign-dispatch/internal/config"
	"github.com/ignite/campaign-dispatch/internal/domain"
)

// S3API is the subset of the S3 client used by S3Source.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Source reads attachments from S3-compatible object storage.
type S3Source struct {
	client   S3API
	bucket   string
	maxBytes int64
}

// NewS3Source builds an S3 client from the attachments config. Static keys
// override the default credential chain when both are set.
func NewS3Source(ctx context.Context, cfg config.AttachmentsConfig) (*S3Source, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.S3Region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	var opts []func(*s3.Options)
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, func(o *s3.Options) {
			o.Credentials = credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")
		})
	}
	if cfg.S3Endpoint != "" {
		opts = append(opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = cfg.S3PathStyle
		})
	}

	return NewS3SourceWithClient(s3.NewFromConfig(awsCfg, opts...), cfg.S3Bucket, cfg.MaxBytes), nil
}

// NewS3SourceWithClient wraps an existing client.
func NewS3SourceWithClient(client S3API, bucket string, maxBytes int64) *S3Source {
	return &S3Source{client: client, bucket: bucket, maxBytes: maxBytes}
}

// splitLocator resolves a locator to bucket and key.
func (s *S3Source) splitLocator(locator string) (string, string, error) {
	if rest, ok := strings.CutPrefix(locator, "s3://"); ok {
		bucket, key, found := strings.Cut(rest, "/")
		if !found || bucket == "" || key == "" {
			return "", "", fmt.Errorf("invalid S3 locator %q", locator)
		}
		return bucket, key, nil
	}
	if s.bucket != "" {
		return s.bucket, strings.TrimPrefix(locator, "/"), nil
	}
	bucket, key, found := strings.Cut(strings.TrimPrefix(locator, "/"), "/")
	if !found || bucket == "" || key == "" {
		return "", "", fmt.Errorf("S3 locator %q needs a bucket", locator)
	}
	return bucket, key, nil
}

func (s *S3Source) ResolveAttachment(ctx context.Context, locator string) (domain.ResolvedAttachment, error) {
	bucket, key, err := s.splitLocator(locator)
	if err != nil {
		return domain.ResolvedAttachment{}, err
	}

	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return domain.ResolvedAttachment{}, wrapS3Error(err, bucket, key)
	}
	defer resp.Body.Close()

	var r io.Reader = resp.Body
	if s.maxBytes > 0 {
		r = io.LimitReader(resp.Body, s.maxBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return domain.ResolvedAttachment{}, fmt.Errorf("reading S3 object body: %w", err)
	}
	if s.maxBytes > 0 && int64(len(data)) > s.maxBytes {
		return domain.ResolvedAttachment{}, fmt.Errorf("%w: s3://%s/%s", ErrTooLarge, bucket, key)
	}

	name := nameFromLocator(key)
	return domain.ResolvedAttachment{
		Name:        name,
		MIMEType:    detectMIME(aws.ToString(resp.ContentType), name, data),
		BytesBase64: base64.StdEncoding.EncodeToString(data),
	}, nil
}

func wrapS3Error(err error, bucket, key string) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "NoSuchBucket":
			return fmt.Errorf("%w: s3://%s/%s: %v", ErrNotFound, bucket, key, err)
		case "AccessDenied", "Forbidden":
			return fmt.Errorf("%w: s3://%s/%s: %v", ErrAccessDenied, bucket, key, err)
		}
	}

	var notFound *types.NoSuchKey
	if errors.As(err, &notFound) {
		return fmt.Errorf("%w: s3://%s/%s: %v", ErrNotFound, bucket, key, err)
	}

	return fmt.Errorf("S3 GetObject s3://%s/%s: %w", bucket, key, err)
}
