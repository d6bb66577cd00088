package partition

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
)

const (
	DefaultS3Region = "us-east-1"
)

type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

type S3Config struct {
	Logger   *slog.Logger
	Database string

	// BaseURL is an s3://bucket/prefix URL mirroring the public partition layout.
	BaseURL string

	// Region and Endpoint default to S3_REGION/AWS_REGION and S3_ENDPOINT. Static
	// credentials are read from S3_ACCESS_KEY_ID/S3_SECRET_ACCESS_KEY or the AWS_ equivalents;
	// without them the bucket is read anonymously.
	Region   string
	Endpoint string

	Client S3API
}

func (c *S3Config) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.Database == "" {
		return errors.New("database is required")
	}
	if !IsS3URL(c.BaseURL) {
		return fmt.Errorf("base url %q is not an s3:// url", c.BaseURL)
	}
	if c.Region == "" {
		c.Region = firstEnv("S3_REGION", "AWS_REGION")
	}
	if c.Region == "" {
		c.Region = DefaultS3Region
	}
	if c.Endpoint == "" {
		c.Endpoint = firstEnv("S3_ENDPOINT", "AWS_ENDPOINT_URL")
	}
	return nil
}

// S3Source reads partitions from an S3 mirror of the public dataset.
type S3Source struct {
	log    *slog.Logger
	client S3API
	bucket string
	prefix string
	db     string
}

func NewS3Source(ctx context.Context, cfg S3Config) (*S3Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}
	bucket, prefix, err := ParseS3URL(cfg.BaseURL)
	if err != nil {
		return nil, err
	}

	client := cfg.Client
	if client == nil {
		client, err = newS3Client(ctx, cfg)
		if err != nil {
			return nil, err
		}
	}

	return &S3Source{
		log:    cfg.Logger,
		client: client,
		bucket: bucket,
		prefix: prefix,
		db:     cfg.Database,
	}, nil
}

func newS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	var creds aws.CredentialsProvider = aws.AnonymousCredentials{}
	accessKeyID := firstEnv("S3_ACCESS_KEY_ID", "AWS_ACCESS_KEY_ID")
	secretAccessKey := firstEnv("S3_SECRET_ACCESS_KEY", "AWS_SECRET_ACCESS_KEY")
	if accessKeyID != "" && secretAccessKey != "" {
		creds = credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, "")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(creds),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS config: %w", err)
	}

	endpoint := cfg.Endpoint
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
				endpoint = "http://" + endpoint
			}
			o.BaseEndpoint = &endpoint
			o.UsePathStyle = true
		}
	}), nil
}

func (s *S3Source) ObjectKey(key Key) string {
	return path.Join(s.prefix, key.ObjectPath(s.db))
}

func (s *S3Source) Get(ctx context.Context, key Key) ([]byte, error) {
	objectKey := s.ObjectKey(key)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get s3://%s/%s: %w", s.bucket, objectKey, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read s3://%s/%s: %w", s.bucket, objectKey, err)
	}
	return data, nil
}

func isS3NotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}

// ParseS3URL splits s3://bucket/prefix into its bucket and prefix.
func ParseS3URL(u string) (bucket, prefix string, err error) {
	rest, ok := strings.CutPrefix(u, "s3://")
	if !ok {
		return "", "", fmt.Errorf("invalid s3 url %q", u)
	}
	bucket, prefix, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("invalid s3 url %q: missing bucket", u)
	}
	return bucket, strings.Trim(prefix, "/"), nil
}

func firstEnv(names ...string) string {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}
