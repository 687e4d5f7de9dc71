package s3store

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"

	"github.com/ngmaloney/disaster-terminal/internal/awserr"
	"github.com/ngmaloney/disaster-terminal/internal/logging"
)

// maxBodyBytes caps how much of one object is read
const maxBodyBytes = 16 << 20

// API is the subset of *s3.Client the store uses
type API interface {
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Config holds configuration for the store
type Config struct {
	Bucket       string
	Prefix       string // only keys under this prefix are listed
	Region       string // default us-east-1
	Endpoint     string // custom endpoint for S3-compatible storage
	AccessKey    string // uses the default credential chain when empty
	SecretKey    string
	SessionToken string

	MaxRetries int // listing retries on transport errors
	RetryDelay time.Duration
}

// Object is one listed key
type Object struct {
	Key          string
	LastModified time.Time
	Size         int64
}

// Store reads alert objects from one bucket
type Store struct {
	api    API
	config Config
	logger logging.Logger
	retry  retrypolicy.RetryPolicy[*s3.ListObjectsV2Output]
}

// New creates a store backed by a real S3 client
func New(ctx context.Context, cfg Config, logger logging.Logger) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, awserr.Configuration(awserr.ServiceS3, "S3 bucket is required", "S3_BUCKET_NAME")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	var opts []func(*config.LoadOptions) error
	opts = append(opts, config.WithRegion(cfg.Region))
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, cfg.SessionToken),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	logger.WithFields(logging.Fields{
		"bucket":   cfg.Bucket,
		"prefix":   cfg.Prefix,
		"region":   cfg.Region,
		"endpoint": cfg.Endpoint,
	}).Info("S3 store initialized")

	return NewWithAPI(s3.NewFromConfig(awsCfg, s3Opts...), cfg, logger), nil
}

// NewWithAPI creates a store over an existing client
func NewWithAPI(api API, cfg Config, logger logging.Logger) *Store {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 250 * time.Millisecond
	}

	retry := retrypolicy.NewBuilder[*s3.ListObjectsV2Output]().
		HandleIf(func(_ *s3.ListObjectsV2Output, err error) bool {
			return awserr.IsRetryable(err)
		}).
		WithBackoff(cfg.RetryDelay, 8*cfg.RetryDelay).
		WithMaxRetries(cfg.MaxRetries).
		WithJitterFactor(0.1).
		ReturnLastFailure().
		OnRetry(func(e failsafe.ExecutionEvent[*s3.ListObjectsV2Output]) {
			logger.WithFields(logging.Fields{
				"bucket":  cfg.Bucket,
				"attempt": e.Attempts(),
			}).WithError(e.LastError()).Warn("Retrying S3 listing")
		}).
		Build()

	return &Store{api: api, config: cfg, logger: logger, retry: retry}
}

// Bucket returns the bucket name
func (s *Store) Bucket() string { return s.config.Bucket }

// Region returns the configured region
func (s *Store) Region() string { return s.config.Region }

// HeadBucket checks the bucket exists and the credentials may see it
func (s *Store) HeadBucket(ctx context.Context) error {
	_, err := s.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.config.Bucket)})
	if err != nil {
		return awserr.Classify(awserr.ServiceS3, "HeadBucket", err)
	}
	return nil
}

// SampleKeys lists up to maxKeys objects once, without retrying
func (s *Store) SampleKeys(ctx context.Context, maxKeys int) ([]Object, error) {
	if maxKeys <= 0 {
		return nil, awserr.Configuration(awserr.ServiceS3, fmt.Sprintf("maxKeys must be positive, got %d", maxKeys))
	}
	out, err := s.list(ctx, maxKeys)
	if err != nil {
		return nil, awserr.Classify(awserr.ServiceS3, "ListObjectsV2", err)
	}
	return objects(out), nil
}

// ListRecentKeys lists up to maxKeys objects, newest first. Transport
// failures are retried; an empty bucket yields an empty slice.
func (s *Store) ListRecentKeys(ctx context.Context, maxKeys int) ([]Object, error) {
	if maxKeys <= 0 {
		return nil, awserr.Configuration(awserr.ServiceS3, fmt.Sprintf("maxKeys must be positive, got %d", maxKeys))
	}

	out, err := failsafe.With(s.retry).WithContext(ctx).Get(func() (*s3.ListObjectsV2Output, error) {
		return s.list(ctx, maxKeys)
	})
	if err != nil {
		return nil, awserr.Classify(awserr.ServiceS3, "ListObjectsV2", err)
	}

	objs := objects(out)
	sort.SliceStable(objs, func(i, j int) bool {
		return objs[i].LastModified.After(objs[j].LastModified)
	})

	s.logger.WithFields(logging.Fields{
		"bucket": s.config.Bucket,
		"keys":   len(objs),
	}).Debug("Listed S3 objects")

	return objs, nil
}

func (s *Store) list(ctx context.Context, maxKeys int) (*s3.ListObjectsV2Output, error) {
	in := &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.config.Bucket),
		MaxKeys: aws.Int32(int32(maxKeys)),
	}
	if s.config.Prefix != "" {
		in.Prefix = aws.String(strings.TrimPrefix(s.config.Prefix, "/"))
	}
	return s.api.ListObjectsV2(ctx, in)
}

// GetObject reads the full body of key
func (s *Store) GetObject(ctx context.Context, key string) ([]byte, error) {
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, awserr.Classify(awserr.ServiceS3, "GetObject", err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(io.LimitReader(out.Body, maxBodyBytes))
	if err != nil {
		return nil, awserr.Classify(awserr.ServiceS3, "GetObject", fmt.Errorf("failed to read body of %s: %w", key, err))
	}
	return body, nil
}

func objects(out *s3.ListObjectsV2Output) []Object {
	objs := make([]Object, 0)
	if out == nil {
		return objs
	}
	for _, o := range out.Contents {
		if o.Key == nil {
			continue
		}
		obj := Object{Key: aws.ToString(o.Key), Size: aws.ToInt64(o.Size)}
		if o.LastModified != nil {
			obj.LastModified = *o.LastModified
		}
		objs = append(objs, obj)
	}
	return objs
}

// JSONKeys keeps only keys ending in .json
func JSONKeys(objs []Object) []Object {
	out := make([]Object, 0, len(objs))
	for _, o := range objs {
		if strings.HasSuffix(strings.ToLower(o.Key), ".json") {
			out = append(out, o)
		}
	}
	return out
}
