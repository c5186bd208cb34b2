// Package fetch materializes attachment database locations as local files.
// DuckDB's ATTACH statement wants a local path, but attachment sets are often
// configured against object storage; locations of the form s3://bucket/key
// are downloaded into a local cache directory before attaching, while plain
// paths pass through untouched.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"github.com/crystalxyz/datafusion-table-providers/pkg/dbconn"
)

const s3Scheme = "s3://"

// Config holds configuration for the fetcher.
type Config struct {
	// CacheDir is where downloaded database files land. Empty means a
	// directory under the system temp dir.
	CacheDir string

	// Region is the AWS region; empty defers to the SDK's default chain.
	Region string

	// Endpoint is an optional custom endpoint (for MinIO, LocalStack, etc.).
	Endpoint string

	// UsePathStyle enables path-style addressing (required for MinIO).
	UsePathStyle bool
}

// Fetcher resolves attachment locations to local file paths. The S3 client
// is built lazily on the first remote location, so local-only attachment
// sets never touch AWS configuration.
type Fetcher struct {
	cfg        Config
	logger     *zap.Logger
	maxRetries int

	mu     sync.Mutex
	client *s3.Client
}

// New creates a fetcher. A nil logger discards download progress.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	if cfg.CacheDir == "" {
		cfg.CacheDir = filepath.Join(os.TempDir(), "dtp-attachments")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{cfg: cfg, logger: logger, maxRetries: 3}
}

// Resolve maps every location to a local file path, downloading remote
// locations into the cache directory. The result preserves input order.
func (f *Fetcher) Resolve(ctx context.Context, locations []string) ([]string, error) {
	resolved := make([]string, len(locations))
	for i, loc := range locations {
		path, err := f.resolveOne(ctx, loc)
		if err != nil {
			return nil, err
		}
		resolved[i] = path
	}
	return resolved, nil
}

func (f *Fetcher) resolveOne(ctx context.Context, location string) (string, error) {
	bucket, key, ok := SplitS3Location(location)
	if !ok {
		return location, nil
	}

	local := f.cachePath(bucket, key)
	if _, err := os.Stat(local); err == nil {
		f.logger.Debug("attachment already cached",
			zap.String("location", location), zap.String("path", local))
		return local, nil
	}

	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		return "", dbconn.WrapError(dbconn.ErrCategoryAttachment, dbconn.CodeAttachFailed,
			fmt.Sprintf("unable to prepare attachment cache for %s", location), err)
	}

	f.logger.Info("downloading attachment database",
		zap.String("location", location), zap.String("path", local))
	if err := f.download(ctx, bucket, key, local); err != nil {
		return "", err
	}
	return local, nil
}

// SplitS3Location splits an s3://bucket/key location into its parts. The
// third result is false for anything that is not an S3 location.
func SplitS3Location(location string) (bucket, key string, ok bool) {
	if !strings.HasPrefix(location, s3Scheme) {
		return "", "", false
	}
	rest := strings.TrimPrefix(location, s3Scheme)
	bucket, key, found := strings.Cut(rest, "/")
	if !found || bucket == "" || key == "" {
		return "", "", false
	}
	return bucket, key, true
}

// cachePath derives a stable local path for an object, so a re-run reuses
// the already downloaded file.
func (f *Fetcher) cachePath(bucket, key string) string {
	flat := strings.ReplaceAll(key, "/", "_")
	return filepath.Join(f.cfg.CacheDir, bucket, flat)
}

func (f *Fetcher) download(ctx context.Context, bucket, key, local string) error {
	client, err := f.s3Client(ctx)
	if err != nil {
		return dbconn.WrapError(dbconn.ErrCategoryAttachment, dbconn.CodeAttachFailed,
			"unable to build S3 client", err)
	}

	var resp *s3.GetObjectOutput
	err = f.retryWithBackoff(ctx, func() error {
		var getErr error
		resp, getErr = client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
		return getErr
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return dbconn.WrapError(dbconn.ErrCategoryAttachment, dbconn.CodeMissingAttachment,
				fmt.Sprintf("attachment object s3://%s/%s does not exist", bucket, key), err)
		}
		return dbconn.WrapError(dbconn.ErrCategoryAttachment, dbconn.CodeAttachFailed,
			fmt.Sprintf("unable to download s3://%s/%s", bucket, key), err)
	}
	defer resp.Body.Close()

	// write through a temp file so a torn download never looks cached
	tmp, err := os.CreateTemp(filepath.Dir(local), ".download-*")
	if err != nil {
		return dbconn.WrapError(dbconn.ErrCategoryAttachment, dbconn.CodeAttachFailed,
			"unable to stage attachment download", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return dbconn.WrapError(dbconn.ErrCategoryAttachment, dbconn.CodeAttachFailed,
			fmt.Sprintf("unable to download s3://%s/%s", bucket, key), err)
	}
	if err := tmp.Close(); err != nil {
		return dbconn.WrapError(dbconn.ErrCategoryAttachment, dbconn.CodeAttachFailed,
			"unable to stage attachment download", err)
	}
	if err := os.Rename(tmp.Name(), local); err != nil {
		return dbconn.WrapError(dbconn.ErrCategoryAttachment, dbconn.CodeAttachFailed,
			"unable to place attachment in cache", err)
	}
	return nil
}

func (f *Fetcher) s3Client(ctx context.Context) (*s3.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.client != nil {
		return f.client, nil
	}

	var opts []func(*awsconfig.LoadOptions) error
	if f.cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(f.cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	var s3Opts []func(*s3.Options)
	if f.cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(f.cfg.Endpoint)
		})
	}
	if f.cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	f.client = s3.NewFromConfig(awsCfg, s3Opts...)
	return f.client, nil
}

// retryWithBackoff executes the operation with exponential backoff retry.
func (f *Fetcher) retryWithBackoff(ctx context.Context, operation func() error) error {
	var lastErr error
	for attempt := 0; attempt <= f.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = operation()
		if lastErr == nil {
			return nil
		}

		// a missing object never shows up on retry
		var noSuchKey *types.NoSuchKey
		if errors.As(lastErr, &noSuchKey) {
			return lastErr
		}

		if attempt < f.maxRetries {
			backoff := time.Duration(math.Pow(2, float64(attempt))) * 100 * time.Millisecond
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return lastErr
}
