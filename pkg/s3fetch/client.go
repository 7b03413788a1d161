package s3fetch

import (
	"bytes"
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/eunmann/raibinary/internal/logctx"
	"github.com/eunmann/raibinary/pkg/logging"
)

// ClientConfig configures multipart transfers.
type ClientConfig struct {
	// Concurrency is the number of concurrent parts per transfer.
	// Default: max(4, NumCPU), capped at 16.
	Concurrency int

	// PartSize is the size of each transfer part in bytes. Default: 16MB.
	PartSize int64
}

// DefaultClientConfig returns sensible defaults based on the current machine.
func DefaultClientConfig() ClientConfig {
	concurrency := runtime.NumCPU()
	if concurrency < 4 {
		concurrency = 4
	}
	if concurrency > 16 {
		concurrency = 16
	}
	return ClientConfig{
		Concurrency: concurrency,
		PartSize:    16 * 1024 * 1024,
	}
}

// Client fetches and stores whole objects. Large objects are transferred
// as parallel ranged parts.
type Client struct {
	s3Client   *s3.Client
	downloader *manager.Downloader
	uploader   *manager.Uploader
	cfg        ClientConfig
}

// NewClient creates a new S3 client using default AWS configuration.
func NewClient(ctx context.Context, cfg ClientConfig) (*Client, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return NewClientWithConfig(awsCfg, cfg), nil
}

// NewClientWithConfig creates a new S3 client with a custom AWS config.
func NewClientWithConfig(awsCfg aws.Config, cfg ClientConfig) *Client {
	def := DefaultClientConfig()
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.PartSize <= 0 {
		cfg.PartSize = def.PartSize
	}

	s3Client := s3.NewFromConfig(awsCfg)
	return &Client{
		s3Client: s3Client,
		downloader: manager.NewDownloader(s3Client, func(d *manager.Downloader) {
			d.Concurrency = cfg.Concurrency
			d.PartSize = cfg.PartSize
		}),
		uploader: manager.NewUploader(s3Client, func(u *manager.Uploader) {
			u.Concurrency = cfg.Concurrency
			u.PartSize = cfg.PartSize
		}),
		cfg: cfg,
	}
}

// FetchObject downloads an entire object into memory.
func (c *Client) FetchObject(ctx context.Context, bucket, key string) ([]byte, error) {
	start := time.Now()
	buf := manager.NewWriteAtBuffer(nil)
	n, err := c.downloader.Download(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", FormatS3URI(bucket, key), err)
	}

	logging.NewCompletionEvent(logctx.FromContext(ctx), "object_fetched", "s3", time.Since(start)).
		Str("uri", FormatS3URI(bucket, key)).
		Bytes("bytes", n).
		Throughput(n).
		LogDebug("object fetched")
	return buf.Bytes()[:n], nil
}

// PutObject uploads data as a single object.
func (c *Client) PutObject(ctx context.Context, bucket, key string, data []byte) error {
	start := time.Now()
	_, err := c.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", FormatS3URI(bucket, key), err)
	}

	logging.NewCompletionEvent(logctx.FromContext(ctx), "object_stored", "s3", time.Since(start)).
		Str("uri", FormatS3URI(bucket, key)).
		Bytes("bytes", int64(len(data))).
		Throughput(int64(len(data))).
		LogDebug("object stored")
	return nil
}
