package storage

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	Bucket    string
	UseSSL    bool
}

// Client wraps the S3-compatible store build artifacts live in. The
// upload path is owned by separate middleware; this client only
// resolves locators into operator-facing download links.
type Client struct {
	mc     *minio.Client
	config Config
}

func NewClient(cfg Config) (*Client, error) {
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("s3 client: %w", err)
	}
	return &Client{mc: mc, config: cfg}, nil
}

// EnsureBucket creates the artifact bucket when missing.
func (c *Client) EnsureBucket(ctx context.Context) error {
	exists, err := c.mc.BucketExists(ctx, c.config.Bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", c.config.Bucket, err)
	}
	if exists {
		return nil
	}
	region := c.config.Region
	if region == "" {
		region = "us-east-1"
	}
	if err := c.mc.MakeBucket(ctx, c.config.Bucket, minio.MakeBucketOptions{Region: region}); err != nil {
		return fmt.Errorf("create bucket %s: %w", c.config.Bucket, err)
	}
	log.Printf("s3: created bucket %s", c.config.Bucket)
	return nil
}

// PresignDownload turns an artifact locator (s3://bucket/key or a bare
// object key) into a time-limited download URL.
func (c *Client) PresignDownload(ctx context.Context, locator string, expiry time.Duration) (string, error) {
	bucket, key := c.resolve(locator)
	if key == "" {
		return "", fmt.Errorf("locator %q has no object key", locator)
	}
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}
	u, err := c.mc.PresignedGetObject(ctx, bucket, key, expiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", locator, err)
	}
	return u.String(), nil
}

// StatArtifact reports whether the locator's object exists and its size.
func (c *Client) StatArtifact(ctx context.Context, locator string) (int64, error) {
	bucket, key := c.resolve(locator)
	info, err := c.mc.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", locator, err)
	}
	return info.Size, nil
}

func (c *Client) Healthy(ctx context.Context) error {
	_, err := c.mc.ListBuckets(ctx)
	return err
}

func (c *Client) resolve(locator string) (bucket, key string) {
	if rest, ok := strings.CutPrefix(locator, "s3://"); ok {
		bucket, key, _ = strings.Cut(rest, "/")
		return bucket, key
	}
	return c.config.Bucket, strings.TrimPrefix(locator, "/")
}
