// Package s3 implements an S3-backed key-value surface for the directory
// store, targeting Amazon S3 or S3-compatible object storage.
//
// Object keys mirror the directory layout exactly: ".zgroup", "data/.zarray",
// "data/0.0" and so on, with an optional key prefix. The bucket contents stay
// human-readable and a store can be mirrored to or from a local directory with
// plain object copies.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/DudLab/gridstore/pkg/store"
	"github.com/DudLab/gridstore/pkg/store/zarr"
)

// KV implements zarr.KV on top of an S3 bucket.
//
// S3 provides no rename, so the overwrite proxy cannot wrap this KV;
// overwrites of S3-backed stores are plain deletes. Concurrent writers to
// the same key get last-write-wins semantics.
//
// Safe for concurrent use by multiple goroutines.
type KV struct {
	client  *awss3.Client
	bucket  string
	prefix  string
	timeout time.Duration
}

var _ zarr.KV = (*KV)(nil)

// Config contains the settings for an S3-backed KV.
type Config struct {
	// Client is the configured S3 client.
	Client *awss3.Client

	// Bucket is the S3 bucket name. The bucket must already exist.
	Bucket string

	// Prefix is an optional prefix for all object keys, for example
	// "stores/experiment1/".
	Prefix string

	// Timeout bounds each S3 operation. Defaults to 30 seconds.
	Timeout time.Duration
}

// New creates an S3-backed KV and verifies bucket access.
func New(ctx context.Context, cfg Config) (*KV, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("S3 client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	_, err := cfg.Client.HeadBucket(ctx, &awss3.HeadBucketInput{
		Bucket: aws.String(cfg.Bucket),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to access bucket %q: %w", cfg.Bucket, err)
	}

	return &KV{
		client:  cfg.Client,
		bucket:  cfg.Bucket,
		prefix:  cfg.Prefix,
		timeout: timeout,
	}, nil
}

func (s *KV) objectKey(key string) string {
	return s.prefix + key
}

func (s *KV) opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.timeout)
}

// Get downloads the object stored under key.
func (s *KV) Get(key string) ([]byte, error) {
	ctx, cancel := s.opContext()
	defer cancel()

	out, err := s.client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get object %q: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object %q: %w", key, err)
	}

	return data, nil
}

// Set uploads value under key, overwriting any previous object.
func (s *KV) Set(key string, value []byte) error {
	ctx, cancel := s.opContext()
	defer cancel()

	_, err := s.client.PutObject(ctx, &awss3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
		Body:   bytes.NewReader(value),
	})
	if err != nil {
		return fmt.Errorf("failed to put object %q: %w", key, err)
	}

	return nil
}

// Delete removes the object under key. S3 deletes are idempotent, so the
// existence check requires a separate HEAD request to honor the KV contract.
func (s *KV) Delete(key string) error {
	ctx, cancel := s.opContext()
	defer cancel()

	objKey := s.objectKey(key)

	_, err := s.client.HeadObject(ctx, &awss3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objKey),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return store.ErrNotFound
		}
		return fmt.Errorf("failed to stat object %q: %w", key, err)
	}

	_, err = s.client.DeleteObject(ctx, &awss3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objKey),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object %q: %w", key, err)
	}

	return nil
}

// List returns all keys under the configured prefix in sorted order.
func (s *KV) List() ([]string, error) {
	ctx, cancel := s.opContext()
	defer cancel()

	var keys []string

	paginator := awss3.NewListObjectsV2Paginator(s.client, &awss3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}

		for _, obj := range page.Contents {
			if obj.Key == nil {
				continue
			}
			key := *obj.Key
			if s.prefix != "" && len(key) > len(s.prefix) {
				key = key[len(s.prefix):]
			}
			keys = append(keys, key)
		}
	}

	sort.Strings(keys)
	return keys, nil
}

// DeleteBatch removes many objects using the S3 DeleteObjects API, which
// accepts up to 1000 keys per request. Larger batches are chunked
// automatically. The returned map holds per-key failures; an empty map means
// every delete succeeded. Keys absent from the bucket count as deleted.
func (s *KV) DeleteBatch(ctx context.Context, keys []string) (map[string]error, error) {
	failures := make(map[string]error)

	const maxBatchSize = 1000

	for i := 0; i < len(keys); i += maxBatchSize {
		if err := ctx.Err(); err != nil {
			for j := i; j < len(keys); j++ {
				failures[keys[j]] = err
			}
			return failures, err
		}

		end := i + maxBatchSize
		if end > len(keys) {
			end = len(keys)
		}
		batch := keys[i:end]

		objects := make([]types.ObjectIdentifier, len(batch))
		for j, key := range batch {
			objects[j] = types.ObjectIdentifier{
				Key: aws.String(s.objectKey(key)),
			}
		}

		result, err := s.client.DeleteObjects(ctx, &awss3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{
				Objects: objects,
				Quiet:   aws.Bool(false),
			},
		})
		if err != nil {
			for _, key := range batch {
				failures[key] = err
			}
			continue
		}

		for _, deleteErr := range result.Errors {
			if deleteErr.Key == nil {
				continue
			}
			key := *deleteErr.Key
			if s.prefix != "" && len(key) > len(s.prefix) {
				key = key[len(s.prefix):]
			}
			msg := "unknown error"
			if deleteErr.Code != nil && deleteErr.Message != nil {
				msg = fmt.Sprintf("%s: %s", *deleteErr.Code, *deleteErr.Message)
			}
			failures[key] = errors.New(msg)
		}
	}

	return failures, nil
}
