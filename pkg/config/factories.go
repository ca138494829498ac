package config

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/mitchellh/mapstructure"

	"github.com/DudLab/gridstore/internal/logger"
	"github.com/DudLab/gridstore/pkg/metrics"
	"github.com/DudLab/gridstore/pkg/reclaim"
	"github.com/DudLab/gridstore/pkg/store"
	"github.com/DudLab/gridstore/pkg/store/hier"
	"github.com/DudLab/gridstore/pkg/store/zarr"
	zarrs3 "github.com/DudLab/gridstore/pkg/store/zarr/s3"
)

// CreateExecutor creates the background reclamation executor from
// configuration and starts its workers. Metric collection is attached when
// enabled.
func CreateExecutor(cfg *ReclaimConfig) *reclaim.Executor {
	ex := reclaim.NewExecutor(reclaim.Config{
		Workers:  cfg.Workers,
		Observer: metrics.NewReclaimObserver(),
	})
	ex.Start()
	return ex
}

// CreateStore creates an array store based on configuration.
//
// Supported types:
//   - "zarr": directory store on a local path, a packed archive, or S3
//   - "hier": monolithic store in a single BadgerDB container
//
// The executor is used for overwrite quarantining on filesystem-backed zarr
// stores; pass nil to disable quarantining.
func CreateStore(ctx context.Context, cfg *StoreConfig, ex *reclaim.Executor) (store.Store, error) {
	switch cfg.Type {
	case "zarr":
		return createZarrStore(ctx, cfg.Zarr, ex)
	case "hier":
		return createHierStore(cfg.Hier)
	default:
		return nil, fmt.Errorf("unknown store type: %q", cfg.Type)
	}
}

// createZarrStore creates a directory store from its option map.
func createZarrStore(ctx context.Context, options map[string]any, ex *reclaim.Executor) (store.Store, error) {
	type ZarrStoreConfig struct {
		Path            string `mapstructure:"path"`
		Create          bool   `mapstructure:"create"`
		Quarantine      bool   `mapstructure:"quarantine"`
		Region          string `mapstructure:"region"`
		Bucket          string `mapstructure:"bucket"`
		KeyPrefix       string `mapstructure:"key_prefix"`
		Endpoint        string `mapstructure:"endpoint"`
		AccessKeyID     string `mapstructure:"access_key_id"`
		SecretAccessKey string `mapstructure:"secret_access_key"`
		MaxRetries      int    `mapstructure:"max_retries"`
	}

	var storeCfg ZarrStoreConfig
	if err := mapstructure.Decode(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode zarr store config: %w", err)
	}

	if storeCfg.Bucket != "" {
		return createS3ZarrStore(ctx, storeCfg.Region, storeCfg.Bucket, storeCfg.KeyPrefix,
			storeCfg.Endpoint, storeCfg.AccessKeyID, storeCfg.SecretAccessKey,
			storeCfg.MaxRetries, storeCfg.Create)
	}

	if storeCfg.Path == "" {
		return nil, fmt.Errorf("zarr store: either path or bucket is required")
	}

	info, err := os.Stat(storeCfg.Path)
	switch {
	case err == nil && !info.IsDir():
		// A regular file is a packed archive, opened read-only.
		kv, err := zarr.OpenZipKV(storeCfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open packed store: %w", err)
		}
		return zarr.Open(kv)

	case err != nil && !os.IsNotExist(err):
		return nil, fmt.Errorf("failed to stat store path: %w", err)
	}

	fskv, err := zarr.NewFSKV(storeCfg.Path)
	if err != nil {
		return nil, err
	}

	var kv zarr.KV = fskv
	if storeCfg.Quarantine && ex != nil {
		kv = reclaim.NewOverwriteProxy(fskv, ex)
	}

	st, err := openOrCreate(kv, storeCfg.Create)
	if err != nil {
		return nil, err
	}

	logger.Info("zarr store opened: path=%s quarantine=%t", storeCfg.Path, storeCfg.Quarantine)
	return st, nil
}

// createS3ZarrStore builds an S3 client the same way the content stack does
// and opens a directory store on top of the bucket.
func createS3ZarrStore(ctx context.Context, region, bucket, prefix, endpoint, accessKey, secretKey string, maxRetries int, create bool) (store.Store, error) {
	if region == "" {
		return nil, fmt.Errorf("zarr store: region is required for S3 backends")
	}

	var configOptions []func(*awsConfig.LoadOptions) error
	configOptions = append(configOptions, awsConfig.WithRegion(region))

	if endpoint != "" {
		//nolint:staticcheck // TODO: migrate to BaseEndpoint when AWS SDK v2 stabilizes the new API
		customResolver := aws.EndpointResolverWithOptionsFunc(
			func(service, region string, options ...interface{}) (aws.Endpoint, error) {
				//nolint:staticcheck
				return aws.Endpoint{
					URL:               endpoint,
					HostnameImmutable: true,
					Source:            aws.EndpointSourceCustom,
				}, nil
			},
		)
		//nolint:staticcheck
		configOptions = append(configOptions, awsConfig.WithEndpointResolverWithOptions(customResolver))
	}

	if accessKey != "" && secretKey != "" {
		credProvider := credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")
		configOptions = append(configOptions, awsConfig.WithCredentialsProvider(credProvider))
	}

	if maxRetries == 0 {
		maxRetries = 10
	}
	configOptions = append(configOptions, awsConfig.WithRetryer(func() aws.Retryer {
		return retry.NewStandard(func(o *retry.StandardOptions) {
			o.MaxAttempts = maxRetries
		})
	}))

	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, configOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		// Path-style addressing for MinIO and other S3-compatible endpoints
		if endpoint != "" {
			o.UsePathStyle = true
		}
	})

	kv, err := zarrs3.New(ctx, zarrs3.Config{
		Client: client,
		Bucket: bucket,
		Prefix: prefix,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 store backend: %w", err)
	}

	st, err := openOrCreate(kv, create)
	if err != nil {
		return nil, err
	}

	logger.Info("zarr store opened: bucket=%s region=%s prefix=%s", bucket, region, prefix)
	return st, nil
}

// createHierStore creates a monolithic store from its option map.
func createHierStore(options map[string]any) (store.Store, error) {
	type HierStoreConfig struct {
		Path string `mapstructure:"path"`
	}

	var storeCfg HierStoreConfig
	if err := mapstructure.Decode(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode hier store config: %w", err)
	}

	if storeCfg.Path == "" {
		return nil, fmt.Errorf("hier store: path is required")
	}

	st, err := hier.Open(storeCfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open hier store: %w", err)
	}

	logger.Info("hier store opened: path=%s", storeCfg.Path)
	return st, nil
}

func openOrCreate(kv zarr.KV, create bool) (store.Store, error) {
	if create {
		return zarr.Create(kv)
	}
	return zarr.Open(kv)
}
