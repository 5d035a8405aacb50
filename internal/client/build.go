package client

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/athena"

	"github.com/athenakit/athenakit/internal/config"
	"github.com/athenakit/athenakit/internal/fetch"
	"github.com/athenakit/athenakit/internal/lifecycle"
	"github.com/athenakit/athenakit/internal/progress"
	"github.com/athenakit/athenakit/internal/storage"
	"github.com/athenakit/athenakit/internal/storage/awss3"
	s3store "github.com/athenakit/athenakit/internal/storage/s3"
)

type Options struct {
	Logger   *slog.Logger
	Progress progress.Factory
}

// New wires an Athena client from configuration: the AWS Athena API, the
// configured object store backend and the result decoder.
func New(ctx context.Context, cfg config.Config, opts Options) (*Athena, error) {
	awsCfg, err := LoadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	store, err := NewObjectStore(cfg, awsCfg)
	if err != nil {
		return nil, err
	}
	decoder, err := fetch.DecoderFor(cfg.Athena.ResultFormat)
	if err != nil {
		return nil, err
	}

	controller := &lifecycle.Controller{
		API:   athena.NewFromConfig(awsCfg),
		Store: store,
		Config: lifecycle.Config{
			Workgroup:      cfg.Athena.Workgroup,
			Database:       cfg.Athena.Database,
			OutputLocation: cfg.Athena.OutputLocation,
			PollInterval:   cfg.Athena.PollInterval,
			Format:         cfg.Athena.ResultFormat,
		},
		Progress: opts.Progress,
		Logger:   opts.Logger,
	}
	fetcher := &fetch.Fetcher{
		Store:    store,
		Decoder:  decoder,
		Gzipped:  cfg.Fetch.Gzipped,
		Progress: opts.Progress,
		Logger:   opts.Logger,
	}
	return &Athena{
		Lifecycle:   controller,
		Fetcher:     fetcher,
		Database:    cfg.Athena.Database,
		Concurrency: cfg.Fetch.Concurrency,
		PageSize:    cfg.Athena.PageSize,
		TablePrefix: cfg.Athena.TablePrefix,
		DateFields:  cfg.Athena.DateFields,
		Logger:      opts.Logger,
	}, nil
}

// LoadAWSConfig resolves AWS settings for the Athena region. Static object
// store keys take precedence over the default credential chain only when the
// object store is AWS S3; MinIO keys are never sent to Athena.
func LoadAWSConfig(ctx context.Context, cfg config.Config) (aws.Config, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Athena.Region),
	}
	if usesAWSKeys(cfg.ObjectStore) {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.ObjectStore.AccessKeyID, cfg.ObjectStore.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return awsCfg, nil
}

func usesAWSKeys(store config.ObjectStoreConfig) bool {
	if store.Backend != config.BackendAWS && store.Backend != "" {
		return false
	}
	return store.AccessKeyID != "" && store.SecretAccessKey != ""
}

// NewObjectStore builds the result object store for the configured backend.
func NewObjectStore(cfg config.Config, awsCfg aws.Config) (storage.ObjectStore, error) {
	switch cfg.ObjectStore.Backend {
	case config.BackendMinIO:
		store, err := s3store.New(s3store.Config{
			Endpoint:        cfg.ObjectStore.Endpoint,
			Region:          cfg.ObjectStore.Region,
			AccessKeyID:     cfg.ObjectStore.AccessKeyID,
			SecretAccessKey: cfg.ObjectStore.SecretAccessKey,
			UseSSL:          cfg.ObjectStore.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("create minio object store: %w", err)
		}
		return store, nil
	case config.BackendAWS, "":
		storeCfg := awsCfg.Copy()
		if cfg.ObjectStore.Region != "" {
			storeCfg.Region = cfg.ObjectStore.Region
		}
		return awss3.NewFromConfig(storeCfg, awss3.Config{
			Endpoint:     cfg.ObjectStore.Endpoint,
			UsePathStyle: cfg.ObjectStore.UsePathStyle,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported object store backend %q", cfg.ObjectStore.Backend)
	}
}
