// Copyright (c) 2026 Keymaster Team
// Regvault - device registry backup and restore
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"

	"github.com/toeirei/regvault/internal/config"
	"github.com/toeirei/regvault/internal/core"
	"github.com/toeirei/regvault/internal/db"
	"github.com/toeirei/regvault/internal/i18n"
	"github.com/toeirei/regvault/internal/model"
	"github.com/toeirei/regvault/internal/objstore"
	"github.com/toeirei/regvault/internal/registry"
)

// cliJournal is the part of the run journal the commands use.
type cliJournal interface {
	core.RunJournal
	History(ctx context.Context, limit int) ([]model.Run, error)
	Close() error
}

// The open* hooks are variables so tests can inject fakes.
var (
	openRegistry = defaultOpenRegistry
	openStore    = defaultOpenStore
	openJournal  = defaultOpenJournal
)

func loadAWSConfig(ctx context.Context, cfg config.Config, region string) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AWS.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWS.AccessKeyID, cfg.AWS.SecretAccessKey, cfg.AWS.SessionToken)))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return awsCfg, nil
}

func defaultOpenRegistry(ctx context.Context, cfg config.Config, region string) (registry.Registry, error) {
	awsCfg, err := loadAWSConfig(ctx, cfg, region)
	if err != nil {
		return nil, err
	}
	return registry.NewIoT(awsCfg, registry.IoTOptions{
		Endpoint:  cfg.AWS.Endpoint,
		RateLimit: cfg.Registry.RateLimit,
	}), nil
}

func noClose() error { return nil }

// defaultOpenStore opens the configured snapshot backend rooted at prefix.
// The returned func releases backend resources.
func defaultOpenStore(ctx context.Context, cfg config.Config, region, prefix string) (*objstore.Store, func() error, error) {
	switch cfg.Store.Type {
	case "", "s3":
		if cfg.Bucket == "" {
			return nil, nil, missing("bucket")
		}
		awsCfg, err := loadAWSConfig(ctx, cfg, region)
		if err != nil {
			return nil, nil, err
		}
		b, err := objstore.NewS3(awsCfg, cfg.Bucket, objstore.S3Options{
			Endpoint:  cfg.Store.Endpoint,
			PathStyle: cfg.Store.PathStyle,
		})
		if err != nil {
			return nil, nil, err
		}
		return objstore.New(b, prefix), noClose, nil
	case "gcs":
		if cfg.Bucket == "" {
			return nil, nil, missing("bucket")
		}
		b, err := objstore.NewGCS(ctx, cfg.Bucket, cfg.Store.CredentialsFile, cfg.Store.Endpoint)
		if err != nil {
			return nil, nil, err
		}
		return objstore.New(b, prefix), b.Close, nil
	case "file":
		if cfg.Store.Dir == "" {
			return nil, nil, missing("store.dir")
		}
		b, err := objstore.NewDir(cfg.Store.Dir)
		if err != nil {
			return nil, nil, err
		}
		return objstore.New(b, prefix), noClose, nil
	default:
		return nil, nil, fmt.Errorf("unsupported store type %q", cfg.Store.Type)
	}
}

// defaultOpenJournal returns nil when the journal is disabled.
func defaultOpenJournal(ctx context.Context, cfg config.Config) (cliJournal, error) {
	if !db.Enabled(cfg.Database.Type) {
		return nil, nil
	}
	j, err := db.Open(ctx, cfg.Database.Type, cfg.Database.Dsn)
	if err != nil {
		return nil, err
	}
	return j, nil
}

func missing(setting string) error {
	return fmt.Errorf("%s", i18n.T("config.missing", setting))
}

// withJournal opens the journal for the duration of fn. A journal that
// cannot be opened is logged and the command runs without one.
func withJournal(ctx context.Context, fn func(j core.RunJournal) error) error {
	j, err := openJournal(ctx, appConfig)
	if err != nil {
		logger.Warn("run journal disabled", "err", err)
		return fn(nil)
	}
	if j == nil {
		return fn(nil)
	}
	defer func() {
		if cerr := j.Close(); cerr != nil {
			logger.Warn("closing run journal", "err", cerr)
		}
	}()
	return fn(j)
}
