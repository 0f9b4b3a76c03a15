// Package app wires configuration, AWS clients, Redis and the use-case
// services into one graph shared by the Lambda and CLI entry points.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/redis/go-redis/v9"

	"lead-dashboard/internal/config"
	"lead-dashboard/internal/integrations/objectstore"
	"lead-dashboard/internal/integrations/openai"
	"lead-dashboard/internal/integrations/paramstore"
	"lead-dashboard/internal/report"
	"lead-dashboard/internal/repository"
	"lead-dashboard/internal/usecase"
)

const retryBackoff = 500 * time.Millisecond

// App holds the services built from one Config.
type App struct {
	Sync     *usecase.SyncService
	View     *usecase.ViewService
	Settings *usecase.SettingsService
	Regions  report.Regions

	redis redis.UniversalClient
}

// Close releases the Redis connection pool.
func (a *App) Close() error {
	return a.redis.Close()
}

// New builds every service from cfg. It fails fast when Redis is unreachable.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("app: load AWS config: %w", err)
	}

	params, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
	if err != nil {
		return nil, fmt.Errorf("app: param store: %w", err)
	}

	var llmOpts []openai.Option
	if cfg.OpenAI.BaseURL != "" {
		llmOpts = append(llmOpts, openai.WithBaseURL(cfg.OpenAI.BaseURL))
	}
	llm, err := openai.NewClient(params, cfg.ParamPrefix, llmOpts...)
	if err != nil {
		return nil, fmt.Errorf("app: openai client: %w", err)
	}

	rdb, err := repository.NewRedisClient(repository.RedisOptions{
		URL:      cfg.Redis.URL,
		Addrs:    cfg.Redis.Addrs,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = rdb.Close()
		}
	}()

	gateway, err := repository.NewGateway(rdb)
	if err != nil {
		return nil, err
	}
	if err := gateway.Ping(ctx); err != nil {
		return nil, fmt.Errorf("app: redis unreachable: %w", err)
	}

	var mirror report.Mirror
	if cfg.Report.Bucket != "" {
		store, err := objectstore.New(awss3.NewFromConfig(awsCfg), cfg.Report.Bucket, cfg.Report.Prefix)
		if err != nil {
			return nil, fmt.Errorf("app: object store: %w", err)
		}
		mirror = store
	}
	table, err := report.NewFileStore(cfg.Report.Path, mirror)
	if err != nil {
		return nil, err
	}

	var ledger usecase.RunLedger
	if cfg.RunTable != "" {
		l, err := repository.NewRunLedger(awsdynamodb.NewFromConfig(awsCfg), cfg.RunTable)
		if err != nil {
			return nil, fmt.Errorf("app: run ledger: %w", err)
		}
		ledger = l
	}

	regions := report.DefaultRegions()
	if cfg.Report.RegionTable != "" {
		regions, err = report.LoadRegions(cfg.Report.RegionTable)
		if err != nil {
			return nil, err
		}
	}

	analyzer, err := usecase.NewAnalyzer(llm,
		usecase.WithModel(cfg.OpenAI.Model),
		usecase.WithRateLimit(cfg.OpenAI.RPS, 1),
		usecase.WithRetry(cfg.OpenAI.MaxAttempts, retryBackoff),
		usecase.WithAnalyzerLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	settings, err := usecase.NewSettingsService(params, cfg.ParamPrefix)
	if err != nil {
		return nil, err
	}

	cache := &usecase.RowCache{}
	syncSvc, err := usecase.NewSyncService(gateway, analyzer, settings, table, cache, usecase.SyncServiceConfig{
		Concurrency: cfg.Sync.Concurrency,
		Logger:      logger,
		Ledger:      ledger,
		Location:    loc,
	})
	if err != nil {
		return nil, err
	}

	viewSvc, err := usecase.NewViewService(gateway, table, cache, regions, loc)
	if err != nil {
		return nil, err
	}

	return &App{
		Sync:     syncSvc,
		View:     viewSvc,
		Settings: settings,
		Regions:  regions,
		redis:    rdb,
	}, nil
}
