// Package app builds the import pipeline from configuration. Both the HTTP
// server and the loadimport CLI start from Build.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/ignite/loadboard/internal/bulkimport"
	"github.com/ignite/loadboard/internal/config"
	"github.com/ignite/loadboard/internal/docstore"
	"github.com/ignite/loadboard/internal/history"
	"github.com/ignite/loadboard/internal/pkg/distlock"
	"github.com/ignite/loadboard/internal/pkg/httpretry"
	"github.com/ignite/loadboard/internal/pkg/logger"
	"github.com/ignite/loadboard/internal/similarity"
	"github.com/ignite/loadboard/internal/storage"
	"github.com/ignite/loadboard/internal/wallet"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"
)

// App is the wired pipeline plus the connections it holds.
type App struct {
	Imports *bulkimport.Service
	Wallet  *wallet.Service
	Store   docstore.Store
	DB      *sql.DB
	Redis   *redis.Client

	closers []func() error
}

// Close releases the connections in reverse order of opening.
func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// ConfigureLogging applies the logging section to the package logger.
func ConfigureLogging(cfg config.LoggingConfig) {
	logger.SetLevel(logger.ParseLevel(cfg.Level))
	logger.SetRedactPII(cfg.Redact())
}

// Build opens the configured backends and wires the services. On error any
// connection already opened is closed.
func Build(ctx context.Context, cfg *config.Config) (_ *App, err error) {
	a := &App{}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	awsCfg, err := a.openStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	a.openRedis(ctx, cfg.Redis)

	var hist interface {
		bulkimport.History
		bulkimport.PreviewCache
	}
	if a.Redis != nil {
		hist = history.NewRedisStore(a.Redis, cfg.Import.PreviewTTL())
	} else {
		logger.Warn("app: redis not configured, history and previews kept in memory")
		hist = history.NewMemoryStore()
	}
	locks := distlock.NewLocker(a.Redis, a.DB, time.Duration(cfg.Redis.LockTTLSeconds)*time.Second)

	scorer, err := newScorer(ctx, cfg, awsCfg)
	if err != nil {
		return nil, err
	}
	archive, err := newArchive(ctx, cfg)
	if err != nil {
		return nil, err
	}

	loads := bulkimport.NewLoadRepository(a.Store, cfg.Import.HashLookupBatch)
	a.Imports = bulkimport.NewService(bulkimport.ServiceDeps{
		Detector: bulkimport.NewDuplicateDetector(loads, scorer, cfg.Import.SimilarityThreshold),
		Executor: bulkimport.NewExecutor(a.Store, loads, locks, hist, bulkimport.ExecutorConfig{
			BatchSize:          cfg.Import.BatchSize,
			RetryFailedBatches: cfg.Import.RetryFailedBatches,
			ExpiryGrace:        cfg.Import.ExpiryGrace(),
		}),
		Undoer:   bulkimport.NewUndoer(a.Store, loads, hist, cfg.Import.BatchSize),
		Previews: hist,
		History:  hist,
		Archive:  archive,
		MaxRows:  cfg.Import.MaxRows,
	})
	a.Wallet = wallet.NewService(a.Store, cfg.Wallet.PlatformFeePercent)
	return a, nil
}

// openStore opens the document store. The AWS config is returned when the
// DynamoDB backend loaded one, so other AWS clients can share it.
func (a *App) openStore(ctx context.Context, cfg config.StoreConfig) (*aws.Config, error) {
	switch cfg.Backend {
	case config.BackendPostgres:
		db, err := sql.Open("postgres", withTimeouts(cfg.DatabaseURL))
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(3)
		db.SetConnMaxLifetime(5 * time.Minute)

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		store := docstore.NewPostgresStore(db)
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		a.DB, a.Store = db, store
		logger.Info("app: document store ready", "backend", cfg.Backend)
		return nil, nil

	case config.BackendDynamoDB:
		awsCfg, err := storage.LoadAWSConfig(ctx, storage.AWSOptions{
			Region:          cfg.Region,
			Profile:         cfg.AWSProfile,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
		})
		if err != nil {
			return nil, err
		}
		a.Store = docstore.NewDynamoStoreFromConfig(awsCfg, cfg.DynamoDBTable)
		logger.Info("app: document store ready", "backend", cfg.Backend, "table", cfg.DynamoDBTable)
		return &awsCfg, nil

	default:
		logger.Warn("app: using the in-memory document store, data is lost on exit")
		a.Store = docstore.NewMemoryStore()
		return nil, nil
	}
}

// openRedis connects when a URL is set. An unreachable Redis is logged and
// skipped.
func (a *App) openRedis(ctx context.Context, cfg config.RedisConfig) {
	if cfg.URL == "" {
		return
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		opts = &redis.Options{Addr: cfg.URL}
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("app: redis unreachable, continuing without it", "addr", opts.Addr, "error", err)
		client.Close()
		return
	}
	a.Redis = client
	a.closers = append(a.closers, client.Close)
	logger.Info("app: redis connected", "addr", opts.Addr)
}

func newScorer(ctx context.Context, cfg *config.Config, shared *aws.Config) (similarity.Scorer, error) {
	local := similarity.NewLocalScorer()
	sc := cfg.Similarity
	switch sc.Provider {
	case config.ProviderHTTP:
		client := httpretry.New(nil, httpretry.Options{MaxRetries: sc.MaxRetries, Timeout: sc.Timeout()})
		return similarity.NewHTTPScorer(sc.BaseURL, client), nil
	case config.ProviderBedrock:
		region := sc.Region
		if region == "" {
			region = cfg.Store.Region
		}
		if shared != nil && shared.Region == region {
			return similarity.NewBedrockScorerFromConfig(local, *shared, sc.BedrockModelID), nil
		}
		awsCfg, err := storage.LoadAWSConfig(ctx, storage.AWSOptions{
			Region:          region,
			Profile:         cfg.Store.AWSProfile,
			AccessKeyID:     cfg.Store.AccessKeyID,
			SecretAccessKey: cfg.Store.SecretAccessKey,
		})
		if err != nil {
			return nil, err
		}
		return similarity.NewBedrockScorerFromConfig(local, awsCfg, sc.BedrockModelID), nil
	default:
		return local, nil
	}
}

func newArchive(ctx context.Context, cfg *config.Config) (bulkimport.SkippedArchive, error) {
	if cfg.Exports.S3Bucket == "" {
		return storage.NewLocalArchive(cfg.Exports.LocalPath), nil
	}
	awsCfg, err := storage.LoadAWSConfig(ctx, storage.AWSOptions{
		Region:          cfg.Exports.S3Region,
		Profile:         cfg.Store.AWSProfile,
		AccessKeyID:     cfg.Store.AccessKeyID,
		SecretAccessKey: cfg.Store.SecretAccessKey,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("app: skipped-row exports archived to S3", "bucket", cfg.Exports.S3Bucket)
	return storage.NewSkippedRowsArchiveFromConfig(awsCfg, cfg.Exports.S3Bucket), nil
}

// withTimeouts adds a connect timeout and server-side statement limits to a
// PostgreSQL URL.
func withTimeouts(dbURL string) string {
	sep := "?"
	if strings.Contains(dbURL, "?") {
		sep = "&"
	}
	if !strings.Contains(dbURL, "connect_timeout") {
		dbURL += sep + "connect_timeout=5"
		sep = "&"
	}
	return dbURL + sep + "options=-c%20statement_timeout%3D15000"
}
