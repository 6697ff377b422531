// Package app wires configuration, infrastructure and services into the API and
// worker processes.
package app

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/qbank-api/internal/repository"
	"github.com/noah-isme/qbank-api/internal/segment"
	"github.com/noah-isme/qbank-api/internal/service"
	"github.com/noah-isme/qbank-api/pkg/cache"
	"github.com/noah-isme/qbank-api/pkg/config"
	"github.com/noah-isme/qbank-api/pkg/database"
	"github.com/noah-isme/qbank-api/pkg/jobs"
	"github.com/noah-isme/qbank-api/pkg/llm"
	"github.com/noah-isme/qbank-api/pkg/pdftext"
	"github.com/noah-isme/qbank-api/pkg/storage"
)

// Options tweaks how a process is assembled.
type Options struct {
	// RequireRedis connects to Redis even when jobs are not dispatched through it.
	RequireRedis bool
}

// Container holds the long-lived dependencies of one process.
type Container struct {
	Cfg    *config.Config
	Logger *zap.Logger
	DB     *sqlx.DB
	Redis  *redis.Client

	Metrics    *service.MetricsService
	Materials  *service.MaterialService
	Generation *service.GenerationService
	Pipeline   *service.Pipeline
	Worker     *service.GenerationWorker
	Export     *service.ExportService
	Reaper     *service.Reaper

	Queue      *jobs.Queue
	RedisQueue *jobs.RedisQueue
}

// New connects to every backing store and builds the service graph.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts Options) (*Container, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Container{Cfg: cfg, Logger: logger, Metrics: service.NewMetricsService()}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	c.DB = db
	if err := database.EnsureSchema(ctx, db); err != nil {
		c.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	if opts.RequireRedis || cfg.Generation.DispatchMode == config.DispatchRedis {
		client, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("init redis: %w", err)
		}
		c.Redis = client
	}

	store, err := newStore(ctx, cfg.Storage)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("init storage: %w", err)
	}

	validate := validator.New()
	materialRepo := repository.NewMaterialRepository(db)
	jobRepo := repository.NewGenerationJobRepository(db)
	questionRepo := repository.NewQuestionRepository(db)

	segmenter := segment.New(segment.Options{
		MaxHeadingChars: cfg.Segment.MaxHeadingChars,
		MaxHeadingWords: cfg.Segment.MaxHeadingWords,
		FontSizeRatio:   cfg.Segment.FontSizeRatio,
	})
	c.Materials = service.NewMaterialService(materialRepo, store, pdftext.NewExtractor(), segmenter, validate, c.Metrics, logger.Named("materials"))

	generator := llm.New(llm.Config{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
	}, logger.Named("llm"))
	synthesizer := service.NewSynthesizer(generator, service.SynthesizerConfig{MaxContextChars: cfg.Generation.MaxContextChars}, logger.Named("synthesizer"))

	c.Pipeline = service.NewPipeline(jobRepo, questionRepo, c.Materials, synthesizer, c.Metrics, logger.Named("pipeline"))
	c.Worker = service.NewGenerationWorker(c.Pipeline, logger.Named("worker"))

	var dispatcher service.Dispatcher
	switch cfg.Generation.DispatchMode {
	case config.DispatchMemory:
		c.Queue = jobs.NewQueue("generation", c.Worker.Handle, c.queueConfig())
		dispatcher = c.Queue
	case config.DispatchRedis:
		c.RedisQueue = jobs.NewRedisQueue(c.Redis, cfg.Generation.QueueKey, logger.Named("redis-queue"))
		dispatcher = c.RedisQueue
	}

	c.Generation = service.NewGenerationService(jobRepo, questionRepo, c.Materials, c.Pipeline, dispatcher, validate, c.Metrics, logger.Named("generation"))
	c.Export = service.NewExportService(jobRepo, questionRepo, c.Materials, logger.Named("export"), nil, nil)
	c.Reaper = service.NewReaper(jobRepo, service.ReaperConfig{
		Interval:       cfg.Reaper.Interval,
		StaleThreshold: cfg.Reaper.StaleThreshold,
	}, c.Metrics, logger.Named("reaper"))

	logger.Sugar().Infow("service graph ready",
		"dispatch_mode", cfg.Generation.DispatchMode,
		"storage_driver", cfg.Storage.Driver,
		"llm_model", cfg.LLM.Model,
	)
	return c, nil
}

// Start launches the background parts the API process owns: the in-process queue,
// pending job recovery and the reaper. Recovery only applies to the in-process queue;
// the redis list outlives restarts.
func (c *Container) Start(ctx context.Context) {
	if c.Queue != nil {
		c.Queue.Start(ctx)
	}
	if c.Cfg.Generation.RecoverOnStart && c.Queue != nil {
		c.Generation.RecoverPendingJobs(ctx)
	}
	if c.Cfg.Reaper.Enabled {
		c.Reaper.Start(ctx)
	}
}

// ConsumeRedis blocks running the out-of-process generation workers until ctx ends.
func (c *Container) ConsumeRedis(ctx context.Context) error {
	if c.Redis == nil {
		return fmt.Errorf("redis is not configured")
	}
	queue := c.RedisQueue
	if queue == nil {
		queue = jobs.NewRedisQueue(c.Redis, c.Cfg.Generation.QueueKey, c.Logger.Named("redis-queue"))
	}
	queue.Consume(ctx, c.Worker.Handle, c.queueConfig())
	return nil
}

// Close stops workers and releases connections.
func (c *Container) Close() {
	if c.Queue != nil {
		c.Queue.Stop()
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			c.Logger.Sugar().Warnw("failed to close redis", "error", err)
		}
	}
	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			c.Logger.Sugar().Warnw("failed to close postgres", "error", err)
		}
	}
}

func (c *Container) queueConfig() jobs.QueueConfig {
	return jobs.QueueConfig{
		Workers:    c.Cfg.Generation.Workers,
		BufferSize: c.Cfg.Generation.QueueBuffer,
		MaxRetries: c.Cfg.Generation.MaxRetries,
		Logger:     c.Logger.Named("queue"),
	}
}

func newStore(ctx context.Context, cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Driver {
	case config.StorageMinio:
		return storage.NewMinioStorage(ctx, storage.MinioConfig{
			Endpoint:   cfg.MinioEndpoint,
			AccessKey:  cfg.MinioAccessKey,
			SecretKey:  cfg.MinioSecretKey,
			Bucket:     cfg.MinioBucket,
			UseSSL:     cfg.MinioUseSSL,
			AutoCreate: cfg.MinioAutoCreate,
		})
	default:
		return storage.NewLocalStorage(cfg.LocalDir)
	}
}
