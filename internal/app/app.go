// Package app wires configuration into the components both binaries share.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"

	"snapforecast/internal/config"
	"snapforecast/internal/experience"
	"snapforecast/internal/features"
	"snapforecast/internal/llm"
	"snapforecast/internal/logging"
	"snapforecast/internal/metrics"
	"snapforecast/internal/modelstore"
	"snapforecast/internal/optimizer"
	"snapforecast/internal/predict"
	"snapforecast/internal/qualitative"
	"snapforecast/internal/store"
)

const analysisCacheSize = 256

// ErrNoDatabase is returned by operations that need the collection database when none is configured.
var ErrNoDatabase = errors.New("app: no database configured")

// App holds every long-lived component of the process.
type App struct {
	Config   config.Config
	Logger   logging.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	Repository *store.Repository
	Scorer     qualitative.Scorer
	Extractor  *features.Extractor
	Classifier *experience.Classifier
	Models     *modelstore.Store
	Engine     *predict.Engine
	Builder    *predict.TrainingSetBuilder
	Optimizer  *optimizer.Optimizer

	db    *sql.DB
	redis *goredis.Client
}

// New connects the configured backends and builds the component graph. Missing optional backends
// (database, LLM, Redis, S3) degrade the matching features instead of failing.
func New(ctx context.Context, cfg config.Config, logger logging.Logger) (*App, error) {
	logger = logging.OrDiscard(logger)
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	a := &App{Config: cfg, Logger: logger, Registry: registry, Metrics: m}

	var (
		history   features.HistorySource
		campaigns features.CampaignSource
		profiles  experience.ProfileSource
		records   predict.RecordSource
		samples   optimizer.SampleSource
	)
	if cfg.DatabaseURL != "" {
		db, err := store.Connect(ctx, store.DefaultConfig(cfg.DatabaseURL), logger)
		if err != nil {
			return nil, err
		}
		a.db = db
		a.Repository = store.NewRepository(db, logger)
		history, campaigns, profiles = a.Repository, a.Repository, a.Repository
		records, samples = a.Repository, a.Repository
	} else {
		logger.Warn("SNAP_DATABASE_URL not set, author history and training data unavailable")
	}

	var client llm.ChatClient
	if cfg.LLMAPIKey != "" {
		opts := []llm.Option{llm.WithTimeout(cfg.LLMTimeout)}
		if cfg.LLMBaseURL != "" {
			opts = append(opts, llm.WithBaseURL(cfg.LLMBaseURL))
		}
		client = llm.NewClient(cfg.LLMAPIKey, opts...)
		logger.WithField("model", cfg.LLMModel).Info("qualitative scoring enabled")
	}
	scorer, err := a.buildScorer(client)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Scorer = scorer

	a.Extractor = features.NewExtractor(scorer, history, logger, m)
	a.Extractor.MinAnalysisLength = cfg.MinAnalysisLength
	a.Extractor.Campaigns = campaigns
	a.Classifier = experience.NewClassifier(profiles, logger)

	objects, err := buildObjectStore(ctx, cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Models = modelstore.NewStore(objects, modelstore.NewTrainingPool(cfg.TrainingWorkers), modelstore.Options{}, logger, m)

	var success predict.SuccessScorer
	if samples != nil {
		summarizer := optimizer.LLMSummarizer{
			Client:      client,
			Model:       cfg.LLMModel,
			Temperature: cfg.LLMTemperature,
			MaxTokens:   cfg.LLMMaxTokens,
			Fallback:    optimizer.HeuristicSummarizer{},
			Logger:      logger,
		}
		opt, err := optimizer.New(samples, scorer, a.Extractor, summarizer, optimizer.NewAnalysisCache(analysisCacheSize, optimizer.DefaultCacheTTL), logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Optimizer = opt
		success = opt
	}

	a.Engine = predict.NewEngine(a.Extractor, a.Classifier, a.Models, success, cfg.DefaultPlatform, logger, m)
	if records != nil {
		a.Builder = predict.NewTrainingSetBuilder(records, a.Extractor, logger)
	}
	return a, nil
}

func (a *App) buildScorer(client llm.ChatClient) (qualitative.Scorer, error) {
	if client == nil {
		return nil, nil
	}
	cfg := a.Config
	llmScorer := qualitative.NewLLMScorer(client, cfg.LLMModel, qualitative.DefaultBreakerConfig(), a.Logger)
	llmScorer.Temperature = cfg.LLMTemperature
	llmScorer.MaxTokens = cfg.LLMMaxTokens
	llmScorer.Timeout = cfg.LLMTimeout

	var cache qualitative.ScoreCache
	if cfg.RedisAddr != "" {
		a.redis = goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		cache = qualitative.NewRedisCache(a.redis, cfg.ScoreCacheTTL, a.Logger)
		a.Logger.WithField("addr", cfg.RedisAddr).Info("qualitative score cache backed by redis")
	} else {
		lru, err := qualitative.NewLRUCache(cfg.ScoreCacheSize, cfg.ScoreCacheTTL)
		if err != nil {
			return nil, err
		}
		cache = lru
	}
	return qualitative.NewCachedScorer(llmScorer, cache, a.Metrics), nil
}

func buildObjectStore(ctx context.Context, cfg config.Config, logger logging.Logger) (modelstore.ObjectStore, error) {
	if cfg.UseS3() {
		return modelstore.NewS3ObjectStore(ctx, modelstore.S3Config{
			Bucket:    cfg.ModelBucket,
			Prefix:    cfg.ModelPrefix,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		}, logger)
	}
	objects, err := modelstore.NewFileObjectStore(cfg.ModelDir)
	if err != nil {
		return nil, fmt.Errorf("app: model directory: %w", err)
	}
	logger.WithField("dir", cfg.ModelDir).Info("model artifacts stored on local disk")
	return objects, nil
}

// Train builds a training set from the database and fits a new version.
func (a *App) Train(ctx context.Context, platform string, t modelstore.ModelType, limit int) (*modelstore.TrainingReport, error) {
	if a.Builder == nil {
		return nil, ErrNoDatabase
	}
	return a.Engine.Train(ctx, a.Builder, platform, t, limit)
}

// Close waits for running training jobs and releases connections.
func (a *App) Close() {
	if a.Models != nil {
		a.Models.Wait()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.Logger.WithError(err).Warn("close redis")
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.Logger.WithError(err).Warn("close database")
		}
	}
}
