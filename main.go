package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/sirupsen/logrus"

	"github.com/double-tu/youtube-subtitle-proxy/cache"
	"github.com/double-tu/youtube-subtitle-proxy/config"
	"github.com/double-tu/youtube-subtitle-proxy/handlers/api"
	"github.com/double-tu/youtube-subtitle-proxy/logger"
	"github.com/double-tu/youtube-subtitle-proxy/models"
	"github.com/double-tu/youtube-subtitle-proxy/repository/sqlite"
	"github.com/double-tu/youtube-subtitle-proxy/services/proxy"
	"github.com/double-tu/youtube-subtitle-proxy/subtitle"
	"github.com/double-tu/youtube-subtitle-proxy/translator"
	"github.com/double-tu/youtube-subtitle-proxy/worker"
	"github.com/double-tu/youtube-subtitle-proxy/youtube"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLogger, err := logger.Init(cfg.LogDir, cfg.Debug)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	db, err := sqlite.InitDB(cfg.Database.Path, sqlite.DBConfig{
		MaxConnections:     cfg.Database.MaxConnections,
		MaxIdleConnections: cfg.Database.MaxIdleConnections,
		ConnMaxLifetime:    cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	repo, err := sqlite.NewRepository(db)
	if err != nil {
		log.Fatalf("Failed to initialize repository: %v", err)
	}
	defer repo.Close()

	subtitleCache := cache.New(repo, cache.Config{
		MaxItems: cfg.Cache.LRUMaxItems,
		TTL:      cfg.Cache.TTL,
	})

	fetcher := youtube.NewFetcher(youtube.Config{
		BaseURL:   cfg.Upstream.BaseURL,
		Timeout:   cfg.Upstream.FetchTimeout,
		UserAgent: cfg.Upstream.UserAgent,
	})

	llmClient := translator.NewOpenAIClient(translator.ClientConfig{
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
		APIKey:  cfg.LLM.APIKey,
		Timeout: cfg.LLM.Timeout,
	})

	trans := translator.New(llmClient, translator.Config{
		Summary: translator.GuidanceSettings{
			Enabled:    cfg.Summary.Enabled,
			MaxTokens:  cfg.Summary.MaxTokens,
			ChunkChars: cfg.Summary.ChunkChars,
		},
		Glossary: translator.GuidanceSettings{
			Enabled:    cfg.Glossary.Enabled,
			MaxTokens:  cfg.Glossary.MaxTokens,
			ChunkChars: cfg.Glossary.ChunkChars,
		},
		Context: translator.ContextSettings{
			Enabled:        cfg.Context.Enabled,
			BatchSize:      cfg.Context.BatchSize,
			PrecedingLines: cfg.Context.PrecedingLines,
			FollowingLines: cfg.Context.FollowingLines,
			Concurrency:    cfg.Context.Concurrency,
			BatchRetries:   cfg.Context.BatchRetries,
			MaxTokens:      cfg.Context.MaxTokens,
		},
	})

	segmentOpts := subtitle.SegmentOptions{
		MinDurationMs:  cfg.Segmenter.MinDurationMs,
		MaxDurationMs:  cfg.Segmenter.MaxDurationMs,
		GapThresholdMs: cfg.Segmenter.GapThresholdMs,
		MaxChars:       cfg.Segmenter.MaxChars,
		MaxWords:       cfg.Segmenter.MaxWords,
	}

	pool := worker.New(repo, subtitleCache, trans, fetcher, segmentOpts, worker.Config{
		Concurrency: cfg.Queue.Concurrency,
		QueueSize:   cfg.Queue.QueueSize,
		MaxRetries:  cfg.Queue.MaxRetries,
		RetryBase:   cfg.Queue.RetryBase,
		JobTimeout:  cfg.Queue.JobTimeout,
	})
	pool.Start()

	service := proxy.NewService(repo, subtitleCache, fetcher, pool, proxy.Config{
		CacheTTL:            cfg.Cache.TTL,
		SRV3OverlapGapMs:    cfg.Segmenter.OverlapGapMs,
		EstimateBatchSize:   cfg.Context.BatchSize,
		EstimateConcurrency: cfg.Context.Concurrency,
	})

	scheduler := startMaintenance(cfg, repo, appLogger)

	server := api.NewServer(cfg,
		api.WithService(service),
		api.WithLogger(appLogger),
	)

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-shutdownChan
		appLogger.Info("Shutdown signal received")

		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			appLogger.WithError(err).Error("Server shutdown error")
		}

		scheduler.Stop()
		pool.Close()
	}()

	if err := server.Start(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
	appLogger.Info("Server stopped")
}

// startMaintenance schedules the cleanup jobs: expired-row deletion and
// the stale-translating sweep for jobs orphaned by a crash.
func startMaintenance(cfg *config.Config, repo *sqlite.Repository, appLogger *logrus.Logger) *gocron.Scheduler {
	scheduler := gocron.NewScheduler(time.UTC)

	scheduler.Every(cfg.Cache.CleanupInterval).Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		deleted, err := repo.DeleteExpired(ctx, models.NowMs())
		if err != nil {
			appLogger.WithError(err).Error("Expired-job cleanup failed")
			return
		}
		if deleted > 0 {
			appLogger.WithField("deleted", deleted).Info("Deleted expired jobs")
		}
	})

	staleCutoff := 2 * cfg.Queue.JobTimeout
	scheduler.Every(cfg.Queue.JobTimeout).Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		reset, err := repo.ResetStale(ctx, models.NowMs()-staleCutoff.Milliseconds())
		if err != nil {
			appLogger.WithError(err).Error("Stale-job sweep failed")
			return
		}
		if reset > 0 {
			appLogger.WithField("reset", reset).Warn("Reset stale translating jobs")
		}
	})

	scheduler.StartAsync()
	return scheduler
}
