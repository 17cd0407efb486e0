// Package proxy implements the request path: cache lookup, upstream
// fetch on miss, and the non-blocking hand-off to the translation
// workers.
package proxy

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/double-tu/youtube-subtitle-proxy/cache"
	"github.com/double-tu/youtube-subtitle-proxy/errors"
	"github.com/double-tu/youtube-subtitle-proxy/models"
	"github.com/double-tu/youtube-subtitle-proxy/repository"
	"github.com/double-tu/youtube-subtitle-proxy/subtitle"
	"github.com/double-tu/youtube-subtitle-proxy/worker"
	"github.com/double-tu/youtube-subtitle-proxy/youtube"
)

// Queue is the worker surface the dispatcher needs.
type Queue interface {
	Enqueue(job *models.Job, cues []subtitle.Cue) (bool, error)
	Stats() (queued, inFlight int)
}

// Fetcher retrieves the original track on a cache miss.
type Fetcher interface {
	Fetch(ctx context.Context, key models.RequestKey, originalURL string) (*youtube.Result, error)
}

type Config struct {
	CacheTTL time.Duration
	// SRV3OverlapGapMs is applied when re-rendering a cached track into
	// srv3 for the client.
	SRV3OverlapGapMs int64
	// EstimateBatchSize and EstimateConcurrency mirror the translator
	// settings and drive the X-Estimated-Time advisory.
	EstimateBatchSize   int
	EstimateConcurrency int
}

// Request is a validated, defaulted subtitle request.
type Request struct {
	Key         models.RequestKey
	Format      subtitle.Format
	OriginalURL string
}

// Result is what the handler writes out. Completed results carry the
// bilingual track, pending results the untouched upstream bytes.
type Result struct {
	Body             []byte
	Format           subtitle.Format
	TranslationState string // "completed" or "pending"
	CacheStatus      string // "HIT" or "MISS"
	EstimatedSeconds int    // 0 when not applicable
}

type Service struct {
	repo    repository.JobRepository
	cache   *cache.Cache
	fetcher Fetcher
	queue   Queue
	config  Config
	logger  *logrus.Logger
}

func NewService(
	repo repository.JobRepository,
	c *cache.Cache,
	fetcher Fetcher,
	queue Queue,
	cfg Config,
) *Service {
	if cfg.EstimateBatchSize <= 0 {
		cfg.EstimateBatchSize = 8
	}
	if cfg.EstimateConcurrency <= 0 {
		cfg.EstimateConcurrency = 3
	}
	if cfg.SRV3OverlapGapMs <= 0 {
		cfg.SRV3OverlapGapMs = subtitle.DefaultOverlapGapMs
	}
	return &Service{
		repo:    repo,
		cache:   c,
		fetcher: fetcher,
		queue:   queue,
		config:  cfg,
		logger:  logrus.StandardLogger(),
	}
}

// Serve answers one subtitle request. It never blocks on translation:
// a cache hit returns the bilingual track, a miss returns the original
// track immediately and hands the translation to the background queue.
func (s *Service) Serve(ctx context.Context, req Request) (*Result, error) {
	const op = "ProxyService.Serve"

	logger := s.logger.WithFields(logrus.Fields{
		"video_id":    req.Key.VideoID,
		"source_lang": req.Key.SourceLang,
		"target_lang": req.Key.TargetLang,
	})

	if doc, ok := s.cache.Get(ctx, req.Key); ok {
		body, err := subtitle.ConvertWithOverlap([]byte(doc), req.Format, s.config.SRV3OverlapGapMs)
		if err != nil {
			return nil, errors.Internal(op, err, "failed to render cached track")
		}
		logger.Debug("Serving bilingual track from cache")
		return &Result{
			Body:             body,
			Format:           req.Format,
			TranslationState: "completed",
			CacheStatus:      "HIT",
		}, nil
	}

	fetched, err := s.fetcher.Fetch(ctx, req.Key, req.OriginalURL)
	if err != nil {
		return nil, err
	}
	s.cache.CountMiss(ctx)

	hash := subtitle.SourceHash(fetched.Cues)
	if err := s.ensureJob(ctx, req.Key, hash, fetched.Cues, logger); err != nil {
		// The original track is still good; job bookkeeping failures
		// must not break playback.
		logger.WithError(err).Error("Failed to schedule translation job")
	}

	return &Result{
		Body:             fetched.Raw,
		Format:           fetched.Format,
		TranslationState: "pending",
		CacheStatus:      "MISS",
		EstimatedSeconds: s.estimateSeconds(len(fetched.Cues)),
	}, nil
}

// ensureJob guarantees at most one active job per (key, hash): the
// unique index makes the upsert converge on a single row, and Enqueue
// dedupes within this process.
func (s *Service) ensureJob(ctx context.Context, key models.RequestKey, hash string, cues []subtitle.Cue, logger *logrus.Entry) error {
	existing, err := s.repo.FindActive(ctx, key, hash)
	if err != nil {
		return err
	}
	if existing != nil {
		if existing.IsTranslating() {
			logger.WithField("job_id", existing.ID).Debug("Translation already in progress")
			return nil
		}
		// A pending row with no queue entry, e.g. left behind by a
		// restart, would wedge the key until row expiry. Enqueue is a
		// no-op when the job is already in flight in this process.
		return s.submit(ctx, existing, cues, logger)
	}

	now := models.NowMs()
	job := &models.Job{
		ID:         uuid.New().String(),
		RequestKey: key,
		SourceHash: hash,
		Status:     models.StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
		ExpiresAt:  now + s.config.CacheTTL.Milliseconds(),
	}

	stored, err := s.repo.Upsert(ctx, job)
	if err != nil {
		return err
	}
	if !stored.IsActive() {
		// A concurrent request already drove this (key, hash) to done
		// or terminal failure.
		return nil
	}

	return s.submit(ctx, stored, cues, logger)
}

// submit hands a pending job to the queue. A full queue leaves the row
// pending and immediately due so the retry scanner picks it up once the
// queue drains.
func (s *Service) submit(ctx context.Context, job *models.Job, cues []subtitle.Cue, logger *logrus.Entry) error {
	const op = "ProxyService.submit"

	accepted, err := s.queue.Enqueue(job, cues)
	if err == worker.ErrQueueFull {
		logger.WithField("job_id", job.ID).Warn("Job queue full, deferring to retry scanner")
		return s.repo.MarkFailed(ctx, job.ID, "", "", job.RetryCount, models.NowMs(), false)
	}
	if err != nil {
		return errors.Internal(op, err, "failed to enqueue translation job")
	}
	if accepted {
		logger.WithField("job_id", job.ID).Info("Translation job enqueued")
	}
	return nil
}

// estimateSeconds is a coarse advisory: batches are a few seconds each
// and run with bounded concurrency.
func (s *Service) estimateSeconds(cueCount int) int {
	const secondsPerBatch = 4

	batches := (cueCount + s.config.EstimateBatchSize - 1) / s.config.EstimateBatchSize
	seconds := batches * secondsPerBatch / s.config.EstimateConcurrency
	if seconds < 10 {
		seconds = 10
	}
	return seconds
}

// Stats aggregates store and queue state for the admin endpoint.
type Stats struct {
	Jobs       map[models.Status]int64 `json:"jobs"`
	Queued     int                     `json:"queued"`
	InFlight   int                     `json:"in_flight"`
	CacheHits  int64                   `json:"cache_hits"`
	CacheMiss  int64                   `json:"cache_misses"`
	LRUEntries int                     `json:"lru_entries"`
	Recent     []models.JobSummary     `json:"recent_jobs"`
}

func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	const op = "ProxyService.Stats"

	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return nil, errors.Internal(op, err, "failed to count jobs")
	}

	recent, err := s.repo.RecentJobs(ctx, 20)
	if err != nil {
		return nil, errors.Internal(op, err, "failed to list recent jobs")
	}
	summaries := make([]models.JobSummary, 0, len(recent))
	for _, j := range recent {
		summaries = append(summaries, models.NewJobSummary(j))
	}

	hits, misses, err := s.cache.Stats(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to read cache counters")
	}

	queued, inFlight := s.queue.Stats()
	return &Stats{
		Jobs:       counts,
		Queued:     queued,
		InFlight:   inFlight,
		CacheHits:  hits,
		CacheMiss:  misses,
		LRUEntries: s.cache.Len(),
		Recent:     summaries,
	}, nil
}

// Healthy reports whether the store is reachable.
func (s *Service) Healthy(ctx context.Context) error {
	return s.repo.Ping(ctx)
}
