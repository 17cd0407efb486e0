// Package worker runs the background translation pipeline: bounded
// workers drain a job queue, and a scanner re-enqueues jobs whose retry
// backoff has elapsed.
package worker

import (
	"context"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/double-tu/youtube-subtitle-proxy/cache"
	"github.com/double-tu/youtube-subtitle-proxy/models"
	"github.com/double-tu/youtube-subtitle-proxy/repository"
	"github.com/double-tu/youtube-subtitle-proxy/subtitle"
	"github.com/double-tu/youtube-subtitle-proxy/youtube"
)

var ErrQueueFull = pkgerrors.New("job queue is full")

// Translator is the translation surface the pipeline needs; tests
// substitute a scripted fake.
type Translator interface {
	Translate(ctx context.Context, cues []subtitle.Cue, sourceLang, targetLang string) ([]subtitle.Cue, error)
}

// Fetcher re-fetches the original track for retried jobs whose cues are
// no longer in memory.
type Fetcher interface {
	Fetch(ctx context.Context, key models.RequestKey, originalURL string) (*youtube.Result, error)
}

type Config struct {
	Concurrency  int
	QueueSize    int
	MaxRetries   int
	RetryBase    time.Duration
	JobTimeout   time.Duration
	ScanInterval time.Duration
}

// queuedJob carries the job ID plus the cues the dispatcher already
// fetched; retried jobs arrive with nil cues and are re-fetched. The
// flight key rides along so release never depends on reloading the row.
type queuedJob struct {
	jobID string
	key   string
	cues  []subtitle.Cue
}

type Worker struct {
	repo        repository.JobRepository
	cache       *cache.Cache
	translator  Translator
	fetcher     Fetcher
	segmentOpts subtitle.SegmentOptions
	config      Config
	logger      *logrus.Logger

	jobs     chan queuedJob
	inFlight map[string]bool
	mu       sync.Mutex
	quit     chan struct{}
	wg       sync.WaitGroup
}

func New(
	repo repository.JobRepository,
	c *cache.Cache,
	translator Translator,
	fetcher Fetcher,
	segmentOpts subtitle.SegmentOptions,
	cfg Config,
) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = 15 * time.Second
	}
	return &Worker{
		repo:        repo,
		cache:       c,
		translator:  translator,
		fetcher:     fetcher,
		segmentOpts: segmentOpts,
		config:      cfg,
		logger:      logrus.StandardLogger(),
		jobs:        make(chan queuedJob, cfg.QueueSize),
		inFlight:    make(map[string]bool),
		quit:        make(chan struct{}),
	}
}

// Start launches the worker pool and the retry scanner.
func (w *Worker) Start() {
	for i := 0; i < w.config.Concurrency; i++ {
		w.wg.Add(1)
		go w.run(i)
	}
	w.wg.Add(1)
	go w.scanRetries()

	w.logger.WithField("workers", w.config.Concurrency).Info("Translation worker pool started")
}

// Close stops accepting work and waits for in-flight jobs to finish.
func (w *Worker) Close() {
	close(w.quit)
	w.wg.Wait()
}

// Enqueue submits a pending job. It returns false without error when an
// equivalent job (same request key and source hash) is already queued or
// running in this process.
func (w *Worker) Enqueue(job *models.Job, cues []subtitle.Cue) (bool, error) {
	key := flightKey(job)

	w.mu.Lock()
	if w.inFlight[key] {
		w.mu.Unlock()
		return false, nil
	}
	w.inFlight[key] = true
	w.mu.Unlock()

	select {
	case w.jobs <- queuedJob{jobID: job.ID, key: key, cues: cues}:
		return true, nil
	default:
		w.release(key)
		return false, ErrQueueFull
	}
}

// Stats reports queue depth and the in-process flight count.
func (w *Worker) Stats() (queued, inFlight int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.jobs), len(w.inFlight)
}

func (w *Worker) run(id int) {
	defer w.wg.Done()
	logger := w.logger.WithField("worker_id", id)
	logger.Debug("Worker started")

	for {
		select {
		case <-w.quit:
			logger.Debug("Worker shutting down")
			return
		case item := <-w.jobs:
			w.process(item)
		}
	}
}

// scanRetries periodically promotes jobs whose backoff has elapsed back
// into the queue. Jobs reset from a stale translating state re-enter
// through the same scan.
func (w *Worker) scanRetries() {
	defer w.wg.Done()
	ticker := time.NewTicker(w.config.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.quit:
			return
		case <-ticker.C:
			w.enqueueDue()
		}
	}
}

func (w *Worker) enqueueDue() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	due, err := w.repo.DueRetries(ctx, models.NowMs(), w.config.QueueSize)
	if err != nil {
		w.logger.WithError(err).Error("Failed to scan for due retries")
		return
	}

	for _, job := range due {
		ok, err := w.Enqueue(job, nil)
		if err != nil {
			w.logger.WithError(err).WithField("job_id", job.ID).Warn("Could not re-enqueue due retry")
			return
		}
		if ok {
			w.logger.WithFields(logrus.Fields{
				"job_id":      job.ID,
				"retry_count": job.RetryCount,
			}).Info("Re-enqueued job for retry")
		}
	}
}

func (w *Worker) release(key string) {
	w.mu.Lock()
	delete(w.inFlight, key)
	w.mu.Unlock()
}

func flightKey(job *models.Job) string {
	return job.CacheKey() + "|" + job.SourceHash
}
