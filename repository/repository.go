// Package repository defines the persistence contracts for the job
// store and its metadata counters.
package repository

import (
	"context"

	"github.com/double-tu/youtube-subtitle-proxy/models"
)

// Metadata counter keys.
const (
	CounterCacheHits   = "cache_hits"
	CounterCacheMisses = "cache_misses"
	KeyCacheVersion    = "cache_version"
)

// JobRepository is the typed view over the jobs table. Only the worker
// mutates status, bilingual and the retry fields; the dispatcher only
// creates rows and reads.
type JobRepository interface {
	// Upsert inserts the job, or harmlessly refreshes updated_at when a
	// row with the same (request key, source hash) already exists. The
	// returned job reflects the stored row.
	Upsert(ctx context.Context, job *models.Job) (*models.Job, error)

	Find(ctx context.Context, id string) (*models.Job, error)

	// FindActive returns the pending or translating row for
	// (key, hash), if any.
	FindActive(ctx context.Context, key models.RequestKey, sourceHash string) (*models.Job, error)

	// FindLatestDone returns the most recently updated done row for the
	// request key regardless of source hash, honoring expiry.
	FindLatestDone(ctx context.Context, key models.RequestKey, nowMs int64) (*models.Job, error)

	MarkTranslating(ctx context.Context, id string) error
	MarkDone(ctx context.Context, id string, bilingual string) error

	// MarkFailed records a failure. When terminal is false the row goes
	// back to pending with backoff state; otherwise it stays failed.
	MarkFailed(ctx context.Context, id string, errCode, errMsg string, retryCount int, nextRetryAt int64, terminal bool) error

	// DueRetries returns pending rows whose next_retry_at has passed.
	DueRetries(ctx context.Context, nowMs int64, limit int) ([]*models.Job, error)

	// ResetStale returns translating rows older than cutoff to pending.
	ResetStale(ctx context.Context, cutoffMs int64) (int64, error)

	DeleteExpired(ctx context.Context, nowMs int64) (int64, error)

	CountByStatus(ctx context.Context) (map[models.Status]int64, error)
	RecentJobs(ctx context.Context, limit int) ([]*models.Job, error)

	IncrementCounter(ctx context.Context, key string, delta int64) error
	Counter(ctx context.Context, key string) (int64, error)

	Ping(ctx context.Context) error
	Close() error
}
