package sqlite

import (
	"context"
	"database/sql"
	"strconv"

	"github.com/double-tu/youtube-subtitle-proxy/errors"
	"github.com/double-tu/youtube-subtitle-proxy/models"
	"github.com/double-tu/youtube-subtitle-proxy/repository"
)

// Repository implements repository.JobRepository over sqlite.
type Repository struct {
	db    *sql.DB
	stmts preparedStatements
}

var _ repository.JobRepository = (*Repository)(nil)

// cacheVersion tags stored rows; bump it when the bilingual document
// format changes so old caches can be invalidated wholesale.
const cacheVersion = "1"

func NewRepository(db *sql.DB) (*Repository, error) {
	r := &Repository{db: db}
	if err := r.stmts.prepare(context.Background(), db); err != nil {
		return nil, err
	}
	if err := r.SetMetadata(context.Background(), repository.KeyCacheVersion, cacheVersion); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Repository) Upsert(ctx context.Context, job *models.Job) (*models.Job, error) {
	const op = "SQLiteRepository.Upsert"

	_, err := r.stmts.upsert.ExecContext(ctx,
		job.ID,
		job.VideoID,
		job.SourceLang,
		job.TargetLang,
		job.Track,
		job.Fmt,
		job.SourceHash,
		string(job.Status),
		job.RetryCount,
		job.NextRetryAt,
		job.ErrorCode,
		job.ErrorMessage,
		job.Bilingual,
		job.CreatedAt,
		job.UpdatedAt,
		job.ExpiresAt,
	)
	if err != nil {
		return nil, errors.Internal(op, err, "failed to upsert job")
	}

	// On conflict the insert is a no-op apart from updated_at; read the
	// row back so callers observe the winning job's id and status.
	row := r.stmts.getByKeyHash.QueryRowContext(ctx,
		job.VideoID, job.SourceLang, job.TargetLang, job.Track, job.Fmt, job.SourceHash)
	stored, err := scanJob(row)
	if err != nil {
		return nil, errors.Internal(op, err, "failed to read back upserted job")
	}
	return stored, nil
}

func (r *Repository) Find(ctx context.Context, id string) (*models.Job, error) {
	const op = "SQLiteRepository.Find"

	job, err := scanJob(r.stmts.get.QueryRowContext(ctx, id))
	if err == sql.ErrNoRows {
		return nil, errors.Internal(op, err, "job not found")
	}
	if err != nil {
		return nil, errors.Internal(op, err, "failed to query job")
	}
	return job, nil
}

func (r *Repository) FindActive(ctx context.Context, key models.RequestKey, sourceHash string) (*models.Job, error) {
	const op = "SQLiteRepository.FindActive"

	row := r.stmts.getActive.QueryRowContext(ctx,
		key.VideoID, key.SourceLang, key.TargetLang, key.Track, key.Fmt, sourceHash)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Internal(op, err, "failed to query active job")
	}
	return job, nil
}

func (r *Repository) FindLatestDone(ctx context.Context, key models.RequestKey, nowMs int64) (*models.Job, error) {
	const op = "SQLiteRepository.FindLatestDone"

	row := r.stmts.getLatestDone.QueryRowContext(ctx,
		key.VideoID, key.SourceLang, key.TargetLang, key.Track, key.Fmt, nowMs)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Internal(op, err, "failed to query done job")
	}
	return job, nil
}

func (r *Repository) MarkTranslating(ctx context.Context, id string) error {
	const op = "SQLiteRepository.MarkTranslating"

	if _, err := r.stmts.markTranslating.ExecContext(ctx, models.NowMs(), id); err != nil {
		return errors.Internal(op, err, "failed to mark job translating")
	}
	return nil
}

func (r *Repository) MarkDone(ctx context.Context, id string, bilingual string) error {
	const op = "SQLiteRepository.MarkDone"

	if _, err := r.stmts.markDone.ExecContext(ctx, bilingual, models.NowMs(), id); err != nil {
		return errors.Internal(op, err, "failed to mark job done")
	}
	return nil
}

func (r *Repository) MarkFailed(ctx context.Context, id string, errCode, errMsg string, retryCount int, nextRetryAt int64, terminal bool) error {
	const op = "SQLiteRepository.MarkFailed"

	status := models.StatusPending
	if terminal {
		status = models.StatusFailed
		nextRetryAt = 0
	}

	_, err := r.stmts.markFailed.ExecContext(ctx,
		string(status), retryCount, nextRetryAt, errCode, errMsg, models.NowMs(), id)
	if err != nil {
		return errors.Internal(op, err, "failed to record job failure")
	}
	return nil
}

func (r *Repository) DueRetries(ctx context.Context, nowMs int64, limit int) ([]*models.Job, error) {
	const op = "SQLiteRepository.DueRetries"

	rows, err := r.stmts.dueRetries.QueryContext(ctx, nowMs, limit)
	if err != nil {
		return nil, errors.Internal(op, err, "failed to query due retries")
	}
	defer rows.Close()

	return scanJobs(rows)
}

func (r *Repository) ResetStale(ctx context.Context, cutoffMs int64) (int64, error) {
	const op = "SQLiteRepository.ResetStale"

	// Reset jobs become due immediately so the retry scanner picks
	// them up on its next pass.
	now := models.NowMs()
	res, err := r.stmts.resetStale.ExecContext(ctx, now, now, cutoffMs)
	if err != nil {
		return 0, errors.Internal(op, err, "failed to reset stale jobs")
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (r *Repository) DeleteExpired(ctx context.Context, nowMs int64) (int64, error) {
	const op = "SQLiteRepository.DeleteExpired"

	res, err := r.stmts.deleteExpired.ExecContext(ctx, nowMs)
	if err != nil {
		return 0, errors.Internal(op, err, "failed to delete expired jobs")
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (r *Repository) CountByStatus(ctx context.Context) (map[models.Status]int64, error) {
	const op = "SQLiteRepository.CountByStatus"

	rows, err := r.stmts.countByStatus.QueryContext(ctx)
	if err != nil {
		return nil, errors.Internal(op, err, "failed to count jobs")
	}
	defer rows.Close()

	counts := make(map[models.Status]int64)
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, errors.Internal(op, err, "failed to scan job count")
		}
		counts[models.Status(status)] = count
	}
	return counts, rows.Err()
}

func (r *Repository) RecentJobs(ctx context.Context, limit int) ([]*models.Job, error) {
	const op = "SQLiteRepository.RecentJobs"

	rows, err := r.stmts.recentJobs.QueryContext(ctx, limit)
	if err != nil {
		return nil, errors.Internal(op, err, "failed to query recent jobs")
	}
	defer rows.Close()

	return scanJobs(rows)
}

func (r *Repository) IncrementCounter(ctx context.Context, key string, delta int64) error {
	const op = "SQLiteRepository.IncrementCounter"

	if _, err := r.stmts.upsertCounter.ExecContext(ctx, key, strconv.FormatInt(delta, 10)); err != nil {
		return errors.Internal(op, err, "failed to increment counter")
	}
	return nil
}

func (r *Repository) Counter(ctx context.Context, key string) (int64, error) {
	const op = "SQLiteRepository.Counter"

	var value string
	err := r.stmts.getMetadata.QueryRowContext(ctx, key).Scan(&value)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Internal(op, err, "failed to read counter")
	}

	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, errors.Internal(op, err, "malformed counter value")
	}
	return n, nil
}

// SetMetadata stores an arbitrary metadata value, e.g. cache_version.
func (r *Repository) SetMetadata(ctx context.Context, key, value string) error {
	const op = "SQLiteRepository.SetMetadata"

	if _, err := r.stmts.setMetadata.ExecContext(ctx, key, value); err != nil {
		return errors.Internal(op, err, "failed to set metadata")
	}
	return nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *Repository) Close() error {
	if err := r.stmts.close(); err != nil {
		return err
	}
	return r.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*models.Job, error) {
	job := &models.Job{}
	var status string

	err := row.Scan(
		&job.ID,
		&job.VideoID,
		&job.SourceLang,
		&job.TargetLang,
		&job.Track,
		&job.Fmt,
		&job.SourceHash,
		&status,
		&job.RetryCount,
		&job.NextRetryAt,
		&job.ErrorCode,
		&job.ErrorMessage,
		&job.Bilingual,
		&job.CreatedAt,
		&job.UpdatedAt,
		&job.ExpiresAt,
	)
	if err != nil {
		return nil, err
	}

	job.Status = models.Status(status)
	return job, nil
}

func scanJobs(rows *sql.Rows) ([]*models.Job, error) {
	var jobs []*models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}
