package worker

import (
	"context"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/double-tu/youtube-subtitle-proxy/errors"
	"github.com/double-tu/youtube-subtitle-proxy/models"
	"github.com/double-tu/youtube-subtitle-proxy/subtitle"
)

// process runs one job through the pipeline: segment, translate, render,
// publish. Failures schedule a retry with exponential backoff until the
// retry budget is spent.
func (w *Worker) process(item queuedJob) {
	defer w.release(item.key)

	ctx, cancel := context.WithTimeout(context.Background(), w.config.JobTimeout)
	defer cancel()

	job, err := w.repo.Find(ctx, item.jobID)
	if err != nil {
		w.logger.WithError(err).WithField("job_id", item.jobID).Error("Failed to load queued job")
		return
	}

	// Another instance may have finished or terminally failed the job
	// while it sat in the queue.
	if !job.IsPending() {
		w.logger.WithFields(logrus.Fields{
			"job_id": job.ID,
			"status": job.Status,
		}).Debug("Skipping job no longer pending")
		return
	}

	logger := w.logger.WithFields(logrus.Fields{
		"job_id":      job.ID,
		"video_id":    job.VideoID,
		"target_lang": job.TargetLang,
		"retry_count": job.RetryCount,
	})
	logger.Info("Starting translation job")

	if err := w.repo.MarkTranslating(ctx, job.ID); err != nil {
		logger.WithError(err).Error("Failed to mark job translating")
		return
	}

	start := time.Now()
	doc, err := w.translate(ctx, job, item.cues)
	if err != nil {
		logger.WithError(err).WithField("duration_ms", time.Since(start).Milliseconds()).
			Warn("Translation job failed")
		w.fail(job, err)
		return
	}

	if err := w.repo.MarkDone(ctx, job.ID, doc); err != nil {
		logger.WithError(err).Error("Failed to persist completed job")
		return
	}
	// Publish to memory only once the durable row exists; the LRU must
	// never hold a document without a live done row behind it.
	w.cache.Set(job.RequestKey, doc, job.ExpiresAt)

	logger.WithField("duration_ms", time.Since(start).Milliseconds()).
		Info("Translation job completed")
}

// translate produces the canonical bilingual document (VTT) for a job.
// cues may be nil for retried jobs, in which case the original track is
// fetched again.
func (w *Worker) translate(ctx context.Context, job *models.Job, cues []subtitle.Cue) (string, error) {
	if len(cues) == 0 {
		result, err := w.fetcher.Fetch(ctx, job.RequestKey, "")
		if err != nil {
			return "", err
		}
		cues = result.Cues

		if hash := subtitle.SourceHash(cues); hash != job.SourceHash {
			// Upstream content changed since the job was created. The
			// refetched track is what viewers see now, so translate it.
			w.logger.WithFields(logrus.Fields{
				"job_id":   job.ID,
				"old_hash": job.SourceHash,
				"new_hash": hash,
			}).Warn("Source hash changed between enqueue and translation")
		}
	}

	segmented := subtitle.Segment(cues, w.segmentOpts)
	segmented = subtitle.OptimizeTiming(segmented)
	if len(segmented) == 0 {
		return "", pkgerrors.New("segmentation produced no cues")
	}

	bilingual, err := w.translator.Translate(ctx, segmented, job.SourceLang, job.TargetLang)
	if err != nil {
		return "", err
	}

	codec, err := subtitle.ForFormat(subtitle.FormatVTT)
	if err != nil {
		return "", err
	}
	rendered, err := codec.Render(bilingual)
	if err != nil {
		return "", pkgerrors.Wrap(err, "render bilingual track")
	}

	return string(rendered), nil
}

// fail records the failure and either schedules a retry or marks the job
// terminally failed once the retry budget is exhausted.
func (w *Worker) fail(job *models.Job, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	retryCount := job.RetryCount + 1
	terminal := retryCount > w.config.MaxRetries

	var nextRetryAt int64
	if terminal {
		// The stored count is the number of retries actually granted.
		retryCount = w.config.MaxRetries
	} else {
		backoff := w.config.RetryBase * (1 << uint(job.RetryCount))
		nextRetryAt = models.NowMs() + backoff.Milliseconds()
	}

	errCode := errors.KindOf(cause)
	if err := w.repo.MarkFailed(ctx, job.ID, errCode, cause.Error(), retryCount, nextRetryAt, terminal); err != nil {
		w.logger.WithError(err).WithField("job_id", job.ID).Error("Failed to record job failure")
		return
	}

	if terminal {
		w.logger.WithFields(logrus.Fields{
			"job_id":      job.ID,
			"retry_count": retryCount,
			"error_code":  errCode,
		}).Error("Job failed terminally")
		return
	}

	w.logger.WithFields(logrus.Fields{
		"job_id":        job.ID,
		"retry_count":   retryCount,
		"next_retry_at": nextRetryAt,
	}).Info("Job scheduled for retry")
}
