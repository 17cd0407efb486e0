package worker

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/double-tu/youtube-subtitle-proxy/cache"
	"github.com/double-tu/youtube-subtitle-proxy/models"
	"github.com/double-tu/youtube-subtitle-proxy/repository/sqlite"
	"github.com/double-tu/youtube-subtitle-proxy/subtitle"
	"github.com/double-tu/youtube-subtitle-proxy/youtube"
)

type stubTranslator struct {
	err   error
	calls atomic.Int32
}

func (s *stubTranslator) Translate(ctx context.Context, cues []subtitle.Cue, sourceLang, targetLang string) ([]subtitle.Cue, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	out := make([]subtitle.Cue, len(cues))
	for i, c := range cues {
		out[i] = subtitle.Cue{StartMs: c.StartMs, EndMs: c.EndMs, Text: c.Text + "\n译文"}
	}
	return out, nil
}

type stubFetcher struct {
	cues  []subtitle.Cue
	err   error
	calls atomic.Int32
}

func (s *stubFetcher) Fetch(ctx context.Context, key models.RequestKey, originalURL string) (*youtube.Result, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return &youtube.Result{Cues: s.cues, Format: subtitle.FormatJSON3}, nil
}

type testEnv struct {
	worker     *Worker
	repo       *sqlite.Repository
	cache      *cache.Cache
	translator *stubTranslator
	fetcher    *stubFetcher
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()

	db, err := sqlite.InitDB(filepath.Join(t.TempDir(), "worker.db"), sqlite.DefaultDBConfig())
	require.NoError(t, err)
	repo, err := sqlite.NewRepository(db)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	c := cache.New(repo, cache.Config{MaxItems: 10, TTL: time.Minute})
	trans := &stubTranslator{}
	fetch := &stubFetcher{cues: testWorkerCues()}

	opts := subtitle.SegmentOptions{
		MinDurationMs:  0,
		MaxDurationMs:  7000,
		GapThresholdMs: 1200,
	}

	return &testEnv{
		worker:     New(repo, c, trans, fetch, opts, cfg),
		repo:       repo,
		cache:      c,
		translator: trans,
		fetcher:    fetch,
	}
}

func testWorkerCues() []subtitle.Cue {
	return []subtitle.Cue{
		{StartMs: 0, EndMs: 2000, Text: "I have a dream."},
		{StartMs: 4000, EndMs: 6000, Text: "Next line."},
	}
}

func defaultWorkerConfig() Config {
	return Config{
		Concurrency: 1,
		QueueSize:   10,
		MaxRetries:  2,
		RetryBase:   30 * time.Second,
		JobTimeout:  time.Minute,
	}
}

func (e *testEnv) createJob(t *testing.T, videoID string) *models.Job {
	t.Helper()

	cues := testWorkerCues()
	now := models.NowMs()
	job := &models.Job{
		ID: uuid.New().String(),
		RequestKey: models.RequestKey{
			VideoID:    videoID,
			SourceLang: "en",
			TargetLang: "zh-CN",
			Track:      "asr",
			Fmt:        "json3",
		},
		SourceHash: subtitle.SourceHash(cues),
		Status:     models.StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
		ExpiresAt:  now + 3600_000,
	}

	stored, err := e.repo.Upsert(context.Background(), job)
	require.NoError(t, err)
	return stored
}

func TestProcessCompletesJob(t *testing.T) {
	env := newTestEnv(t, defaultWorkerConfig())
	job := env.createJob(t, "dQw4w9WgXcQ")

	env.worker.process(queuedJob{jobID: job.ID, cues: testWorkerCues()})

	got, err := env.repo.Find(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDone, got.Status)
	assert.True(t, strings.HasPrefix(got.Bilingual, "WEBVTT"))
	assert.Contains(t, got.Bilingual, "译文")
	assert.Contains(t, got.Bilingual, "I have a dream.")

	// Published to the memory layer too.
	doc, ok := env.cache.Get(context.Background(), job.RequestKey)
	require.True(t, ok)
	assert.Equal(t, got.Bilingual, doc)

	// The dispatcher supplied cues, no refetch needed.
	assert.Zero(t, env.fetcher.calls.Load())
}

func TestProcessSchedulesRetryWithBackoff(t *testing.T) {
	env := newTestEnv(t, defaultWorkerConfig())
	env.translator.err = fmt.Errorf("model unavailable")
	job := env.createJob(t, "dQw4w9WgXcQ")

	before := models.NowMs()
	env.worker.process(queuedJob{jobID: job.ID, cues: testWorkerCues()})

	got, err := env.repo.Find(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Equal(t, 1, got.RetryCount)

	// First retry waits one base interval.
	base := defaultWorkerConfig().RetryBase.Milliseconds()
	assert.GreaterOrEqual(t, got.NextRetryAt, before+base)
	assert.Less(t, got.NextRetryAt, before+2*base)
}

func TestProcessBackoffDoubles(t *testing.T) {
	env := newTestEnv(t, defaultWorkerConfig())
	env.translator.err = fmt.Errorf("model unavailable")
	job := env.createJob(t, "dQw4w9WgXcQ")

	ctx := context.Background()
	require.NoError(t, env.repo.MarkFailed(ctx, job.ID, "translation_error", "x", 1, models.NowMs()-1, false))

	before := models.NowMs()
	env.worker.process(queuedJob{jobID: job.ID, cues: testWorkerCues()})

	got, err := env.repo.Find(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.RetryCount)

	base := defaultWorkerConfig().RetryBase.Milliseconds()
	assert.GreaterOrEqual(t, got.NextRetryAt, before+2*base)
}

func TestProcessTerminalFailure(t *testing.T) {
	env := newTestEnv(t, defaultWorkerConfig())
	env.translator.err = fmt.Errorf("model unavailable")
	job := env.createJob(t, "dQw4w9WgXcQ")

	// Retry budget already spent.
	ctx := context.Background()
	require.NoError(t, env.repo.MarkFailed(ctx, job.ID, "translation_error", "x", 2, models.NowMs()-1, false))

	env.worker.process(queuedJob{jobID: job.ID, cues: testWorkerCues()})

	got, err := env.repo.Find(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status)
	// The stored count never exceeds the retry budget.
	assert.Equal(t, 2, got.RetryCount)
	assert.Zero(t, got.NextRetryAt)
	assert.Equal(t, "internal_error", got.ErrorCode)
}

func TestProcessReleasesFlightKeyOnLoadFailure(t *testing.T) {
	env := newTestEnv(t, defaultWorkerConfig())
	job := env.createJob(t, "dQw4w9WgXcQ")

	accepted, err := env.worker.Enqueue(job, testWorkerCues())
	require.NoError(t, err)
	require.True(t, accepted)

	// Loading the row fails, but the flight key must still be released
	// or the key could never be enqueued again.
	require.NoError(t, env.repo.Close())
	env.worker.process(queuedJob{jobID: job.ID, key: flightKey(job)})

	_, inFlight := env.worker.Stats()
	assert.Zero(t, inFlight)
}

func TestProcessRefetchesWhenCuesMissing(t *testing.T) {
	env := newTestEnv(t, defaultWorkerConfig())
	job := env.createJob(t, "dQw4w9WgXcQ")

	env.worker.process(queuedJob{jobID: job.ID, cues: nil})

	assert.Equal(t, int32(1), env.fetcher.calls.Load())

	got, err := env.repo.Find(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDone, got.Status)
}

func TestProcessSkipsNonPendingJob(t *testing.T) {
	env := newTestEnv(t, defaultWorkerConfig())
	job := env.createJob(t, "dQw4w9WgXcQ")

	require.NoError(t, env.repo.MarkDone(context.Background(), job.ID, "WEBVTT\n"))

	env.worker.process(queuedJob{jobID: job.ID, cues: testWorkerCues()})
	assert.Zero(t, env.translator.calls.Load())
}

func TestEnqueueDedupesInFlight(t *testing.T) {
	env := newTestEnv(t, defaultWorkerConfig())
	job := env.createJob(t, "dQw4w9WgXcQ")

	accepted, err := env.worker.Enqueue(job, testWorkerCues())
	require.NoError(t, err)
	assert.True(t, accepted)

	accepted, err = env.worker.Enqueue(job, testWorkerCues())
	require.NoError(t, err)
	assert.False(t, accepted)

	queued, inFlight := env.worker.Stats()
	assert.Equal(t, 1, queued)
	assert.Equal(t, 1, inFlight)
}

func TestEnqueueQueueFull(t *testing.T) {
	cfg := defaultWorkerConfig()
	cfg.QueueSize = 1
	env := newTestEnv(t, cfg)

	first := env.createJob(t, "dQw4w9WgXcQ")
	second := env.createJob(t, "jNQXAC9IVRw")

	accepted, err := env.worker.Enqueue(first, nil)
	require.NoError(t, err)
	assert.True(t, accepted)

	_, err = env.worker.Enqueue(second, nil)
	assert.ErrorIs(t, err, ErrQueueFull)

	// The rejected job is released and can be enqueued again later.
	_, inFlight := env.worker.Stats()
	assert.Equal(t, 1, inFlight)
}

func TestWorkerEndToEnd(t *testing.T) {
	env := newTestEnv(t, defaultWorkerConfig())
	env.worker.Start()
	defer env.worker.Close()

	job := env.createJob(t, "dQw4w9WgXcQ")
	accepted, err := env.worker.Enqueue(job, testWorkerCues())
	require.NoError(t, err)
	require.True(t, accepted)

	require.Eventually(t, func() bool {
		got, err := env.repo.Find(context.Background(), job.ID)
		return err == nil && got.IsDone()
	}, 5*time.Second, 20*time.Millisecond)
}
