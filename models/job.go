package models

import (
	"strings"
	"time"
)

type Status string

const (
	StatusPending     Status = "pending"
	StatusTranslating Status = "translating"
	StatusDone        Status = "done"
	StatusFailed      Status = "failed"
)

// RequestKey identifies one logical subtitle request. Two requests with
// equal keys must produce equal output.
type RequestKey struct {
	VideoID    string `json:"video_id"`
	SourceLang string `json:"source_lang"`
	TargetLang string `json:"target_lang"`
	Track      string `json:"track"`
	Fmt        string `json:"fmt"`
}

// CacheKey is the memory-cache key. It deliberately omits the source
// hash; the store disambiguates by hash and the LRU trusts the most
// recent done row.
func (k RequestKey) CacheKey() string {
	return strings.Join([]string{k.VideoID, k.SourceLang, k.TargetLang, k.Track, k.Fmt}, "|")
}

// Job is one row in the jobs table. Timestamps are Unix milliseconds.
type Job struct {
	ID string `json:"id"`
	RequestKey
	SourceHash   string `json:"source_hash"`
	Status       Status `json:"status"`
	RetryCount   int    `json:"retry_count"`
	NextRetryAt  int64  `json:"next_retry_at,omitempty"`
	ErrorCode    string `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	Bilingual    string `json:"-"`
	CreatedAt    int64  `json:"created_at"`
	UpdatedAt    int64  `json:"updated_at"`
	ExpiresAt    int64  `json:"expires_at"`
}

// Status check methods
func (j *Job) IsPending() bool     { return j.Status == StatusPending }
func (j *Job) IsTranslating() bool { return j.Status == StatusTranslating }
func (j *Job) IsDone() bool        { return j.Status == StatusDone }
func (j *Job) IsFailed() bool      { return j.Status == StatusFailed }

// IsActive reports whether the job still owns its (key, hash) slot.
func (j *Job) IsActive() bool {
	return j.Status == StatusPending || j.Status == StatusTranslating
}

// IsStale reports whether a translating job has been stuck longer than
// timeout, e.g. because the process died mid-job.
func (j *Job) IsStale(timeout time.Duration) bool {
	if j.Status != StatusTranslating {
		return false
	}
	return time.Since(time.UnixMilli(j.UpdatedAt)) > timeout
}

// NowMs is the single clock used for job timestamps.
func NowMs() int64 {
	return time.Now().UnixMilli()
}

// JobSummary is the admin-facing view of a job row.
type JobSummary struct {
	ID         string `json:"id"`
	VideoID    string `json:"video_id"`
	SourceLang string `json:"source_lang"`
	TargetLang string `json:"target_lang"`
	Track      string `json:"track"`
	Fmt        string `json:"fmt"`
	Status     Status `json:"status"`
	RetryCount int    `json:"retry_count"`
	ErrorCode  string `json:"error_code,omitempty"`
	UpdatedAt  int64  `json:"updated_at"`
}

// NewJobSummary creates the admin view from a job row.
func NewJobSummary(j *Job) JobSummary {
	return JobSummary{
		ID:         j.ID,
		VideoID:    j.VideoID,
		SourceLang: j.SourceLang,
		TargetLang: j.TargetLang,
		Track:      j.Track,
		Fmt:        j.Fmt,
		Status:     j.Status,
		RetryCount: j.RetryCount,
		ErrorCode:  j.ErrorCode,
		UpdatedAt:  j.UpdatedAt,
	}
}
