package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/double-tu/youtube-subtitle-proxy/errors"
)

const jobColumns = `id, video_id, source_lang, target_lang, track, fmt, source_hash,
               status, retry_count, next_retry_at, error_code, error_message,
               bilingual, created_at, updated_at, expires_at`

const (
	upsertJobQuery = `
        INSERT INTO jobs (
            id, video_id, source_lang, target_lang, track, fmt, source_hash,
            status, retry_count, next_retry_at, error_code, error_message,
            bilingual, created_at, updated_at, expires_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(video_id, source_lang, target_lang, track, fmt, source_hash)
        DO UPDATE SET updated_at = excluded.updated_at
    `

	getJobQuery = `
        SELECT ` + jobColumns + `
        FROM jobs WHERE id = ?
    `

	getJobByKeyHashQuery = `
        SELECT ` + jobColumns + `
        FROM jobs
        WHERE video_id = ? AND source_lang = ? AND target_lang = ?
          AND track = ? AND fmt = ? AND source_hash = ?
    `

	getActiveJobQuery = `
        SELECT ` + jobColumns + `
        FROM jobs
        WHERE video_id = ? AND source_lang = ? AND target_lang = ?
          AND track = ? AND fmt = ? AND source_hash = ?
          AND status IN ('pending', 'translating')
    `

	getLatestDoneQuery = `
        SELECT ` + jobColumns + `
        FROM jobs
        WHERE video_id = ? AND source_lang = ? AND target_lang = ?
          AND track = ? AND fmt = ?
          AND status = 'done' AND expires_at >= ?
        ORDER BY updated_at DESC
        LIMIT 1
    `

	markTranslatingQuery = `
        UPDATE jobs SET status = 'translating', updated_at = ?
        WHERE id = ?
    `

	markDoneQuery = `
        UPDATE jobs SET
            status = 'done',
            bilingual = ?,
            error_code = '',
            error_message = '',
            next_retry_at = 0,
            updated_at = ?
        WHERE id = ?
    `

	markFailedQuery = `
        UPDATE jobs SET
            status = ?,
            retry_count = ?,
            next_retry_at = ?,
            error_code = ?,
            error_message = ?,
            updated_at = ?
        WHERE id = ?
    `

	dueRetriesQuery = `
        SELECT ` + jobColumns + `
        FROM jobs
        WHERE status = 'pending' AND next_retry_at > 0 AND next_retry_at <= ?
        ORDER BY next_retry_at
        LIMIT ?
    `

	resetStaleQuery = `
        UPDATE jobs SET status = 'pending', next_retry_at = ?, updated_at = ?
        WHERE status = 'translating' AND updated_at < ?
    `

	deleteExpiredQuery = `
        DELETE FROM jobs WHERE expires_at < ?
    `

	countByStatusQuery = `
        SELECT status, COUNT(*) FROM jobs GROUP BY status
    `

	recentJobsQuery = `
        SELECT ` + jobColumns + `
        FROM jobs
        ORDER BY updated_at DESC
        LIMIT ?
    `

	upsertCounterQuery = `
        INSERT INTO metadata (key, value) VALUES (?, ?)
        ON CONFLICT(key) DO UPDATE
        SET value = CAST(CAST(value AS INTEGER) + excluded.value AS TEXT)
    `

	getMetadataQuery = `
        SELECT value FROM metadata WHERE key = ?
    `

	setMetadataQuery = `
        INSERT INTO metadata (key, value) VALUES (?, ?)
        ON CONFLICT(key) DO UPDATE SET value = excluded.value
    `
)

type preparedStatements struct {
	upsert          *sql.Stmt
	get             *sql.Stmt
	getByKeyHash    *sql.Stmt
	getActive       *sql.Stmt
	getLatestDone   *sql.Stmt
	markTranslating *sql.Stmt
	markDone        *sql.Stmt
	markFailed      *sql.Stmt
	dueRetries      *sql.Stmt
	resetStale      *sql.Stmt
	deleteExpired   *sql.Stmt
	countByStatus   *sql.Stmt
	recentJobs      *sql.Stmt
	upsertCounter   *sql.Stmt
	getMetadata     *sql.Stmt
	setMetadata     *sql.Stmt
}

func (stmts *preparedStatements) prepare(ctx context.Context, db *sql.DB) error {
	const op = "preparedStatements.prepare"

	targets := []struct {
		stmt  **sql.Stmt
		query string
		name  string
	}{
		{&stmts.upsert, upsertJobQuery, "upsert"},
		{&stmts.get, getJobQuery, "get"},
		{&stmts.getByKeyHash, getJobByKeyHashQuery, "getByKeyHash"},
		{&stmts.getActive, getActiveJobQuery, "getActive"},
		{&stmts.getLatestDone, getLatestDoneQuery, "getLatestDone"},
		{&stmts.markTranslating, markTranslatingQuery, "markTranslating"},
		{&stmts.markDone, markDoneQuery, "markDone"},
		{&stmts.markFailed, markFailedQuery, "markFailed"},
		{&stmts.dueRetries, dueRetriesQuery, "dueRetries"},
		{&stmts.resetStale, resetStaleQuery, "resetStale"},
		{&stmts.deleteExpired, deleteExpiredQuery, "deleteExpired"},
		{&stmts.countByStatus, countByStatusQuery, "countByStatus"},
		{&stmts.recentJobs, recentJobsQuery, "recentJobs"},
		{&stmts.upsertCounter, upsertCounterQuery, "upsertCounter"},
		{&stmts.getMetadata, getMetadataQuery, "getMetadata"},
		{&stmts.setMetadata, setMetadataQuery, "setMetadata"},
	}

	for _, t := range targets {
		stmt, err := db.PrepareContext(ctx, t.query)
		if err != nil {
			return errors.Internal(op, err, fmt.Sprintf("failed to prepare %s statement", t.name))
		}
		*t.stmt = stmt
	}

	return nil
}

func (stmts *preparedStatements) close() error {
	var errs []error

	statements := [...]*sql.Stmt{
		stmts.upsert,
		stmts.get,
		stmts.getByKeyHash,
		stmts.getActive,
		stmts.getLatestDone,
		stmts.markTranslating,
		stmts.markDone,
		stmts.markFailed,
		stmts.dueRetries,
		stmts.resetStale,
		stmts.deleteExpired,
		stmts.countByStatus,
		stmts.recentJobs,
		stmts.upsertCounter,
		stmts.getMetadata,
		stmts.setMetadata,
	}

	for _, stmt := range statements {
		if stmt != nil {
			if err := stmt.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("failed to close prepared statements: %v", errs)
	}

	return nil
}
