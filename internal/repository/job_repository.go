package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/statusify/statusify/internal/models"
)

type JobRepository interface {
	Enqueue(ctx context.Context, payload models.JobPayload, opts EnqueueOptions) (models.DelayedJob, error)
	// ClaimNext locks the next runnable job for workerName. It returns
	// sql.ErrNoRows when nothing is runnable.
	ClaimNext(ctx context.Context, workerName, queue string, maxRunTime time.Duration) (models.DelayedJob, error)
	Complete(ctx context.Context, jobID int64) error
	// Reschedule unlocks the job and makes it runnable again after delay.
	Reschedule(ctx context.Context, jobID int64, attempts int, lastError string, delay time.Duration) error
	MarkFailed(ctx context.Context, jobID int64, attempts int, lastError string) error
}

// EnqueueOptions tunes a new job. Delay is added to the database clock so
// run_at, locked_at and now() always share one time zone.
type EnqueueOptions struct {
	Priority int
	Delay    time.Duration
	Queue    string
}

type jobRepository struct {
	db *sql.DB
}

func NewJobRepository(db *sql.DB) JobRepository {
	return &jobRepository{db: db}
}

const jobColumns = `id, priority, attempts, handler, last_error, run_at, locked_at, failed_at, locked_by, queue,
		COALESCE(created_at, now()), COALESCE(updated_at, now())`

func (r *jobRepository) Enqueue(ctx context.Context, payload models.JobPayload, opts EnqueueOptions) (models.DelayedJob, error) {
	handler, err := json.Marshal(payload)
	if err != nil {
		return models.DelayedJob{}, fmt.Errorf("marshal job payload: %w", err)
	}

	var queue interface{}
	if q := strings.TrimSpace(opts.Queue); q != "" {
		queue = q
	}

	query := `
		INSERT INTO delayed_jobs (priority, attempts, handler, run_at, queue, created_at, updated_at)
		VALUES ($1, 0, $2, now() + make_interval(secs => $3), $4, now(), now())
		RETURNING ` + jobColumns
	return scanJob(r.db.QueryRowContext(ctx, query, opts.Priority, string(handler), seconds(opts.Delay), queue))
}

func (r *jobRepository) ClaimNext(ctx context.Context, workerName, queue string, maxRunTime time.Duration) (models.DelayedJob, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return models.DelayedJob{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var jobID int64
	query := `
		SELECT id
		FROM delayed_jobs
		WHERE failed_at IS NULL
		  AND (run_at IS NULL OR run_at <= now())
		  AND (locked_at IS NULL OR locked_at < now() - make_interval(secs => $1))
		  AND ($2 = '' OR queue = $2)
		ORDER BY priority ASC, run_at ASC
		FOR UPDATE SKIP LOCKED
		LIMIT 1`
	if err := tx.QueryRowContext(ctx, query, seconds(maxRunTime), queue).Scan(&jobID); err != nil {
		return models.DelayedJob{}, err
	}

	claimQuery := `
		UPDATE delayed_jobs
		SET locked_at = now(), locked_by = $2, updated_at = now()
		WHERE id = $1
		RETURNING ` + jobColumns
	job, err := scanJob(tx.QueryRowContext(ctx, claimQuery, jobID, workerName))
	if err != nil {
		return models.DelayedJob{}, fmt.Errorf("lock job %d: %w", jobID, err)
	}

	if err := tx.Commit(); err != nil {
		return models.DelayedJob{}, fmt.Errorf("commit transaction: %w", err)
	}
	return job, nil
}

func (r *jobRepository) Complete(ctx context.Context, jobID int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM delayed_jobs WHERE id = $1`, jobID)
	return err
}

func (r *jobRepository) Reschedule(ctx context.Context, jobID int64, attempts int, lastError string, delay time.Duration) error {
	const query = `
		UPDATE delayed_jobs
		SET attempts = $2, last_error = $3, run_at = now() + make_interval(secs => $4),
		    locked_at = NULL, locked_by = NULL, updated_at = now()
		WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, jobID, attempts, lastError, seconds(delay))
	return err
}

func (r *jobRepository) MarkFailed(ctx context.Context, jobID int64, attempts int, lastError string) error {
	const query = `
		UPDATE delayed_jobs
		SET attempts = $2, last_error = $3, failed_at = now(),
		    locked_at = NULL, locked_by = NULL, updated_at = now()
		WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, jobID, attempts, lastError)
	return err
}

// seconds converts d for make_interval. The columns are timestamps without
// time zone, so wall-clock values computed in Go must never reach them.
func seconds(d time.Duration) float64 {
	if d < 0 {
		return 0
	}
	return d.Seconds()
}

func scanJob(scanner rowScanner) (models.DelayedJob, error) {
	var (
		job       models.DelayedJob
		lastError sql.NullString
		runAt     sql.NullTime
		lockedAt  sql.NullTime
		failedAt  sql.NullTime
		lockedBy  sql.NullString
		queue     sql.NullString
	)
	if err := scanner.Scan(
		&job.ID,
		&job.Priority,
		&job.Attempts,
		&job.Handler,
		&lastError,
		&runAt,
		&lockedAt,
		&failedAt,
		&lockedBy,
		&queue,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		return models.DelayedJob{}, err
	}
	job.LastError = nullString(lastError)
	job.RunAt = nullTime(runAt)
	job.LockedAt = nullTime(lockedAt)
	job.FailedAt = nullTime(failedAt)
	job.LockedBy = nullString(lockedBy)
	job.Queue = nullString(queue)
	return job, nil
}
