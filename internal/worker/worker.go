package worker

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/statusify/statusify/internal/models"
	"github.com/statusify/statusify/internal/notification"
	"github.com/statusify/statusify/internal/repository"
	"github.com/statusify/statusify/internal/telemetry"
)

// errPermanent marks failures that must not be retried.
var errPermanent = errors.New("permanent job failure")

type WorkerConfig struct {
	JobRepo      repository.JobRepository
	Notifier     notification.Service
	PollInterval time.Duration
	MaxAttempts  int
	MaxRunTime   time.Duration
	Queue        string
	Name         string
	Logger       zerolog.Logger
}

type Worker struct {
	cfg    WorkerConfig
	logger zerolog.Logger
}

func NewWorker(cfg WorkerConfig) (*Worker, error) {
	if cfg.JobRepo == nil {
		return nil, errors.New("worker requires a job repository")
	}
	if cfg.Notifier == nil {
		return nil, errors.New("worker requires a notification service")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 25
	}
	if cfg.MaxRunTime <= 0 {
		cfg.MaxRunTime = 4 * time.Hour
	}
	if cfg.Name == "" {
		cfg.Name = defaultName()
	}

	return &Worker{
		cfg:    cfg,
		logger: cfg.Logger.With().Str("component", "worker").Str("worker", cfg.Name).Logger(),
	}, nil
}

func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info().Dur("poll_interval", w.cfg.PollInterval).Msg("Worker started, polling for jobs...")
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("Worker stopped")
			return ctx.Err()
		case <-ticker.C:
			// Drain everything runnable before waiting for the next tick.
			for {
				processed, err := w.processNext(ctx)
				if err != nil {
					w.logger.Error().Err(err).Msg("error processing jobs")
				}
				if !processed || ctx.Err() != nil {
					break
				}
			}
		}
	}
}

// processNext claims and runs one job. It reports whether a job was claimed.
func (w *Worker) processNext(ctx context.Context) (bool, error) {
	job, err := w.cfg.JobRepo.ClaimNext(ctx, w.cfg.Name, w.cfg.Queue, w.cfg.MaxRunTime)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, errors.Wrap(err, "failed to claim next job")
	}

	return true, w.run(ctx, job)
}

func (w *Worker) run(ctx context.Context, job models.DelayedJob) error {
	logger := w.logger.With().Int64("job_id", job.ID).Int("attempts", job.Attempts).Logger()

	var payload models.JobPayload
	runErr := json.Unmarshal([]byte(job.Handler), &payload)
	if runErr != nil {
		runErr = errors.Wrapf(errPermanent, "decode payload: %v", runErr)
	} else {
		logger = logger.With().Str("kind", string(payload.Kind)).Logger()
		runErr = w.cfg.Notifier.Deliver(ctx, payload)
		if errors.Is(runErr, notification.ErrUnknownJob) {
			runErr = errors.Wrap(errPermanent, runErr.Error())
		}
	}
	kind := string(payload.Kind)
	if kind == "" {
		kind = "unknown"
	}

	if runErr == nil {
		if err := w.cfg.JobRepo.Complete(ctx, job.ID); err != nil {
			return errors.Wrapf(err, "failed to delete completed job %d", job.ID)
		}
		telemetry.JobsProcessedTotal.WithLabelValues(kind, "completed").Inc()
		logger.Info().Msg("Job completed")
		return nil
	}

	attempts := job.Attempts + 1
	if errors.Is(runErr, errPermanent) || attempts >= w.cfg.MaxAttempts {
		if err := w.cfg.JobRepo.MarkFailed(ctx, job.ID, attempts, runErr.Error()); err != nil {
			return errors.Wrapf(err, "failed to mark job %d as failed", job.ID)
		}
		telemetry.JobsProcessedTotal.WithLabelValues(kind, "failed").Inc()
		logger.Error().Err(runErr).Int("attempts", attempts).Msg("Job failed permanently")
		return nil
	}

	delay := Backoff(attempts)
	if err := w.cfg.JobRepo.Reschedule(ctx, job.ID, attempts, runErr.Error(), delay); err != nil {
		return errors.Wrapf(err, "failed to reschedule job %d", job.ID)
	}
	telemetry.JobsProcessedTotal.WithLabelValues(kind, "retried").Inc()
	logger.Warn().Err(runErr).Int("attempts", attempts).Dur("retry_in", delay).Msg("Job failed, rescheduled")
	return nil
}

// Backoff returns the delay before retry number attempts: attempts^4 + 5 seconds.
func Backoff(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	return time.Duration(math.Pow(float64(attempts), 4)+5) * time.Second
}

func defaultName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "worker-" + uuid.NewString()
	}
	return fmt.Sprintf("host:%s pid:%d", host, os.Getpid())
}
