package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/statusify/statusify/internal/models"
	"github.com/statusify/statusify/internal/notification"
	"github.com/statusify/statusify/internal/repository"
	"github.com/statusify/statusify/internal/repository/repotest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubNotifier struct {
	notification.Service
	delivered []models.JobPayload
	err       error
}

func (s *stubNotifier) Deliver(_ context.Context, payload models.JobPayload) error {
	s.delivered = append(s.delivered, payload)
	return s.err
}

func newTestWorker(t *testing.T, store *repotest.Store, notifier notification.Service) *Worker {
	t.Helper()
	w, err := NewWorker(WorkerConfig{
		JobRepo:     store.Jobs(),
		Notifier:    notifier,
		MaxAttempts: 3,
		Name:        "test-worker",
		Logger:      zerolog.Nop(),
	})
	require.NoError(t, err)
	return w
}

func enqueue(t *testing.T, store *repotest.Store, payload models.JobPayload) models.DelayedJob {
	t.Helper()
	job, err := store.Jobs().Enqueue(context.Background(), payload, repository.EnqueueOptions{})
	require.NoError(t, err)
	return job
}

func TestBackoff(t *testing.T) {
	assert.Equal(t, 5*time.Second, Backoff(0))
	assert.Equal(t, 6*time.Second, Backoff(1))
	assert.Equal(t, 21*time.Second, Backoff(2))
	assert.Equal(t, 86*time.Second, Backoff(3))
	assert.Equal(t, 5*time.Second, Backoff(-1))
}

func TestNewWorkerRequiresDependencies(t *testing.T) {
	_, err := NewWorker(WorkerConfig{Notifier: &stubNotifier{}})
	assert.Error(t, err)
	_, err = NewWorker(WorkerConfig{JobRepo: repotest.NewStore().Jobs()})
	assert.Error(t, err)
}

func TestProcessNextEmptyQueue(t *testing.T) {
	w := newTestWorker(t, repotest.NewStore(), &stubNotifier{})
	processed, err := w.processNext(context.Background())
	require.NoError(t, err)
	assert.False(t, processed)
}

func TestProcessNextSuccessDeletesJob(t *testing.T) {
	store := repotest.NewStore()
	notifier := &stubNotifier{}
	w := newTestWorker(t, store, notifier)

	payload := models.JobPayload{Kind: models.JobKindIncidentNotice, IncidentID: 7, Notice: models.NoticeOpened}
	job := enqueue(t, store, payload)

	processed, err := w.processNext(context.Background())
	require.NoError(t, err)
	assert.True(t, processed)
	assert.Equal(t, []models.JobPayload{payload}, notifier.delivered)

	_, exists := store.Job(job.ID)
	assert.False(t, exists)
}

func TestProcessNextFailureReschedules(t *testing.T) {
	store := repotest.NewStore()
	w := newTestWorker(t, store, &stubNotifier{err: errors.New("smtp timeout")})

	job := enqueue(t, store, models.JobPayload{Kind: models.JobKindSubscriberActivation, SubscriberID: 1})

	processed, err := w.processNext(context.Background())
	require.NoError(t, err)
	assert.True(t, processed)

	stored, ok := store.Job(job.ID)
	require.True(t, ok)
	assert.Equal(t, 1, stored.Attempts)
	require.NotNil(t, stored.LastError)
	assert.Contains(t, *stored.LastError, "smtp timeout")
	assert.Nil(t, stored.FailedAt)
	assert.Nil(t, stored.LockedAt)
	require.NotNil(t, stored.RunAt)
	assert.Equal(t, 6*time.Second, stored.RunAt.Sub(stored.UpdatedAt), "retry runs Backoff(1) after the failure")
}

func TestProcessNextMarksFailedAtMaxAttempts(t *testing.T) {
	store := repotest.NewStore()
	w := newTestWorker(t, store, &stubNotifier{err: errors.New("still down")})

	job := enqueue(t, store, models.JobPayload{Kind: models.JobKindSubscriberActivation, SubscriberID: 1})

	for i := 0; i < 3; i++ {
		processed, err := w.processNext(context.Background())
		require.NoError(t, err)
		require.True(t, processed)
	}

	stored, ok := store.Job(job.ID)
	require.True(t, ok)
	assert.Equal(t, 3, stored.Attempts)
	assert.NotNil(t, stored.FailedAt)

	processed, err := w.processNext(context.Background())
	require.NoError(t, err)
	assert.False(t, processed, "failed jobs are not claimed again")
}

func TestProcessNextUnknownKindFailsPermanently(t *testing.T) {
	store := repotest.NewStore()
	notifier := &stubNotifier{err: notification.ErrUnknownJob}
	w := newTestWorker(t, store, notifier)

	job := enqueue(t, store, models.JobPayload{Kind: "reindex"})

	_, err := w.processNext(context.Background())
	require.NoError(t, err)

	stored, ok := store.Job(job.ID)
	require.True(t, ok)
	assert.Equal(t, 1, stored.Attempts)
	assert.NotNil(t, stored.FailedAt)
}

func TestStartStopsOnCancel(t *testing.T) {
	store := repotest.NewStore()
	notifier := &stubNotifier{}
	w, err := NewWorker(WorkerConfig{
		JobRepo:      store.Jobs(),
		Notifier:     notifier,
		PollInterval: 10 * time.Millisecond,
		Logger:       zerolog.Nop(),
	})
	require.NoError(t, err)

	enqueue(t, store, models.JobPayload{Kind: models.JobKindIncidentNotice, IncidentID: 1})
	enqueue(t, store, models.JobPayload{Kind: models.JobKindIncidentNotice, IncidentID: 2})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	assert.Eventually(t, func() bool { return len(store.PendingJobs()) == 0 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
