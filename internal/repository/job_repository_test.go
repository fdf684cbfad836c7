package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/statusify/statusify/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var jobCols = []string{
	"id", "priority", "attempts", "handler", "last_error", "run_at",
	"locked_at", "failed_at", "locked_by", "queue", "created_at", "updated_at",
}

func sampleJobRow(id int64, handler string, lockedBy interface{}) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(jobCols).
		AddRow(id, 0, 0, handler, nil, now, nil, nil, lockedBy, nil, now, now)
}

func newJobRepo(t *testing.T) (JobRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := newMockDB(t)
	return NewJobRepository(db), mock
}

func TestEnqueue_SerializesPayload(t *testing.T) {
	repo, mock := newJobRepo(t)
	handler := `{"kind":"incident_notice","incident_id":3,"notice":"opened"}`

	mock.ExpectQuery("INSERT INTO delayed_jobs").
		WithArgs(0, handler, float64(0), nil).
		WillReturnRows(sampleJobRow(1, handler, nil))

	job, err := repo.Enqueue(context.Background(), models.JobPayload{
		Kind:       models.JobKindIncidentNotice,
		IncidentID: 3,
		Notice:     models.NoticeOpened,
	}, EnqueueOptions{})
	require.NoError(t, err)
	assert.Equal(t, handler, job.Handler)
	assert.Nil(t, job.Queue)
}

func TestEnqueue_WithQueue(t *testing.T) {
	repo, mock := newJobRepo(t)

	mock.ExpectQuery("INSERT INTO delayed_jobs").
		WithArgs(5, sqlmock.AnyArg(), float64(90), "mailers").
		WillReturnRows(sampleJobRow(2, "{}", nil))

	_, err := repo.Enqueue(context.Background(), models.JobPayload{Kind: models.JobKindSubscriberActivation, SubscriberID: 1},
		EnqueueOptions{Priority: 5, Delay: 90 * time.Second, Queue: " mailers "})
	require.NoError(t, err)
}

func TestClaimNext_LocksJob(t *testing.T) {
	repo, mock := newJobRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id\\s+FROM delayed_jobs.*FOR UPDATE SKIP LOCKED").
		WithArgs(float64(3600), "").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(9)))
	mock.ExpectQuery("UPDATE delayed_jobs\\s+SET locked_at").
		WithArgs(int64(9), "host:1").
		WillReturnRows(sampleJobRow(9, "{}", "host:1"))
	mock.ExpectCommit()

	job, err := repo.ClaimNext(context.Background(), "host:1", "", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(9), job.ID)
	require.NotNil(t, job.LockedBy)
	assert.Equal(t, "host:1", *job.LockedBy)
}

func TestClaimNext_NothingRunnable(t *testing.T) {
	repo, mock := newJobRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id\\s+FROM delayed_jobs").WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	_, err := repo.ClaimNext(context.Background(), "host:1", "", time.Hour)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestComplete_DeletesRow(t *testing.T) {
	repo, mock := newJobRepo(t)
	mock.ExpectExec("DELETE FROM delayed_jobs WHERE id").
		WithArgs(int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Complete(context.Background(), 9))
}

func TestReschedule(t *testing.T) {
	repo, mock := newJobRepo(t)
	mock.ExpectExec("UPDATE delayed_jobs\\s+SET attempts = \\$2, last_error = \\$3, run_at = now\\(\\) \\+ make_interval\\(secs => \\$4\\)").
		WithArgs(int64(9), 2, "smtp down", float64(21)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Reschedule(context.Background(), 9, 2, "smtp down", 21*time.Second))
}

// run_at and locked_at are timestamps without time zone, so every job time
// must come from the database clock. A time.Time argument would be stored
// as UTC wall time and compared against a session-local now().
func TestJobTimesUseDatabaseClock(t *testing.T) {
	repo, mock := newJobRepo(t)
	mock.MatchExpectationsInOrder(true)

	mock.ExpectQuery("VALUES \\(\\$1, 0, \\$2, now\\(\\) \\+ make_interval\\(secs => \\$3\\), \\$4").
		WithArgs(0, sqlmock.AnyArg(), noTimeArg{}, nil).
		WillReturnRows(sampleJobRow(1, "{}", nil))
	mock.ExpectBegin()
	mock.ExpectQuery("locked_at < now\\(\\) - make_interval\\(secs => \\$1\\)").
		WithArgs(noTimeArg{}, "").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectQuery("SET locked_at = now\\(\\)").
		WithArgs(int64(1), "host:1").
		WillReturnRows(sampleJobRow(1, "{}", "host:1"))
	mock.ExpectCommit()
	mock.ExpectExec("run_at = now\\(\\) \\+ make_interval").
		WithArgs(int64(1), 1, "boom", noTimeArg{}).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ctx := context.Background()
	_, err := repo.Enqueue(ctx, models.JobPayload{Kind: models.JobKindIncidentNotice, IncidentID: 1}, EnqueueOptions{})
	require.NoError(t, err)
	_, err = repo.ClaimNext(ctx, "host:1", "", 4*time.Hour)
	require.NoError(t, err)
	require.NoError(t, repo.Reschedule(ctx, 1, 1, "boom", time.Second))
}

func TestSecondsClampsNegativeDelay(t *testing.T) {
	assert.Equal(t, float64(0), seconds(-time.Minute))
	assert.Equal(t, 1.5, seconds(1500*time.Millisecond))
}

// noTimeArg matches any driver value except a time.Time.
type noTimeArg struct{}

func (noTimeArg) Match(v driver.Value) bool {
	_, isTime := v.(time.Time)
	return !isTime
}

func TestMarkFailed(t *testing.T) {
	repo, mock := newJobRepo(t)
	mock.ExpectExec("UPDATE delayed_jobs\\s+SET attempts = \\$2, last_error = \\$3, failed_at = now\\(\\)").
		WithArgs(int64(9), 25, "gave up").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MarkFailed(context.Background(), 9, 25, "gave up"))
}
