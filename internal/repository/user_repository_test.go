package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var userCols = []string{
	"id", "email", "encrypted_password", "admin", "sign_in_count",
	"current_sign_in_at", "last_sign_in_at", "current_sign_in_ip", "last_sign_in_ip",
	"api_token", "created_at", "updated_at",
}

func sampleUserRow(t *testing.T, email, password string) *sqlmock.Rows {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	now := time.Now()
	return sqlmock.NewRows(userCols).
		AddRow(int64(1), email, string(hash), true, 3, now, nil, "10.0.0.1", nil, "tok-123", now, now)
}

func newUserRepo(t *testing.T) (UserRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := newMockDB(t)
	return NewUserRepository(db), mock
}

func TestAuthenticateUser_Success(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectQuery("SELECT .* FROM users WHERE email").
		WithArgs("admin@example.com").
		WillReturnRows(sampleUserRow(t, "admin@example.com", "password"))

	user, err := repo.AuthenticateUser(context.Background(), "  Admin@Example.com ", "password")
	require.NoError(t, err)
	assert.Equal(t, int64(1), user.ID)
	assert.True(t, user.Admin)
	require.NotNil(t, user.CurrentSignInIP)
	assert.Equal(t, "10.0.0.1", *user.CurrentSignInIP)
	assert.Nil(t, user.LastSignInAt)
	require.NotNil(t, user.APIToken)
}

func TestAuthenticateUser_WrongPassword(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectQuery("SELECT .* FROM users WHERE email").
		WillReturnRows(sampleUserRow(t, "admin@example.com", "password"))

	_, err := repo.AuthenticateUser(context.Background(), "admin@example.com", "foobar")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthenticateUser_UnknownEmail(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectQuery("SELECT .* FROM users WHERE email").
		WillReturnRows(sqlmock.NewRows(userCols))

	_, err := repo.AuthenticateUser(context.Background(), "nobody@example.com", "password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthenticateUser_UnknownEmailStillComparesHash(t *testing.T) {
	var compared [][]byte
	original := compareHashAndPassword
	compareHashAndPassword = func(hash, password []byte) error {
		compared = append(compared, hash)
		return original(hash, password)
	}
	t.Cleanup(func() { compareHashAndPassword = original })

	repo, mock := newUserRepo(t)
	mock.ExpectQuery("SELECT .* FROM users WHERE email").
		WillReturnRows(sqlmock.NewRows(userCols))
	mock.ExpectQuery("SELECT .* FROM users WHERE email").
		WillReturnRows(sampleUserRow(t, "admin@example.com", "password"))

	_, err := repo.AuthenticateUser(context.Background(), "nobody@example.com", "password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = repo.AuthenticateUser(context.Background(), "admin@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	require.Len(t, compared, 2, "both failure paths run one bcrypt comparison")
	assert.Equal(t, dummyPasswordHash(), compared[0])
	cost, err := bcrypt.Cost(compared[0])
	require.NoError(t, err)
	assert.Equal(t, bcrypt.DefaultCost, cost)
}

func TestAuthenticateUser_DBError(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectQuery("SELECT .* FROM users WHERE email").WillReturnError(errDB)

	_, err := repo.AuthenticateUser(context.Background(), "admin@example.com", "password")
	assert.ErrorIs(t, err, errDB)
	assert.NotErrorIs(t, err, ErrInvalidCredentials)
}

func TestCreateUser_HashesPassword(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectQuery("INSERT INTO users").
		WithArgs("new@example.com", sqlmock.AnyArg(), false).
		WillReturnRows(sampleUserRow(t, "new@example.com", "secret"))

	user, err := repo.CreateUser(context.Background(), "New@Example.com", "secret", false)
	require.NoError(t, err)
	assert.NotEqual(t, "secret", user.EncryptedPassword)
}

func TestCreateUser_RequiresEmailAndPassword(t *testing.T) {
	repo, _ := newUserRepo(t)

	_, err := repo.CreateUser(context.Background(), " ", "secret", false)
	assert.Error(t, err)
	_, err = repo.CreateUser(context.Background(), "a@example.com", "", false)
	assert.Error(t, err)
}

func TestTrackSignIn(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectExec("UPDATE users").
		WithArgs(int64(1), "192.168.1.20").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.TrackSignIn(context.Background(), 1, "192.168.1.20"))
}

func TestTrackSignIn_InvalidIPStoresNull(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectExec("UPDATE users").
		WithArgs(int64(1), nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.TrackSignIn(context.Background(), 1, "not-an-ip"))
}

func TestTrackSignIn_UnknownUser(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectExec("UPDATE users").WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, repo.TrackSignIn(context.Background(), 42, "127.0.0.1"), sql.ErrNoRows)
}

func TestGetUserByAPIToken_EmptyTokenNeverQueries(t *testing.T) {
	repo, _ := newUserRepo(t)

	_, err := repo.GetUserByAPIToken(context.Background(), "  ")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestSetAPIToken(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectQuery("UPDATE users").
		WithArgs("admin@example.com", "tok-123").
		WillReturnRows(sampleUserRow(t, "admin@example.com", "password"))

	user, err := repo.SetAPIToken(context.Background(), "admin@example.com", "tok-123")
	require.NoError(t, err)
	assert.Equal(t, "tok-123", *user.APIToken)
}
