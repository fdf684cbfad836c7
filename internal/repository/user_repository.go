package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/statusify/statusify/internal/models"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned when the email is unknown or the
// password does not match. Callers must not distinguish the two cases.
var ErrInvalidCredentials = errors.New("invalid credentials")

var (
	compareHashAndPassword = bcrypt.CompareHashAndPassword

	// unknown emails are checked against this hash so both failure paths
	// spend the same bcrypt time.
	dummyHashOnce sync.Once
	dummyHash     []byte
)

func dummyPasswordHash() []byte {
	dummyHashOnce.Do(func() {
		dummyHash, _ = bcrypt.GenerateFromPassword([]byte("statusify-unknown-user"), bcrypt.DefaultCost)
	})
	return dummyHash
}

type UserRepository interface {
	CreateUser(ctx context.Context, email, password string, admin bool) (models.User, error)
	AuthenticateUser(ctx context.Context, email, password string) (models.User, error)
	GetUserByID(ctx context.Context, userID int64) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)
	GetUserByAPIToken(ctx context.Context, token string) (models.User, error)
	TrackSignIn(ctx context.Context, userID int64, remoteIP string) error
	SetAPIToken(ctx context.Context, email, token string) (models.User, error)
}

type userRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) UserRepository {
	return &userRepository{db: db}
}

const userColumns = `id, email, encrypted_password, COALESCE(admin, FALSE), sign_in_count,
		current_sign_in_at, last_sign_in_at, host(current_sign_in_ip), host(last_sign_in_ip),
		api_token, created_at, updated_at`

// NormalizeEmail trims and lower-cases an address before it is stored or compared.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (u *userRepository) CreateUser(ctx context.Context, email, password string, admin bool) (models.User, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return models.User{}, errors.New("email is required")
	}
	if password == "" {
		return models.User{}, errors.New("password is required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, fmt.Errorf("hash password: %w", err)
	}

	query := `
		INSERT INTO users (email, encrypted_password, admin)
		VALUES ($1, $2, $3)
		RETURNING ` + userColumns
	return scanUser(u.db.QueryRowContext(ctx, query, email, string(hash), admin))
}

func (u *userRepository) AuthenticateUser(ctx context.Context, email, password string) (models.User, error) {
	user, err := u.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			_ = compareHashAndPassword(dummyPasswordHash(), []byte(password))
			return models.User{}, ErrInvalidCredentials
		}
		return models.User{}, err
	}

	if err := compareHashAndPassword([]byte(user.EncryptedPassword), []byte(password)); err != nil {
		return models.User{}, ErrInvalidCredentials
	}

	return user, nil
}

func (u *userRepository) GetUserByID(ctx context.Context, userID int64) (models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(u.db.QueryRowContext(ctx, query, userID))
}

func (u *userRepository) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUser(u.db.QueryRowContext(ctx, query, NormalizeEmail(email)))
}

func (u *userRepository) GetUserByAPIToken(ctx context.Context, token string) (models.User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return models.User{}, sql.ErrNoRows
	}
	query := `SELECT ` + userColumns + ` FROM users WHERE api_token = $1`
	return scanUser(u.db.QueryRowContext(ctx, query, token))
}

// TrackSignIn shifts the current sign-in stamp to last and records a new one.
func (u *userRepository) TrackSignIn(ctx context.Context, userID int64, remoteIP string) error {
	var ip interface{}
	if parsed := net.ParseIP(strings.TrimSpace(remoteIP)); parsed != nil {
		ip = parsed.String()
	}

	const query = `
		UPDATE users
		SET sign_in_count = sign_in_count + 1,
		    last_sign_in_at = current_sign_in_at,
		    last_sign_in_ip = current_sign_in_ip,
		    current_sign_in_at = now(),
		    current_sign_in_ip = $2,
		    updated_at = now()
		WHERE id = $1`

	result, err := u.db.ExecContext(ctx, query, userID, ip)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (u *userRepository) SetAPIToken(ctx context.Context, email, token string) (models.User, error) {
	query := `
		UPDATE users
		SET api_token = $2, updated_at = now()
		WHERE email = $1
		RETURNING ` + userColumns
	return scanUser(u.db.QueryRowContext(ctx, query, NormalizeEmail(email), token))
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(scanner rowScanner) (models.User, error) {
	var (
		user            models.User
		currentSignInAt sql.NullTime
		lastSignInAt    sql.NullTime
		currentSignInIP sql.NullString
		lastSignInIP    sql.NullString
		apiToken        sql.NullString
	)

	if err := scanner.Scan(
		&user.ID,
		&user.Email,
		&user.EncryptedPassword,
		&user.Admin,
		&user.SignInCount,
		&currentSignInAt,
		&lastSignInAt,
		&currentSignInIP,
		&lastSignInIP,
		&apiToken,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return models.User{}, err
	}

	user.CurrentSignInAt = nullTime(currentSignInAt)
	user.LastSignInAt = nullTime(lastSignInAt)
	user.CurrentSignInIP = nullString(currentSignInIP)
	user.LastSignInIP = nullString(lastSignInIP)
	user.APIToken = nullString(apiToken)

	return user, nil
}
