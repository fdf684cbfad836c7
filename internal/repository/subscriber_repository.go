package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/statusify/statusify/internal/models"
)

type SubscriberRepository interface {
	// Subscribe stores a new pending subscriber. When the address is already
	// known the existing row is returned and created is false.
	Subscribe(ctx context.Context, email, activationKey string) (sub models.Subscriber, created bool, err error)
	Activate(ctx context.Context, activationKey string) (models.Subscriber, error)
	GetByID(ctx context.Context, id int64) (models.Subscriber, error)
	ListActivated(ctx context.Context) ([]models.Subscriber, error)
}

type subscriberRepository struct {
	db *sql.DB
}

func NewSubscriberRepository(db *sql.DB) SubscriberRepository {
	return &subscriberRepository{db: db}
}

const subscriberColumns = `id, COALESCE(email, ''), COALESCE(activated, FALSE), activation_key, created_at, updated_at`

// The lookup and insert run under a transaction-scoped advisory lock on the
// address, so concurrent requests for one email create a single row.
func (r *subscriberRepository) Subscribe(ctx context.Context, email, activationKey string) (models.Subscriber, bool, error) {
	email = NormalizeEmail(email)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Subscriber{}, false, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, email); err != nil {
		return models.Subscriber{}, false, fmt.Errorf("lock subscriber email: %w", err)
	}

	existing, err := scanSubscriber(tx.QueryRowContext(ctx,
		`SELECT `+subscriberColumns+` FROM subscribers WHERE email = $1 ORDER BY id LIMIT 1`, email))
	if err == nil {
		return existing, false, tx.Commit()
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Subscriber{}, false, err
	}

	query := `
		INSERT INTO subscribers (email, activated, activation_key)
		VALUES ($1, FALSE, $2)
		RETURNING ` + subscriberColumns
	sub, err := scanSubscriber(tx.QueryRowContext(ctx, query, email, activationKey))
	if err != nil {
		return models.Subscriber{}, false, err
	}
	if err := tx.Commit(); err != nil {
		return models.Subscriber{}, false, fmt.Errorf("commit transaction: %w", err)
	}
	return sub, true, nil
}

// Activate flips the subscriber owning activationKey to activated and
// clears the key so it cannot be used twice.
func (r *subscriberRepository) Activate(ctx context.Context, activationKey string) (models.Subscriber, error) {
	activationKey = strings.TrimSpace(activationKey)
	if activationKey == "" {
		return models.Subscriber{}, sql.ErrNoRows
	}

	query := `
		UPDATE subscribers
		SET activated = TRUE, activation_key = NULL, updated_at = now()
		WHERE activation_key = $1 AND COALESCE(activated, FALSE) = FALSE
		RETURNING ` + subscriberColumns
	return scanSubscriber(r.db.QueryRowContext(ctx, query, activationKey))
}

func (r *subscriberRepository) GetByID(ctx context.Context, id int64) (models.Subscriber, error) {
	return scanSubscriber(r.db.QueryRowContext(ctx,
		`SELECT `+subscriberColumns+` FROM subscribers WHERE id = $1`, id))
}

func (r *subscriberRepository) ListActivated(ctx context.Context) ([]models.Subscriber, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+subscriberColumns+` FROM subscribers WHERE activated = TRUE ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subscribers []models.Subscriber
	for rows.Next() {
		sub, err := scanSubscriber(rows)
		if err != nil {
			return nil, err
		}
		subscribers = append(subscribers, sub)
	}
	return subscribers, rows.Err()
}

func scanSubscriber(scanner rowScanner) (models.Subscriber, error) {
	var (
		sub models.Subscriber
		key sql.NullString
	)
	if err := scanner.Scan(&sub.ID, &sub.Email, &sub.Activated, &key, &sub.CreatedAt, &sub.UpdatedAt); err != nil {
		return models.Subscriber{}, err
	}
	sub.ActivationKey = nullString(key)
	return sub, nil
}
