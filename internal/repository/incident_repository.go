package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/statusify/statusify/internal/models"
)

type IncidentRepository interface {
	List(ctx context.Context, publicOnly bool) ([]models.Incident, error)
	ListStates(ctx context.Context) ([]models.Incident, error)
	Get(ctx context.Context, id int64) (models.Incident, error)
	Create(ctx context.Context, params CreateIncidentParams) (models.Incident, error)
	Update(ctx context.Context, id int64, params UpdateIncidentParams) (models.Incident, error)
	Delete(ctx context.Context, id int64) error
	Deactivate(ctx context.Context, id int64) (wasActive bool, err error)
}

type CreateIncidentParams struct {
	Name      string
	Component string
	Severity  string
	Public    bool
	UserID    *int64
	Event     EventParams
}

// UpdateIncidentParams carries optional column changes. A nil field keeps
// the stored value. Event is appended when non-nil.
type UpdateIncidentParams struct {
	Name      *string
	Component *string
	Severity  *string
	Public    *bool
	Event     *EventParams
}

type EventParams struct {
	Message string
	Status  string
}

type incidentRepository struct {
	db *sql.DB
}

func NewIncidentRepository(db *sql.DB) IncidentRepository {
	return &incidentRepository{db: db}
}

const incidentColumns = `id, COALESCE(name, ''), COALESCE(component, ''), COALESCE(severity, ''),
		COALESCE(public, TRUE), COALESCE(active, TRUE), user_id, created_at, updated_at`

func (r *incidentRepository) List(ctx context.Context, publicOnly bool) ([]models.Incident, error) {
	query := `
		SELECT ` + incidentColumns + `
		FROM incidents
		WHERE $1 = FALSE OR COALESCE(public, TRUE) = TRUE
		ORDER BY created_at DESC, id DESC`

	rows, err := r.db.QueryContext(ctx, query, publicOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var incidents []models.Incident
	for rows.Next() {
		incident, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		incidents = append(incidents, incident)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := r.attachEvents(ctx, incidents); err != nil {
		return nil, err
	}
	return incidents, nil
}

// ListStates returns every incident without events; enough for status aggregation.
func (r *incidentRepository) ListStates(ctx context.Context) ([]models.Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var incidents []models.Incident
	for rows.Next() {
		incident, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		incidents = append(incidents, incident)
	}
	return incidents, rows.Err()
}

func (r *incidentRepository) Get(ctx context.Context, id int64) (models.Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE id = $1`
	incident, err := scanIncident(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return models.Incident{}, err
	}

	incidents := []models.Incident{incident}
	if err := r.attachEvents(ctx, incidents); err != nil {
		return models.Incident{}, err
	}
	return incidents[0], nil
}

// Create inserts the incident and its initial event in one transaction.
func (r *incidentRepository) Create(ctx context.Context, params CreateIncidentParams) (models.Incident, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Incident{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var userID interface{}
	if params.UserID != nil {
		userID = *params.UserID
	}

	query := `
		INSERT INTO incidents (name, component, severity, public, active, user_id)
		VALUES ($1, $2, $3, $4, TRUE, $5)
		RETURNING ` + incidentColumns
	incident, err := scanIncident(tx.QueryRowContext(ctx, query,
		params.Name, params.Component, params.Severity, params.Public, userID))
	if err != nil {
		return models.Incident{}, fmt.Errorf("insert incident: %w", err)
	}

	event, err := insertEvent(ctx, tx, incident.ID, params.Event)
	if err != nil {
		return models.Incident{}, err
	}
	incident.Events = []models.Event{event}

	if err := tx.Commit(); err != nil {
		return models.Incident{}, fmt.Errorf("commit transaction: %w", err)
	}
	return incident, nil
}

// Update applies params and appends the optional event in one transaction.
// It returns sql.ErrNoRows when the incident does not exist.
func (r *incidentRepository) Update(ctx context.Context, id int64, params UpdateIncidentParams) (models.Incident, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Incident{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		UPDATE incidents
		SET name = COALESCE($2, name),
		    component = COALESCE($3, component),
		    severity = COALESCE($4, severity),
		    public = COALESCE($5, public),
		    updated_at = now()
		WHERE id = $1
		RETURNING ` + incidentColumns
	incident, err := scanIncident(tx.QueryRowContext(ctx, query,
		id, optString(params.Name), optString(params.Component), optString(params.Severity), optBool(params.Public)))
	if err != nil {
		return models.Incident{}, err
	}

	if params.Event != nil {
		if _, err := insertEvent(ctx, tx, incident.ID, *params.Event); err != nil {
			return models.Incident{}, err
		}
	}

	events, err := listEvents(ctx, tx, []int64{incident.ID})
	if err != nil {
		return models.Incident{}, err
	}
	incident.Events = events[incident.ID]

	if err := tx.Commit(); err != nil {
		return models.Incident{}, fmt.Errorf("commit transaction: %w", err)
	}
	return incident, nil
}

// Delete removes the incident and its events in one transaction.
// It returns sql.ErrNoRows when the incident does not exist.
func (r *incidentRepository) Delete(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM events WHERE incident_id = $1`, id); err != nil {
		return fmt.Errorf("delete events: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM incidents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete incident: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return sql.ErrNoRows
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Deactivate marks the incident inactive and reports whether it was active before.
func (r *incidentRepository) Deactivate(ctx context.Context, id int64) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var wasActive bool
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(active, TRUE) FROM incidents WHERE id = $1 FOR UPDATE`, id).Scan(&wasActive)
	if err != nil {
		return false, err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE incidents SET active = FALSE, updated_at = now() WHERE id = $1`, id); err != nil {
		return false, fmt.Errorf("deactivate incident: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit transaction: %w", err)
	}
	return wasActive, nil
}

func (r *incidentRepository) attachEvents(ctx context.Context, incidents []models.Incident) error {
	if len(incidents) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(incidents))
	for _, incident := range incidents {
		ids = append(ids, incident.ID)
	}

	events, err := listEvents(ctx, r.db, ids)
	if err != nil {
		return err
	}
	for i := range incidents {
		incidents[i].Events = events[incidents[i].ID]
	}
	return nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func listEvents(ctx context.Context, q queryer, incidentIDs []int64) (map[int64][]models.Event, error) {
	const query = `
		SELECT id, incident_id, COALESCE(message, ''), COALESCE(status, ''), created_at, updated_at
		FROM events
		WHERE incident_id = ANY($1)
		ORDER BY created_at ASC, id ASC`

	rows, err := q.QueryContext(ctx, query, pq.Array(incidentIDs))
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	events := make(map[int64][]models.Event, len(incidentIDs))
	for rows.Next() {
		var evt models.Event
		if err := rows.Scan(&evt.ID, &evt.IncidentID, &evt.Message, &evt.Status, &evt.CreatedAt, &evt.UpdatedAt); err != nil {
			return nil, err
		}
		events[evt.IncidentID] = append(events[evt.IncidentID], evt)
	}
	return events, rows.Err()
}

func insertEvent(ctx context.Context, q queryer, incidentID int64, params EventParams) (models.Event, error) {
	const query = `
		INSERT INTO events (message, status, incident_id)
		VALUES ($1, $2, $3)
		RETURNING id, incident_id, COALESCE(message, ''), COALESCE(status, ''), created_at, updated_at`

	var evt models.Event
	err := q.QueryRowContext(ctx, query, params.Message, params.Status, incidentID).
		Scan(&evt.ID, &evt.IncidentID, &evt.Message, &evt.Status, &evt.CreatedAt, &evt.UpdatedAt)
	if err != nil {
		return models.Event{}, fmt.Errorf("insert event: %w", err)
	}
	return evt, nil
}

func scanIncident(scanner rowScanner) (models.Incident, error) {
	var (
		incident models.Incident
		userID   sql.NullInt64
	)
	if err := scanner.Scan(
		&incident.ID,
		&incident.Name,
		&incident.Component,
		&incident.Severity,
		&incident.Public,
		&incident.Active,
		&userID,
		&incident.CreatedAt,
		&incident.UpdatedAt,
	); err != nil {
		return models.Incident{}, err
	}
	incident.UserID = nullInt64(userID)
	return incident, nil
}

func optString(v *string) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func optBool(v *bool) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
