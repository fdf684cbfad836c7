package models

import "time"

type Incident struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Component string    `json:"component"`
	Severity  string    `json:"severity"`
	Public    bool      `json:"public"`
	Active    bool      `json:"active"`
	UserID    *int64    `json:"user_id,omitempty"`
	Events    []Event   `json:"events"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LatestEvent returns the most recently created event, if any.
func (i Incident) LatestEvent() (Event, bool) {
	if len(i.Events) == 0 {
		return Event{}, false
	}
	latest := i.Events[0]
	for _, evt := range i.Events[1:] {
		if evt.CreatedAt.After(latest.CreatedAt) {
			latest = evt
		}
	}
	return latest, true
}

// VisibleTo reports whether the incident may be displayed to a visitor.
// Signed-in users see every incident; the public only sees public ones.
func (i Incident) VisibleTo(signedIn bool) bool {
	return signedIn || i.Public
}

type Event struct {
	ID         int64     `json:"id"`
	IncidentID int64     `json:"incident_id"`
	Message    string    `json:"message"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
