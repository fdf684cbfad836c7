package models

import "time"

// DelayedJob is a row of the delayed_jobs table. Handler holds the JSON
// payload describing the work to perform.
type DelayedJob struct {
	ID        int64      `json:"id"`
	Priority  int        `json:"priority"`
	Attempts  int        `json:"attempts"`
	Handler   string     `json:"handler"`
	LastError *string    `json:"last_error,omitempty"`
	RunAt     *time.Time `json:"run_at,omitempty"`
	LockedAt  *time.Time `json:"locked_at,omitempty"`
	FailedAt  *time.Time `json:"failed_at,omitempty"`
	LockedBy  *string    `json:"locked_by,omitempty"`
	Queue     *string    `json:"queue,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

type JobKind string

const (
	JobKindIncidentNotice       JobKind = "incident_notice"
	JobKindSubscriberActivation JobKind = "subscriber_activation"
)

type NoticeType string

const (
	NoticeOpened   NoticeType = "opened"
	NoticeUpdated  NoticeType = "updated"
	NoticeResolved NoticeType = "resolved"
)

// JobPayload is the serialized form stored in DelayedJob.Handler.
type JobPayload struct {
	Kind         JobKind    `json:"kind"`
	IncidentID   int64      `json:"incident_id,omitempty"`
	Notice       NoticeType `json:"notice,omitempty"`
	SubscriberID int64      `json:"subscriber_id,omitempty"`
}
