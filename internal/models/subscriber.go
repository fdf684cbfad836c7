package models

import "time"

type Subscriber struct {
	ID            int64     `json:"id"`
	Email         string    `json:"email"`
	Activated     bool      `json:"activated"`
	ActivationKey *string   `json:"-"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
