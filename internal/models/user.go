package models

import "time"

type User struct {
	ID                int64      `json:"id"`
	Email             string     `json:"email"`
	EncryptedPassword string     `json:"-"`
	Admin             bool       `json:"admin"`
	SignInCount       int        `json:"sign_in_count"`
	CurrentSignInAt   *time.Time `json:"current_sign_in_at,omitempty"`
	LastSignInAt      *time.Time `json:"last_sign_in_at,omitempty"`
	CurrentSignInIP   *string    `json:"current_sign_in_ip,omitempty"`
	LastSignInIP      *string    `json:"last_sign_in_ip,omitempty"`
	APIToken          *string    `json:"-"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}
