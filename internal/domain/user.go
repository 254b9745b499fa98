package domain

import "time"

// User is a bot participant, keyed by the external (Telegram) identity.
type User struct {
	UserID    int64     `json:"user_id"`
	Username  *string   `json:"username,omitempty"`
	FirstName *string   `json:"first_name,omitempty"`
	LastName  *string   `json:"last_name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// RegisterUserParams is the input to the get-or-create registration.
type RegisterUserParams struct {
	UserID    int64   `json:"user_id"`
	Username  *string `json:"username,omitempty"`
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
}
