package models

import (
	"time"

	"github.com/google/uuid"
)

// User is an account created on first Google sign-in. New accounts start
// disabled and wait for an administrator to enable them.
type User struct {
	ID           uuid.UUID `db:"id"            json:"id"`
	Email        string    `db:"email"         json:"email"`
	Name         string    `db:"name"          json:"name"`
	Picture      *string   `db:"picture"       json:"picture"`
	Alias        *string   `db:"alias"         json:"alias"`
	OIDCProvider string    `db:"oidc_provider" json:"oidcProvider"`
	OIDCSubject  string    `db:"oidc_sub"      json:"-"`
	IsEnabled    bool      `db:"is_enabled"    json:"isEnabled"`
	CreatedAt    time.Time `db:"created_at"    json:"createdAt"`
	UpdatedAt    time.Time `db:"updated_at"    json:"updatedAt"`
}
