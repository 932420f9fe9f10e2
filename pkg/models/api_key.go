package models

import (
	"time"

	"github.com/google/uuid"
)

// APIKey is a personal bearer key for scripted access to the API.
// Raw keys are shown once at creation; only the bcrypt hash is stored.
type APIKey struct {
	ID         uuid.UUID  `db:"id"           json:"id"`
	UserID     uuid.UUID  `db:"user_id"      json:"userId"`
	Name       string     `db:"name"         json:"name"`
	KeyHash    string     `db:"key_hash"     json:"-"`
	KeyPrefix  string     `db:"key_prefix"   json:"keyPrefix"`
	LastUsedAt *time.Time `db:"last_used_at" json:"lastUsedAt,omitempty"`
	RevokedAt  *time.Time `db:"revoked_at"   json:"-"`
	CreatedAt  time.Time  `db:"created_at"   json:"createdAt"`
}
