package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	ImportStatusPending    = "pending"
	ImportStatusProcessing = "processing"
	ImportStatusCompleted  = "completed"
	ImportStatusFailed     = "failed"
)

// ImportJob tracks one asynchronous recipe extraction from a URL. The API returns
// the job id immediately; clients poll GET /api/imports/status/{jobId} until the
// status is completed or failed.
//
// Result is set only when Status is completed; Error only when Status is failed.
type ImportJob struct {
	ID        uuid.UUID       `db:"id"         json:"id"`
	UserID    uuid.UUID       `db:"user_id"    json:"userId"`
	URL       string          `db:"url"        json:"url"`
	Status    string          `db:"status"     json:"status"`
	Result    *ImportedRecipe `db:"result"     json:"result"`
	Error     *string         `db:"error"      json:"error"`
	CreatedAt time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time       `db:"updated_at" json:"updatedAt"`
}

// IsTerminal reports whether the job can no longer change state.
func (j *ImportJob) IsTerminal() bool {
	return j.Status == ImportStatusCompleted || j.Status == ImportStatusFailed
}
