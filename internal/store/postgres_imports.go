package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kiranshivaraju/recipebox/pkg/models"
)

const importJobColumns = `id, user_id, url, status, result, error, created_at, updated_at`

func scanImportJob(row pgx.Row) (*models.ImportJob, error) {
	var j models.ImportJob
	if err := row.Scan(&j.ID, &j.UserID, &j.URL, &j.Status, &j.Result, &j.Error,
		&j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, err
	}
	return &j, nil
}

// --- Import Jobs ---

func (s *PostgresStore) CreateImportJob(ctx context.Context, job *models.ImportJob) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO import_jobs (id, user_id, url, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		job.ID, job.UserID, job.URL, job.Status, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create import job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetImportJob(ctx context.Context, id uuid.UUID) (*models.ImportJob, error) {
	j, err := scanImportJob(s.pool.QueryRow(ctx,
		`SELECT `+importJobColumns+` FROM import_jobs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get import job: %w", err)
	}
	return j, nil
}

// ListImportJobsByUser returns the user's jobs, newest first.
func (s *PostgresStore) ListImportJobsByUser(ctx context.Context, userID uuid.UUID) ([]*models.ImportJob, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+importJobColumns+` FROM import_jobs WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list import jobs: %w", err)
	}
	defer rows.Close()

	jobs := []*models.ImportJob{}
	for rows.Next() {
		j, err := scanImportJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan import job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

var validTransitions = map[string][]string{
	models.ImportStatusPending:    {models.ImportStatusProcessing},
	models.ImportStatusProcessing: {models.ImportStatusCompleted, models.ImportStatusFailed},
}

// allowedFrom lists the statuses a job may be in to move to status.
func allowedFrom(status string) []string {
	var from []string
	for current, next := range validTransitions {
		for _, n := range next {
			if n == status {
				from = append(from, current)
			}
		}
	}
	return from
}

// UpdateImportJobStatus moves a job to status. The transition check and the
// write are one conditional UPDATE, so two callers racing to claim the same
// pending job cannot both succeed; the loser gets ErrInvalidTransition.
// A job deleted in the meantime yields ErrNotFound and is never recreated.
func (s *PostgresStore) UpdateImportJobStatus(ctx context.Context, id uuid.UUID, status string, opts ...ImportJobUpdateOption) error {
	params := &importJobUpdateParams{}
	for _, opt := range opts {
		opt(params)
	}

	from := allowedFrom(status)
	if len(from) == 0 {
		return fmt.Errorf("%w: unknown target status %q", ErrInvalidTransition, status)
	}
	if params.Result != nil && status != models.ImportStatusCompleted {
		return fmt.Errorf("%w: result only allowed on completed", ErrInvalidTransition)
	}
	if params.ErrorMessage != nil && status != models.ImportStatusFailed {
		return fmt.Errorf("%w: error only allowed on failed", ErrInvalidTransition)
	}

	query := `UPDATE import_jobs SET status = $2, updated_at = $3`
	args := []any{id, status, time.Now().UTC(), from}
	argIdx := 5

	if params.Result != nil {
		query += fmt.Sprintf(", result = $%d", argIdx)
		args = append(args, params.Result)
		argIdx++
	}
	if params.ErrorMessage != nil {
		query += fmt.Sprintf(", error = $%d", argIdx)
		args = append(args, *params.ErrorMessage)
		argIdx++
	}

	query += " WHERE id = $1 AND status = ANY($4)"

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update import job status: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var current string
	err = s.pool.QueryRow(ctx, `SELECT status FROM import_jobs WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get import job status: %w", err)
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, status)
}

func (s *PostgresStore) DeleteImportJob(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM import_jobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete import job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteImportJobsCreatedBefore removes every job created strictly before cutoff,
// whatever its status, and reports how many rows went.
func (s *PostgresStore) DeleteImportJobsCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM import_jobs WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old import jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}
