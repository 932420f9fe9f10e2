package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/recipebox/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Users ---

const userColumns = `id, email, name, picture, alias, oidc_provider, oidc_sub, is_enabled, created_at, updated_at`

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Picture, &u.Alias, &u.OIDCProvider, &u.OIDCSubject,
		&u.IsEnabled, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// UpsertOIDCUser returns the user with the given email, creating it on first sign-in.
// Existing users keep their enabled flag and alias.
func (s *PostgresStore) UpsertOIDCUser(ctx context.Context, user *models.User) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(user.Email))
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	now := time.Now().UTC()

	u, err := scanUser(s.pool.QueryRow(ctx,
		`INSERT INTO users (id, email, name, picture, oidc_provider, oidc_sub, is_enabled, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		 ON CONFLICT (email) DO UPDATE SET
		   oidc_sub = COALESCE(NULLIF(users.oidc_sub, ''), EXCLUDED.oidc_sub),
		   picture = COALESCE(users.picture, EXCLUDED.picture),
		   updated_at = users.updated_at
		 RETURNING `+userColumns,
		user.ID, email, user.Name, user.Picture, user.OIDCProvider, user.OIDCSubject, user.IsEnabled, now))
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) GetUserByAlias(ctx context.Context, alias string) (*models.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE alias = $1`, alias))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user by alias: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) SetUserAlias(ctx context.Context, id uuid.UUID, alias string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET alias = $2, updated_at = NOW() WHERE id = $1`, id, alias)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("set user alias: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) SetUserEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET is_enabled = $2, updated_at = NOW() WHERE id = $1`, id, enabled)
	if err != nil {
		return fmt.Errorf("set user enabled: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListUsers(ctx context.Context, pendingOnly bool) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users`
	if pendingOnly {
		query += ` WHERE is_enabled = FALSE`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := []*models.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// --- API Keys ---

const apiKeyColumns = `id, user_id, name, key_hash, key_prefix, last_used_at, revoked_at, created_at`

func (s *PostgresStore) queryAPIKeys(ctx context.Context, query string, args ...any) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := []*models.APIKey{}
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.UserID, &k.Name, &k.KeyHash, &k.KeyPrefix,
			&k.LastUsedAt, &k.RevokedAt, &k.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	keys, err := s.queryAPIKeys(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE key_prefix = $1 AND revoked_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	return keys, nil
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `UPDATE api_keys SET last_used_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, user_id, name, key_hash, key_prefix, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		key.ID, key.UserID, key.Name, key.KeyHash, key.KeyPrefix, key.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAPIKeys(ctx context.Context, userID uuid.UUID) ([]*models.APIKey, error) {
	keys, err := s.queryAPIKeys(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE user_id = $1 AND revoked_at IS NULL ORDER BY created_at DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	return keys, nil
}

func (s *PostgresStore) RevokeAPIKey(ctx context.Context, id uuid.UUID, userID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET revoked_at = NOW()
		 WHERE id = $1 AND user_id = $2 AND revoked_at IS NULL`, id, userID)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Tags ---

func (s *PostgresStore) ListTags(ctx context.Context) ([]*models.Tag, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, created_at FROM tags ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()

	tags := []*models.Tag{}
	for rows.Next() {
		var t models.Tag
		if err := rows.Scan(&t.ID, &t.Name, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags = append(tags, &t)
	}
	return tags, rows.Err()
}

func (s *PostgresStore) GetTag(ctx context.Context, id uuid.UUID) (*models.Tag, error) {
	var t models.Tag
	err := s.pool.QueryRow(ctx, `SELECT id, name, created_at FROM tags WHERE id = $1`, id).
		Scan(&t.ID, &t.Name, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get tag: %w", err)
	}
	return &t, nil
}

func (s *PostgresStore) CreateTag(ctx context.Context, tag *models.Tag) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO tags (id, name, created_at) VALUES ($1, $2, $3)`, tag.ID, tag.Name, tag.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create tag: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateTag(ctx context.Context, id uuid.UUID, name string) (*models.Tag, error) {
	var t models.Tag
	err := s.pool.QueryRow(ctx,
		`UPDATE tags SET name = $2 WHERE id = $1 RETURNING id, name, created_at`, id, name).
		Scan(&t.ID, &t.Name, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		if isDuplicateKeyError(err) {
			return nil, ErrDuplicateKey
		}
		return nil, fmt.Errorf("update tag: %w", err)
	}
	return &t, nil
}

func (s *PostgresStore) DeleteTag(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM tags WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete tag: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
