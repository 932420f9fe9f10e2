// Package accounts manages user profiles, admin approval, and personal API
// keys.
package accounts

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/recipebox/internal/auth"
	"github.com/kiranshivaraju/recipebox/internal/store"
	"github.com/kiranshivaraju/recipebox/pkg/models"
)

var (
	ErrAliasRequired = errors.New("alias required")
	ErrAliasInvalid  = errors.New("alias may only contain letters, digits, '-' and '_'")
	ErrAliasTaken    = errors.New("alias already taken")
	ErrNameRequired  = errors.New("name is required")
)

var aliasPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{2,40}$`)

type Store interface {
	store.UsersStore
	store.APIKeyStore
}

type Service struct {
	store      Store
	adminEmail string
}

func NewService(st Store, adminEmail string) *Service {
	return &Service{store: st, adminEmail: adminEmail}
}

// IsAdmin reports whether u is the configured admin.
func (s *Service) IsAdmin(u *models.User) bool {
	return u != nil && auth.IsAdmin(u.Email, s.adminEmail)
}

// CanUse reports whether u may use gated features: enabled users and the
// admin.
func (s *Service) CanUse(u *models.User) bool {
	return u != nil && (u.IsEnabled || s.IsAdmin(u))
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return s.store.GetUser(ctx, id)
}

// SetAlias claims a public alias for the user. Re-claiming one's own alias
// is a no-op.
func (s *Service) SetAlias(ctx context.Context, userID uuid.UUID, alias string) error {
	alias = strings.TrimSpace(alias)
	if alias == "" {
		return ErrAliasRequired
	}
	if !aliasPattern.MatchString(alias) {
		return ErrAliasInvalid
	}
	existing, err := s.store.GetUserByAlias(ctx, alias)
	switch {
	case err == nil && existing.ID != userID:
		return ErrAliasTaken
	case err != nil && !errors.Is(err, store.ErrNotFound):
		return err
	}
	if err := s.store.SetUserAlias(ctx, userID, alias); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			return ErrAliasTaken
		}
		return err
	}
	return nil
}

func (s *Service) ListUsers(ctx context.Context, pendingOnly bool) ([]*models.User, error) {
	return s.store.ListUsers(ctx, pendingOnly)
}

func (s *Service) SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	return s.store.SetUserEnabled(ctx, id, enabled)
}

// CreatedKey is a newly minted key. Raw is only ever returned here.
type CreatedKey struct {
	*models.APIKey
	Raw string `json:"key"`
}

func (s *Service) CreateAPIKey(ctx context.Context, userID uuid.UUID, name string) (*CreatedKey, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrNameRequired
	}
	raw, prefix, hash, err := auth.GenerateAPIKey()
	if err != nil {
		return nil, err
	}
	key := &models.APIKey{
		ID:        uuid.New(),
		UserID:    userID,
		Name:      name,
		KeyHash:   hash,
		KeyPrefix: prefix,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateAPIKey(ctx, key); err != nil {
		return nil, err
	}
	return &CreatedKey{APIKey: key, Raw: raw}, nil
}

func (s *Service) ListAPIKeys(ctx context.Context, userID uuid.UUID) ([]*models.APIKey, error) {
	return s.store.ListAPIKeys(ctx, userID)
}

func (s *Service) RevokeAPIKey(ctx context.Context, id, userID uuid.UUID) error {
	return s.store.RevokeAPIKey(ctx, id, userID)
}

// ResolveAPIKey returns the owner of a raw key, or store.ErrNotFound.
func (s *Service) ResolveAPIKey(ctx context.Context, raw string) (*models.User, error) {
	if len(raw) < auth.KeyPrefixLen {
		return nil, store.ErrNotFound
	}
	keys, err := s.store.GetAPIKeyByPrefix(ctx, raw[:auth.KeyPrefixLen])
	if err != nil {
		return nil, err
	}
	for _, k := range keys {
		if auth.VerifyAPIKey(k.KeyHash, raw) {
			go s.store.UpdateAPIKeyLastUsed(context.Background(), k.ID)
			return s.store.GetUser(ctx, k.UserID)
		}
	}
	return nil, store.ErrNotFound
}
