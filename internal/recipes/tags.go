package recipes

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/recipebox/internal/store"
	"github.com/kiranshivaraju/recipebox/pkg/models"
)

var (
	ErrTagNameRequired = errors.New("name is required")
	ErrDuplicateTag    = errors.New("tag name must be unique")
)

type Tags struct {
	store store.TagStore
}

func NewTags(st store.TagStore) *Tags {
	return &Tags{store: st}
}

func (t *Tags) List(ctx context.Context) ([]*models.Tag, error) {
	return t.store.ListTags(ctx)
}

func (t *Tags) Get(ctx context.Context, id uuid.UUID) (*models.Tag, error) {
	return t.store.GetTag(ctx, id)
}

func (t *Tags) Create(ctx context.Context, name string) (*models.Tag, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrTagNameRequired
	}
	tag := &models.Tag{ID: uuid.New(), Name: name, CreatedAt: time.Now().UTC()}
	if err := t.store.CreateTag(ctx, tag); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			return nil, ErrDuplicateTag
		}
		return nil, err
	}
	return tag, nil
}

func (t *Tags) Rename(ctx context.Context, id uuid.UUID, name string) (*models.Tag, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrTagNameRequired
	}
	tag, err := t.store.UpdateTag(ctx, id, name)
	if errors.Is(err, store.ErrDuplicateKey) {
		return nil, ErrDuplicateTag
	}
	return tag, err
}

func (t *Tags) Delete(ctx context.Context, id uuid.UUID) error {
	return t.store.DeleteTag(ctx, id)
}
