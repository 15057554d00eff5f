package moderation

import (
	"context"
	"testing"

	"model-review-api/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubEntity struct {
	id     uuid.UUID
	owner  *uuid.UUID
	fields model.ReviewFields
}

func (s *stubEntity) ObjectID() uuid.UUID        { return s.id }
func (s *stubEntity) Review() *model.ReviewFields { return &s.fields }
func (s *stubEntity) OwnerID() *uuid.UUID        { return s.owner }

func validConfig(tag string) *TypeConfig {
	return &TypeConfig{
		Tag:             tag,
		MonitoredFields: []string{"name"},
		Load: func(ctx context.Context, id uuid.UUID) (Approvable, error) {
			return &stubEntity{id: id}, nil
		},
		Save:   func(ctx context.Context, obj Approvable) error { return nil },
		Fields: func(obj Approvable) map[string]interface{} { return nil },
		ApplyFields: func(obj Approvable, values map[string]interface{}) error {
			return nil
		},
	}
}

func TestRegisterValidatesConfig(t *testing.T) {
	r := NewRegistry()

	require.Error(t, r.Register(nil))
	require.Error(t, r.Register(&TypeConfig{}))

	cfg := validConfig("doc")
	cfg.MonitoredFields = nil
	assert.ErrorContains(t, r.Register(cfg), "no monitored fields")

	cfg = validConfig("doc")
	cfg.Load = nil
	assert.ErrorContains(t, r.Register(cfg), "Load and Save")

	cfg = validConfig("doc")
	cfg.ApplyFields = nil
	assert.ErrorContains(t, r.Register(cfg), "Fields and ApplyFields")

	require.NoError(t, r.Register(validConfig("doc")))
	assert.ErrorContains(t, r.Register(validConfig("doc")), "already registered")
}

func TestGetAndTags(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(validConfig("doc")))
	require.NoError(t, r.Register(validConfig("invoice")))

	cfg, ok := r.Get("doc")
	assert.True(t, ok)
	assert.Equal(t, "doc", cfg.Tag)

	_, ok = r.Get("missing")
	assert.False(t, ok)

	assert.ElementsMatch(t, []string{"doc", "invoice"}, r.Tags())
}

func TestDeriveUserPrefersHook(t *testing.T) {
	owner := uuid.New()
	hooked := uuid.New()
	entity := &stubEntity{id: uuid.New(), owner: &owner}

	cfg := validConfig("doc")
	got, err := cfg.DeriveUser(context.Background(), entity)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, owner, *got)

	cfg.SetUser = func(ctx context.Context, obj Approvable) (*uuid.UUID, error) {
		return &hooked, nil
	}
	got, err = cfg.DeriveUser(context.Background(), entity)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, hooked, *got)
}
