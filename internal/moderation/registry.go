// Package moderation holds the approvable-type registry: the table that maps
// a stable content-type tag to typed accessors and hook functions for one
// domain model enrolled in moderation. Hooks are plain function values bound
// at wiring time; a nil hook means the hook is disabled, never an error.
package moderation

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"model-review-api/internal/model"
)

// Approvable is implemented by every domain entity that opts into
// moderation.
type Approvable interface {
	ObjectID() uuid.UUID
	Review() *model.ReviewFields
}

// Owned is optionally implemented by approvable entities that know their
// submitter. It is the default strategy for deriving the review's user when
// no SetUser hook is configured.
type Owned interface {
	OwnerID() *uuid.UUID
}

// ReviewerSpec names one reviewer to assign at a given level.
type ReviewerSpec struct {
	UserID uuid.UUID
	Level  int
}

// SideEffectFunc runs exactly once when a review leaves PENDING, inside the
// resolving transaction. An error aborts that transaction.
type SideEffectFunc func(ctx context.Context, review *model.ModelReview, obj Approvable) error

// SetReviewersFunc returns the reviewers to assign whenever the review is
// saved. Assignments are deduplicated against existing ones.
type SetReviewersFunc func(ctx context.Context, review *model.ModelReview, obj Approvable) ([]ReviewerSpec, error)

// SetUserFunc derives the submitting user for a review that has none.
type SetUserFunc func(ctx context.Context, obj Approvable) (*uuid.UUID, error)

// NextReviewersFunc materializes the next tier of reviewers when every
// assignment below the maximum level has acted but the maximum level has
// not. currentMax is the highest level currently assigned.
type NextReviewersFunc func(ctx context.Context, review *model.ModelReview, obj Approvable, currentMax int) ([]ReviewerSpec, error)

// NotifyFunc overrides the default email dispatch for one notification kind.
type NotifyFunc func(ctx context.Context, review *model.ModelReview, recipients []model.User) error

// TypeConfig describes one registered approvable type.
type TypeConfig struct {
	// Tag is the stable content-type string stored on ModelReview rows.
	Tag string
	// MonitoredFields are the field names whose changes are gated by review.
	MonitoredFields []string

	// Load fetches the live row; it must surface gorm.ErrRecordNotFound
	// unwrapped so callers can treat a vanished object as a no-op.
	Load func(ctx context.Context, id uuid.UUID) (Approvable, error)
	// Save persists the entity (insert when the ID is zero).
	Save func(ctx context.Context, obj Approvable) error
	// Fields extracts the current monitored-field values.
	Fields func(obj Approvable) map[string]interface{}
	// ApplyFields writes monitored-field values back onto the entity.
	ApplyFields func(obj Approvable, values map[string]interface{}) error

	SideEffect    SideEffectFunc
	SetReviewers  SetReviewersFunc
	SetUser       SetUserFunc
	NextReviewers NextReviewersFunc

	RequestNotifier  NotifyFunc
	CompleteNotifier NotifyFunc

	// UnanimousSingleTier requires every same-level reviewer to act before a
	// single-tier review resolves. The default lets the latest decision by
	// any one assigned reviewer finalize the review.
	UnanimousSingleTier bool

	// Optional overrides for the default notification email content.
	RequestSubject  string
	RequestBody     string
	CompleteSubject string
	CompleteBody    string
}

// Registry is the set of registered approvable types, keyed by tag.
type Registry struct {
	mu    sync.RWMutex
	types map[string]*TypeConfig
}

func NewRegistry() *Registry {
	return &Registry{types: make(map[string]*TypeConfig)}
}

// Register validates cfg and adds it to the registry. Configuration errors
// surface here, at wiring time, not on the first intercepted write.
func (r *Registry) Register(cfg *TypeConfig) error {
	if cfg == nil || cfg.Tag == "" {
		return fmt.Errorf("moderation: type tag is required")
	}
	if len(cfg.MonitoredFields) == 0 {
		return fmt.Errorf("moderation: type %q has no monitored fields", cfg.Tag)
	}
	if cfg.Load == nil || cfg.Save == nil {
		return fmt.Errorf("moderation: type %q needs Load and Save accessors", cfg.Tag)
	}
	if cfg.Fields == nil || cfg.ApplyFields == nil {
		return fmt.Errorf("moderation: type %q needs Fields and ApplyFields accessors", cfg.Tag)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.types[cfg.Tag]; exists {
		return fmt.Errorf("moderation: type %q already registered", cfg.Tag)
	}
	r.types[cfg.Tag] = cfg
	return nil
}

// Get returns the config for tag.
func (r *Registry) Get(tag string) (*TypeConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.types[tag]
	return cfg, ok
}

// Tags lists every registered type tag.
func (r *Registry) Tags() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tags := make([]string, 0, len(r.types))
	for tag := range r.types {
		tags = append(tags, tag)
	}
	return tags
}

// DeriveUser resolves the submitter for a review: the SetUser hook when
// configured, otherwise the entity's own OwnerID.
func (c *TypeConfig) DeriveUser(ctx context.Context, obj Approvable) (*uuid.UUID, error) {
	if c.SetUser != nil {
		return c.SetUser(ctx, obj)
	}
	if owned, ok := obj.(Owned); ok {
		return owned.OwnerID(), nil
	}
	return nil, nil
}
