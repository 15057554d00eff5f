package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"model-review-api/internal/model"
	"model-review-api/internal/moderation"
	"model-review-api/internal/repository"

	"gorm.io/gorm"
)

// DiffBaseline selects what an incoming write is compared against when
// deciding whether monitored fields changed. Upstream behavior here is
// ambiguous across versions, so the choice is explicit configuration.
type DiffBaseline int

const (
	// DiffBaselineSandbox compares against the last captured sandbox
	// snapshot, falling back to the database row for fields never sandboxed.
	// Repeated identical edits on top of an already-sandboxed value are not
	// treated as new changes.
	DiffBaselineSandbox DiffBaseline = iota
	// DiffBaselineDatabase compares against the live database row only; any
	// departure from the persisted state counts as a change.
	DiffBaselineDatabase
)

// InterceptService wraps every persistence of an approvable object. Writes
// to monitored fields on a pending object are diverted into the review
// sandbox and the live row keeps its last approved state.
type InterceptService interface {
	// Create persists a new approvable object and opens its review, seeding
	// the sandbox with the object's current monitored values.
	Create(ctx context.Context, tag string, obj moderation.Approvable) (*model.ModelReview, error)
	// Update persists changes to an existing approvable object, sandboxing
	// monitored-field changes while the review is pending.
	Update(ctx context.Context, tag string, obj moderation.Approvable) (*model.ModelReview, error)
}

type interceptService struct {
	registry *moderation.Registry
	reviews  repository.ReviewRepository
	audits   repository.AuditRepository
	txm      repository.TransactionManager
	pipeline ReviewService
	baseline DiffBaseline
}

func NewInterceptService(
	registry *moderation.Registry,
	reviews repository.ReviewRepository,
	audits repository.AuditRepository,
	txm repository.TransactionManager,
	pipeline ReviewService,
	baseline DiffBaseline,
) InterceptService {
	return &interceptService{
		registry: registry,
		reviews:  reviews,
		audits:   audits,
		txm:      txm,
		pipeline: pipeline,
		baseline: baseline,
	}
}

func (s *interceptService) Create(ctx context.Context, tag string, obj moderation.Approvable) (*model.ModelReview, error) {
	cfg, ok := s.registry.Get(tag)
	if !ok {
		return nil, fmt.Errorf("unregistered content type: %s", tag)
	}

	var review *model.ModelReview
	err := s.txm.RunInTx(ctx, func(txCtx context.Context) error {
		if err := cfg.Save(txCtx, obj); err != nil {
			return fmt.Errorf("failed to create %s: %w", tag, err)
		}

		review = &model.ModelReview{
			ContentType: tag,
			ObjectID:    obj.ObjectID(),
		}
		if err := review.MergeSandbox(cfg.Fields(obj)); err != nil {
			return fmt.Errorf("failed to seed sandbox: %w", err)
		}
		if err := s.pipeline.SaveReview(txCtx, review); err != nil {
			return err
		}

		s.auditIntercept(txCtx, review, model.ActionCreateReview, nil)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return review, nil
}

func (s *interceptService) Update(ctx context.Context, tag string, obj moderation.Approvable) (*model.ModelReview, error) {
	cfg, ok := s.registry.Get(tag)
	if !ok {
		return nil, fmt.Errorf("unregistered content type: %s", tag)
	}

	var review *model.ModelReview
	err := s.txm.RunInTx(ctx, func(txCtx context.Context) error {
		stored, err := cfg.Load(txCtx, obj.ObjectID())
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				// target vanished under a concurrent delete: skip sandboxing,
				// let the write proceed as-is
				return cfg.Save(txCtx, obj)
			}
			return fmt.Errorf("failed to load %s: %w", tag, err)
		}

		review, err = s.reviewForObject(txCtx, cfg, obj)
		if err != nil {
			return err
		}

		diff, err := s.monitoredDiff(cfg, review, obj, stored)
		if err != nil {
			return err
		}

		if review.NeedsReview() {
			if len(diff) > 0 {
				if err := review.MergeSandbox(diff); err != nil {
					return fmt.Errorf("failed to update sandbox: %w", err)
				}
				if err := s.pipeline.SaveReview(txCtx, review); err != nil {
					return err
				}
				s.auditIntercept(txCtx, review, model.ActionSandboxChanges, diff)
			}
			// the commit below must not carry unreviewed monitored values,
			// whether or not this write captured anything new
			if !revert(cfg, obj, stored) {
				return fmt.Errorf("failed to revert %s %s to persisted state", tag, obj.ObjectID())
			}
		}

		return cfg.Save(txCtx, obj)
	})
	if err != nil {
		return nil, err
	}
	return review, nil
}

// reviewForObject fetches the object's review, lazily creating one for rows
// that predate their type's enrollment in moderation.
func (s *interceptService) reviewForObject(ctx context.Context, cfg *moderation.TypeConfig, obj moderation.Approvable) (*model.ModelReview, error) {
	review, err := s.reviews.FindByObject(ctx, cfg.Tag, obj.ObjectID())
	if err == nil {
		return review, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to load review: %w", err)
	}

	review = &model.ModelReview{
		ContentType: cfg.Tag,
		ObjectID:    obj.ObjectID(),
	}
	if err := s.pipeline.SaveReview(ctx, review); err != nil {
		return nil, err
	}
	return review, nil
}

// monitoredDiff returns the monitored fields the caller is trying to change,
// keyed by name with the incoming values.
func (s *interceptService) monitoredDiff(cfg *moderation.TypeConfig, review *model.ModelReview, obj moderation.Approvable, stored moderation.Approvable) (map[string]interface{}, error) {
	baseline := cfg.Fields(stored)
	if s.baseline == DiffBaselineSandbox {
		sandbox, err := review.SandboxValues()
		if err != nil {
			return nil, fmt.Errorf("failed to decode sandbox: %w", err)
		}
		for field, value := range sandbox {
			baseline[field] = value
		}
	}

	incoming := cfg.Fields(obj)
	diff := map[string]interface{}{}
	for _, field := range cfg.MonitoredFields {
		if !jsonEqual(incoming[field], baseline[field]) {
			diff[field] = incoming[field]
		}
	}
	return diff, nil
}

// revert restores the object's monitored fields from the last persisted row.
// Reports false when that row is gone, an expected race under concurrent
// deletion.
func revert(cfg *moderation.TypeConfig, obj moderation.Approvable, stored moderation.Approvable) bool {
	if stored == nil {
		return false
	}
	if err := cfg.ApplyFields(obj, cfg.Fields(stored)); err != nil {
		return false
	}
	return true
}

// jsonEqual compares two values through their JSON encoding, which is also
// how sandboxed values round-trip through the JSONB column.
func jsonEqual(a, b interface{}) bool {
	rawA, errA := json.Marshal(a)
	rawB, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(rawA, rawB)
}

func (s *interceptService) auditIntercept(ctx context.Context, review *model.ModelReview, action string, details map[string]interface{}) {
	payload := map[string]interface{}{
		"content_type": review.ContentType,
		"object_id":    review.ObjectID.String(),
	}
	if len(details) > 0 {
		fields := make([]string, 0, len(details))
		for field := range details {
			fields = append(fields, field)
		}
		payload["fields"] = fields
	}
	raw, _ := json.Marshal(payload)
	_ = s.audits.Log(ctx, &model.AuditLog{
		UserID:     review.UserID,
		Action:     action,
		EntityID:   review.ID.String(),
		EntityName: review.ContentType,
		Details:    string(raw),
	})
}
