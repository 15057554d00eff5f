package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"model-review-api/internal/model"
	"model-review-api/internal/moderation"
	"model-review-api/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// --- DTOs ---

type SubmitDecisionInput struct {
	ReviewID   uuid.UUID `json:"review_id" binding:"required"`
	ReviewerID uuid.UUID `json:"reviewer_id" binding:"required"`
	Decision   string    `json:"decision" binding:"required"`
	Reason     string    `json:"reason"`
	Comments   string    `json:"comments"`

	// ActingUser comes from the auth token, never the request body.
	ActingUser uuid.UUID `json:"-"`
}

type ReviewerResponse struct {
	ID         string  `json:"id"`
	UserID     string  `json:"user_id"`
	Username   string  `json:"username,omitempty"`
	Level      int     `json:"level"`
	Reviewed   bool    `json:"reviewed"`
	ReviewDate *string `json:"review_date"`
	Decision   string  `json:"decision"`
}

type ReviewResponse struct {
	ID             string                 `json:"id"`
	ContentType    string                 `json:"content_type"`
	ObjectID       string                 `json:"object_id"`
	Status         string                 `json:"status"`
	ReviewDate     *string                `json:"review_date"`
	ReviewReason   string                 `json:"review_reason,omitempty"`
	ReviewComments string                 `json:"review_comments,omitempty"`
	UserID         *string                `json:"user_id"`
	Username       string                 `json:"username,omitempty"`
	Sandbox        map[string]interface{} `json:"sandbox"`
	Reviewers      []ReviewerResponse     `json:"reviewers,omitempty"`
	CreatedAt      string                 `json:"created_at"`
}

// BatchItemResult reports the outcome for one entry of a bulk submission.
type BatchItemResult struct {
	ReviewID   string            `json:"review_id"`
	ReviewerID string            `json:"reviewer_id"`
	OK         bool              `json:"ok"`
	Errors     map[string]string `json:"errors,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// ReviewNotifier dispatches review lifecycle notices. Implementations must
// never fail the caller: delivery problems are logged and swallowed.
type ReviewNotifier interface {
	RequestForReview(ctx context.Context, cfg *moderation.TypeConfig, review *model.ModelReview, assignments []model.Reviewer)
	ReviewComplete(ctx context.Context, cfg *moderation.TypeConfig, review *model.ModelReview)
}

// --- Interface ---

type ReviewService interface {
	// SaveReview persists a ModelReview and runs the save pipeline: derive
	// the submitting user, propagate on a transition out of PENDING, run the
	// type's set-reviewers hook.
	SaveReview(ctx context.Context, review *model.ModelReview) error
	// SubmitDecision applies one reviewer's decision as a single unit of
	// work: assignment mutation, resolution and (when resolved) propagation
	// plus side effect commit or roll back together.
	SubmitDecision(ctx context.Context, in SubmitDecisionInput) (*ReviewResponse, error)
	// SubmitBatch applies each item independently; one invalid item does not
	// abort the rest.
	SubmitBatch(ctx context.Context, actingUser uuid.UUID, items []SubmitDecisionInput) []BatchItemResult
	AddReviewers(ctx context.Context, reviewID uuid.UUID, specs []moderation.ReviewerSpec) error
	ListPending(ctx context.Context, userID uuid.UUID, page, limit int) ([]ReviewResponse, int64, error)
	GetReview(ctx context.Context, id uuid.UUID) (*ReviewResponse, error)
}

type reviewService struct {
	registry  *moderation.Registry
	reviews   repository.ReviewRepository
	reviewers repository.ReviewerRepository
	audits    repository.AuditRepository
	txm       repository.TransactionManager
	notifier  ReviewNotifier
}

func NewReviewService(
	registry *moderation.Registry,
	reviews repository.ReviewRepository,
	reviewers repository.ReviewerRepository,
	audits repository.AuditRepository,
	txm repository.TransactionManager,
	notifier ReviewNotifier,
) ReviewService {
	return &reviewService{
		registry:  registry,
		reviews:   reviews,
		reviewers: reviewers,
		audits:    audits,
		txm:       txm,
		notifier:  notifier,
	}
}

// --- Save pipeline ---

func (s *reviewService) SaveReview(ctx context.Context, review *model.ModelReview) error {
	cfg, ok := s.registry.Get(review.ContentType)
	if !ok {
		return fmt.Errorf("unregistered content type: %s", review.ContentType)
	}

	// Transition detection needs the last persisted status, not the caller's
	// in-memory copy.
	prevStatus := model.ReviewPending
	if review.ID != uuid.Nil {
		stored, err := s.reviews.FindByID(ctx, review.ID)
		if err != nil {
			return fmt.Errorf("failed to load review: %w", err)
		}
		prevStatus = stored.ReviewStatus
	}

	obj, err := s.loadObject(ctx, cfg, review.ObjectID)
	if err != nil {
		return err
	}

	if review.UserID == nil && obj != nil {
		userID, deriveErr := cfg.DeriveUser(ctx, obj)
		if deriveErr != nil {
			return fmt.Errorf("set-user hook failed: %w", deriveErr)
		}
		review.UserID = userID
	}

	if review.ID == uuid.Nil {
		if err := s.reviews.Create(ctx, review); err != nil {
			return fmt.Errorf("failed to create review: %w", err)
		}
	} else {
		if err := s.reviews.Save(ctx, review); err != nil {
			return fmt.Errorf("failed to save review: %w", err)
		}
	}

	if prevStatus == model.ReviewPending && !review.NeedsReview() {
		if err := s.processReview(ctx, cfg, review, obj); err != nil {
			return err
		}
		s.notifier.ReviewComplete(ctx, cfg, review)
	}

	if cfg.SetReviewers != nil && obj != nil {
		specs, hookErr := cfg.SetReviewers(ctx, review, obj)
		if hookErr != nil {
			return fmt.Errorf("set-reviewers hook failed: %w", hookErr)
		}
		if err := s.addReviewers(ctx, cfg, review, specs); err != nil {
			return err
		}
	}

	return nil
}

// processReview copies the resolved status onto the live object, applies the
// approved sandbox and runs the side-effect hook. This is the only path that
// moves monitored fields from sandbox to the live record. Side-effect errors
// are deliberately not absorbed: they abort the enclosing transaction.
func (s *reviewService) processReview(ctx context.Context, cfg *moderation.TypeConfig, review *model.ModelReview, obj moderation.Approvable) error {
	if obj == nil {
		// object deleted out from under its review; nothing to propagate
		return nil
	}

	fields := obj.Review()
	fields.ReviewStatus = review.ReviewStatus
	fields.ReviewDate = review.ReviewDate
	fields.ReviewReason = review.ReviewReason
	fields.ReviewComments = review.ReviewComments

	if review.ReviewStatus == model.ReviewApproved {
		values, err := review.SandboxValues()
		if err != nil {
			return fmt.Errorf("failed to decode sandbox: %w", err)
		}
		if len(values) > 0 {
			if err := cfg.ApplyFields(obj, values); err != nil {
				return fmt.Errorf("failed to apply sandbox: %w", err)
			}
		}
	}

	if err := cfg.Save(ctx, obj); err != nil {
		return fmt.Errorf("failed to propagate review result: %w", err)
	}

	if cfg.SideEffect != nil {
		if err := cfg.SideEffect(ctx, review, obj); err != nil {
			return err
		}
	}
	return nil
}

// --- Resolution ---

// performReview runs the level aggregation over all assignments and, when a
// resolution is reached, saves the transition (which triggers propagation).
// Returns whether the review resolved.
func (s *reviewService) performReview(ctx context.Context, cfg *moderation.TypeConfig, review *model.ModelReview, obj moderation.Approvable) (bool, error) {
	assignments, err := s.reviewers.ListByReview(ctx, review.ID)
	if err != nil {
		return false, fmt.Errorf("failed to load reviewer assignments: %w", err)
	}

	levels := map[int]bool{}
	maxLevel := 0
	for _, a := range assignments {
		levels[a.Level] = true
		if a.Level > maxLevel {
			maxLevel = a.Level
		}
	}

	var relevant *model.Reviewer
	switch {
	case len(levels) <= 1:
		if cfg.UnanimousSingleTier && !allReviewed(assignments) {
			break
		}
		relevant = latestReviewed(assignments, nil)
	default:
		// only the top tier can finalize
		relevant = latestReviewed(assignments, &maxLevel)
	}

	if relevant == nil {
		if len(levels) > 1 && cfg.NextReviewers != nil && obj != nil {
			if err := s.escalate(ctx, cfg, review, obj, maxLevel); err != nil {
				return false, err
			}
		}
		// persist reason/comment updates without a status transition
		if err := s.reviews.Save(ctx, review); err != nil {
			return false, fmt.Errorf("failed to save review: %w", err)
		}
		return false, nil
	}

	review.ReviewStatus = relevant.Decision
	review.ReviewDate = relevant.ReviewDate
	if err := s.SaveReview(ctx, review); err != nil {
		return false, err
	}
	return true, nil
}

// latestReviewed picks the most recently acting reviewed assignment,
// optionally restricted to one level. Ties on review date break by level
// descending.
func latestReviewed(assignments []model.Reviewer, level *int) *model.Reviewer {
	var best *model.Reviewer
	for i := range assignments {
		a := &assignments[i]
		if !a.Reviewed || a.ReviewDate == nil {
			continue
		}
		if level != nil && a.Level != *level {
			continue
		}
		if best == nil {
			best = a
			continue
		}
		if a.ReviewDate.After(*best.ReviewDate) ||
			(a.ReviewDate.Equal(*best.ReviewDate) && a.Level > best.Level) {
			best = a
		}
	}
	return best
}

func allReviewed(assignments []model.Reviewer) bool {
	if len(assignments) == 0 {
		return false
	}
	for _, a := range assignments {
		if !a.Reviewed {
			return false
		}
	}
	return true
}

func (s *reviewService) escalate(ctx context.Context, cfg *moderation.TypeConfig, review *model.ModelReview, obj moderation.Approvable, currentMax int) error {
	specs, err := cfg.NextReviewers(ctx, review, obj, currentMax)
	if err != nil {
		return fmt.Errorf("escalation hook failed: %w", err)
	}
	if len(specs) == 0 {
		return nil
	}
	if err := s.addReviewers(ctx, cfg, review, specs); err != nil {
		return err
	}
	s.audit(ctx, review.UserID, model.ActionEscalateReview, review.ID.String(), review.ContentType, map[string]interface{}{
		"current_max_level": currentMax,
		"added":             len(specs),
	})
	return nil
}

// --- Submission ---

func (s *reviewService) SubmitDecision(ctx context.Context, in SubmitDecisionInput) (*ReviewResponse, error) {
	if !model.IsReviewDecision(in.Decision) {
		return nil, newValidationError("decision", "decision must be APPROVED or REJECTED")
	}

	var reviewID uuid.UUID
	err := s.txm.RunInTx(ctx, func(txCtx context.Context) error {
		review, err := s.reviews.FindByIDForUpdate(txCtx, in.ReviewID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return newValidationError("review", "review not found")
			}
			return fmt.Errorf("failed to load review: %w", err)
		}

		assignment, err := s.reviewers.FindByIDForUpdate(txCtx, in.ReviewerID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return newValidationError("reviewer", "reviewer assignment not found")
			}
			return fmt.Errorf("failed to load reviewer assignment: %w", err)
		}

		if assignment.ReviewID != review.ID {
			return newValidationError("reviewer", "reviewer does not belong to this review")
		}
		if in.ActingUser != uuid.Nil && assignment.UserID != in.ActingUser {
			return newValidationError("reviewer", "assignment belongs to another user")
		}
		if assignment.Reviewed {
			return newValidationError("reviewer", "decision already submitted")
		}

		now := time.Now().UTC()
		assignment.Reviewed = true
		assignment.ReviewDate = &now
		assignment.Decision = in.Decision
		if err := s.reviewers.Save(txCtx, assignment); err != nil {
			return fmt.Errorf("failed to save reviewer assignment: %w", err)
		}

		if in.Reason != "" {
			review.ReviewReason = in.Reason
		}
		if in.Comments != "" {
			review.ReviewComments = in.Comments
		}

		cfg, ok := s.registry.Get(review.ContentType)
		if !ok {
			return fmt.Errorf("unregistered content type: %s", review.ContentType)
		}
		obj, err := s.loadObject(txCtx, cfg, review.ObjectID)
		if err != nil {
			return err
		}

		resolved, err := s.performReview(txCtx, cfg, review, obj)
		if err != nil {
			return err
		}

		s.audit(txCtx, &assignment.UserID, model.ActionSubmitDecision, review.ID.String(), review.ContentType, map[string]interface{}{
			"decision": in.Decision,
			"level":    assignment.Level,
		})
		if resolved {
			s.audit(txCtx, &assignment.UserID, model.ActionResolveReview, review.ID.String(), review.ContentType, map[string]interface{}{
				"status": review.ReviewStatus,
			})
		}

		reviewID = review.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.GetReview(ctx, reviewID)
}

func (s *reviewService) SubmitBatch(ctx context.Context, actingUser uuid.UUID, items []SubmitDecisionInput) []BatchItemResult {
	results := make([]BatchItemResult, 0, len(items))
	for _, item := range items {
		item.ActingUser = actingUser
		result := BatchItemResult{
			ReviewID:   item.ReviewID.String(),
			ReviewerID: item.ReviewerID.String(),
		}

		if _, err := s.SubmitDecision(ctx, item); err != nil {
			var verr *ValidationError
			if errors.As(err, &verr) {
				result.Errors = verr.Fields
			} else {
				result.Error = err.Error()
			}
		} else {
			result.OK = true
		}
		results = append(results, result)
	}
	return results
}

// --- Assignment ---

func (s *reviewService) AddReviewers(ctx context.Context, reviewID uuid.UUID, specs []moderation.ReviewerSpec) error {
	review, err := s.reviews.FindByID(ctx, reviewID)
	if err != nil {
		return fmt.Errorf("failed to load review: %w", err)
	}
	cfg, ok := s.registry.Get(review.ContentType)
	if !ok {
		return fmt.Errorf("unregistered content type: %s", review.ContentType)
	}
	return s.addReviewers(ctx, cfg, review, specs)
}

func (s *reviewService) addReviewers(ctx context.Context, cfg *moderation.TypeConfig, review *model.ModelReview, specs []moderation.ReviewerSpec) error {
	var created []model.Reviewer
	for _, spec := range specs {
		exists, err := s.reviewers.Exists(ctx, review.ID, spec.UserID)
		if err != nil {
			return fmt.Errorf("failed to check reviewer assignment: %w", err)
		}
		if exists {
			continue
		}
		assignment := model.Reviewer{
			ReviewID: review.ID,
			UserID:   spec.UserID,
			Level:    spec.Level,
			Decision: model.ReviewPending,
		}
		if err := s.reviewers.Create(ctx, &assignment); err != nil {
			return fmt.Errorf("failed to create reviewer assignment: %w", err)
		}
		created = append(created, assignment)
	}

	if len(created) > 0 {
		s.audit(ctx, review.UserID, model.ActionAssignReviewers, review.ID.String(), review.ContentType, map[string]interface{}{
			"count": len(created),
		})
		if review.NeedsReview() {
			s.notifier.RequestForReview(ctx, cfg, review, created)
		}
	}
	return nil
}

// --- Queries ---

func (s *reviewService) ListPending(ctx context.Context, userID uuid.UUID, page, limit int) ([]ReviewResponse, int64, error) {
	reviews, total, err := s.reviews.ListPendingForUser(ctx, userID, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list pending reviews: %w", err)
	}

	responses := make([]ReviewResponse, 0, len(reviews))
	for i := range reviews {
		responses = append(responses, toReviewResponse(&reviews[i]))
	}
	return responses, total, nil
}

func (s *reviewService) GetReview(ctx context.Context, id uuid.UUID) (*ReviewResponse, error) {
	review, err := s.reviews.FindByIDWithRelations(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("review not found: %w", err)
	}
	resp := toReviewResponse(review)
	return &resp, nil
}

// --- Helpers ---

func (s *reviewService) loadObject(ctx context.Context, cfg *moderation.TypeConfig, objectID uuid.UUID) (moderation.Approvable, error) {
	obj, err := cfg.Load(ctx, objectID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load %s %s: %w", cfg.Tag, objectID, err)
	}
	return obj, nil
}

func (s *reviewService) audit(ctx context.Context, userID *uuid.UUID, action, entityID, entityName string, details map[string]interface{}) {
	raw, _ := json.Marshal(details)
	entry := model.AuditLog{
		UserID:     userID,
		Action:     action,
		EntityID:   entityID,
		EntityName: entityName,
		Details:    string(raw),
	}
	if err := s.audits.Log(ctx, &entry); err != nil {
		// audit rows ride the caller's transaction; surface nothing extra here
		return
	}
}

func toReviewResponse(review *model.ModelReview) ReviewResponse {
	resp := ReviewResponse{
		ID:             review.ID.String(),
		ContentType:    review.ContentType,
		ObjectID:       review.ObjectID.String(),
		Status:         review.ReviewStatus,
		ReviewReason:   review.ReviewReason,
		ReviewComments: review.ReviewComments,
		CreatedAt:      review.CreatedAt.Format(time.RFC3339),
	}

	if review.ReviewDate != nil {
		d := review.ReviewDate.Format(time.RFC3339)
		resp.ReviewDate = &d
	}
	if review.UserID != nil {
		id := review.UserID.String()
		resp.UserID = &id
	}
	if review.User != nil {
		resp.Username = review.User.Username
	}

	if values, err := review.SandboxValues(); err == nil {
		resp.Sandbox = values
	}

	for _, a := range review.Reviewers {
		r := ReviewerResponse{
			ID:       a.ID.String(),
			UserID:   a.UserID.String(),
			Level:    a.Level,
			Reviewed: a.Reviewed,
			Decision: a.Decision,
		}
		if a.User != nil {
			r.Username = a.User.Username
		}
		if a.ReviewDate != nil {
			d := a.ReviewDate.Format(time.RFC3339)
			r.ReviewDate = &d
		}
		resp.Reviewers = append(resp.Reviewers, r)
	}

	return resp
}
