package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ReviewStatus enum constants
const (
	ReviewPending  = "PENDING"
	ReviewApproved = "APPROVED"
	ReviewRejected = "REJECTED"
)

// IsReviewDecision reports whether status is a terminal decision a reviewer
// may submit. PENDING is never a valid submission.
func IsReviewDecision(status string) bool {
	return status == ReviewApproved || status == ReviewRejected
}

// ReviewFields is embedded by every entity that opts into moderation. The
// interception engine keeps these in sync with the entity's ModelReview.
type ReviewFields struct {
	ReviewStatus   string     `gorm:"type:varchar(20);not null;default:'PENDING';index" json:"review_status"`
	ReviewDate     *time.Time `json:"review_date"`
	ReviewReason   string     `gorm:"type:text" json:"review_reason"`
	ReviewComments string     `gorm:"type:text" json:"review_comments"`
}

// ModelReview holds the moderation state for one approvable object. The
// (content_type, object_id) pair is the polymorphic reference: content_type
// is a registered type tag, object_id the row's UUID. Exactly one review
// exists per object.
type ModelReview struct {
	ID          uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ContentType string     `gorm:"type:varchar(64);not null;uniqueIndex:idx_model_reviews_object" json:"content_type"`
	ObjectID    uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_model_reviews_object" json:"object_id"`
	UserID      *uuid.UUID `gorm:"type:uuid;index" json:"user_id"` // the submitter, auto-derived when absent
	User        *User      `gorm:"foreignKey:UserID" json:"user,omitempty"`
	ReviewFields
	// Sandbox holds monitored-field values awaiting approval, keyed by field
	// name. While the review is PENDING the live row never carries these.
	Sandbox   string     `gorm:"type:jsonb;not null;default:'{}'" json:"sandbox"`
	Reviewers []Reviewer `gorm:"foreignKey:ReviewID;constraint:OnDelete:CASCADE" json:"reviewers,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// NeedsReview reports whether the review is still awaiting a decision.
func (r *ModelReview) NeedsReview() bool {
	return r.ReviewStatus == ReviewPending
}

// SandboxValues decodes the sandbox JSONB column into a map.
func (r *ModelReview) SandboxValues() (map[string]interface{}, error) {
	values := map[string]interface{}{}
	if r.Sandbox == "" {
		return values, nil
	}
	if err := json.Unmarshal([]byte(r.Sandbox), &values); err != nil {
		return nil, err
	}
	return values, nil
}

// MergeSandbox folds changed into the stored sandbox, leaving unrelated keys
// untouched.
func (r *ModelReview) MergeSandbox(changed map[string]interface{}) error {
	values, err := r.SandboxValues()
	if err != nil {
		return err
	}
	for field, value := range changed {
		values[field] = value
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return err
	}
	r.Sandbox = string(raw)
	return nil
}
