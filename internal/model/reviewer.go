package model

import (
	"time"

	"github.com/google/uuid"
)

// Reviewer binds one user to one ModelReview at a given approval level. A
// user is assigned to a review at most once (composite unique index); the
// assignment is mutated exactly once, when the reviewer submits a decision.
type Reviewer struct {
	ID       uuid.UUID    `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ReviewID uuid.UUID    `gorm:"type:uuid;not null;uniqueIndex:idx_reviewers_review_user" json:"review_id"`
	Review   *ModelReview `gorm:"foreignKey:ReviewID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
	UserID   uuid.UUID    `gorm:"type:uuid;not null;uniqueIndex:idx_reviewers_review_user;index" json:"user_id"`
	User     *User        `gorm:"foreignKey:UserID" json:"user,omitempty"`
	// Level controls when a reviewer is asked to act. A level 2 reviewer has
	// final say over level 1 sign-offs.
	Level      int        `gorm:"not null;default:0;index" json:"level"`
	Reviewed   bool       `gorm:"not null;default:false;index" json:"reviewed"`
	ReviewDate *time.Time `json:"review_date"`
	// Decision is PENDING until Reviewed flips to true.
	Decision  string    `gorm:"type:varchar(20);not null;default:'PENDING'" json:"decision"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
