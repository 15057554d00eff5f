package repository

import (
	"context"

	"model-review-api/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReviewerRepository is the data access layer for reviewer assignments.
type ReviewerRepository interface {
	Create(ctx context.Context, reviewer *model.Reviewer) error
	Save(ctx context.Context, reviewer *model.Reviewer) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Reviewer, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Reviewer, error)
	ListByReview(ctx context.Context, reviewID uuid.UUID) ([]model.Reviewer, error)
	ListUnreviewedByReview(ctx context.Context, reviewID uuid.UUID) ([]model.Reviewer, error)
	Exists(ctx context.Context, reviewID, userID uuid.UUID) (bool, error)
}

type reviewerRepository struct {
	db *gorm.DB
}

func NewReviewerRepository(db *gorm.DB) ReviewerRepository {
	return &reviewerRepository{db: db}
}

func (r *reviewerRepository) Create(ctx context.Context, reviewer *model.Reviewer) error {
	return GetDB(ctx, r.db).Create(reviewer).Error
}

func (r *reviewerRepository) Save(ctx context.Context, reviewer *model.Reviewer) error {
	return GetDB(ctx, r.db).Save(reviewer).Error
}

func (r *reviewerRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Reviewer, error) {
	var reviewer model.Reviewer
	if err := GetDB(ctx, r.db).Preload("User").First(&reviewer, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &reviewer, nil
}

func (r *reviewerRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Reviewer, error) {
	var reviewer model.Reviewer
	if err := GetDB(ctx, r.db).Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&reviewer, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &reviewer, nil
}

func (r *reviewerRepository) ListByReview(ctx context.Context, reviewID uuid.UUID) ([]model.Reviewer, error) {
	var reviewers []model.Reviewer
	if err := GetDB(ctx, r.db).Preload("User").
		Where("review_id = ?", reviewID).
		Order("level ASC, created_at ASC").
		Find(&reviewers).Error; err != nil {
		return nil, err
	}
	return reviewers, nil
}

func (r *reviewerRepository) ListUnreviewedByReview(ctx context.Context, reviewID uuid.UUID) ([]model.Reviewer, error) {
	var reviewers []model.Reviewer
	if err := GetDB(ctx, r.db).Preload("User").
		Where("review_id = ? AND reviewed = false", reviewID).
		Order("level ASC, created_at ASC").
		Find(&reviewers).Error; err != nil {
		return nil, err
	}
	return reviewers, nil
}

func (r *reviewerRepository) Exists(ctx context.Context, reviewID, userID uuid.UUID) (bool, error) {
	var count int64
	if err := GetDB(ctx, r.db).Model(&model.Reviewer{}).
		Where("review_id = ? AND user_id = ?", reviewID, userID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
