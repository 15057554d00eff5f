package repository

import (
	"context"

	"model-review-api/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReviewRepository is the data access layer for ModelReview rows.
type ReviewRepository interface {
	Create(ctx context.Context, review *model.ModelReview) error
	Save(ctx context.Context, review *model.ModelReview) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.ModelReview, error)
	// FindByIDForUpdate locks the review row for the duration of the
	// enclosing transaction; concurrent submissions against one review
	// serialize on it.
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.ModelReview, error)
	FindByIDWithRelations(ctx context.Context, id uuid.UUID) (*model.ModelReview, error)
	FindByObject(ctx context.Context, contentType string, objectID uuid.UUID) (*model.ModelReview, error)
	ListPendingForUser(ctx context.Context, userID uuid.UUID, page, limit int) ([]model.ModelReview, int64, error)
}

type reviewRepository struct {
	db *gorm.DB
}

func NewReviewRepository(db *gorm.DB) ReviewRepository {
	return &reviewRepository{db: db}
}

func (r *reviewRepository) Create(ctx context.Context, review *model.ModelReview) error {
	return GetDB(ctx, r.db).Create(review).Error
}

func (r *reviewRepository) Save(ctx context.Context, review *model.ModelReview) error {
	return GetDB(ctx, r.db).Save(review).Error
}

func (r *reviewRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.ModelReview, error) {
	var review model.ModelReview
	if err := GetDB(ctx, r.db).First(&review, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &review, nil
}

func (r *reviewRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.ModelReview, error) {
	var review model.ModelReview
	if err := GetDB(ctx, r.db).Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&review, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &review, nil
}

func (r *reviewRepository) FindByIDWithRelations(ctx context.Context, id uuid.UUID) (*model.ModelReview, error) {
	var review model.ModelReview
	if err := GetDB(ctx, r.db).
		Preload("User").
		Preload("Reviewers").
		Preload("Reviewers.User").
		First(&review, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &review, nil
}

func (r *reviewRepository) FindByObject(ctx context.Context, contentType string, objectID uuid.UUID) (*model.ModelReview, error) {
	var review model.ModelReview
	if err := GetDB(ctx, r.db).
		First(&review, "content_type = ? AND object_id = ?", contentType, objectID).Error; err != nil {
		return nil, err
	}
	return &review, nil
}

// ListPendingForUser returns pending reviews that have an unreviewed
// assignment for userID, i.e. the user's review inbox.
func (r *reviewRepository) ListPendingForUser(ctx context.Context, userID uuid.UUID, page, limit int) ([]model.ModelReview, int64, error) {
	db := GetDB(ctx, r.db)

	base := db.Model(&model.ModelReview{}).
		Joins("JOIN reviewers ON reviewers.review_id = model_reviews.id").
		Where("reviewers.user_id = ? AND reviewers.reviewed = false", userID).
		Where("model_reviews.review_status = ?", model.ReviewPending)

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var reviews []model.ModelReview
	offset := (page - 1) * limit
	if err := base.
		Preload("User").
		Preload("Reviewers").
		Preload("Reviewers.User").
		Order("model_reviews.created_at DESC").
		Offset(offset).Limit(limit).
		Find(&reviews).Error; err != nil {
		return nil, 0, err
	}

	return reviews, total, nil
}
