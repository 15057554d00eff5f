package notify

import (
	"context"
	"errors"
	"testing"

	"model-review-api/internal/model"
	"model-review-api/internal/moderation"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type recordingSender struct {
	sent []Payload
	err  error
}

func (s *recordingSender) Send(p Payload) error {
	s.sent = append(s.sent, p)
	return s.err
}

type stubUserRepo struct {
	users map[string]model.User
}

func (s *stubUserRepo) GetByID(_ context.Context, id string) (*model.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &u, nil
}

func (s *stubUserRepo) Create(context.Context, *model.User) error  { return nil }
func (s *stubUserRepo) GetByEmail(context.Context, string) (*model.User, error) {
	return nil, gorm.ErrRecordNotFound
}
func (s *stubUserRepo) GetByUsername(context.Context, string) (*model.User, error) {
	return nil, gorm.ErrRecordNotFound
}
func (s *stubUserRepo) ListByRole(context.Context, string) ([]model.User, error) { return nil, nil }
func (s *stubUserRepo) List(context.Context, int, int) ([]model.User, int64, error) {
	return nil, 0, nil
}
func (s *stubUserRepo) Update(context.Context, *model.User) error { return nil }
func (s *stubUserRepo) Delete(context.Context, string) error      { return nil }
func (s *stubUserRepo) CreateRefreshToken(context.Context, *model.RefreshToken) error {
	return nil
}
func (s *stubUserRepo) GetRefreshToken(context.Context, string) (*model.RefreshToken, error) {
	return nil, gorm.ErrRecordNotFound
}
func (s *stubUserRepo) DeleteRefreshToken(context.Context, string) error { return nil }

func TestRequestForReviewEmailsUnreviewedAssignees(t *testing.T) {
	sender := &recordingSender{}
	reviewerID := uuid.New()
	doneID := uuid.New()
	repo := &stubUserRepo{users: map[string]model.User{
		reviewerID.String(): {ID: reviewerID, Username: "ana", Email: "ana@example.com"},
		doneID.String():     {ID: doneID, Username: "bo", Email: "bo@example.com"},
	}}
	d := NewDispatcher(sender, repo, nil)

	review := &model.ModelReview{ID: uuid.New(), ContentType: "purchase_order"}
	assignments := []model.Reviewer{
		{ReviewID: review.ID, UserID: reviewerID},
		{ReviewID: review.ID, UserID: doneID, Reviewed: true},
	}

	d.RequestForReview(context.Background(), &moderation.TypeConfig{}, review, assignments)

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "ana@example.com", sender.sent[0].Email)
	assert.Equal(t, RequestSubject, sender.sent[0].Subject)
}

func TestRequestForReviewUsesConfiguredOverrides(t *testing.T) {
	sender := &recordingSender{}
	reviewerID := uuid.New()
	repo := &stubUserRepo{users: map[string]model.User{
		reviewerID.String(): {ID: reviewerID, Username: "ana", Email: "ana@example.com"},
	}}
	d := NewDispatcher(sender, repo, nil)

	cfg := &moderation.TypeConfig{
		RequestSubject: "Order awaiting sign-off",
		RequestBody:    "A purchase order needs your approval.",
	}
	review := &model.ModelReview{ID: uuid.New()}

	d.RequestForReview(context.Background(), cfg, review, []model.Reviewer{{UserID: reviewerID}})

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "Order awaiting sign-off", sender.sent[0].Subject)
	assert.Equal(t, "A purchase order needs your approval.", sender.sent[0].Message)
}

func TestRequestForReviewCustomNotifierReplacesEmail(t *testing.T) {
	sender := &recordingSender{}
	d := NewDispatcher(sender, &stubUserRepo{users: map[string]model.User{}}, nil)

	var got []model.User
	cfg := &moderation.TypeConfig{
		RequestNotifier: func(ctx context.Context, review *model.ModelReview, recipients []model.User) error {
			got = recipients
			return nil
		},
	}

	d.RequestForReview(context.Background(), cfg, &model.ModelReview{ID: uuid.New()}, nil)

	assert.Empty(t, sender.sent)
	assert.Empty(t, got)
}

func TestReviewCompleteEmailsSubmitter(t *testing.T) {
	sender := &recordingSender{}
	submitter := uuid.New()
	repo := &stubUserRepo{users: map[string]model.User{
		submitter.String(): {ID: submitter, Username: "sam", Email: "sam@example.com", FullName: "Sam Doe"},
	}}
	d := NewDispatcher(sender, repo, nil)

	review := &model.ModelReview{
		ID:     uuid.New(),
		UserID: &submitter,
		ReviewFields: model.ReviewFields{
			ReviewStatus: model.ReviewApproved,
		},
	}

	d.ReviewComplete(context.Background(), &moderation.TypeConfig{}, review)

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "sam@example.com", sender.sent[0].Email)
	assert.Equal(t, "Sam Doe", sender.sent[0].Name)
	assert.Equal(t, CompleteSubject, sender.sent[0].Subject)
}

func TestDeliveryFailureIsSwallowed(t *testing.T) {
	sender := &recordingSender{err: errors.New("smtp down")}
	submitter := uuid.New()
	repo := &stubUserRepo{users: map[string]model.User{
		submitter.String(): {ID: submitter, Username: "sam", Email: "sam@example.com"},
	}}
	d := NewDispatcher(sender, repo, nil)

	review := &model.ModelReview{ID: uuid.New(), UserID: &submitter}

	// must not panic or surface the error anywhere
	d.ReviewComplete(context.Background(), &moderation.TypeConfig{}, review)
	assert.Len(t, sender.sent, 1)
}
