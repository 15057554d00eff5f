package service

import (
	"context"
	"errors"
	"testing"

	"model-review-api/internal/model"
	"model-review-api/internal/moderation"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInterceptCreateSeedsReviewAndReviewers(t *testing.T) {
	f := newFixture()
	owner := uuid.New()
	managerA := uuid.New()
	managerB := uuid.New()
	f.specs = []moderation.ReviewerSpec{
		{UserID: managerA, Level: 0},
		{UserID: managerB, Level: 0},
	}

	order, review := f.createOrder(context.Background(), owner)

	require.NotNil(t, review)
	assert.True(t, review.NeedsReview())
	assert.Equal(t, PurchaseOrderTag, review.ContentType)
	assert.Equal(t, order.ID, review.ObjectID)
	require.NotNil(t, review.UserID)
	assert.Equal(t, owner, *review.UserID)

	sandbox, err := review.SandboxValues()
	require.NoError(t, err)
	assert.Equal(t, "Acme Corp", sandbox["supplier"])
	assert.Contains(t, sandbox, "amount")

	assert.NotNil(t, f.assignment(review.ID, managerA))
	assert.NotNil(t, f.assignment(review.ID, managerB))
	require.Len(t, f.notifier.requested, 1)
	assert.Len(t, f.notifier.requested[0], 2)
	assert.Contains(t, f.audits.actions(), model.ActionCreateReview)
	assert.Contains(t, f.audits.actions(), model.ActionAssignReviewers)
}

func TestSingleTierLatestDecisionResolves(t *testing.T) {
	f := newFixture()
	owner := uuid.New()
	managerA := uuid.New()
	managerB := uuid.New()
	f.specs = []moderation.ReviewerSpec{
		{UserID: managerA, Level: 0},
		{UserID: managerB, Level: 0},
	}

	order, review := f.createOrder(context.Background(), owner)
	assignment := f.assignment(review.ID, managerA)
	require.NotNil(t, assignment)

	resp, err := f.service.SubmitDecision(context.Background(), SubmitDecisionInput{
		ReviewID:   review.ID,
		ReviewerID: assignment.ID,
		ActingUser: managerA,
		Decision:   model.ReviewApproved,
		Reason:     "within budget",
	})
	require.NoError(t, err)
	assert.Equal(t, model.ReviewApproved, resp.Status)

	stored, err := f.reviews.FindByID(context.Background(), review.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReviewApproved, stored.ReviewStatus)
	assert.NotNil(t, stored.ReviewDate)
	assert.Equal(t, "within budget", stored.ReviewReason)

	live, err := f.orders.FindByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReviewApproved, live.ReviewStatus)
	assert.Equal(t, "within budget", live.ReviewReason)

	assert.Equal(t, 1, f.sideEffects)
	assert.Equal(t, []string{model.ReviewApproved}, f.notifier.completed)
	assert.Contains(t, f.audits.actions(), model.ActionResolveReview)
}

func TestUnanimousSingleTierWaitsForAll(t *testing.T) {
	f := newFixture()
	f.cfg.UnanimousSingleTier = true
	managerA := uuid.New()
	managerB := uuid.New()
	f.specs = []moderation.ReviewerSpec{
		{UserID: managerA, Level: 0},
		{UserID: managerB, Level: 0},
	}

	_, review := f.createOrder(context.Background(), uuid.New())

	respA, err := f.service.SubmitDecision(context.Background(), SubmitDecisionInput{
		ReviewID:   review.ID,
		ReviewerID: f.assignment(review.ID, managerA).ID,
		ActingUser: managerA,
		Decision:   model.ReviewApproved,
	})
	require.NoError(t, err)
	assert.Equal(t, model.ReviewPending, respA.Status)
	assert.Equal(t, 0, f.sideEffects)

	respB, err := f.service.SubmitDecision(context.Background(), SubmitDecisionInput{
		ReviewID:   review.ID,
		ReviewerID: f.assignment(review.ID, managerB).ID,
		ActingUser: managerB,
		Decision:   model.ReviewRejected,
	})
	require.NoError(t, err)
	// once everyone has acted, the most recent decision carries
	assert.Equal(t, model.ReviewRejected, respB.Status)
	assert.Equal(t, 1, f.sideEffects)
}

func TestTieredResolutionTopLevelHasFinalSay(t *testing.T) {
	f := newFixture()
	manager := uuid.New()
	admin := uuid.New()
	f.specs = []moderation.ReviewerSpec{
		{UserID: manager, Level: 0},
		{UserID: admin, Level: 1},
	}

	order, review := f.createOrder(context.Background(), uuid.New())

	resp, err := f.service.SubmitDecision(context.Background(), SubmitDecisionInput{
		ReviewID:   review.ID,
		ReviewerID: f.assignment(review.ID, manager).ID,
		ActingUser: manager,
		Decision:   model.ReviewApproved,
	})
	require.NoError(t, err)
	assert.Equal(t, model.ReviewPending, resp.Status)

	live, err := f.orders.FindByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReviewPending, live.ReviewStatus)

	resp, err = f.service.SubmitDecision(context.Background(), SubmitDecisionInput{
		ReviewID:   review.ID,
		ReviewerID: f.assignment(review.ID, admin).ID,
		ActingUser: admin,
		Decision:   model.ReviewRejected,
		Reason:     "supplier not cleared",
	})
	require.NoError(t, err)
	assert.Equal(t, model.ReviewRejected, resp.Status)

	live, err = f.orders.FindByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReviewRejected, live.ReviewStatus)
	assert.Equal(t, "supplier not cleared", live.ReviewReason)
	assert.Equal(t, 1, f.sideEffects)
}

func TestEscalationMaterializesNextTier(t *testing.T) {
	f := newFixture()
	manager := uuid.New()
	admin := uuid.New()
	director := uuid.New()
	f.specs = []moderation.ReviewerSpec{
		{UserID: manager, Level: 0},
		{UserID: admin, Level: 1},
	}
	f.cfg.NextReviewers = func(ctx context.Context, review *model.ModelReview, obj moderation.Approvable, currentMax int) ([]moderation.ReviewerSpec, error) {
		if currentMax == 1 {
			return []moderation.ReviewerSpec{{UserID: director, Level: 2}}, nil
		}
		return nil, nil
	}

	_, review := f.createOrder(context.Background(), uuid.New())

	resp, err := f.service.SubmitDecision(context.Background(), SubmitDecisionInput{
		ReviewID:   review.ID,
		ReviewerID: f.assignment(review.ID, manager).ID,
		ActingUser: manager,
		Decision:   model.ReviewApproved,
	})
	require.NoError(t, err)
	assert.Equal(t, model.ReviewPending, resp.Status)
	require.NotNil(t, f.assignment(review.ID, director))
	assert.Equal(t, 2, f.assignment(review.ID, director).Level)
	assert.Contains(t, f.audits.actions(), model.ActionEscalateReview)

	// the admin tier is no longer the top; their decision alone cannot settle it
	resp, err = f.service.SubmitDecision(context.Background(), SubmitDecisionInput{
		ReviewID:   review.ID,
		ReviewerID: f.assignment(review.ID, admin).ID,
		ActingUser: admin,
		Decision:   model.ReviewApproved,
	})
	require.NoError(t, err)
	assert.Equal(t, model.ReviewPending, resp.Status)

	resp, err = f.service.SubmitDecision(context.Background(), SubmitDecisionInput{
		ReviewID:   review.ID,
		ReviewerID: f.assignment(review.ID, director).ID,
		ActingUser: director,
		Decision:   model.ReviewApproved,
	})
	require.NoError(t, err)
	assert.Equal(t, model.ReviewApproved, resp.Status)
}

func TestApprovalAppliesSandboxedChanges(t *testing.T) {
	f := newFixture()
	manager := uuid.New()
	f.specs = []moderation.ReviewerSpec{{UserID: manager, Level: 0}}

	order, review := f.createOrder(context.Background(), uuid.New())

	edited, err := f.orders.FindByID(context.Background(), order.ID)
	require.NoError(t, err)
	edited.Supplier = "Globex"
	edited.Amount = mustDecimal("2000")
	_, err = f.intercept.Update(context.Background(), PurchaseOrderTag, edited)
	require.NoError(t, err)

	// the live row must not carry the unreviewed values
	live, err := f.orders.FindByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme Corp", live.Supplier)
	assert.True(t, live.Amount.Equal(mustDecimal("1500.00")))

	_, err = f.service.SubmitDecision(context.Background(), SubmitDecisionInput{
		ReviewID:   review.ID,
		ReviewerID: f.assignment(review.ID, manager).ID,
		ActingUser: manager,
		Decision:   model.ReviewApproved,
	})
	require.NoError(t, err)

	live, err = f.orders.FindByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReviewApproved, live.ReviewStatus)
	assert.Equal(t, "Globex", live.Supplier)
	assert.True(t, live.Amount.Equal(mustDecimal("2000")))
}

func TestSubmitDecisionValidation(t *testing.T) {
	f := newFixture()
	manager := uuid.New()
	f.specs = []moderation.ReviewerSpec{{UserID: manager, Level: 0}}
	_, review := f.createOrder(context.Background(), uuid.New())
	assignment := f.assignment(review.ID, manager)

	t.Run("rejects unknown decision", func(t *testing.T) {
		_, err := f.service.SubmitDecision(context.Background(), SubmitDecisionInput{
			ReviewID:   review.ID,
			ReviewerID: assignment.ID,
			ActingUser: manager,
			Decision:   "MAYBE",
		})
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Fields, "decision")
	})

	t.Run("rejects unknown review", func(t *testing.T) {
		_, err := f.service.SubmitDecision(context.Background(), SubmitDecisionInput{
			ReviewID:   uuid.New(),
			ReviewerID: assignment.ID,
			ActingUser: manager,
			Decision:   model.ReviewApproved,
		})
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Fields, "review")
	})

	t.Run("rejects assignment from another review", func(t *testing.T) {
		_, otherReview := f.createOrder(context.Background(), uuid.New())
		other := f.assignment(otherReview.ID, manager)
		require.NotNil(t, other)

		_, err := f.service.SubmitDecision(context.Background(), SubmitDecisionInput{
			ReviewID:   review.ID,
			ReviewerID: other.ID,
			ActingUser: manager,
			Decision:   model.ReviewApproved,
		})
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Fields, "reviewer")
	})

	t.Run("rejects another user's assignment", func(t *testing.T) {
		_, err := f.service.SubmitDecision(context.Background(), SubmitDecisionInput{
			ReviewID:   review.ID,
			ReviewerID: assignment.ID,
			ActingUser: uuid.New(),
			Decision:   model.ReviewApproved,
		})
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Fields, "reviewer")
	})

	// nothing above may have mutated state
	stored, err := f.reviews.FindByID(context.Background(), review.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReviewPending, stored.ReviewStatus)
	assert.Equal(t, 0, f.sideEffects)
}

func TestSubmitDecisionRejectsDoubleSubmission(t *testing.T) {
	f := newFixture()
	managerA := uuid.New()
	managerB := uuid.New()
	f.cfg.UnanimousSingleTier = true
	f.specs = []moderation.ReviewerSpec{
		{UserID: managerA, Level: 0},
		{UserID: managerB, Level: 0},
	}
	_, review := f.createOrder(context.Background(), uuid.New())
	assignment := f.assignment(review.ID, managerA)

	_, err := f.service.SubmitDecision(context.Background(), SubmitDecisionInput{
		ReviewID:   review.ID,
		ReviewerID: assignment.ID,
		ActingUser: managerA,
		Decision:   model.ReviewApproved,
	})
	require.NoError(t, err)

	_, err = f.service.SubmitDecision(context.Background(), SubmitDecisionInput{
		ReviewID:   review.ID,
		ReviewerID: assignment.ID,
		ActingUser: managerA,
		Decision:   model.ReviewRejected,
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields["reviewer"], "already submitted")
}

func TestSubmitBatchIsolatesFailures(t *testing.T) {
	f := newFixture()
	managerA := uuid.New()
	managerB := uuid.New()
	f.cfg.UnanimousSingleTier = true
	f.specs = []moderation.ReviewerSpec{
		{UserID: managerA, Level: 0},
		{UserID: managerB, Level: 0},
	}
	_, review := f.createOrder(context.Background(), uuid.New())

	results := f.service.SubmitBatch(context.Background(), managerA, []SubmitDecisionInput{
		{ReviewID: review.ID, ReviewerID: f.assignment(review.ID, managerA).ID, Decision: model.ReviewApproved},
		{ReviewID: review.ID, ReviewerID: uuid.New(), Decision: model.ReviewApproved},
		{ReviewID: review.ID, ReviewerID: f.assignment(review.ID, managerB).ID, Decision: "BOGUS"},
	})

	require.Len(t, results, 3)
	assert.True(t, results[0].OK)
	assert.False(t, results[1].OK)
	assert.Contains(t, results[1].Errors, "reviewer")
	assert.False(t, results[2].OK)
	assert.Contains(t, results[2].Errors, "decision")

	// the valid item went through
	stored := f.assignment(review.ID, managerA)
	assert.True(t, stored.Reviewed)
}

func TestSideEffectErrorAbortsSubmission(t *testing.T) {
	f := newFixture()
	manager := uuid.New()
	f.specs = []moderation.ReviewerSpec{{UserID: manager, Level: 0}}
	f.cfg.SideEffect = func(ctx context.Context, review *model.ModelReview, obj moderation.Approvable) error {
		return errors.New("ledger unavailable")
	}
	_, review := f.createOrder(context.Background(), uuid.New())

	_, err := f.service.SubmitDecision(context.Background(), SubmitDecisionInput{
		ReviewID:   review.ID,
		ReviewerID: f.assignment(review.ID, manager).ID,
		ActingUser: manager,
		Decision:   model.ReviewApproved,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ledger unavailable")
}

func TestListPendingTracksInbox(t *testing.T) {
	f := newFixture()
	manager := uuid.New()
	f.specs = []moderation.ReviewerSpec{{UserID: manager, Level: 0}}
	_, review := f.createOrder(context.Background(), uuid.New())

	pending, total, err := f.service.ListPending(context.Background(), manager, 1, 20)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, pending, 1)
	assert.Equal(t, review.ID.String(), pending[0].ID)

	_, err = f.service.SubmitDecision(context.Background(), SubmitDecisionInput{
		ReviewID:   review.ID,
		ReviewerID: f.assignment(review.ID, manager).ID,
		ActingUser: manager,
		Decision:   model.ReviewApproved,
	})
	require.NoError(t, err)

	pending, total, err = f.service.ListPending(context.Background(), manager, 1, 20)
	require.NoError(t, err)
	assert.EqualValues(t, 0, total)
	assert.Empty(t, pending)
}

func TestGetReviewIncludesAssignments(t *testing.T) {
	f := newFixture()
	manager := uuid.New()
	admin := uuid.New()
	f.specs = []moderation.ReviewerSpec{
		{UserID: manager, Level: 0},
		{UserID: admin, Level: 1},
	}
	_, review := f.createOrder(context.Background(), uuid.New())

	resp, err := f.service.GetReview(context.Background(), review.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReviewPending, resp.Status)
	require.Len(t, resp.Reviewers, 2)
	assert.Equal(t, 0, resp.Reviewers[0].Level)
	assert.Equal(t, 1, resp.Reviewers[1].Level)
	assert.Equal(t, "Acme Corp", resp.Sandbox["supplier"])
}
