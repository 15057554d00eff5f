package service

import (
	"context"
	"strings"
	"testing"

	"model-review-api/internal/model"
	"model-review-api/internal/moderation"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPurchaseOrderCreateRoutesThroughInterception(t *testing.T) {
	f := newFixture()
	f.specs = []moderation.ReviewerSpec{{UserID: uuid.New(), Level: 0}}
	svc := NewPurchaseOrderService(f.orders, f.intercept)

	owner := uuid.New()
	resp, err := svc.Create(context.Background(), owner, CreatePurchaseOrderRequest{
		Supplier: "Acme Corp",
		Amount:   "1500.00",
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(resp.OrderCode, "PO-"))
	assert.Equal(t, model.ReviewPending, resp.ReviewStatus)

	orderID, err := uuid.Parse(resp.ID)
	require.NoError(t, err)
	review, err := f.reviews.FindByObject(context.Background(), PurchaseOrderTag, orderID)
	require.NoError(t, err)
	assert.True(t, review.NeedsReview())
}

func TestPurchaseOrderCreateRejectsBadAmount(t *testing.T) {
	f := newFixture()
	svc := NewPurchaseOrderService(f.orders, f.intercept)

	_, err := svc.Create(context.Background(), uuid.New(), CreatePurchaseOrderRequest{
		Supplier: "Acme Corp",
		Amount:   "lots",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid amount")
}

func TestPurchaseOrderUpdateKeepsPendingRowUnchanged(t *testing.T) {
	f := newFixture()
	f.specs = []moderation.ReviewerSpec{{UserID: uuid.New(), Level: 0}}
	svc := NewPurchaseOrderService(f.orders, f.intercept)

	created, err := svc.Create(context.Background(), uuid.New(), CreatePurchaseOrderRequest{
		Supplier: "Acme Corp",
		Amount:   "1500.00",
	})
	require.NoError(t, err)

	updated, err := svc.Update(context.Background(), created.ID, UpdatePurchaseOrderRequest{
		Supplier: "Globex",
	})
	require.NoError(t, err)
	assert.Equal(t, "Acme Corp", updated.Supplier)

	orderID, _ := uuid.Parse(created.ID)
	review, err := f.reviews.FindByObject(context.Background(), PurchaseOrderTag, orderID)
	require.NoError(t, err)
	sandbox, err := review.SandboxValues()
	require.NoError(t, err)
	assert.Equal(t, "Globex", sandbox["supplier"])
}

func TestToDecimalAcceptsSandboxShapes(t *testing.T) {
	d, err := toDecimal(decimal.NewFromInt(42))
	require.NoError(t, err)
	assert.True(t, d.Equal(decimal.NewFromInt(42)))

	d, err = toDecimal("19.99")
	require.NoError(t, err)
	assert.True(t, d.Equal(decimal.RequireFromString("19.99")))

	d, err = toDecimal(float64(7.5))
	require.NoError(t, err)
	assert.True(t, d.Equal(decimal.RequireFromString("7.5")))

	_, err = toDecimal([]string{"nope"})
	require.Error(t, err)
}
