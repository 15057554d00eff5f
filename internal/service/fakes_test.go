package service

import (
	"context"
	"sort"
	"time"

	"model-review-api/internal/model"
	"model-review-api/internal/moderation"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// In-memory repository doubles. Find methods return copies the way a real
// query materializes fresh rows, so transition detection against the stored
// state keeps working.

type passTxm struct{}

func (passTxm) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	return fn(ctx)
}

type fakeReviewRepo struct {
	rows      map[uuid.UUID]model.ModelReview
	reviewers *fakeReviewerRepo
}

func newFakeReviewRepo(reviewers *fakeReviewerRepo) *fakeReviewRepo {
	return &fakeReviewRepo{rows: map[uuid.UUID]model.ModelReview{}, reviewers: reviewers}
}

func (f *fakeReviewRepo) Create(_ context.Context, review *model.ModelReview) error {
	if review.ID == uuid.Nil {
		review.ID = uuid.New()
	}
	if review.ReviewStatus == "" {
		// the review_status column defaults to 'PENDING'; gorm refills the
		// field from RETURNING on insert
		review.ReviewStatus = model.ReviewPending
	}
	review.CreatedAt = time.Now().UTC()
	f.rows[review.ID] = *review
	return nil
}

func (f *fakeReviewRepo) Save(_ context.Context, review *model.ModelReview) error {
	f.rows[review.ID] = *review
	return nil
}

func (f *fakeReviewRepo) FindByID(_ context.Context, id uuid.UUID) (*model.ModelReview, error) {
	row, ok := f.rows[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &row, nil
}

func (f *fakeReviewRepo) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.ModelReview, error) {
	return f.FindByID(ctx, id)
}

func (f *fakeReviewRepo) FindByIDWithRelations(ctx context.Context, id uuid.UUID) (*model.ModelReview, error) {
	review, err := f.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	review.Reviewers, _ = f.reviewers.ListByReview(ctx, id)
	return review, nil
}

func (f *fakeReviewRepo) FindByObject(_ context.Context, contentType string, objectID uuid.UUID) (*model.ModelReview, error) {
	for _, row := range f.rows {
		if row.ContentType == contentType && row.ObjectID == objectID {
			r := row
			return &r, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeReviewRepo) ListPendingForUser(ctx context.Context, userID uuid.UUID, page, limit int) ([]model.ModelReview, int64, error) {
	var out []model.ModelReview
	for id, row := range f.rows {
		if row.ReviewStatus != model.ReviewPending {
			continue
		}
		assignments, _ := f.reviewers.ListByReview(ctx, id)
		for _, a := range assignments {
			if a.UserID == userID && !a.Reviewed {
				out = append(out, row)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, int64(len(out)), nil
}

type fakeReviewerRepo struct {
	rows []model.Reviewer
}

func newFakeReviewerRepo() *fakeReviewerRepo {
	return &fakeReviewerRepo{}
}

func (f *fakeReviewerRepo) Create(_ context.Context, reviewer *model.Reviewer) error {
	if reviewer.ID == uuid.Nil {
		reviewer.ID = uuid.New()
	}
	reviewer.CreatedAt = time.Now().UTC()
	f.rows = append(f.rows, *reviewer)
	return nil
}

func (f *fakeReviewerRepo) Save(_ context.Context, reviewer *model.Reviewer) error {
	for i := range f.rows {
		if f.rows[i].ID == reviewer.ID {
			f.rows[i] = *reviewer
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (f *fakeReviewerRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Reviewer, error) {
	for _, row := range f.rows {
		if row.ID == id {
			r := row
			return &r, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeReviewerRepo) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Reviewer, error) {
	return f.FindByID(ctx, id)
}

func (f *fakeReviewerRepo) ListByReview(_ context.Context, reviewID uuid.UUID) ([]model.Reviewer, error) {
	var out []model.Reviewer
	for _, row := range f.rows {
		if row.ReviewID == reviewID {
			out = append(out, row)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Level < out[j].Level })
	return out, nil
}

func (f *fakeReviewerRepo) ListUnreviewedByReview(ctx context.Context, reviewID uuid.UUID) ([]model.Reviewer, error) {
	all, _ := f.ListByReview(ctx, reviewID)
	var out []model.Reviewer
	for _, a := range all {
		if !a.Reviewed {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeReviewerRepo) Exists(_ context.Context, reviewID, userID uuid.UUID) (bool, error) {
	for _, row := range f.rows {
		if row.ReviewID == reviewID && row.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

type fakeAuditRepo struct {
	entries []model.AuditLog
}

func (f *fakeAuditRepo) Log(_ context.Context, entry *model.AuditLog) error {
	f.entries = append(f.entries, *entry)
	return nil
}

func (f *fakeAuditRepo) List(_ context.Context, page, limit int) ([]model.AuditLog, int64, error) {
	return f.entries, int64(len(f.entries)), nil
}

func (f *fakeAuditRepo) actions() []string {
	out := make([]string, 0, len(f.entries))
	for _, e := range f.entries {
		out = append(out, e.Action)
	}
	return out
}

type fakePurchaseOrderRepo struct {
	rows map[uuid.UUID]model.PurchaseOrder
}

func newFakePurchaseOrderRepo() *fakePurchaseOrderRepo {
	return &fakePurchaseOrderRepo{rows: map[uuid.UUID]model.PurchaseOrder{}}
}

func (f *fakePurchaseOrderRepo) Create(_ context.Context, order *model.PurchaseOrder) error {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	if order.ReviewStatus == "" {
		// same 'PENDING' column default as on model reviews
		order.ReviewStatus = model.ReviewPending
	}
	order.CreatedAt = time.Now().UTC()
	f.rows[order.ID] = *order
	return nil
}

func (f *fakePurchaseOrderRepo) Save(_ context.Context, order *model.PurchaseOrder) error {
	f.rows[order.ID] = *order
	return nil
}

func (f *fakePurchaseOrderRepo) FindByID(_ context.Context, id uuid.UUID) (*model.PurchaseOrder, error) {
	row, ok := f.rows[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &row, nil
}

func (f *fakePurchaseOrderRepo) List(_ context.Context, status string, page, limit int) ([]model.PurchaseOrder, int64, error) {
	var out []model.PurchaseOrder
	for _, row := range f.rows {
		if status == "" || row.ReviewStatus == status {
			out = append(out, row)
		}
	}
	return out, int64(len(out)), nil
}

type fakeNotifier struct {
	requested [][]model.Reviewer
	completed []string
}

func (f *fakeNotifier) RequestForReview(_ context.Context, _ *moderation.TypeConfig, _ *model.ModelReview, assignments []model.Reviewer) {
	f.requested = append(f.requested, assignments)
}

func (f *fakeNotifier) ReviewComplete(_ context.Context, _ *moderation.TypeConfig, review *model.ModelReview) {
	f.completed = append(f.completed, review.ReviewStatus)
}

// fixture wires the moderation stack over the in-memory doubles with
// purchase orders as the registered type.
type fixture struct {
	reviews   *fakeReviewRepo
	reviewers *fakeReviewerRepo
	audits    *fakeAuditRepo
	orders    *fakePurchaseOrderRepo
	notifier  *fakeNotifier
	registry  *moderation.Registry
	cfg       *moderation.TypeConfig

	service   ReviewService
	intercept InterceptService

	// specs feeds the set-reviewers hook; sideEffects counts hook runs.
	specs       []moderation.ReviewerSpec
	sideEffects int
}

func newFixture() *fixture {
	f := &fixture{
		reviewers: newFakeReviewerRepo(),
		audits:    &fakeAuditRepo{},
		orders:    newFakePurchaseOrderRepo(),
		notifier:  &fakeNotifier{},
		registry:  moderation.NewRegistry(),
	}
	f.reviews = newFakeReviewRepo(f.reviewers)

	f.cfg = PurchaseOrderTypeConfig(f.orders)
	f.cfg.SetReviewers = func(ctx context.Context, review *model.ModelReview, obj moderation.Approvable) ([]moderation.ReviewerSpec, error) {
		return f.specs, nil
	}
	f.cfg.SideEffect = func(ctx context.Context, review *model.ModelReview, obj moderation.Approvable) error {
		f.sideEffects++
		return nil
	}
	if err := f.registry.Register(f.cfg); err != nil {
		panic(err)
	}

	f.service = NewReviewService(f.registry, f.reviews, f.reviewers, f.audits, passTxm{}, f.notifier)
	f.intercept = NewInterceptService(f.registry, f.reviews, f.audits, passTxm{}, f.service, DiffBaselineSandbox)
	return f
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// createOrder routes a new order through the interception engine and returns
// the order together with its seeded review.
func (f *fixture) createOrder(ctx context.Context, owner uuid.UUID) (*model.PurchaseOrder, *model.ModelReview) {
	order := &model.PurchaseOrder{
		OrderCode: "PO-TEST-" + uuid.NewString()[:8],
		Supplier:  "Acme Corp",
		Amount:    mustDecimal("1500.00"),
		UserID:    &owner,
	}
	review, err := f.intercept.Create(ctx, PurchaseOrderTag, order)
	if err != nil {
		panic(err)
	}
	return order, review
}

// assignment finds the stored reviewer row for one user on one review.
func (f *fixture) assignment(reviewID, userID uuid.UUID) *model.Reviewer {
	for _, row := range f.reviewers.rows {
		if row.ReviewID == reviewID && row.UserID == userID {
			r := row
			return &r
		}
	}
	return nil
}
