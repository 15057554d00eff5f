package service

import (
	"context"
	"fmt"
	"time"

	"model-review-api/internal/model"
	"model-review-api/internal/moderation"
	"model-review-api/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PurchaseOrderTag is the registered content-type tag for purchase orders.
const PurchaseOrderTag = "purchase_order"

// --- DTOs ---

type CreatePurchaseOrderRequest struct {
	Supplier    string `json:"supplier" binding:"required"`
	Description string `json:"description"`
	Amount      string `json:"amount" binding:"required"`
}

type UpdatePurchaseOrderRequest struct {
	Supplier    string `json:"supplier"`
	Description string `json:"description"`
	Amount      string `json:"amount"`
}

type PurchaseOrderResponse struct {
	ID           string  `json:"id"`
	OrderCode    string  `json:"order_code"`
	Supplier     string  `json:"supplier"`
	Description  string  `json:"description"`
	Amount       string  `json:"amount"`
	UserID       *string `json:"user_id"`
	Username     string  `json:"username,omitempty"`
	ReviewStatus string  `json:"review_status"`
	ReviewDate   *string `json:"review_date"`
	ReviewReason string  `json:"review_reason,omitempty"`
	CreatedAt    string  `json:"created_at"`
}

// --- Interface ---

// PurchaseOrderService is the built-in approvable type's business logic.
// Every write is routed through the interception engine, so monitored-field
// edits on pending orders land in the review sandbox instead of the live row.
type PurchaseOrderService interface {
	Create(ctx context.Context, userID uuid.UUID, req CreatePurchaseOrderRequest) (*PurchaseOrderResponse, error)
	Update(ctx context.Context, id string, req UpdatePurchaseOrderRequest) (*PurchaseOrderResponse, error)
	GetByID(ctx context.Context, id string) (*PurchaseOrderResponse, error)
	List(ctx context.Context, status string, page, limit int) ([]PurchaseOrderResponse, int64, error)
}

type purchaseOrderService struct {
	orders      repository.PurchaseOrderRepository
	interceptor InterceptService
}

func NewPurchaseOrderService(orders repository.PurchaseOrderRepository, interceptor InterceptService) PurchaseOrderService {
	return &purchaseOrderService{orders: orders, interceptor: interceptor}
}

// --- Implementation ---

func (s *purchaseOrderService) Create(ctx context.Context, userID uuid.UUID, req CreatePurchaseOrderRequest) (*PurchaseOrderResponse, error) {
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount: %w", err)
	}

	order := &model.PurchaseOrder{
		OrderCode:   generateOrderCode(),
		Supplier:    req.Supplier,
		Description: req.Description,
		Amount:      amount,
	}
	if userID != uuid.Nil {
		order.UserID = &userID
	}

	if _, err := s.interceptor.Create(ctx, PurchaseOrderTag, order); err != nil {
		return nil, err
	}

	return s.GetByID(ctx, order.ID.String())
}

func (s *purchaseOrderService) Update(ctx context.Context, id string, req UpdatePurchaseOrderRequest) (*PurchaseOrderResponse, error) {
	orderID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid purchase order id: %w", err)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("purchase order not found: %w", err)
	}

	if req.Supplier != "" {
		order.Supplier = req.Supplier
	}
	if req.Description != "" {
		order.Description = req.Description
	}
	if req.Amount != "" {
		amount, parseErr := decimal.NewFromString(req.Amount)
		if parseErr != nil {
			return nil, fmt.Errorf("invalid amount: %w", parseErr)
		}
		order.Amount = amount
	}

	if _, err := s.interceptor.Update(ctx, PurchaseOrderTag, order); err != nil {
		return nil, err
	}

	return s.GetByID(ctx, id)
}

func (s *purchaseOrderService) GetByID(ctx context.Context, id string) (*PurchaseOrderResponse, error) {
	orderID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid purchase order id: %w", err)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("purchase order not found: %w", err)
	}
	resp := toPurchaseOrderResponse(order)
	return &resp, nil
}

func (s *purchaseOrderService) List(ctx context.Context, status string, page, limit int) ([]PurchaseOrderResponse, int64, error) {
	orders, total, err := s.orders.List(ctx, status, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list purchase orders: %w", err)
	}

	responses := make([]PurchaseOrderResponse, 0, len(orders))
	for i := range orders {
		responses = append(responses, toPurchaseOrderResponse(&orders[i]))
	}
	return responses, total, nil
}

// --- Registration ---

// PurchaseOrderTypeConfig builds the moderation registration for purchase
// orders. Reviewer assignment and escalation hooks are supplied by the
// caller so wiring stays in main.
func PurchaseOrderTypeConfig(orders repository.PurchaseOrderRepository) *moderation.TypeConfig {
	return &moderation.TypeConfig{
		Tag:             PurchaseOrderTag,
		MonitoredFields: []string{"supplier", "description", "amount"},
		Load: func(ctx context.Context, id uuid.UUID) (moderation.Approvable, error) {
			return orders.FindByID(ctx, id)
		},
		Save: func(ctx context.Context, obj moderation.Approvable) error {
			order := obj.(*model.PurchaseOrder)
			if order.ID == uuid.Nil {
				return orders.Create(ctx, order)
			}
			return orders.Save(ctx, order)
		},
		Fields: func(obj moderation.Approvable) map[string]interface{} {
			order := obj.(*model.PurchaseOrder)
			return map[string]interface{}{
				"supplier":    order.Supplier,
				"description": order.Description,
				"amount":      order.Amount,
			}
		},
		ApplyFields: func(obj moderation.Approvable, values map[string]interface{}) error {
			order := obj.(*model.PurchaseOrder)
			if v, ok := values["supplier"]; ok {
				order.Supplier = fmt.Sprint(v)
			}
			if v, ok := values["description"]; ok {
				order.Description = fmt.Sprint(v)
			}
			if v, ok := values["amount"]; ok {
				amount, err := toDecimal(v)
				if err != nil {
					return fmt.Errorf("invalid sandboxed amount: %w", err)
				}
				order.Amount = amount
			}
			return nil
		},
	}
}

// toDecimal accepts the shapes an amount takes after a JSONB round-trip.
func toDecimal(v interface{}) (decimal.Decimal, error) {
	switch value := v.(type) {
	case decimal.Decimal:
		return value, nil
	case string:
		return decimal.NewFromString(value)
	case float64:
		return decimal.NewFromFloat(value), nil
	default:
		return decimal.Zero, fmt.Errorf("unsupported amount type %T", v)
	}
}

func generateOrderCode() string {
	return fmt.Sprintf("PO-%s-%s", time.Now().Format("20060102"), uuid.NewString()[:8])
}

func toPurchaseOrderResponse(order *model.PurchaseOrder) PurchaseOrderResponse {
	resp := PurchaseOrderResponse{
		ID:           order.ID.String(),
		OrderCode:    order.OrderCode,
		Supplier:     order.Supplier,
		Description:  order.Description,
		Amount:       order.Amount.String(),
		ReviewStatus: order.ReviewStatus,
		ReviewReason: order.ReviewReason,
		CreatedAt:    order.CreatedAt.Format(time.RFC3339),
	}
	if order.UserID != nil {
		id := order.UserID.String()
		resp.UserID = &id
	}
	if order.User != nil {
		resp.Username = order.User.Username
	}
	if order.ReviewDate != nil {
		d := order.ReviewDate.Format(time.RFC3339)
		resp.ReviewDate = &d
	}
	return resp
}
