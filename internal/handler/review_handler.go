package handler

import (
	"errors"
	"net/http"

	"model-review-api/internal/middleware"
	"model-review-api/internal/service"
	"model-review-api/pkg/pagination"
	"model-review-api/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type ReviewHandler struct {
	reviewService service.ReviewService
}

func NewReviewHandler(reviewService service.ReviewService) *ReviewHandler {
	return &ReviewHandler{reviewService: reviewService}
}

func (h *ReviewHandler) RegisterRoutes(router *gin.RouterGroup) {
	reviews := router.Group("/api/reviews")
	reviews.Use(middleware.RequireRole("admin", "manager", "staff"))
	{
		reviews.GET("", h.ListPending)
		reviews.GET("/:id", h.GetReview)
		reviews.POST("/:id/submit", h.SubmitDecision)
		reviews.POST("/bulk", h.SubmitBatch)
	}
}

type submitDecisionRequest struct {
	ReviewerID string `json:"reviewer_id" binding:"required"`
	Decision   string `json:"decision" binding:"required"`
	Reason     string `json:"reason"`
	Comments   string `json:"comments"`
}

type batchItemRequest struct {
	ReviewID   string `json:"review_id" binding:"required"`
	ReviewerID string `json:"reviewer_id" binding:"required"`
	Decision   string `json:"decision" binding:"required"`
	Reason     string `json:"reason"`
	Comments   string `json:"comments"`
}

type submitBatchRequest struct {
	Items []batchItemRequest `json:"items" binding:"required,min=1"`
}

// ListPending returns the acting user's review inbox
// @Summary      List pending reviews
// @Description  Returns reviews awaiting the authenticated user's decision
// @Tags         reviews
// @Security     BearerAuth
// @Produce      json
// @Param        page   query     int  false  "Page number (default 1)"
// @Param        limit  query     int  false  "Number of items per page (default 20)"
// @Success      200    {object}  response.Response{data=object}
// @Router       /api/reviews [get]
func (h *ReviewHandler) ListPending(c *gin.Context) {
	userID, ok := actingUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Invalid user identity"))
		return
	}

	params := pagination.Parse(c)
	reviews, total, err := h.reviewService.ListPending(c.Request.Context(), userID, params.Page, params.Limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, map[string]interface{}{
		"reviews": reviews,
		"total":   total,
		"page":    params.Page,
		"limit":   params.Limit,
	}))
}

// GetReview returns one review with sandbox and reviewer assignments
// @Summary      Get review detail
// @Tags         reviews
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Review ID"
// @Success      200  {object}  response.Response{data=service.ReviewResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/reviews/{id} [get]
func (h *ReviewHandler) GetReview(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid review id"))
		return
	}

	review, err := h.reviewService.GetReview(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, response.Error(http.StatusNotFound, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, review))
}

// SubmitDecision applies the acting user's decision on one review
// @Summary      Submit a review decision
// @Description  Applies one reviewer's APPROVED/REJECTED decision. Validation failures come back in the errors map with nothing mutated.
// @Tags         reviews
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                 true  "Review ID"
// @Param        payload  body      submitDecisionRequest  true  "Decision payload"
// @Success      200      {object}  response.Response{data=service.ReviewResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/reviews/{id}/submit [post]
func (h *ReviewHandler) SubmitDecision(c *gin.Context) {
	reviewID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid review id"))
		return
	}

	var req submitDecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	reviewerID, err := uuid.Parse(req.ReviewerID)
	if err != nil {
		c.JSON(http.StatusOK, response.Invalid(http.StatusOK, map[string]string{"reviewer": "invalid reviewer id"}))
		return
	}

	userID, ok := actingUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Invalid user identity"))
		return
	}

	result, err := h.reviewService.SubmitDecision(c.Request.Context(), service.SubmitDecisionInput{
		ReviewID:   reviewID,
		ReviewerID: reviewerID,
		ActingUser: userID,
		Decision:   req.Decision,
		Reason:     req.Reason,
		Comments:   req.Comments,
	})
	if err != nil {
		var verr *service.ValidationError
		if errors.As(err, &verr) {
			c.JSON(http.StatusOK, response.Invalid(http.StatusOK, verr.Fields))
			return
		}
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// SubmitBatch applies a batch of decisions, isolating per-item failures
// @Summary      Submit decisions in bulk
// @Description  Applies each decision independently and reports per-item results; partial success is expected.
// @Tags         reviews
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      submitBatchRequest  true  "Batch payload"
// @Success      200      {object}  response.Response{data=object}
// @Failure      400      {object}  response.Response
// @Router       /api/reviews/bulk [post]
func (h *ReviewHandler) SubmitBatch(c *gin.Context) {
	var req submitBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	userID, ok := actingUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Invalid user identity"))
		return
	}

	items := make([]service.SubmitDecisionInput, 0, len(req.Items))
	for _, item := range req.Items {
		input := service.SubmitDecisionInput{
			Decision: item.Decision,
			Reason:   item.Reason,
			Comments: item.Comments,
		}
		// Unparseable ids still flow through so the batch reports them per-item
		input.ReviewID, _ = uuid.Parse(item.ReviewID)
		input.ReviewerID, _ = uuid.Parse(item.ReviewerID)
		items = append(items, input)
	}

	results := h.reviewService.SubmitBatch(c.Request.Context(), userID, items)

	c.JSON(http.StatusOK, response.Success(http.StatusOK, map[string]interface{}{
		"results": results,
	}))
}

// actingUserID extracts the authenticated user's UUID set by the auth middleware.
func actingUserID(c *gin.Context) (uuid.UUID, bool) {
	raw, exists := c.Get("userID")
	if !exists {
		return uuid.Nil, false
	}
	idStr, ok := raw.(string)
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
