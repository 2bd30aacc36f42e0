package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/movra/payout-service/internal/model"
	"github.com/movra/payout-service/internal/repository"
	"github.com/movra/payout-service/internal/service"
	"go.uber.org/zap"
)

// Pinger reports whether a dependency is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// HTTPHandler handles HTTP requests
type HTTPHandler struct {
	payoutService *service.PayoutService
	store         Pinger
	logger        *zap.Logger
}

// NewHTTPHandler creates a new HTTPHandler
func NewHTTPHandler(payoutService *service.PayoutService, store Pinger, logger *zap.Logger) *HTTPHandler {
	return &HTTPHandler{
		payoutService: payoutService,
		store:         store,
		logger:        logger,
	}
}

// SetupRoutes configures the HTTP routes
func (h *HTTPHandler) SetupRoutes(r *gin.Engine) {
	// Health check
	r.GET("/health", h.Health)
	r.GET("/ready", h.Ready)

	payouts := r.Group("/payouts")
	{
		payouts.POST("", h.CreatePayout)
		payouts.GET("", h.ListPayouts)
		payouts.GET("/:id", h.GetPayout)
		payouts.PATCH("/:id", h.PartialUpdatePayout)
		payouts.PUT("/:id", h.UpdatePayout)
		payouts.DELETE("/:id", h.DeletePayout)
	}
}

// Health returns the health status
func (h *HTTPHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "payout-service",
	})
}

// Ready reports ready once the payout store answers
func (h *HTTPHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		h.logger.Warn("Store not reachable", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "unavailable",
			"service": "payout-service",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "ready",
		"service": "payout-service",
	})
}

// PayoutResponse is the wire form of a payout
type PayoutResponse struct {
	ID               string                 `json:"id"`
	Amount           string                 `json:"amount"`
	Currency         model.Currency         `json:"currency"`
	RecipientDetails model.RecipientDetails `json:"recipient_details"`
	Status           model.PayoutStatus     `json:"status"`
	Comment          string                 `json:"comment"`
	CreatedAt        time.Time              `json:"created_at"`
	UpdatedAt        time.Time              `json:"updated_at"`
}

func toResponse(p *model.Payout) PayoutResponse {
	return PayoutResponse{
		ID:               p.ID,
		Amount:           p.Amount.StringFixed(model.AmountDecimalPlaces),
		Currency:         p.Currency,
		RecipientDetails: p.RecipientDetails,
		Status:           p.Status,
		Comment:          p.Comment,
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
	}
}

type createPayoutBody struct {
	Amount           json.RawMessage `json:"amount"`
	Currency         json.RawMessage `json:"currency"`
	RecipientDetails json.RawMessage `json:"recipient_details"`
	Comment          json.RawMessage `json:"comment"`
}

type updatePayoutBody struct {
	Status  json.RawMessage `json:"status"`
	Comment json.RawMessage `json:"comment"`
}

// CreatePayout creates a payout and queues it for processing
func (h *HTTPHandler) CreatePayout(c *gin.Context) {
	var body createPayoutBody
	if err := c.ShouldBindJSON(&body); err != nil {
		abortWithError(c, http.StatusBadRequest, service.NonFieldErrors, "JSON parse error.", "parse_error")
		return
	}

	payout, err := h.payoutService.CreatePayout(c.Request.Context(), &service.CreatePayoutRequest{
		Amount:           scalar(body.Amount),
		Currency:         scalar(body.Currency),
		RecipientDetails: body.RecipientDetails,
		Comment:          scalar(body.Comment),
	})
	if err != nil {
		h.handleError(c, "Failed to create payout", err)
		return
	}

	c.JSON(http.StatusCreated, toResponse(payout))
}

// ListPayouts lists payouts, newest first
func (h *HTTPHandler) ListPayouts(c *gin.Context) {
	filter := repository.PayoutFilter{
		Status:   model.PayoutStatus(c.Query("status")),
		Currency: model.Currency(c.Query("currency")),
	}

	var ok bool
	if filter.Limit, ok = queryInt(c, "limit"); !ok {
		return
	}
	if filter.Offset, ok = queryInt(c, "offset"); !ok {
		return
	}

	payouts, err := h.payoutService.ListPayouts(c.Request.Context(), filter)
	if err != nil {
		h.handleError(c, "Failed to list payouts", err)
		return
	}

	resp := make([]PayoutResponse, len(payouts))
	for i, p := range payouts {
		resp[i] = toResponse(p)
	}
	c.JSON(http.StatusOK, resp)
}

// GetPayout retrieves one payout
func (h *HTTPHandler) GetPayout(c *gin.Context) {
	payout, err := h.payoutService.GetPayout(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleError(c, "Failed to get payout", err)
		return
	}
	c.JSON(http.StatusOK, toResponse(payout))
}

// PartialUpdatePayout handles PATCH: every field is optional
func (h *HTTPHandler) PartialUpdatePayout(c *gin.Context) {
	h.update(c, false)
}

// UpdatePayout handles PUT: status is required
func (h *HTTPHandler) UpdatePayout(c *gin.Context) {
	h.update(c, true)
}

func (h *HTTPHandler) update(c *gin.Context, requireStatus bool) {
	var body updatePayoutBody
	if err := c.ShouldBindJSON(&body); err != nil {
		abortWithError(c, http.StatusBadRequest, service.NonFieldErrors, "JSON parse error.", "parse_error")
		return
	}

	payout, err := h.payoutService.UpdatePayout(c.Request.Context(), c.Param("id"), &service.UpdatePayoutRequest{
		Status:        scalar(body.Status),
		Comment:       scalar(body.Comment),
		RequireStatus: requireStatus,
	})
	if err != nil {
		h.handleError(c, "Failed to update payout", err)
		return
	}
	c.JSON(http.StatusOK, toResponse(payout))
}

// DeletePayout removes a payout unconditionally
func (h *HTTPHandler) DeletePayout(c *gin.Context) {
	if err := h.payoutService.DeletePayout(c.Request.Context(), c.Param("id")); err != nil {
		h.handleError(c, "Failed to delete payout", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *HTTPHandler) handleError(c *gin.Context, msg string, err error) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		abortWithValidation(c, verr)
	case service.IsNotFound(err):
		abortNotFound(c)
	default:
		h.logger.Error(msg, zap.String("payoutId", c.Param("id")), zap.Error(err))
		abortInternal(c)
	}
}

// scalar turns a raw JSON value into its text form. Absent and null give
// nil; strings are unquoted; anything else is passed through literally so
// validation can reject it with a field error.
func scalar(raw json.RawMessage) *string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return &s
	}
	s = string(raw)
	return &s
}

func queryInt(c *gin.Context, key string) (int, bool) {
	v := c.Query(key)
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		abortWithError(c, http.StatusBadRequest, key, "A valid non-negative integer is required.", "invalid")
		return 0, false
	}
	return n, true
}
