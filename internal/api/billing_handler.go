package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/roomviz/roomviz-backend/internal/core"
	"github.com/roomviz/roomviz-backend/internal/models"
)

// Webhook bodies above this are refused with 413.
const maxWebhookBody = 1 << 20

// BillingHandler handles billing-related API endpoints.
type BillingHandler struct {
	billingService core.BillingService
	logger         *zap.Logger
}

// NewBillingHandler creates a new BillingHandler.
func NewBillingHandler(bs core.BillingService, logger *zap.Logger) *BillingHandler {
	return &BillingHandler{billingService: bs, logger: logger}
}

// mapBillingErrorToStatus maps errors from core.BillingService to HTTP status codes and ErrorResponse.
func mapBillingErrorToStatus(c *gin.Context, logger *zap.Logger, err error) {
	var statusCode int
	var errResponse ErrorResponse

	switch {
	case errors.Is(err, core.ErrPlanNotFound):
		statusCode = http.StatusNotFound
		errResponse = ErrorResponse{Error: "Plan or Price not found", Details: err.Error()}
	case errors.Is(err, core.ErrInvalidCheckout):
		statusCode = http.StatusBadRequest
		errResponse = ErrorResponse{Error: "Invalid checkout request", Details: err.Error()}
	case errors.Is(err, core.ErrAlreadySubscribed):
		statusCode = http.StatusConflict
		errResponse = ErrorResponse{Error: "Already subscribed", Details: "Use the billing portal to change plans."}
	case errors.Is(err, core.ErrStripeClient):
		statusCode = http.StatusServiceUnavailable
		errResponse = ErrorResponse{Error: "Payment provider error", Details: "Could not complete the operation with the payment provider."}
		logger.Error("Stripe client error", zap.Error(err))
	case errors.Is(err, core.ErrWebhookSignature):
		statusCode = http.StatusBadRequest
		errResponse = ErrorResponse{Error: "Webhook signature verification failed"}
	case errors.Is(err, core.ErrUserStripeNotLinked):
		statusCode = http.StatusBadRequest
		errResponse = ErrorResponse{Error: "User not linked to payment provider", Details: err.Error()}
	case errors.Is(err, core.ErrUserNotFound):
		statusCode = http.StatusNotFound
		errResponse = ErrorResponse{Error: "User profile not found"}
	default:
		logger.Error("Internal Server Error in BillingHandler", zap.Error(err))
		statusCode = http.StatusInternalServerError
		errResponse = ErrorResponse{Error: "An unexpected internal server error occurred."}
	}
	c.JSON(statusCode, errResponse)
}

// CreateCheckoutSession handles POST /api/v1/billing/checkout.
func (h *BillingHandler) CreateCheckoutSession(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req models.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request payload", Details: err.Error()})
		return
	}

	session, err := h.billingService.CreateCheckoutSession(c.Request.Context(), userID, req)
	if err != nil {
		mapBillingErrorToStatus(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, CreateCheckoutSessionResponse{SessionID: session.ID, URL: session.URL})
}

// CreatePortalSession handles POST /api/v1/billing/portal.
func (h *BillingHandler) CreatePortalSession(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	portalURL, err := h.billingService.CreatePortalSession(c.Request.Context(), userID)
	if err != nil {
		mapBillingErrorToStatus(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, CreatePortalSessionResponse{URL: portalURL})
}

// HandleStripeWebhook handles POST /api/v1/billing/webhooks/stripe. It is
// public; Stripe authenticates with the Stripe-Signature header.
//
// Dropped events are acknowledged with 200 so Stripe stops redelivering
// them. Storage failures answer 500 and are retried by Stripe.
func (h *BillingHandler) HandleStripeWebhook(c *gin.Context) {
	signature := c.GetHeader("Stripe-Signature")
	if signature == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Missing Stripe-Signature header"})
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.logger.Error("Stripe webhook body exceeds limit", zap.Int64("limit", tooLarge.Limit))
			c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: "Webhook payload too large"})
			return
		}
		h.logger.Error("Failed to read Stripe webhook body", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "Failed to read webhook payload"})
		return
	}

	outcome, err := h.billingService.HandleStripeWebhook(c.Request.Context(), payload, signature)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, WebhookAck{Received: true, Outcome: string(outcome)})
	case core.IsTerminalBillingError(err):
		c.JSON(http.StatusOK, WebhookAck{Received: true, Outcome: string(core.OutcomeDropped)})
	default:
		mapBillingErrorToStatus(c, h.logger, err)
	}
}
