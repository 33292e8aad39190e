package api

import (
	"github.com/roomviz/roomviz-backend/internal/credits"
	"github.com/roomviz/roomviz-backend/internal/models"
)

// ErrorResponse is a generic structure for returning errors via API.
type ErrorResponse struct {
	Error   string `json:"error"`             // A high-level error message or code
	Details string `json:"details,omitempty"` // More specific details about the error, if available
}

// ProfileResponse is returned by the profile endpoints.
type ProfileResponse struct {
	Account     *models.Account     `json:"account"`
	Entitlement credits.Entitlement `json:"entitlement"`
}

// GenerateResponse is returned by POST /generations. Warning is set when the
// image was produced but the credit could not be deducted.
type GenerateResponse struct {
	Generation  *models.Generation  `json:"generation"`
	Entitlement credits.Entitlement `json:"entitlement"`
	Warning     string              `json:"warning,omitempty"`
}

// ListGenerationsResponse is a page of generation history.
type ListGenerationsResponse struct {
	Generations []*models.Generation `json:"generations"`
	NextCursor  string               `json:"nextCursor,omitempty"`
}

// CreateCheckoutSessionResponse carries the Stripe Checkout session.
type CreateCheckoutSessionResponse struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

// CreatePortalSessionResponse returns the URL for the Stripe Customer Portal.
type CreatePortalSessionResponse struct {
	URL string `json:"url"`
}

// WebhookAck acknowledges a Stripe delivery.
type WebhookAck struct {
	Received bool   `json:"received"`
	Outcome  string `json:"outcome,omitempty"`
}

// CatalogResponse lists what can be bought.
type CatalogResponse struct {
	Packages []credits.Package `json:"packages"`
}
