package core

import (
	"context"

	"github.com/roomviz/roomviz-backend/internal/billing"
	"github.com/roomviz/roomviz-backend/internal/credits"
	"github.com/roomviz/roomviz-backend/internal/models"
)

// UserService defines the interface for account-related operations.
type UserService interface {
	// GetOrCreate retrieves an account by ID, creating it on first sign-in.
	// The one-time signup bonus is granted here.
	GetOrCreate(ctx context.Context, userID, email, displayName, photoURL string) (*models.Account, bool, error)
	GetByID(ctx context.Context, userID string) (*models.Account, error)
	GetEntitlement(ctx context.Context, userID string) (credits.Entitlement, error)
	// AdjustCredits applies an admin back-office change and records it in the audit log.
	AdjustCredits(ctx context.Context, actorID, userID string, req models.AdjustCreditsRequest) (*models.Account, error)
}

// BillingService defines the interface for Stripe-related operations.
type BillingService interface {
	CreateCheckoutSession(ctx context.Context, userID string, req models.CheckoutRequest) (*CheckoutSession, error)
	CreatePortalSession(ctx context.Context, userID string) (string, error)
	// HandleStripeWebhook verifies and applies one webhook delivery.
	HandleStripeWebhook(ctx context.Context, payload []byte, signatureHeader string) (Outcome, error)
	// ProcessEvent applies an already verified event.
	ProcessEvent(ctx context.Context, evt billing.Event) (Outcome, error)
}

// GenerationService gates calls to the external generator on the ledger.
type GenerationService interface {
	Generate(ctx context.Context, userID string, req models.GenerateRequest) (*GenerationResult, error)
	ListGenerations(ctx context.Context, userID string, paginationParams map[string]string) ([]*models.Generation, error)
}

// AuditService defines the interface for audit logging operations.
type AuditService interface {
	CreateAuditLog(ctx context.Context, logEntry models.AuditLog) error
}

// Generator is the external image-generation service.
type Generator interface {
	Generate(ctx context.Context, req models.GenerateRequest) (artifactURL string, err error)
}

// LedgerPublisher fans ledger changes out to downstream consumers.
type LedgerPublisher interface {
	PublishLedgerEvent(ctx context.Context, evt models.LedgerEvent) error
}

// OperatorAlerter notifies operators of anomalies that need a human.
type OperatorAlerter interface {
	Alert(ctx context.Context, subject, body string) error
}
