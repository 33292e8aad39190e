package db

import (
	"context"

	"github.com/roomviz/roomviz-backend/internal/models"
)

// MutateFunc changes an account in place. Returning an error aborts the
// transaction and nothing is written. It may run more than once when the
// backing store retries on contention, always against a fresh snapshot.
type MutateFunc func(account *models.Account) error

// AccountRepository defines the storage operations on accounts.
// Every ledger change goes through Mutate or MutateOnce so the
// read-modify-write is atomic per account.
type AccountRepository interface {
	GetByID(ctx context.Context, userID string) (*models.Account, error)
	GetByStripeCustomerID(ctx context.Context, customerID string) (*models.Account, error)
	Create(ctx context.Context, account *models.Account) error
	// UpdateProfile writes email, display name and photo URL only.
	UpdateProfile(ctx context.Context, account *models.Account) error
	Mutate(ctx context.Context, userID string, fn MutateFunc) (*models.Account, error)
	// MutateOnce applies fn and records event as processed in one transaction.
	// It returns ErrEventAlreadyProcessed, without calling fn, when event.ID was
	// recorded before.
	MutateOnce(ctx context.Context, event models.BillingEventRecord, userID string, fn MutateFunc) (*models.Account, error)
}

// GenerationRepository stores the generation history of each user.
type GenerationRepository interface {
	Create(ctx context.Context, generation *models.Generation) (string, error)
	ListByOwner(ctx context.Context, ownerID string, paginationParams map[string]string) ([]*models.Generation, error)
}

// AuditRepository defines the interface for audit log data storage operations.
type AuditRepository interface {
	Create(ctx context.Context, logEntry models.AuditLog) error
}
