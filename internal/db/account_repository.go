package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/roomviz/roomviz-backend/internal/models"
)

const (
	usersCollection         = "users"
	billingEventsCollection = "billingEvents"
)

// firestoreAccountRepository implements AccountRepository using Firestore.
type firestoreAccountRepository struct {
	client *firestore.Client
	now    func() time.Time
}

// NewFirestoreAccountRepository creates a new instance of firestoreAccountRepository.
func NewFirestoreAccountRepository(client *firestore.Client) AccountRepository {
	if client == nil {
		panic("Firestore client is not initialized for AccountRepository")
	}
	return &firestoreAccountRepository{client: client, now: time.Now}
}

// Create adds a new account document. The account ID (Firebase Auth UID) is the document ID.
func (r *firestoreAccountRepository) Create(ctx context.Context, account *models.Account) error {
	if account.ID == "" {
		return errors.New("account ID cannot be empty for Create operation")
	}
	_, err := r.client.Collection(usersCollection).Doc(account.ID).Create(ctx, account)
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return fmt.Errorf("account with ID '%s': %w", account.ID, ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create account with ID '%s': %w", account.ID, err)
	}
	return nil
}

// GetByID retrieves an account by its ID (Firebase Auth UID).
func (r *firestoreAccountRepository) GetByID(ctx context.Context, userID string) (*models.Account, error) {
	if userID == "" {
		return nil, errors.New("userID cannot be empty for GetByID operation")
	}
	docSnap, err := r.client.Collection(usersCollection).Doc(userID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, fmt.Errorf("account with ID '%s' not found: %w", userID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get account with ID '%s': %w", userID, err)
	}
	return decodeAccount(docSnap)
}

// GetByStripeCustomerID resolves the account linked to a Stripe customer.
func (r *firestoreAccountRepository) GetByStripeCustomerID(ctx context.Context, customerID string) (*models.Account, error) {
	if customerID == "" {
		return nil, errors.New("customerID cannot be empty for GetByStripeCustomerID operation")
	}
	iter := r.client.Collection(usersCollection).Where("stripeCustomerId", "==", customerID).Limit(1).Documents(ctx)
	defer iter.Stop()

	doc, err := iter.Next()
	if err == iterator.Done {
		return nil, fmt.Errorf("account for Stripe customer '%s' not found: %w", customerID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query account for Stripe customer '%s': %w", customerID, err)
	}
	return decodeAccount(doc)
}

// UpdateProfile writes the identity fields coming from Firebase Auth.
// Ledger fields are never written here.
func (r *firestoreAccountRepository) UpdateProfile(ctx context.Context, account *models.Account) error {
	if account.ID == "" {
		return errors.New("account ID cannot be empty for UpdateProfile operation")
	}
	_, err := r.client.Collection(usersCollection).Doc(account.ID).Update(ctx, []firestore.Update{
		{Path: "email", Value: account.Email},
		{Path: "displayName", Value: account.DisplayName},
		{Path: "photoURL", Value: account.PhotoURL},
		{Path: "updatedAt", Value: firestore.ServerTimestamp},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return fmt.Errorf("account with ID '%s' not found: %w", account.ID, ErrNotFound)
		}
		return fmt.Errorf("failed to update profile of account '%s': %w", account.ID, err)
	}
	return nil
}

// Mutate runs fn inside a Firestore transaction against the latest snapshot of
// the account document and writes back the ledger and plan fields.
func (r *firestoreAccountRepository) Mutate(ctx context.Context, userID string, fn MutateFunc) (*models.Account, error) {
	ref := r.client.Collection(usersCollection).Doc(userID)
	var result *models.Account
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		account, err := getAccountTx(tx, ref)
		if err != nil {
			return err
		}
		if err := fn(account); err != nil {
			return err
		}
		if err := tx.Update(ref, ledgerUpdates(account)); err != nil {
			return err
		}
		result = account
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("mutate account '%s': %w", userID, err)
	}
	return result, nil
}

// MutateOnce is Mutate plus an insert of the billing event marker. Firestore
// requires all reads before writes, so both documents are read first.
func (r *firestoreAccountRepository) MutateOnce(ctx context.Context, event models.BillingEventRecord, userID string, fn MutateFunc) (*models.Account, error) {
	if event.ID == "" {
		return nil, errors.New("billing event ID cannot be empty for MutateOnce operation")
	}
	ref := r.client.Collection(usersCollection).Doc(userID)
	eventRef := r.client.Collection(billingEventsCollection).Doc(event.ID)

	var result *models.Account
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(eventRef); err == nil {
			return ErrEventAlreadyProcessed
		} else if status.Code(err) != codes.NotFound {
			return fmt.Errorf("failed to read billing event '%s': %w", event.ID, err)
		}

		account, err := getAccountTx(tx, ref)
		if err != nil {
			return err
		}
		if err := fn(account); err != nil {
			return err
		}

		record := event
		record.UserID = userID
		if record.AppliedAt.IsZero() {
			record.AppliedAt = r.now().UTC()
		}
		if err := tx.Create(eventRef, record); err != nil {
			return err
		}
		if err := tx.Update(ref, ledgerUpdates(account)); err != nil {
			return err
		}
		result = account
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("apply billing event '%s' to account '%s': %w", event.ID, userID, err)
	}
	return result, nil
}

func getAccountTx(tx *firestore.Transaction, ref *firestore.DocumentRef) (*models.Account, error) {
	snap, err := tx.Get(ref)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, fmt.Errorf("account with ID '%s' not found: %w", ref.ID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get account with ID '%s': %w", ref.ID, err)
	}
	return decodeAccount(snap)
}

func decodeAccount(snap *firestore.DocumentSnapshot) (*models.Account, error) {
	var account models.Account
	if err := snap.DataTo(&account); err != nil {
		return nil, fmt.Errorf("failed to decode account data for ID '%s': %w", snap.Ref.ID, err)
	}
	account.ID = snap.Ref.ID
	account.Hydrate()
	return &account, nil
}

// ledgerUpdates lists the fields a mutation may change. Identity fields are
// excluded so a concurrent profile update is never overwritten.
func ledgerUpdates(a *models.Account) []firestore.Update {
	return []firestore.Update{
		{Path: "plan", Value: string(a.Plan)},
		{Path: "monthlyCredits", Value: a.MonthlyCredits},
		{Path: "purchasedCredits", Value: a.PurchasedCredits},
		{Path: "purchasedCreditsExpiry", Value: a.PurchasedCreditsExpiry},
		{Path: "signupBonusGranted", Value: a.SignupBonusGranted},
		{Path: "stripeCustomerId", Value: a.StripeCustomerID},
		{Path: "stripeSubscriptionId", Value: a.StripeSubscriptionID},
		{Path: "subscriptionCancelledAt", Value: a.SubscriptionCancelledAt},
		{Path: "subscriptionEndsAt", Value: a.SubscriptionEndsAt},
		{Path: "updatedAt", Value: firestore.ServerTimestamp},
	}
}
