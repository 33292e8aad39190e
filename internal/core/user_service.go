package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/roomviz/roomviz-backend/internal/credits"
	"github.com/roomviz/roomviz-backend/internal/db"
	"github.com/roomviz/roomviz-backend/internal/models"
)

var (
	// ErrUserNotFound is returned when a user is not found.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidAdjustment is returned for admin adjustments that change nothing or carry bad values.
	ErrInvalidAdjustment = errors.New("invalid credit adjustment")
)

// userService implements the UserService interface.
type userService struct {
	accounts    db.AccountRepository
	audit       AuditService
	catalog     *credits.Catalog
	signupBonus int
	notify      notifier
	logger      *zap.Logger
	now         func() time.Time
}

// NewUserService creates a new UserService instance.
func NewUserService(accounts db.AccountRepository, audit AuditService, catalog *credits.Catalog, publisher LedgerPublisher, signupBonus int, logger *zap.Logger) UserService {
	n := newNotifier(publisher, nil, logger)
	return &userService{
		accounts:    accounts,
		audit:       audit,
		catalog:     catalog,
		signupBonus: signupBonus,
		notify:      n,
		logger:      n.logger,
		now:         time.Now,
	}
}

// GetOrCreate returns the account and whether it was created by this call.
func (s *userService) GetOrCreate(ctx context.Context, userID, email, displayName, photoURL string) (*models.Account, bool, error) {
	account, err := s.accounts.GetByID(ctx, userID)
	created := false
	switch {
	case err == nil:
		if account.Email != email || account.DisplayName != displayName || account.PhotoURL != photoURL {
			account.Email, account.DisplayName, account.PhotoURL = email, displayName, photoURL
			if err := s.accounts.UpdateProfile(ctx, account); err != nil {
				s.logger.Warn("Failed to refresh account profile", zap.String("userId", userID), zap.Error(err))
			}
		}
	case errors.Is(err, db.ErrNotFound):
		account = &models.Account{
			ID:          userID,
			Email:       email,
			DisplayName: displayName,
			PhotoURL:    photoURL,
			Plan:        models.PlanFree,
		}
		createErr := s.accounts.Create(ctx, account)
		if createErr != nil && !errors.Is(createErr, db.ErrAlreadyExists) {
			return nil, false, fmt.Errorf("failed to create account (id: %s) after not found: %w", userID, createErr)
		}
		// Lost a race with a concurrent initialize: fall through to the bonus check.
		created = createErr == nil
		if created {
			recordAudit(ctx, s.audit, s.logger, models.AuditLog{
				UserID: userID, Action: models.AuditActionAccountCreated, TargetType: "ACCOUNT", TargetID: userID,
			})
		}
	default:
		return nil, false, fmt.Errorf("failed to get account by ID '%s' from repository: %w", userID, err)
	}

	if account.SignupBonusGranted {
		return account, created, nil
	}

	now := s.now()
	granted := false
	updated, err := s.accounts.Mutate(ctx, userID, func(a *models.Account) error {
		ok, err := credits.GrantSignupBonus(a, s.signupBonus, now)
		granted = ok
		return err
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to grant signup bonus to '%s': %w", userID, err)
	}
	if granted && s.signupBonus > 0 {
		s.logger.Info("Signup bonus granted", zap.String("userId", userID), zap.Int("credits", s.signupBonus))
		s.notify.publish(ctx, newLedgerEvent(models.LedgerEventCreditsGranted, updated, s.signupBonus, "signup", "", now))
	}
	return updated, created, nil
}

// GetByID retrieves an account by its ID.
func (s *userService) GetByID(ctx context.Context, userID string) (*models.Account, error) {
	account, err := s.accounts.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("%w: user with ID '%s'", ErrUserNotFound, userID)
		}
		return nil, fmt.Errorf("failed to get account by ID '%s' from repository: %w", userID, err)
	}
	return account, nil
}

func (s *userService) GetEntitlement(ctx context.Context, userID string) (credits.Entitlement, error) {
	account, err := s.GetByID(ctx, userID)
	if err != nil {
		return credits.Entitlement{}, err
	}
	return credits.Resolve(account, s.now()), nil
}

// AdjustCredits applies, in order: plan change (which resets the monthly
// bucket to the plan allotment), explicit monthly override, purchased grant.
func (s *userService) AdjustCredits(ctx context.Context, actorID, userID string, req models.AdjustCreditsRequest) (*models.Account, error) {
	var plan models.Plan
	if req.Plan != nil {
		p, ok := models.ParsePlan(*req.Plan)
		if !ok {
			return nil, fmt.Errorf("%w: unknown plan %q", ErrInvalidAdjustment, *req.Plan)
		}
		plan = p
	}
	if req.Plan == nil && req.MonthlyCredits == nil && req.AddPurchased == nil {
		return nil, fmt.Errorf("%w: nothing to change", ErrInvalidAdjustment)
	}
	if req.MonthlyCredits != nil && *req.MonthlyCredits < 0 {
		return nil, fmt.Errorf("%w: monthlyCredits must not be negative", ErrInvalidAdjustment)
	}
	if req.AddPurchased != nil && *req.AddPurchased <= 0 {
		return nil, fmt.Errorf("%w: addPurchased must be positive", ErrInvalidAdjustment)
	}

	now := s.now()
	var before models.Account
	updated, err := s.accounts.Mutate(ctx, userID, func(a *models.Account) error {
		before = *a
		if req.Plan != nil {
			if err := credits.ChangePlan(a, plan, s.catalog.MonthlyAllotment(plan)); err != nil {
				return err
			}
		}
		if req.MonthlyCredits != nil {
			if err := credits.GrantMonthly(a, *req.MonthlyCredits); err != nil {
				return err
			}
		}
		if req.AddPurchased != nil {
			return credits.GrantPurchased(a, *req.AddPurchased, now)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("%w: user with ID '%s'", ErrUserNotFound, userID)
		}
		return nil, fmt.Errorf("failed to adjust credits of '%s': %w", userID, err)
	}

	s.logger.Info("Credits adjusted by admin",
		zap.String("actorId", actorID), zap.String("userId", userID), zap.String("reason", req.Reason))
	recordAudit(ctx, s.audit, s.logger, models.AuditLog{
		UserID:     actorID,
		Action:     models.AuditActionCreditsAdjusted,
		TargetType: "ACCOUNT",
		TargetID:   userID,
		Details: map[string]interface{}{
			"reason":                 req.Reason,
			"planBefore":             string(before.Plan),
			"planAfter":              string(updated.Plan),
			"monthlyCreditsBefore":   before.MonthlyCredits,
			"monthlyCreditsAfter":    updated.MonthlyCredits,
			"purchasedCreditsBefore": before.PurchasedCredits,
			"purchasedCreditsAfter":  updated.PurchasedCredits,
		},
	})

	if before.Plan != updated.Plan {
		s.notify.publish(ctx, newLedgerEvent(models.LedgerEventPlanChanged, updated, 0, "admin", "", now))
	}
	if req.MonthlyCredits != nil || req.AddPurchased != nil {
		delta := credits.EffectiveBalance(updated, now) - credits.EffectiveBalance(&before, now)
		s.notify.publish(ctx, newLedgerEvent(models.LedgerEventCreditsGranted, updated, delta, "admin", "", now))
	}
	return updated, nil
}
