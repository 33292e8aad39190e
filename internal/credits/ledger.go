package credits

import (
	"errors"
	"fmt"
	"time"

	"github.com/roomviz/roomviz-backend/internal/models"
)

// Unlimited is returned as the balance of accounts whose plan is not metered.
const Unlimited = -1

// PurchaseValidityMonths is how long purchased credits stay usable after the
// latest purchase.
const PurchaseValidityMonths = 12

var (
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrInvalidAmount       = errors.New("credit amount must not be negative")
)

// PurchasedUsable reports whether the purchased bucket may be spent at now.
// A nil expiry means the bucket was never granted through a purchase and
// carries no expiry.
func PurchasedUsable(a *models.Account, now time.Time) bool {
	if a.PurchasedCreditsExpiry == nil {
		return true
	}
	return !now.After(*a.PurchasedCreditsExpiry)
}

// EffectiveBalance is monthly + purchased, with purchased counted as zero once
// it has expired.
func EffectiveBalance(a *models.Account, now time.Time) int {
	total := a.MonthlyCredits
	if PurchasedUsable(a, now) {
		total += a.PurchasedCredits
	}
	return total
}

// Consume spends one credit, monthly bucket first. Pro accounts pass without
// mutation and get Unlimited back. The returned int is the effective balance
// after the spend.
func Consume(a *models.Account, now time.Time) (int, error) {
	if a.Plan == models.PlanPro {
		return Unlimited, nil
	}
	switch {
	case a.MonthlyCredits > 0:
		a.MonthlyCredits--
	case a.PurchasedCredits > 0 && PurchasedUsable(a, now):
		a.PurchasedCredits--
	default:
		return 0, ErrInsufficientCredits
	}
	return EffectiveBalance(a, now), nil
}

// GrantMonthly resets the monthly bucket to amount. Reset semantics make
// redelivered renewals harmless.
func GrantMonthly(a *models.Account, amount int) error {
	if amount < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidAmount, amount)
	}
	a.MonthlyCredits = amount
	return nil
}

// GrantPurchased adds amount to the purchased bucket and moves the expiry to
// now + 12 months, even when the previous expiry was later.
//
// An expired bucket is discarded before adding, otherwise the new expiry would
// resurrect credits that already lapsed.
func GrantPurchased(a *models.Account, amount int, now time.Time) error {
	if amount < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidAmount, amount)
	}
	if !PurchasedUsable(a, now) {
		a.PurchasedCredits = 0
	}
	expiry := now.AddDate(0, PurchaseValidityMonths, 0).UTC()
	a.PurchasedCredits += amount
	a.PurchasedCreditsExpiry = &expiry
	return nil
}

// GrantSignupBonus credits the one-time welcome allotment into the purchased
// bucket. It returns false, without changes, when the bonus was already given.
func GrantSignupBonus(a *models.Account, amount int, now time.Time) (bool, error) {
	if a.SignupBonusGranted {
		return false, nil
	}
	if amount > 0 {
		if err := GrantPurchased(a, amount, now); err != nil {
			return false, err
		}
	}
	a.SignupBonusGranted = true
	return true, nil
}

// ChangePlan moves the account to plan and resets the monthly bucket to the
// plan's allotment.
func ChangePlan(a *models.Account, plan models.Plan, allotment int) error {
	if err := GrantMonthly(a, allotment); err != nil {
		return err
	}
	a.Plan = plan
	return nil
}
