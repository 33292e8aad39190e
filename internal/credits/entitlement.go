package credits

import (
	"time"

	"github.com/roomviz/roomviz-backend/internal/models"
)

// HasEntitlement reports whether the account may run one more generation.
func HasEntitlement(a *models.Account, now time.Time) bool {
	if a.Plan == models.PlanPro {
		return true
	}
	return EffectiveBalance(a, now) > 0
}

// Entitlement is the resolved view shown to clients and admins.
type Entitlement struct {
	Plan                   models.Plan `json:"plan"`
	Unlimited              bool        `json:"unlimited"`
	MonthlyCredits         int         `json:"monthlyCredits"`
	PurchasedCredits       int         `json:"purchasedCredits"` // zero once expired
	PurchasedCreditsExpiry *time.Time  `json:"purchasedCreditsExpiry,omitempty"`
	PurchasedExpired       bool        `json:"purchasedExpired"`
	Total                  int         `json:"total"` // Unlimited for pro
	Allowed                bool        `json:"allowed"`
	CancelsAt              *time.Time  `json:"cancelsAt,omitempty"`
}

// Resolve computes the entitlement snapshot at now.
func Resolve(a *models.Account, now time.Time) Entitlement {
	usable := PurchasedUsable(a, now)
	e := Entitlement{
		Plan:                   a.Plan,
		Unlimited:              a.Plan == models.PlanPro,
		MonthlyCredits:         a.MonthlyCredits,
		PurchasedCreditsExpiry: a.PurchasedCreditsExpiry,
		PurchasedExpired:       !usable,
		Total:                  EffectiveBalance(a, now),
		Allowed:                HasEntitlement(a, now),
		CancelsAt:              a.SubscriptionEndsAt,
	}
	if usable {
		e.PurchasedCredits = a.PurchasedCredits
	}
	if e.Unlimited {
		e.Total = Unlimited
	}
	return e
}
