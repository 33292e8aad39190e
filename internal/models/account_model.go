package models

import (
	"strings"
	"time"
)

// Plan is the subscription tier of an account.
type Plan string

const (
	PlanFree Plan = "free"
	PlanHome Plan = "home"
	PlanPro  Plan = "pro"
)

// ParsePlan maps a raw plan string (as stored in Firestore or sent in Stripe
// metadata) to a known Plan. Matching is case-insensitive.
func ParsePlan(raw string) (Plan, bool) {
	switch Plan(strings.ToLower(strings.TrimSpace(raw))) {
	case PlanFree:
		return PlanFree, true
	case PlanHome:
		return PlanHome, true
	case PlanPro:
		return PlanPro, true
	default:
		return "", false
	}
}

// Account represents a registered user and their credit ledger.
// The document ID is the Firebase Auth UID.
type Account struct {
	ID          string `json:"id" firestore:"-"`
	Email       string `json:"email" firestore:"email"`
	DisplayName string `json:"displayName,omitempty" firestore:"displayName,omitempty"`
	PhotoURL    string `json:"photoURL,omitempty" firestore:"photoURL,omitempty"`

	Plan                   Plan       `json:"plan" firestore:"plan"`
	MonthlyCredits         int        `json:"monthlyCredits" firestore:"monthlyCredits"`
	PurchasedCredits       int        `json:"purchasedCredits" firestore:"purchasedCredits"`
	PurchasedCreditsExpiry *time.Time `json:"purchasedCreditsExpiry,omitempty" firestore:"purchasedCreditsExpiry"`
	SignupBonusGranted     bool       `json:"signupBonusGranted" firestore:"signupBonusGranted"`

	StripeCustomerID        string     `json:"stripeCustomerId,omitempty" firestore:"stripeCustomerId,omitempty"`
	StripeSubscriptionID    string     `json:"stripeSubscriptionId,omitempty" firestore:"stripeSubscriptionId,omitempty"`
	SubscriptionCancelledAt *time.Time `json:"subscriptionCancelledAt,omitempty" firestore:"subscriptionCancelledAt"`
	SubscriptionEndsAt      *time.Time `json:"subscriptionEndsAt,omitempty" firestore:"subscriptionEndsAt"`

	CreatedAt time.Time `json:"createdAt" firestore:"createdAt,serverTimestamp"`
	UpdatedAt time.Time `json:"updatedAt" firestore:"updatedAt,serverTimestamp"`
}

// Hydrate resolves defaults for documents written by older clients or with
// missing fields. Every read path goes through it.
func (a *Account) Hydrate() {
	if plan, ok := ParsePlan(string(a.Plan)); ok {
		a.Plan = plan
	} else {
		a.Plan = PlanFree
	}
	if a.MonthlyCredits < 0 {
		a.MonthlyCredits = 0
	}
	if a.PurchasedCredits < 0 {
		a.PurchasedCredits = 0
	}
}

// Clone returns a deep copy so callers can mutate without aliasing time pointers.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	out := *a
	out.PurchasedCreditsExpiry = cloneTime(a.PurchasedCreditsExpiry)
	out.SubscriptionCancelledAt = cloneTime(a.SubscriptionCancelledAt)
	out.SubscriptionEndsAt = cloneTime(a.SubscriptionEndsAt)
	return &out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
