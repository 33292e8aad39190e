package models

import "time"

// Routing keys for ledger events on the ledger exchange.
const (
	LedgerEventCreditsConsumed = "credits.consumed"
	LedgerEventCreditsGranted  = "credits.granted"
	LedgerEventPlanChanged     = "plan.changed"
)

// LedgerEvent is published after every applied ledger change.
type LedgerEvent struct {
	Kind             string    `json:"kind"`
	UserID           string    `json:"userId"`
	Plan             Plan      `json:"plan"`
	MonthlyCredits   int       `json:"monthlyCredits"`
	PurchasedCredits int       `json:"purchasedCredits"`
	Delta            int       `json:"delta,omitempty"`
	Source           string    `json:"source"`             // "generation", "stripe", "admin", "signup"
	SourceID         string    `json:"sourceId,omitempty"` // Stripe event id, generation id
	OccurredAt       time.Time `json:"occurredAt"`
}
