package models

import "time"

// BillingEventRecord marks a Stripe event id as applied. It is written in the
// same transaction as the ledger mutation it caused.
type BillingEventRecord struct {
	ID        string    `json:"id" firestore:"-"` // Stripe event id, also the document ID
	Type      string    `json:"type" firestore:"type"`
	UserID    string    `json:"userId" firestore:"userId"`
	Summary   string    `json:"summary,omitempty" firestore:"summary,omitempty"`
	AppliedAt time.Time `json:"appliedAt" firestore:"appliedAt"`
}
