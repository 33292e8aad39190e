// Package billing adapts Stripe to the ledger: it verifies webhook
// signatures, decodes the handful of event types the ledger reacts to into a
// closed set of Go types, and creates checkout and portal sessions.
package billing

import "time"

// Event is one of the verified Stripe events the ledger understands.
// The concrete types below are the complete set; anything else decodes to
// Unrecognized.
type Event interface {
	EventID() string
	EventType() string
	isEvent()
}

// Meta carries the fields shared by every event.
type Meta struct {
	ID   string
	Type string
}

func (m Meta) EventID() string   { return m.ID }
func (m Meta) EventType() string { return m.Type }
func (Meta) isEvent()            {}

// CheckoutSubscription is checkout.session.completed in subscription mode.
type CheckoutSubscription struct {
	Meta
	CustomerID     string
	SubscriptionID string
	UserID         string // metadata userId or client_reference_id
	PlanType       string // metadata planType, unparsed
}

// CheckoutCredits is checkout.session.completed in payment mode for a credit package.
type CheckoutCredits struct {
	Meta
	CustomerID string
	UserID     string
	PriceID    string
	Quantity   int64
}

// InvoicePaid is invoice.paid for a subscription invoice.
type InvoicePaid struct {
	Meta
	CustomerID     string
	SubscriptionID string
	BillingReason  string
}

// SubscriptionUpdated is customer.subscription.updated.
type SubscriptionUpdated struct {
	Meta
	CustomerID        string
	SubscriptionID    string
	Status            string
	CancelAtPeriodEnd bool
	CanceledAt        *time.Time
	PeriodEnd         *time.Time
}

// SubscriptionDeleted is customer.subscription.deleted.
type SubscriptionDeleted struct {
	Meta
	CustomerID     string
	SubscriptionID string
}

// Unrecognized is any other event type, or a checkout the ledger does not act on.
type Unrecognized struct {
	Meta
	Reason string
}
