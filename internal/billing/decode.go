package billing

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v76"
)

// Stripe event types handled by the ledger.
const (
	TypeCheckoutSessionCompleted = "checkout.session.completed"
	TypeInvoicePaid              = "invoice.paid"
	TypeSubscriptionUpdated      = "customer.subscription.updated"
	TypeSubscriptionDeleted      = "customer.subscription.deleted"
	metadataUserID               = "userId"
	metadataPlanType             = "planType"
	metadataPriceID              = "priceId"
	metadataQuantity             = "quantity"
)

// ErrMalformedEvent is returned when a known event type carries an object
// that cannot be decoded.
var ErrMalformedEvent = errors.New("malformed stripe event")

// Decode turns a verified stripe.Event into one of the Event variants.
func Decode(evt stripe.Event) (Event, error) {
	meta := Meta{ID: evt.ID, Type: string(evt.Type)}
	if evt.Data == nil {
		return nil, fmt.Errorf("%w: event %s has no data", ErrMalformedEvent, evt.ID)
	}
	raw := evt.Data.Raw

	switch meta.Type {
	case TypeCheckoutSessionCompleted:
		var session stripe.CheckoutSession
		if err := json.Unmarshal(raw, &session); err != nil {
			return nil, fmt.Errorf("%w: checkout session in %s: %v", ErrMalformedEvent, evt.ID, err)
		}
		return decodeCheckout(meta, &session), nil

	case TypeInvoicePaid:
		var invoice stripe.Invoice
		if err := json.Unmarshal(raw, &invoice); err != nil {
			return nil, fmt.Errorf("%w: invoice in %s: %v", ErrMalformedEvent, evt.ID, err)
		}
		if invoice.Subscription == nil {
			return Unrecognized{Meta: meta, Reason: "invoice without subscription"}, nil
		}
		return InvoicePaid{
			Meta:           meta,
			CustomerID:     customerID(invoice.Customer),
			SubscriptionID: invoice.Subscription.ID,
			BillingReason:  string(invoice.BillingReason),
		}, nil

	case TypeSubscriptionUpdated, TypeSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(raw, &sub); err != nil {
			return nil, fmt.Errorf("%w: subscription in %s: %v", ErrMalformedEvent, evt.ID, err)
		}
		if meta.Type == TypeSubscriptionDeleted {
			return SubscriptionDeleted{Meta: meta, CustomerID: customerID(sub.Customer), SubscriptionID: sub.ID}, nil
		}
		return SubscriptionUpdated{
			Meta:              meta,
			CustomerID:        customerID(sub.Customer),
			SubscriptionID:    sub.ID,
			Status:            string(sub.Status),
			CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
			CanceledAt:        unixTime(sub.CanceledAt),
			PeriodEnd:         unixTime(sub.CurrentPeriodEnd),
		}, nil
	}

	return Unrecognized{Meta: meta, Reason: "unhandled event type"}, nil
}

func decodeCheckout(meta Meta, session *stripe.CheckoutSession) Event {
	userID := strings.TrimSpace(session.Metadata[metadataUserID])
	if userID == "" {
		userID = strings.TrimSpace(session.ClientReferenceID)
	}

	switch session.Mode {
	case stripe.CheckoutSessionModeSubscription:
		var subscriptionID string
		if session.Subscription != nil {
			subscriptionID = session.Subscription.ID
		}
		return CheckoutSubscription{
			Meta:           meta,
			CustomerID:     customerID(session.Customer),
			SubscriptionID: subscriptionID,
			UserID:         userID,
			PlanType:       session.Metadata[metadataPlanType],
		}
	case stripe.CheckoutSessionModePayment:
		// no_payment_required covers fully discounted sessions.
		switch session.PaymentStatus {
		case stripe.CheckoutSessionPaymentStatusPaid, stripe.CheckoutSessionPaymentStatusNoPaymentRequired:
		default:
			return Unrecognized{Meta: meta, Reason: "checkout not paid"}
		}
		priceID, quantity := checkoutPrice(session)
		return CheckoutCredits{
			Meta:       meta,
			CustomerID: customerID(session.Customer),
			UserID:     userID,
			PriceID:    priceID,
			Quantity:   quantity,
		}
	}
	return Unrecognized{Meta: meta, Reason: "checkout mode " + string(session.Mode)}
}

// checkoutPrice prefers the metadata written at session creation and falls
// back to expanded line items.
func checkoutPrice(session *stripe.CheckoutSession) (string, int64) {
	quantity := int64(1)
	if raw := session.Metadata[metadataQuantity]; raw != "" {
		var q int64
		if _, err := fmt.Sscan(raw, &q); err == nil && q > 0 {
			quantity = q
		}
	}
	if priceID := session.Metadata[metadataPriceID]; priceID != "" {
		return priceID, quantity
	}
	if session.LineItems != nil {
		for _, item := range session.LineItems.Data {
			if item.Price != nil && item.Price.ID != "" {
				if item.Quantity > 0 {
					quantity = item.Quantity
				}
				return item.Price.ID, quantity
			}
		}
	}
	return "", quantity
}

func customerID(c *stripe.Customer) string {
	if c == nil {
		return ""
	}
	return c.ID
}

func unixTime(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}
