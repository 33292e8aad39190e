package billing

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// ErrGateway wraps failures of Stripe API calls.
var ErrGateway = errors.New("stripe client operation failed")

// CheckoutParams describes a checkout session to create.
type CheckoutParams struct {
	UserID     string
	Email      string
	CustomerID string // reused when the account already has one
	PriceID    string
	Quantity   int64
	Plan       string // set for subscription checkouts only
	SuccessURL string
	CancelURL  string
}

// Gateway is the slice of the Stripe API the service calls.
type Gateway interface {
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (sessionID, url string, err error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (url string, err error)
}

// StripeGateway implements Gateway with an explicitly constructed stripe-go client.
type StripeGateway struct {
	api *client.API
}

// NewStripeGateway builds a client for secretKey.
func NewStripeGateway(secretKey string) *StripeGateway {
	return &StripeGateway{api: client.New(secretKey, nil)}
}

// CreateCheckoutSession creates a subscription checkout when params.Plan is set,
// otherwise a one-time payment checkout. Metadata carries what the webhook needs.
func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, params CheckoutParams) (string, string, error) {
	quantity := params.Quantity
	if quantity <= 0 {
		quantity = 1
	}
	mode := stripe.CheckoutSessionModePayment
	if params.Plan != "" {
		mode = stripe.CheckoutSessionModeSubscription
	}

	sp := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(mode)),
		SuccessURL:        stripe.String(params.SuccessURL),
		CancelURL:         stripe.String(params.CancelURL),
		ClientReferenceID: stripe.String(params.UserID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(params.PriceID), Quantity: stripe.Int64(quantity)},
		},
	}
	sp.Context = ctx
	if params.CustomerID != "" {
		sp.Customer = stripe.String(params.CustomerID)
	} else if params.Email != "" {
		sp.CustomerEmail = stripe.String(params.Email)
		if mode == stripe.CheckoutSessionModePayment {
			sp.CustomerCreation = stripe.String(string(stripe.CheckoutSessionCustomerCreationAlways))
		}
	}
	sp.AddMetadata(metadataUserID, params.UserID)
	sp.AddMetadata(metadataPriceID, params.PriceID)
	sp.AddMetadata(metadataQuantity, strconv.FormatInt(quantity, 10))
	if params.Plan != "" {
		sp.AddMetadata(metadataPlanType, params.Plan)
	}

	session, err := g.api.CheckoutSessions.New(sp)
	if err != nil {
		return "", "", fmt.Errorf("%w: create checkout session: %v", ErrGateway, err)
	}
	return session.ID, session.URL, nil
}

// CreatePortalSession opens the Stripe customer portal for customerID.
func (g *StripeGateway) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx
	session, err := g.api.BillingPortalSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("%w: create portal session: %v", ErrGateway, err)
	}
	return session.URL, nil
}
