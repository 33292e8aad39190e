package billing

import (
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

// ErrSignature is returned for payloads whose Stripe-Signature does not verify.
var ErrSignature = errors.New("stripe webhook signature verification failed")

// Verifier checks webhook signatures with the endpoint secret.
type Verifier struct {
	secret    string
	tolerance time.Duration
}

// NewVerifier creates a Verifier for the given endpoint secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: secret, tolerance: webhook.DefaultTolerance}
}

// Verify authenticates payload and returns the parsed event. API version
// mismatches are tolerated; only the fields the decoder reads matter.
func (v *Verifier) Verify(payload []byte, signatureHeader string) (stripe.Event, error) {
	evt, err := webhook.ConstructEventWithOptions(payload, signatureHeader, v.secret, webhook.ConstructEventOptions{
		Tolerance:                v.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return stripe.Event{}, fmt.Errorf("%w: %v", ErrSignature, err)
	}
	return evt, nil
}
