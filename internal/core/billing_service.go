package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v76"
	"go.uber.org/zap"

	"github.com/roomviz/roomviz-backend/internal/billing"
	"github.com/roomviz/roomviz-backend/internal/credits"
	"github.com/roomviz/roomviz-backend/internal/db"
	"github.com/roomviz/roomviz-backend/internal/models"
)

var (
	ErrPlanNotFound        = errors.New("plan or price ID not found")
	ErrStripeClient        = errors.New("stripe client operation failed")
	ErrWebhookSignature    = errors.New("stripe webhook signature verification failed")
	ErrUserStripeNotLinked = errors.New("user does not have a Stripe customer ID")
	ErrInvalidCheckout     = errors.New("checkout requires exactly one of plan or priceId")
	ErrAlreadySubscribed   = errors.New("user already has an active subscription")

	// Terminal webhook errors. The event is logged and acknowledged so the
	// provider does not redeliver it.
	ErrUnknownPricePackage = errors.New("unknown price package")
	ErrUnresolvableAccount = errors.New("billing event does not resolve to an account")
	ErrMalformedEvent      = errors.New("malformed billing event")
)

// Outcome is what ProcessEvent did with an event.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeDropped   Outcome = "dropped"
)

// IsTerminalBillingError reports whether err drops the event without retry.
func IsTerminalBillingError(err error) bool {
	return errors.Is(err, ErrUnknownPricePackage) ||
		errors.Is(err, ErrUnresolvableAccount) ||
		errors.Is(err, ErrPlanNotFound) ||
		errors.Is(err, ErrMalformedEvent)
}

// CheckoutSession is returned to the client, which redirects to URL.
type CheckoutSession struct {
	ID  string `json:"sessionId"`
	URL string `json:"url"`
}

// EventVerifier authenticates a webhook payload.
type EventVerifier interface {
	Verify(payload []byte, signatureHeader string) (stripe.Event, error)
}

// BillingServiceDeps are the collaborators of the billing service.
type BillingServiceDeps struct {
	Accounts        db.AccountRepository
	Gateway         billing.Gateway
	Verifier        EventVerifier
	Catalog         *credits.Catalog
	Audit           AuditService
	Publisher       LedgerPublisher
	Alerter         OperatorAlerter
	SuccessURL      string
	CancelURL       string
	PortalReturnURL string
	Logger          *zap.Logger
	Now             func() time.Time
}

type billingService struct {
	deps   BillingServiceDeps
	notify notifier
	logger *zap.Logger
	now    func() time.Time
}

// NewBillingService wires the Stripe gateway, verifier and catalog to the ledger.
func NewBillingService(deps BillingServiceDeps) BillingService {
	n := newNotifier(deps.Publisher, deps.Alerter, deps.Logger)
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &billingService{deps: deps, notify: n, logger: n.logger, now: now}
}

func (s *billingService) CreateCheckoutSession(ctx context.Context, userID string, req models.CheckoutRequest) (*CheckoutSession, error) {
	if (req.Plan == "") == (req.PriceID == "") {
		return nil, ErrInvalidCheckout
	}
	account, err := s.deps.Accounts.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("%w: user with ID '%s'", ErrUserNotFound, userID)
		}
		return nil, err
	}

	params := billing.CheckoutParams{
		UserID:     userID,
		Email:      account.Email,
		CustomerID: account.StripeCustomerID,
		SuccessURL: s.deps.SuccessURL,
		CancelURL:  s.deps.CancelURL,
		Quantity:   1,
	}
	if req.Plan != "" {
		plan, ok := models.ParsePlan(req.Plan)
		if !ok || plan == models.PlanFree {
			return nil, fmt.Errorf("%w: plan '%s'", ErrPlanNotFound, req.Plan)
		}
		spec, ok := s.deps.Catalog.Plan(plan)
		if !ok || spec.PriceID == "" {
			return nil, fmt.Errorf("%w: plan '%s' has no Stripe price", ErrPlanNotFound, plan)
		}
		if account.StripeSubscriptionID != "" && account.Plan != models.PlanFree {
			return nil, ErrAlreadySubscribed
		}
		params.Plan = string(plan)
		params.PriceID = spec.PriceID
	} else {
		if _, ok := s.deps.Catalog.Package(req.PriceID); !ok {
			return nil, fmt.Errorf("%w: price '%s'", ErrPlanNotFound, req.PriceID)
		}
		params.PriceID = req.PriceID
	}

	id, url, err := s.deps.Gateway.CreateCheckoutSession(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStripeClient, err)
	}
	s.logger.Info("Checkout session created",
		zap.String("userId", userID), zap.String("priceId", params.PriceID), zap.String("sessionId", id))
	return &CheckoutSession{ID: id, URL: url}, nil
}

func (s *billingService) CreatePortalSession(ctx context.Context, userID string) (string, error) {
	account, err := s.deps.Accounts.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return "", fmt.Errorf("%w: user with ID '%s'", ErrUserNotFound, userID)
		}
		return "", err
	}
	if account.StripeCustomerID == "" {
		return "", fmt.Errorf("%w for user %s", ErrUserStripeNotLinked, userID)
	}
	url, err := s.deps.Gateway.CreatePortalSession(ctx, account.StripeCustomerID, s.deps.PortalReturnURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStripeClient, err)
	}
	return url, nil
}

func (s *billingService) HandleStripeWebhook(ctx context.Context, payload []byte, signatureHeader string) (Outcome, error) {
	evt, err := s.deps.Verifier.Verify(payload, signatureHeader)
	if err != nil {
		s.logger.Warn("Rejected Stripe webhook", zap.Error(err))
		return "", fmt.Errorf("%w: %v", ErrWebhookSignature, err)
	}
	decoded, err := billing.Decode(evt)
	if err != nil {
		s.logger.Warn("Dropping malformed Stripe event",
			zap.String("eventId", evt.ID), zap.String("type", string(evt.Type)), zap.Error(err))
		return OutcomeDropped, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return s.ProcessEvent(ctx, decoded)
}

func (s *billingService) ProcessEvent(ctx context.Context, evt billing.Event) (Outcome, error) {
	logger := s.logger.With(zap.String("eventId", evt.EventID()), zap.String("type", evt.EventType()))

	var (
		outcome Outcome
		err     error
	)
	switch e := evt.(type) {
	case billing.CheckoutSubscription:
		outcome, err = s.applyCheckoutSubscription(ctx, e)
	case billing.CheckoutCredits:
		outcome, err = s.applyCheckoutCredits(ctx, e)
	case billing.InvoicePaid:
		outcome, err = s.applyInvoicePaid(ctx, e)
	case billing.SubscriptionUpdated:
		outcome, err = s.applySubscriptionUpdated(ctx, e)
	case billing.SubscriptionDeleted:
		outcome, err = s.applySubscriptionDeleted(ctx, e)
	case billing.Unrecognized:
		logger.Debug("Ignoring Stripe event", zap.String("reason", e.Reason))
		return OutcomeIgnored, nil
	default:
		return OutcomeIgnored, nil
	}

	switch {
	case err == nil:
		logger.Info("Stripe event processed", zap.String("outcome", string(outcome)))
	case IsTerminalBillingError(err):
		logger.Warn("Dropping Stripe event", zap.Error(err))
		s.notify.alert(ctx, "Billing event dropped",
			fmt.Sprintf("Stripe event %s (%s) was dropped: %v", evt.EventID(), evt.EventType(), err))
		outcome = OutcomeDropped
	default:
		logger.Error("Failed to process Stripe event", zap.Error(err))
	}
	return outcome, err
}

func (s *billingService) applyCheckoutSubscription(ctx context.Context, e billing.CheckoutSubscription) (Outcome, error) {
	plan, ok := models.ParsePlan(e.PlanType)
	if !ok || plan == models.PlanFree {
		return "", fmt.Errorf("%w: checkout metadata planType '%s'", ErrPlanNotFound, e.PlanType)
	}
	userID, err := s.resolveAccount(ctx, e.UserID, e.CustomerID)
	if err != nil {
		return "", err
	}
	allotment := s.deps.Catalog.MonthlyAllotment(plan)

	summary := fmt.Sprintf("plan=%s monthly=%d", plan, allotment)
	return s.apply(ctx, e, userID, summary, func(a *models.Account) error {
		if err := credits.ChangePlan(a, plan, allotment); err != nil {
			return err
		}
		if e.CustomerID != "" {
			a.StripeCustomerID = e.CustomerID
		}
		a.StripeSubscriptionID = e.SubscriptionID
		a.SubscriptionCancelledAt = nil
		a.SubscriptionEndsAt = nil
		return nil
	}, func(a *models.Account, now time.Time) {
		s.notify.publish(ctx, newLedgerEvent(models.LedgerEventPlanChanged, a, allotment, "stripe", e.EventID(), now))
	})
}

func (s *billingService) applyCheckoutCredits(ctx context.Context, e billing.CheckoutCredits) (Outcome, error) {
	pkg, ok := s.deps.Catalog.Package(e.PriceID)
	if !ok {
		return "", fmt.Errorf("%w: price '%s'", ErrUnknownPricePackage, e.PriceID)
	}
	quantity := int(e.Quantity)
	if quantity <= 0 {
		quantity = 1
	}
	amount := pkg.Credits * quantity

	userID, err := s.resolveAccount(ctx, e.UserID, e.CustomerID)
	if err != nil {
		return "", err
	}

	summary := fmt.Sprintf("package=%s purchased=+%d", pkg.PriceID, amount)
	return s.apply(ctx, e, userID, summary, func(a *models.Account) error {
		if a.StripeCustomerID == "" && e.CustomerID != "" {
			a.StripeCustomerID = e.CustomerID
		}
		return credits.GrantPurchased(a, amount, s.now())
	}, func(a *models.Account, now time.Time) {
		s.notify.publish(ctx, newLedgerEvent(models.LedgerEventCreditsGranted, a, amount, "stripe", e.EventID(), now))
	})
}

// errSkipEvent aborts a transaction whose event turned out not to apply.
var errSkipEvent = errors.New("event does not apply")

// errStaleSubscription is an errSkipEvent for events about a subscription the
// account has since replaced.
var errStaleSubscription = fmt.Errorf("%w: subscription is not the account's current one", errSkipEvent)

func checkCurrentSubscription(a *models.Account, subscriptionID string) error {
	if subscriptionID != "" && a.StripeSubscriptionID != "" && subscriptionID != a.StripeSubscriptionID {
		return errStaleSubscription
	}
	return nil
}

// skipped maps errSkipEvent to OutcomeIgnored with a warning.
func (s *billingService) skipped(evt billing.Event, userID, subscriptionID, reason string, outcome Outcome, err error) (Outcome, error) {
	if !errors.Is(err, errSkipEvent) {
		return outcome, err
	}
	if errors.Is(err, errStaleSubscription) {
		reason = "event is for a replaced subscription"
	}
	s.logger.Warn("Stripe event skipped: "+reason,
		zap.String("eventId", evt.EventID()), zap.String("type", evt.EventType()),
		zap.String("userId", userID), zap.String("subscriptionId", subscriptionID))
	return OutcomeIgnored, nil
}

func (s *billingService) applyInvoicePaid(ctx context.Context, e billing.InvoicePaid) (Outcome, error) {
	// The first invoice of a subscription is covered by checkout.session.completed.
	if e.BillingReason == string(stripe.InvoiceBillingReasonSubscriptionCreate) {
		return OutcomeIgnored, nil
	}
	userID, err := s.resolveAccount(ctx, "", e.CustomerID)
	if err != nil {
		return "", err
	}

	var allotment int
	outcome, err := s.apply(ctx, e, userID, "monthly reset", func(a *models.Account) error {
		if err := checkCurrentSubscription(a, e.SubscriptionID); err != nil {
			return err
		}
		if a.Plan == models.PlanFree {
			return errSkipEvent
		}
		allotment = s.deps.Catalog.MonthlyAllotment(a.Plan)
		return credits.GrantMonthly(a, allotment)
	}, func(a *models.Account, now time.Time) {
		s.notify.publish(ctx, newLedgerEvent(models.LedgerEventCreditsGranted, a, allotment, "stripe", e.EventID(), now))
	})
	return s.skipped(e, userID, e.SubscriptionID, "invoice paid for an account on the free plan", outcome, err)
}

func (s *billingService) applySubscriptionUpdated(ctx context.Context, e billing.SubscriptionUpdated) (Outcome, error) {
	userID, err := s.resolveAccount(ctx, "", e.CustomerID)
	if err != nil {
		return "", err
	}
	summary := "cancellation cleared"
	if e.CancelAtPeriodEnd {
		summary = "cancellation scheduled"
	}
	outcome, err := s.apply(ctx, e, userID, summary, func(a *models.Account) error {
		if err := checkCurrentSubscription(a, e.SubscriptionID); err != nil {
			return err
		}
		if !e.CancelAtPeriodEnd {
			a.SubscriptionCancelledAt = nil
			a.SubscriptionEndsAt = nil
			return nil
		}
		cancelledAt := e.CanceledAt
		if cancelledAt == nil {
			now := s.now().UTC()
			cancelledAt = &now
		}
		a.SubscriptionCancelledAt = cancelledAt
		a.SubscriptionEndsAt = e.PeriodEnd
		return nil
	}, nil)
	return s.skipped(e, userID, e.SubscriptionID, "", outcome, err)
}

func (s *billingService) applySubscriptionDeleted(ctx context.Context, e billing.SubscriptionDeleted) (Outcome, error) {
	userID, err := s.resolveAccount(ctx, "", e.CustomerID)
	if err != nil {
		return "", err
	}
	outcome, err := s.apply(ctx, e, userID, "downgraded to free", func(a *models.Account) error {
		if err := checkCurrentSubscription(a, e.SubscriptionID); err != nil {
			return err
		}
		if err := credits.ChangePlan(a, models.PlanFree, 0); err != nil {
			return err
		}
		a.StripeSubscriptionID = ""
		a.SubscriptionCancelledAt = nil
		a.SubscriptionEndsAt = nil
		return nil
	}, func(a *models.Account, now time.Time) {
		s.notify.publish(ctx, newLedgerEvent(models.LedgerEventPlanChanged, a, 0, "stripe", e.EventID(), now))
	})
	return s.skipped(e, userID, e.SubscriptionID, "", outcome, err)
}

// apply runs fn and records the event id in one transaction. afterApply runs
// only when the mutation was committed by this call.
func (s *billingService) apply(ctx context.Context, evt billing.Event, userID, summary string, fn db.MutateFunc, afterApply func(*models.Account, time.Time)) (Outcome, error) {
	now := s.now()
	record := models.BillingEventRecord{
		ID:        evt.EventID(),
		Type:      evt.EventType(),
		Summary:   summary,
		AppliedAt: now.UTC(),
	}
	updated, err := s.deps.Accounts.MutateOnce(ctx, record, userID, fn)
	switch {
	case errors.Is(err, db.ErrEventAlreadyProcessed):
		s.logger.Info("Duplicate Stripe event ignored", zap.String("eventId", evt.EventID()))
		return OutcomeDuplicate, nil
	case errors.Is(err, db.ErrNotFound):
		return "", fmt.Errorf("%w: account '%s' disappeared: %v", ErrUnresolvableAccount, userID, err)
	case err != nil:
		return "", err
	}

	recordAudit(ctx, s.deps.Audit, s.logger, models.AuditLog{
		UserID:     "stripe",
		Action:     models.AuditActionBillingApplied,
		TargetType: "ACCOUNT",
		TargetID:   userID,
		Details:    map[string]interface{}{"eventId": evt.EventID(), "type": evt.EventType(), "summary": summary},
	})
	if afterApply != nil {
		afterApply(updated, now)
	}
	return OutcomeApplied, nil
}

// resolveAccount prefers the user id carried in checkout metadata and falls
// back to the Stripe customer id.
func (s *billingService) resolveAccount(ctx context.Context, userID, customerID string) (string, error) {
	if userID != "" {
		_, err := s.deps.Accounts.GetByID(ctx, userID)
		if err == nil {
			return userID, nil
		}
		if !errors.Is(err, db.ErrNotFound) {
			return "", err
		}
	}
	if customerID != "" {
		account, err := s.deps.Accounts.GetByStripeCustomerID(ctx, customerID)
		if err == nil {
			return account.ID, nil
		}
		if !errors.Is(err, db.ErrNotFound) {
			return "", err
		}
	}
	return "", fmt.Errorf("%w: userId='%s' customerId='%s'", ErrUnresolvableAccount, userID, customerID)
}
