package core

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/roomviz/roomviz-backend/internal/billing"
	"github.com/roomviz/roomviz-backend/internal/db"
	"github.com/roomviz/roomviz-backend/internal/models"
)

const webhookSecret = "whsec_core_test"

type billingFixture struct {
	store     *db.MemoryStore
	gateway   *fakeGateway
	publisher *recordingPublisher
	alerter   *recordingAlerter
	logs      *observer.ObservedLogs
	svc       BillingService
}

func newBillingFixture(t *testing.T) *billingFixture {
	t.Helper()
	obsCore, logs := observer.New(zapcore.InfoLevel)
	f := &billingFixture{
		store:     db.NewMemoryStore(),
		gateway:   &fakeGateway{},
		publisher: &recordingPublisher{},
		alerter:   &recordingAlerter{},
		logs:      logs,
	}
	f.svc = NewBillingService(BillingServiceDeps{
		Accounts:        f.store.Accounts(),
		Gateway:         f.gateway,
		Verifier:        billing.NewVerifier(webhookSecret),
		Catalog:         testCatalog(t),
		Audit:           NewAuditService(f.store.Audit()),
		Publisher:       f.publisher,
		Alerter:         f.alerter,
		SuccessURL:      "https://app.test/success",
		CancelURL:       "https://app.test/cancel",
		PortalReturnURL: "https://app.test/account",
		Logger:          zap.New(obsCore),
		Now:             fixedNow,
	})
	return f
}

func creditsCheckout(id, userID, priceID string) billing.CheckoutCredits {
	return billing.CheckoutCredits{
		Meta:       billing.Meta{ID: id, Type: billing.TypeCheckoutSessionCompleted},
		CustomerID: "cus_1",
		UserID:     userID,
		PriceID:    priceID,
		Quantity:   1,
	}
}

func TestProcessEvent_CheckoutCreditsIsAppliedOnce(t *testing.T) {
	f := newBillingFixture(t)
	seedAccount(t, f.store, &models.Account{ID: "u1"})
	evt := creditsCheckout("evt_pay_1", "u1", "price_credits_20")

	outcome, err := f.svc.ProcessEvent(context.Background(), evt)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)

	outcome, err = f.svc.ProcessEvent(context.Background(), evt)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)

	a := loadAccount(t, f.store, "u1")
	assert.Equal(t, 20, a.PurchasedCredits, "redelivery must not double the grant")
	require.NotNil(t, a.PurchasedCreditsExpiry)
	assert.Equal(t, testNow.AddDate(1, 0, 0), *a.PurchasedCreditsExpiry)
	assert.Equal(t, "cus_1", a.StripeCustomerID)
	assert.Equal(t, []string{models.LedgerEventCreditsGranted}, f.publisher.kinds())

	rec, ok := f.store.ProcessedEvent("evt_pay_1")
	require.True(t, ok)
	assert.Equal(t, "u1", rec.UserID)
}

func TestProcessEvent_CheckoutCreditsQuantity(t *testing.T) {
	f := newBillingFixture(t)
	seedAccount(t, f.store, &models.Account{ID: "u1"})
	evt := creditsCheckout("evt_pay_q", "u1", "price_credits_60")
	evt.Quantity = 2

	_, err := f.svc.ProcessEvent(context.Background(), evt)
	require.NoError(t, err)
	assert.Equal(t, 120, loadAccount(t, f.store, "u1").PurchasedCredits)
}

func TestProcessEvent_UnknownPriceIsDropped(t *testing.T) {
	f := newBillingFixture(t)
	seedAccount(t, f.store, &models.Account{ID: "u1"})

	outcome, err := f.svc.ProcessEvent(context.Background(), creditsCheckout("evt_pay_2", "u1", "price_mystery"))
	assert.ErrorIs(t, err, ErrUnknownPricePackage)
	assert.True(t, IsTerminalBillingError(err))
	assert.Equal(t, OutcomeDropped, outcome)

	assert.Zero(t, loadAccount(t, f.store, "u1").PurchasedCredits)
	_, recorded := f.store.ProcessedEvent("evt_pay_2")
	assert.False(t, recorded)
	assert.Equal(t, 1, f.logs.FilterMessage("Dropping Stripe event").FilterLevelExact(zapcore.WarnLevel).Len())
	assert.Equal(t, []string{"Billing event dropped"}, f.alerter.subjects)
}

func TestProcessEvent_CheckoutSubscription(t *testing.T) {
	f := newBillingFixture(t)
	ends := testNow.AddDate(0, 0, 5)
	seedAccount(t, f.store, &models.Account{ID: "u1", PurchasedCredits: 3, SubscriptionEndsAt: &ends})

	outcome, err := f.svc.ProcessEvent(context.Background(), billing.CheckoutSubscription{
		Meta:           billing.Meta{ID: "evt_sub_1", Type: billing.TypeCheckoutSessionCompleted},
		CustomerID:     "cus_9",
		SubscriptionID: "sub_9",
		UserID:         "u1",
		PlanType:       "home",
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)

	a := loadAccount(t, f.store, "u1")
	assert.Equal(t, models.PlanHome, a.Plan)
	assert.Equal(t, 40, a.MonthlyCredits)
	assert.Equal(t, 3, a.PurchasedCredits)
	assert.Equal(t, "cus_9", a.StripeCustomerID)
	assert.Equal(t, "sub_9", a.StripeSubscriptionID)
	assert.Nil(t, a.SubscriptionEndsAt)
	assert.Equal(t, []string{models.LedgerEventPlanChanged}, f.publisher.kinds())
}

func TestProcessEvent_CheckoutSubscriptionUnknownPlan(t *testing.T) {
	f := newBillingFixture(t)
	seedAccount(t, f.store, &models.Account{ID: "u1"})

	outcome, err := f.svc.ProcessEvent(context.Background(), billing.CheckoutSubscription{
		Meta:     billing.Meta{ID: "evt_sub_x", Type: billing.TypeCheckoutSessionCompleted},
		UserID:   "u1",
		PlanType: "enterprise",
	})
	assert.ErrorIs(t, err, ErrPlanNotFound)
	assert.Equal(t, OutcomeDropped, outcome)
	assert.Equal(t, models.PlanFree, loadAccount(t, f.store, "u1").Plan)
}

func TestProcessEvent_InvoicePaidIsIdempotent(t *testing.T) {
	f := newBillingFixture(t)
	seedAccount(t, f.store, &models.Account{ID: "u1", Plan: models.PlanHome, MonthlyCredits: 2, StripeCustomerID: "cus_1"})
	invoice := billing.InvoicePaid{
		Meta:           billing.Meta{ID: "evt_inv_1", Type: billing.TypeInvoicePaid},
		CustomerID:     "cus_1",
		SubscriptionID: "sub_1",
		BillingReason:  "subscription_cycle",
	}

	outcome, err := f.svc.ProcessEvent(context.Background(), invoice)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)
	once := loadAccount(t, f.store, "u1").MonthlyCredits

	outcome, err = f.svc.ProcessEvent(context.Background(), invoice)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)
	assert.Equal(t, once, loadAccount(t, f.store, "u1").MonthlyCredits)
	assert.Equal(t, 40, once)
}

func TestProcessEvent_InvoicePaidEdgeCases(t *testing.T) {
	f := newBillingFixture(t)
	seedAccount(t, f.store, &models.Account{ID: "free", StripeCustomerID: "cus_free"})

	outcome, err := f.svc.ProcessEvent(context.Background(), billing.InvoicePaid{
		Meta: billing.Meta{ID: "evt_inv_2", Type: billing.TypeInvoicePaid}, CustomerID: "cus_unknown", BillingReason: "subscription_cycle",
	})
	assert.ErrorIs(t, err, ErrUnresolvableAccount)
	assert.Equal(t, OutcomeDropped, outcome)

	outcome, err = f.svc.ProcessEvent(context.Background(), billing.InvoicePaid{
		Meta: billing.Meta{ID: "evt_inv_3", Type: billing.TypeInvoicePaid}, CustomerID: "cus_free", BillingReason: "subscription_cycle",
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, outcome)
	assert.Zero(t, loadAccount(t, f.store, "free").MonthlyCredits)

	outcome, err = f.svc.ProcessEvent(context.Background(), billing.InvoicePaid{
		Meta: billing.Meta{ID: "evt_inv_4", Type: billing.TypeInvoicePaid}, CustomerID: "cus_free", BillingReason: "subscription_create",
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, outcome)
}

// Renewal and purchase touch different buckets, so their order does not matter.
func TestProcessEvent_RenewalAndPurchaseCommute(t *testing.T) {
	renewal := billing.InvoicePaid{Meta: billing.Meta{ID: "evt_r", Type: billing.TypeInvoicePaid}, CustomerID: "cus_1", BillingReason: "subscription_cycle"}
	purchase := creditsCheckout("evt_p", "u1", "price_credits_20")

	run := func(events ...billing.Event) *models.Account {
		f := newBillingFixture(t)
		seedAccount(t, f.store, &models.Account{ID: "u1", Plan: models.PlanHome, MonthlyCredits: 7, StripeCustomerID: "cus_1"})
		for _, e := range events {
			_, err := f.svc.ProcessEvent(context.Background(), e)
			require.NoError(t, err)
		}
		return loadAccount(t, f.store, "u1")
	}

	a, b := run(renewal, purchase), run(purchase, renewal)
	assert.Equal(t, a.MonthlyCredits, b.MonthlyCredits)
	assert.Equal(t, a.PurchasedCredits, b.PurchasedCredits)
}

func TestProcessEvent_SubscriptionLifecycle(t *testing.T) {
	f := newBillingFixture(t)
	seedAccount(t, f.store, &models.Account{
		ID: "u1", Plan: models.PlanPro, StripeCustomerID: "cus_1", StripeSubscriptionID: "sub_1", PurchasedCredits: 4,
	})
	periodEnd := testNow.AddDate(0, 0, 20)

	_, err := f.svc.ProcessEvent(context.Background(), billing.SubscriptionUpdated{
		Meta: billing.Meta{ID: "evt_u1", Type: billing.TypeSubscriptionUpdated}, CustomerID: "cus_1",
		CancelAtPeriodEnd: true, PeriodEnd: &periodEnd,
	})
	require.NoError(t, err)
	a := loadAccount(t, f.store, "u1")
	require.NotNil(t, a.SubscriptionCancelledAt)
	assert.Equal(t, testNow, *a.SubscriptionCancelledAt)
	require.NotNil(t, a.SubscriptionEndsAt)
	assert.Equal(t, periodEnd, *a.SubscriptionEndsAt)

	_, err = f.svc.ProcessEvent(context.Background(), billing.SubscriptionUpdated{
		Meta: billing.Meta{ID: "evt_u2", Type: billing.TypeSubscriptionUpdated}, CustomerID: "cus_1",
	})
	require.NoError(t, err)
	assert.Nil(t, loadAccount(t, f.store, "u1").SubscriptionEndsAt, "reactivation clears the markers")

	_, err = f.svc.ProcessEvent(context.Background(), billing.SubscriptionDeleted{
		Meta: billing.Meta{ID: "evt_d", Type: billing.TypeSubscriptionDeleted}, CustomerID: "cus_1",
	})
	require.NoError(t, err)
	a = loadAccount(t, f.store, "u1")
	assert.Equal(t, models.PlanFree, a.Plan)
	assert.Zero(t, a.MonthlyCredits)
	assert.Equal(t, 4, a.PurchasedCredits)
	assert.Empty(t, a.StripeSubscriptionID)
}

// Stripe can deliver events for a replaced subscription after the new one is
// active. They must not touch the current subscription.
func TestProcessEvent_EventsForReplacedSubscriptionAreIgnored(t *testing.T) {
	f := newBillingFixture(t)
	seedAccount(t, f.store, &models.Account{
		ID: "u1", Plan: models.PlanHome, MonthlyCredits: 12, StripeCustomerID: "cus_1", StripeSubscriptionID: "sub_new",
	})
	periodEnd := testNow.AddDate(0, 0, 5)

	events := []billing.Event{
		billing.SubscriptionDeleted{
			Meta: billing.Meta{ID: "evt_old_d", Type: billing.TypeSubscriptionDeleted}, CustomerID: "cus_1", SubscriptionID: "sub_old",
		},
		billing.SubscriptionUpdated{
			Meta: billing.Meta{ID: "evt_old_u", Type: billing.TypeSubscriptionUpdated}, CustomerID: "cus_1", SubscriptionID: "sub_old",
			CancelAtPeriodEnd: true, PeriodEnd: &periodEnd,
		},
		billing.InvoicePaid{
			Meta: billing.Meta{ID: "evt_old_i", Type: billing.TypeInvoicePaid}, CustomerID: "cus_1", SubscriptionID: "sub_old",
			BillingReason: "subscription_cycle",
		},
	}
	for _, evt := range events {
		outcome, err := f.svc.ProcessEvent(context.Background(), evt)
		require.NoError(t, err, evt.EventID())
		assert.Equal(t, OutcomeIgnored, outcome, evt.EventID())
		_, recorded := f.store.ProcessedEvent(evt.EventID())
		assert.False(t, recorded, evt.EventID())
	}

	a := loadAccount(t, f.store, "u1")
	assert.Equal(t, models.PlanHome, a.Plan)
	assert.Equal(t, 12, a.MonthlyCredits)
	assert.Equal(t, "sub_new", a.StripeSubscriptionID)
	assert.Nil(t, a.SubscriptionCancelledAt)
	assert.Nil(t, a.SubscriptionEndsAt)
	assert.Equal(t, 3, f.logs.FilterMessage("Stripe event skipped: event is for a replaced subscription").Len())

	outcome, err := f.svc.ProcessEvent(context.Background(), billing.SubscriptionDeleted{
		Meta: billing.Meta{ID: "evt_new_d", Type: billing.TypeSubscriptionDeleted}, CustomerID: "cus_1", SubscriptionID: "sub_new",
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)
	assert.Equal(t, models.PlanFree, loadAccount(t, f.store, "u1").Plan)
}

func TestProcessEvent_UnrecognizedIsIgnored(t *testing.T) {
	f := newBillingFixture(t)
	outcome, err := f.svc.ProcessEvent(context.Background(), billing.Unrecognized{Meta: billing.Meta{ID: "evt_x", Type: "charge.refunded"}})
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, outcome)
}

func signWebhook(payload []byte) string {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(webhookSecret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func TestHandleStripeWebhook(t *testing.T) {
	f := newBillingFixture(t)
	seedAccount(t, f.store, &models.Account{ID: "u1"})
	payload := []byte(`{"id":"evt_wh_1","object":"event","api_version":"2020-08-27","type":"checkout.session.completed",
		"data":{"object":{"id":"cs_1","object":"checkout.session","mode":"payment","payment_status":"paid",
		"customer":"cus_1","client_reference_id":"u1","metadata":{"priceId":"price_credits_20"}}}}`)

	_, err := f.svc.HandleStripeWebhook(context.Background(), payload, "t=1,v1=deadbeef")
	require.ErrorIs(t, err, ErrWebhookSignature)
	assert.Zero(t, loadAccount(t, f.store, "u1").PurchasedCredits)

	outcome, err := f.svc.HandleStripeWebhook(context.Background(), payload, signWebhook(payload))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)

	outcome, err = f.svc.HandleStripeWebhook(context.Background(), payload, signWebhook(payload))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)
	assert.Equal(t, 20, loadAccount(t, f.store, "u1").PurchasedCredits)
}

func TestCreateCheckoutSession(t *testing.T) {
	f := newBillingFixture(t)
	seedAccount(t, f.store, &models.Account{ID: "u1", Email: "ana@example.com"})

	session, err := f.svc.CreateCheckoutSession(context.Background(), "u1", models.CheckoutRequest{Plan: "home"})
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", session.ID)
	assert.Equal(t, "price_home_monthly", f.gateway.checkout.PriceID)
	assert.Equal(t, "home", f.gateway.checkout.Plan)
	assert.Equal(t, "ana@example.com", f.gateway.checkout.Email)

	_, err = f.svc.CreateCheckoutSession(context.Background(), "u1", models.CheckoutRequest{PriceID: "price_credits_60"})
	require.NoError(t, err)
	assert.Empty(t, f.gateway.checkout.Plan)

	_, err = f.svc.CreateCheckoutSession(context.Background(), "u1", models.CheckoutRequest{PriceID: "price_nope"})
	assert.ErrorIs(t, err, ErrPlanNotFound)
	_, err = f.svc.CreateCheckoutSession(context.Background(), "u1", models.CheckoutRequest{Plan: "home", PriceID: "price_credits_60"})
	assert.ErrorIs(t, err, ErrInvalidCheckout)
	_, err = f.svc.CreateCheckoutSession(context.Background(), "u1", models.CheckoutRequest{Plan: "free"})
	assert.ErrorIs(t, err, ErrPlanNotFound)

	f.gateway.err = billing.ErrGateway
	_, err = f.svc.CreateCheckoutSession(context.Background(), "u1", models.CheckoutRequest{Plan: "pro"})
	assert.ErrorIs(t, err, ErrStripeClient)
}

func TestCreatePortalSession(t *testing.T) {
	f := newBillingFixture(t)
	seedAccount(t, f.store, &models.Account{ID: "u1"})
	seedAccount(t, f.store, &models.Account{ID: "u2", StripeCustomerID: "cus_2"})

	_, err := f.svc.CreatePortalSession(context.Background(), "u1")
	assert.ErrorIs(t, err, ErrUserStripeNotLinked)

	url, err := f.svc.CreatePortalSession(context.Background(), "u2")
	require.NoError(t, err)
	assert.NotEmpty(t, url)
	assert.Equal(t, "cus_2", f.gateway.portalFor)
}
