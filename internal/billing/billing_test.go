package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "whsec_test_secret"

func signedHeader(t *testing.T, payload []byte, secret string, at time.Time) string {
	t.Helper()
	ts := at.Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	_, err := fmt.Fprintf(mac, "%d.%s", ts, payload)
	require.NoError(t, err)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func eventPayload(id, typ, object string) []byte {
	return []byte(fmt.Sprintf(`{"id":%q,"object":"event","api_version":"2020-08-27","type":%q,"data":{"object":%s}}`, id, typ, object))
}

func verifyAndDecode(t *testing.T, payload []byte) Event {
	t.Helper()
	v := NewVerifier(testSecret)
	evt, err := v.Verify(payload, signedHeader(t, payload, testSecret, time.Now()))
	require.NoError(t, err)
	decoded, err := Decode(evt)
	require.NoError(t, err)
	return decoded
}

func TestVerifier_RejectsBadSignature(t *testing.T) {
	payload := eventPayload("evt_1", TypeInvoicePaid, `{"id":"in_1","object":"invoice"}`)
	v := NewVerifier(testSecret)

	_, err := v.Verify(payload, signedHeader(t, payload, "whsec_other", time.Now()))
	assert.ErrorIs(t, err, ErrSignature)

	_, err = v.Verify(payload, "")
	assert.ErrorIs(t, err, ErrSignature)

	_, err = v.Verify(payload, signedHeader(t, payload, testSecret, time.Now().Add(-time.Hour)))
	assert.ErrorIs(t, err, ErrSignature, "stale timestamps are rejected")
}

func TestVerifier_RejectsTamperedPayload(t *testing.T) {
	payload := eventPayload("evt_1", TypeInvoicePaid, `{"id":"in_1","object":"invoice"}`)
	header := signedHeader(t, payload, testSecret, time.Now())
	tampered := eventPayload("evt_2", TypeInvoicePaid, `{"id":"in_1","object":"invoice"}`)

	_, err := NewVerifier(testSecret).Verify(tampered, header)
	assert.ErrorIs(t, err, ErrSignature)
}

func TestDecode_CheckoutSubscription(t *testing.T) {
	payload := eventPayload("evt_sub", TypeCheckoutSessionCompleted, `{
		"id":"cs_1","object":"checkout.session","mode":"subscription","payment_status":"paid",
		"customer":"cus_1","subscription":"sub_1","client_reference_id":"ref-user",
		"metadata":{"userId":"user-1","planType":"home"}}`)

	got := verifyAndDecode(t, payload)

	sub, ok := got.(CheckoutSubscription)
	require.True(t, ok, "got %T", got)
	assert.Equal(t, "evt_sub", sub.EventID())
	assert.Equal(t, "cus_1", sub.CustomerID)
	assert.Equal(t, "sub_1", sub.SubscriptionID)
	assert.Equal(t, "user-1", sub.UserID, "metadata wins over client_reference_id")
	assert.Equal(t, "home", sub.PlanType)
}

func TestDecode_CheckoutCredits(t *testing.T) {
	t.Run("from metadata", func(t *testing.T) {
		payload := eventPayload("evt_pay", TypeCheckoutSessionCompleted, `{
			"id":"cs_2","object":"checkout.session","mode":"payment","payment_status":"paid",
			"customer":"cus_2","client_reference_id":"user-2",
			"metadata":{"priceId":"price_credits_20","quantity":"2"}}`)

		got, ok := verifyAndDecode(t, payload).(CheckoutCredits)
		require.True(t, ok)
		assert.Equal(t, "user-2", got.UserID)
		assert.Equal(t, "price_credits_20", got.PriceID)
		assert.Equal(t, int64(2), got.Quantity)
	})

	t.Run("from line items", func(t *testing.T) {
		payload := eventPayload("evt_pay2", TypeCheckoutSessionCompleted, `{
			"id":"cs_3","object":"checkout.session","mode":"payment","payment_status":"paid",
			"line_items":{"object":"list","data":[{"id":"li_1","object":"item","quantity":1,"price":{"id":"price_credits_60","object":"price"}}]}}`)

		got, ok := verifyAndDecode(t, payload).(CheckoutCredits)
		require.True(t, ok)
		assert.Equal(t, "price_credits_60", got.PriceID)
		assert.Equal(t, int64(1), got.Quantity)
	})

	t.Run("fully discounted", func(t *testing.T) {
		payload := eventPayload("evt_pay4", TypeCheckoutSessionCompleted, `{
			"id":"cs_5","object":"checkout.session","mode":"payment","payment_status":"no_payment_required",
			"client_reference_id":"user-5","metadata":{"priceId":"price_credits_20"}}`)

		got, ok := verifyAndDecode(t, payload).(CheckoutCredits)
		require.True(t, ok)
		assert.Equal(t, "user-5", got.UserID)
		assert.Equal(t, "price_credits_20", got.PriceID)
	})

	t.Run("unpaid is not actionable", func(t *testing.T) {
		payload := eventPayload("evt_pay3", TypeCheckoutSessionCompleted, `{
			"id":"cs_4","object":"checkout.session","mode":"payment","payment_status":"unpaid"}`)

		_, ok := verifyAndDecode(t, payload).(Unrecognized)
		assert.True(t, ok)
	})
}

func TestDecode_InvoiceAndSubscription(t *testing.T) {
	invoice := verifyAndDecode(t, eventPayload("evt_inv", TypeInvoicePaid, `{
		"id":"in_1","object":"invoice","customer":"cus_3","subscription":"sub_3","billing_reason":"subscription_cycle"}`))
	paid, ok := invoice.(InvoicePaid)
	require.True(t, ok)
	assert.Equal(t, "cus_3", paid.CustomerID)
	assert.Equal(t, "subscription_cycle", paid.BillingReason)

	oneOff := verifyAndDecode(t, eventPayload("evt_inv2", TypeInvoicePaid, `{"id":"in_2","object":"invoice","customer":"cus_3"}`))
	_, ok = oneOff.(Unrecognized)
	assert.True(t, ok, "invoices without a subscription are ignored")

	updated := verifyAndDecode(t, eventPayload("evt_upd", TypeSubscriptionUpdated, `{
		"id":"sub_3","object":"subscription","customer":"cus_3","status":"active",
		"cancel_at_period_end":true,"canceled_at":1767225600,"current_period_end":1769904000}`))
	upd, ok := updated.(SubscriptionUpdated)
	require.True(t, ok)
	assert.True(t, upd.CancelAtPeriodEnd)
	require.NotNil(t, upd.PeriodEnd)
	assert.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), *upd.PeriodEnd)
	require.NotNil(t, upd.CanceledAt)

	deleted := verifyAndDecode(t, eventPayload("evt_del", TypeSubscriptionDeleted, `{"id":"sub_3","object":"subscription","customer":"cus_3"}`))
	del, ok := deleted.(SubscriptionDeleted)
	require.True(t, ok)
	assert.Equal(t, "cus_3", del.CustomerID)
}

func TestDecode_UnknownType(t *testing.T) {
	got := verifyAndDecode(t, eventPayload("evt_x", "charge.refunded", `{"id":"ch_1","object":"charge"}`))
	u, ok := got.(Unrecognized)
	require.True(t, ok)
	assert.Equal(t, "charge.refunded", u.EventType())
}
