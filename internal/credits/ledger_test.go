package credits

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roomviz/roomviz-backend/internal/models"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func at(t time.Time) *time.Time { return &t }

func TestEffectiveBalanceExcludesExpiredPurchased(t *testing.T) {
	a := &models.Account{
		Plan:                   models.PlanFree,
		MonthlyCredits:         3,
		PurchasedCredits:       100,
		PurchasedCreditsExpiry: at(testNow.Add(-time.Second)),
	}

	assert.Equal(t, 3, EffectiveBalance(a, testNow))
	assert.Equal(t, 100, a.PurchasedCredits, "lazy expiry must not rewrite the stored value")
}

func TestEffectiveBalanceCountsPurchasedUntilExpiry(t *testing.T) {
	a := &models.Account{
		MonthlyCredits:         2,
		PurchasedCredits:       10,
		PurchasedCreditsExpiry: at(testNow),
	}
	assert.Equal(t, 12, EffectiveBalance(a, testNow), "expiry instant itself is still usable")
	assert.Equal(t, 2, EffectiveBalance(a, testNow.Add(time.Nanosecond)))
}

func TestConsumeSpendsMonthlyFirst(t *testing.T) {
	a := &models.Account{
		Plan:                   models.PlanHome,
		MonthlyCredits:         1,
		PurchasedCredits:       5,
		PurchasedCreditsExpiry: at(testNow.Add(24 * time.Hour)),
	}

	total, err := Consume(a, testNow)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Equal(t, 0, a.MonthlyCredits)
	assert.Equal(t, 5, a.PurchasedCredits)

	total, err = Consume(a, testNow)
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	assert.Equal(t, 4, a.PurchasedCredits)
}

func TestConsumeRejectsExpiredPurchased(t *testing.T) {
	a := &models.Account{
		Plan:                   models.PlanFree,
		PurchasedCredits:       7,
		PurchasedCreditsExpiry: at(testNow.Add(-time.Hour)),
	}

	_, err := Consume(a, testNow)
	require.ErrorIs(t, err, ErrInsufficientCredits)
	assert.Equal(t, 7, a.PurchasedCredits)
	assert.Equal(t, 0, a.MonthlyCredits)
}

func TestConsumeEmptyAccount(t *testing.T) {
	a := &models.Account{Plan: models.PlanHome}
	_, err := Consume(a, testNow)
	require.ErrorIs(t, err, ErrInsufficientCredits)
	assert.Equal(t, 0, a.MonthlyCredits)
	assert.Equal(t, 0, a.PurchasedCredits)
}

func TestConsumeProIsUnlimitedWithoutMutation(t *testing.T) {
	a := &models.Account{Plan: models.PlanPro, MonthlyCredits: 4}
	total, err := Consume(a, testNow)
	require.NoError(t, err)
	assert.Equal(t, Unlimited, total)
	assert.Equal(t, 4, a.MonthlyCredits)
}

func TestConsumeNeverGoesNegative(t *testing.T) {
	a := &models.Account{Plan: models.PlanFree, MonthlyCredits: 2, PurchasedCredits: 1}
	for i := 0; i < 10; i++ {
		_, _ = Consume(a, testNow)
		require.GreaterOrEqual(t, a.MonthlyCredits, 0)
		require.GreaterOrEqual(t, a.PurchasedCredits, 0)
	}
	assert.Equal(t, 0, EffectiveBalance(a, testNow))
}

func TestEffectiveBalanceMonotonicUnderConsume(t *testing.T) {
	a := &models.Account{
		Plan:                   models.PlanHome,
		MonthlyCredits:         3,
		PurchasedCredits:       3,
		PurchasedCreditsExpiry: at(testNow.Add(time.Hour)),
	}
	prev := EffectiveBalance(a, testNow)
	for i := 0; i < 8; i++ {
		_, _ = Consume(a, testNow)
		cur := EffectiveBalance(a, testNow)
		require.LessOrEqual(t, cur, prev)
		prev = cur
	}
}

func TestGrantMonthlyIsReset(t *testing.T) {
	a := &models.Account{MonthlyCredits: 17}
	require.NoError(t, GrantMonthly(a, 40))
	require.NoError(t, GrantMonthly(a, 40))
	assert.Equal(t, 40, a.MonthlyCredits)

	require.ErrorIs(t, GrantMonthly(a, -1), ErrInvalidAmount)
	assert.Equal(t, 40, a.MonthlyCredits)
}

func TestGrantPurchasedOverwritesExpiry(t *testing.T) {
	a := &models.Account{
		PurchasedCredits:       5,
		PurchasedCreditsExpiry: at(testNow.Add(3 * 24 * time.Hour)),
	}

	require.NoError(t, GrantPurchased(a, 20, testNow))

	assert.Equal(t, 25, a.PurchasedCredits)
	require.NotNil(t, a.PurchasedCreditsExpiry)
	assert.True(t, a.PurchasedCreditsExpiry.Equal(testNow.AddDate(1, 0, 0)))
	assert.Equal(t, 365*24*time.Hour, a.PurchasedCreditsExpiry.Sub(testNow))
}

func TestGrantPurchasedShortensLaterExpiry(t *testing.T) {
	later := testNow.AddDate(2, 0, 0)
	a := &models.Account{PurchasedCredits: 1, PurchasedCreditsExpiry: &later}

	require.NoError(t, GrantPurchased(a, 1, testNow))
	assert.True(t, a.PurchasedCreditsExpiry.Equal(testNow.AddDate(1, 0, 0)))
}

func TestGrantPurchasedDropsLapsedBalance(t *testing.T) {
	a := &models.Account{
		PurchasedCredits:       100,
		PurchasedCreditsExpiry: at(testNow.Add(-time.Second)),
	}
	require.NoError(t, GrantPurchased(a, 10, testNow))
	assert.Equal(t, 10, a.PurchasedCredits)
	assert.Equal(t, 10, EffectiveBalance(a, testNow))
}

func TestGrantSignupBonusOnce(t *testing.T) {
	a := &models.Account{Plan: models.PlanFree}

	granted, err := GrantSignupBonus(a, 10, testNow)
	require.NoError(t, err)
	assert.True(t, granted)
	assert.Equal(t, 10, a.PurchasedCredits)

	granted, err = GrantSignupBonus(a, 10, testNow)
	require.NoError(t, err)
	assert.False(t, granted)
	assert.Equal(t, 10, a.PurchasedCredits)
	assert.Equal(t, 0, a.MonthlyCredits)
}

func TestChangePlan(t *testing.T) {
	a := &models.Account{Plan: models.PlanFree, MonthlyCredits: 0}
	require.NoError(t, ChangePlan(a, models.PlanHome, 40))
	assert.Equal(t, models.PlanHome, a.Plan)
	assert.Equal(t, 40, a.MonthlyCredits)
}
