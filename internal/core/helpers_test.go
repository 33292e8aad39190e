package core

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roomviz/roomviz-backend/internal/billing"
	"github.com/roomviz/roomviz-backend/internal/credits"
	"github.com/roomviz/roomviz-backend/internal/db"
	"github.com/roomviz/roomviz-backend/internal/models"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return testNow }

func testCatalog(t *testing.T) *credits.Catalog {
	t.Helper()
	c, err := credits.NewCatalog(
		[]credits.Package{
			{PriceID: "price_credits_20", Name: "20 credits", Credits: 20},
			{PriceID: "price_credits_60", Name: "60 credits", Credits: 60},
		},
		map[models.Plan]credits.PlanSpec{
			models.PlanFree: {MonthlyCredits: 0},
			models.PlanHome: {PriceID: "price_home_monthly", MonthlyCredits: 40},
			models.PlanPro:  {PriceID: "price_pro_monthly", MonthlyCredits: 0},
		},
	)
	require.NoError(t, err)
	return c
}

func seedAccount(t *testing.T, store *db.MemoryStore, a *models.Account) {
	t.Helper()
	if a.Plan == "" {
		a.Plan = models.PlanFree
	}
	require.NoError(t, store.Accounts().Create(context.Background(), a))
}

func loadAccount(t *testing.T, store *db.MemoryStore, id string) *models.Account {
	t.Helper()
	a, err := store.Accounts().GetByID(context.Background(), id)
	require.NoError(t, err)
	return a
}

type fakeGenerator struct {
	url   string
	err   error
	calls int32
	delay time.Duration
}

func (g *fakeGenerator) Generate(ctx context.Context, _ models.GenerateRequest) (string, error) {
	atomic.AddInt32(&g.calls, 1)
	if g.delay > 0 {
		select {
		case <-time.After(g.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return g.url, g.err
}

type fakeGateway struct {
	checkout   billing.CheckoutParams
	portalFor  string
	err        error
	sessionURL string
}

func (g *fakeGateway) CreateCheckoutSession(_ context.Context, p billing.CheckoutParams) (string, string, error) {
	g.checkout = p
	if g.err != nil {
		return "", "", g.err
	}
	return "cs_test_1", "https://checkout.stripe.test/cs_test_1", nil
}

func (g *fakeGateway) CreatePortalSession(_ context.Context, customerID, _ string) (string, error) {
	g.portalFor = customerID
	if g.err != nil {
		return "", g.err
	}
	return "https://billing.stripe.test/session", nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.LedgerEvent
	err    error
}

func (p *recordingPublisher) PublishLedgerEvent(_ context.Context, evt models.LedgerEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return p.err
}

func (p *recordingPublisher) kinds() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Kind)
	}
	return out
}

type recordingAlerter struct {
	mu       sync.Mutex
	subjects []string
}

func (a *recordingAlerter) Alert(_ context.Context, subject, _ string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.subjects = append(a.subjects, subject)
	return nil
}

// failingAccounts makes Mutate fail while delegating everything else.
type failingAccounts struct {
	db.AccountRepository
}

func (f failingAccounts) Mutate(context.Context, string, db.MutateFunc) (*models.Account, error) {
	return nil, errors.New("firestore: transaction aborted")
}
