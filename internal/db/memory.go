package db

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roomviz/roomviz-backend/internal/models"
)

// MemoryStore is an in-process implementation of the repositories, used by
// tests and by the server when STORAGE_DRIVER=memory. A single mutex
// serializes every mutation, which gives the same per-account atomicity as a
// Firestore transaction.
type MemoryStore struct {
	mu          sync.Mutex
	accounts    map[string]*models.Account
	events      map[string]models.BillingEventRecord
	generations map[string][]*models.Generation
	audit       []models.AuditLog
	now         func() time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:    make(map[string]*models.Account),
		events:      make(map[string]models.BillingEventRecord),
		generations: make(map[string][]*models.Generation),
		now:         time.Now,
	}
}

// Accounts exposes the store as an AccountRepository.
func (s *MemoryStore) Accounts() AccountRepository { return memoryAccounts{s} }

// Generations exposes the store as a GenerationRepository.
func (s *MemoryStore) Generations() GenerationRepository { return memoryGenerations{s} }

// Audit exposes the store as an AuditRepository.
func (s *MemoryStore) Audit() AuditRepository { return memoryAudit{s} }

// AuditLogs returns a copy of the recorded audit entries.
func (s *MemoryStore) AuditLogs() []models.AuditLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.AuditLog(nil), s.audit...)
}

// ProcessedEvent returns the stored marker for a billing event id.
func (s *MemoryStore) ProcessedEvent(eventID string) (models.BillingEventRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.events[eventID]
	return rec, ok
}

type memoryAccounts struct{ s *MemoryStore }

func (m memoryAccounts) Create(_ context.Context, account *models.Account) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if account.ID == "" {
		return fmt.Errorf("account ID cannot be empty for Create operation")
	}
	if _, ok := m.s.accounts[account.ID]; ok {
		return fmt.Errorf("account with ID '%s': %w", account.ID, ErrAlreadyExists)
	}
	stored := account.Clone()
	now := m.s.now().UTC()
	stored.CreatedAt, stored.UpdatedAt = now, now
	m.s.accounts[account.ID] = stored
	return nil
}

func (m memoryAccounts) GetByID(_ context.Context, userID string) (*models.Account, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	return m.s.get(userID)
}

func (m memoryAccounts) GetByStripeCustomerID(_ context.Context, customerID string) (*models.Account, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, a := range m.s.accounts {
		if customerID != "" && a.StripeCustomerID == customerID {
			out := a.Clone()
			out.Hydrate()
			return out, nil
		}
	}
	return nil, fmt.Errorf("account for Stripe customer '%s' not found: %w", customerID, ErrNotFound)
}

func (m memoryAccounts) UpdateProfile(_ context.Context, account *models.Account) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	stored, ok := m.s.accounts[account.ID]
	if !ok {
		return fmt.Errorf("account with ID '%s' not found: %w", account.ID, ErrNotFound)
	}
	stored.Email = account.Email
	stored.DisplayName = account.DisplayName
	stored.PhotoURL = account.PhotoURL
	stored.UpdatedAt = m.s.now().UTC()
	return nil
}

func (m memoryAccounts) Mutate(_ context.Context, userID string, fn MutateFunc) (*models.Account, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	return m.s.mutate(userID, fn)
}

func (m memoryAccounts) MutateOnce(_ context.Context, event models.BillingEventRecord, userID string, fn MutateFunc) (*models.Account, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if event.ID == "" {
		return nil, fmt.Errorf("billing event ID cannot be empty for MutateOnce operation")
	}
	if _, seen := m.s.events[event.ID]; seen {
		return nil, fmt.Errorf("apply billing event '%s': %w", event.ID, ErrEventAlreadyProcessed)
	}
	out, err := m.s.mutate(userID, fn)
	if err != nil {
		return nil, err
	}
	event.UserID = userID
	if event.AppliedAt.IsZero() {
		event.AppliedAt = m.s.now().UTC()
	}
	m.s.events[event.ID] = event
	return out, nil
}

// get and mutate expect s.mu to be held.
func (s *MemoryStore) get(userID string) (*models.Account, error) {
	a, ok := s.accounts[userID]
	if !ok {
		return nil, fmt.Errorf("account with ID '%s' not found: %w", userID, ErrNotFound)
	}
	out := a.Clone()
	out.Hydrate()
	return out, nil
}

func (s *MemoryStore) mutate(userID string, fn MutateFunc) (*models.Account, error) {
	working, err := s.get(userID)
	if err != nil {
		return nil, err
	}
	if err := fn(working); err != nil {
		return nil, fmt.Errorf("mutate account '%s': %w", userID, err)
	}
	working.UpdatedAt = s.now().UTC()
	s.accounts[userID] = working.Clone()
	return working, nil
}

type memoryGenerations struct{ s *MemoryStore }

func (m memoryGenerations) Create(_ context.Context, generation *models.Generation) (string, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if generation.OwnerID == "" {
		return "", fmt.Errorf("ownerID cannot be empty for Create operation")
	}
	generation.ID = uuid.NewString()
	stored := *generation
	m.s.generations[generation.OwnerID] = append(m.s.generations[generation.OwnerID], &stored)
	return generation.ID, nil
}

func (m memoryGenerations) ListByOwner(_ context.Context, ownerID string, paginationParams map[string]string) ([]*models.Generation, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	all := make([]*models.Generation, len(m.s.generations[ownerID]))
	copy(all, m.s.generations[ownerID])
	sort.SliceStable(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	if after := paginationParams["startAfter"]; after != "" {
		for i, g := range all {
			if g.ID == after {
				all = all[i+1:]
				break
			}
		}
	}
	if limit := PageLimit(paginationParams["limit"]); len(all) > limit {
		all = all[:limit]
	}

	out := make([]*models.Generation, 0, len(all))
	for _, g := range all {
		c := *g
		out = append(out, &c)
	}
	return out, nil
}

type memoryAudit struct{ s *MemoryStore }

func (m memoryAudit) Create(_ context.Context, logEntry models.AuditLog) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if logEntry.Timestamp.IsZero() {
		logEntry.Timestamp = m.s.now().UTC()
	}
	m.s.audit = append(m.s.audit, logEntry)
	return nil
}
