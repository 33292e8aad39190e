package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/roomviz/roomviz-backend/internal/credits"
	"github.com/roomviz/roomviz-backend/internal/db"
	"github.com/roomviz/roomviz-backend/internal/models"
)

var (
	ErrNoCredits                = errors.New("no credits left")
	ErrGenerationFailed         = errors.New("generation failed")
	ErrCreditDeductionFailed    = errors.New("credit deduction failed")
	ErrInvalidGenerationRequest = errors.New("invalid generation request")
)

// GenerationResult is returned for every successful generation, including
// those whose credit deduction failed afterwards.
type GenerationResult struct {
	Generation  *models.Generation  `json:"generation"`
	Entitlement credits.Entitlement `json:"entitlement"`
	// Warning is set when the artifact is delivered but DeductionErr occurred.
	Warning      string `json:"warning,omitempty"`
	DeductionErr error  `json:"-"`
}

// GenerationServiceDeps are the collaborators of the generation gate.
type GenerationServiceDeps struct {
	Accounts    db.AccountRepository
	Generations db.GenerationRepository
	Generator   Generator
	Audit       AuditService
	Publisher   LedgerPublisher
	Alerter     OperatorAlerter
	Timeout     time.Duration
	Logger      *zap.Logger
	Now         func() time.Time
}

type generationService struct {
	deps   GenerationServiceDeps
	notify notifier
	logger *zap.Logger
	now    func() time.Time
}

// NewGenerationService creates the generation gate.
func NewGenerationService(deps GenerationServiceDeps) GenerationService {
	n := newNotifier(deps.Publisher, deps.Alerter, deps.Logger)
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &generationService{deps: deps, notify: n, logger: n.logger, now: now}
}

// Generate checks the entitlement, calls the generator and spends one credit
// only after an artifact came back. Failed generations are free.
func (s *generationService) Generate(ctx context.Context, userID string, req models.GenerateRequest) (*GenerationResult, error) {
	if !req.Mode.Valid() {
		return nil, fmt.Errorf("%w: unsupported mode '%s'", ErrInvalidGenerationRequest, req.Mode)
	}
	if req.RoomImage == "" {
		return nil, fmt.Errorf("%w: roomImage is required", ErrInvalidGenerationRequest)
	}

	account, err := s.deps.Accounts.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("%w: user with ID '%s'", ErrUserNotFound, userID)
		}
		return nil, fmt.Errorf("failed to load account '%s': %w", userID, err)
	}
	if !credits.HasEntitlement(account, s.now()) {
		return nil, ErrNoCredits
	}

	artifactURL, err := s.callGenerator(ctx, req)
	if err != nil {
		s.logger.Warn("Generation failed; no credit spent",
			zap.String("userId", userID), zap.String("mode", string(req.Mode)), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	// The artifact exists now. Bookkeeping must not be cut short by the
	// client going away.
	ctx = context.WithoutCancel(ctx)
	now := s.now()
	result := &GenerationResult{}

	balance := 0
	updated, err := s.deps.Accounts.Mutate(ctx, userID, func(a *models.Account) error {
		b, err := credits.Consume(a, now)
		balance = b
		return err
	})
	charged := err == nil && balance != credits.Unlimited
	if err != nil {
		result.DeductionErr = fmt.Errorf("%w: %v", ErrCreditDeductionFailed, err)
		result.Warning = "Your image was generated, but we could not deduct a credit. Our team has been notified."
		s.reportDeductionFailure(ctx, userID, err)
		updated = account
	}
	result.Entitlement = credits.Resolve(updated, now)

	gen := &models.Generation{
		OwnerID:      userID,
		Mode:         req.Mode,
		Instructions: req.Instructions,
		ArtifactURL:  artifactURL,
		Charged:      charged,
		CreatedAt:    now.UTC(),
	}
	if _, err := s.deps.Generations.Create(ctx, gen); err != nil {
		s.logger.Warn("Failed to record generation history", zap.String("userId", userID), zap.Error(err))
	}
	result.Generation = gen

	if charged {
		s.notify.publish(ctx, newLedgerEvent(models.LedgerEventCreditsConsumed, updated, -1, "generation", gen.ID, now))
	}
	return result, nil
}

func (s *generationService) callGenerator(ctx context.Context, req models.GenerateRequest) (string, error) {
	if s.deps.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.deps.Timeout)
		defer cancel()
	}
	artifactURL, err := s.deps.Generator.Generate(ctx, req)
	if err != nil {
		return "", err
	}
	if artifactURL == "" {
		return "", errors.New("generator returned no artifact")
	}
	return artifactURL, nil
}

func (s *generationService) reportDeductionFailure(ctx context.Context, userID string, cause error) {
	s.logger.Error("Credit deduction failed after successful generation",
		zap.String("userId", userID), zap.Error(cause))
	recordAudit(ctx, s.deps.Audit, s.logger, models.AuditLog{
		UserID:     "system",
		Action:     models.AuditActionDeductionFailed,
		TargetType: "ACCOUNT",
		TargetID:   userID,
		Details:    map[string]interface{}{"error": cause.Error()},
	})
	s.notify.alert(ctx, "Credit deduction failed",
		fmt.Sprintf("A generation for user %s succeeded but its credit could not be deducted: %v", userID, cause))
}

func (s *generationService) ListGenerations(ctx context.Context, userID string, paginationParams map[string]string) ([]*models.Generation, error) {
	gens, err := s.deps.Generations.ListByOwner(ctx, userID, paginationParams)
	if err != nil {
		return nil, fmt.Errorf("failed to list generations for '%s': %w", userID, err)
	}
	return gens, nil
}
