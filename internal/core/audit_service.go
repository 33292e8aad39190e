package core

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/roomviz/roomviz-backend/internal/db"
	"github.com/roomviz/roomviz-backend/internal/models"
)

// auditService implements the AuditService interface.
type auditService struct {
	auditRepo db.AuditRepository
}

// NewAuditService creates a new AuditService instance.
func NewAuditService(auditRepo db.AuditRepository) AuditService {
	return &auditService{auditRepo: auditRepo}
}

// CreateAuditLog creates a new audit log entry.
func (s *auditService) CreateAuditLog(ctx context.Context, logEntry models.AuditLog) error {
	if logEntry.Action == "" {
		return fmt.Errorf("audit log action cannot be empty")
	}
	if err := s.auditRepo.Create(ctx, logEntry); err != nil {
		return fmt.Errorf("failed to create audit log via repository: %w", err)
	}
	return nil
}

// recordAudit writes entry and only logs on failure; audit writes never fail
// the operation they describe.
func recordAudit(ctx context.Context, audit AuditService, logger *zap.Logger, entry models.AuditLog) {
	if audit == nil {
		return
	}
	if err := audit.CreateAuditLog(ctx, entry); err != nil {
		logger.Warn("Failed to write audit log",
			zap.String("action", entry.Action), zap.String("targetId", entry.TargetID), zap.Error(err))
	}
}
