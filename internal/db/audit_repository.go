package db

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"

	"github.com/roomviz/roomviz-backend/internal/models"
)

const auditLogsCollection = "auditLogs"

type firestoreAuditRepository struct {
	client *firestore.Client
}

// NewFirestoreAuditRepository creates a new instance of firestoreAuditRepository.
func NewFirestoreAuditRepository(client *firestore.Client) AuditRepository {
	if client == nil {
		panic("Firestore client is not initialized for AuditRepository")
	}
	return &firestoreAuditRepository{client: client}
}

// Create appends an audit log entry; Timestamp is set server-side.
func (r *firestoreAuditRepository) Create(ctx context.Context, logEntry models.AuditLog) error {
	if _, _, err := r.client.Collection(auditLogsCollection).Add(ctx, logEntry); err != nil {
		return fmt.Errorf("failed to create audit log '%s': %w", logEntry.Action, err)
	}
	return nil
}
