package db

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"cloud.google.com/go/firestore"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"

	"github.com/roomviz/roomviz-backend/internal/models"
)

const (
	generationsCollection  = "generations"
	defaultGenerationLimit = 20
	maxGenerationLimit     = 100
)

// firestoreGenerationRepository stores generations under users/{uid}/generations.
type firestoreGenerationRepository struct {
	client *firestore.Client
	logger *zap.Logger
}

// NewFirestoreGenerationRepository creates a new instance of firestoreGenerationRepository.
func NewFirestoreGenerationRepository(client *firestore.Client, logger *zap.Logger) GenerationRepository {
	if client == nil {
		panic("Firestore client is not initialized for GenerationRepository")
	}
	return &firestoreGenerationRepository{client: client, logger: logger}
}

func (r *firestoreGenerationRepository) collection(ownerID string) *firestore.CollectionRef {
	return r.client.Collection(usersCollection).Doc(ownerID).Collection(generationsCollection)
}

// Create adds a generation with an auto-generated ID and returns it.
func (r *firestoreGenerationRepository) Create(ctx context.Context, generation *models.Generation) (string, error) {
	if generation.OwnerID == "" {
		return "", errors.New("ownerID cannot be empty for Create operation")
	}
	docRef := r.collection(generation.OwnerID).NewDoc()
	generation.ID = docRef.ID

	if _, err := docRef.Create(ctx, generation); err != nil {
		return "", fmt.Errorf("failed to create generation for owner '%s': %w", generation.OwnerID, err)
	}
	return docRef.ID, nil
}

// ListByOwner returns the newest generations first.
// Pagination supports "limit" and "startAfter" (generation ID).
func (r *firestoreGenerationRepository) ListByOwner(ctx context.Context, ownerID string, paginationParams map[string]string) ([]*models.Generation, error) {
	if ownerID == "" {
		return nil, errors.New("ownerID cannot be empty for ListByOwner operation")
	}

	query := r.collection(ownerID).OrderBy("createdAt", firestore.Desc).Limit(PageLimit(paginationParams["limit"]))

	if startAfterDocID := paginationParams["startAfter"]; startAfterDocID != "" {
		startAfterSnap, err := r.collection(ownerID).Doc(startAfterDocID).Get(ctx)
		if err == nil {
			query = query.StartAfter(startAfterSnap)
		} else {
			r.logger.Warn("Could not fetch startAfter generation, returning first page",
				zap.String("ownerID", ownerID), zap.String("startAfter", startAfterDocID), zap.Error(err))
		}
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var generations []*models.Generation
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate generations for owner '%s': %w", ownerID, err)
		}

		var generation models.Generation
		if err := doc.DataTo(&generation); err != nil {
			r.logger.Warn("Skipping undecodable generation", zap.String("id", doc.Ref.ID), zap.Error(err))
			continue
		}
		generation.ID = doc.Ref.ID
		generations = append(generations, &generation)
	}
	return generations, nil
}

// PageLimit resolves a raw limit parameter to the page size actually used.
func PageLimit(raw string) int {
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return defaultGenerationLimit
	}
	if limit > maxGenerationLimit {
		return maxGenerationLimit
	}
	return limit
}
