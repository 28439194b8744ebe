// Package versioning maintains the append-only log of entity snapshots.
// Version numbers for an entity increase by exactly one per accepted write;
// callers that race must serialize per entity before recording (the conflict
// detector does this), otherwise Append surfaces a VersionConflictError.
package versioning

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/finledger/collab/internal/domain"
	"github.com/finledger/collab/internal/repository"
)

const (
	// DefaultHistoryLimit applies when a caller supplies no limit.
	DefaultHistoryLimit = 50
	// MaxHistoryLimit is the largest history page a caller may request.
	MaxHistoryLimit = 1000
)

// Store records and queries entity versions.
type Store struct {
	versions repository.VersionRepository
}

// NewStore creates a version store over the given repository.
func NewStore(versions repository.VersionRepository) *Store {
	return &Store{versions: versions}
}

// Record appends the next version of an entity and returns it. The new
// version number is one past the entity's current maximum.
func (s *Store) Record(
	ctx context.Context,
	entityType domain.EntityType,
	entityID uuid.UUID,
	workspaceID uuid.UUID,
	snapshot map[string]any,
	actor uuid.UUID,
) (domain.EntityVersion, error) {
	if !entityType.Valid() {
		return domain.EntityVersion{}, domain.NewValidationError(fmt.Sprintf("unknown entity type %q", entityType))
	}

	current, err := s.versions.CurrentNumber(ctx, entityType, entityID)
	if err != nil {
		return domain.EntityVersion{}, fmt.Errorf("failed to read current version: %w", err)
	}

	version := domain.NewEntityVersion(entityType, entityID, workspaceID, current+1, snapshot, actor)
	return s.versions.Append(ctx, version)
}

// History returns up to limit versions of an entity, newest first. A zero
// limit means DefaultHistoryLimit; limits outside [1, MaxHistoryLimit] are
// rejected.
func (s *Store) History(ctx context.Context, entityType domain.EntityType, entityID uuid.UUID, limit int) ([]domain.EntityVersion, error) {
	if !entityType.Valid() {
		return nil, domain.NewValidationError(fmt.Sprintf("unknown entity type %q", entityType))
	}
	if limit == 0 {
		limit = DefaultHistoryLimit
	}
	if limit < 1 || limit > MaxHistoryLimit {
		return nil, domain.NewValidationError(fmt.Sprintf("limit must be between 1 and %d", MaxHistoryLimit))
	}

	return s.versions.History(ctx, entityType, entityID, limit)
}

// Current returns the newest version of an entity.
func (s *Store) Current(ctx context.Context, entityType domain.EntityType, entityID uuid.UUID) (domain.EntityVersion, error) {
	return s.versions.Current(ctx, entityType, entityID)
}

// CurrentNumber returns the newest version number of an entity, 0 when the
// entity has never been written.
func (s *Store) CurrentNumber(ctx context.Context, entityType domain.EntityType, entityID uuid.UUID) (int64, error) {
	return s.versions.CurrentNumber(ctx, entityType, entityID)
}
