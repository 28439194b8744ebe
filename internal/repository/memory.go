package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/finledger/collab/internal/domain"
)

// entityKey identifies one entity across both in-memory stores.
type entityKey struct {
	entityType domain.EntityType
	entityID   uuid.UUID
}

// memoryVersionRepository implements VersionRepository in process memory.
// Used by tests and by deployments running without Postgres.
type memoryVersionRepository struct {
	mu       sync.RWMutex
	versions map[entityKey][]domain.EntityVersion
}

// NewMemoryVersionRepository creates an in-memory version repository
func NewMemoryVersionRepository() VersionRepository {
	return &memoryVersionRepository{
		versions: make(map[entityKey][]domain.EntityVersion),
	}
}

func (r *memoryVersionRepository) Append(ctx context.Context, version domain.EntityVersion) (domain.EntityVersion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := entityKey{entityType: version.EntityType, entityID: version.EntityID}
	for _, existing := range r.versions[key] {
		if existing.VersionNumber == version.VersionNumber {
			return domain.EntityVersion{}, &domain.VersionConflictError{
				EntityType:    version.EntityType,
				EntityID:      version.EntityID.String(),
				VersionNumber: version.VersionNumber,
			}
		}
	}

	r.versions[key] = append(r.versions[key], version)
	return version, nil
}

func (r *memoryVersionRepository) History(ctx context.Context, entityType domain.EntityType, entityID uuid.UUID, limit int) ([]domain.EntityVersion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored := r.versions[entityKey{entityType: entityType, entityID: entityID}]
	history := make([]domain.EntityVersion, len(stored))
	copy(history, stored)
	sort.Slice(history, func(i, j int) bool {
		return history[i].VersionNumber > history[j].VersionNumber
	})

	if limit > 0 && len(history) > limit {
		history = history[:limit]
	}
	return history, nil
}

func (r *memoryVersionRepository) Current(ctx context.Context, entityType domain.EntityType, entityID uuid.UUID) (domain.EntityVersion, error) {
	history, err := r.History(ctx, entityType, entityID, 1)
	if err != nil {
		return domain.EntityVersion{}, err
	}
	if len(history) == 0 {
		return domain.EntityVersion{}, domain.NewNotFoundError("entity", entityID.String())
	}
	return history[0], nil
}

func (r *memoryVersionRepository) CurrentNumber(ctx context.Context, entityType domain.EntityType, entityID uuid.UUID) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var max int64
	for _, version := range r.versions[entityKey{entityType: entityType, entityID: entityID}] {
		if version.VersionNumber > max {
			max = version.VersionNumber
		}
	}
	return max, nil
}

func (r *memoryVersionRepository) CurrentMany(ctx context.Context, entityType domain.EntityType, entityIDs []uuid.UUID) ([]domain.EntityVersion, error) {
	versions := []domain.EntityVersion{}
	for _, entityID := range entityIDs {
		current, err := r.Current(ctx, entityType, entityID)
		if err != nil {
			if domain.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		versions = append(versions, current)
	}
	return versions, nil
}

// memoryConflictRepository implements ConflictRepository in process memory.
type memoryConflictRepository struct {
	mu        sync.RWMutex
	conflicts map[uuid.UUID]domain.EntityConflict
}

// NewMemoryConflictRepository creates an in-memory conflict repository
func NewMemoryConflictRepository() ConflictRepository {
	return &memoryConflictRepository{
		conflicts: make(map[uuid.UUID]domain.EntityConflict),
	}
}

func (r *memoryConflictRepository) Create(ctx context.Context, conflict domain.EntityConflict) (domain.EntityConflict, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.conflicts[conflict.ID] = conflict
	return conflict, nil
}

func (r *memoryConflictRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.EntityConflict, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conflict, ok := r.conflicts[id]
	if !ok {
		return domain.EntityConflict{}, domain.NewNotFoundError("conflict", id.String())
	}
	return conflict, nil
}

func (r *memoryConflictRepository) GetUnresolvedByEntity(ctx context.Context, entityType domain.EntityType, entityID uuid.UUID) (domain.EntityConflict, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, conflict := range r.conflicts {
		if conflict.EntityType == entityType && conflict.EntityID == entityID && !conflict.Resolved() {
			return conflict, nil
		}
	}
	return domain.EntityConflict{}, domain.NewNotFoundError("unresolved conflict", entityID.String())
}

func (r *memoryConflictRepository) Refresh(ctx context.Context, id uuid.UUID, currentVersion int64, currentData map[string]any, incomingVersion int64, incomingData map[string]any) (domain.EntityConflict, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conflict, ok := r.conflicts[id]
	if !ok || conflict.Resolved() {
		return domain.EntityConflict{}, domain.NewNotFoundError("unresolved conflict", id.String())
	}

	conflict.CurrentVersion = currentVersion
	conflict.CurrentData = currentData
	conflict.IncomingVersion = incomingVersion
	conflict.IncomingData = incomingData
	conflict.DetectedAt = time.Now()
	r.conflicts[id] = conflict
	return conflict, nil
}

func (r *memoryConflictRepository) ListUnresolved(ctx context.Context, workspaceID uuid.UUID) ([]domain.EntityConflict, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conflicts := []domain.EntityConflict{}
	for _, conflict := range r.conflicts {
		if conflict.WorkspaceID == workspaceID && !conflict.Resolved() {
			conflicts = append(conflicts, conflict)
		}
	}
	sort.Slice(conflicts, func(i, j int) bool {
		return conflicts[i].DetectedAt.Before(conflicts[j].DetectedAt)
	})
	return conflicts, nil
}

func (r *memoryConflictRepository) MarkResolved(ctx context.Context, id uuid.UUID, resolution domain.Resolution, resolvedBy uuid.UUID) (domain.EntityConflict, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conflict, ok := r.conflicts[id]
	if !ok || conflict.Resolved() {
		return domain.EntityConflict{}, domain.NewNotFoundError("unresolved conflict", id.String())
	}

	now := time.Now()
	conflict.ResolvedAt = &now
	conflict.Resolution = &resolution
	conflict.ResolvedBy = &resolvedBy
	r.conflicts[id] = conflict
	return conflict, nil
}
