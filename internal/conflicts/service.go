package conflicts

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/finledger/collab/internal/auth"
	"github.com/finledger/collab/internal/bus"
	"github.com/finledger/collab/internal/domain"
	"github.com/finledger/collab/internal/repository"
	"github.com/finledger/collab/internal/versioning"
)

// Service is the query/command surface over conflicts: listing, inspection,
// resolution, and dismissal. A conflict makes a single transition, from
// detected to resolved; resolution always appends a fresh entity version
// carrying the chosen (or merged) data — including when the already-current
// side is chosen — so the resolved state is always the newest version and
// subscribers always see it as an ordinary update.
type Service struct {
	store      *versioning.Store
	conflicts  repository.ConflictRepository
	changes    *bus.Bus
	authorizer auth.Authorizer
	locks      *EntityLocks
	logger     zerolog.Logger
}

// NewService creates a conflict resolution service. The lock table must be
// shared with the detector operating on the same stores.
func NewService(
	store *versioning.Store,
	conflicts repository.ConflictRepository,
	changes *bus.Bus,
	authorizer auth.Authorizer,
	locks *EntityLocks,
	logger zerolog.Logger,
) *Service {
	return &Service{
		store:      store,
		conflicts:  conflicts,
		changes:    changes,
		authorizer: authorizer,
		locks:      locks,
		logger:     logger.With().Str("component", "conflict_service").Logger(),
	}
}

// ListUnresolved returns a workspace's open conflicts, oldest first.
func (s *Service) ListUnresolved(ctx context.Context, workspaceID, userID uuid.UUID) ([]domain.EntityConflict, error) {
	if err := s.authorizer.CheckWorkspaceAccess(ctx, workspaceID, userID); err != nil {
		return nil, err
	}
	return s.conflicts.ListUnresolved(ctx, workspaceID)
}

// Get returns one conflict by id, resolved or not.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (domain.EntityConflict, error) {
	return s.conflicts.GetByID(ctx, id)
}

// Versions returns an entity's version history, newest first, delegating
// limit validation to the version store.
func (s *Service) Versions(ctx context.Context, entityType domain.EntityType, entityID uuid.UUID, limit int) ([]domain.EntityVersion, error) {
	return s.store.History(ctx, entityType, entityID, limit)
}

// Resolve picks which side of a conflict becomes the new current state.
// chosenVersion must be the conflict's current or incoming version number;
// mergeData, when supplied, overrides the chosen snapshot wholesale and marks
// the resolution as a merge. The resolved entity is published as a normal
// change event.
func (s *Service) Resolve(ctx context.Context, conflictID uuid.UUID, chosenVersion int64, resolverID uuid.UUID, mergeData map[string]any) (domain.EntityConflict, error) {
	conflict, err := s.conflicts.GetByID(ctx, conflictID)
	if err != nil {
		return domain.EntityConflict{}, err
	}

	if err := s.authorizer.CheckWorkspaceAccess(ctx, conflict.WorkspaceID, resolverID); err != nil {
		return domain.EntityConflict{}, err
	}

	s.locks.Lock(conflict.EntityType, conflict.EntityID)
	defer s.locks.Unlock(conflict.EntityType, conflict.EntityID)

	// Re-read under the entity lock: a concurrent Resolve for the same
	// conflict must observe the terminal state, not transition twice.
	conflict, err = s.conflicts.GetByID(ctx, conflictID)
	if err != nil {
		return domain.EntityConflict{}, err
	}
	if conflict.Resolved() {
		return domain.EntityConflict{}, domain.NewValidationError("conflict already resolved")
	}
	if !conflict.AllowsChosenVersion(chosenVersion) {
		return domain.EntityConflict{}, domain.NewValidationError("Invalid chosen version")
	}

	resolution := domain.ResolutionCurrent
	data := conflict.CurrentData
	if chosenVersion == conflict.IncomingVersion && chosenVersion != conflict.CurrentVersion {
		resolution = domain.ResolutionIncoming
		data = conflict.IncomingData
	}
	if mergeData != nil {
		resolution = domain.ResolutionMerge
		data = mergeData
	}

	version, err := s.store.Record(ctx, conflict.EntityType, conflict.EntityID, conflict.WorkspaceID, data, resolverID)
	if err != nil {
		return domain.EntityConflict{}, fmt.Errorf("failed to record resolved version: %w", err)
	}

	resolved, err := s.conflicts.MarkResolved(ctx, conflictID, resolution, resolverID)
	if err != nil {
		return domain.EntityConflict{}, fmt.Errorf("failed to mark conflict resolved: %w", err)
	}

	s.logger.Info().
		Str("conflict_id", conflictID.String()).
		Str("resolution", string(resolution)).
		Int64("new_version", version.VersionNumber).
		Msg("conflict resolved")

	s.changes.Publish(domain.UpdatedEvent(version))
	return resolved, nil
}

// Dismiss resolves a conflict in favor of the already-current state,
// discarding the incoming edit.
func (s *Service) Dismiss(ctx context.Context, conflictID uuid.UUID, resolverID uuid.UUID) (bool, error) {
	conflict, err := s.conflicts.GetByID(ctx, conflictID)
	if err != nil {
		return false, err
	}

	if _, err := s.Resolve(ctx, conflictID, conflict.CurrentVersion, resolverID, nil); err != nil {
		return false, err
	}
	return true, nil
}
