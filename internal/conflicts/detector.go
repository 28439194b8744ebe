// Package conflicts implements optimistic concurrency control for financial
// records: the write-time compare-and-set that either accepts a write or
// materializes a conflict, and the command surface for resolving conflicts.
package conflicts

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/finledger/collab/internal/bus"
	"github.com/finledger/collab/internal/domain"
	"github.com/finledger/collab/internal/repository"
	"github.com/finledger/collab/internal/versioning"
)

// WriteProposal carries one optimistic write: the data a client wants to
// store and the version it read before editing. ExpectedVersion 0 means the
// client believes the entity does not exist yet.
type WriteProposal struct {
	EntityType      domain.EntityType
	EntityID        uuid.UUID
	WorkspaceID     uuid.UUID
	ExpectedVersion int64
	Data            map[string]any
	Actor           uuid.UUID
}

// WriteOutcome is the result of a proposal: exactly one of Version (the write
// was accepted and this is the new current version) or Conflict (the write
// was rejected and recorded for resolution) is set.
type WriteOutcome struct {
	Accepted bool
	Version  *domain.EntityVersion
	Conflict *domain.EntityConflict
}

// Detector validates proposed writes against the version store and turns
// stale writes into conflict records instead of applying them.
type Detector struct {
	store     *versioning.Store
	conflicts repository.ConflictRepository
	changes   *bus.Bus
	locks     *EntityLocks
	logger    zerolog.Logger
}

// NewDetector creates a conflict detector. The lock table must be shared with
// the resolver service operating on the same stores.
func NewDetector(
	store *versioning.Store,
	conflicts repository.ConflictRepository,
	changes *bus.Bus,
	locks *EntityLocks,
	logger zerolog.Logger,
) *Detector {
	return &Detector{
		store:     store,
		conflicts: conflicts,
		changes:   changes,
		locks:     locks,
		logger:    logger.With().Str("component", "conflict_detector").Logger(),
	}
}

// ProposeWrite runs the compare-and-set for one optimistic write. When the
// proposal's expected version matches the stored current version the write is
// appended as a new version and an update event is published. Otherwise the
// write is not applied: the disagreement is recorded as a conflict (reusing
// the entity's open conflict if one exists, so at most one stays unresolved
// per entity) and a conflict-detected event is published.
func (d *Detector) ProposeWrite(ctx context.Context, proposal WriteProposal) (WriteOutcome, error) {
	if !proposal.EntityType.Valid() {
		return WriteOutcome{}, domain.NewValidationError(fmt.Sprintf("unknown entity type %q", proposal.EntityType))
	}
	if proposal.EntityID == uuid.Nil {
		return WriteOutcome{}, domain.NewValidationError("entityId is required")
	}
	if proposal.WorkspaceID == uuid.Nil {
		return WriteOutcome{}, domain.NewValidationError("workspaceId is required")
	}
	if proposal.ExpectedVersion < 0 {
		return WriteOutcome{}, domain.NewValidationError("expectedVersion must not be negative")
	}

	d.locks.Lock(proposal.EntityType, proposal.EntityID)
	defer d.locks.Unlock(proposal.EntityType, proposal.EntityID)

	current, err := d.store.CurrentNumber(ctx, proposal.EntityType, proposal.EntityID)
	if err != nil {
		return WriteOutcome{}, fmt.Errorf("failed to read current version: %w", err)
	}

	if proposal.ExpectedVersion == current {
		version, err := d.store.Record(ctx, proposal.EntityType, proposal.EntityID, proposal.WorkspaceID, proposal.Data, proposal.Actor)
		if err != nil {
			return WriteOutcome{}, fmt.Errorf("failed to record version: %w", err)
		}

		d.changes.Publish(domain.UpdatedEvent(version))
		return WriteOutcome{Accepted: true, Version: &version}, nil
	}

	conflict, err := d.materializeConflict(ctx, proposal, current)
	if err != nil {
		return WriteOutcome{}, err
	}

	d.logger.Info().
		Str("entity_type", proposal.EntityType.String()).
		Str("entity_id", proposal.EntityID.String()).
		Int64("current_version", current).
		Int64("incoming_version", proposal.ExpectedVersion).
		Msg("version conflict detected")

	d.changes.Publish(domain.ConflictDetected{Conflict: conflict})
	return WriteOutcome{Conflict: &conflict}, nil
}

func (d *Detector) materializeConflict(ctx context.Context, proposal WriteProposal, currentNumber int64) (domain.EntityConflict, error) {
	var currentData map[string]any
	if currentNumber > 0 {
		stored, err := d.store.Current(ctx, proposal.EntityType, proposal.EntityID)
		if err != nil {
			return domain.EntityConflict{}, fmt.Errorf("failed to read current snapshot: %w", err)
		}
		currentData = stored.Snapshot
	}

	// A second stale write against an entity with an open conflict refreshes
	// that conflict rather than opening another one. Both sides are updated:
	// the entity may have moved on since the first detection, and the
	// conflict must always report the version and data current at the latest
	// detection.
	existing, err := d.conflicts.GetUnresolvedByEntity(ctx, proposal.EntityType, proposal.EntityID)
	if err == nil {
		return d.conflicts.Refresh(ctx, existing.ID, currentNumber, currentData, proposal.ExpectedVersion, proposal.Data)
	}
	if !domain.IsNotFound(err) {
		return domain.EntityConflict{}, fmt.Errorf("failed to look up open conflict: %w", err)
	}

	conflict := domain.NewEntityConflict(
		proposal.EntityType,
		proposal.EntityID,
		proposal.WorkspaceID,
		currentNumber,
		proposal.ExpectedVersion,
		currentData,
		proposal.Data,
	)
	return d.conflicts.Create(ctx, conflict)
}
