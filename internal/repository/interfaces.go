package repository

import (
	"context"

	"github.com/finledger/collab/internal/domain"

	"github.com/google/uuid"
)

// VersionRepository defines storage for the append-only entity version log.
type VersionRepository interface {
	// Append stores a new version row. It fails with a
	// domain.VersionConflictError when a row with the same
	// (entityType, entityId, versionNumber) already exists.
	Append(ctx context.Context, version domain.EntityVersion) (domain.EntityVersion, error)

	// History returns up to limit versions of an entity, newest first.
	History(ctx context.Context, entityType domain.EntityType, entityID uuid.UUID, limit int) ([]domain.EntityVersion, error)

	// Current returns the newest version of an entity, or a
	// domain.NotFoundError when the entity has no versions.
	Current(ctx context.Context, entityType domain.EntityType, entityID uuid.UUID) (domain.EntityVersion, error)

	// CurrentNumber returns the newest version number of an entity, or 0
	// when the entity has no versions.
	CurrentNumber(ctx context.Context, entityType domain.EntityType, entityID uuid.UUID) (int64, error)

	// CurrentMany returns the newest version of each listed entity of one
	// type. Entities with no versions are simply absent from the result.
	CurrentMany(ctx context.Context, entityType domain.EntityType, entityIDs []uuid.UUID) ([]domain.EntityVersion, error)
}

// ConflictRepository defines storage for conflict records.
type ConflictRepository interface {
	// Create stores a new unresolved conflict.
	Create(ctx context.Context, conflict domain.EntityConflict) (domain.EntityConflict, error)

	// GetByID returns a conflict by id, or a domain.NotFoundError.
	GetByID(ctx context.Context, id uuid.UUID) (domain.EntityConflict, error)

	// GetUnresolvedByEntity returns the open conflict for an entity, or a
	// domain.NotFoundError when none is open.
	GetUnresolvedByEntity(ctx context.Context, entityType domain.EntityType, entityID uuid.UUID) (domain.EntityConflict, error)

	// Refresh updates both sides of an open conflict after a further stale
	// write against the same entity: the incoming side carries the newest
	// rejected edit, and the current side is re-read at refresh time so the
	// conflict never reports a version the entity has since moved past.
	Refresh(ctx context.Context, id uuid.UUID, currentVersion int64, currentData map[string]any, incomingVersion int64, incomingData map[string]any) (domain.EntityConflict, error)

	// ListUnresolved returns all open conflicts in a workspace, oldest first.
	ListUnresolved(ctx context.Context, workspaceID uuid.UUID) ([]domain.EntityConflict, error)

	// MarkResolved records the terminal transition of a conflict. It fails
	// with a domain.NotFoundError when the conflict does not exist or is
	// already resolved.
	MarkResolved(ctx context.Context, id uuid.UUID, resolution domain.Resolution, resolvedBy uuid.UUID) (domain.EntityConflict, error)
}
