package domain

import (
	"time"

	"github.com/google/uuid"
)

// Resolution names which side of a conflict became the new current state.
type Resolution string

const (
	ResolutionCurrent  Resolution = "current"
	ResolutionIncoming Resolution = "incoming"
	ResolutionMerge    Resolution = "merge"
)

// EntityConflict records a rejected concurrent write: the writer believed
// incomingVersion was current, but the store had moved on to currentVersion.
// A conflict transitions exactly once, from detected to resolved, and is kept
// afterwards as an audit record.
type EntityConflict struct {
	ID              uuid.UUID      `json:"id"`
	EntityType      EntityType     `json:"entity_type"`
	EntityID        uuid.UUID      `json:"entity_id"`
	WorkspaceID     uuid.UUID      `json:"workspace_id"`
	CurrentVersion  int64          `json:"current_version"`
	IncomingVersion int64          `json:"incoming_version"`
	CurrentData     map[string]any `json:"current_data"`
	IncomingData    map[string]any `json:"incoming_data"`
	DetectedAt      time.Time      `json:"detected_at"`
	ResolvedAt      *time.Time     `json:"resolved_at,omitempty"`
	Resolution      *Resolution    `json:"resolution,omitempty"`
	ResolvedBy      *uuid.UUID     `json:"resolved_by,omitempty"`
}

// NewEntityConflict creates an unresolved conflict between the stored state
// (currentVersion/currentData) and a rejected write (incomingVersion/incomingData).
func NewEntityConflict(
	entityType EntityType,
	entityID uuid.UUID,
	workspaceID uuid.UUID,
	currentVersion int64,
	incomingVersion int64,
	currentData map[string]any,
	incomingData map[string]any,
) EntityConflict {
	return EntityConflict{
		ID:              uuid.New(),
		EntityType:      entityType,
		EntityID:        entityID,
		WorkspaceID:     workspaceID,
		CurrentVersion:  currentVersion,
		IncomingVersion: incomingVersion,
		CurrentData:     copySnapshot(currentData),
		IncomingData:    copySnapshot(incomingData),
		DetectedAt:      time.Now(),
	}
}

// Resolved reports whether the conflict has reached its terminal state.
func (c EntityConflict) Resolved() bool {
	return c.ResolvedAt != nil
}

// AllowsChosenVersion reports whether version is one of the two disputed
// version numbers a resolution may pick.
func (c EntityConflict) AllowsChosenVersion(version int64) bool {
	return version == c.CurrentVersion || version == c.IncomingVersion
}
