package domain

import (
	"time"

	"github.com/google/uuid"
)

// EntityVersion is an immutable, numbered snapshot of one entity's state.
// Versions for a given (entityType, entityId) increase by exactly one per
// accepted write; history is appended to, never rewritten.
type EntityVersion struct {
	ID            uuid.UUID      `json:"id"`
	EntityType    EntityType     `json:"entity_type"`
	EntityID      uuid.UUID      `json:"entity_id"`
	WorkspaceID   uuid.UUID      `json:"workspace_id"`
	VersionNumber int64          `json:"version_number"`
	Snapshot      map[string]any `json:"snapshot"`
	ChangedBy     uuid.UUID      `json:"changed_by"`
	ChangedAt     time.Time      `json:"changed_at"`
}

// NewEntityVersion creates version number versionNumber of an entity,
// deep-copying the snapshot so later caller mutations cannot leak in.
func NewEntityVersion(
	entityType EntityType,
	entityID uuid.UUID,
	workspaceID uuid.UUID,
	versionNumber int64,
	snapshot map[string]any,
	changedBy uuid.UUID,
) EntityVersion {
	return EntityVersion{
		ID:            uuid.New(),
		EntityType:    entityType,
		EntityID:      entityID,
		WorkspaceID:   workspaceID,
		VersionNumber: versionNumber,
		Snapshot:      copySnapshot(snapshot),
		ChangedBy:     changedBy,
		ChangedAt:     time.Now(),
	}
}

// copySnapshot deep-copies nested maps and slices so stored snapshots stay
// isolated from caller-held references.
func copySnapshot(snapshot map[string]any) map[string]any {
	if snapshot == nil {
		return nil
	}
	out := make(map[string]any, len(snapshot))
	for k, v := range snapshot {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return copySnapshot(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = copyValue(item)
		}
		return out
	default:
		return v
	}
}
