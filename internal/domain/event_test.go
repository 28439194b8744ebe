package domain

import (
	"testing"

	"github.com/google/uuid"
)

func TestUpdatedEvent_MatchesEntityKind(t *testing.T) {
	workspaceID := uuid.New()

	tests := []struct {
		entityType EntityType
		channel    Channel
	}{
		{EntityTypeAccount, ChannelAccountUpdated},
		{EntityTypeCategory, ChannelCategoryUpdated},
		{EntityTypePayee, ChannelPayeeUpdated},
		{EntityTypeTransaction, ChannelTransactionUpdated},
		{EntityTypeBudget, ChannelBudgetUpdated},
	}

	for _, tc := range tests {
		version := NewEntityVersion(tc.entityType, uuid.New(), workspaceID, 1, map[string]any{"name": "x"}, uuid.New())
		event := UpdatedEvent(version)

		if event.Channel() != tc.channel {
			t.Fatalf("expected %s event on channel %s, got %s", tc.entityType, tc.channel, event.Channel())
		}
		if event.EventWorkspaceID() != workspaceID {
			t.Fatalf("expected event to carry workspace %s, got %s", workspaceID, event.EventWorkspaceID())
		}
	}
}

func TestConflictDetected_CarriesConflictWorkspace(t *testing.T) {
	conflict := NewEntityConflict(EntityTypeAccount, uuid.New(), uuid.New(), 4, 3, nil, map[string]any{"name": "y"})

	event := ConflictDetected{Conflict: conflict}
	if event.Channel() != ChannelConflictDetected {
		t.Fatalf("expected conflict event on %s, got %s", ChannelConflictDetected, event.Channel())
	}
	if event.EventWorkspaceID() != conflict.WorkspaceID {
		t.Fatalf("expected conflict workspace to be exposed")
	}
}

func TestNewEntityVersion_CopiesSnapshot(t *testing.T) {
	snapshot := map[string]any{"balance": 100, "tags": []any{"a"}}
	version := NewEntityVersion(EntityTypeAccount, uuid.New(), uuid.New(), 1, snapshot, uuid.New())

	snapshot["balance"] = 200
	if version.Snapshot["balance"] != 100 {
		t.Fatalf("expected stored snapshot to be isolated from caller mutation")
	}
}

func TestEntityConflict_AllowsChosenVersion(t *testing.T) {
	conflict := NewEntityConflict(EntityTypeBudget, uuid.New(), uuid.New(), 4, 3, nil, nil)

	if !conflict.AllowsChosenVersion(4) || !conflict.AllowsChosenVersion(3) {
		t.Fatalf("expected both disputed versions to be choosable")
	}
	if conflict.AllowsChosenVersion(5) {
		t.Fatalf("expected versions outside the pair to be rejected")
	}
}
