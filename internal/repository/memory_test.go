package repository

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/finledger/collab/internal/domain"
)

func TestMemoryVersionRepository_AppendRejectsDuplicateNumber(t *testing.T) {
	repo := NewMemoryVersionRepository()
	ctx := context.Background()
	entityID := uuid.New()

	first := domain.NewEntityVersion(domain.EntityTypeAccount, entityID, uuid.New(), 1, nil, uuid.New())
	if _, err := repo.Append(ctx, first); err != nil {
		t.Fatalf("expected first append to succeed, got %v", err)
	}

	duplicate := domain.NewEntityVersion(domain.EntityTypeAccount, entityID, uuid.New(), 1, nil, uuid.New())
	_, err := repo.Append(ctx, duplicate)
	if !domain.IsVersionConflict(err) {
		t.Fatalf("expected a version conflict error, got %v", err)
	}
}

func TestMemoryVersionRepository_HistoryNewestFirst(t *testing.T) {
	repo := NewMemoryVersionRepository()
	ctx := context.Background()
	entityID := uuid.New()
	workspaceID := uuid.New()

	for i := int64(1); i <= 3; i++ {
		version := domain.NewEntityVersion(domain.EntityTypeTransaction, entityID, workspaceID, i, map[string]any{"n": i}, uuid.New())
		if _, err := repo.Append(ctx, version); err != nil {
			t.Fatalf("append %d failed: %v", i, err)
		}
	}

	history, err := repo.History(ctx, domain.EntityTypeTransaction, entityID, 50)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 versions, got %d", len(history))
	}
	for i, version := range history {
		if want := int64(3 - i); version.VersionNumber != want {
			t.Fatalf("expected version %d at position %d, got %d", want, i, version.VersionNumber)
		}
	}

	capped, err := repo.History(ctx, domain.EntityTypeTransaction, entityID, 2)
	if err != nil {
		t.Fatalf("capped history failed: %v", err)
	}
	if len(capped) != 2 || capped[0].VersionNumber != 3 {
		t.Fatalf("expected the 2 newest versions, got %+v", capped)
	}
}

func TestMemoryVersionRepository_CurrentMany(t *testing.T) {
	repo := NewMemoryVersionRepository()
	ctx := context.Background()
	workspaceID := uuid.New()

	known := uuid.New()
	unknown := uuid.New()
	for i := int64(1); i <= 2; i++ {
		version := domain.NewEntityVersion(domain.EntityTypeAccount, known, workspaceID, i, nil, uuid.New())
		if _, err := repo.Append(ctx, version); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}

	versions, err := repo.CurrentMany(ctx, domain.EntityTypeAccount, []uuid.UUID{known, unknown})
	if err != nil {
		t.Fatalf("current many failed: %v", err)
	}
	if len(versions) != 1 {
		t.Fatalf("expected one current version, got %d", len(versions))
	}
	if versions[0].VersionNumber != 2 {
		t.Fatalf("expected newest version 2, got %d", versions[0].VersionNumber)
	}
}

func TestMemoryConflictRepository_Lifecycle(t *testing.T) {
	repo := NewMemoryConflictRepository()
	ctx := context.Background()
	workspaceID := uuid.New()
	entityID := uuid.New()

	conflict := domain.NewEntityConflict(domain.EntityTypeBudget, entityID, workspaceID, 2, 1, nil, map[string]any{"v": 1})
	if _, err := repo.Create(ctx, conflict); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	open, err := repo.GetUnresolvedByEntity(ctx, domain.EntityTypeBudget, entityID)
	if err != nil {
		t.Fatalf("expected an open conflict, got %v", err)
	}
	if open.ID != conflict.ID {
		t.Fatalf("expected conflict %s, got %s", conflict.ID, open.ID)
	}

	refreshed, err := repo.Refresh(ctx, conflict.ID, 3, map[string]any{"v": 3}, 1, map[string]any{"v": 2})
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if refreshed.IncomingData["v"] != 2 {
		t.Fatalf("expected incoming data to be refreshed")
	}
	if refreshed.CurrentVersion != 3 || refreshed.CurrentData["v"] != 3 {
		t.Fatalf("expected current side to be refreshed, got version %d data %v",
			refreshed.CurrentVersion, refreshed.CurrentData)
	}

	resolver := uuid.New()
	resolved, err := repo.MarkResolved(ctx, conflict.ID, domain.ResolutionCurrent, resolver)
	if err != nil {
		t.Fatalf("mark resolved failed: %v", err)
	}
	if !resolved.Resolved() || *resolved.Resolution != domain.ResolutionCurrent {
		t.Fatalf("expected terminal state with resolution current, got %+v", resolved)
	}

	if _, err := repo.MarkResolved(ctx, conflict.ID, domain.ResolutionIncoming, resolver); !domain.IsNotFound(err) {
		t.Fatalf("expected a second resolution to fail with not found, got %v", err)
	}

	list, err := repo.ListUnresolved(ctx, workspaceID)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected no open conflicts after resolution, got %d", len(list))
	}
}
