package conflicts

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finledger/collab/internal/domain"
)

// seedConflict puts an entity at version 2 and opens a conflict from a stale
// expected-version-1 write.
func seedConflict(t *testing.T, f *fixture, workspaceID uuid.UUID) domain.EntityConflict {
	t.Helper()
	ctx := context.Background()
	entityID := uuid.New()

	_, err := f.detector.ProposeWrite(ctx, proposal(entityID, workspaceID, 0, map[string]any{"name": "v1"}))
	require.NoError(t, err)
	_, err = f.detector.ProposeWrite(ctx, proposal(entityID, workspaceID, 1, map[string]any{"name": "v2"}))
	require.NoError(t, err)

	outcome, err := f.detector.ProposeWrite(ctx, proposal(entityID, workspaceID, 1, map[string]any{"name": "stale edit"}))
	require.NoError(t, err)
	require.NotNil(t, outcome.Conflict)
	return *outcome.Conflict
}

func TestService_ListUnresolvedRequiresWorkspaceAccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	workspaceID := uuid.New()
	member := uuid.New()
	outsider := uuid.New()
	f.authorizer.Grant(workspaceID, member)

	conflict := seedConflict(t, f, workspaceID)

	list, err := f.service.ListUnresolved(ctx, workspaceID, member)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, conflict.ID, list[0].ID)

	_, err = f.service.ListUnresolved(ctx, workspaceID, outsider)
	assert.True(t, domain.IsForbidden(err))
}

func TestService_GetUnknownConflict(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Get(context.Background(), uuid.New())
	assert.True(t, domain.IsNotFound(err))
}

func TestService_ResolveCurrentKeepsStoredState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	workspaceID := uuid.New()
	resolver := uuid.New()
	f.authorizer.Grant(workspaceID, resolver)

	conflict := seedConflict(t, f, workspaceID)

	resolved, err := f.service.Resolve(ctx, conflict.ID, conflict.CurrentVersion, resolver, nil)
	require.NoError(t, err)
	require.True(t, resolved.Resolved())
	assert.Equal(t, domain.ResolutionCurrent, *resolved.Resolution)

	// Resolution appends a confirming version carrying the current data.
	current, err := f.store.Current(ctx, conflict.EntityType, conflict.EntityID)
	require.NoError(t, err)
	assert.EqualValues(t, conflict.CurrentVersion+1, current.VersionNumber)
	assert.Equal(t, "v2", current.Snapshot["name"])
}

func TestService_ResolveIncomingAppliesRejectedEdit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	workspaceID := uuid.New()
	resolver := uuid.New()
	f.authorizer.Grant(workspaceID, resolver)

	conflict := seedConflict(t, f, workspaceID)

	updates := f.changes.Subscribe(domain.ChannelAccountUpdated)

	resolved, err := f.service.Resolve(ctx, conflict.ID, conflict.IncomingVersion, resolver, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.ResolutionIncoming, *resolved.Resolution)

	current, err := f.store.Current(ctx, conflict.EntityType, conflict.EntityID)
	require.NoError(t, err)
	assert.Equal(t, "stale edit", current.Snapshot["name"])

	// Subscribers see the resolved entity as an ordinary update.
	event := <-updates.Events()
	updated := event.(domain.AccountUpdated)
	assert.EqualValues(t, current.VersionNumber, updated.Version.VersionNumber)
}

func TestService_ResolveMergeOverridesSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	workspaceID := uuid.New()
	resolver := uuid.New()
	f.authorizer.Grant(workspaceID, resolver)

	conflict := seedConflict(t, f, workspaceID)

	merged := map[string]any{"name": "merged by hand"}
	resolved, err := f.service.Resolve(ctx, conflict.ID, conflict.CurrentVersion, resolver, merged)
	require.NoError(t, err)
	assert.Equal(t, domain.ResolutionMerge, *resolved.Resolution)

	current, err := f.store.Current(ctx, conflict.EntityType, conflict.EntityID)
	require.NoError(t, err)
	assert.Equal(t, "merged by hand", current.Snapshot["name"])
}

func TestService_ResolveRejectsInvalidChosenVersion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	workspaceID := uuid.New()
	resolver := uuid.New()
	f.authorizer.Grant(workspaceID, resolver)

	conflict := seedConflict(t, f, workspaceID)

	_, err := f.service.Resolve(ctx, conflict.ID, 99, resolver, nil)
	require.True(t, domain.IsValidation(err))
	assert.EqualError(t, err, "Invalid chosen version")

	// The conflict stays unresolved.
	open, err := f.service.ListUnresolved(ctx, workspaceID, resolver)
	require.NoError(t, err)
	assert.Len(t, open, 1)
}

func TestService_ResolveIsSingleTransition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	workspaceID := uuid.New()
	resolver := uuid.New()
	f.authorizer.Grant(workspaceID, resolver)

	conflict := seedConflict(t, f, workspaceID)

	_, err := f.service.Resolve(ctx, conflict.ID, conflict.CurrentVersion, resolver, nil)
	require.NoError(t, err)

	_, err = f.service.Resolve(ctx, conflict.ID, conflict.IncomingVersion, resolver, nil)
	assert.True(t, domain.IsValidation(err))
}

func TestService_ResolveForbiddenForNonMembers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	workspaceID := uuid.New()

	conflict := seedConflict(t, f, workspaceID)

	_, err := f.service.Resolve(ctx, conflict.ID, conflict.CurrentVersion, uuid.New(), nil)
	assert.True(t, domain.IsForbidden(err))
}

func TestService_ResolveUnknownConflict(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Resolve(context.Background(), uuid.New(), 1, uuid.New(), nil)
	assert.True(t, domain.IsNotFound(err))
}

func TestService_DismissKeepsCurrentState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	workspaceID := uuid.New()
	resolver := uuid.New()
	f.authorizer.Grant(workspaceID, resolver)

	conflict := seedConflict(t, f, workspaceID)

	dismissed, err := f.service.Dismiss(ctx, conflict.ID, resolver)
	require.NoError(t, err)
	assert.True(t, dismissed)

	stored, err := f.service.Get(ctx, conflict.ID)
	require.NoError(t, err)
	require.True(t, stored.Resolved())
	assert.Equal(t, domain.ResolutionCurrent, *stored.Resolution)

	current, err := f.store.Current(ctx, conflict.EntityType, conflict.EntityID)
	require.NoError(t, err)
	assert.Equal(t, "v2", current.Snapshot["name"])
}

func TestService_ResolutionThenNewConflictIsDistinctRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	workspaceID := uuid.New()
	resolver := uuid.New()
	f.authorizer.Grant(workspaceID, resolver)

	conflict := seedConflict(t, f, workspaceID)

	_, err := f.service.Resolve(ctx, conflict.ID, conflict.CurrentVersion, resolver, nil)
	require.NoError(t, err)

	// Another stale write opens a fresh conflict, not the resolved one.
	outcome, err := f.detector.ProposeWrite(ctx, WriteProposal{
		EntityType:      conflict.EntityType,
		EntityID:        conflict.EntityID,
		WorkspaceID:     workspaceID,
		ExpectedVersion: 1,
		Data:            map[string]any{"name": "stale again"},
		Actor:           uuid.New(),
	})
	require.NoError(t, err)
	require.NotNil(t, outcome.Conflict)
	assert.NotEqual(t, conflict.ID, outcome.Conflict.ID)

	open, err := f.service.ListUnresolved(ctx, workspaceID, resolver)
	require.NoError(t, err)
	assert.Len(t, open, 1)
}

func TestService_VersionsDelegatesLimitValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Versions(context.Background(), "INVOICE", uuid.New(), 50)
	assert.True(t, domain.IsValidation(err))

	_, err = f.service.Versions(context.Background(), domain.EntityTypeAccount, uuid.New(), 2000)
	assert.True(t, domain.IsValidation(err))
}
