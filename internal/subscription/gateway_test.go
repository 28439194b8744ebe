package subscription

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finledger/collab/internal/bus"
	"github.com/finledger/collab/internal/domain"
)

func newGateway(t *testing.T, maxPerUser int) (*Gateway, *bus.Bus, *Metrics) {
	t.Helper()
	changes := bus.New(64, zerolog.Nop())
	t.Cleanup(changes.Close)
	metrics := NewMetrics()
	return NewGateway(changes, metrics, maxPerUser, zerolog.Nop()), changes, metrics
}

func workspaceSet(ids ...uuid.UUID) map[uuid.UUID]struct{} {
	set := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func accountEvent(workspaceID uuid.UUID, number int64) domain.Event {
	version := domain.NewEntityVersion(
		domain.EntityTypeAccount,
		uuid.New(),
		workspaceID,
		number,
		map[string]any{"name": "Checking"},
		uuid.New(),
	)
	return domain.UpdatedEvent(version)
}

func TestGateway_PerUserCapRejectsSilently(t *testing.T) {
	gateway, _, metrics := newGateway(t, 2)
	ctx := context.Background()
	userID := uuid.New()
	workspaces := workspaceSet(uuid.New())

	first, ok := gateway.Open(ctx, domain.ChannelAccountUpdated, workspaces, userID)
	require.True(t, ok)
	defer first.Close()
	second, ok := gateway.Open(ctx, domain.ChannelBudgetUpdated, workspaces, userID)
	require.True(t, ok)
	defer second.Close()

	third, ok := gateway.Open(ctx, domain.ChannelPayeeUpdated, workspaces, userID)
	assert.False(t, ok)
	assert.Nil(t, third)
	assert.Equal(t, 2, gateway.ActiveForUser(userID))

	snap := metrics.Snapshot()
	assert.EqualValues(t, 1, snap.Rejected)
	assert.Equal(t, 2, snap.Active)
}

func TestGateway_CapIsPerUser(t *testing.T) {
	gateway, _, _ := newGateway(t, 1)
	ctx := context.Background()
	workspaces := workspaceSet(uuid.New())

	first, ok := gateway.Open(ctx, domain.ChannelAccountUpdated, workspaces, uuid.New())
	require.True(t, ok)
	defer first.Close()

	second, ok := gateway.Open(ctx, domain.ChannelAccountUpdated, workspaces, uuid.New())
	require.True(t, ok)
	second.Close()
}

func TestGateway_CloseFreesCapacity(t *testing.T) {
	gateway, _, metrics := newGateway(t, 1)
	ctx := context.Background()
	userID := uuid.New()
	workspaces := workspaceSet(uuid.New())

	stream, ok := gateway.Open(ctx, domain.ChannelAccountUpdated, workspaces, userID)
	require.True(t, ok)
	stream.Close()
	stream.Close() // closing twice must not double-release the slot

	assert.Equal(t, 0, gateway.ActiveForUser(userID))
	snap := metrics.Snapshot()
	assert.Equal(t, 0, snap.Active)
	assert.EqualValues(t, 1, snap.Closed)

	reopened, ok := gateway.Open(ctx, domain.ChannelAccountUpdated, workspaces, userID)
	require.True(t, ok)
	reopened.Close()
}

func TestGateway_FiltersByWorkspace(t *testing.T) {
	gateway, changes, _ := newGateway(t, 10)
	ctx := context.Background()
	mine := uuid.New()
	other := uuid.New()

	stream, ok := gateway.Open(ctx, domain.ChannelAccountUpdated, workspaceSet(mine), uuid.New())
	require.True(t, ok)
	defer stream.Close()

	changes.Publish(accountEvent(other, 1))
	changes.Publish(accountEvent(mine, 7))

	select {
	case event := <-stream.Events():
		assert.Equal(t, mine, event.EventWorkspaceID())
		assert.EqualValues(t, 7, event.(domain.AccountUpdated).Version.VersionNumber)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for workspace-scoped event")
	}

	select {
	case event, open := <-stream.Events():
		if open {
			t.Fatalf("unexpected event for foreign workspace: %v", event)
		}
	case <-time.After(50 * time.Millisecond):
	}
}

func TestGateway_ContextCancelEndsStream(t *testing.T) {
	gateway, _, _ := newGateway(t, 10)
	ctx, cancel := context.WithCancel(context.Background())
	userID := uuid.New()

	stream, ok := gateway.Open(ctx, domain.ChannelTransactionUpdated, workspaceSet(uuid.New()), userID)
	require.True(t, ok)

	cancel()

	select {
	case _, open := <-stream.Events():
		assert.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("stream did not end after context cancellation")
	}
	require.Eventually(t, func() bool {
		return gateway.ActiveForUser(userID) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestGateway_BusShutdownEndsStream(t *testing.T) {
	gateway, changes, _ := newGateway(t, 10)
	userID := uuid.New()

	stream, ok := gateway.Open(context.Background(), domain.ChannelCategoryUpdated, workspaceSet(uuid.New()), userID)
	require.True(t, ok)

	changes.Close()

	select {
	case _, open := <-stream.Events():
		assert.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("stream did not end after bus shutdown")
	}
	require.Eventually(t, func() bool {
		return gateway.ActiveForUser(userID) == 0
	}, time.Second, 10*time.Millisecond)
}
