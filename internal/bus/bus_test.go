package bus

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/finledger/collab/internal/domain"
)

func accountEvent(workspaceID uuid.UUID, n int64) domain.Event {
	version := domain.NewEntityVersion(domain.EntityTypeAccount, uuid.New(), workspaceID, n, nil, uuid.New())
	return domain.AccountUpdated{Version: version}
}

func TestBus_FanOutDeliversToEverySubscriber(t *testing.T) {
	b := New(8, zerolog.Nop())
	defer b.Close()

	first := b.Subscribe(domain.ChannelAccountUpdated)
	second := b.Subscribe(domain.ChannelAccountUpdated)

	event := accountEvent(uuid.New(), 1)
	b.Publish(event)

	for _, sub := range []*Subscription{first, second} {
		select {
		case got := <-sub.Events():
			if got.Channel() != domain.ChannelAccountUpdated {
				t.Fatalf("expected account channel, got %s", got.Channel())
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber did not receive the event")
		}
	}
}

func TestBus_ChannelsAreIsolated(t *testing.T) {
	b := New(8, zerolog.Nop())
	defer b.Close()

	budgets := b.Subscribe(domain.ChannelBudgetUpdated)

	b.Publish(accountEvent(uuid.New(), 1))

	select {
	case event := <-budgets.Events():
		t.Fatalf("budget subscriber received %s event", event.Channel())
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBus_DeliveryOrderPerSubscriber(t *testing.T) {
	b := New(16, zerolog.Nop())
	defer b.Close()

	sub := b.Subscribe(domain.ChannelAccountUpdated)
	workspaceID := uuid.New()

	for i := int64(1); i <= 5; i++ {
		b.Publish(accountEvent(workspaceID, i))
	}

	for want := int64(1); want <= 5; want++ {
		select {
		case event := <-sub.Events():
			updated := event.(domain.AccountUpdated)
			if updated.Version.VersionNumber != want {
				t.Fatalf("expected version %d, got %d", want, updated.Version.VersionNumber)
			}
		case <-time.After(time.Second):
			t.Fatalf("missing event %d", want)
		}
	}
}

func TestBus_PublishNeverBlocksOnFullSubscriber(t *testing.T) {
	b := New(1, zerolog.Nop())
	defer b.Close()

	b.Subscribe(domain.ChannelAccountUpdated) // never drained

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := int64(0); i < 10; i++ {
			b.Publish(accountEvent(uuid.New(), i))
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("publish blocked on a stalled subscriber")
	}

	if b.Dropped() == 0 {
		t.Fatalf("expected dropped events to be counted")
	}
}

func TestSubscription_CloseIsIdempotent(t *testing.T) {
	b := New(8, zerolog.Nop())
	defer b.Close()

	sub := b.Subscribe(domain.ChannelPayeeUpdated)
	sub.Close()
	sub.Close()

	if _, open := <-sub.Events(); open {
		t.Fatalf("expected events channel to be closed")
	}
}

func TestBus_CloseTerminatesAllSubscriptions(t *testing.T) {
	b := New(8, zerolog.Nop())

	sub := b.Subscribe(domain.ChannelTransactionUpdated)
	b.Close()

	if _, open := <-sub.Events(); open {
		t.Fatalf("expected subscription to end when the bus closes")
	}

	// Publishing and closing again are no-ops.
	b.Publish(accountEvent(uuid.New(), 1))
	b.Close()
	sub.Close()
}
