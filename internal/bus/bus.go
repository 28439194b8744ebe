// Package bus provides the in-process change event bus. Publishers fan out
// entity update and conflict-detected events to every live subscriber of a
// channel; delivery to each subscriber preserves publish order. The bus is
// constructed explicitly and injected wherever publishing or subscribing is
// needed.
package bus

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/finledger/collab/internal/domain"
)

// DefaultBufferSize is the per-subscriber event buffer depth used when the
// configured size is not positive.
const DefaultBufferSize = 64

// Bus fans published events out to channel subscribers without ever blocking
// the publisher. A subscriber whose buffer is full misses the event; lossless
// delivery to stalled clients is not a goal.
type Bus struct {
	mu         sync.RWMutex
	closed     bool
	bufferSize int
	subs       map[domain.Channel]map[*Subscription]struct{}
	dropped    atomic.Int64
	logger     zerolog.Logger
}

// Subscription is one live, cancellable stream of events from a single
// channel.
type Subscription struct {
	bus     *Bus
	channel domain.Channel
	events  chan domain.Event
	once    sync.Once
}

// New creates a bus whose subscribers each buffer up to bufferSize events.
func New(bufferSize int, logger zerolog.Logger) *Bus {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Bus{
		bufferSize: bufferSize,
		subs:       make(map[domain.Channel]map[*Subscription]struct{}),
		logger:     logger.With().Str("component", "bus").Logger(),
	}
}

// Publish delivers event to every subscriber of its channel. It never blocks
// and never returns an error to the caller; events that do not fit a
// subscriber's buffer are dropped and counted.
func (b *Bus) Publish(event domain.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for sub := range b.subs[event.Channel()] {
		select {
		case sub.events <- event:
		default:
			b.dropped.Add(1)
			b.logger.Debug().
				Str("channel", string(event.Channel())).
				Msg("subscriber buffer full, event dropped")
		}
	}
}

// Subscribe opens a stream of events published on channel. The returned
// subscription must be closed when no longer needed. Subscribing on a closed
// bus returns an already-terminated stream.
func (b *Bus) Subscribe(channel domain.Channel) *Subscription {
	sub := &Subscription{
		bus:     b,
		channel: channel,
		events:  make(chan domain.Event, b.bufferSize),
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(sub.events)
		return sub
	}

	if b.subs[channel] == nil {
		b.subs[channel] = make(map[*Subscription]struct{})
	}
	b.subs[channel][sub] = struct{}{}
	return sub
}

// Dropped returns the number of events discarded because a subscriber's
// buffer was full.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

// Close terminates every subscription and rejects further publishes.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for _, subs := range b.subs {
		for sub := range subs {
			sub.once.Do(func() {})
			close(sub.events)
		}
	}
	b.subs = make(map[domain.Channel]map[*Subscription]struct{})
}

// Events returns the subscription's stream. The channel is closed when the
// subscription or the bus closes.
func (s *Subscription) Events() <-chan domain.Event {
	return s.events
}

// Close cancels the subscription. Closing twice is a no-op.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		defer s.bus.mu.Unlock()

		if subs, ok := s.bus.subs[s.channel]; ok {
			if _, registered := subs[s]; registered {
				delete(subs, s)
				close(s.events)
			}
		}
	})
}
