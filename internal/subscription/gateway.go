// Package subscription gates client access to the change event bus. Every
// open stream is checked against a per-user concurrency cap, filtered to the
// workspaces its user belongs to, and tracked in usage metrics. Stream
// registrations live in process memory only; a horizontally scaled deployment
// would need an external shared counter for the cap.
package subscription

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/finledger/collab/internal/bus"
	"github.com/finledger/collab/internal/domain"
)

// DefaultMaxPerUser caps concurrent subscriptions per user when the
// configured limit is not positive.
const DefaultMaxPerUser = 10

// Gateway opens filtered, rate-limited streams over the change bus.
type Gateway struct {
	changes    *bus.Bus
	metrics    *Metrics
	maxPerUser int
	logger     zerolog.Logger

	mu           sync.Mutex
	activeByUser map[uuid.UUID]int
}

// Stream is one client's live view of a bus channel, restricted to the
// workspaces the client belongs to.
type Stream struct {
	ID       uuid.UUID
	Channel  domain.Channel
	UserID   uuid.UUID
	openedAt time.Time
	gateway  *Gateway
	upstream *bus.Subscription
	events   chan domain.Event
	done     chan struct{}
	once     sync.Once
}

// NewGateway creates a gateway over the given bus.
func NewGateway(changes *bus.Bus, metrics *Metrics, maxPerUser int, logger zerolog.Logger) *Gateway {
	if maxPerUser <= 0 {
		maxPerUser = DefaultMaxPerUser
	}
	return &Gateway{
		changes:      changes,
		metrics:      metrics,
		maxPerUser:   maxPerUser,
		logger:       logger.With().Str("component", "subscription_gateway").Logger(),
		activeByUser: make(map[uuid.UUID]int),
	}
}

// Open starts a stream of channel events whose workspace is in workspaces.
// When the user already holds the maximum number of concurrent subscriptions
// the attempt is rejected: no stream is returned, a warning is logged, and no
// error is raised — rate limiting is a silent outcome, not a failure.
// The stream ends when Close is called, ctx is cancelled, or the bus shuts
// down; all three paths unregister it and finalize its metrics.
func (g *Gateway) Open(ctx context.Context, channel domain.Channel, workspaces map[uuid.UUID]struct{}, userID uuid.UUID) (*Stream, bool) {
	g.mu.Lock()
	if g.activeByUser[userID] >= g.maxPerUser {
		g.mu.Unlock()
		g.metrics.Rejected()
		g.logger.Warn().
			Str("user_id", userID.String()).
			Str("channel", string(channel)).
			Int("max_subscriptions", g.maxPerUser).
			Msg("subscription rejected: user at concurrent subscription limit")
		return nil, false
	}
	g.activeByUser[userID]++
	g.mu.Unlock()

	stream := &Stream{
		ID:       uuid.New(),
		Channel:  channel,
		UserID:   userID,
		openedAt: time.Now(),
		gateway:  g,
		upstream: g.changes.Subscribe(channel),
		events:   make(chan domain.Event, 1),
		done:     make(chan struct{}),
	}
	g.metrics.Opened(channel, userID)

	go stream.pump(ctx, workspaces)
	return stream, true
}

func (g *Gateway) release(s *Stream) {
	g.mu.Lock()
	g.activeByUser[s.UserID]--
	if g.activeByUser[s.UserID] <= 0 {
		delete(g.activeByUser, s.UserID)
	}
	g.mu.Unlock()

	g.metrics.Closed(time.Since(s.openedAt))
}

// ActiveForUser returns how many subscriptions a user currently holds.
func (g *Gateway) ActiveForUser(userID uuid.UUID) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.activeByUser[userID]
}

// Events returns the stream's filtered event channel. It is closed when the
// stream ends.
func (s *Stream) Events() <-chan domain.Event {
	return s.events
}

// Close ends the stream, unregisters it, and finalizes its metrics. Closing
// twice is a no-op.
func (s *Stream) Close() {
	s.once.Do(func() {
		close(s.done)
		s.upstream.Close()
		s.gateway.release(s)
	})
}

// pump forwards authorized events from the bus subscription to the stream
// until the stream closes, the context is cancelled, or the bus shuts down.
// Events scoped to a workspace outside the subscriber's set are silently
// dropped.
func (s *Stream) pump(ctx context.Context, workspaces map[uuid.UUID]struct{}) {
	defer close(s.events)
	defer s.Close()

	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			return
		case event, ok := <-s.upstream.Events():
			if !ok {
				return
			}
			if _, member := workspaces[event.EventWorkspaceID()]; !member {
				continue
			}
			select {
			case s.events <- event:
			case <-s.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}
}
