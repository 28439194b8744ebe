package subscription

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/finledger/collab/internal/domain"
)

var (
	subscriptionsOpened = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collab_subscriptions_opened_total",
			Help: "Total number of subscriptions opened by channel",
		},
		[]string{"channel"},
	)

	subscriptionsRejected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "collab_subscriptions_rejected_total",
			Help: "Total number of subscription attempts rejected by the per-user cap",
		},
	)

	subscriptionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "collab_subscriptions_active",
			Help: "Number of currently open subscriptions",
		},
	)

	subscriptionsPeak = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "collab_subscriptions_peak",
			Help: "Highest number of concurrently open subscriptions seen",
		},
	)

	subscriptionDurationAvg = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "collab_subscription_duration_avg_ms",
			Help: "Running average duration of closed subscriptions in milliseconds",
		},
	)
)

func init() {
	prometheus.MustRegister(subscriptionsOpened)
	prometheus.MustRegister(subscriptionsRejected)
	prometheus.MustRegister(subscriptionsActive)
	prometheus.MustRegister(subscriptionsPeak)
	prometheus.MustRegister(subscriptionDurationAvg)
}

// MetricsHandler returns the Prometheus scrape endpoint handler.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// Metrics aggregates subscription usage: totals by channel and by user,
// active and peak concurrency, and a running average of how long closed
// subscriptions stayed open. All counters are mutex protected; many request
// handlers update them concurrently.
type Metrics struct {
	mu             sync.Mutex
	totalByChannel map[domain.Channel]int64
	totalByUser    map[uuid.UUID]int64
	active         int
	peak           int
	closed         int64
	avgDurationMs  float64
	rejected       int64
}

// Snapshot is a point-in-time copy of the aggregates for the metrics sink.
type Snapshot struct {
	Active            int              `json:"active_subscriptions"`
	Peak              int              `json:"peak_subscriptions"`
	Closed            int64            `json:"closed_subscriptions"`
	Rejected          int64            `json:"rejected_subscriptions"`
	AverageDurationMs float64          `json:"average_duration_ms"`
	TotalByChannel    map[string]int64 `json:"total_by_channel"`
	TotalByUser       map[string]int64 `json:"total_by_user"`
}

// NewMetrics creates empty subscription metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		totalByChannel: make(map[domain.Channel]int64),
		totalByUser:    make(map[uuid.UUID]int64),
	}
}

// Opened records a successfully opened subscription.
func (m *Metrics) Opened(channel domain.Channel, userID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totalByChannel[channel]++
	m.totalByUser[userID]++
	m.active++
	if m.active > m.peak {
		m.peak = m.active
		subscriptionsPeak.Set(float64(m.peak))
	}

	subscriptionsOpened.WithLabelValues(string(channel)).Inc()
	subscriptionsActive.Set(float64(m.active))
}

// Closed folds a finished subscription's lifetime into the running average:
// avg' = (avg*n + duration) / (n+1), where n is the number of subscriptions
// closed so far.
func (m *Metrics) Closed(duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	durationMs := float64(duration.Milliseconds())
	m.avgDurationMs = (m.avgDurationMs*float64(m.closed) + durationMs) / float64(m.closed+1)
	m.closed++
	m.active--

	subscriptionsActive.Set(float64(m.active))
	subscriptionDurationAvg.Set(m.avgDurationMs)
}

// Rejected records a subscription attempt refused by the per-user cap.
func (m *Metrics) Rejected() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rejected++
	subscriptionsRejected.Inc()
}

// Snapshot returns a copy of the current aggregates.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	byChannel := make(map[string]int64, len(m.totalByChannel))
	for channel, count := range m.totalByChannel {
		byChannel[string(channel)] = count
	}
	byUser := make(map[string]int64, len(m.totalByUser))
	for userID, count := range m.totalByUser {
		byUser[userID.String()] = count
	}

	return Snapshot{
		Active:            m.active,
		Peak:              m.peak,
		Closed:            m.closed,
		Rejected:          m.rejected,
		AverageDurationMs: m.avgDurationMs,
		TotalByChannel:    byChannel,
		TotalByUser:       byUser,
	}
}
