// Package metrics exposes Prometheus collectors for the bot.
package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/avolkov-go/pizzeria-bot/internal/session"
)

var (
	updatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_updates_total",
			Help: "Total number of Telegram updates processed labeled by event kind and status",
		},
		[]string{"kind", "status"},
	)
	updateDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bot_update_duration_seconds",
			Help:    "Duration of update processing in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)
	stateTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversation_state_transitions_total",
			Help: "Total number of conversation state transitions",
		},
		[]string{"from", "to"},
	)
	errorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of errors split by code and severity",
		},
		[]string{"code", "severity"},
	)
	sessionsByState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sessions_by_state",
			Help: "Number of active conversations per state",
		},
		[]string{"state"},
	)
	ordersPaidLast24h = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "orders_paid_last_24h",
			Help: "Number of payments recorded in the order log during the last 24 hours",
		},
	)
)

var trackedStates = []session.State{
	session.StateStart,
	session.StateBrowsingMenu,
	session.StateViewingItem,
	session.StateCartView,
	session.StateAwaitingEmail,
	session.StateAwaitingLocation,
	session.StateAwaitingFulfillment,
	session.StateAwaitingPayment,
}

func init() {
	session.RegisterTransitionRecorder(RecordStateTransition)
}

// RecordUpdate increments update counters and records duration.
func RecordUpdate(kind, status string, duration time.Duration) {
	if kind == "" {
		kind = "unknown"
	}
	if status == "" {
		status = "unknown"
	}

	updatesTotal.WithLabelValues(kind, status).Inc()
	updateDurationSeconds.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordStateTransition tracks conversation state transitions.
func RecordStateTransition(from, to string) {
	if from == "" {
		from = "unknown"
	}
	if to == "" {
		to = "unknown"
	}

	stateTransitionsTotal.WithLabelValues(from, to).Inc()
}

// RecordError increments error counters with metadata.
func RecordError(code, severity string) {
	if code == "" {
		code = "unknown"
	}
	if severity == "" {
		severity = "unknown"
	}

	errorsTotal.WithLabelValues(code, severity).Inc()
}

// SessionCollector periodically gathers per-state session counts and emits gauge metrics.
type SessionCollector struct {
	storage  session.Storage
	log      *slog.Logger
	interval time.Duration
}

// NewSessionCollector constructs a collector that samples storage every interval.
func NewSessionCollector(storage session.Storage, log *slog.Logger, interval time.Duration) *SessionCollector {
	if interval <= 0 {
		interval = time.Minute
	}

	return &SessionCollector{
		storage:  storage,
		log:      log,
		interval: interval,
	}
}

// Run samples session counts until ctx is cancelled.
func (c *SessionCollector) Run(ctx context.Context) {
	if c == nil || c.storage == nil {
		return
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.collect(ctx)
		}
	}
}

func (c *SessionCollector) collect(ctx context.Context) {
	sessions, err := c.storage.ListSessions(ctx)
	if err != nil {
		if c.log != nil {
			c.log.Error("session collector: failed to list sessions", "error", err)
		}
		return
	}

	counts := make(map[session.State]int, len(trackedStates))
	for _, s := range sessions {
		counts[s.CurrentState]++
	}

	for _, state := range trackedStates {
		sessionsByState.WithLabelValues(string(state)).Set(float64(counts[state]))
	}
}

// OrderCounter reports how many payments completed after a point in time.
type OrderCounter interface {
	CountSince(ctx context.Context, since time.Time) (int64, error)
}

// OrderStatsCollector periodically samples the order log and emits the
// paid-orders gauge.
type OrderStatsCollector struct {
	orders   OrderCounter
	log      *slog.Logger
	interval time.Duration
}

// NewOrderStatsCollector constructs a collector that samples orders every interval.
func NewOrderStatsCollector(orders OrderCounter, log *slog.Logger, interval time.Duration) *OrderStatsCollector {
	if interval <= 0 {
		interval = time.Minute
	}

	return &OrderStatsCollector{
		orders:   orders,
		log:      log,
		interval: interval,
	}
}

// Run samples order counts until ctx is cancelled.
func (c *OrderStatsCollector) Run(ctx context.Context) {
	if c == nil || c.orders == nil {
		return
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.collect(ctx)
		}
	}
}

func (c *OrderStatsCollector) collect(ctx context.Context) {
	count, err := c.orders.CountSince(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		if c.log != nil {
			c.log.Error("order stats collector: failed to count orders", "error", err)
		}
		return
	}

	ordersPaidLast24h.Set(float64(count))
}
