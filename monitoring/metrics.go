package monitoring

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

var (
	ticketsIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tickets_issued_total",
			Help: "Tickets minted per event and payment token",
		},
		[]string{"event_id", "token"},
	)

	verifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticket_verifications_total",
			Help: "Verification outcomes by mode",
		},
		[]string{"mode", "outcome"},
	)

	reservationConflicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reservation_conflicts_total",
			Help: "Purchases rejected at the atomic capacity check",
		},
		[]string{"event_id"},
	)

	entryAdmissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entry_admissions_total",
			Help: "Tickets marked used at the gate",
		},
		[]string{"event_id"},
	)

	activeEvents = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_events_total",
			Help: "Events currently accepting purchases",
		},
	)

	ledgerRoundTrip = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ledger_roundtrip_seconds",
			Help:    "Authoritative ledger call latency",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"op"},
	)
)

type Monitor struct {
	redis *redis.Client
}

func NewMonitor(redisClient *redis.Client) *Monitor {
	monitor := &Monitor{redis: redisClient}

	go monitor.collectMetrics()

	return monitor
}

func (m *Monitor) collectMetrics() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		ctx := context.Background()
		count, err := m.redis.SCard(ctx, "active_events").Result()
		if err != nil {
			continue
		}
		activeEvents.Set(float64(count))
	}
}

func (m *Monitor) TrackIssued(eventID, token string) {
	if m == nil {
		return
	}
	ticketsIssued.WithLabelValues(eventID, token).Inc()
}

func (m *Monitor) TrackVerification(mode, outcome string) {
	if m == nil {
		return
	}
	verifications.WithLabelValues(mode, outcome).Inc()
}

func (m *Monitor) TrackReservationConflict(eventID string) {
	if m == nil {
		return
	}
	reservationConflicts.WithLabelValues(eventID).Inc()
}

func (m *Monitor) TrackAdmission(eventID string) {
	if m == nil {
		return
	}
	entryAdmissions.WithLabelValues(eventID).Inc()
}

func (m *Monitor) ObserveLedgerOp(op string, d time.Duration) {
	if m == nil {
		return
	}
	ledgerRoundTrip.WithLabelValues(op).Observe(d.Seconds())
}
