package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "shinebin"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	submissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_submissions_total",
			Help:      "Booking submissions by outcome: accepted, invalid, conflict or error.",
		},
		[]string{"outcome"},
	)

	slotConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slot_conflicts_total",
			Help:      "Reservations rejected because the slot was taken.",
		},
	)

	transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_transitions_total",
			Help:      "Booking status transitions by target status.",
		},
		[]string{"to"},
	)

	notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Operator notifications by result.",
		},
		[]string{"result"},
	)

	pendingExpired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pending_expired_total",
			Help:      "Pending bookings cancelled by the expiry sweep.",
		},
	)

	botUpdateDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "telegram_update_processing_seconds",
			Help:      "Time spent processing operator bot updates.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	botCommands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "telegram_commands_total",
			Help:      "Operator bot commands by name.",
		},
		[]string{"command"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests, submissions, slotConflicts, transitions, notifications, pendingExpired,
			botUpdateDuration, botCommands,
		)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

func IncSubmission(outcome string) {
	submissions.WithLabelValues(outcome).Inc()
}

func IncSlotConflict() {
	slotConflicts.Inc()
}

func IncTransition(to string) {
	transitions.WithLabelValues(to).Inc()
}

func IncNotification(result string) {
	notifications.WithLabelValues(result).Inc()
}

func AddPendingExpired(n int) {
	pendingExpired.Add(float64(n))
}

func ObserveBotUpdate(d time.Duration) {
	botUpdateDuration.Observe(d.Seconds())
}

func IncBotCommand(command string) {
	botCommands.WithLabelValues(command).Inc()
}
