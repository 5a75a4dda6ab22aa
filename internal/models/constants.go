package models

const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

const (
	PaymentCash     = "cash"
	PaymentCard     = "card"
	PaymentVenmo    = "venmo"
	PaymentApplePay = "apple-pay"
)

const (
	CancelReasonOperator = "operator"
	CancelReasonCustomer = "customer"
	CancelReasonExpired  = "expired"
)

const (
	ParseModeMarkdown = "Markdown"
	ParseModeHTML     = "HTML"
)

const (
	// DefaultMaxBookingDays how far ahead a date may be booked
	DefaultMaxBookingDays = 90

	// DefaultPendingTTL lifetime of an unconfirmed booking, in hours
	DefaultPendingTTL = 48

	// DefaultSweepInterval how often expired pending bookings are swept, in seconds
	DefaultSweepInterval = 5 * 60

	// DefaultSlotCacheTTL lifetime of an occupied-slot cache entry, in seconds
	DefaultSlotCacheTTL = 10 * 60

	// NotificationQueueSize in-memory notification queue buffer
	NotificationQueueSize = 128

	// MaxBinQuantityHint upper bound offered by the booking form; not enforced
	MaxBinQuantityHint = 6
)

// ActiveStatuses are the statuses that hold a slot.
var ActiveStatuses = []string{StatusPending, StatusConfirmed}

// IsActiveStatus reports whether status occupies a slot.
func IsActiveStatus(status string) bool {
	return status == StatusPending || status == StatusConfirmed
}

var transitions = map[string][]string{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCompleted, StatusCancelled},
}

// CanTransition reports whether a booking may move from one status to another.
// Completed and cancelled are terminal; nothing re-enters pending.
func CanTransition(from, to string) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
