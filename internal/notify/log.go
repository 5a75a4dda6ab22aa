package notify

import (
	"context"

	"github.com/rs/zerolog"
)

// LogNotifier writes alerts to the structured log. It is always enabled so an
// operator without Telegram or Sheets still sees new bookings.
type LogNotifier struct {
	logger *zerolog.Logger
}

func NewLogNotifier(logger *zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Name() string { return "log" }

func (n *LogNotifier) Notify(_ context.Context, alert Alert) error {
	n.logger.Info().
		Str("booking_id", alert.BookingID).
		Str("customer", alert.CustomerName).
		Str("email", alert.CustomerEmail).
		Str("address", alert.Address).
		Str("date", alert.Date).
		Str("time_slot", alert.TimeSlot).
		Strs("addons", alert.Addons).
		Str("payment_method", alert.PaymentMethod).
		Str("total", alert.TotalPrice.Decimal()).
		Msg(alert.Subject())
	return nil
}
