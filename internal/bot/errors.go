package bot

import (
	"errors"
	"fmt"

	"shinebin/internal/service"
)

func (b *Bot) getErrorMessage(err error) string {
	if err == nil {
		return ""
	}

	var verr *service.ValidationError
	if errors.As(err, &verr) {
		return fmt.Sprintf("⚠️ Invalid %s: %s", verr.Field, verr.Reason)
	}

	if errors.Is(err, service.ErrBookingNotFound) {
		return "⚠️ Booking not found."
	}

	if errors.Is(err, service.ErrInvalidTransition) {
		return "⚠️ The booking can no longer move to that status."
	}

	if errors.Is(err, service.ErrConcurrentModification) {
		return "⚠️ The booking was changed by someone else. Open it again and retry."
	}

	return "❌ Something went wrong while handling the request. Please try again later."
}
