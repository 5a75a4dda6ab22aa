package notify

import (
	"context"
	"errors"
	"fmt"
)

// Notifier delivers an alert to one operator channel.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, alert Alert) error
}

// NotificationError wraps a delivery failure of a single channel.
type NotificationError struct {
	Notifier string
	Err      error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("notify %s: %v", e.Notifier, e.Err)
}

func (e *NotificationError) Unwrap() error {
	return e.Err
}

// Multi fans an alert out to every notifier. All of them are attempted; the
// failures are joined.
type Multi []Notifier

func (m Multi) Name() string {
	return "multi"
}

func (m Multi) Notify(ctx context.Context, alert Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, alert); err != nil {
			errs = append(errs, &NotificationError{Notifier: n.Name(), Err: err})
		}
	}
	return errors.Join(errs...)
}
