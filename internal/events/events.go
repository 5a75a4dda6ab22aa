package events

import (
	"encoding/json"
	"sync"
	"time"

	"shinebin/internal/models"
)

const (
	EventBookingCreated   = "booking_created"
	EventBookingConfirmed = "booking_confirmed"
	EventBookingCompleted = "booking_completed"
	EventBookingCancelled = "booking_cancelled"
	EventBookingExpired   = "booking_expired"
)

// BookingEventTypes lists every booking event type in lifecycle order.
var BookingEventTypes = []string{
	EventBookingCreated,
	EventBookingConfirmed,
	EventBookingCompleted,
	EventBookingCancelled,
	EventBookingExpired,
}

// BookingEventPayload describes the minimal booking snapshot for event consumers.
type BookingEventPayload struct {
	BookingID    string       `json:"booking_id"`
	Customer     string       `json:"customer"`
	Email        string       `json:"email"`
	Date         string       `json:"date"`
	TimeSlot     string       `json:"time_slot"`
	Status       string       `json:"status"`
	TotalPrice   models.Money `json:"total_price"`
	CancelReason string       `json:"cancel_reason,omitempty"`
	Version      int64        `json:"version"`
}

// NewBookingPayload snapshots b for publishing.
func NewBookingPayload(b *models.Booking) BookingEventPayload {
	return BookingEventPayload{
		BookingID:    b.ID,
		Customer:     b.Customer.Name,
		Email:        b.Customer.Email,
		Date:         b.DateKey(),
		TimeSlot:     b.TimeSlot,
		Status:       b.Status,
		TotalPrice:   b.TotalPrice,
		CancelReason: b.CancelReason,
		Version:      b.Version,
	}
}

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type.
// Handlers run synchronously; their errors are returned to nobody.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		_ = handler(event)
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
	return nil
}
