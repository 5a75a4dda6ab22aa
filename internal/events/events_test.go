package events

import (
	"encoding/json"
	"testing"
	"time"

	"shinebin/internal/models"
)

func TestEventBus(t *testing.T) {
	bus := NewEventBus()

	var received *Event
	var callCount int

	handler := func(event *Event) error {
		received = event
		callCount++
		return nil
	}

	bus.Subscribe(EventBookingCreated, handler)

	b := &models.Booking{
		ID:         "b-1",
		Customer:   models.Customer{Name: "Jane", Email: "jane@example.com"},
		Date:       time.Date(2030, 1, 2, 0, 0, 0, 0, time.UTC),
		TimeSlot:   "08:00-10:00",
		Status:     models.StatusPending,
		TotalPrice: models.Dollars(10, 0),
		Version:    1,
	}
	if err := bus.PublishJSON(EventBookingCreated, NewBookingPayload(b)); err != nil {
		t.Fatalf("PublishJSON failed: %v", err)
	}

	if callCount != 1 {
		t.Errorf("expected 1 call, got %d", callCount)
	}

	if received.Type != EventBookingCreated {
		t.Errorf("expected type %s, got %s", EventBookingCreated, received.Type)
	}

	var decoded map[string]any
	if err := json.Unmarshal(received.Payload, &decoded); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}

	if decoded["booking_id"] != "b-1" || decoded["date"] != "2030-01-02" {
		t.Errorf("unexpected payload %v", decoded)
	}
	if decoded["total_price"] != 10.0 {
		t.Errorf("expected total_price 10.00, got %v", decoded["total_price"])
	}
}

func TestEventBusMultipleSubscribers(t *testing.T) {
	bus := NewEventBus()
	var count1, count2 int

	bus.Subscribe("event", func(_ *Event) error { count1++; return nil })
	bus.Subscribe("event", func(_ *Event) error { count2++; return nil })

	bus.Publish(&Event{Type: "event"})

	if count1 != 1 || count2 != 1 {
		t.Errorf("expected both handlers to be called once, got %d and %d", count1, count2)
	}
}

func TestEventBusNoSubscribers(t *testing.T) {
	bus := NewEventBus()
	bus.Publish(&Event{Type: "unknown"})
	if err := bus.PublishJSON("unknown", nil); err != nil {
		t.Errorf("PublishJSON failed: %v", err)
	}

	var nilBus *EventBus
	if err := nilBus.PublishJSON(EventBookingCreated, nil); err != nil {
		t.Errorf("nil bus should be a no-op, got %v", err)
	}
}
