package events

import (
	"context"
	"errors"
	"io"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChannel struct {
	published []amqp.Publishing
	keys      []string
	err       error
	closed    bool
}

func (f *fakeChannel) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.keys = append(f.keys, key)
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestRoutingKey(t *testing.T) {
	assert.Equal(t, "booking.created", RoutingKey(EventBookingCreated))
	assert.Equal(t, "booking.expired", RoutingKey(EventBookingExpired))
}

func TestAMQPForwarder(t *testing.T) {
	logger := zerolog.New(io.Discard)
	ch := &fakeChannel{}
	f := &AMQPForwarder{ch: ch, exchange: "shinebin.events", logger: &logger}

	bus := NewEventBus()
	f.Attach(bus)

	require.NoError(t, bus.PublishJSON(EventBookingConfirmed, map[string]string{"booking_id": "b-1"}))
	require.NoError(t, bus.PublishJSON("unrelated", map[string]string{}))

	require.Len(t, ch.published, 1)
	assert.Equal(t, "booking.confirmed", ch.keys[0])
	assert.Equal(t, "application/json", ch.published[0].ContentType)
	assert.JSONEq(t, `{"booking_id":"b-1"}`, string(ch.published[0].Body))

	ch.err = errors.New("channel closed")
	assert.Error(t, f.Handle(&Event{Type: EventBookingCreated}))

	assert.NoError(t, f.Close())
	assert.True(t, ch.closed)
}
