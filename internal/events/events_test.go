package events

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBus(t *testing.T) {
	bus := NewEventBus()

	var received *Event
	var callCount int

	bus.Subscribe(EventNotificationCreated, func(event *Event) error {
		received = event
		callCount++
		return nil
	})

	err := bus.PublishJSON(EventNotificationCreated, NotificationEventPayload{NotificationID: "n-1", RecipientID: "u-1"})
	require.NoError(t, err)

	assert.Equal(t, 1, callCount)
	require.NotNil(t, received)
	assert.Equal(t, EventNotificationCreated, received.Type)

	var decoded NotificationEventPayload
	require.NoError(t, json.Unmarshal(received.Payload, &decoded))
	assert.Equal(t, "n-1", decoded.NotificationID)
	assert.Equal(t, "u-1", decoded.RecipientID)
}

func TestEventBusMultipleSubscribers(t *testing.T) {
	bus := NewEventBus()
	var count1, count2 int
	boom := errors.New("boom")

	bus.Subscribe("event", func(_ *Event) error { count1++; return boom })
	bus.Subscribe("event", func(_ *Event) error { count2++; return nil })

	err := bus.Publish(&Event{Type: "event"})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, count1)
	assert.Equal(t, 1, count2, "a failing handler must not stop the others")
}

func TestEventBusNoSubscribers(t *testing.T) {
	bus := NewEventBus()
	assert.NoError(t, bus.Publish(&Event{Type: "unknown"}))
	assert.NoError(t, bus.PublishJSON("unknown", nil))

	var nilBus *EventBus
	assert.NoError(t, nilBus.PublishJSON("unknown", nil))
}

func TestNewJSONEvent(t *testing.T) {
	event, err := NewJSONEvent(EventBookingTransitioned, BookingEventPayload{BookingID: "b-1", Status: "accepted"})
	require.NoError(t, err)

	assert.Equal(t, EventBookingTransitioned, event.Type)
	assert.False(t, event.CreatedAt.IsZero())

	var decoded BookingEventPayload
	require.NoError(t, json.Unmarshal(event.Payload, &decoded))
	assert.Equal(t, "b-1", decoded.BookingID)
	assert.Equal(t, "accepted", decoded.Status)

	_, err = NewJSONEvent("bad", make(chan int))
	assert.Error(t, err)
}
