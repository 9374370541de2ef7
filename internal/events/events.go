package events

import (
	"encoding/json"
	"sync"
	"time"
)

const (
	EventNotificationCreated = "notification_created"
	EventBookingTransitioned = "booking_transitioned"
	EventRatingChanged       = "rating_changed"
)

// NotificationEventPayload is the realtime view of a stored notification.
type NotificationEventPayload struct {
	NotificationID string         `json:"id"`
	RecipientID    string         `json:"recipient_id"`
	Type           string         `json:"notification_type"`
	Title          string         `json:"title"`
	Body           string         `json:"body"`
	Payload        map[string]any `json:"payload"`
	CreatedAt      time.Time      `json:"created_at"`
}

// BookingEventPayload describes a booking after a state change.
type BookingEventPayload struct {
	BookingID     string `json:"booking_id"`
	ItemID        string `json:"item_id"`
	OwnerID       string `json:"owner_id"`
	BorrowerID    string `json:"borrower_id"`
	Status        string `json:"status"`
	DepositStatus string `json:"deposit_status"`
	ChangedByID   string `json:"changed_by_id,omitempty"`
}

type RatingEventPayload struct {
	RatingID     string `json:"rating_id"`
	BookingID    string `json:"booking_id"`
	TargetUserID string `json:"target_user_id"`
	Stars        int    `json:"stars"`
	Action       string `json:"action"`
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

func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish runs the subscribers of the event type in registration order and
// returns the first handler error. Every handler runs regardless.
func (b *EventBus) Publish(event *Event) error {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	var first error
	for _, handler := range handlers {
		if err := handler(event); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	event, err := NewJSONEvent(eventType, payload)
	if err != nil {
		return err
	}
	return b.Publish(&event)
}

// NewJSONEvent builds an Event with JSON payload for manual publishing.
func NewJSONEvent(eventType string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}

	return Event{Type: eventType, Payload: raw, CreatedAt: time.Now()}, nil
}
