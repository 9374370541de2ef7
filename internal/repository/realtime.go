package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"selefli/internal/events"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RealtimeChannel is the pub/sub channel a client listens on for its own
// notifications.
func RealtimeChannel(userID string) string {
	return "notifications:" + userID
}

// RealtimePublisher forwards stored notifications to redis pub/sub.
type RealtimePublisher struct {
	client  *redis.Client
	timeout time.Duration
	logger  *zerolog.Logger
}

func NewRealtimePublisher(client *redis.Client, logger *zerolog.Logger) *RealtimePublisher {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &RealtimePublisher{client: client, timeout: 2 * time.Second, logger: logger}
}

// Subscribe hooks the publisher into the event bus.
func (p *RealtimePublisher) Subscribe(bus *events.EventBus) {
	bus.Subscribe(events.EventNotificationCreated, p.handle)
}

func (p *RealtimePublisher) handle(event *events.Event) error {
	var payload events.NotificationEventPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return fmt.Errorf("decode notification event: %w", err)
	}
	if payload.RecipientID == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	if err := p.client.Publish(ctx, RealtimeChannel(payload.RecipientID), event.Payload).Err(); err != nil {
		p.logger.Warn().Err(err).Str("notification_id", payload.NotificationID).Msg("realtime broadcast failed")
		return err
	}
	return nil
}
