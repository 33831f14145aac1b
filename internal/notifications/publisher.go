package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/angelmondragon/marketplace-backend/pkg/logger"
)

// Publisher delivers a single event to one transport.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// MessageSender is the slice of the pubsub client used to ship envelopes.
type MessageSender interface {
	Send(ctx context.Context, data []byte, attributes map[string]string) (string, error)
}

// PubSubPublisher writes envelopes to the notification topic.
type PubSubPublisher struct {
	sender MessageSender
	logg   *logger.Logger
}

func NewPubSubPublisher(sender MessageSender, logg *logger.Logger) (*PubSubPublisher, error) {
	if sender == nil {
		return nil, fmt.Errorf("message sender required")
	}
	return &PubSubPublisher{sender: sender, logg: logg}, nil
}

func (p *PubSubPublisher) Publish(ctx context.Context, event Event) error {
	envelope, err := event.Envelope()
	if err != nil {
		return err
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	id, err := p.sender.Send(ctx, data, event.Attributes())
	if err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	if p.logg != nil {
		logCtx := p.logg.WithFields(ctx, map[string]any{
			"event_type": string(event.Type),
			"message_id": id,
		})
		p.logg.Info(logCtx, "notifications.published")
	}
	return nil
}

// LogPublisher records events in the structured log. It is the default
// transport when no topic is configured.
type LogPublisher struct {
	logg *logger.Logger
}

func NewLogPublisher(logg *logger.Logger) *LogPublisher {
	return &LogPublisher{logg: logg}
}

func (p *LogPublisher) Publish(ctx context.Context, event Event) error {
	if p == nil || p.logg == nil {
		return nil
	}
	logCtx := p.logg.WithFields(ctx, map[string]any{
		"event_id":     event.ID.String(),
		"event_type":   string(event.Type),
		"order_id":     event.Order.OrderID.String(),
		"order_number": event.Order.OrderNumber,
		"status":       event.Order.Status,
	})
	if event.Order.PreviousStatus != "" {
		logCtx = p.logg.WithField(logCtx, "previous_status", event.Order.PreviousStatus)
	}
	p.logg.Info(logCtx, "notifications.event")
	return nil
}
