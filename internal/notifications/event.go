package notifications

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
)

// EnvelopeVersion is bumped whenever the payload shape changes incompatibly.
const EnvelopeVersion = 1

// EventType names an order lifecycle notification.
type EventType string

const (
	EventOrderCreated  EventType = "order_created"
	EventStatusChanged EventType = "status_changed"
)

// ActorRef identifies who triggered the event.
type ActorRef struct {
	UserID   uuid.UUID  `json:"userId"`
	VendorID *uuid.UUID `json:"vendorId,omitempty"`
	Role     string     `json:"role,omitempty"`
}

// VendorOrderRef is the per-vendor slice of an order payload.
type VendorOrderRef struct {
	ID                uuid.UUID `json:"id"`
	VendorID          uuid.UUID `json:"vendorId"`
	VendorOrderNumber string    `json:"vendorOrderNumber"`
	Status            string    `json:"status"`
	TotalCents        int       `json:"totalCents"`
}

// OrderPayload snapshots the order at the time the event was raised.
type OrderPayload struct {
	OrderID        uuid.UUID        `json:"orderId"`
	OrderNumber    string           `json:"orderNumber"`
	CustomerID     uuid.UUID        `json:"customerId"`
	Status         string           `json:"status"`
	PreviousStatus string           `json:"previousStatus,omitempty"`
	TotalCents     int              `json:"totalCents"`
	VendorOrders   []VendorOrderRef `json:"vendorOrders,omitempty"`
	Note           string           `json:"note,omitempty"`
}

// Event is handed to publishers after the owning transaction committed.
type Event struct {
	ID         uuid.UUID
	Type       EventType
	OccurredAt time.Time
	Actor      *ActorRef
	Order      OrderPayload
}

// Envelope is the wire shape written to every transport.
type Envelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	EventType  EventType       `json:"eventType"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// NewOrderEvent builds an event for order; previous is the status the order
// left, empty when it did not change.
func NewOrderEvent(typ EventType, order *models.Order, previous string, actor *ActorRef) Event {
	payload := OrderPayload{}
	if order != nil {
		payload = OrderPayload{
			OrderID:        order.ID,
			OrderNumber:    order.OrderNumber,
			CustomerID:     order.CustomerID,
			Status:         order.Status.String(),
			PreviousStatus: previous,
			TotalCents:     order.TotalCents,
		}
		for _, vo := range order.VendorOrders {
			payload.VendorOrders = append(payload.VendorOrders, VendorOrderRef{
				ID:                vo.ID,
				VendorID:          vo.VendorID,
				VendorOrderNumber: vo.VendorOrderNumber,
				Status:            vo.Status.String(),
				TotalCents:        vo.TotalCents,
			})
		}
	}
	return Event{
		ID:         uuid.New(),
		Type:       typ,
		OccurredAt: time.Now().UTC(),
		Actor:      actor,
		Order:      payload,
	}
}

// Envelope encodes the event for transport.
func (e Event) Envelope() (Envelope, error) {
	data, err := json.Marshal(e.Order)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal order payload: %w", err)
	}
	return Envelope{
		Version:    EnvelopeVersion,
		EventID:    e.ID.String(),
		EventType:  e.Type,
		OccurredAt: e.OccurredAt,
		Actor:      e.Actor,
		Data:       data,
	}, nil
}

// Attributes are the routing hints attached to transport messages.
func (e Event) Attributes() map[string]string {
	return map[string]string{
		"event_type": string(e.Type),
		"order_id":   e.Order.OrderID.String(),
		"status":     e.Order.Status,
	}
}
