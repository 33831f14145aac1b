package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
)

type recordingPublisher struct {
	events []Event
	err    error
}

func (r *recordingPublisher) Publish(_ context.Context, event Event) error {
	r.events = append(r.events, event)
	return r.err
}

type panickingPublisher struct{}

func (panickingPublisher) Publish(context.Context, Event) error { panic("boom") }

type fakeSender struct {
	data  []byte
	attrs map[string]string
	err   error
}

func (f *fakeSender) Send(_ context.Context, data []byte, attributes map[string]string) (string, error) {
	f.data = data
	f.attrs = attributes
	if f.err != nil {
		return "", f.err
	}
	return "msg-1", nil
}

func testOrder() *models.Order {
	return &models.Order{
		ID:          uuid.New(),
		OrderNumber: "ORD-2610-123456789",
		CustomerID:  uuid.New(),
		Status:      enums.OrderStatusPending,
		TotalCents:  5130,
		VendorOrders: []models.VendorOrder{{
			ID:                uuid.New(),
			VendorID:          uuid.New(),
			VendorOrderNumber: "ORD-2610-123456789-A",
			Status:            enums.VendorOrderStatusPending,
			TotalCents:        5130,
		}},
	}
}

func bufferLogger(buf *bytes.Buffer) *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Level: zerolog.InfoLevel, Output: buf})
}

func TestDispatcherDeliversToEveryPublisherDespiteFailures(t *testing.T) {
	var buf bytes.Buffer
	failing := &recordingPublisher{err: errors.New("topic unavailable")}
	ok := &recordingPublisher{}
	d := NewDispatcher(bufferLogger(&buf), time.Second, failing, panickingPublisher{}, nil, ok)

	event := NewOrderEvent(EventOrderCreated, testOrder(), "", nil)
	d.Notify(context.Background(), event)
	d.Wait()

	require.Len(t, failing.events, 1)
	require.Len(t, ok.events, 1)
	assert.Equal(t, event.ID, ok.events[0].ID)
	assert.Contains(t, buf.String(), "notifications.delivery_failed")
	assert.Contains(t, buf.String(), `"failures":2`)
}

func TestDispatcherUsesDetachedContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var seen error
	pub := publisherFunc(func(ctx context.Context, _ Event) error {
		seen = ctx.Err()
		return nil
	})
	d := NewDispatcher(nil, time.Second, pub)
	d.Notify(ctx, NewOrderEvent(EventStatusChanged, testOrder(), "pending", nil))
	d.Wait()
	assert.NoError(t, seen)
}

func TestNilDispatcherIsNoop(t *testing.T) {
	var d *Dispatcher
	d.Notify(context.Background(), Event{})
	d.Wait()
}

func TestPubSubPublisherWritesEnvelope(t *testing.T) {
	sender := &fakeSender{}
	pub, err := NewPubSubPublisher(sender, nil)
	require.NoError(t, err)

	order := testOrder()
	actor := &ActorRef{UserID: uuid.New(), Role: "admin"}
	event := NewOrderEvent(EventStatusChanged, order, "delivered", actor)
	require.NoError(t, pub.Publish(context.Background(), event))

	var envelope Envelope
	require.NoError(t, json.Unmarshal(sender.data, &envelope))
	assert.Equal(t, EnvelopeVersion, envelope.Version)
	assert.Equal(t, event.ID.String(), envelope.EventID)
	assert.Equal(t, EventStatusChanged, envelope.EventType)
	require.NotNil(t, envelope.Actor)
	assert.Equal(t, actor.UserID, envelope.Actor.UserID)

	var payload OrderPayload
	require.NoError(t, json.Unmarshal(envelope.Data, &payload))
	assert.Equal(t, order.OrderNumber, payload.OrderNumber)
	assert.Equal(t, "delivered", payload.PreviousStatus)
	require.Len(t, payload.VendorOrders, 1)
	assert.Equal(t, order.VendorOrders[0].VendorOrderNumber, payload.VendorOrders[0].VendorOrderNumber)

	assert.Equal(t, "status_changed", sender.attrs["event_type"])
	assert.Equal(t, order.ID.String(), sender.attrs["order_id"])
}

func TestPubSubPublisherPropagatesSendErrors(t *testing.T) {
	pub, err := NewPubSubPublisher(&fakeSender{err: errors.New("deadline")}, nil)
	require.NoError(t, err)

	err = pub.Publish(context.Background(), NewOrderEvent(EventOrderCreated, testOrder(), "", nil))
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "order_created"))

	_, err = NewPubSubPublisher(nil, nil)
	assert.Error(t, err)
}

func TestLogPublisherEmitsOrderFields(t *testing.T) {
	var buf bytes.Buffer
	order := testOrder()
	require.NoError(t, NewLogPublisher(bufferLogger(&buf)).Publish(context.Background(), NewOrderEvent(EventOrderCreated, order, "", nil)))

	out := buf.String()
	assert.Contains(t, out, "notifications.event")
	assert.Contains(t, out, order.OrderNumber)
	assert.NotContains(t, out, "previous_status")
}

type publisherFunc func(ctx context.Context, event Event) error

func (f publisherFunc) Publish(ctx context.Context, event Event) error { return f(ctx, event) }
