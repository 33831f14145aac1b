package notifications

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/marketplace-backend/pkg/logger"
)

// DefaultTimeout bounds how long post-commit delivery may take.
const DefaultTimeout = 5 * time.Second

// Dispatcher fans an event out to every publisher. Delivery is best effort:
// failures are logged and never returned to the caller, whose data has
// already been committed.
type Dispatcher struct {
	publishers []Publisher
	logg       *logger.Logger
	timeout    time.Duration
	inflight   sync.WaitGroup
}

func NewDispatcher(logg *logger.Logger, timeout time.Duration, publishers ...Publisher) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	filtered := make([]Publisher, 0, len(publishers))
	for _, p := range publishers {
		if p != nil {
			filtered = append(filtered, p)
		}
	}
	return &Dispatcher{publishers: filtered, logg: logg, timeout: timeout}
}

// Notify delivers event in the background on a context detached from ctx,
// so a finished request does not abort delivery.
func (d *Dispatcher) Notify(ctx context.Context, event Event) {
	if d == nil || len(d.publishers) == 0 {
		return
	}
	detached := context.WithoutCancel(ctx)
	d.inflight.Add(1)
	go func() {
		defer d.inflight.Done()
		d.deliver(detached, event)
	}()
}

// Wait blocks until every pending delivery finished. Used on shutdown.
func (d *Dispatcher) Wait() {
	if d == nil {
		return
	}
	d.inflight.Wait()
}

func (d *Dispatcher) deliver(ctx context.Context, event Event) {
	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	var errs error
	for _, p := range d.publishers {
		if err := publishSafely(sendCtx, p, event); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	if errs != nil && d.logg != nil {
		logCtx := d.logg.WithFields(ctx, map[string]any{
			"event_type": string(event.Type),
			"order_id":   event.Order.OrderID.String(),
			"failures":   len(multierr.Errors(errs)),
		})
		d.logg.Error(logCtx, "notifications.delivery_failed", errs)
	}
}

func publishSafely(ctx context.Context, p Publisher, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("publisher panic: %v", r)
		}
	}()
	return p.Publish(ctx, event)
}
