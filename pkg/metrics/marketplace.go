package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// MarketplaceMetrics covers the checkout and order lifecycle.
type MarketplaceMetrics struct {
	checkouts        *prometheus.CounterVec
	checkoutDuration *prometheus.HistogramVec
	vendorOrders     prometheus.Counter
	cancellations    prometheus.Counter
	transitions      *prometheus.CounterVec
	dedupRejections  prometheus.Counter
}

// NewMarketplaceMetrics registers the marketplace metrics on reg. A nil
// registerer yields a no-op recorder.
func NewMarketplaceMetrics(reg prometheus.Registerer) *MarketplaceMetrics {
	if reg == nil {
		return &MarketplaceMetrics{}
	}
	checkouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_total",
		Help: "Checkout attempts by outcome and error code.",
	}, []string{"outcome", "code"})
	checkoutDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "checkout_duration_seconds",
		Help:    "Duration of checkout transactions in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})
	vendorOrders := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vendor_orders_created_total",
		Help: "Vendor orders created by successful checkouts.",
	})
	cancellations := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "order_cancellations_total",
		Help: "Orders cancelled.",
	})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vendor_order_transitions_total",
		Help: "Vendor order status changes by target status.",
	}, []string{"status"})
	dedupRejections := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cart_duplicate_submissions_total",
		Help: "Add-to-cart requests rejected as duplicate submissions.",
	})
	reg.MustRegister(checkouts, checkoutDuration, vendorOrders, cancellations, transitions, dedupRejections)
	return &MarketplaceMetrics{
		checkouts:        checkouts,
		checkoutDuration: checkoutDuration,
		vendorOrders:     vendorOrders,
		cancellations:    cancellations,
		transitions:      transitions,
		dedupRejections:  dedupRejections,
	}
}

// ObserveCheckout records one checkout attempt. code is empty on success.
func (m *MarketplaceMetrics) ObserveCheckout(code string, vendorOrders int, duration time.Duration) {
	if m == nil || m.checkouts == nil {
		return
	}
	outcome := OutcomeSuccess
	if code != "" {
		outcome = OutcomeFailure
	}
	m.checkouts.WithLabelValues(outcome, code).Inc()
	m.checkoutDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	if code == "" && vendorOrders > 0 {
		m.vendorOrders.Add(float64(vendorOrders))
	}
}

// IncCancellation counts a committed cancellation.
func (m *MarketplaceMetrics) IncCancellation() {
	if m == nil || m.cancellations == nil {
		return
	}
	m.cancellations.Inc()
}

// IncTransition counts a committed vendor order status change.
func (m *MarketplaceMetrics) IncTransition(status string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(status)).Inc()
}

// IncDedupRejected counts a rejected duplicate submission.
func (m *MarketplaceMetrics) IncDedupRejected() {
	if m == nil || m.dedupRejections == nil {
		return
	}
	m.dedupRejections.Inc()
}
