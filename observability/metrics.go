package observability

import (
	"fmt"
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type gatewayMetrics struct {
	requests *prometheus.CounterVec
	errors   *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// FundingMetrics bundles collectors tracking queue and engine health.
type FundingMetrics struct {
	ordersCreated   *prometheus.CounterVec
	ordersSettled   *prometheus.CounterVec
	ordersCancelled prometheus.Counter
	unclaimable     *prometheus.CounterVec
	openRedemption  prometheus.Gauge
	reserveBalance  prometheus.Gauge
}

var (
	gatewayMetricsOnce sync.Once
	gatewayRegistry    *gatewayMetrics

	fundingMetricsOnce sync.Once
	fundingRegistry    *FundingMetrics
)

// Gateway returns the lazily-initialised metrics registry used to record
// JSON-RPC gateway activity.
func Gateway() *gatewayMetrics {
	gatewayMetricsOnce.Do(func() {
		gatewayRegistry = &gatewayMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "fvault",
				Subsystem: "gateway",
				Name:      "requests_total",
				Help:      "Total JSON-RPC requests segmented by method and outcome.",
			}, []string{"method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "fvault",
				Subsystem: "gateway",
				Name:      "errors_total",
				Help:      "Total JSON-RPC errors segmented by method and status code.",
			}, []string{"method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "fvault",
				Subsystem: "gateway",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method"}),
		}
		prometheus.MustRegister(
			gatewayRegistry.requests,
			gatewayRegistry.errors,
			gatewayRegistry.latency,
		)
	})
	return gatewayRegistry
}

// Observe records the outcome of a gateway request. The status code should be
// the HTTP status that was ultimately written to the response writer.
func (m *gatewayMetrics) Observe(method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(method, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(method).Observe(duration.Seconds())
}

// Funding returns the singleton metrics registry for the redemption engine.
func Funding() *FundingMetrics {
	fundingMetricsOnce.Do(func() {
		fundingRegistry = &FundingMetrics{
			ordersCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "fvault",
				Subsystem: "queue",
				Name:      "orders_created_total",
				Help:      "Count of payment orders enqueued, segmented by token.",
			}, []string{"token"}),
			ordersSettled: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "fvault",
				Subsystem: "queue",
				Name:      "orders_settled_total",
				Help:      "Count of payment orders settled, segmented by token.",
			}, []string{"token"}),
			ordersCancelled: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "fvault",
				Subsystem: "queue",
				Name:      "orders_cancelled_total",
				Help:      "Count of payment orders cancelled before settlement.",
			}),
			unclaimable: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "fvault",
				Subsystem: "queue",
				Name:      "unclaimable_total",
				Help:      "Count of settlements diverted to the unclaimable ledger, segmented by token.",
			}, []string{"token"}),
			openRedemption: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "fvault",
				Subsystem: "engine",
				Name:      "open_redemption_units",
				Help:      "Collateral promised to queued redemptions but not yet paid out.",
			}),
			reserveBalance: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "fvault",
				Subsystem: "engine",
				Name:      "reserve_units",
				Help:      "Collateral currently held in the redemption reserve.",
			}),
		}
		prometheus.MustRegister(
			fundingRegistry.ordersCreated,
			fundingRegistry.ordersSettled,
			fundingRegistry.ordersCancelled,
			fundingRegistry.unclaimable,
			fundingRegistry.openRedemption,
			fundingRegistry.reserveBalance,
		)
	})
	return fundingRegistry
}

// RecordOrderCreated increments the enqueue counter for a token.
func (m *FundingMetrics) RecordOrderCreated(token string) {
	if m == nil {
		return
	}
	m.ordersCreated.WithLabelValues(labelToken(token)).Inc()
}

// RecordOrderSettled increments the settlement counter for a token.
func (m *FundingMetrics) RecordOrderSettled(token string) {
	if m == nil {
		return
	}
	m.ordersSettled.WithLabelValues(labelToken(token)).Inc()
}

// RecordOrderCancelled increments the cancellation counter.
func (m *FundingMetrics) RecordOrderCancelled() {
	if m == nil {
		return
	}
	m.ordersCancelled.Inc()
}

// RecordUnclaimable increments the unclaimable diversion counter for a token.
func (m *FundingMetrics) RecordUnclaimable(token string) {
	if m == nil {
		return
	}
	m.unclaimable.WithLabelValues(labelToken(token)).Inc()
}

// SetOpenRedemption updates the open redemption gauge.
func (m *FundingMetrics) SetOpenRedemption(amount *big.Int) {
	if m == nil {
		return
	}
	m.openRedemption.Set(bigToFloat(amount))
}

// SetReserveBalance updates the reserve gauge.
func (m *FundingMetrics) SetReserveBalance(amount *big.Int) {
	if m == nil {
		return
	}
	m.reserveBalance.Set(bigToFloat(amount))
}

func labelToken(token string) string {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return "unknown"
	}
	return strings.ToLower(trimmed)
}

func bigToFloat(value *big.Int) float64 {
	if value == nil {
		return 0
	}
	floatVal, acc := new(big.Float).SetInt(value).Float64()
	if acc != big.Exact {
		// Guard against NaN/Inf when conversion fails.
		if math.IsNaN(floatVal) || math.IsInf(floatVal, 0) {
			return 0
		}
	}
	return floatVal
}
