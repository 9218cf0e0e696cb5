package observability

import (
	"encoding/hex"

	"fundingvault/core/events"
)

// MetricsEmitter mirrors queue events into the funding metrics registry. It
// is meant to sit alongside the real emitter in a MultiEmitter.
type MetricsEmitter struct {
	metrics *FundingMetrics
}

// NewMetricsEmitter binds the emitter to the funding registry.
func NewMetricsEmitter(metrics *FundingMetrics) *MetricsEmitter {
	return &MetricsEmitter{metrics: metrics}
}

// Emit implements the events.Emitter interface.
func (m *MetricsEmitter) Emit(evt events.Event) {
	if m == nil || m.metrics == nil || evt == nil {
		return
	}
	switch e := evt.(type) {
	case events.OrderCreated:
		m.metrics.RecordOrderCreated(tokenLabel(e.Token))
	case events.OrderSettled:
		m.metrics.RecordOrderSettled(tokenLabel(e.Token))
	case events.OrderStateChanged:
		if e.Current == "cancelled" {
			m.metrics.RecordOrderCancelled()
		}
	case events.UnclaimableRecorded:
		m.metrics.RecordUnclaimable(tokenLabel(e.Token))
	}
}

func tokenLabel(token [20]byte) string {
	return "0x" + hex.EncodeToString(token[:])
}
