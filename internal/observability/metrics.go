package observability

import (
	"sync/atomic"
)

// MetricsCollector provides hooks for metrics collection
type MetricsCollector interface {
	IncPublished()
	IncPublishFailed()
	IncReceived()
	IncProcessed()
	IncFailed()
	IncRetried()
	IncSentToDLQ()
	IncDuplicate()
	IncExpedited()
	ObserveDeliveryCount(count int32)
}

// InMemoryMetrics is a simple in-memory implementation for testing/demo
type InMemoryMetrics struct {
	Published     atomic.Int64
	PublishFailed atomic.Int64
	Received      atomic.Int64
	Processed     atomic.Int64
	Failed        atomic.Int64
	Retried       atomic.Int64
	SentToDLQ     atomic.Int64
	Duplicates    atomic.Int64
	Expedited     atomic.Int64
	MaxDelivery   atomic.Int32
}

func NewInMemoryMetrics() *InMemoryMetrics {
	return &InMemoryMetrics{}
}

func (m *InMemoryMetrics) IncPublished() { m.Published.Add(1) }
func (m *InMemoryMetrics) IncPublishFailed() { m.PublishFailed.Add(1) }
func (m *InMemoryMetrics) IncReceived() { m.Received.Add(1) }
func (m *InMemoryMetrics) IncProcessed() { m.Processed.Add(1) }
func (m *InMemoryMetrics) IncFailed() { m.Failed.Add(1) }
func (m *InMemoryMetrics) IncRetried() { m.Retried.Add(1) }
func (m *InMemoryMetrics) IncSentToDLQ() { m.SentToDLQ.Add(1) }
func (m *InMemoryMetrics) IncDuplicate() { m.Duplicates.Add(1) }
func (m *InMemoryMetrics) IncExpedited() { m.Expedited.Add(1) }

// ObserveDeliveryCount keeps the highest delivery count seen.
func (m *InMemoryMetrics) ObserveDeliveryCount(count int32) {
	for {
		cur := m.MaxDelivery.Load()
		if count <= cur || m.MaxDelivery.CompareAndSwap(cur, count) {
			return
		}
	}
}

func (m *InMemoryMetrics) GetPublished() int64 { return m.Published.Load() }
func (m *InMemoryMetrics) GetPublishFailed() int64 { return m.PublishFailed.Load() }
func (m *InMemoryMetrics) GetReceived() int64 { return m.Received.Load() }
func (m *InMemoryMetrics) GetProcessed() int64 { return m.Processed.Load() }
func (m *InMemoryMetrics) GetFailed() int64 { return m.Failed.Load() }
func (m *InMemoryMetrics) GetRetried() int64 { return m.Retried.Load() }
func (m *InMemoryMetrics) GetSentToDLQ() int64 { return m.SentToDLQ.Load() }
func (m *InMemoryMetrics) GetDuplicates() int64 { return m.Duplicates.Load() }
func (m *InMemoryMetrics) GetExpedited() int64 { return m.Expedited.Load() }
func (m *InMemoryMetrics) GetMaxDeliveryCount() int32 { return m.MaxDelivery.Load() }
