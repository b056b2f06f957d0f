package kafka

import (
	"context"
	"fmt"
	"io"
	"sync"

	"go-oms/pkg/models"

	kafka "github.com/segmentio/kafka-go"
)

// MockProducer is a mock implementation of ProducerClient for testing
type MockProducer struct {
	mu                sync.RWMutex
	PublishedMessages []*models.Message
	PublishFunc       func(ctx context.Context, msg *models.Message) error
	CloseFunc         func() error
	FailCount         int
	failureCounter    int
}

func NewMockProducer() *MockProducer {
	return &MockProducer{
		PublishedMessages: make([]*models.Message, 0),
	}
}

func (m *MockProducer) Publish(ctx context.Context, msg *models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, msg)
	}

	if m.FailCount > 0 {
		m.failureCounter++
		if m.failureCounter <= m.FailCount {
			return fmt.Errorf("simulated publish failure %d", m.failureCounter)
		}
	}

	m.PublishedMessages = append(m.PublishedMessages, msg)
	return nil
}

func (m *MockProducer) Close() error {
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

func (m *MockProducer) GetPublishedMessages() []*models.Message {
	m.mu.RLock()
	defer m.mu.RUnlock()

	messages := make([]*models.Message, len(m.PublishedMessages))
	copy(messages, m.PublishedMessages)
	return messages
}

func (m *MockProducer) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.PublishedMessages = make([]*models.Message, 0)
	m.failureCounter = 0
}

// MockDedupeStore is a mock implementation of DedupeStore for testing
type MockDedupeStore struct {
	mu          sync.RWMutex
	ExistsFunc  func(messageID string) bool
	AddFunc     func(messageID string) error
	existingIDs map[string]bool
}

func NewMockDedupeStore() *MockDedupeStore {
	return &MockDedupeStore{
		existingIDs: make(map[string]bool),
	}
}

func (m *MockDedupeStore) Exists(messageID string) bool {
	if m.ExistsFunc != nil {
		return m.ExistsFunc(messageID)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.existingIDs[messageID]
}

func (m *MockDedupeStore) Add(messageID string) error {
	if m.AddFunc != nil {
		return m.AddFunc(messageID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.existingIDs[messageID] = true
	return nil
}

func (m *MockDedupeStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.existingIDs = make(map[string]bool)
}

// MockWriter records what a Producer writes instead of talking to Kafka
type MockWriter struct {
	mu      sync.Mutex
	Written []kafka.Message
	Errors  []error // returned in order, one per call, before succeeding
	calls   int
	Closed  bool
}

func (w *MockWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	w.calls++
	if w.calls <= len(w.Errors) {
		return w.Errors[w.calls-1]
	}
	w.Written = append(w.Written, msgs...)
	return nil
}

func (w *MockWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Closed = true
	return nil
}

func (w *MockWriter) Calls() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.calls
}

// MockReader feeds queued records to a Consumer and records commits. Like
// kafka.Reader it returns io.EOF once closed.
type MockReader struct {
	mu        sync.Mutex
	queue     chan kafka.Message
	done      chan struct{}
	Committed []kafka.Message
	Closed    bool
}

func NewMockReader(msgs ...kafka.Message) *MockReader {
	r := &MockReader{
		queue: make(chan kafka.Message, len(msgs)+16),
		done:  make(chan struct{}),
	}
	for _, msg := range msgs {
		r.queue <- msg
	}
	return r
}

func (r *MockReader) Push(msg kafka.Message) {
	r.queue <- msg
}

func (r *MockReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	case <-r.done:
		return kafka.Message{}, io.EOF
	case msg := <-r.queue:
		return msg, nil
	}
}

func (r *MockReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Committed = append(r.Committed, msgs...)
	return nil
}

func (r *MockReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.Closed {
		r.Closed = true
		close(r.done)
	}
	return nil
}

func (r *MockReader) GetCommitted() []kafka.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]kafka.Message, len(r.Committed))
	copy(out, r.Committed)
	return out
}
