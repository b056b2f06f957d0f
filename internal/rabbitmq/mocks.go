package rabbitmq

import (
	"context"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// MockChannel stands in for *amqp.Channel on both the publish and the
// consume side.
type MockChannel struct {
	mu          sync.Mutex
	Published   []MockPublish
	PublishErr  error
	Deliveries  chan amqp.Delivery
	Declared    []string
	DeclareArgs amqp.Table
	Bound       []string
	Prefetch    int
	Closed      bool
}

type MockPublish struct {
	Exchange   string
	Key        string
	Publishing amqp.Publishing
}

func NewMockChannel(deliveries ...amqp.Delivery) *MockChannel {
	ch := &MockChannel{Deliveries: make(chan amqp.Delivery, len(deliveries)+16)}
	for _, d := range deliveries {
		ch.Deliveries <- d
	}
	return ch
}

func (c *MockChannel) PublishWithDeferredConfirmWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) (*amqp.DeferredConfirmation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.PublishErr != nil {
		return nil, c.PublishErr
	}
	c.Published = append(c.Published, MockPublish{Exchange: exchange, Key: key, Publishing: msg})
	return nil, nil
}

func (c *MockChannel) Qos(prefetchCount, prefetchSize int, global bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Prefetch = prefetchCount
	return nil
}

func (c *MockChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Declared = append(c.Declared, name)
	c.DeclareArgs = args
	return amqp.Queue{Name: name}, nil
}

func (c *MockChannel) QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Bound = append(c.Bound, key)
	return nil
}

func (c *MockChannel) Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	return c.Deliveries, nil
}

func (c *MockChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Closed = true
	return nil
}

func (c *MockChannel) GetPublished() []MockPublish {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]MockPublish, len(c.Published))
	copy(out, c.Published)
	return out
}

// MockAcknowledger records how deliveries were settled.
type MockAcknowledger struct {
	mu       sync.Mutex
	Acked    []uint64
	Nacked   []uint64
	Rejected []uint64
	Requeued []bool
}

func (a *MockAcknowledger) Ack(tag uint64, multiple bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Acked = append(a.Acked, tag)
	return nil
}

func (a *MockAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Nacked = append(a.Nacked, tag)
	a.Requeued = append(a.Requeued, requeue)
	return nil
}

func (a *MockAcknowledger) Reject(tag uint64, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Rejected = append(a.Rejected, tag)
	a.Requeued = append(a.Requeued, requeue)
	return nil
}

func (a *MockAcknowledger) Counts() (acked, nacked, rejected int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.Acked), len(a.Nacked), len(a.Rejected)
}
