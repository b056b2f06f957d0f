package rabbitmq

import (
	"context"
	"fmt"
	"io"

	"go-oms/internal/messaging"
	"go-oms/internal/observability"
	"go-oms/pkg/models"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Handler processes a decoded message. A nil return acks the delivery, a
// messaging.PermanentError rejects it without requeue and any other error
// requeues it.
type Handler func(ctx context.Context, msg *models.Message) error

// consumeChannel is the part of *amqp.Channel the subscriber depends on.
type consumeChannel interface {
	Qos(prefetchCount, prefetchSize int, global bool) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Close() error
}

// Subscriber consumes a priority queue with manual acks.
type Subscriber struct {
	conn          io.Closer
	channel       consumeChannel
	exchange      string
	bindings      []string
	consumerTag   string
	prefetchCount int
	logger        *zap.Logger
	metrics       observability.MetricsCollector
}

type SubscriberConfig struct {
	URL      string
	Exchange string
	// Bindings are routing keys bound to the queue when Exchange is set.
	// The queue name is bound when empty.
	Bindings      []string
	ConsumerTag   string
	PrefetchCount int
	Metrics       observability.MetricsCollector
	Logger        *zap.Logger
}

func NewSubscriber(cfg SubscriberConfig) (*Subscriber, error) {
	if cfg.URL == "" {
		return nil, ErrEmptyURL
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if cfg.Exchange != "" {
		if err := ch.ExchangeDeclare(cfg.Exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to declare exchange: %w", err)
		}
	}

	return newSubscriber(cfg, conn, ch), nil
}

func newSubscriber(cfg SubscriberConfig, conn io.Closer, ch consumeChannel) *Subscriber {
	if cfg.Metrics == nil {
		cfg.Metrics = observability.NewInMemoryMetrics()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.PrefetchCount <= 0 {
		cfg.PrefetchCount = 10
	}

	return &Subscriber{
		conn:          conn,
		channel:       ch,
		exchange:      cfg.Exchange,
		bindings:      cfg.Bindings,
		consumerTag:   cfg.ConsumerTag,
		prefetchCount: cfg.PrefetchCount,
		logger:        cfg.Logger,
		metrics:       cfg.Metrics,
	}
}

// Consume declares queue and hands each delivery to handler until ctx is
// cancelled. Successful deliveries are acked, failed ones are requeued and
// undecodable ones are rejected so the broker can dead-letter them.
func (s *Subscriber) Consume(ctx context.Context, queue string, handler Handler) error {
	if queue == "" {
		return ErrEmptyQueue
	}
	if handler == nil {
		return ErrNilHandler
	}

	deliveries, err := s.setupQueue(queue)
	if err != nil {
		return err
	}

	s.logger.Info("Starting subscriber", zap.String("queue", queue))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Subscriber stopping due to context cancellation")
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return ErrDeliveriesClosed
			}
			s.handleDelivery(ctx, d, handler)
		}
	}
}

func (s *Subscriber) setupQueue(queue string) (<-chan amqp.Delivery, error) {
	if err := s.channel.Qos(s.prefetchCount, 0, false); err != nil {
		return nil, fmt.Errorf("failed to set qos: %w", err)
	}

	args := amqp.Table{"x-max-priority": int32(MaxQueuePriority)}
	q, err := s.channel.QueueDeclare(queue, true, false, false, false, args)
	if err != nil {
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	if s.exchange != "" {
		keys := s.bindings
		if len(keys) == 0 {
			keys = []string{q.Name}
		}
		for _, key := range keys {
			if err := s.channel.QueueBind(q.Name, key, s.exchange, false, nil); err != nil {
				return nil, fmt.Errorf("failed to bind queue: %w", err)
			}
		}
	}

	deliveries, err := s.channel.Consume(q.Name, s.consumerTag, false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}
	return deliveries, nil
}

func (s *Subscriber) handleDelivery(ctx context.Context, d amqp.Delivery, handler Handler) {
	s.metrics.IncReceived()

	msg, err := FromDelivery(d)
	logger := s.logger.With(
		zap.String("routing_key", d.RoutingKey),
		zap.Uint64("delivery_tag", d.DeliveryTag),
		zap.String("message_id", msg.Header.MessageID()),
		zap.Int32("delivery_count", msg.Header.DeliveryCount()),
	)

	if err != nil {
		s.metrics.IncFailed()
		logger.Error("Undecodable message", zap.Error(err))
		if err := d.Reject(false); err != nil {
			logger.Error("Failed to reject message", zap.Error(err))
		}
		return
	}

	s.metrics.ObserveDeliveryCount(msg.Header.DeliveryCount())

	if err := handler(ctx, msg); err != nil {
		s.metrics.IncFailed()
		logger.Error("Message processing failed", zap.Error(err))
		// dead-lettered by the queue policy, if any
		if messaging.IsPermanent(err) {
			if err := d.Reject(false); err != nil {
				logger.Error("Failed to reject message", zap.Error(err))
			}
			return
		}
		if err := d.Nack(false, true); err != nil {
			logger.Error("Failed to nack message", zap.Error(err))
		}
		return
	}

	s.metrics.IncProcessed()
	if err := d.Ack(false); err != nil {
		logger.Error("Failed to ack message", zap.Error(err))
	}
}

func (s *Subscriber) Close() error {
	s.logger.Info("Closing subscriber")
	s.channel.Close()
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}
