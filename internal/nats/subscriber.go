package nats

import (
	"context"
	"fmt"

	"go-oms/internal/messaging"
	"go-oms/internal/observability"
	"go-oms/pkg/models"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Handler processes a decoded message
type Handler func(ctx context.Context, msg *models.Message) error

type subscribeFunc func(subject, queue string, cb nats.MsgHandler) (*nats.Subscription, error)

// acker is the settlement side of a JetStream *nats.Msg.
type acker interface {
	Ack(opts ...nats.AckOpt) error
	Nak(opts ...nats.AckOpt) error
	Term(opts ...nats.AckOpt) error
}

// Subscriber decodes incoming messages and settles JetStream deliveries
// according to the handler result.
type Subscriber struct {
	subscribe subscribeFunc
	jetStream bool
	acker     func(m *nats.Msg) acker
	logger    *zap.Logger
	metrics   observability.MetricsCollector
}

type SubscriberConfig struct {
	Metrics observability.MetricsCollector
	Logger  *zap.Logger
}

func NewSubscriber(client *Client, cfg SubscriberConfig) *Subscriber {
	if client.js == nil {
		return newSubscriber(cfg, false, func(subject, queue string, cb nats.MsgHandler) (*nats.Subscription, error) {
			if queue == "" {
				return client.conn.Subscribe(subject, cb)
			}
			return client.conn.QueueSubscribe(subject, queue, cb)
		})
	}
	return newSubscriber(cfg, true, func(subject, queue string, cb nats.MsgHandler) (*nats.Subscription, error) {
		if queue == "" {
			return client.js.Subscribe(subject, cb, nats.ManualAck())
		}
		return client.js.QueueSubscribe(subject, queue, cb, nats.ManualAck())
	})
}

func newSubscriber(cfg SubscriberConfig, jetStream bool, subscribe subscribeFunc) *Subscriber {
	if cfg.Metrics == nil {
		cfg.Metrics = observability.NewInMemoryMetrics()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Subscriber{
		subscribe: subscribe,
		jetStream: jetStream,
		acker:     func(m *nats.Msg) acker { return m },
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
	}
}

// Subscribe delivers messages on subject to handler. With a non-empty queue
// the subscription joins that queue group. ctx is handed to every handler
// call; cancelling it does not unsubscribe.
func (s *Subscriber) Subscribe(ctx context.Context, subject, queue string, handler Handler) (*nats.Subscription, error) {
	if handler == nil {
		return nil, ErrNilHandler
	}

	sub, err := s.subscribe(subject, queue, func(m *nats.Msg) {
		s.handle(ctx, m, handler)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}

	s.logger.Info("Subscribed",
		zap.String("subject", subject),
		zap.String("queue", queue),
		zap.Bool("jetstream", s.jetStream),
	)
	return sub, nil
}

func (s *Subscriber) handle(ctx context.Context, m *nats.Msg, handler Handler) {
	s.metrics.IncReceived()

	msg, err := FromMsg(m)
	logger := s.logger.With(
		zap.String("subject", m.Subject),
		zap.String("message_id", msg.Header.MessageID()),
		zap.Int32("delivery_count", msg.Header.DeliveryCount()),
	)

	if err != nil {
		s.metrics.IncFailed()
		logger.Error("Undecodable message", zap.Error(err))
		s.settle(logger, s.acker(m).Term)
		return
	}

	s.metrics.ObserveDeliveryCount(msg.Header.DeliveryCount())

	if err := handler(ctx, msg); err != nil {
		s.metrics.IncFailed()
		logger.Error("Message processing failed", zap.Error(err))
		if messaging.IsPermanent(err) {
			s.settle(logger, s.acker(m).Term)
			return
		}
		s.settle(logger, s.acker(m).Nak)
		return
	}

	s.metrics.IncProcessed()
	s.settle(logger, s.acker(m).Ack)
}

// settle acks, naks or terminates a JetStream delivery. Core NATS messages
// have nothing to settle.
func (s *Subscriber) settle(logger *zap.Logger, fn func(opts ...nats.AckOpt) error) {
	if !s.jetStream {
		return
	}
	if err := fn(); err != nil {
		logger.Error("Failed to settle message", zap.Error(err))
	}
}
