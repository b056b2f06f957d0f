package rabbitmq

import (
	"context"
	"fmt"
	"io"
	"time"

	"go-oms/internal/observability"
	"go-oms/pkg/compress"
	"go-oms/pkg/models"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// publishChannel is the part of *amqp.Channel the publisher depends on.
type publishChannel interface {
	PublishWithDeferredConfirmWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) (*amqp.DeferredConfirmation, error)
	Close() error
}

// Publisher sends messages to an exchange using the destination as routing
// key. The channel runs in confirm mode so Publish returns only once the
// broker has taken the message.
type Publisher struct {
	conn     io.Closer
	channel  publishChannel
	exchange string
	bornHost string
	logger   *zap.Logger
	metrics  observability.MetricsCollector
	now      func() time.Time
}

type PublisherConfig struct {
	URL      string
	Exchange string
	BornHost string
	Metrics  observability.MetricsCollector
	Logger   *zap.Logger
}

func NewPublisher(cfg PublisherConfig) (*Publisher, error) {
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

	if err := ch.Confirm(false); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to enable publisher confirms: %w", err)
	}

	return newPublisher(cfg, conn, ch), nil
}

func newPublisher(cfg PublisherConfig, conn io.Closer, ch publishChannel) *Publisher {
	if cfg.Metrics == nil {
		cfg.Metrics = observability.NewInMemoryMetrics()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Publisher{
		conn:     conn,
		channel:  ch,
		exchange: cfg.Exchange,
		bornHost: cfg.BornHost,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		now:      time.Now,
	}
}

// Publish stamps msg and sends it compressed according to its header. On
// return the header of msg carries the generated message id and born fields.
func (p *Publisher) Publish(ctx context.Context, msg *models.Message) error {
	if msg == nil {
		return ErrNilMessage
	}
	key := msg.Header.Destination()
	if key == "" {
		return ErrEmptyDestination
	}

	msg.Stamp(p.now(), p.bornHost)

	body, err := compress.Compress(msg.Header.Compression(), msg.Value)
	if err != nil {
		p.metrics.IncPublishFailed()
		return err
	}

	out := *msg
	out.Value = body
	publishing := ToPublishing(&out)

	logger := p.logger.With(
		zap.String("exchange", p.exchange),
		zap.String("routing_key", key),
		zap.String("message_id", msg.Header.MessageID()),
		zap.Int16("priority", msg.Header.Priority()),
	)

	confirm, err := p.channel.PublishWithDeferredConfirmWithContext(ctx, p.exchange, key, false, false, publishing)
	if err != nil {
		p.metrics.IncPublishFailed()
		logger.Warn("Failed to publish message", zap.Error(err))
		return fmt.Errorf("failed to publish message: %w", err)
	}

	if confirm != nil {
		acked, err := confirm.WaitContext(ctx)
		if err != nil {
			p.metrics.IncPublishFailed()
			return err
		}
		if !acked {
			p.metrics.IncPublishFailed()
			return ErrPublishNacked
		}
	}

	p.metrics.IncPublished()
	logger.Debug("Message published successfully")
	return nil
}

func (p *Publisher) Close() error {
	p.logger.Info("Closing publisher")
	p.channel.Close()
	if p.conn == nil {
		return nil
	}
	return p.conn.Close()
}
