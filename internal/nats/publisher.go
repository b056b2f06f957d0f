package nats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go-oms/internal/observability"
	"go-oms/pkg/compress"
	"go-oms/pkg/models"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

var (
	ErrNilMessage       = errors.New("message is nil")
	ErrEmptyDestination = errors.New("message destination is empty")
	ErrNilHandler       = errors.New("handler is nil")
)

// corePublisher is the part of *nats.Conn the publisher depends on.
type corePublisher interface {
	PublishMsg(m *nats.Msg) error
}

// streamPublisher is the part of nats.JetStreamContext the publisher depends on.
type streamPublisher interface {
	PublishMsg(m *nats.Msg, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// Publisher sends PERSISTENT messages through JetStream, so they are stored
// and acked by a stream, and everything else over core NATS.
type Publisher struct {
	core     corePublisher
	stream   streamPublisher
	bornHost string
	logger   *zap.Logger
	metrics  observability.MetricsCollector
	now      func() time.Time
}

type PublisherConfig struct {
	BornHost string
	Metrics  observability.MetricsCollector
	Logger   *zap.Logger
}

func NewPublisher(client *Client, cfg PublisherConfig) *Publisher {
	var stream streamPublisher
	if client.js != nil {
		stream = client.js
	}
	return newPublisher(cfg, client.conn, stream)
}

func newPublisher(cfg PublisherConfig, core corePublisher, stream streamPublisher) *Publisher {
	if cfg.Metrics == nil {
		cfg.Metrics = observability.NewInMemoryMetrics()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Publisher{
		core:     core,
		stream:   stream,
		bornHost: cfg.BornHost,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		now:      time.Now,
	}
}

// Publish stamps msg and sends it to the subject named by its destination.
func (p *Publisher) Publish(ctx context.Context, msg *models.Message) error {
	if msg == nil {
		return ErrNilMessage
	}
	subject := msg.Header.Destination()
	if subject == "" {
		return ErrEmptyDestination
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg.Stamp(p.now(), p.bornHost)

	body, err := compress.Compress(msg.Header.Compression(), msg.Value)
	if err != nil {
		p.metrics.IncPublishFailed()
		return err
	}

	out := *msg
	out.Value = body
	natsMsg := ToMsg(&out)

	logger := p.logger.With(
		zap.String("subject", subject),
		zap.String("message_id", msg.Header.MessageID()),
		zap.Int16("priority", msg.Header.Priority()),
		zap.Stringer("durability", msg.Header.Durability()),
	)

	if msg.Header.IsPersistent() && p.stream != nil {
		ack, err := p.stream.PublishMsg(natsMsg, nats.Context(ctx), nats.MsgId(msg.Header.MessageID()))
		if err != nil {
			p.metrics.IncPublishFailed()
			logger.Warn("Failed to publish message to stream", zap.Error(err))
			return fmt.Errorf("failed to publish message: %w", err)
		}
		p.metrics.IncPublished()
		logger.Debug("Message stored", zap.String("stream", ack.Stream), zap.Uint64("sequence", ack.Sequence))
		return nil
	}

	if err := p.core.PublishMsg(natsMsg); err != nil {
		p.metrics.IncPublishFailed()
		logger.Warn("Failed to publish message", zap.Error(err))
		return fmt.Errorf("failed to publish message: %w", err)
	}
	p.metrics.IncPublished()
	logger.Debug("Message published successfully")
	return nil
}

// Close is a no-op; the connection belongs to the Client.
func (p *Publisher) Close() error {
	return nil
}
