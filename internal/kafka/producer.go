package kafka

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"go-oms/internal/messaging"
	"go-oms/internal/observability"
	"go-oms/pkg/compress"
	"go-oms/pkg/models"

	kafka "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// ProducerClient defines the interface for Kafka producer operations
type ProducerClient interface {
	Publish(ctx context.Context, msg *models.Message) error
	Close() error
}

// messageWriter is the part of *kafka.Writer the producer depends on.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer implements ProducerClient. PERSISTENT and NON_PERSISTENT messages
// go through separate writers so each gets its own ack level.
type Producer struct {
	persistent messageWriter
	transient  messageWriter
	logger     *zap.Logger
	metrics    observability.MetricsCollector
	retry      RetryPolicy
	bornHost   string
	now        func() time.Time
}

type ProducerConfig struct {
	Brokers       []string
	TransientAcks int // 0 for none, 1 for leader
	Retries       int // writer retries, 0 means a single attempt
	Idempotent    bool
	Retry         RetryPolicy // on top of the writer's own attempts, zero means DefaultRetryPolicy
	BornHost      string
	Metrics       observability.MetricsCollector
	Logger        *zap.Logger
}

func NewProducer(cfg ProducerConfig) *Producer {
	// kafka-go reads a zero MaxAttempts as its default of 10
	attempts := max(1, cfg.Retries+1)

	persistent := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		MaxAttempts:            attempts,
		WriteTimeout:           10 * time.Second,
		ReadTimeout:            10 * time.Second,
		AllowAutoTopicCreation: false,
		Async:                  false,
	}
	if cfg.Idempotent {
		persistent.MaxAttempts = 10
	}

	transient := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequiredAcks(cfg.TransientAcks),
		MaxAttempts:            attempts,
		WriteTimeout:           10 * time.Second,
		ReadTimeout:            10 * time.Second,
		AllowAutoTopicCreation: false,
	}

	return newProducer(cfg, persistent, transient)
}

func newProducer(cfg ProducerConfig, persistent, transient messageWriter) *Producer {
	if cfg.Metrics == nil {
		cfg.Metrics = observability.NewInMemoryMetrics()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Retry == (RetryPolicy{}) {
		cfg.Retry = DefaultRetryPolicy()
	}

	return &Producer{
		persistent: persistent,
		transient:  transient,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
		retry:      cfg.Retry,
		bornHost:   cfg.BornHost,
		now:        time.Now,
	}
}

// Publish stamps msg, compresses its body according to the COMPRESSION
// header and writes it to the topic named by its destination. On return the
// header of msg carries the generated message id and born fields.
func (p *Producer) Publish(ctx context.Context, msg *models.Message) error {
	if msg == nil {
		return ErrNilMessage
	}
	topic := msg.Header.Destination()
	if topic == "" {
		return ErrEmptyDestination
	}

	msg.Stamp(p.now(), p.bornHost)

	body, err := compress.Compress(msg.Header.Compression(), msg.Value)
	if err != nil {
		p.metrics.IncPublishFailed()
		return &messaging.PermanentError{Err: err}
	}

	kafkaMsg := toKafkaMessage(msg, body)

	writer := p.persistent
	if !msg.Header.IsPersistent() {
		writer = p.transient
	}

	logger := p.logger.With(
		zap.String("topic", topic),
		zap.String("message_id", msg.Header.MessageID()),
		zap.Int16("priority", msg.Header.Priority()),
		zap.Stringer("durability", msg.Header.Durability()),
	)

	var lastErr error
	for attempt := 0; attempt <= p.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := p.retry.Backoff(attempt - 1)

			logger.Info("Retrying message publish",
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
			)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		err := writer.WriteMessages(ctx, kafkaMsg)
		if err == nil {
			p.metrics.IncPublished()
			logger.Debug("Message published successfully", zap.Int("attempt", attempt+1))
			return nil
		}

		lastErr = err
		logger.Warn("Failed to publish message",
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)

		if ctx.Err() != nil {
			break
		}
	}

	p.metrics.IncPublishFailed()
	return &messaging.RetryableError{Err: fmt.Errorf("failed to publish message after %d attempts: %w", p.retry.MaxRetries+1, lastErr)}
}

// Close gracefully shuts down the producer
func (p *Producer) Close() error {
	p.logger.Info("Closing producer")
	errPersistent := p.persistent.Close()
	errTransient := p.transient.Close()
	if errPersistent != nil {
		return fmt.Errorf("failed to close producer: %w", errPersistent)
	}
	if errTransient != nil {
		return fmt.Errorf("failed to close producer: %w", errTransient)
	}
	return nil
}

// toKafkaMessage carries the system header and the properties of msg as
// Kafka record headers, header keys first, each group in key order.
func toKafkaMessage(msg *models.Message, body []byte) kafka.Message {
	encoded := models.EncodeHeader(msg.Header)
	headers := make([]kafka.Header, 0, len(encoded)+len(msg.Properties))
	for _, k := range slices.Sorted(maps.Keys(encoded)) {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(encoded[k])})
	}
	for _, k := range slices.Sorted(maps.Keys(msg.Properties)) {
		if models.IsHeaderKey(k) {
			continue
		}
		headers = append(headers, kafka.Header{Key: k, Value: []byte(msg.Properties[k])})
	}

	return kafka.Message{
		Topic:   msg.Header.Destination(),
		Key:     []byte(msg.Key),
		Value:   body,
		Headers: headers,
		Time:    msg.Header.BornTime(),
	}
}
