package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime/debug"
	"strconv"
	"sync"
	"time"

	"go-oms/internal/messaging"
	"go-oms/internal/observability"
	"go-oms/pkg/compress"
	"go-oms/pkg/models"

	kafka "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// MessageHandler processes consumed messages
type MessageHandler func(ctx context.Context, msg *models.Message) error

// ConsumerClient defines the interface for Kafka consumer operations
type ConsumerClient interface {
	Start(ctx context.Context, handler MessageHandler) error
	Close() error
}

// messageReader is the part of *kafka.Reader the consumer depends on.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer implements ConsumerClient with a worker pool and retry/DLQ logic.
// Messages above the default priority are dispatched on an expedited lane
// that workers drain first.
type Consumer struct {
	reader           messageReader
	producer         ProducerClient
	logger           *zap.Logger
	metrics          observability.MetricsCollector
	workers          int
	retryMax         int
	retryTopicPrefix string
	dlqTopic         string
	dedupeStore      DedupeStore
	handlerTimeout   time.Duration
	wg               sync.WaitGroup
}

type ConsumerConfig struct {
	Brokers          []string
	Topic            string
	GroupID          string
	Workers          int
	RetryMax         int
	FetchMinBytes    int
	FetchMaxBytes    int
	RetryTopicPrefix string
	DLQTopic         string
	HandlerTimeout   time.Duration // zero disables the per-message deadline
	Metrics          observability.MetricsCollector
	DedupeStore      DedupeStore
	Logger           *zap.Logger
}

func NewConsumer(cfg ConsumerConfig, producer ProducerClient) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.GroupID,
		MinBytes:       cfg.FetchMinBytes,
		MaxBytes:       cfg.FetchMaxBytes,
		CommitInterval: 0, // Manual commits
		StartOffset:    kafka.LastOffset,
	})
	return newConsumer(cfg, producer, reader)
}

func newConsumer(cfg ConsumerConfig, producer ProducerClient, reader messageReader) *Consumer {
	if cfg.Metrics == nil {
		cfg.Metrics = observability.NewInMemoryMetrics()
	}
	if cfg.DedupeStore == nil {
		cfg.DedupeStore = NewInMemoryDedupeStore(1 * time.Hour)
	}
	if cfg.Workers == 0 {
		cfg.Workers = 5
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Consumer{
		reader:           reader,
		producer:         producer,
		logger:           cfg.Logger,
		metrics:          cfg.Metrics,
		workers:          cfg.Workers,
		retryMax:         cfg.RetryMax,
		retryTopicPrefix: cfg.RetryTopicPrefix,
		dlqTopic:         cfg.DLQTopic,
		dedupeStore:      cfg.DedupeStore,
		handlerTimeout:   cfg.HandlerTimeout,
	}
}

// Start begins consuming messages with worker pool. It returns once ctx is
// cancelled and all workers have drained.
func (c *Consumer) Start(ctx context.Context, handler MessageHandler) error {
	if handler == nil {
		return ErrHandlerNotSet
	}
	c.logger.Info("Starting consumer", zap.Int("workers", c.workers))

	expedited := make(chan kafka.Message, c.workers*2)
	normal := make(chan kafka.Message, c.workers*2)

	for i := 0; i < c.workers; i++ {
		c.wg.Add(1)
		go c.worker(ctx, i, expedited, normal, handler)
	}

	c.wg.Add(1)
	go c.fetcher(ctx, expedited, normal)

	c.wg.Wait()
	return nil
}

// fetcher reads messages from Kafka and routes them to a lane by priority
func (c *Consumer) fetcher(ctx context.Context, expedited, normal chan<- kafka.Message) {
	defer c.wg.Done()
	defer close(expedited)
	defer close(normal)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Fetcher stopping due to context cancellation")
			return
		default:
		}

		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			// the reader has been closed
			if errors.Is(err, io.EOF) {
				c.logger.Info("Fetcher stopping, reader closed")
				return
			}
			c.logger.Error("Failed to fetch message", zap.Error(err))
			continue
		}

		c.metrics.IncReceived()

		lane := normal
		if peekPriority(msg) > models.DefaultPriority {
			c.metrics.IncExpedited()
			lane = expedited
		}

		select {
		case lane <- msg:
		case <-ctx.Done():
			return
		}
	}
}

// worker processes messages, always taking expedited ones first
func (c *Consumer) worker(ctx context.Context, id int, expedited, normal <-chan kafka.Message, handler MessageHandler) {
	defer c.wg.Done()
	c.logger.Debug("Worker started", zap.Int("worker_id", id))

	for expedited != nil || normal != nil {
		select {
		case msg, ok := <-expedited:
			if !ok {
				expedited = nil
				continue
			}
			c.processMessage(ctx, msg, handler, id)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			c.logger.Debug("Worker stopping due to context cancellation", zap.Int("worker_id", id))
			return
		case msg, ok := <-expedited:
			if !ok {
				expedited = nil
				continue
			}
			c.processMessage(ctx, msg, handler, id)
		case msg, ok := <-normal:
			if !ok {
				normal = nil
				continue
			}
			c.processMessage(ctx, msg, handler, id)
		}
	}
	c.logger.Debug("Worker stopping - channels closed", zap.Int("worker_id", id))
}

// processMessage handles message processing with retry and DLQ logic
func (c *Consumer) processMessage(ctx context.Context, kafkaMsg kafka.Message, handler MessageHandler, workerID int) {
	msg, decodeErr := c.toInternalMessage(kafkaMsg)

	logger := c.logger.With(
		zap.String("topic", kafkaMsg.Topic),
		zap.Int("partition", kafkaMsg.Partition),
		zap.Int64("offset", kafkaMsg.Offset),
		zap.String("message_id", msg.Header.MessageID()),
		zap.Int32("delivery_count", msg.Header.DeliveryCount()),
		zap.Int("worker_id", workerID),
	)

	if decodeErr != nil {
		c.metrics.IncFailed()
		logger.Error("Undecodable message", zap.Error(decodeErr))
		// park the raw body as received
		msg.SetProperty(models.PropertyOriginalCompression, msg.Header.Compression().String())
		msg.Header.SetCompression(models.CompressionNone)
		if err := c.sendToDLQ(ctx, msg, decodeErr); err != nil {
			return
		}
		c.commitMessage(kafkaMsg)
		return
	}

	c.metrics.ObserveDeliveryCount(msg.Header.DeliveryCount())

	if msgID := msg.Header.MessageID(); msgID != "" && c.dedupeStore.Exists(msgID) {
		c.metrics.IncDuplicate()
		logger.Info("Duplicate message detected, skipping")
		c.commitMessage(kafkaMsg)
		return
	}

	err := c.invoke(ctx, handler, msg)
	if err == nil {
		c.metrics.IncProcessed()
		logger.Debug("Message processed successfully")

		if msgID := msg.Header.MessageID(); msgID != "" {
			if err := c.dedupeStore.Add(msgID); err != nil {
				logger.Warn("Failed to record message id", zap.Error(err))
			}
		}

		c.commitMessage(kafkaMsg)
		return
	}

	c.metrics.IncFailed()
	logger.Error("Message processing failed", zap.Error(err))

	var handoffErr error
	if !messaging.IsPermanent(err) && int(msg.Header.DeliveryCount()) <= c.retryMax {
		handoffErr = c.sendToRetry(ctx, msg, err)
	} else {
		handoffErr = c.sendToDLQ(ctx, msg, err)
	}
	// left uncommitted, the group reads it again after a restart or rebalance
	if handoffErr != nil {
		return
	}
	c.commitMessage(kafkaMsg)
}

// invoke runs the handler under the handler timeout and turns a panic into
// a permanent error
func (c *Consumer) invoke(ctx context.Context, handler MessageHandler, msg *models.Message) (err error) {
	if c.handlerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.handlerTimeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Panic in handler",
				zap.Any("panic", r),
				zap.String("stack", string(debug.Stack())),
			)
			err = &messaging.PermanentError{Err: fmt.Errorf("handler panicked: %v", r)}
		}
	}()
	return handler(ctx, msg)
}

// commitMessage commits the message offset
func (c *Consumer) commitMessage(msg kafka.Message) {
	if err := c.reader.CommitMessages(context.Background(), msg); err != nil {
		c.logger.Error("Failed to commit message", zap.Error(err))
	}
}

// sendToRetry republishes the message to the retry topic matching its
// delivery count
func (c *Consumer) sendToRetry(ctx context.Context, msg *models.Message, failureErr error) error {
	retryTopic := fmt.Sprintf("%s-%d", c.retryTopicPrefix, msg.Header.DeliveryCount())

	out := republish(msg, retryTopic)
	out.SetProperty(models.PropertyFailureReason, failureErr.Error())

	if err := c.producer.Publish(ctx, out); err != nil {
		c.logger.Error("Failed to send message to retry topic",
			zap.String("topic", retryTopic),
			zap.Int32("delivery_count", msg.Header.DeliveryCount()),
			zap.Error(err),
		)
		return err
	}
	c.metrics.IncRetried()
	c.logger.Info("Message sent to retry topic",
		zap.String("topic", retryTopic),
		zap.Int32("delivery_count", msg.Header.DeliveryCount()),
	)
	return nil
}

// sendToDLQ sends message to dead letter queue
func (c *Consumer) sendToDLQ(ctx context.Context, msg *models.Message, failureErr error) error {
	out := republish(msg, c.dlqTopic)
	out.SetProperty(models.PropertyFailureReason, failureErr.Error())
	out.SetProperty(models.PropertyProcessedAt, time.Now().Format(time.RFC3339))

	if err := c.producer.Publish(ctx, out); err != nil {
		c.logger.Error("Failed to send message to DLQ",
			zap.String("topic", c.dlqTopic),
			zap.Error(err),
		)
		return err
	}
	c.metrics.IncSentToDLQ()
	c.logger.Info("Message sent to DLQ", zap.String("topic", c.dlqTopic))
	return nil
}

// republish copies msg for another destination, keeping its identity and
// born fields and recording where it came from.
func republish(msg *models.Message, topic string) *models.Message {
	out := &models.Message{
		Key:        msg.Key,
		Value:      msg.Value,
		Header:     msg.Header.Clone(),
		Properties: make(map[string]string, len(msg.Properties)+3),
		Timestamp:  msg.Timestamp,
	}
	for k, v := range msg.Properties {
		out.Properties[k] = v
	}
	if _, ok := out.Properties[models.PropertyOriginalTopic]; !ok {
		out.SetProperty(models.PropertyOriginalTopic, msg.Header.Destination())
	}
	out.Header.SetDestination(topic)
	return out
}

// toInternalMessage converts a Kafka record to the internal format. The
// destination is the topic the record was read from, the delivery count is
// incremented and the body is decompressed. On error the returned message
// still carries the raw body and everything that could be decoded.
func (c *Consumer) toInternalMessage(kafkaMsg kafka.Message) (*models.Message, error) {
	values := make(map[string]string, len(kafkaMsg.Headers))
	for _, h := range kafkaMsg.Headers {
		values[h.Key] = string(h.Value)
	}

	msg := &models.Message{
		Key:       string(kafkaMsg.Key),
		Value:     kafkaMsg.Value,
		Timestamp: kafkaMsg.Time,
	}
	for k, v := range values {
		if !models.IsHeaderKey(k) {
			msg.SetProperty(k, v)
		}
	}

	header, err := models.DecodeHeader(values)
	if err != nil {
		msg.Header.SetDestination(kafkaMsg.Topic).IncDeliveryCount()
		return msg, err
	}
	msg.Header = header
	msg.Header.SetDestination(kafkaMsg.Topic).IncDeliveryCount()

	if err := compress.DecompressMessage(msg); err != nil {
		return msg, err
	}
	return msg, nil
}

// peekPriority reads the priority header without decoding the whole record
func peekPriority(msg kafka.Message) int16 {
	for _, h := range msg.Headers {
		if h.Key != models.HeaderPriority {
			continue
		}
		n, err := strconv.ParseInt(string(h.Value), 10, 16)
		if err != nil || int16(n) < models.MinPriority || int16(n) > models.MaxPriority {
			return models.DefaultPriority
		}
		return int16(n)
	}
	return models.DefaultPriority
}

// Close gracefully shuts down the consumer
func (c *Consumer) Close() error {
	c.logger.Info("Closing consumer")
	if closer, ok := c.dedupeStore.(interface{ Close() }); ok {
		closer.Close()
	}
	if err := c.reader.Close(); err != nil {
		return fmt.Errorf("failed to close consumer: %w", err)
	}
	return nil
}
