package kafka

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go-oms/internal/messaging"
	"go-oms/internal/observability"
	"go-oms/pkg/compress"
	"go-oms/pkg/models"

	kafka "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConsumer(reader *MockReader, dedupe DedupeStore) (*Consumer, *MockProducer, *observability.InMemoryMetrics) {
	metrics := observability.NewInMemoryMetrics()
	producer := NewMockProducer()
	c := newConsumer(ConsumerConfig{
		Topic:            "orders",
		GroupID:          "test-group",
		Workers:          2,
		RetryMax:         3,
		RetryTopicPrefix: "orders-retry",
		DLQTopic:         "orders-dlq",
		Metrics:          metrics,
		DedupeStore:      dedupe,
	}, producer, reader)
	return c, producer, metrics
}

// record builds a Kafka record the way Producer.Publish writes it.
func record(topic string, header models.Header, body []byte, props map[string]string) kafka.Message {
	msg := &models.Message{Value: body, Header: header, Properties: props}
	out := toKafkaMessage(msg, body)
	out.Topic = topic
	return out
}

func TestConsumer_ProcessMessageSuccess(t *testing.T) {
	reader := NewMockReader()
	dedupe := NewMockDedupeStore()
	consumer, producer, metrics := newTestConsumer(reader, dedupe)

	header := models.NewHeader()
	header.SetMessageID("msg-1").SetBornHost("svc-a").SetPriority(8)
	kafkaMsg := record("orders", *header, []byte(`{"order_id":"ORD-1"}`), map[string]string{"trace-id": "abc"})

	var got *models.Message
	handler := func(ctx context.Context, msg *models.Message) error {
		got = msg
		return nil
	}

	consumer.processMessage(context.Background(), kafkaMsg, handler, 0)

	require.NotNil(t, got)
	assert.Equal(t, "orders", got.Header.Destination())
	assert.Equal(t, "msg-1", got.Header.MessageID())
	assert.Equal(t, "svc-a", got.Header.BornHost())
	assert.Equal(t, int16(8), got.Header.Priority())
	assert.Equal(t, int32(1), got.Header.DeliveryCount())
	assert.Equal(t, "abc", got.Property("trace-id"))

	assert.Equal(t, int64(1), metrics.GetProcessed())
	assert.Equal(t, int32(1), metrics.GetMaxDeliveryCount())
	assert.True(t, dedupe.Exists("msg-1"))
	assert.Len(t, reader.GetCommitted(), 1)
	assert.Empty(t, producer.GetPublishedMessages())
}

func TestConsumer_ProcessMessageDecompresses(t *testing.T) {
	consumer, _, _ := newTestConsumer(NewMockReader(), NewMockDedupeStore())

	body := []byte(`{"order_id":"ORD-2"}`)
	compressed, err := compress.Compress(models.CompressionSnappy, body)
	require.NoError(t, err)

	header := models.NewHeader()
	header.SetMessageID("msg-2").SetCompression(models.CompressionSnappy)

	var got []byte
	consumer.processMessage(context.Background(), record("orders", *header, compressed, nil),
		func(ctx context.Context, msg *models.Message) error {
			got = msg.Value
			return nil
		}, 0)

	assert.Equal(t, body, got)
}

func TestConsumer_ProcessMessageFailure(t *testing.T) {
	tests := []struct {
		name          string
		deliveryCount int32
		handlerErr    error
		wantTopic     string
		wantRetried   int64
		wantDLQ       int64
	}{
		{
			name:        "first delivery goes to first retry topic",
			handlerErr:  errors.New("processing failed"),
			wantTopic:   "orders-retry-1",
			wantRetried: 1,
		},
		{
			name:          "redelivery goes to next retry topic",
			deliveryCount: 1,
			handlerErr:    errors.New("processing failed"),
			wantTopic:     "orders-retry-2",
			wantRetried:   1,
		},
		{
			name:          "retries exhausted",
			deliveryCount: 3,
			handlerErr:    errors.New("processing failed"),
			wantTopic:     "orders-dlq",
			wantDLQ:       1,
		},
		{
			name:       "permanent error skips retries",
			handlerErr: &messaging.PermanentError{Err: errors.New("invalid payload")},
			wantTopic:  "orders-dlq",
			wantDLQ:    1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := NewMockReader()
			consumer, producer, metrics := newTestConsumer(reader, NewMockDedupeStore())

			header := models.NewHeader()
			header.SetMessageID("msg-fail").SetBornTimestamp(1000).SetBornHost("svc-a").SetDeliveryCount(tt.deliveryCount)
			kafkaMsg := record("orders", *header, []byte(`{}`), nil)

			consumer.processMessage(context.Background(), kafkaMsg, func(ctx context.Context, msg *models.Message) error {
				return tt.handlerErr
			}, 0)

			published := producer.GetPublishedMessages()
			require.Len(t, published, 1)
			out := published[0]
			assert.Equal(t, tt.wantTopic, out.Header.Destination())
			assert.Equal(t, "msg-fail", out.Header.MessageID())
			assert.Equal(t, int64(1000), out.Header.BornTimestamp())
			assert.Equal(t, tt.deliveryCount+1, out.Header.DeliveryCount())
			assert.Equal(t, "orders", out.Property(models.PropertyOriginalTopic))
			assert.Contains(t, out.Property(models.PropertyFailureReason), tt.handlerErr.Error())

			assert.Equal(t, tt.wantRetried, metrics.GetRetried())
			assert.Equal(t, tt.wantDLQ, metrics.GetSentToDLQ())
			assert.Equal(t, int64(1), metrics.GetFailed())
			assert.Len(t, reader.GetCommitted(), 1)
		})
	}
}

func TestConsumer_HandlerPanicGoesToDLQ(t *testing.T) {
	consumer, producer, metrics := newTestConsumer(NewMockReader(), NewMockDedupeStore())

	header := models.NewHeader()
	header.SetMessageID("msg-panic")

	consumer.processMessage(context.Background(), record("orders", *header, []byte(`{}`), nil),
		func(ctx context.Context, msg *models.Message) error {
			panic("boom")
		}, 0)

	published := producer.GetPublishedMessages()
	require.Len(t, published, 1)
	assert.Equal(t, "orders-dlq", published[0].Header.Destination())
	assert.Contains(t, published[0].Property(models.PropertyFailureReason), "handler panicked: boom")
	assert.Equal(t, int64(1), metrics.GetSentToDLQ())
}

func TestConsumer_DuplicateIsSkipped(t *testing.T) {
	reader := NewMockReader()
	dedupe := NewMockDedupeStore()
	require.NoError(t, dedupe.Add("msg-dup"))
	consumer, _, metrics := newTestConsumer(reader, dedupe)

	header := models.NewHeader()
	header.SetMessageID("msg-dup")

	called := false
	consumer.processMessage(context.Background(), record("orders", *header, []byte(`{}`), nil),
		func(ctx context.Context, msg *models.Message) error {
			called = true
			return nil
		}, 0)

	assert.False(t, called)
	assert.Equal(t, int64(1), metrics.GetDuplicates())
	assert.Len(t, reader.GetCommitted(), 1)
}

func TestConsumer_UndecodableMessageGoesToDLQ(t *testing.T) {
	tests := []struct {
		name            string
		msg             kafka.Message
		wantCompression string
	}{
		{
			name: "malformed header",
			msg: kafka.Message{
				Topic:   "orders",
				Value:   []byte("raw"),
				Headers: []kafka.Header{{Key: models.HeaderPriority, Value: []byte("high")}},
			},
			wantCompression: "none",
		},
		{
			name: "corrupt body",
			msg: kafka.Message{
				Topic:   "orders",
				Value:   []byte("not gzip"),
				Headers: []kafka.Header{{Key: models.HeaderCompression, Value: []byte("1")}},
			},
			wantCompression: "gzip",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := NewMockReader()
			consumer, producer, metrics := newTestConsumer(reader, NewMockDedupeStore())

			called := false
			consumer.processMessage(context.Background(), tt.msg, func(ctx context.Context, msg *models.Message) error {
				called = true
				return nil
			}, 0)

			assert.False(t, called)
			published := producer.GetPublishedMessages()
			require.Len(t, published, 1)
			out := published[0]
			assert.Equal(t, "orders-dlq", out.Header.Destination())
			assert.Equal(t, models.CompressionNone, out.Header.Compression())
			assert.Equal(t, tt.msg.Value, out.Value)
			assert.Equal(t, tt.wantCompression, out.Property(models.PropertyOriginalCompression))
			assert.Equal(t, int64(1), metrics.GetSentToDLQ())
			assert.Len(t, reader.GetCommitted(), 1)
		})
	}
}

func TestPeekPriority(t *testing.T) {
	tests := []struct {
		name    string
		headers []kafka.Header
		want    int16
	}{
		{name: "missing", want: models.DefaultPriority},
		{name: "valid", headers: []kafka.Header{{Key: models.HeaderPriority, Value: []byte("9")}}, want: 9},
		{name: "out of range", headers: []kafka.Header{{Key: models.HeaderPriority, Value: []byte("42")}}, want: models.DefaultPriority},
		{name: "garbage", headers: []kafka.Header{{Key: models.HeaderPriority, Value: []byte("urgent")}}, want: models.DefaultPriority},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, peekPriority(kafka.Message{Headers: tt.headers}))
		})
	}
}

func TestConsumer_StartProcessesBothLanes(t *testing.T) {
	urgent := models.NewHeader()
	urgent.SetMessageID("urgent").SetPriority(9)
	routine := models.NewHeader()
	routine.SetMessageID("routine").SetPriority(2)

	reader := NewMockReader(
		record("orders", *routine, []byte(`{}`), nil),
		record("orders", *urgent, []byte(`{}`), nil),
	)
	consumer, _, metrics := newTestConsumer(reader, NewMockDedupeStore())

	var (
		mu   sync.Mutex
		seen []string
	)
	var handled atomic.Int32
	handler := func(ctx context.Context, msg *models.Message) error {
		mu.Lock()
		seen = append(seen, msg.Header.MessageID())
		mu.Unlock()
		handled.Add(1)
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- consumer.Start(ctx, handler) }()

	assert.Eventually(t, func() bool { return handled.Load() == 2 }, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop")
	}

	mu.Lock()
	assert.ElementsMatch(t, []string{"urgent", "routine"}, seen)
	mu.Unlock()
	assert.Equal(t, int64(2), metrics.GetReceived())
	assert.Equal(t, int64(1), metrics.GetExpedited())
	assert.Len(t, reader.GetCommitted(), 2)
}

func TestConsumer_StartWithoutHandler(t *testing.T) {
	consumer, _, _ := newTestConsumer(NewMockReader(), NewMockDedupeStore())
	assert.ErrorIs(t, consumer.Start(context.Background(), nil), ErrHandlerNotSet)
}

func TestConsumer_CloseStopsDedupeStore(t *testing.T) {
	reader := NewMockReader()
	store := NewInMemoryDedupeStore(time.Hour)
	consumer, _, _ := newTestConsumer(reader, store)

	require.NoError(t, consumer.Close())
	assert.True(t, reader.Closed)

	select {
	case <-store.stop:
	default:
		t.Fatal("dedupe cleanup still running")
	}
}

func TestInMemoryDedupeStore(t *testing.T) {
	store := NewInMemoryDedupeStore(time.Hour)
	defer store.Close()

	assert.False(t, store.Exists("msg-1"))
	require.NoError(t, store.Add("msg-1"))
	assert.True(t, store.Exists("msg-1"))
	assert.Equal(t, 1, store.Len())

	store.evictExpired(time.Now().Add(2 * time.Hour))
	assert.False(t, store.Exists("msg-1"))
	assert.Equal(t, 0, store.Len())
}

func TestInMemoryDedupeStore_Expiry(t *testing.T) {
	store := NewInMemoryDedupeStore(-time.Second)
	defer store.Close()

	require.NoError(t, store.Add("msg-1"))
	assert.False(t, store.Exists("msg-1"))
	assert.Equal(t, 1, store.Len())
}

func TestInMemoryDedupeStore_CloseTwice(t *testing.T) {
	store := NewInMemoryDedupeStore(time.Hour)
	store.Close()
	assert.NotPanics(t, store.Close)
}

func TestConsumer_HandlerTimeout(t *testing.T) {
	metrics := observability.NewInMemoryMetrics()
	consumer := newConsumer(ConsumerConfig{
		RetryMax:         3,
		RetryTopicPrefix: "orders-retry",
		DLQTopic:         "orders-dlq",
		HandlerTimeout:   20 * time.Millisecond,
		Metrics:          metrics,
		DedupeStore:      NewMockDedupeStore(),
	}, NewMockProducer(), NewMockReader())

	header := models.NewHeader()
	var hadDeadline bool
	consumer.processMessage(context.Background(), record("orders", *header, []byte(`{}`), nil),
		func(ctx context.Context, msg *models.Message) error {
			_, hadDeadline = ctx.Deadline()
			<-ctx.Done()
			return ctx.Err()
		}, 0)

	assert.True(t, hadDeadline)
	assert.Equal(t, int64(1), metrics.GetRetried())
}

func TestConsumer_FailedHandoffLeavesOffsetUncommitted(t *testing.T) {
	tests := []struct {
		name          string
		msg           func() kafka.Message
		deliveryCount int32
		handlerErr    error
	}{
		{
			name: "retry topic unavailable",
			msg: func() kafka.Message {
				h := models.NewHeader()
				h.SetMessageID("msg-retry")
				return record("orders", *h, []byte(`{}`), nil)
			},
			handlerErr: errors.New("processing failed"),
		},
		{
			name: "dlq unavailable",
			msg: func() kafka.Message {
				h := models.NewHeader()
				h.SetMessageID("msg-dlq")
				return record("orders", *h, []byte(`{}`), nil)
			},
			handlerErr: &messaging.PermanentError{Err: errors.New("invalid payload")},
		},
		{
			name: "undecodable and dlq unavailable",
			msg: func() kafka.Message {
				return kafka.Message{
					Topic:   "orders",
					Value:   []byte("raw"),
					Headers: []kafka.Header{{Key: models.HeaderPriority, Value: []byte("high")}},
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := NewMockReader()
			consumer, producer, metrics := newTestConsumer(reader, NewMockDedupeStore())
			producer.PublishFunc = func(ctx context.Context, msg *models.Message) error {
				return errors.New("broker down")
			}

			consumer.processMessage(context.Background(), tt.msg(), func(ctx context.Context, msg *models.Message) error {
				return tt.handlerErr
			}, 0)

			assert.Empty(t, reader.GetCommitted())
			assert.Equal(t, int64(0), metrics.GetRetried())
			assert.Equal(t, int64(0), metrics.GetSentToDLQ())
			assert.Equal(t, int64(1), metrics.GetFailed())
		})
	}
}

func TestConsumer_CancelledHandoffLeavesOffsetUncommitted(t *testing.T) {
	reader := NewMockReader()
	consumer, producer, _ := newTestConsumer(reader, NewMockDedupeStore())
	producer.PublishFunc = func(ctx context.Context, msg *models.Message) error {
		return ctx.Err()
	}

	ctx, cancel := context.WithCancel(context.Background())
	header := models.NewHeader()
	header.SetMessageID("msg-shutdown")

	consumer.processMessage(ctx, record("orders", *header, []byte(`{}`), nil),
		func(ctx context.Context, msg *models.Message) error {
			cancel()
			return errors.New("interrupted")
		}, 0)

	assert.Empty(t, reader.GetCommitted())
}

func TestConsumer_StartStopsWhenReaderClosed(t *testing.T) {
	reader := NewMockReader()
	consumer, _, _ := newTestConsumer(reader, NewMockDedupeStore())

	done := make(chan error, 1)
	go func() {
		done <- consumer.Start(context.Background(), func(ctx context.Context, msg *models.Message) error {
			return nil
		})
	}()

	require.NoError(t, consumer.Close())

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer kept fetching from a closed reader")
	}
}
