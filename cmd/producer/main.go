package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go-oms/internal/config"
	"go-oms/internal/kafka"
	"go-oms/internal/nats"
	"go-oms/internal/observability"
	"go-oms/internal/rabbitmq"
	"go-oms/pkg/models"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const sampleOrder = `{
  "event_type": "order_created",
  "order_id": "ORD-2025-001234",
  "customer_id": "CUST-567890",
  "items": [
    {"product_id": "PROD-111", "name": "iPhone 15 Pro", "quantity": 1, "price": 42900.00},
    {"product_id": "PROD-222", "name": "AirPods Pro", "quantity": 1, "price": 8990.00}
  ],
  "total_amount": "51890.00",
  "currency": "THB",
  "payment_method": "credit_card",
  "status": "pending"
}`

// publisher is what every transport offers for sending
type publisher interface {
	Publish(ctx context.Context, msg *models.Message) error
	Close() error
}

var (
	transport     string
	destination   string
	key           string
	body          string
	messageID     string
	bornHost      string
	bornTimestamp int64
	priority      int16
	durability    string
	deliveryCount int32
	compression   string
	properties    map[string]string
	count         int
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "producer",
		Short: "Publish OMS messages",
		Long:  `Publishes messages carrying an OMS header to Kafka, RabbitMQ or NATS`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd)
		},
		SilenceUsage: true,
	}

	flags := cmd.Flags()
	flags.StringVarP(&transport, "transport", "t", "", "kafka, rabbitmq or nats (overrides OMS_TRANSPORT)")
	flags.StringVarP(&destination, "destination", "d", "", "topic, routing key or subject (defaults to KAFKA_PRODUCER_TOPIC)")
	flags.StringVarP(&key, "key", "k", "", "message key")
	flags.StringVarP(&body, "body", "b", sampleOrder, "message body")
	flags.StringVar(&messageID, "message-id", "", "message id (generated when empty)")
	flags.StringVar(&bornHost, "born-host", "", "born host (overrides OMS_BORN_HOST)")
	flags.Int64Var(&bornTimestamp, "born-timestamp", 0, "born timestamp in unix milliseconds (now when zero)")
	flags.Int16VarP(&priority, "priority", "p", models.DefaultPriority, "priority 1-10")
	flags.StringVar(&durability, "durability", "", "persistent or non-persistent")
	flags.Int32Var(&deliveryCount, "delivery-count", 0, "initial delivery count")
	flags.StringVarP(&compression, "compression", "z", "", "none, gzip, snappy, lz4 or zstd")
	flags.StringToStringVar(&properties, "property", nil, "application property key=value, repeatable")
	flags.IntVarP(&count, "count", "n", 1, "number of messages to send")
	return cmd
}

func run(cmd *cobra.Command) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	observability.InitLogger(cfg.Logging.Level)
	logger, err := observability.NewZapLogger(cfg.Logging.Level)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pub, err := newPublisher(cfg, logger)
	if err != nil {
		return err
	}
	defer pub.Close()

	for i := 0; i < count; i++ {
		msg, err := buildMessage(cmd, cfg)
		if err != nil {
			return err
		}
		if count > 1 {
			// each copy gets its own id
			msg.Header.SetMessageID("")
			if messageID != "" {
				msg.Header.SetMessageID(fmt.Sprintf("%s-%d", messageID, i+1))
			}
		}

		if err := pub.Publish(ctx, msg); err != nil {
			return fmt.Errorf("publish to %s: %w", msg.Header.Destination(), err)
		}
		observability.WithFields(observability.HeaderFields(&msg.Header)).
			WithField("transport", cfg.Transport).
			Info("Message published")
	}
	return nil
}

func loadConfig() (*config.Config, error) {
	if transport != "" {
		os.Setenv("OMS_TRANSPORT", transport)
	}
	return config.Load()
}

// buildMessage applies the flags, falling back to the configured header
// defaults for fields the user did not set.
func buildMessage(cmd *cobra.Command, cfg *config.Config) (*models.Message, error) {
	dest := destination
	if dest == "" {
		dest = cfg.Producer.Topic
	}

	msg := models.NewMessage(dest, []byte(body))
	msg.Key = key
	for k, v := range properties {
		msg.SetProperty(k, v)
	}

	flags := cmd.Flags()
	explicit := config.ExplicitFields{
		Priority:    flags.Changed("priority"),
		Durability:  flags.Changed("durability"),
		Compression: flags.Changed("compression"),
	}
	cfg.Header.Apply(msg, explicit)

	if explicit.Priority {
		if priority < models.MinPriority || priority > models.MaxPriority {
			return nil, fmt.Errorf("priority %d outside [%d, %d]", priority, models.MinPriority, models.MaxPriority)
		}
		msg.Header.SetPriority(priority)
	}
	if explicit.Durability {
		d, err := models.ParseDurability(durability)
		if err != nil {
			return nil, err
		}
		msg.Header.SetDurability(d)
	}
	if explicit.Compression {
		c, err := models.ParseCompression(compression)
		if err != nil {
			return nil, err
		}
		msg.Header.SetCompression(c)
	}

	msg.Header.
		SetMessageID(messageID).
		SetBornTimestamp(bornTimestamp).
		SetDeliveryCount(deliveryCount)
	if bornHost != "" {
		msg.Header.SetBornHost(bornHost)
	}
	return msg, nil
}

func newPublisher(cfg *config.Config, logger *zap.Logger) (publisher, error) {
	switch cfg.Transport {
	case "kafka":
		producerCfg := kafka.ProducerConfig{
			Brokers:       cfg.Kafka.Brokers,
			TransientAcks: cfg.Producer.TransientAcks,
			Idempotent:    cfg.Producer.Idempotent,
			// one writer attempt per publish attempt, retries are paced here
			Retry: kafka.RetryPolicy{
				MaxRetries:     cfg.Producer.Retries,
				InitialBackoff: 200 * time.Millisecond,
				MaxBackoff:     5 * time.Second,
				BackoffFactor:  2,
				Jitter:         true,
			},
			BornHost: cfg.Header.BornHost,
			Logger:   logger,
		}
		if err := producerCfg.Validate(); err != nil {
			return nil, err
		}
		return kafka.NewProducer(producerCfg), nil
	case "rabbitmq":
		return rabbitmq.NewPublisher(rabbitmq.PublisherConfig{
			URL:      cfg.RabbitMQ.URL,
			Exchange: cfg.RabbitMQ.Exchange,
			BornHost: cfg.Header.BornHost,
			Logger:   logger,
		})
	case "nats":
		client, err := nats.NewClient(nats.ClientConfig{
			URL:       cfg.NATS.URL,
			Name:      "oms-producer",
			JetStream: cfg.NATS.JetStream,
			Logger:    logger,
		})
		if err != nil {
			return nil, err
		}
		return &natsPublisher{
			Publisher: nats.NewPublisher(client, nats.PublisherConfig{BornHost: cfg.Header.BornHost, Logger: logger}),
			client:    client,
		}, nil
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}

// natsPublisher closes the connection along with the publisher
type natsPublisher struct {
	*nats.Publisher
	client *nats.Client
}

func (p *natsPublisher) Close() error {
	return p.client.Close()
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
