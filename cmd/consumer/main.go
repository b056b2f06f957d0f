package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go-oms/internal/config"
	"go-oms/internal/messaging"
	"go-oms/internal/observability"
	"go-oms/internal/service"
	"go-oms/pkg/models"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

var (
	transport   string
	topic       string
	group       string
	queue       string
	metricsAddr string
	quiet       bool
)

var rootCmd = &cobra.Command{
	Use:   "consumer",
	Short: "Consume OMS messages",
	Long:  `Consumes messages from Kafka, RabbitMQ or NATS and prints each OMS header as YAML`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run()
	},
	SilenceUsage: true,
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVarP(&transport, "transport", "t", "", "kafka, rabbitmq or nats (overrides OMS_TRANSPORT)")
	flags.StringVar(&topic, "topic", "", "topic or subject (overrides KAFKA_CONSUMER_TOPIC)")
	flags.StringVarP(&group, "group", "g", "", "consumer group or NATS queue group (overrides KAFKA_CONSUMER_GROUP_ID)")
	flags.StringVarP(&queue, "queue", "q", "", "RabbitMQ queue (overrides RABBITMQ_QUEUE)")
	flags.StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (overrides METRICS_ADDR)")
	flags.BoolVar(&quiet, "quiet", false, "do not print headers")
}

func run() error {
	if transport != "" {
		os.Setenv("OMS_TRANSPORT", transport)
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	applyFlags(cfg)

	observability.InitLogger(cfg.Logging.Level)
	logger, err := observability.NewZapLogger(cfg.Logging.Level)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := observability.MetricsCollector(observability.NewInMemoryMetrics())
	if cfg.Metrics.Addr != "" {
		prom := observability.NewPrometheusMetrics("oms")
		metrics = prom
		go serveMetrics(ctx, cfg.Metrics.Addr, prom.Handler(), logger)
	}

	var out io.Writer = os.Stdout
	if quiet {
		out = io.Discard
	}
	handler := newHandler(service.NewMessageProcessor(), out)

	observability.WithFields(logrus.Fields{
		"transport": cfg.Transport,
		"topic":     cfg.Consumer.Topic,
		"group":     cfg.Consumer.GroupID,
	}).Info("Starting consumer")

	switch cfg.Transport {
	case "kafka":
		return runKafka(ctx, cfg, metrics, logger, handler)
	case "rabbitmq":
		return runRabbitMQ(ctx, cfg, metrics, logger, handler)
	case "nats":
		return runNATS(ctx, cfg, metrics, logger, handler)
	default:
		return fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}

func applyFlags(cfg *config.Config) {
	if topic != "" {
		cfg.Consumer.Topic = topic
	}
	if group != "" {
		cfg.Consumer.GroupID = group
	}
	if queue != "" {
		cfg.RabbitMQ.Queue = queue
	}
	if metricsAddr != "" {
		cfg.Metrics.Addr = metricsAddr
	}
}

type handlerFunc func(ctx context.Context, msg *models.Message) error

// newHandler prints the header of every message before handing it to the
// processor. Payload errors are permanent on every transport.
func newHandler(processor *service.MessageProcessor, out io.Writer) handlerFunc {
	return func(ctx context.Context, msg *models.Message) error {
		if err := printHeader(out, msg); err != nil {
			return err
		}
		err := processor.Process(ctx, msg)
		// a body that does not parse now never will
		if errors.Is(err, service.ErrInvalidPayload) || errors.Is(err, service.ErrNilMessage) {
			return &messaging.PermanentError{Err: err}
		}
		return err
	}
}

func printHeader(out io.Writer, msg *models.Message) error {
	doc := struct {
		Header     models.Header     `yaml:"header"`
		Properties map[string]string `yaml:"properties,omitempty"`
	}{msg.Header, msg.Properties}

	b, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("render header: %w", err)
	}
	_, err = fmt.Fprintf(out, "---\n%s", b)
	return err
}

func serveMetrics(ctx context.Context, addr string, handler http.Handler, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("Serving metrics", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Metrics server failed", zap.Error(err))
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
