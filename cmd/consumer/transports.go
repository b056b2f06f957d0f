package main

import (
	"context"
	"time"

	"go-oms/internal/config"
	"go-oms/internal/kafka"
	"go-oms/internal/nats"
	"go-oms/internal/observability"
	"go-oms/internal/rabbitmq"

	"go.uber.org/zap"
)

func runKafka(ctx context.Context, cfg *config.Config, metrics observability.MetricsCollector, logger *zap.Logger, handler handlerFunc) error {
	retry := kafka.DefaultRetryPolicy()
	retry.MaxRetries = cfg.Producer.Retries
	producerCfg := kafka.ProducerConfig{
		Brokers:       cfg.Kafka.Brokers,
		TransientAcks: cfg.Producer.TransientAcks,
		Idempotent:    cfg.Producer.Idempotent,
		Retry:         retry,
		BornHost:      cfg.Header.BornHost,
		Metrics:       metrics,
		Logger:        logger,
	}
	consumerCfg := kafka.ConsumerConfig{
		Brokers:          cfg.Kafka.Brokers,
		Topic:            cfg.Consumer.Topic,
		GroupID:          cfg.Consumer.GroupID,
		Workers:          cfg.Consumer.Workers,
		RetryMax:         cfg.Consumer.RetryMax,
		FetchMinBytes:    cfg.Consumer.FetchMinBytes,
		FetchMaxBytes:    cfg.Consumer.FetchMaxBytes,
		RetryTopicPrefix: cfg.Consumer.RetryTopicPrefix,
		DLQTopic:         cfg.Consumer.DLQTopic,
		HandlerTimeout:   cfg.Consumer.HandlerTimeout,
		Metrics:          metrics,
		Logger:           logger,
	}
	if err := producerCfg.Validate(); err != nil {
		return err
	}
	if err := consumerCfg.Validate(); err != nil {
		return err
	}

	// retry and DLQ republishing
	producer := kafka.NewProducer(producerCfg)
	defer producer.Close()

	consumerCfg.DedupeStore = kafka.NewInMemoryDedupeStore(cfg.Consumer.DedupeTTL)
	consumer := kafka.NewConsumer(consumerCfg, producer)
	defer consumer.Close()

	health := kafka.NewHealthClient(cfg.Kafka.Brokers, 5)
	if err := health.HealthCheck(ctx); err != nil {
		logger.Warn("Kafka not reachable yet", zap.Error(err))
	}
	go health.HealthCheckLoop(ctx, 30*time.Second, nil)

	return consumer.Start(ctx, kafka.MessageHandler(handler))
}

func runRabbitMQ(ctx context.Context, cfg *config.Config, metrics observability.MetricsCollector, logger *zap.Logger, handler handlerFunc) error {
	var bindings []string
	if cfg.Consumer.Topic != "" {
		bindings = []string{cfg.Consumer.Topic}
	}

	sub, err := rabbitmq.NewSubscriber(rabbitmq.SubscriberConfig{
		URL:           cfg.RabbitMQ.URL,
		Exchange:      cfg.RabbitMQ.Exchange,
		Bindings:      bindings,
		ConsumerTag:   cfg.Consumer.GroupID,
		PrefetchCount: cfg.RabbitMQ.PrefetchCount,
		Metrics:       metrics,
		Logger:        logger,
	})
	if err != nil {
		return err
	}
	defer sub.Close()

	return sub.Consume(ctx, cfg.RabbitMQ.Queue, rabbitmq.Handler(handler))
}

func runNATS(ctx context.Context, cfg *config.Config, metrics observability.MetricsCollector, logger *zap.Logger, handler handlerFunc) error {
	client, err := nats.NewClient(nats.ClientConfig{
		URL:       cfg.NATS.URL,
		Name:      "oms-consumer",
		JetStream: cfg.NATS.JetStream,
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	defer client.Close()

	sub := nats.NewSubscriber(client, nats.SubscriberConfig{Metrics: metrics, Logger: logger})
	if _, err := sub.Subscribe(ctx, cfg.Consumer.Topic, cfg.Consumer.GroupID, nats.Handler(handler)); err != nil {
		return err
	}

	<-ctx.Done()
	logger.Info("Consumer stopping")
	return nil
}
