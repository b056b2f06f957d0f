package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go-oms/internal/observability"

	kafka "github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// HealthClient watches broker connectivity and reconnects with backoff
type HealthClient struct {
	brokers []string
	logger  *logrus.Logger
	retry   RetryPolicy
	check   func(ctx context.Context) error
}

func NewHealthClient(brokers []string, maxRetries int) *HealthClient {
	c := &HealthClient{
		brokers: brokers,
		logger:  observability.GetLogger(),
		retry: RetryPolicy{
			MaxRetries:     maxRetries,
			InitialBackoff: 1 * time.Second,
			MaxBackoff:     30 * time.Second,
			BackoffFactor:  2,
			Jitter:         true,
		},
	}
	c.check = c.dialBrokers
	return c
}

// HealthCheck succeeds as soon as one broker answers a metadata request
func (c *HealthClient) HealthCheck(ctx context.Context) error {
	return c.check(ctx)
}

func (c *HealthClient) dialBrokers(ctx context.Context) error {
	if len(c.brokers) == 0 {
		return ErrNoBrokers
	}

	var errs []error
	for _, broker := range c.brokers {
		if err := pingBroker(ctx, broker); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", broker, err))
			continue
		}
		return nil
	}
	return fmt.Errorf("no broker reachable: %w", errors.Join(errs...))
}

func pingBroker(ctx context.Context, broker string) error {
	conn, err := kafka.DialContext(ctx, "tcp", broker)
	if err != nil {
		return fmt.Errorf("failed to connect to broker: %w", err)
	}
	defer conn.Close()

	if _, err := conn.Brokers(); err != nil {
		return fmt.Errorf("failed to read metadata: %w", err)
	}
	return nil
}

// HealthCheckLoop runs health checks periodically with reconnection logic
func (c *HealthClient) HealthCheckLoop(ctx context.Context, interval time.Duration, onReconnect func() error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Health check loop stopped")
			return
		case <-ticker.C:
			if err := c.HealthCheck(ctx); err != nil {
				c.logger.WithError(err).Warn("Health check failed, attempting reconnection")
				if err := c.reconnectWithBackoff(ctx, onReconnect); err != nil {
					c.logger.WithError(err).Error("Reconnection failed")
				}
			}
		}
	}
}

// reconnectWithBackoff implements exponential backoff reconnection strategy
func (c *HealthClient) reconnectWithBackoff(ctx context.Context, onReconnect func() error) error {
	for attempt := 0; attempt < c.retry.MaxRetries; attempt++ {
		backoff := c.retry.Backoff(attempt)

		c.logger.WithFields(logrus.Fields{
			"attempt": attempt + 1,
			"backoff": backoff,
		}).Info("Attempting reconnection")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		if err := c.HealthCheck(ctx); err != nil {
			c.logger.WithError(err).Warn("Reconnection attempt failed")
			continue
		}

		if onReconnect != nil {
			if err := onReconnect(); err != nil {
				c.logger.WithError(err).Warn("Reconnect callback failed")
				continue
			}
		}

		c.logger.Info("Reconnection successful")
		return nil
	}

	return fmt.Errorf("failed to reconnect after %d attempts", c.retry.MaxRetries)
}

func (c *HealthClient) Brokers() []string {
	return c.brokers
}
