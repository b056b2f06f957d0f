package kafka

import "errors"

func (c *ProducerConfig) Validate() error {
	if len(c.Brokers) == 0 {
		return ErrNoBrokers
	}
	// persistent messages always wait for all replicas
	if c.TransientAcks < 0 || c.TransientAcks > 1 {
		return errors.New("transientAcks must be 0 or 1")
	}
	if c.Retries < 0 {
		return errors.New("retries cannot be negative")
	}
	return c.Retry.Validate()
}

func (c *ConsumerConfig) Validate() error {
	if len(c.Brokers) == 0 {
		return ErrNoBrokers
	}
	if c.Topic == "" {
		return errors.New("topic cannot be empty")
	}
	if c.GroupID == "" {
		return errors.New("groupID cannot be empty")
	}
	if c.RetryMax < 0 {
		return errors.New("retryMax cannot be negative")
	}
	if c.RetryMax > 0 && c.RetryTopicPrefix == "" {
		return errors.New("retryTopicPrefix cannot be empty when retries are enabled")
	}
	if c.DLQTopic == "" {
		return errors.New("dlqTopic cannot be empty")
	}
	if c.HandlerTimeout < 0 {
		return errors.New("handlerTimeout cannot be negative")
	}
	return nil
}

func (p RetryPolicy) Validate() error {
	if p.MaxRetries < 0 {
		return errors.New("maxRetries cannot be negative")
	}
	if p.InitialBackoff < 0 || p.MaxBackoff < 0 {
		return errors.New("backoff cannot be negative")
	}
	if p.BackoffFactor != 0 && p.BackoffFactor < 1 {
		return errors.New("backoffFactor must be at least 1")
	}
	return nil
}
