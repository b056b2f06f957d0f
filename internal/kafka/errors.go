package kafka

import "errors"

var (
	ErrNilMessage       = errors.New("message is nil")
	ErrEmptyDestination = errors.New("message destination is empty")
	ErrNoBrokers        = errors.New("brokers cannot be empty")
	ErrHandlerNotSet    = errors.New("handler is not set")
)
