package rabbitmq

import "errors"

var (
	ErrNilMessage       = errors.New("message is nil")
	ErrEmptyDestination = errors.New("message destination is empty")
	ErrEmptyURL         = errors.New("rabbitmq url is empty")
	ErrEmptyQueue       = errors.New("queue name is empty")
	ErrNilHandler       = errors.New("handler is nil")
	ErrPublishNacked    = errors.New("broker rejected the message")
	ErrDeliveriesClosed = errors.New("delivery channel closed")
)
