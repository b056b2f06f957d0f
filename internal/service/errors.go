package service

import "errors"

var (
	ErrNilMessage = errors.New("message is nil")
	// ErrInvalidPayload marks bodies that will never parse, however often
	// they are redelivered.
	ErrInvalidPayload = errors.New("message body is not a JSON object")
)
