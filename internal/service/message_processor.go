package service

import (
	"context"
	"encoding/json"
	"fmt"

	"go-oms/internal/observability"
	"go-oms/pkg/models"

	"github.com/sirupsen/logrus"
)

// MessageProcessor handles business logic for processing messages
type MessageProcessor struct {
	logger *logrus.Logger
}

func NewMessageProcessor() *MessageProcessor {
	return &MessageProcessor{
		logger: observability.GetLogger(),
	}
}

// Process logs the system header of msg and checks that the body is a JSON
// object. Any transport handler can delegate to it.
func (p *MessageProcessor) Process(ctx context.Context, msg *models.Message) error {
	if msg == nil {
		return ErrNilMessage
	}

	entry := p.logger.WithFields(observability.HeaderFields(&msg.Header)).WithField("key", msg.Key)
	entry.Info("Processing message")

	var data map[string]interface{}
	if err := json.Unmarshal(msg.Value, &data); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	entry.WithField("fields", len(data)).Debug("Message processed successfully")
	return nil
}
