package service

import (
	"bytes"
	"context"
	"testing"

	"go-oms/internal/observability"
	"go-oms/pkg/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestMessageProcessor_Process(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr error
	}{
		{name: "json object", body: `{"order_id":"ORD-1","amount":42}`},
		{name: "empty object", body: `{}`},
		{name: "not json", body: `order ORD-1`, wantErr: ErrInvalidPayload},
		{name: "json array", body: `[1,2,3]`, wantErr: ErrInvalidPayload},
	}

	processor := NewMessageProcessor()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := models.NewMessage("orders", []byte(tt.body))
			err := processor.Process(context.Background(), msg)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestMessageProcessor_NilMessage(t *testing.T) {
	assert.ErrorIs(t, NewMessageProcessor().Process(context.Background(), nil), ErrNilMessage)
}

func TestMessageProcessor_LogsHeader(t *testing.T) {
	logger := observability.GetLogger()
	var buf bytes.Buffer
	out, level := logger.Out, logger.Level
	logger.SetOutput(&buf)
	logger.SetLevel(logrus.InfoLevel)
	defer func() {
		logger.SetOutput(out)
		logger.SetLevel(level)
	}()

	msg := models.NewMessage("orders", []byte(`{}`))
	msg.Header.SetMessageID("msg-7").SetPriority(8).SetDeliveryCount(2)

	assert.NoError(t, NewMessageProcessor().Process(context.Background(), msg))

	logged := buf.String()
	assert.Contains(t, logged, `"message_id":"msg-7"`)
	assert.Contains(t, logged, `"priority":8`)
	assert.Contains(t, logged, `"delivery_count":2`)
	assert.Contains(t, logged, `"destination":"orders"`)
}
