package nats

import (
	"go-oms/pkg/compress"
	"go-oms/pkg/models"

	"github.com/nats-io/nats.go"
)

// ToMsg builds a NATS message for msg. The body is taken as is, so callers
// compress first. Properties and the encoded header share nats.Header.
func ToMsg(msg *models.Message) *nats.Msg {
	out := nats.NewMsg(msg.Header.Destination())
	for k, v := range msg.Properties {
		if !models.IsHeaderKey(k) {
			out.Header.Set(k, v)
		}
	}
	for k, v := range models.EncodeHeader(msg.Header) {
		out.Header.Set(k, v)
	}
	out.Data = msg.Value
	return out
}

// FromMsg rebuilds a message received on m.Subject. JetStream deliveries
// take their count from the stream metadata, core NATS deliveries count
// once. On error the returned message still carries the raw body.
func FromMsg(m *nats.Msg) (*models.Message, error) {
	values := make(map[string]string, len(m.Header))
	msg := &models.Message{Value: m.Data}
	for k := range m.Header {
		v := m.Header.Get(k)
		if models.IsHeaderKey(k) {
			values[k] = v
			continue
		}
		msg.SetProperty(k, v)
	}

	header, err := models.DecodeHeader(values)
	if err != nil {
		msg.Header.SetDestination(m.Subject).IncDeliveryCount()
		return msg, err
	}
	msg.Header = header
	msg.Header.SetDestination(m.Subject)

	if meta, err := m.Metadata(); err == nil {
		msg.Header.SetDeliveryCount(header.DeliveryCount() + int32(meta.NumDelivered))
		msg.Timestamp = meta.Timestamp
	} else {
		msg.Header.IncDeliveryCount()
	}

	if err := compress.DecompressMessage(msg); err != nil {
		return msg, err
	}
	return msg, nil
}
