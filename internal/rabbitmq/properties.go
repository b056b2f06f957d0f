package rabbitmq

import (
	"go-oms/pkg/compress"
	"go-oms/pkg/models"

	amqp "github.com/rabbitmq/amqp091-go"
)

// deliveryCountHeader is set by quorum queues to the number of earlier
// failed deliveries.
const deliveryCountHeader = "x-delivery-count"

// MaxQueuePriority is the x-max-priority declared on consumed queues. OMS
// priorities 1..10 land on AMQP priorities 0..9.
const MaxQueuePriority = 9

// ToPublishing maps msg onto AMQP properties. The body is taken as is, so
// callers compress first. The full encoded header also travels in the
// Headers table.
func ToPublishing(msg *models.Message) amqp.Publishing {
	h := &msg.Header

	table := make(amqp.Table, 8+len(msg.Properties))
	for k, v := range msg.Properties {
		if !models.IsHeaderKey(k) {
			table[k] = v
		}
	}
	for k, v := range models.EncodeHeader(msg.Header) {
		table[k] = v
	}

	mode := amqp.Persistent
	if !h.IsPersistent() {
		mode = amqp.Transient
	}

	pub := amqp.Publishing{
		Headers:      table,
		ContentType:  "application/json",
		DeliveryMode: mode,
		Priority:     uint8(h.Priority() - 1),
		MessageId:    h.MessageID(),
		Timestamp:    h.BornTime(),
		AppId:        h.BornHost(),
		Body:         msg.Value,
	}
	if h.Compression() != models.CompressionNone {
		pub.ContentEncoding = h.Compression().String()
	}
	return pub
}

// FromDelivery rebuilds a message from an AMQP delivery. Header table entries
// win over native properties. The destination is the routing key and the
// delivery count grows by the number of deliveries the broker reports. On
// error the returned message still carries the raw body.
func FromDelivery(d amqp.Delivery) (*models.Message, error) {
	values := make(map[string]string, len(d.Headers))
	msg := &models.Message{
		Key:       d.MessageId,
		Value:     d.Body,
		Timestamp: d.Timestamp,
	}
	for k, v := range d.Headers {
		s, ok := v.(string)
		if !ok {
			continue
		}
		if models.IsHeaderKey(k) {
			values[k] = s
			continue
		}
		msg.SetProperty(k, s)
	}

	header, err := models.DecodeHeader(values)
	if err != nil {
		msg.Header.SetDestination(d.RoutingKey).SetDeliveryCount(deliveries(d))
		return msg, err
	}
	fillFromProperties(&header, values, d)
	msg.Header = header
	msg.Header.SetDestination(d.RoutingKey).
		SetDeliveryCount(header.DeliveryCount() + deliveries(d))

	if err := compress.DecompressMessage(msg); err != nil {
		return msg, err
	}
	return msg, nil
}

// fillFromProperties covers publishers that only set native AMQP properties.
func fillFromProperties(h *models.Header, values map[string]string, d amqp.Delivery) {
	if _, ok := values[models.HeaderMessageID]; !ok && d.MessageId != "" {
		h.SetMessageID(d.MessageId)
	}
	if _, ok := values[models.HeaderBornTimestamp]; !ok && !d.Timestamp.IsZero() {
		h.SetBornTimestamp(d.Timestamp.UnixMilli())
	}
	if _, ok := values[models.HeaderBornHost]; !ok && d.AppId != "" {
		h.SetBornHost(d.AppId)
	}
	if _, ok := values[models.HeaderPriority]; !ok && d.Priority > 0 {
		h.SetPriority(int16(d.Priority) + 1)
	}
	if _, ok := values[models.HeaderDurability]; !ok && d.DeliveryMode == amqp.Transient {
		h.SetDurability(models.DurabilityNonPersistent)
	}
	if _, ok := values[models.HeaderCompression]; !ok && d.ContentEncoding != "" {
		if c, err := models.ParseCompression(d.ContentEncoding); err == nil {
			h.SetCompression(c)
		}
	}
}

// deliveries is how many times the broker has handed this message out,
// counting the current delivery.
func deliveries(d amqp.Delivery) int32 {
	if n, ok := intHeader(d.Headers[deliveryCountHeader]); ok {
		return int32(n) + 1
	}
	if d.Redelivered {
		return 2
	}
	return 1
}

func intHeader(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int32:
		return int64(n), true
	case int:
		return int64(n), true
	case int16:
		return int64(n), true
	case int8:
		return int64(n), true
	case uint8:
		return int64(n), true
	default:
		return 0, false
	}
}
