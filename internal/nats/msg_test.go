package nats

import (
	"testing"

	"go-oms/pkg/compress"
	"go-oms/pkg/models"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToMsg(t *testing.T) {
	msg := models.NewMessage("orders.created", []byte(`{}`))
	msg.Header.SetMessageID("msg-1").SetPriority(3).SetBornHost("svc-a")
	msg.SetProperty("trace-id", "abc")

	out := ToMsg(msg)

	assert.Equal(t, "orders.created", out.Subject)
	assert.Equal(t, []byte(`{}`), out.Data)
	assert.Equal(t, "msg-1", out.Header.Get(models.HeaderMessageID))
	assert.Equal(t, "3", out.Header.Get(models.HeaderPriority))
	assert.Equal(t, "svc-a", out.Header.Get(models.HeaderBornHost))
	assert.Equal(t, "abc", out.Header.Get("trace-id"))
}

func TestFromMsg_RoundTrip(t *testing.T) {
	body := []byte(`{"order_id":"ORD-1"}`)
	compressed, err := compress.Compress(models.CompressionSnappy, body)
	require.NoError(t, err)

	msg := models.NewMessage("orders.created", compressed)
	msg.Header.SetMessageID("msg-1").
		SetBornTimestamp(1730975445123).
		SetPriority(1).
		SetDurability(models.DurabilityNonPersistent).
		SetCompression(models.CompressionSnappy)
	msg.SetProperty("trace-id", "abc")

	got, err := FromMsg(ToMsg(msg))
	require.NoError(t, err)

	assert.Equal(t, "orders.created", got.Header.Destination())
	assert.Equal(t, "msg-1", got.Header.MessageID())
	assert.Equal(t, int64(1730975445123), got.Header.BornTimestamp())
	assert.Equal(t, int16(1), got.Header.Priority())
	assert.Equal(t, models.DurabilityNonPersistent, got.Header.Durability())
	assert.Equal(t, int32(1), got.Header.DeliveryCount())
	assert.Equal(t, "abc", got.Property("trace-id"))
	assert.Equal(t, body, got.Value)
}

func TestFromMsg_JetStreamDeliveryCount(t *testing.T) {
	m := nats.NewMsg("orders.created")
	m.Header.Set(models.HeaderMessageID, "msg-1")
	m.Reply = "$JS.ACK.OMS.processor.3.10.20.1730975445123000000.0"
	m.Sub = &nats.Subscription{}

	got, err := FromMsg(m)
	require.NoError(t, err)
	assert.Equal(t, int32(3), got.Header.DeliveryCount())
}

func TestFromMsg_Malformed(t *testing.T) {
	m := nats.NewMsg("orders")
	m.Header.Set(models.HeaderDeliveryCount, "many")
	m.Data = []byte("raw")

	got, err := FromMsg(m)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrMalformedHeader)
	assert.Equal(t, "orders", got.Header.Destination())
	assert.Equal(t, int32(1), got.Header.DeliveryCount())
	assert.Equal(t, []byte("raw"), got.Value)
}
