package models

import (
	"time"

	"github.com/google/uuid"
)

// Message represents a message in the system
type Message struct {
	Key        string            `json:"key"`
	Value      []byte            `json:"value"`
	Header     Header            `json:"header"`
	Properties map[string]string `json:"properties,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}

func NewMessage(destination string, value []byte) *Message {
	msg := &Message{Value: value}
	msg.Header.SetDestination(destination)
	return msg
}

// Stamp fills the producer-side header fields that are still unset. Fields
// that already carry a value are left alone so a republished message keeps
// its original identity.
func (m *Message) Stamp(now time.Time, bornHost string) {
	if m.Header.MessageID() == "" {
		m.Header.SetMessageID(uuid.NewString())
	}
	if m.Header.BornTimestamp() == 0 {
		m.Header.SetBornTimestamp(now.UnixMilli())
	}
	if m.Header.BornHost() == "" {
		m.Header.SetBornHost(bornHost)
	}
}

func (m *Message) Property(key string) string {
	return m.Properties[key]
}

func (m *Message) SetProperty(key, value string) {
	if m.Properties == nil {
		m.Properties = make(map[string]string)
	}
	m.Properties[key] = value
}
