package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Header keys used when the system header travels as string key/values.
const (
	HeaderDestination   = "oms-destination"
	HeaderMessageID     = "oms-message-id"
	HeaderBornTimestamp = "oms-born-timestamp"
	HeaderBornHost      = "oms-born-host"
	HeaderPriority      = "oms-priority"
	HeaderDurability    = "oms-durability"
	HeaderDeliveryCount = "oms-delivery-count"
	HeaderCompression   = "oms-compression"

	headerPrefix = "oms-"
)

// Property keys added by consumers on the failure path.
const (
	PropertyOriginalTopic       = "original-topic"
	PropertyOriginalCompression = "original-compression"
	PropertyFailureReason       = "failure-reason"
	PropertyProcessedAt         = "processed-at"
)

var ErrMalformedHeader = errors.New("malformed message header")

// IsHeaderKey reports whether key belongs to the system header rather than
// to application properties.
func IsHeaderKey(key string) bool {
	return strings.HasPrefix(key, headerPrefix)
}

// EncodeHeader flattens h into string key/values. Unset fields are omitted,
// priority is always present.
func EncodeHeader(h Header) map[string]string {
	out := map[string]string{
		HeaderPriority: strconv.FormatInt(int64(h.Priority()), 10),
	}
	if h.destination != "" {
		out[HeaderDestination] = h.destination
	}
	if h.messageID != "" {
		out[HeaderMessageID] = h.messageID
	}
	if h.bornTimestamp != 0 {
		out[HeaderBornTimestamp] = strconv.FormatInt(h.bornTimestamp, 10)
	}
	if h.bornHost != "" {
		out[HeaderBornHost] = h.bornHost
	}
	if h.durability != 0 {
		out[HeaderDurability] = strconv.FormatInt(int64(h.durability), 10)
	}
	if h.deliveryCount != 0 {
		out[HeaderDeliveryCount] = strconv.FormatInt(int64(h.deliveryCount), 10)
	}
	if h.compression != 0 {
		out[HeaderCompression] = strconv.FormatInt(int64(h.compression), 10)
	}
	return out
}

// DecodeHeader rebuilds a Header from string key/values. Keys that are not
// header keys are ignored.
func DecodeHeader(values map[string]string) (Header, error) {
	var h Header
	for key, value := range values {
		switch key {
		case HeaderDestination:
			h.SetDestination(value)
		case HeaderMessageID:
			h.SetMessageID(value)
		case HeaderBornHost:
			h.SetBornHost(value)
		case HeaderBornTimestamp:
			n, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return Header{}, malformed(key, err)
			}
			h.SetBornTimestamp(n)
		case HeaderPriority:
			n, err := strconv.ParseInt(value, 10, 16)
			if err != nil {
				return Header{}, malformed(key, err)
			}
			h.SetPriority(int16(n))
		case HeaderDurability:
			n, err := strconv.ParseInt(value, 10, 16)
			if err != nil {
				return Header{}, malformed(key, err)
			}
			h.SetDurability(Durability(n))
		case HeaderDeliveryCount:
			n, err := strconv.ParseInt(value, 10, 32)
			if err != nil {
				return Header{}, malformed(key, err)
			}
			h.SetDeliveryCount(int32(n))
		case HeaderCompression:
			n, err := strconv.ParseInt(value, 10, 16)
			if err != nil {
				return Header{}, malformed(key, err)
			}
			h.SetCompression(Compression(n))
		}
	}
	return h, nil
}

func malformed(key string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrMalformedHeader, key, err)
}

// HeaderView is the exported, serializable form of a Header.
type HeaderView struct {
	Destination   string `json:"destination,omitempty" yaml:"destination,omitempty"`
	MessageID     string `json:"message_id,omitempty" yaml:"message_id,omitempty"`
	BornTimestamp int64  `json:"born_timestamp,omitempty" yaml:"born_timestamp,omitempty"`
	BornHost      string `json:"born_host,omitempty" yaml:"born_host,omitempty"`
	Priority      int16  `json:"priority" yaml:"priority"`
	Durability    string `json:"durability" yaml:"durability"`
	DeliveryCount int32  `json:"delivery_count" yaml:"delivery_count"`
	Compression   string `json:"compression" yaml:"compression"`
}

func (h *Header) View() HeaderView {
	return HeaderView{
		Destination:   h.destination,
		MessageID:     h.messageID,
		BornTimestamp: h.bornTimestamp,
		BornHost:      h.bornHost,
		Priority:      h.Priority(),
		Durability:    h.durability.String(),
		DeliveryCount: h.deliveryCount,
		Compression:   h.compression.String(),
	}
}

func (h Header) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.View())
}

func (h *Header) UnmarshalJSON(data []byte) error {
	var v HeaderView
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	durability, err := ParseDurability(v.Durability)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedHeader, err)
	}
	compression, err := ParseCompression(v.Compression)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedHeader, err)
	}
	*h = Header{}
	h.SetDestination(v.Destination).
		SetMessageID(v.MessageID).
		SetBornTimestamp(v.BornTimestamp).
		SetBornHost(v.BornHost).
		SetPriority(v.Priority).
		SetDurability(durability).
		SetDeliveryCount(v.DeliveryCount).
		SetCompression(compression)
	return nil
}

// MarshalYAML renders the header through its view.
func (h Header) MarshalYAML() (interface{}, error) {
	return h.View(), nil
}
