package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Priority bounds. A message with a higher priority should be delivered
// preferentially, but ordering is a best-effort hint only.
const (
	MinPriority     int16 = 1
	MaxPriority     int16 = 10
	DefaultPriority int16 = 5
)

// Durability is the persistence level requested for a message.
type Durability int16

const (
	// DurabilityPersistent asks the broker for stable storage.
	DurabilityPersistent Durability = iota
	// DurabilityNonPersistent allows memory-only storage.
	DurabilityNonPersistent
)

func (d Durability) String() string {
	switch d {
	case DurabilityPersistent:
		return "persistent"
	case DurabilityNonPersistent:
		return "non-persistent"
	default:
		return strconv.Itoa(int(d))
	}
}

// ParseDurability accepts the names returned by Durability.String.
func ParseDurability(s string) (Durability, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "persistent", "":
		return DurabilityPersistent, nil
	case "non-persistent", "non_persistent", "transient":
		return DurabilityNonPersistent, nil
	}
	n, err := strconv.ParseInt(s, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("unknown durability %q", s)
	}
	return Durability(n), nil
}

// Compression identifies the algorithm the message body was compressed with.
// The numbering matches Kafka's codec ids.
type Compression int16

const (
	CompressionNone Compression = iota
	CompressionGzip
	CompressionSnappy
	CompressionLZ4
	CompressionZstd
)

var compressionNames = map[Compression]string{
	CompressionNone:   "none",
	CompressionGzip:   "gzip",
	CompressionSnappy: "snappy",
	CompressionLZ4:    "lz4",
	CompressionZstd:   "zstd",
}

func (c Compression) String() string {
	if name, ok := compressionNames[c]; ok {
		return name
	}
	return strconv.Itoa(int(c))
}

// ParseCompression accepts the names returned by Compression.String.
func ParseCompression(s string) (Compression, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return CompressionNone, nil
	}
	for c, name := range compressionNames {
		if name == s {
			return c, nil
		}
	}
	n, err := strconv.ParseInt(s, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("unknown compression %q", s)
	}
	return Compression(n), nil
}

// Header holds the standard system fields of a message, as opposed to
// free-form application properties. The zero value is ready to use.
type Header struct {
	destination   string
	messageID     string
	bornTimestamp int64
	bornHost      string
	priority      int16 // zero means unset
	durability    Durability
	deliveryCount int32
	compression   Compression
}

func NewHeader() *Header {
	return &Header{}
}

// SetDestination sets the queue or topic the message is sent to. On receipt it
// holds the queue the message was read from.
func (h *Header) SetDestination(destination string) *Header {
	h.destination = destination
	return h
}

// SetMessageID sets the producer generated identifier of the message.
func (h *Header) SetMessageID(messageID string) *Header {
	h.messageID = messageID
	return h
}

// SetBornTimestamp sets the time, in milliseconds, the message was handed to
// a producer.
func (h *Header) SetBornTimestamp(bornTimestamp int64) *Header {
	h.bornTimestamp = bornTimestamp
	return h
}

// SetBornHost sets the host the message originated from.
func (h *Header) SetBornHost(bornHost string) *Header {
	h.bornHost = bornHost
	return h
}

// SetPriority sets the priority level. Values outside
// [MinPriority, MaxPriority] are ignored and the previous value is kept.
func (h *Header) SetPriority(priority int16) *Header {
	if priority < MinPriority || priority > MaxPriority {
		return h
	}
	h.priority = priority
	return h
}

// SetDurability sets the persistence level.
func (h *Header) SetDurability(durability Durability) *Header {
	h.durability = durability
	return h
}

// SetDeliveryCount sets how many times delivery has been attempted. It is
// maintained by the delivery system, not by applications.
func (h *Header) SetDeliveryCount(deliveryCount int32) *Header {
	h.deliveryCount = deliveryCount
	return h
}

// SetCompression sets the body compression algorithm. Receivers decompress
// the body before handing it to the consumer.
func (h *Header) SetCompression(compression Compression) *Header {
	h.compression = compression
	return h
}

func (h *Header) Destination() string { return h.destination }

func (h *Header) MessageID() string { return h.messageID }

func (h *Header) BornTimestamp() int64 { return h.bornTimestamp }

func (h *Header) BornHost() string { return h.bornHost }

// Priority returns DefaultPriority when no priority has been set.
func (h *Header) Priority() int16 {
	if h.priority == 0 {
		return DefaultPriority
	}
	return h.priority
}

func (h *Header) Durability() Durability { return h.durability }

func (h *Header) DeliveryCount() int32 { return h.deliveryCount }

func (h *Header) Compression() Compression { return h.compression }

// IncDeliveryCount records one more delivery attempt.
func (h *Header) IncDeliveryCount() *Header {
	h.deliveryCount++
	return h
}

// BornTime returns the born timestamp as a time.Time, or the zero time if it
// is unset.
func (h *Header) BornTime() time.Time {
	if h.bornTimestamp == 0 {
		return time.Time{}
	}
	return time.UnixMilli(h.bornTimestamp)
}

func (h *Header) IsPersistent() bool {
	return h.durability != DurabilityNonPersistent
}

// Clone returns a copy that can be mutated independently.
func (h *Header) Clone() Header {
	return *h
}
