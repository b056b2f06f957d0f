package nats

import (
	"sync"

	"github.com/nats-io/nats.go"
)

// MockConn records core NATS publishes.
type MockConn struct {
	mu        sync.Mutex
	Published []*nats.Msg
	Err       error
}

func (c *MockConn) PublishMsg(m *nats.Msg) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	c.Published = append(c.Published, m)
	return nil
}

// MockStream records JetStream publishes and hands out sequence numbers.
type MockStream struct {
	mu        sync.Mutex
	Published []*nats.Msg
	Opts      [][]nats.PubOpt
	Err       error
}

func (s *MockStream) PublishMsg(m *nats.Msg, opts ...nats.PubOpt) (*nats.PubAck, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	s.Published = append(s.Published, m)
	s.Opts = append(s.Opts, opts)
	return &nats.PubAck{Stream: "OMS", Sequence: uint64(len(s.Published))}, nil
}

// MockAcker records how a JetStream delivery was settled.
type MockAcker struct {
	mu      sync.Mutex
	Settled []string
}

func (a *MockAcker) record(kind string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Settled = append(a.Settled, kind)
	return nil
}

func (a *MockAcker) Ack(opts ...nats.AckOpt) error { return a.record("ack") }

func (a *MockAcker) Nak(opts ...nats.AckOpt) error { return a.record("nak") }

func (a *MockAcker) Term(opts ...nats.AckOpt) error { return a.record("term") }
