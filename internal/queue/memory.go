package queue

import (
	"context"
	"strconv"
	"sync"
)

// Memory is an in-process Backend.  Packets do not survive a restart;
// use it for single-process deployments and tests.
type Memory struct {
	mu       sync.Mutex
	seq      uint64
	pending  []Packet
	inflight map[string]Packet
}

// NewMemory returns an empty in-process backend.
func NewMemory() *Memory {
	return &Memory{inflight: map[string]Packet{}}
}

func (m *Memory) Push(_ context.Context, ps []Packet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = append(m.pending, ps...)
	return nil
}

func (m *Memory) Claim(_ context.Context, n int) ([]Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n = min(n, len(m.pending))
	out := make([]Delivery, 0, n)
	for _, p := range m.pending[:n] {
		m.seq++
		tok := strconv.FormatUint(m.seq, 10)
		m.inflight[tok] = p
		out = append(out, Delivery{Packet: p, Token: tok})
	}
	m.pending = m.pending[n:]
	return out, nil
}

func (m *Memory) Ack(_ context.Context, d Delivery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.inflight, d.Token)
	return nil
}

func (m *Memory) Recover(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.inflight)
	for tok, p := range m.inflight {
		m.pending = append(m.pending, p)
		delete(m.inflight, tok)
	}
	return n, nil
}

func (m *Memory) Len(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.pending) + len(m.inflight)), nil
}
