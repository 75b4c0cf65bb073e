package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var ErrClosed = errors.New("transport closed")

// Memory is an in-process Transport with consumer-group semantics. A group
// created on a stream starts from its first entry. Nacked entries are
// redelivered before new ones.
type Memory struct {
	mu      sync.Mutex
	seq     int64
	streams map[string]*memStream
	notify  chan struct{}
	closed  bool
}

type memStream struct {
	entries []Entry
	groups  map[string]*memGroup
}

type memGroup struct {
	next      int
	pending   map[string]Entry
	redeliver []Entry
}

func NewMemory() *Memory {
	return &Memory{
		streams: make(map[string]*memStream),
		notify:  make(chan struct{}),
	}
}

func (m *Memory) Append(_ context.Context, stream string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", ErrClosed
	}

	m.seq++
	entry := Entry{ID: fmt.Sprintf("%d-0", m.seq), Data: append([]byte(nil), data...)}
	s := m.streamLocked(stream)
	s.entries = append(s.entries, entry)

	close(m.notify)
	m.notify = make(chan struct{})
	return entry.ID, nil
}

func (m *Memory) EnsureGroup(_ context.Context, stream, group string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.groupLocked(stream, group)
	return nil
}

func (m *Memory) ReadGroup(ctx context.Context, stream, group, _ string, count int, block time.Duration) ([]Entry, error) {
	if count <= 0 {
		count = 1
	}
	deadline := time.Now().Add(block)

	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return nil, ErrClosed
		}
		s, ok := m.streams[stream]
		var g *memGroup
		if ok {
			g = s.groups[group]
		}
		if g == nil {
			m.mu.Unlock()
			return nil, fmt.Errorf("no group %s on stream %s", group, stream)
		}

		var out []Entry
		for len(out) < count && len(g.redeliver) > 0 {
			e := g.redeliver[0]
			g.redeliver = g.redeliver[1:]
			g.pending[e.ID] = e
			out = append(out, e)
		}
		for len(out) < count && g.next < len(s.entries) {
			e := s.entries[g.next]
			g.next++
			g.pending[e.ID] = e
			out = append(out, e)
		}
		wait := m.notify
		m.mu.Unlock()

		if len(out) > 0 {
			return out, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}
		timer := time.NewTimer(remaining)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
			return nil, nil
		case <-wait:
			timer.Stop()
		}
	}
}

func (m *Memory) Ack(_ context.Context, stream, group, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	g := m.existingGroupLocked(stream, group)
	if g == nil {
		return fmt.Errorf("no group %s on stream %s", group, stream)
	}
	delete(g.pending, id)
	return nil
}

// Nack puts a pending entry back at the head of the group's queue.
func (m *Memory) Nack(_ context.Context, stream, group, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	g := m.existingGroupLocked(stream, group)
	if g == nil {
		return fmt.Errorf("no group %s on stream %s", group, stream)
	}
	e, ok := g.pending[id]
	if !ok {
		return nil
	}
	delete(g.pending, id)
	g.redeliver = append(g.redeliver, e)
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.notify)
	}
	return nil
}

// Entries returns a copy of everything appended to stream.
func (m *Memory) Entries(stream string) []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.streams[stream]
	if !ok {
		return nil
	}
	return append([]Entry(nil), s.entries...)
}

// Pending returns the number of entries delivered to group and not yet acked.
func (m *Memory) Pending(stream, group string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	g := m.existingGroupLocked(stream, group)
	if g == nil {
		return 0
	}
	return len(g.pending) + len(g.redeliver)
}

func (m *Memory) streamLocked(stream string) *memStream {
	s, ok := m.streams[stream]
	if !ok {
		s = &memStream{groups: make(map[string]*memGroup)}
		m.streams[stream] = s
	}
	return s
}

func (m *Memory) groupLocked(stream, group string) *memGroup {
	s := m.streamLocked(stream)
	g, ok := s.groups[group]
	if !ok {
		g = &memGroup{pending: make(map[string]Entry)}
		s.groups[group] = g
	}
	return g
}

func (m *Memory) existingGroupLocked(stream, group string) *memGroup {
	s, ok := m.streams[stream]
	if !ok {
		return nil
	}
	return s.groups[group]
}
