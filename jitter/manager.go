package jitter

import (
	"sync"

	"github.com/opd-ai/meshwave/wire"
)

// SourceConcealFunc is the manager-level loss concealment hook; it adds the
// source id to the per-buffer gap report.
type SourceConcealFunc func(source uint32, missing int, lastPlayed uint16)

// Manager owns one Buffer per transmitting source on a channel.
//
// Buffers are created lazily on the first packet from a new source id. Map
// access uses a reader/writer discipline: the receive path takes the read
// lock in the common case and only upgrades when a new source appears.
type Manager struct {
	cfg     Config
	conceal SourceConcealFunc

	mu      sync.RWMutex
	buffers map[uint32]*Buffer
}

// NewManager creates a buffer manager. conceal may be nil.
func NewManager(cfg Config, conceal SourceConcealFunc) *Manager {
	return &Manager{
		cfg:     cfg.withDefaults(),
		conceal: conceal,
		buffers: make(map[uint32]*Buffer),
	}
}

// Put routes one arriving packet to its source's buffer, creating the
// buffer on the first packet from a new source.
func (m *Manager) Put(p *wire.Packet) bool {
	return m.buffer(p.SSRC).Put(p)
}

// Poll takes the next playable packet for one source. Polling an unknown
// source reports buffering: the source simply has not sent anything yet.
func (m *Manager) Poll(source uint32) (*wire.Packet, PollResult) {
	m.mu.RLock()
	b, ok := m.buffers[source]
	m.mu.RUnlock()
	if !ok {
		return nil, PollBuffering
	}
	return b.Poll()
}

// AdaptAll runs one depth adaptation pass over every source.
func (m *Manager) AdaptAll() {
	for _, b := range m.snapshotBuffers() {
		b.Adapt()
	}
}

// Reset clears one source's buffer back to the buffering state.
func (m *Manager) Reset(source uint32) {
	m.mu.RLock()
	b, ok := m.buffers[source]
	m.mu.RUnlock()
	if ok {
		b.Reset()
	}
}

// Remove drops a source entirely, draining its buffer first.
func (m *Manager) Remove(source uint32) {
	m.mu.Lock()
	b, ok := m.buffers[source]
	delete(m.buffers, source)
	m.mu.Unlock()
	if ok {
		b.Drain()
	}
}

// Sources lists the currently tracked source ids.
func (m *Manager) Sources() []uint32 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]uint32, 0, len(m.buffers))
	for id := range m.buffers {
		out = append(out, id)
	}
	return out
}

// Snapshot returns per-source statistics. The per-buffer reads are
// lock-free, so a snapshot never stalls the receive or playout paths.
func (m *Manager) Snapshot() map[uint32]Stats {
	out := make(map[uint32]Stats)
	m.mu.RLock()
	defer m.mu.RUnlock()
	for id, b := range m.buffers {
		out[id] = b.Stats()
	}
	return out
}

func (m *Manager) buffer(source uint32) *Buffer {
	m.mu.RLock()
	b, ok := m.buffers[source]
	m.mu.RUnlock()
	if ok {
		return b
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.buffers[source]; ok {
		return b
	}

	var conceal ConcealFunc
	if m.conceal != nil {
		hook := m.conceal
		conceal = func(missing int, lastPlayed uint16) {
			hook(source, missing, lastPlayed)
		}
	}
	b = NewBuffer(m.cfg, conceal)
	m.buffers[source] = b
	return b
}

func (m *Manager) snapshotBuffers() []*Buffer {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Buffer, 0, len(m.buffers))
	for _, b := range m.buffers {
		out = append(out, b)
	}
	return out
}
