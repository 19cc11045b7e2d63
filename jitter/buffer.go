package jitter

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/looplab/fsm"

	"github.com/opd-ai/meshwave/wire"
)

// Lifecycle state names.
const (
	StateBuffering = "buffering"
	StateSteady    = "steady"
	StateDraining  = "draining"
)

const (
	eventFill  = "fill"
	eventReset = "reset"
	eventDrain = "drain"

	// A source must deliver this many consecutive in-order packets before
	// the adapter is allowed to shrink the playout depth.
	stableShrinkThreshold = 50
)

// Config carries jitter buffer tuning for one channel.
type Config struct {
	// ClockRate is the audio timestamp clock in Hz.
	ClockRate uint32

	// FrameDuration is the nominal audio frame spacing.
	FrameDuration time.Duration

	// InitialDepth is the playout depth a new source starts with.
	InitialDepth time.Duration

	// MinDepth and MaxDepth bound the adaptive playout depth.
	MinDepth time.Duration
	MaxDepth time.Duration

	// Capacity is the hard ceiling on buffered packets per source.
	Capacity int

	// LateFactor scales the too-late rejection window: a packet more than
	// targetDepthPackets*LateFactor behind the playout point is discarded.
	LateFactor int

	// UnderrunThreshold is how many consecutive empty polls grow the
	// target depth by one frame.
	UnderrunThreshold int
}

// DefaultConfig returns the tuning the fielded radios use: 16 kHz clock,
// 20 ms frames, and a one-second hard ceiling at 50 packets.
func DefaultConfig() Config {
	return Config{
		ClockRate:         16000,
		FrameDuration:     20 * time.Millisecond,
		InitialDepth:      60 * time.Millisecond,
		MinDepth:          40 * time.Millisecond,
		MaxDepth:          400 * time.Millisecond,
		Capacity:          50,
		LateFactor:        2,
		UnderrunThreshold: 3,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.ClockRate == 0 {
		c.ClockRate = def.ClockRate
	}
	if c.FrameDuration <= 0 {
		c.FrameDuration = def.FrameDuration
	}
	if c.InitialDepth <= 0 {
		c.InitialDepth = def.InitialDepth
	}
	if c.MinDepth <= 0 {
		c.MinDepth = def.MinDepth
	}
	if c.MaxDepth <= 0 {
		c.MaxDepth = def.MaxDepth
	}
	if c.Capacity <= 0 {
		c.Capacity = def.Capacity
	}
	if c.LateFactor <= 0 {
		c.LateFactor = def.LateFactor
	}
	if c.UnderrunThreshold <= 0 {
		c.UnderrunThreshold = def.UnderrunThreshold
	}
	return c
}

// ConcealFunc is invoked during Poll when a gap is skipped, with the number
// of missing frames and the last sequence played before the gap. The caller's
// audio path synthesizes substitute frames from it; the buffer itself only
// reports the gap.
type ConcealFunc func(missing int, lastPlayed uint16)

// BufferedPacket is an audio packet waiting for playout, together with its
// monotonic arrival instant used for jitter estimation.
type BufferedPacket struct {
	Packet  *wire.Packet
	Arrival time.Time
}

// PollResult classifies the outcome of one Poll call.
type PollResult int

const (
	// PollOK means a packet was returned.
	PollOK PollResult = iota
	// PollBuffering means the initial fill level has not been reached yet.
	PollBuffering
	// PollNotReady means packets are buffered but the next playable one is
	// beyond the acceptable gap. The caller should wait, not treat this as
	// a failure.
	PollNotReady
	// PollUnderrun means the buffer ran empty mid-stream.
	PollUnderrun
)

// String returns a human-readable poll outcome.
func (r PollResult) String() string {
	switch r {
	case PollOK:
		return "ok"
	case PollBuffering:
		return "buffering"
	case PollNotReady:
		return "not_ready"
	case PollUnderrun:
		return "underrun"
	default:
		return "unknown"
	}
}

// Stats is a point-in-time statistics snapshot for one source.
type Stats struct {
	State      string
	Buffered   int
	Depth      time.Duration
	Jitter     time.Duration
	LastPlayed uint16

	Received   uint64
	Played     uint64
	Lost       uint64
	Late       uint64
	Duplicate  uint64
	OutOfOrder uint64
	Underrun   uint64
	Overrun    uint64
}

// LossRate returns lost packets as a fraction of packets expected.
func (s Stats) LossRate() float64 {
	total := s.Played + s.Lost
	if total == 0 {
		return 0
	}
	return float64(s.Lost) / float64(total)
}

// Buffer is the adaptive jitter buffer for a single source.
//
// Put and Poll may be called from different goroutines; statistics reads are
// lock-free and never block either of them.
type Buffer struct {
	cfg Config

	mu        sync.Mutex
	packets   map[uint16]*BufferedPacket
	lifecycle *fsm.FSM
	est       estimator

	lastPlayed      uint16
	highestSeq      uint16
	haveHighest     bool
	consecUnderruns int
	stablePackets   int

	conceal ConcealFunc

	// Snapshot mirrors, updated under mu, read without it.
	targetDepth    atomic.Int64 // nanoseconds
	jitterEstimate atomic.Int64 // nanoseconds
	buffered       atomic.Int64
	lastPlayedSnap atomic.Uint32

	received   atomic.Uint64
	played     atomic.Uint64
	lost       atomic.Uint64
	late       atomic.Uint64
	duplicate  atomic.Uint64
	outOfOrder atomic.Uint64
	underrun   atomic.Uint64
	overrun    atomic.Uint64
}

// NewBuffer creates a jitter buffer for one source. conceal may be nil.
func NewBuffer(cfg Config, conceal ConcealFunc) *Buffer {
	cfg = cfg.withDefaults()

	b := &Buffer{
		cfg:     cfg,
		packets: make(map[uint16]*BufferedPacket),
		est:     estimator{clockRate: cfg.ClockRate},
		conceal: conceal,
		lifecycle: fsm.NewFSM(
			StateBuffering,
			fsm.Events{
				{Name: eventFill, Src: []string{StateBuffering}, Dst: StateSteady},
				{Name: eventReset, Src: []string{StateBuffering, StateSteady, StateDraining}, Dst: StateBuffering},
				{Name: eventDrain, Src: []string{StateBuffering, StateSteady}, Dst: StateDraining},
			},
			fsm.Callbacks{},
		),
	}
	b.targetDepth.Store(int64(cfg.InitialDepth))

	return b
}

// targetDepthPackets converts the current target depth to whole frames.
func (b *Buffer) targetDepthPackets() int {
	n := int(time.Duration(b.targetDepth.Load()) / b.cfg.FrameDuration)
	if n < 1 {
		n = 1
	}
	return n
}

// Put offers one arriving packet to the buffer.
//
// It returns false when the packet was not buffered: duplicates, packets too
// far behind the playout point (counted as late), and anything arriving
// during teardown. All rejections are counted, never errors.
func (b *Buffer) Put(p *wire.Packet) bool {
	now := time.Now()

	b.mu.Lock()

	if b.lifecycle.Current() == StateDraining {
		b.mu.Unlock()
		return false
	}

	b.received.Add(1)
	seq := p.SequenceNumber

	if _, exists := b.packets[seq]; exists {
		b.duplicate.Add(1)
		b.mu.Unlock()
		return false
	}

	if b.lifecycle.Current() == StateSteady {
		if d := wire.SignedSeqDiff(seq, b.lastPlayed); d <= 0 {
			if -d > b.targetDepthPackets()*b.cfg.LateFactor {
				b.late.Add(1)
				b.mu.Unlock()
				return false
			}
		}
	}

	b.est.update(p.Timestamp, now)
	b.jitterEstimate.Store(int64(b.est.jitterEstimate()))

	if b.haveHighest && wire.SeqBefore(seq, b.highestSeq) {
		b.outOfOrder.Add(1)
	} else {
		b.highestSeq = seq
		b.haveHighest = true
	}

	if len(b.packets) >= b.cfg.Capacity {
		b.evictOldestLocked()
	}

	b.packets[seq] = &BufferedPacket{Packet: p, Arrival: now}
	b.buffered.Store(int64(len(b.packets)))

	b.mu.Unlock()
	return true
}

// evictOldestLocked drops the buffered packet furthest back in sequence
// order. Called with b.mu held.
func (b *Buffer) evictOldestLocked() {
	var oldest uint16
	first := true
	for seq := range b.packets {
		if first || wire.SeqBefore(seq, oldest) {
			oldest = seq
			first = false
		}
	}
	if !first {
		delete(b.packets, oldest)
		b.overrun.Add(1)
	}
}

// Poll attempts to take the next packet for playout.
//
// During buffering it returns PollBuffering until the fill level reaches the
// target depth, then transitions to steady and starts emitting. In steady
// state it returns the next expected sequence when present, conceals and
// skips small gaps, and reports underruns on an empty buffer. During
// draining it flushes whatever is left, in sequence order.
func (b *Buffer) Poll() (*wire.Packet, PollResult) {
	b.mu.Lock()

	switch b.lifecycle.Current() {
	case StateBuffering:
		if len(b.packets) < b.targetDepthPackets() {
			b.mu.Unlock()
			return nil, PollBuffering
		}
		// Filled: start playout just behind the oldest buffered sequence.
		_ = b.lifecycle.Event(context.Background(), eventFill)
		b.setLastPlayedLocked(b.oldestSeqLocked() - 1)

	case StateDraining:
		pkt := b.flushOneLocked()
		b.mu.Unlock()
		if pkt == nil {
			return nil, PollUnderrun
		}
		return pkt, PollOK
	}

	b.pruneStaleLocked()

	if len(b.packets) == 0 {
		b.underrun.Add(1)
		b.stablePackets = 0
		b.consecUnderruns++
		if b.consecUnderruns >= b.cfg.UnderrunThreshold {
			b.consecUnderruns = 0
			b.growDepthLocked()
		}
		b.mu.Unlock()
		return nil, PollUnderrun
	}

	next := b.lastPlayed + 1
	if bp, ok := b.packets[next]; ok {
		b.takeLocked(next)
		b.stablePackets++
		b.mu.Unlock()
		return bp.Packet, PollOK
	}

	// The expected sequence is missing. Look for the nearest later one.
	nearest, dist := b.nearestAheadLocked()
	gap := dist - 1
	if gap > b.targetDepthPackets() {
		b.mu.Unlock()
		return nil, PollNotReady
	}

	bp := b.packets[nearest]
	b.takeLocked(nearest)
	b.lost.Add(uint64(gap))
	b.stablePackets = 0
	lastBeforeGap := next - 1
	conceal := b.conceal
	b.mu.Unlock()

	// Invoked outside the lock so the callback may safely touch the buffer.
	if conceal != nil {
		conceal(gap, lastBeforeGap)
	}

	return bp.Packet, PollOK
}

// takeLocked removes seq from the buffer and advances the playout point.
func (b *Buffer) takeLocked(seq uint16) {
	delete(b.packets, seq)
	b.buffered.Store(int64(len(b.packets)))
	b.setLastPlayedLocked(seq)
	b.played.Add(1)
	b.consecUnderruns = 0
}

func (b *Buffer) setLastPlayedLocked(seq uint16) {
	b.lastPlayed = seq
	b.lastPlayedSnap.Store(uint32(seq))
}

// pruneStaleLocked silently discards entries at or behind the playout point;
// they can never be played and would otherwise pin the capacity ceiling.
func (b *Buffer) pruneStaleLocked() {
	for seq := range b.packets {
		if wire.SignedSeqDiff(seq, b.lastPlayed) <= 0 {
			delete(b.packets, seq)
		}
	}
	b.buffered.Store(int64(len(b.packets)))
}

// nearestAheadLocked returns the buffered sequence closest ahead of the
// playout point and its wrap-safe distance. Called with at least one
// ahead-of-playout entry present (pruneStaleLocked ran first).
func (b *Buffer) nearestAheadLocked() (uint16, int) {
	var nearest uint16
	best := int(^uint(0) >> 1)
	for seq := range b.packets {
		if d := wire.SignedSeqDiff(seq, b.lastPlayed); d > 0 && d < best {
			best = d
			nearest = seq
		}
	}
	return nearest, best
}

// oldestSeqLocked returns the furthest-back buffered sequence.
func (b *Buffer) oldestSeqLocked() uint16 {
	var oldest uint16
	first := true
	for seq := range b.packets {
		if first || wire.SeqBefore(seq, oldest) {
			oldest = seq
			first = false
		}
	}
	return oldest
}

// flushOneLocked pops the oldest remaining packet during draining.
func (b *Buffer) flushOneLocked() *wire.Packet {
	if len(b.packets) == 0 {
		return nil
	}
	seq := b.oldestSeqLocked()
	bp := b.packets[seq]
	b.takeLocked(seq)
	return bp.Packet
}

func (b *Buffer) growDepthLocked() {
	depth := time.Duration(b.targetDepth.Load()) + b.cfg.FrameDuration
	if depth > b.cfg.MaxDepth {
		depth = b.cfg.MaxDepth
	}
	b.targetDepth.Store(int64(depth))
}

// Adapt recomputes the target playout depth from the jitter estimate:
// twice the smoothed jitter plus one standard deviation, clamped to the
// configured bounds. A change smaller than half a frame is suppressed so the
// depth does not oscillate, and the depth only shrinks after a sustained run
// of in-order packets.
func (b *Buffer) Adapt() {
	b.mu.Lock()
	defer b.mu.Unlock()

	target := b.est.target()
	if target < b.cfg.MinDepth {
		target = b.cfg.MinDepth
	}
	if target > b.cfg.MaxDepth {
		target = b.cfg.MaxDepth
	}

	current := time.Duration(b.targetDepth.Load())
	delta := target - current
	if delta < 0 {
		delta = -delta
	}
	if delta <= b.cfg.FrameDuration/2 {
		return
	}
	if target < current && b.stablePackets < stableShrinkThreshold {
		return
	}

	b.targetDepth.Store(int64(target))
}

// Reset clears all buffered packets and estimation state, returning the
// source to the buffering state. Cumulative counters persist until
// ClearCounters.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.packets = make(map[uint16]*BufferedPacket)
	b.buffered.Store(0)
	b.est.reset()
	b.jitterEstimate.Store(0)
	b.targetDepth.Store(int64(b.cfg.InitialDepth))
	b.consecUnderruns = 0
	b.stablePackets = 0
	b.haveHighest = false
	_ = b.lifecycle.Event(context.Background(), eventReset)
}

// Drain moves the buffer to the draining state: Put rejects everything and
// Poll flushes the remaining packets in sequence order.
func (b *Buffer) Drain() {
	b.mu.Lock()
	defer b.mu.Unlock()
	_ = b.lifecycle.Event(context.Background(), eventDrain)
}

// ClearCounters zeroes the cumulative statistics counters.
func (b *Buffer) ClearCounters() {
	b.received.Store(0)
	b.played.Store(0)
	b.lost.Store(0)
	b.late.Store(0)
	b.duplicate.Store(0)
	b.outOfOrder.Store(0)
	b.underrun.Store(0)
	b.overrun.Store(0)
}

// State returns the current lifecycle state name.
func (b *Buffer) State() string {
	return b.lifecycle.Current()
}

// TargetDepth returns the current adaptive playout depth.
func (b *Buffer) TargetDepth() time.Duration {
	return time.Duration(b.targetDepth.Load())
}

// Stats returns a snapshot without blocking Put or Poll.
func (b *Buffer) Stats() Stats {
	return Stats{
		State:      b.lifecycle.Current(),
		Buffered:   int(b.buffered.Load()),
		Depth:      time.Duration(b.targetDepth.Load()),
		Jitter:     time.Duration(b.jitterEstimate.Load()),
		LastPlayed: uint16(b.lastPlayedSnap.Load()),
		Received:   b.received.Load(),
		Played:     b.played.Load(),
		Lost:       b.lost.Load(),
		Late:       b.late.Load(),
		Duplicate:  b.duplicate.Load(),
		OutOfOrder: b.outOfOrder.Load(),
		Underrun:   b.underrun.Load(),
		Overrun:    b.overrun.Load(),
	}
}
