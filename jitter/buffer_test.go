package jitter

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/meshwave/wire"
)

func testConfig() Config {
	// 20 ms frames with a 60 ms initial depth: playout starts after 3 packets.
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

func audioPacket(seq uint16) *wire.Packet {
	return &wire.Packet{
		Version:        wire.ProtocolVersion,
		PayloadType:    wire.PayloadTypeOpus,
		SequenceNumber: seq,
		Timestamp:      uint32(seq) * 320, // 20 ms at 16 kHz
		SSRC:           0xABCD0001,
		Payload:        []byte{byte(seq)},
	}
}

// steadyBuffer returns a buffer that has filled, played sequences 1..3, and
// sits in steady state with lastPlayed == 3.
func steadyBuffer(t *testing.T, conceal ConcealFunc) *Buffer {
	t.Helper()

	b := NewBuffer(testConfig(), conceal)
	for seq := uint16(1); seq <= 3; seq++ {
		require.True(t, b.Put(audioPacket(seq)))
	}
	for seq := uint16(1); seq <= 3; seq++ {
		pkt, res := b.Poll()
		require.Equal(t, PollOK, res)
		require.Equal(t, seq, pkt.SequenceNumber)
	}
	require.Equal(t, StateSteady, b.State())
	return b
}

func TestPollBuffersUntilTargetDepth(t *testing.T) {
	b := NewBuffer(testConfig(), nil)

	require.True(t, b.Put(audioPacket(1)))
	require.True(t, b.Put(audioPacket(2)))

	pkt, res := b.Poll()
	assert.Nil(t, pkt)
	assert.Equal(t, PollBuffering, res)
	assert.Equal(t, StateBuffering, b.State())

	require.True(t, b.Put(audioPacket(3)))

	pkt, res = b.Poll()
	require.Equal(t, PollOK, res)
	assert.Equal(t, uint16(1), pkt.SequenceNumber)
	assert.Equal(t, StateSteady, b.State())
}

func TestInOrderPlayout(t *testing.T) {
	b := steadyBuffer(t, nil)

	for seq := uint16(4); seq <= 10; seq++ {
		require.True(t, b.Put(audioPacket(seq)))
		pkt, res := b.Poll()
		require.Equal(t, PollOK, res)
		assert.Equal(t, seq, pkt.SequenceNumber)
	}

	stats := b.Stats()
	assert.Equal(t, uint64(10), stats.Played)
	assert.Equal(t, uint64(0), stats.Lost)
	assert.Equal(t, uint16(10), stats.LastPlayed)
}

func TestReorderedArrivalPlaysInSequence(t *testing.T) {
	b := steadyBuffer(t, nil)

	require.True(t, b.Put(audioPacket(6)))
	require.True(t, b.Put(audioPacket(4)))
	require.True(t, b.Put(audioPacket(5)))

	for seq := uint16(4); seq <= 6; seq++ {
		pkt, res := b.Poll()
		require.Equal(t, PollOK, res)
		assert.Equal(t, seq, pkt.SequenceNumber)
	}
	assert.Equal(t, uint64(2), b.Stats().OutOfOrder)
}

func TestDuplicateRejected(t *testing.T) {
	b := NewBuffer(testConfig(), nil)

	require.True(t, b.Put(audioPacket(5)))
	assert.False(t, b.Put(audioPacket(5)))

	stats := b.Stats()
	assert.Equal(t, 1, stats.Buffered)
	assert.Equal(t, uint64(1), stats.Duplicate)
}

func TestTooLateRejected(t *testing.T) {
	b := steadyBuffer(t, nil)
	before := b.Stats().Buffered

	// lastPlayed is 3, target depth 3 packets, late factor 2: anything more
	// than 6 behind the playout point is discarded as late.
	// Sequence 65533 is 6 behind; 65532 is 7 behind.
	assert.True(t, b.Put(audioPacket(65533)))
	assert.False(t, b.Put(audioPacket(65532)))

	stats := b.Stats()
	assert.Equal(t, uint64(1), stats.Late)
	assert.Equal(t, before+1, stats.Buffered)
}

func TestGapConcealmentAndSkip(t *testing.T) {
	var gotMissing int
	var gotLastPlayed uint16
	calls := 0

	b := steadyBuffer(t, func(missing int, lastPlayed uint16) {
		calls++
		gotMissing = missing
		gotLastPlayed = lastPlayed
	})

	require.True(t, b.Put(audioPacket(4)))
	pkt, res := b.Poll()
	require.Equal(t, PollOK, res)
	require.Equal(t, uint16(4), pkt.SequenceNumber)

	// Sequence 5 never arrives; 6 is buffered. The gap of one frame is
	// within tolerance, so poll conceals and skips.
	require.True(t, b.Put(audioPacket(6)))

	pkt, res = b.Poll()
	require.Equal(t, PollOK, res)
	assert.Equal(t, uint16(6), pkt.SequenceNumber)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, gotMissing)
	assert.Equal(t, uint16(4), gotLastPlayed)

	stats := b.Stats()
	assert.Equal(t, uint64(1), stats.Lost)
	assert.Equal(t, uint16(6), stats.LastPlayed)
}

func TestLargeGapIsNotReady(t *testing.T) {
	b := steadyBuffer(t, nil)

	// lastPlayed is 3; sequence 20 is 16 ahead, far past the tolerance of
	// one target depth. The caller should wait, not skip.
	require.True(t, b.Put(audioPacket(20)))

	pkt, res := b.Poll()
	assert.Nil(t, pkt)
	assert.Equal(t, PollNotReady, res)
	assert.Equal(t, uint64(0), b.Stats().Lost)
	assert.Equal(t, 1, b.Stats().Buffered)
}

func TestUnderrunGrowsDepth(t *testing.T) {
	b := steadyBuffer(t, nil)
	require.Equal(t, 60*time.Millisecond, b.TargetDepth())

	for i := 0; i < 3; i++ {
		pkt, res := b.Poll()
		assert.Nil(t, pkt)
		assert.Equal(t, PollUnderrun, res)
	}

	assert.Equal(t, uint64(3), b.Stats().Underrun)
	assert.Equal(t, 80*time.Millisecond, b.TargetDepth())
}

func TestDepthGrowthBoundedByMax(t *testing.T) {
	cfg := testConfig()
	cfg.MaxDepth = 80 * time.Millisecond
	b := NewBuffer(cfg, nil)

	for seq := uint16(1); seq <= 3; seq++ {
		require.True(t, b.Put(audioPacket(seq)))
	}
	for seq := uint16(1); seq <= 3; seq++ {
		_, res := b.Poll()
		require.Equal(t, PollOK, res)
	}

	for i := 0; i < 12; i++ {
		b.Poll()
	}
	assert.Equal(t, 80*time.Millisecond, b.TargetDepth())
}

func TestCapacityEvictsOldest(t *testing.T) {
	cfg := testConfig()
	cfg.Capacity = 5
	b := NewBuffer(cfg, nil)

	for seq := uint16(1); seq <= 6; seq++ {
		require.True(t, b.Put(audioPacket(seq)))
	}

	stats := b.Stats()
	assert.Equal(t, 5, stats.Buffered)
	assert.Equal(t, uint64(1), stats.Overrun)

	// The oldest packet (sequence 1) was the one evicted.
	pkt, res := b.Poll()
	require.Equal(t, PollOK, res)
	assert.Equal(t, uint16(2), pkt.SequenceNumber)
}

func TestPlayoutAcrossSequenceWrap(t *testing.T) {
	b := NewBuffer(testConfig(), nil)

	for _, seq := range []uint16{65534, 65535, 0} {
		require.True(t, b.Put(audioPacket(seq)))
	}

	for _, want := range []uint16{65534, 65535, 0} {
		pkt, res := b.Poll()
		require.Equal(t, PollOK, res)
		assert.Equal(t, want, pkt.SequenceNumber)
	}
}

func TestResetReturnsToBufferingKeepingCounters(t *testing.T) {
	b := steadyBuffer(t, nil)
	require.True(t, b.Put(audioPacket(4)))

	b.Reset()

	assert.Equal(t, StateBuffering, b.State())
	stats := b.Stats()
	assert.Equal(t, 0, stats.Buffered)
	assert.Equal(t, 60*time.Millisecond, stats.Depth)
	// Cumulative counters survive a stream reset.
	assert.Equal(t, uint64(4), stats.Received)
	assert.Equal(t, uint64(3), stats.Played)

	b.ClearCounters()
	assert.Equal(t, uint64(0), b.Stats().Received)
}

func TestDrainFlushesRemainingInOrder(t *testing.T) {
	b := steadyBuffer(t, nil)
	require.True(t, b.Put(audioPacket(5)))
	require.True(t, b.Put(audioPacket(4)))

	b.Drain()

	assert.False(t, b.Put(audioPacket(6)))

	for _, want := range []uint16{4, 5} {
		pkt, res := b.Poll()
		require.Equal(t, PollOK, res)
		assert.Equal(t, want, pkt.SequenceNumber)
	}
	_, res := b.Poll()
	assert.Equal(t, PollUnderrun, res)
}

func TestAdaptShrinkRequiresStability(t *testing.T) {
	b := steadyBuffer(t, nil)

	// Only a handful of stable packets so far: shrinking is suppressed even
	// though the estimate is far below the current depth.
	b.Adapt()
	assert.Equal(t, 60*time.Millisecond, b.TargetDepth())

	for seq := uint16(4); seq <= 60; seq++ {
		require.True(t, b.Put(audioPacket(seq)))
		_, res := b.Poll()
		require.Equal(t, PollOK, res)
	}

	b.Adapt()
	depth := b.TargetDepth()
	assert.Less(t, depth, 60*time.Millisecond)
	assert.GreaterOrEqual(t, depth, 40*time.Millisecond)
}

func TestStatsLossRate(t *testing.T) {
	assert.Equal(t, 0.0, Stats{}.LossRate())
	assert.InDelta(t, 0.25, Stats{Played: 3, Lost: 1}.LossRate(), 1e-9)
}

func TestConcurrentPutPollStats(t *testing.T) {
	b := NewBuffer(testConfig(), nil)

	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		for seq := uint16(0); seq < 500; seq++ {
			b.Put(audioPacket(seq))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			b.Poll()
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			_ = b.Stats()
		}
	}()

	wg.Wait()
}
