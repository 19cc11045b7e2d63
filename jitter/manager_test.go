package jitter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/meshwave/wire"
)

func sourcePacket(source uint32, seq uint16) *wire.Packet {
	p := audioPacket(seq)
	p.SSRC = source
	return p
}

func TestManagerCreatesBufferPerSource(t *testing.T) {
	m := NewManager(testConfig(), nil)

	require.True(t, m.Put(sourcePacket(100, 1)))
	require.True(t, m.Put(sourcePacket(200, 1)))

	assert.ElementsMatch(t, []uint32{100, 200}, m.Sources())

	snapshot := m.Snapshot()
	require.Len(t, snapshot, 2)
	assert.Equal(t, uint64(1), snapshot[100].Received)
	assert.Equal(t, uint64(1), snapshot[200].Received)
}

func TestManagerPollUnknownSourceIsBuffering(t *testing.T) {
	m := NewManager(testConfig(), nil)

	pkt, res := m.Poll(42)
	assert.Nil(t, pkt)
	assert.Equal(t, PollBuffering, res)
}

func TestManagerIndependentStreams(t *testing.T) {
	m := NewManager(testConfig(), nil)

	for seq := uint16(1); seq <= 3; seq++ {
		require.True(t, m.Put(sourcePacket(100, seq)))
	}
	// Source 200 has a single packet: still buffering.
	require.True(t, m.Put(sourcePacket(200, 1)))

	pkt, res := m.Poll(100)
	require.Equal(t, PollOK, res)
	assert.Equal(t, uint16(1), pkt.SequenceNumber)

	_, res = m.Poll(200)
	assert.Equal(t, PollBuffering, res)
}

func TestManagerConcealIncludesSource(t *testing.T) {
	var gotSource uint32
	var gotMissing int

	m := NewManager(testConfig(), func(source uint32, missing int, lastPlayed uint16) {
		gotSource = source
		gotMissing = missing
	})

	for seq := uint16(1); seq <= 3; seq++ {
		require.True(t, m.Put(sourcePacket(77, seq)))
	}
	for seq := uint16(1); seq <= 3; seq++ {
		_, res := m.Poll(77)
		require.Equal(t, PollOK, res)
	}

	// Sequence 4 missing, 5 arrives: gap of one.
	require.True(t, m.Put(sourcePacket(77, 5)))
	pkt, res := m.Poll(77)
	require.Equal(t, PollOK, res)
	assert.Equal(t, uint16(5), pkt.SequenceNumber)
	assert.Equal(t, uint32(77), gotSource)
	assert.Equal(t, 1, gotMissing)
}

func TestManagerResetAndRemove(t *testing.T) {
	m := NewManager(testConfig(), nil)

	for seq := uint16(1); seq <= 3; seq++ {
		require.True(t, m.Put(sourcePacket(9, seq)))
	}

	m.Reset(9)
	snapshot := m.Snapshot()
	assert.Equal(t, StateBuffering, snapshot[9].State)
	assert.Equal(t, 0, snapshot[9].Buffered)

	m.Remove(9)
	assert.Empty(t, m.Sources())

	// Resetting or removing unknown sources must not panic.
	m.Reset(12345)
	m.Remove(12345)
}
