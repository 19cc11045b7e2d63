package transport

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLoopbackTransport(t *testing.T) *UDPMulticast {
	t.Helper()

	tr, err := NewUDPMulticast(Config{ListenAddr: "127.0.0.1:0"})
	require.NoError(t, err)
	t.Cleanup(func() { tr.Close() })

	return tr
}

func TestSendReceiveLoopback(t *testing.T) {
	tr := newLoopbackTransport(t)

	payload := []byte{0x01, 0x02, 0x03}
	require.NoError(t, tr.Send(tr.LocalAddr().String(), payload))

	data, addr, err := tr.Receive(time.Second)
	require.NoError(t, err)
	assert.Equal(t, payload, data)
	assert.NotNil(t, addr)

	sent, received := tr.Stats()
	assert.Equal(t, uint64(1), sent)
	assert.Equal(t, uint64(1), received)
}

func TestReceiveTimeoutIsNoData(t *testing.T) {
	tr := newLoopbackTransport(t)

	start := time.Now()
	data, _, err := tr.Receive(50 * time.Millisecond)
	assert.ErrorIs(t, err, ErrNoData)
	assert.Nil(t, data)
	// The receive must have blocked, not spun.
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestReceiveAfterCloseIsFatal(t *testing.T) {
	tr := newLoopbackTransport(t)
	require.NoError(t, tr.Close())

	_, _, err := tr.Receive(50 * time.Millisecond)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoData)
}

func TestJoinValidation(t *testing.T) {
	tr := newLoopbackTransport(t)

	var connectErr *ConnectError

	err := tr.Join("not-an-address")
	require.Error(t, err)
	assert.True(t, errors.As(err, &connectErr))

	// Unicast addresses are not groups.
	err = tr.Join("10.0.0.1:5004")
	require.Error(t, err)
	assert.True(t, errors.As(err, &connectErr))
	assert.Equal(t, "join", connectErr.Op)
}

func TestJoinLeaveIdempotent(t *testing.T) {
	tr := newLoopbackTransport(t)

	const group = "239.255.42.99:5004"
	if err := tr.Join(group); err != nil {
		t.Skipf("multicast membership unavailable in this environment: %v", err)
	}

	// Second join is a no-op.
	assert.NoError(t, tr.Join(group))

	assert.NoError(t, tr.Leave(group))
	// Leaving again is a no-op, not an error.
	assert.NoError(t, tr.Leave(group))
}

func TestLeaveNeverJoinedIsNoOp(t *testing.T) {
	tr := newLoopbackTransport(t)
	assert.NoError(t, tr.Leave("239.255.42.99:5004"))
}

func TestSendResolveFailure(t *testing.T) {
	tr := newLoopbackTransport(t)

	err := tr.Send("definitely not an address", []byte{1})
	var connectErr *ConnectError
	require.True(t, errors.As(err, &connectErr))
	assert.Equal(t, "send", connectErr.Op)
}
