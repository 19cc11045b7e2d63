package meshwave

import (
	"errors"
	"fmt"

	"github.com/pion/rtp"

	"github.com/opd-ai/meshwave/wire"
)

// ErrNoFloor is returned by Transmit when this endpoint does not hold the
// floor. Half-duplex discipline is enforced at the transmit path, not just
// at the UI.
var ErrNoFloor = errors.New("meshwave: transmitting requires the floor")

// Transmit packetizes one encoded audio frame and sends it to the group.
//
// The first frame after a floor grant carries the RTP marker bit so
// receivers can detect the talkspurt boundary. The timestamp advances by
// the frame's sample count whether or not the send succeeds; a dropped
// frame must still occupy its slot of media time.
func (c *Channel) Transmit(frame []byte) error {
	if !c.running.Load() {
		return ErrNotRunning
	}
	if !c.arbiter.HasFloor() {
		return ErrNoFloor
	}
	if len(frame) > wire.MaxPayloadSize {
		return fmt.Errorf("meshwave: frame of %d bytes exceeds %d byte payload limit",
			len(frame), wire.MaxPayloadSize)
	}

	samplesPerFrame := uint32(uint64(c.opts.ClockRate) * uint64(c.opts.FrameDuration.Microseconds()) / 1e6)

	c.txMu.Lock()
	pkt := rtp.Packet{
		Header: rtp.Header{
			Version:        wire.ProtocolVersion,
			Marker:         c.markerPending,
			PayloadType:    c.opts.PayloadType,
			SequenceNumber: c.sequence,
			Timestamp:      c.timestamp,
			SSRC:           c.ssrc,
		},
		Payload: frame,
	}
	c.sequence++
	c.timestamp += samplesPerFrame
	c.markerPending = false
	c.txMu.Unlock()

	raw, err := pkt.Marshal()
	if err != nil {
		return fmt.Errorf("meshwave: packetizing frame: %w", err)
	}
	return c.transport.Send(c.group, raw)
}
