package meshwave

import (
	"time"

	"github.com/opd-ai/meshwave/floor"
	"github.com/opd-ai/meshwave/jitter"
	"github.com/opd-ai/meshwave/transport"
	"github.com/opd-ai/meshwave/wire"
)

// Options configures a Channel.
type Options struct {
	// Group is the multicast group address the channel operates on.
	Group string

	// Port is the UDP port for both sending and receiving.
	Port uint16

	// Interface optionally names the network interface for group
	// membership. Empty means the system default.
	Interface string

	// DSCP marks outbound voice datagrams. Defaults to Expedited
	// Forwarding so mesh radios can prioritize voice.
	DSCP int

	// MulticastTTL bounds how many mesh hops a datagram may travel.
	MulticastTTL int

	// PayloadType is the RTP payload type stamped on outgoing audio.
	PayloadType uint8

	// ClockRate is the audio timestamp clock in Hz and FrameDuration the
	// nominal frame spacing; together they fix the per-frame timestamp
	// increment.
	ClockRate     uint32
	FrameDuration time.Duration

	// SSRC identifies this endpoint on the wire. Zero means generate a
	// random non-zero value at startup. The same id is used as the floor
	// endpoint id.
	SSRC uint32

	// ReceiveTimeout bounds each blocking read in the receive loop so
	// shutdown is prompt.
	ReceiveTimeout time.Duration

	// AdaptInterval is how often buffer depths are re-evaluated.
	AdaptInterval time.Duration

	// Jitter and Floor tune the subsystems. Zero fields take package
	// defaults.
	Jitter jitter.Config
	Floor  floor.Config

	// Conceal, when set, is invoked from PollAudio whenever a sequence
	// gap is skipped so the audio path can synthesize fill.
	Conceal jitter.SourceConcealFunc
}

// NewOptions returns options tuned for 20 ms narrow-band voice frames on a
// single-hop mesh segment.
func NewOptions() *Options {
	return &Options{
		Group:          "239.255.0.1",
		Port:           5004,
		DSCP:           transport.DSCPExpedited,
		MulticastTTL:   1,
		PayloadType:    wire.PayloadTypeOpus,
		ClockRate:      16000,
		FrameDuration:  20 * time.Millisecond,
		ReceiveTimeout: 100 * time.Millisecond,
		AdaptInterval:  time.Second,
		Jitter:         jitter.DefaultConfig(),
		Floor:          floor.DefaultConfig(),
	}
}
