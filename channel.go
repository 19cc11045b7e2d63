package meshwave

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/meshwave/floor"
	"github.com/opd-ai/meshwave/jitter"
	"github.com/opd-ai/meshwave/transport"
	"github.com/opd-ai/meshwave/wire"
)

// ErrNotRunning is returned by operations that need the channel loops.
var ErrNotRunning = errors.New("meshwave: channel not started")

// Channel is a push-to-talk voice channel endpoint.
//
// It owns the multicast socket, dispatches inbound datagrams by message
// class (audio packets to the jitter buffers, control frames to the floor
// arbiter), and drives the outbound packetizer. One Channel per multicast
// group per process.
type Channel struct {
	opts  *Options
	group string
	ssrc  uint32
	log   *logrus.Entry

	transport *transport.UDPMulticast
	buffers   *jitter.Manager
	arbiter   *floor.Arbiter

	txMu          sync.Mutex
	sequence      uint16
	timestamp     uint32
	markerPending bool

	audioReceived  atomic.Uint64
	decodeFailures atomic.Uint64

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a Channel, binds the multicast socket and joins the group.
// The channel is idle until Start.
func New(options *Options) (*Channel, error) {
	if options == nil {
		options = NewOptions()
	}
	if options.ReceiveTimeout <= 0 {
		options.ReceiveTimeout = 100 * time.Millisecond
	}
	if options.AdaptInterval <= 0 {
		options.AdaptInterval = time.Second
	}

	ip := net.ParseIP(options.Group)
	if ip == nil || !ip.IsMulticast() {
		return nil, fmt.Errorf("meshwave: %q is not a multicast group address", options.Group)
	}
	group := net.JoinHostPort(options.Group, strconv.Itoa(int(options.Port)))

	tr, err := transport.NewUDPMulticast(transport.Config{
		ListenAddr:   ":" + strconv.Itoa(int(options.Port)),
		DSCP:         options.DSCP,
		Interface:    options.Interface,
		MulticastTTL: options.MulticastTTL,
	})
	if err != nil {
		return nil, err
	}
	if err := tr.Join(group); err != nil {
		tr.Close()
		return nil, err
	}

	ssrc := options.SSRC
	if ssrc == 0 {
		if ssrc, err = generateSSRC(); err != nil {
			tr.Close()
			return nil, err
		}
	}

	floorCfg := options.Floor
	floorCfg.Group = group

	ctx, cancel := context.WithCancel(context.Background())

	c := &Channel{
		opts:          options,
		group:         group,
		ssrc:          ssrc,
		log:           logrus.WithFields(logrus.Fields{"group": group, "ssrc": ssrc}),
		transport:     tr,
		arbiter:       floor.New(ssrc, tr, floorCfg),
		markerPending: true,
		ctx:           ctx,
		cancel:        cancel,
	}
	c.buffers = jitter.NewManager(options.Jitter, options.Conceal)

	// Random starting points make sequence and timestamp collisions with a
	// restarted endpoint unlikely.
	var seed [6]byte
	if _, err := rand.Read(seed[:]); err != nil {
		tr.Close()
		cancel()
		return nil, fmt.Errorf("meshwave: seeding transmit state: %w", err)
	}
	c.sequence = binary.BigEndian.Uint16(seed[0:2])
	c.timestamp = binary.BigEndian.Uint32(seed[2:6])

	c.log.Info("Channel created")
	return c, nil
}

// generateSSRC draws a random non-zero synchronization source id.
func generateSSRC() (uint32, error) {
	var b [4]byte
	for {
		if _, err := rand.Read(b[:]); err != nil {
			return 0, fmt.Errorf("meshwave: generating ssrc: %w", err)
		}
		if v := binary.BigEndian.Uint32(b[:]); v != 0 {
			return v, nil
		}
	}
}

// Start launches the receive and housekeeping loops and the floor
// arbiter's heartbeats. Calling Start twice is a no-op.
func (c *Channel) Start() {
	if !c.running.CompareAndSwap(false, true) {
		return
	}
	c.arbiter.Start()
	c.wg.Add(2)
	go c.receiveLoop()
	go c.housekeepingLoop()
	c.log.Info("Channel started")
}

// Stop terminates the loops, releases the floor if held, and closes the
// socket. The Channel cannot be restarted.
func (c *Channel) Stop() {
	if !c.running.CompareAndSwap(true, false) {
		return
	}
	c.arbiter.ReleaseFloor()
	c.cancel()
	c.wg.Wait()
	c.arbiter.Stop()
	if err := c.transport.Close(); err != nil {
		c.log.WithError(err).Warn("Error closing transport")
	}
	c.log.Info("Channel stopped")
}

// SSRC returns this endpoint's synchronization source id.
func (c *Channel) SSRC() uint32 {
	return c.ssrc
}

// receiveLoop drains the socket and dispatches by message class.
func (c *Channel) receiveLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		data, _, err := c.transport.Receive(c.opts.ReceiveTimeout)
		if err != nil {
			if errors.Is(err, transport.ErrNoData) {
				continue
			}
			if c.ctx.Err() != nil {
				return
			}
			c.log.WithError(err).Error("Receive loop terminated")
			return
		}
		c.dispatch(data)
	}
}

// dispatch classifies one datagram. The RTP version bits make every audio
// packet's first byte >= 0x80; control type codes stay below it.
func (c *Channel) dispatch(data []byte) {
	if wire.IsAudio(data) {
		pkt, err := wire.ParsePacket(data)
		if err != nil {
			c.decodeFailures.Add(1)
			return
		}
		if pkt.SSRC == c.ssrc {
			// Multicast loops our own transmissions back.
			return
		}
		c.audioReceived.Add(1)
		c.buffers.Put(pkt)
		return
	}

	msg, err := wire.ParseControlMessage(data)
	if err != nil {
		c.decodeFailures.Add(1)
		return
	}
	c.arbiter.HandleMessage(msg)
}

// housekeepingLoop re-evaluates jitter buffer depths at a slow cadence.
func (c *Channel) housekeepingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.opts.AdaptInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.buffers.AdaptAll()
		}
	}
}

// PollAudio returns the next playout candidate from the given source's
// jitter buffer. Callers poll at the frame cadence.
func (c *Channel) PollAudio(source uint32) (*wire.Packet, jitter.PollResult) {
	return c.buffers.Poll(source)
}

// Sources lists the remote sources currently holding a jitter buffer.
func (c *Channel) Sources() []uint32 {
	return c.buffers.Sources()
}

// ResetSource flushes one source's jitter buffer, keeping its counters.
func (c *Channel) ResetSource(source uint32) {
	c.buffers.Reset(source)
}

// RequestFloor asks the group for permission to transmit. On success the
// next Transmit starts a new talkspurt.
func (c *Channel) RequestFloor(ctx context.Context, priority wire.Priority) error {
	if !c.running.Load() {
		return ErrNotRunning
	}
	if err := c.arbiter.RequestFloor(ctx, priority); err != nil {
		return err
	}
	c.beginTalkspurt()
	return nil
}

// ReleaseFloor gives the floor back. A no-op when not held.
func (c *Channel) ReleaseFloor() {
	c.arbiter.ReleaseFloor()
}

// SendEmergency claims the floor unconditionally and never blocks.
func (c *Channel) SendEmergency() {
	c.arbiter.SendEmergency()
	c.beginTalkspurt()
}

// HasFloor reports whether this endpoint may transmit right now.
func (c *Channel) HasFloor() bool {
	return c.arbiter.HasFloor()
}

// FloorState returns the local floor arbitration state.
func (c *Channel) FloorState() floor.State {
	return c.arbiter.State()
}

// CurrentSpeaker returns the tracked remote speaker, if any.
func (c *Channel) CurrentSpeaker() (uint32, bool) {
	return c.arbiter.CurrentSpeaker()
}

// ActivePeers lists peers heard from within the liveness window.
func (c *Channel) ActivePeers() []uint32 {
	return c.arbiter.ActivePeers()
}

// OnFloorEvent registers the floor event callback. Call before Start. The
// callback runs on the receive path and must not block.
func (c *Channel) OnFloorEvent(f floor.EventFunc) {
	c.arbiter.OnEvent(f)
}

func (c *Channel) beginTalkspurt() {
	c.txMu.Lock()
	c.markerPending = true
	c.txMu.Unlock()
}

// Stats is a point-in-time snapshot of channel activity.
type Stats struct {
	PacketsSent     uint64
	PacketsReceived uint64
	AudioReceived   uint64
	DecodeFailures  uint64
	FloorState      floor.State
	ActivePeers     int
	Sources         map[uint32]jitter.Stats
}

// Snapshot gathers statistics without blocking the packet paths.
func (c *Channel) Snapshot() Stats {
	sent, received := c.transport.Stats()
	return Stats{
		PacketsSent:     sent,
		PacketsReceived: received,
		AudioReceived:   c.audioReceived.Load(),
		DecodeFailures:  c.decodeFailures.Load(),
		FloorState:      c.arbiter.State(),
		ActivePeers:     len(c.arbiter.ActivePeers()),
		Sources:         c.buffers.Snapshot(),
	}
}
