package floor

import (
	"errors"
	"time"
)

// State is the local floor ownership state. All transitions happen through
// atomic compare-and-set operations on a single word.
type State int32

const (
	// StateIdle means this endpoint neither holds nor seeks the floor.
	StateIdle State = iota
	// StateRequesting means a RequestFloor call is in flight.
	StateRequesting
	// StateGranted means this endpoint may transmit.
	StateGranted
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequesting:
		return "requesting"
	case StateGranted:
		return "granted"
	default:
		return "unknown"
	}
}

// EventType classifies floor notifications delivered to the event callback.
type EventType int

const (
	// EventGranted fires when this endpoint acquires the floor.
	EventGranted EventType = iota
	// EventDenied fires when a request is refused by a peer.
	EventDenied
	// EventTaken fires when a remote peer becomes the current speaker.
	EventTaken
	// EventReleased fires when the current speaker gives up the floor or
	// goes silent past the liveness timeout.
	EventReleased
	// EventDegraded fires when a request exhausted its retries with no
	// response from any peer and the floor was claimed locally as a
	// partition fallback.
	EventDegraded
)

// String returns a human-readable event type name.
func (t EventType) String() string {
	switch t {
	case EventGranted:
		return "granted"
	case EventDenied:
		return "denied"
	case EventTaken:
		return "taken"
	case EventReleased:
		return "released"
	case EventDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// Event is one floor notification. Each logical event is delivered at most
// once.
type Event struct {
	Type   EventType
	Peer   uint32
	Reason string
}

// EventFunc receives floor events. It is invoked synchronously from the
// arbiter and must not block.
type EventFunc func(Event)

// Request outcomes.
var (
	// ErrDenied means a peer refused the request because the floor is busy.
	ErrDenied = errors.New("floor: denied, channel busy")
	// ErrRequestPending means RequestFloor was called while another request
	// from this endpoint is still in flight.
	ErrRequestPending = errors.New("floor: request already in progress")
	// ErrPreempted means the request lost the floor to an emergency claim
	// while resolving.
	ErrPreempted = errors.New("floor: preempted")
)

// Config carries arbitration protocol tuning.
type Config struct {
	// Group is the multicast destination for control messages.
	Group string

	// BackoffBase is the first response wait; it doubles per attempt up to
	// BackoffCap.
	BackoffBase time.Duration
	BackoffCap  time.Duration

	// MaxAttempts bounds the total retry budget of one request.
	MaxAttempts int

	// HeartbeatInterval spaces the liveness beacons.
	HeartbeatInterval time.Duration

	// PeerTimeout evicts peers silent this long from the active view.
	PeerTimeout time.Duration

	// DedupWindow bounds how far forward a sender's sequence may jump and
	// still be accepted.
	DedupWindow uint32

	// EmergencyRepeat is how many times an emergency claim is broadcast in
	// quick succession. Redundancy substitutes for acknowledgment.
	EmergencyRepeat int
}

// DefaultConfig returns the field-tested protocol tuning.
func DefaultConfig() Config {
	return Config{
		BackoffBase:       200 * time.Millisecond,
		BackoffCap:        1600 * time.Millisecond,
		MaxAttempts:       4,
		HeartbeatInterval: 2 * time.Second,
		PeerTimeout:       10 * time.Second,
		DedupWindow:       1024,
		EmergencyRepeat:   3,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.BackoffBase <= 0 {
		c.BackoffBase = def.BackoffBase
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = def.BackoffCap
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = def.HeartbeatInterval
	}
	if c.PeerTimeout <= 0 {
		c.PeerTimeout = def.PeerTimeout
	}
	if c.DedupWindow == 0 {
		c.DedupWindow = def.DedupWindow
	}
	if c.EmergencyRepeat <= 0 {
		c.EmergencyRepeat = def.EmergencyRepeat
	}
	return c
}

// Sender is the transmit half of the transport the arbiter is given. It is
// satisfied by transport.Transport.
type Sender interface {
	Send(group string, data []byte) error
}
