package floor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/meshwave/wire"
)

// Arbiter is one endpoint's view of the floor protocol.
//
// The receive path (HandleMessage), the housekeeping loop, and arbitrary
// caller goroutines all mutate it concurrently. Floor ownership lives in a
// single atomic word; everything else (pending requests, dedup and liveness
// tables, the tracked remote speaker) sits behind one short-held mutex.
type Arbiter struct {
	cfg    Config
	selfID uint32
	sender Sender
	log    *logrus.Entry

	state    atomic.Int32
	localSeq atomic.Uint32

	mu         sync.Mutex
	pending    map[uint32]chan *wire.ControlMessage
	lastSeq    map[uint32]uint32
	lastHeard  map[uint32]time.Time
	speaker    uint32
	hasSpeaker bool
	event      EventFunc

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an arbiter for one endpoint. The sender is the transport
// handle the arbiter broadcasts on; it is owned by the caller.
func New(selfID uint32, sender Sender, cfg Config) *Arbiter {
	ctx, cancel := context.WithCancel(context.Background())

	return &Arbiter{
		cfg:       cfg.withDefaults(),
		selfID:    selfID,
		sender:    sender,
		log:       logrus.WithField("endpoint", selfID),
		pending:   make(map[uint32]chan *wire.ControlMessage),
		lastSeq:   make(map[uint32]uint32),
		lastHeard: make(map[uint32]time.Time),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// OnEvent registers the floor event callback. Call before Start.
func (a *Arbiter) OnEvent(f EventFunc) {
	a.mu.Lock()
	a.event = f
	a.mu.Unlock()
}

// Start launches the housekeeping loop (heartbeats and liveness sweeps).
func (a *Arbiter) Start() {
	a.wg.Add(1)
	go a.runHousekeeping()
}

// Stop terminates housekeeping and waits for it to exit.
func (a *Arbiter) Stop() {
	a.cancel()
	a.wg.Wait()
}

// State returns the current local ownership state.
func (a *Arbiter) State() State {
	return State(a.state.Load())
}

// HasFloor reports whether this endpoint currently holds the floor.
func (a *Arbiter) HasFloor() bool {
	return a.State() == StateGranted
}

// CurrentSpeaker returns the tracked remote speaker, if any.
func (a *Arbiter) CurrentSpeaker() (uint32, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.speaker, a.hasSpeaker
}

// RequestFloor asks the group for permission to transmit.
//
// It blocks until a peer answers, the retry budget runs out, or ctx is
// cancelled. Already holding the floor succeeds immediately. Exhausting all
// attempts without any correlated response is treated as a suspected
// partition, not a denial: the floor is claimed locally so the operator can
// still talk, and an EventDegraded is raised.
func (a *Arbiter) RequestFloor(ctx context.Context, priority wire.Priority) error {
	if a.HasFloor() {
		return nil
	}
	if !a.state.CompareAndSwap(int32(StateIdle), int32(StateRequesting)) {
		// A remote grant may have landed between the check and the swap.
		if a.HasFloor() {
			return nil
		}
		return ErrRequestPending
	}

	seq := a.localSeq.Add(1)
	respCh := make(chan *wire.ControlMessage, 1)
	a.mu.Lock()
	a.pending[seq] = respCh
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		delete(a.pending, seq)
		a.mu.Unlock()
	}()

	delay := a.cfg.BackoffBase
	for attempt := 1; attempt <= a.cfg.MaxAttempts; attempt++ {
		a.broadcast(&wire.ControlMessage{
			Type:     wire.MessageFloorRequest,
			Priority: priority,
			Sequence: seq,
			Sender:   a.selfID,
		})

		timer := time.NewTimer(delay)
		select {
		case resp := <-respCh:
			timer.Stop()
			return a.finishRequest(resp)

		case <-ctx.Done():
			timer.Stop()
			a.state.CompareAndSwap(int32(StateRequesting), int32(StateIdle))
			return ctx.Err()

		case <-timer.C:
			delay *= 2
			if delay > a.cfg.BackoffCap {
				delay = a.cfg.BackoffCap
			}
		}
	}

	// No peer answered anything. Suspected partition: degrade rather than
	// fail, and say so.
	if a.state.CompareAndSwap(int32(StateRequesting), int32(StateGranted)) {
		a.log.WithField("attempts", a.cfg.MaxAttempts).
			Warn("No response from any peer, claiming floor in degraded mode")
		a.emit(Event{Type: EventDegraded, Reason: "no response from any peer"})
		a.broadcast(a.controlMessage(wire.MessageFloorTaken, wire.PriorityNormal))
		a.emit(Event{Type: EventGranted, Peer: a.selfID})
		return nil
	}
	if a.HasFloor() {
		return nil
	}
	return ErrPreempted
}

// finishRequest resolves a correlated response into the final request state.
func (a *Arbiter) finishRequest(resp *wire.ControlMessage) error {
	if resp.Type == wire.MessageFloorGranted {
		if a.state.CompareAndSwap(int32(StateRequesting), int32(StateGranted)) {
			a.broadcast(a.controlMessage(wire.MessageFloorTaken, wire.PriorityNormal))
			a.emit(Event{Type: EventGranted, Peer: resp.Sender})
			return nil
		}
		// An emergency swept the state out from under us.
		if a.HasFloor() {
			return nil
		}
		return ErrPreempted
	}

	a.state.CompareAndSwap(int32(StateRequesting), int32(StateIdle))
	a.emit(Event{Type: EventDenied, Peer: resp.Sender, Reason: "channel busy"})
	return ErrDenied
}

// ReleaseFloor gives up the floor. Releasing a floor that is not held is a
// no-op: no message, no event, no error. The release notice is broadcast
// best effort and never retried.
func (a *Arbiter) ReleaseFloor() {
	if !a.state.CompareAndSwap(int32(StateGranted), int32(StateIdle)) {
		return
	}
	a.broadcast(a.controlMessage(wire.MessageFloorReleased, wire.PriorityNormal))
	a.log.Debug("Floor released")
}

// SendEmergency claims the floor unconditionally, whatever the prior state,
// and broadcasts the claim several times in quick succession; on a lossy
// link, repetition substitutes for acknowledgment. It never blocks.
func (a *Arbiter) SendEmergency() {
	a.state.Store(int32(StateGranted))

	msg := a.controlMessage(wire.MessageEmergency, wire.PriorityEmergency)
	for i := 0; i < a.cfg.EmergencyRepeat; i++ {
		a.broadcast(msg)
	}

	a.log.Warn("Emergency floor claim broadcast")
	a.emit(Event{Type: EventGranted, Peer: a.selfID})
}

// controlMessage builds an outbound message with a fresh local sequence.
func (a *Arbiter) controlMessage(t wire.MessageType, p wire.Priority) *wire.ControlMessage {
	return &wire.ControlMessage{
		Type:     t,
		Priority: p,
		Sequence: a.localSeq.Add(1),
		Sender:   a.selfID,
	}
}

// broadcast sends one control message to the group, best effort.
func (a *Arbiter) broadcast(msg *wire.ControlMessage) {
	data, err := msg.Serialize()
	if err != nil {
		a.log.WithError(err).Error("Failed to serialize control message")
		return
	}
	if err := a.sender.Send(a.cfg.Group, data); err != nil {
		a.log.WithFields(logrus.Fields{
			"type":  msg.Type.String(),
			"error": err.Error(),
		}).Debug("Control broadcast failed")
	}
}

// emit delivers one event to the registered callback, at most once per
// logical event. The callback runs synchronously; it must not block.
func (a *Arbiter) emit(ev Event) {
	a.mu.Lock()
	f := a.event
	a.mu.Unlock()
	if f != nil {
		f(ev)
	}
}
