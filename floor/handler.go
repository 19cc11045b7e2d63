package floor

import (
	"time"

	"github.com/opd-ai/meshwave/wire"
)

// HandleMessage processes one inbound control message. The transport
// receive loop calls it for every datagram classified as control traffic.
// Messages from this endpoint itself are dropped (multicast loops our own
// broadcasts back).
func (a *Arbiter) HandleMessage(msg *wire.ControlMessage) {
	if msg == nil || msg.Sender == a.selfID {
		return
	}

	if !a.admit(msg) {
		a.log.WithField("peer", msg.Sender).Debug("Duplicate control message dropped")
		return
	}

	switch msg.Type {
	case wire.MessageFloorRequest:
		a.handleRequest(msg)
	case wire.MessageFloorGranted, wire.MessageFloorDenied:
		a.resolvePending(msg)
	case wire.MessageFloorTaken:
		a.handleTaken(msg)
	case wire.MessageFloorReleased:
		a.handleReleased(msg)
	case wire.MessageEmergency:
		a.handleEmergency(msg)
	case wire.MessageHeartbeat:
		// Liveness refresh happened in admit; nothing else to do.
	}
}

// admit refreshes peer liveness and applies per-sender duplicate
// suppression. Request retries reuse their sequence number on purpose, and
// Granted/Denied echo the request's sequence rather than advancing the
// responder's own counter, so those three types bypass the window check.
func (a *Arbiter) admit(msg *wire.ControlMessage) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.lastHeard[msg.Sender] = time.Now()

	switch msg.Type {
	case wire.MessageFloorRequest, wire.MessageFloorGranted, wire.MessageFloorDenied:
		return true
	}

	last, seen := a.lastSeq[msg.Sender]
	if seen {
		d := wire.SignedSeqDiff32(msg.Sequence, last)
		if d <= 0 || d > int64(a.cfg.DedupWindow) {
			return false
		}
	}
	a.lastSeq[msg.Sender] = msg.Sequence
	return true
}

// handleRequest answers a remote floor request. Every request gets exactly
// one Granted or Denied back, with the request's sequence echoed.
func (a *Arbiter) handleRequest(msg *wire.ControlMessage) {
	if msg.Priority == wire.PriorityEmergency {
		// Emergency requests are never refused. Yield whatever we hold.
		prev := State(a.state.Swap(int32(StateIdle)))
		a.abortPending(msg.Sender)
		a.setSpeaker(msg.Sender)
		a.respond(msg, wire.MessageFloorGranted)
		if prev == StateGranted {
			a.emit(Event{Type: EventTaken, Peer: msg.Sender, Reason: "emergency preemption"})
		}
		return
	}

	switch a.State() {
	case StateGranted:
		a.respond(msg, wire.MessageFloorDenied)

	case StateRequesting:
		// Both sides are contending. Deterministic tie-break: the lower
		// endpoint id wins, so exactly one side yields.
		if msg.Sender < a.selfID &&
			a.state.CompareAndSwap(int32(StateRequesting), int32(StateIdle)) {
			a.abortPending(msg.Sender)
			a.setSpeaker(msg.Sender)
			a.respond(msg, wire.MessageFloorGranted)
		} else {
			a.respond(msg, wire.MessageFloorDenied)
		}

	default:
		a.setSpeaker(msg.Sender)
		a.respond(msg, wire.MessageFloorGranted)
	}
}

// resolvePending hands a Granted/Denied response to the request goroutine
// waiting on the echoed sequence. Responses with no waiter (late answers,
// answers to an aborted request) are dropped.
func (a *Arbiter) resolvePending(msg *wire.ControlMessage) {
	a.mu.Lock()
	ch, ok := a.pending[msg.Sequence]
	if ok {
		delete(a.pending, msg.Sequence)
	}
	a.mu.Unlock()

	if ok {
		ch <- msg
	}
}

// abortPending injects a synthetic denial into every outstanding request so
// its goroutine unblocks immediately instead of burning its retry budget.
func (a *Arbiter) abortPending(winner uint32) {
	a.mu.Lock()
	aborted := a.pending
	a.pending = make(map[uint32]chan *wire.ControlMessage)
	a.mu.Unlock()

	for seq, ch := range aborted {
		ch <- &wire.ControlMessage{
			Type:     wire.MessageFloorDenied,
			Sequence: seq,
			Sender:   winner,
		}
	}
}

func (a *Arbiter) handleTaken(msg *wire.ControlMessage) {
	a.setSpeaker(msg.Sender)
	a.emit(Event{Type: EventTaken, Peer: msg.Sender})
}

func (a *Arbiter) handleReleased(msg *wire.ControlMessage) {
	a.mu.Lock()
	wasSpeaker := a.hasSpeaker && a.speaker == msg.Sender
	if wasSpeaker {
		a.hasSpeaker = false
	}
	a.mu.Unlock()

	if wasSpeaker {
		a.emit(Event{Type: EventReleased, Peer: msg.Sender})
	}
}

// handleEmergency yields the floor to the claiming peer no matter what.
func (a *Arbiter) handleEmergency(msg *wire.ControlMessage) {
	a.state.Store(int32(StateIdle))
	a.abortPending(msg.Sender)
	a.setSpeaker(msg.Sender)
	a.log.WithField("peer", msg.Sender).Warn("Emergency claim received, yielding floor")
	a.emit(Event{Type: EventTaken, Peer: msg.Sender, Reason: "emergency"})
}

func (a *Arbiter) setSpeaker(peer uint32) {
	a.mu.Lock()
	a.speaker = peer
	a.hasSpeaker = true
	a.mu.Unlock()
}

// respond echoes the request's sequence back so the requester can correlate.
func (a *Arbiter) respond(req *wire.ControlMessage, t wire.MessageType) {
	a.broadcast(&wire.ControlMessage{
		Type:     t,
		Priority: req.Priority,
		Sequence: req.Sequence,
		Sender:   a.selfID,
	})
}
