package floor

import (
	"time"

	"github.com/opd-ai/meshwave/wire"
)

// ActivePeers returns the ids of peers heard from within the liveness
// window, in no particular order.
func (a *Arbiter) ActivePeers() []uint32 {
	cutoff := time.Now().Add(-a.cfg.PeerTimeout)

	a.mu.Lock()
	defer a.mu.Unlock()

	peers := make([]uint32, 0, len(a.lastHeard))
	for id, at := range a.lastHeard {
		if at.After(cutoff) {
			peers = append(peers, id)
		}
	}
	return peers
}

// runHousekeeping broadcasts periodic heartbeats and sweeps out peers that
// have gone silent. A silent peer that was the tracked speaker is treated
// as having released the floor; a crashed speaker must not jam the channel
// forever.
func (a *Arbiter) runHousekeeping() {
	defer a.wg.Done()

	heartbeat := time.NewTicker(a.cfg.HeartbeatInterval)
	defer heartbeat.Stop()
	sweep := time.NewTicker(a.cfg.PeerTimeout / 2)
	defer sweep.Stop()

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-heartbeat.C:
			a.broadcast(a.controlMessage(wire.MessageHeartbeat, wire.PriorityNormal))
		case <-sweep.C:
			a.sweepPeers()
		}
	}
}

// sweepPeers evicts peers not heard from within the liveness window.
func (a *Arbiter) sweepPeers() {
	cutoff := time.Now().Add(-a.cfg.PeerTimeout)
	var lostSpeaker uint32
	found := false

	a.mu.Lock()
	for id, at := range a.lastHeard {
		if at.After(cutoff) {
			continue
		}
		delete(a.lastHeard, id)
		delete(a.lastSeq, id)
		if a.hasSpeaker && a.speaker == id {
			a.hasSpeaker = false
			lostSpeaker = id
			found = true
		}
	}
	a.mu.Unlock()

	if found {
		a.log.WithField("peer", lostSpeaker).Info("Speaker went silent, clearing floor")
		a.emit(Event{Type: EventReleased, Peer: lostSpeaker, Reason: "peer timeout"})
	}
}
