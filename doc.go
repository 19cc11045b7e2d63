// Package meshwave implements the transport core of a half-duplex
// push-to-talk voice channel running over a lossy multicast mesh.
//
// A Channel ties the subsystems together: the packet and control codec
// (package wire), the multicast transport with QoS marking (package
// transport), per-source adaptive jitter buffering (package jitter), and
// distributed floor arbitration (package floor). Audio capture, playback
// and codec bit streams stay outside the library: callers hand Transmit
// opaque encoded frames and drain playout candidates with PollAudio.
//
// # Getting Started
//
// Create a Channel with options, start it, and run the push-to-talk cycle:
//
//	options := meshwave.NewOptions()
//	options.Group = "239.255.0.1"
//
//	ch, err := meshwave.New(options)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	ch.Start()
//	defer ch.Stop()
//
//	// Key down: ask the group for the floor, then transmit frames.
//	if err := ch.RequestFloor(ctx, wire.PriorityNormal); err == nil {
//	    for frame := range encodedFrames {
//	        ch.Transmit(frame)
//	    }
//	    ch.ReleaseFloor()
//	}
//
// On the receive side, poll each active source at the frame cadence:
//
//	for _, src := range ch.Sources() {
//	    pkt, res := ch.PollAudio(src)
//	    if res == jitter.PollOK {
//	        playback(pkt.Payload)
//	    }
//	}
//
// # Floor Events
//
// Remote floor activity (grants, denials, another endpoint keying up,
// emergency preemption, degraded-network fallback) is delivered through a
// callback registered before Start:
//
//	ch.OnFloorEvent(func(ev floor.Event) {
//	    fmt.Printf("floor: %s peer=%d\n", ev.Type, ev.Peer)
//	})
//
// # Thread Safety
//
// The Channel is safe for concurrent use. The receive and housekeeping
// loops run in their own goroutines, Transmit serializes senders, and
// statistics snapshots never block the packet paths.
package meshwave
