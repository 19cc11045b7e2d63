// Package jitter implements the per-source adaptive jitter buffer.
//
// Each transmitting source on a channel gets its own Buffer, keyed by source
// id, managed by a Manager. A Buffer reorders arriving audio packets by their
// 16-bit wrap-around sequence number, estimates network jitter with the
// RFC 3550 exponential moving average, and adapts its playout depth to trade
// latency against loss under changing mesh conditions.
//
// A Buffer moves through three lifecycle states: it starts in buffering
// (filling to the target depth, emitting nothing), moves to steady (normal
// reorder and playout) once filled, and ends in draining (flushing what is
// left during teardown).
//
// Loss, lateness, duplication and reordering are counted outcomes, never
// errors: on a lossy half-duplex radio channel they are the normal case, and
// the playout path must keep moving through all of them.
package jitter
