package jitter

import (
	"math"
	"time"
)

// Smoothing factors. The jitter EMA uses the RFC 3550 gain of 1/16; the
// deviation variance decays faster (1/8) so the adaptation margin reacts
// to bursts before the mean does.
const (
	jitterAlpha   = 1.0 / 16.0
	varianceBeta  = 1.0 / 8.0
)

// estimator tracks interarrival jitter for one source.
//
// On each packet it compares the interval the sender's timestamps promised
// against the interval actually measured on arrival, and folds the absolute
// deviation into an exponential moving average.
type estimator struct {
	clockRate uint32

	initialized   bool
	lastTimestamp uint32
	lastArrival   time.Time

	jitter   float64 // seconds
	variance float64 // seconds squared
}

// update folds one arrival into the estimate.
func (e *estimator) update(timestamp uint32, arrival time.Time) {
	if !e.initialized {
		e.initialized = true
		e.lastTimestamp = timestamp
		e.lastArrival = arrival
		return
	}

	// Timestamp delta is wrap-safe over the 32-bit space.
	tsDelta := int64(int32(timestamp - e.lastTimestamp))
	expected := float64(tsDelta) / float64(e.clockRate)
	actual := arrival.Sub(e.lastArrival).Seconds()

	deviation := math.Abs(actual - expected)
	e.jitter += (deviation - e.jitter) * jitterAlpha

	spread := deviation - e.jitter
	e.variance += (spread*spread - e.variance) * varianceBeta

	e.lastTimestamp = timestamp
	e.lastArrival = arrival
}

// target returns the playout depth suggested by the current estimate:
// twice the mean jitter plus one standard deviation of margin.
func (e *estimator) target() time.Duration {
	seconds := 2*e.jitter + math.Sqrt(e.variance)
	return time.Duration(seconds * float64(time.Second))
}

// jitterEstimate returns the current smoothed jitter.
func (e *estimator) jitterEstimate() time.Duration {
	return time.Duration(e.jitter * float64(time.Second))
}

func (e *estimator) reset() {
	*e = estimator{clockRate: e.clockRate}
}
