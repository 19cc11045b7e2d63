// Package metrics exposes channel statistics as Prometheus collectors.
//
// Values are refreshed from Channel snapshots rather than instrumented
// inline; the packet paths stay free of metrics calls.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opd-ai/meshwave"
)

// Metrics holds Prometheus gauges for one push-to-talk channel.
type Metrics struct {
	registry *prometheus.Registry

	packetsSent     prometheus.Gauge
	packetsReceived prometheus.Gauge
	audioReceived   prometheus.Gauge
	decodeFailures  prometheus.Gauge
	floorState      prometheus.Gauge
	activePeers     prometheus.Gauge

	bufferDepth    *prometheus.GaugeVec
	bufferJitter   *prometheus.GaugeVec
	bufferOccupied *prometheus.GaugeVec
	packetsLost    *prometheus.GaugeVec
	packetsLate    *prometheus.GaugeVec
	lossRate       *prometheus.GaugeVec
}

// New creates and registers the channel collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	sourceLabels := []string{"source"}

	m := &Metrics{
		registry: registry,
		packetsSent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ptt_packets_sent_total",
			Help: "Cumulative datagrams sent on the channel socket",
		}),
		packetsReceived: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ptt_packets_received_total",
			Help: "Cumulative datagrams received on the channel socket",
		}),
		audioReceived: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ptt_audio_packets_received_total",
			Help: "Cumulative remote audio packets accepted for buffering",
		}),
		decodeFailures: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ptt_decode_failures_total",
			Help: "Cumulative datagrams that failed packet or control decoding",
		}),
		floorState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ptt_floor_state",
			Help: "Local floor state (0 idle, 1 requesting, 2 granted)",
		}),
		activePeers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ptt_active_peers",
			Help: "Peers heard from within the liveness window",
		}),
		bufferDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ptt_jitter_buffer_depth_seconds",
			Help: "Adaptive playout depth per source",
		}, sourceLabels),
		bufferJitter: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ptt_jitter_estimate_seconds",
			Help: "Interarrival jitter estimate per source",
		}, sourceLabels),
		bufferOccupied: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ptt_jitter_buffer_packets",
			Help: "Packets currently buffered per source",
		}, sourceLabels),
		packetsLost: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ptt_packets_lost_total",
			Help: "Cumulative packets declared lost per source",
		}, sourceLabels),
		packetsLate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ptt_packets_late_total",
			Help: "Cumulative packets discarded as too late per source",
		}, sourceLabels),
		lossRate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ptt_loss_rate",
			Help: "Lost over played-plus-lost per source",
		}, sourceLabels),
	}

	registry.MustRegister(
		m.packetsSent,
		m.packetsReceived,
		m.audioReceived,
		m.decodeFailures,
		m.floorState,
		m.activePeers,
		m.bufferDepth,
		m.bufferJitter,
		m.bufferOccupied,
		m.packetsLost,
		m.packetsLate,
		m.lossRate,
	)

	return m
}

// Update refreshes every collector from one channel snapshot. Sources that
// disappeared since the last snapshot are reset so stale series don't
// linger across talkgroup changes.
func (m *Metrics) Update(snap meshwave.Stats) {
	m.packetsSent.Set(float64(snap.PacketsSent))
	m.packetsReceived.Set(float64(snap.PacketsReceived))
	m.audioReceived.Set(float64(snap.AudioReceived))
	m.decodeFailures.Set(float64(snap.DecodeFailures))
	m.floorState.Set(float64(snap.FloorState))
	m.activePeers.Set(float64(snap.ActivePeers))

	m.bufferDepth.Reset()
	m.bufferJitter.Reset()
	m.bufferOccupied.Reset()
	m.packetsLost.Reset()
	m.packetsLate.Reset()
	m.lossRate.Reset()

	for source, stats := range snap.Sources {
		label := strconv.FormatUint(uint64(source), 10)
		m.bufferDepth.WithLabelValues(label).Set(stats.Depth.Seconds())
		m.bufferJitter.WithLabelValues(label).Set(stats.Jitter.Seconds())
		m.bufferOccupied.WithLabelValues(label).Set(float64(stats.Buffered))
		m.packetsLost.WithLabelValues(label).Set(float64(stats.Lost))
		m.packetsLate.WithLabelValues(label).Set(float64(stats.Late))
		m.lossRate.WithLabelValues(label).Set(stats.LossRate())
	}
}

// Handler serves the registry over HTTP, refreshing from the channel
// before each scrape.
func (m *Metrics) Handler(ch *meshwave.Channel) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ch != nil {
			m.Update(ch.Snapshot())
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
