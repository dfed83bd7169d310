// Package metrics exposes the hub's runtime counters as Prometheus
// metrics.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Grounded on the DMRHub example's internal/metrics/prometheus.go
// (a struct of CounterVec/Gauge fields built in one constructor and
// registered once), narrowed to the overlay hub's own countable events:
// drop reasons, connection/guest occupancy, and routing decisions.
// The teacher's own control/metrics.go was a generic string-keyed
// any-value map with no export format; this package keeps that file's
// role (a runtime counters registry) but gives it a real metrics backend
// instead of reinventing one.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collector holds every metric the hub publishes.
type Collector struct {
	Drops       *prometheus.CounterVec
	Connections prometheus.Gauge
	Guests      prometheus.Gauge
	Routed      *prometheus.CounterVec
}

// NewCollector builds and registers a Collector against reg. Pass
// prometheus.NewRegistry() for an isolated registry (tests) or
// prometheus.DefaultRegisterer for the process-wide default.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		Drops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hub_frame_drops_total",
			Help: "Frames dropped by the message pipeline, by reason.",
		}, []string{"reason"}),
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hub_connections",
			Help: "Currently registered connections (guests plus authenticated peers).",
		}),
		Guests: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hub_guest_connections",
			Help: "Currently occupied guest-ring slots awaiting authentication.",
		}),
		Routed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hub_frames_routed_total",
			Help: "Frames routed by the message pipeline, by decision.",
		}, []string{"decision"}),
	}
	reg.MustRegister(c.Drops, c.Connections, c.Guests, c.Routed)
	return c
}
