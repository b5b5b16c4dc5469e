// Package telemetry exposes the relay's operational counters.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "collab",
		Name:      "connections_active",
		Help:      "Live websocket connections.",
	})

	RoomsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "collab",
		Name:      "rooms_active",
		Help:      "Rooms with at least one connected client.",
	})

	MessagesRelayed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "collab",
		Name:      "messages_relayed_total",
		Help:      "Messages fanned out to room members, by type.",
	}, []string{"type"})

	MessagesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "collab",
		Name:      "messages_dropped_total",
		Help:      "Outbound frames dropped because a client fell behind.",
	})

	DecodeErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "collab",
		Name:      "decode_errors_total",
		Help:      "Inbound frames that failed to decode.",
	})

	AdmissionFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "collab",
		Name:      "admission_failures_total",
		Help:      "Connections refused at the gateway, by reason.",
	}, []string{"reason"})

	StoreFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "collab",
		Name:      "store_failures_total",
		Help:      "Storage collaborator calls that returned an error.",
	})
)

// Handler serves the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
