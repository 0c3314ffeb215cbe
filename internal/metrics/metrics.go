package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Relay traffic
	EventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "klepetalnica_events_published_total",
			Help: "Events published to the broker by channel category",
		},
		[]string{"category"},
	)

	EventsReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "klepetalnica_events_received_total",
			Help: "Events received from the broker by channel category",
		},
		[]string{"category"},
	)

	EventsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "klepetalnica_events_dropped_total",
			Help: "Events dropped on the relay path by reason",
		},
		[]string{"reason"},
	)

	LocalDeliveries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "klepetalnica_local_deliveries_total",
			Help: "Per-session local deliveries of relayed events",
		},
	)

	// Instance state
	SessionsConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "klepetalnica_sessions_connected",
			Help: "Sessions currently connected to this instance",
		},
	)

	RoomsPopulated = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "klepetalnica_rooms_populated",
			Help: "Rooms with at least one locally connected session",
		},
	)

	ChannelsSubscribed = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "klepetalnica_channels_subscribed",
			Help: "Room channels this instance is subscribed to at the broker",
		},
	)
)

// Register registers all metrics with the default registry. Call once
// at startup.
func Register() {
	prometheus.MustRegister(
		EventsPublished,
		EventsReceived,
		EventsDropped,
		LocalDeliveries,
		SessionsConnected,
		RoomsPopulated,
		ChannelsSubscribed,
	)
}

// Handler returns the HTTP handler for the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
