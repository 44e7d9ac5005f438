// Package metrics registers the fleet's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Edge side.
	EnvelopesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scm_envelopes_received_total",
		Help: "Envelopes accepted on the local ingress socket.",
	})
	EvidenceWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scm_evidence_written_total",
		Help: "Evidence pairs written after deduplication.",
	})
	EvidenceUploaded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scm_evidence_uploaded_total",
		Help: "Evidence pairs shipped and marked uploaded.",
	})
	SupervisorRestarts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scm_supervisor_restarts_total",
		Help: "Inference engine start attempts.",
	})

	// Server side.
	EvidenceIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scm_evidence_ingested_total",
		Help: "Evidence records accepted by the intake endpoint.",
	})
	WebsocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "scm_websocket_clients",
		Help: "Currently registered operator sockets.",
	})
	BroadcastsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scm_broadcasts_dropped_total",
		Help: "Clients dropped because their send buffer saturated.",
	})
	ProcessorsLive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "scm_processors_live",
		Help: "Processors with an unexpired liveness lease.",
	})
	PushSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scm_push_sent_total",
		Help: "Push notifications dispatched to the provider.",
	})
	SubscribersPruned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scm_subscribers_pruned_total",
		Help: "Subscriber records deleted after terminal delivery errors.",
	})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
