package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveConnections tracks the number of live charge point sessions.
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "csms_active_connections",
		Help: "The total number of active charge point WebSocket sessions.",
	})

	// MessagesReceived counts inbound OCPP-J messages, labeled by OCPP version and frame kind.
	MessagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "csms_messages_received_total",
		Help: "Total number of messages received from charge points.",
	}, []string{"ocpp_version", "message_type"})

	// EventsPublished counts events published on the bus (and, where bridged, to Kafka), labeled by event type.
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "csms_events_published_total",
		Help: "Total number of domain events published.",
	}, []string{"event_type"})

	// MessageProcessingDuration observes inbound handler processing time, labeled by action.
	MessageProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "csms_message_processing_duration_seconds",
		Help:    "Histogram of inbound message processing times.",
		Buckets: prometheus.LinearBuckets(0.01, 0.01, 10),
	}, []string{"action"})

	// CommandLatency observes CS->CP command round-trip time, labeled by verb.
	CommandLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ocpp_command_latency_seconds",
		Help:    "Latency of CS->CP command round trips, from send to reply or timeout.",
		Buckets: prometheus.DefBuckets,
	}, []string{"action"})

	// CommandsTotal counts CS->CP command attempts, labeled by verb and outcome.
	CommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ocpp_commands_total",
		Help: "Total number of CS->CP commands dispatched, labeled by outcome.",
	}, []string{"action", "outcome"})

	// PendingCommands tracks the number of in-flight CS->CP commands awaiting reply.
	PendingCommands = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "csms_pending_commands",
		Help: "Number of CS->CP commands currently awaiting a reply.",
	})
)

// RegisterMetrics exists for conceptual symmetry with the teacher's
// package; promauto registers every metric above automatically.
func RegisterMetrics() {}
