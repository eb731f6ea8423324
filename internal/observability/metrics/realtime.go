package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RealtimeConnectionState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_connection_state",
			Help: "Current connection lifecycle state (0 idle, 1 connecting, 2 open, 3 closing, 4 closed)",
		},
	)

	RealtimeConnectAttempts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_connect_attempts_total",
			Help: "Total number of socket dial attempts",
		},
	)

	RealtimeConnectionsOpened = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_connections_opened_total",
			Help: "Total number of successfully opened connections",
		},
	)

	RealtimeDisconnections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_disconnections_total",
			Help: "Total number of connection closes by reason",
		},
		[]string{"reason"},
	)

	RealtimeReconnectsScheduled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_reconnects_scheduled_total",
			Help: "Total number of scheduled reconnect attempts",
		},
	)

	RealtimeReconnectExhausted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_reconnect_exhausted_total",
			Help: "Total number of times the reconnect budget was exhausted",
		},
	)

	RealtimeEventsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_events_received_total",
			Help: "Total number of decoded inbound events by type",
		},
		[]string{"event_type"},
	)

	RealtimeEventsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_events_dispatched_total",
			Help: "Total number of events dispatched to subscribers by type",
		},
		[]string{"event_type"},
	)

	RealtimeHandlerFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_handler_failures_total",
			Help: "Total number of failed handler invocations by event type",
		},
		[]string{"event_type"},
	)

	RealtimeDecodeFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_decode_failures_total",
			Help: "Total number of inbound frames dropped because they could not be decoded",
		},
	)

	RealtimeMessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_messages_sent_total",
			Help: "Total number of outbound events written to the socket by type",
		},
		[]string{"event_type"},
	)

	RealtimeSendFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_send_failures_total",
			Help: "Total number of outbound events that could not be written by reason",
		},
		[]string{"reason"},
	)

	RealtimeSubscriptionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_subscriptions_active",
			Help: "Number of active event subscriptions",
		},
	)

	RealtimeSessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_sessions_active",
			Help: "Number of active chat session adapters",
		},
	)
)
