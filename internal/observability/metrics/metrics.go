package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	RegistrationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "identity_registrations_total",
			Help: "Registration attempts by result.",
		},
		[]string{"result"},
	)

	LoginsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "identity_logins_total",
			Help: "Login attempts by result.",
		},
		[]string{"result"},
	)

	CompensationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "identity_compensations_total",
			Help: "Compensating actions against the identity provider by operation and result.",
		},
		[]string{"op", "result"},
	)

	GateDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gate_decisions_total",
			Help: "Session gate decisions.",
		},
		[]string{"decision"},
	)

	ActivationTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "activation_tokens_total",
			Help: "Activation tokens issued and redeemed.",
		},
		[]string{"flow", "result"},
	)

	DriftActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drift_sweep_actions_total",
			Help: "Corrective actions taken by the drift sweep.",
		},
		[]string{"direction", "action"},
	)

	MessagesStoredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_messages_stored_total",
			Help: "Chat messages persisted.",
		},
	)
)

// MustRegister exposes every collector on the default registry with a constant service label.
func MustRegister(serviceName string) {
	reg := prometheus.WrapRegistererWith(prometheus.Labels{"service": serviceName}, prometheus.DefaultRegisterer)
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDurationSeconds,
		RegistrationsTotal,
		LoginsTotal,
		CompensationsTotal,
		GateDecisionsTotal,
		ActivationTokensTotal,
		DriftActionsTotal,
		MessagesStoredTotal,
	)
}
