package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	GRPCRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grpc_requests_total",
			Help: "Total number of gRPC requests.",
		},
		[]string{"method", "code"},
	)

	GRPCRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "grpc_request_duration_seconds",
			Help:    "Duration of gRPC requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	SessionLoginsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessions_logins_total",
			Help: "Total number of login attempts.",
		},
		[]string{"result"},
	)

	SessionValidationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessions_validations_total",
			Help: "Total number of bearer token validations.",
		},
		[]string{"result"},
	)

	SessionRefreshesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessions_refreshes_total",
			Help: "Total number of session refresh attempts.",
		},
		[]string{"result"},
	)

	SessionsDeactivatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessions_deactivated_total",
			Help: "Total number of sessions moved out of the active state.",
		},
		[]string{"reason"},
	)

	ProviderCallDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "identity_provider_call_duration_seconds",
			Help:    "Duration of identity provider calls.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "outcome"},
	)

	BackgroundTasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "background_tasks_total",
			Help: "Total number of finished background tasks.",
		},
		[]string{"task", "result"},
	)

	AuditEventsDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_events_dropped_total",
			Help: "Total number of audit events dropped because the buffer was full.",
		},
	)
)

// MustRegister registers every collector on the default registry with a
// constant service label.
func MustRegister(serviceName string) {
	reg := prometheus.WrapRegistererWith(prometheus.Labels{"service": serviceName}, prometheus.DefaultRegisterer)

	reg.MustRegister(
		GRPCRequestsTotal,
		GRPCRequestDurationSeconds,
		SessionLoginsTotal,
		SessionValidationsTotal,
		SessionRefreshesTotal,
		SessionsDeactivatedTotal,
		ProviderCallDurationSeconds,
		BackgroundTasksTotal,
		AuditEventsDroppedTotal,
	)
}

// Result maps an error to the "result" label value.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
