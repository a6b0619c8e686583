package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTPRequestDuration tracks HTTP request latency for every mounted route.
var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "bunker",
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "path", "status"},
)

// RequestsReceivedTotal counts NIP-46 RPC requests received over the relay,
// by method.
var RequestsReceivedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "bunker",
		Subsystem: "requests",
		Name:      "received_total",
		Help:      "Total number of signing requests received, by method.",
	},
	[]string{"method"},
)

// RequestsDecidedTotal counts authorization outcomes for signing requests.
var RequestsDecidedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "bunker",
		Subsystem: "requests",
		Name:      "decided_total",
		Help:      "Total number of signing requests by final authorization decision.",
	},
	[]string{"decision"}, // allow, deny, expired
)

// PendingRequestsGauge reports the number of PendingRequest rows currently
// awaiting an admin decision.
var PendingRequestsGauge = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "bunker",
		Subsystem: "requests",
		Name:      "pending",
		Help:      "Number of signing requests currently awaiting authorization.",
	},
)

// AdminHeartbeatAgeSeconds reports seconds since the last admin channel
// heartbeat response was observed.
var AdminHeartbeatAgeSeconds = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "bunker",
		Subsystem: "admin",
		Name:      "heartbeat_age_seconds",
		Help:      "Seconds since the admin relay channel last responded to a ping.",
	},
)

// TokensRedeemedTotal counts provisioning token redemptions.
var TokensRedeemedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "bunker",
		Subsystem: "tokens",
		Name:      "redeemed_total",
		Help:      "Total number of provisioning tokens redeemed, by outcome.",
	},
	[]string{"outcome"}, // ok, not_found, already_redeemed, expired, policy_missing
)

// All returns the bunker-specific metrics for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		RequestsReceivedTotal,
		RequestsDecidedTotal,
		PendingRequestsGauge,
		AdminHeartbeatAgeSeconds,
		TokensRedeemedTotal,
	}
}

// NewMetricsRegistry creates a Prometheus registry with Go/process collectors,
// the shared HTTPRequestDuration metric, and any additional collectors.
func NewMetricsRegistry(extra ...prometheus.Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		HTTPRequestDuration,
	)
	for _, c := range extra {
		reg.MustRegister(c)
	}
	return reg
}
