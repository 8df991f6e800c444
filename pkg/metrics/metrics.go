package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Fleet state
	NodesByStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "provision_nodes_total",
			Help: "Number of nodes by install status",
		},
		[]string{"status"},
	)

	NodesByReprovisionStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "provision_nodes_reprovision_total",
			Help: "Number of nodes by reprovision status",
		},
		[]string{"status"},
	)

	// HTTP surface
	BootRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provision_boot_requests_total",
			Help: "Boot requests by decision (install, local, error, invalid)",
		},
		[]string{"decision"},
	)

	CallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provision_callbacks_total",
			Help: "Install callbacks by reported status",
		},
		[]string{"status"},
	)

	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provision_api_requests_total",
			Help: "API requests by action and HTTP status",
		},
		[]string{"action", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "provision_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"action"},
	)

	// Orchestration
	ReprovisionOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provision_reprovision_outcomes_total",
			Help: "Per-node reprovision outcomes by result",
		},
		[]string{"result"},
	)

	ClusterFormationRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provision_cluster_formation_runs_total",
			Help: "Cluster formation runs by outcome (full, partial, failed)",
		},
		[]string{"outcome"},
	)

	MonitorPollDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "provision_monitor_poll_duration_seconds",
			Help:    "Completion monitor poll cycle duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(NodesByStatus)
	prometheus.MustRegister(NodesByReprovisionStatus)
	prometheus.MustRegister(BootRequestsTotal)
	prometheus.MustRegister(CallbacksTotal)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
	prometheus.MustRegister(ReprovisionOutcomesTotal)
	prometheus.MustRegister(ClusterFormationRunsTotal)
	prometheus.MustRegister(MonitorPollDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
