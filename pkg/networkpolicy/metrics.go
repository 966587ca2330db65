package networkpolicy

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "netsec"

var (
	syncPassesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "sync_passes_total",
		Help:      "Number of completed reconciliation passes.",
	})

	syncPassDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "sync_pass_duration_seconds",
		Help:      "Duration of a reconciliation pass over all monitored networks.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
	})

	networkSyncErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "network_sync_errors_total",
		Help:      "Networks skipped in a pass because their ports could not be listed.",
	}, []string{"network", "reason"})

	portsSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "ports_skipped_total",
		Help:      "Ports left alone because they are not subject to enforcement.",
	}, []string{"network", "reason"})

	portUpdatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "port_updates_total",
		Help:      "Security group corrections issued to the control plane.",
	}, []string{"network", "mode", "result"})
)
