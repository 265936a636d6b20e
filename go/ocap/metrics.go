package ocap

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metricsInst is lazily constructed so importing this package never
// panics on double-registration when an embedding binary also imports it
// more than once in tests.
var (
	metricsOnce sync.Once
	metricsInst *engineMetrics
)

type engineMetrics struct {
	requestsTotal      *prometheus.CounterVec
	resolverLookups    *prometheus.CounterVec
	grantsTotal        prometheus.Counter
	revocationsTotal   prometheus.Counter
	approvalsRejected  prometheus.Counter
	sweeperRevocations prometheus.Counter
}

func metricsSingleton() *engineMetrics {
	metricsOnce.Do(func() {
		metricsInst = &engineMetrics{
			requestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "ocap_requests_total",
					Help: "Total number of requests handled by the engine, by classification.",
				},
				[]string{"classification"},
			),
			resolverLookups: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "ocap_resolver_lookups_total",
					Help: "Total number of permission resolver lookups, by outcome.",
				},
				[]string{"outcome"},
			),
			grantsTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "ocap_grants_total",
					Help: "Total number of permissions granted (root or peer-delegated).",
				},
			),
			revocationsTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "ocap_revocations_total",
					Help: "Total number of permissions removed, via revokePermissions or the orphaned-delegation sweeper.",
				},
			),
			approvalsRejected: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "ocap_approvals_rejected_total",
					Help: "Total number of requestPermissions calls that ended in rejection or error.",
				},
			),
			sweeperRevocations: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "ocap_sweeper_revocations_total",
					Help: "Total number of permissions revoked by the orphaned-delegation sweeper.",
				},
			),
		}
	})
	return metricsInst
}

func recordClassification(c classification) {
	label := "restricted"
	switch c {
	case classSafe:
		label = "safe"
	case classMeta:
		label = "meta"
	}
	metricsSingleton().requestsTotal.WithLabelValues(label).Inc()
}

func recordResolverOutcome(found bool) {
	outcome := "miss"
	if found {
		outcome = "hit"
	}
	metricsSingleton().resolverLookups.WithLabelValues(outcome).Inc()
}
