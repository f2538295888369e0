package services

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the counters exported on /metrics.
type Metrics struct {
	TokensIssued       prometheus.Counter
	Completions        *prometheus.CounterVec
	BestEffortFailures *prometheus.CounterVec
	RewardsReconciled  prometheus.Counter
	TokensSwept        prometheus.Counter
	VisitLogsArchived  prometheus.Counter
}

// NewMetrics registers the counters on reg. A nil reg yields unregistered
// counters, which is what tests use.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TokensIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quest_tokens_issued_total",
			Help: "Tracking tokens issued.",
		}),
		Completions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quest_completions_total",
			Help: "Completion attempts by result code.",
		}, []string{"result"}),
		BestEffortFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quest_best_effort_failures_total",
			Help: "Best-effort completion steps that failed.",
		}, []string{"step"}),
		RewardsReconciled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quest_rewards_reconciled_total",
			Help: "Reward credits applied by the reconciler.",
		}),
		TokensSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quest_tokens_swept_total",
			Help: "Expired tracking tokens deleted.",
		}),
		VisitLogsArchived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quest_visit_logs_archived_total",
			Help: "Visit log rows moved to object storage.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.TokensIssued,
			m.Completions,
			m.BestEffortFailures,
			m.RewardsReconciled,
			m.TokensSwept,
			m.VisitLogsArchived,
		)
	}
	return m
}
