// Package metrics exposes settlement counters to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "votesettle"

// Settlement implements settlement.Metrics.
type Settlement struct {
	runs              *prometheus.CounterVec
	duration          *prometheus.HistogramVec
	votes             *prometheus.CounterVec
	aggregateFailures prometheus.Counter
	rankUps           prometheus.Counter
}

// New registers the settlement collectors on reg.
func New(reg prometheus.Registerer) *Settlement {
	f := promauto.With(reg)
	return &Settlement{
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlement_runs_total",
			Help:      "Settle and resettle calls by outcome.",
		}, []string{"outcome"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "settlement_duration_seconds",
			Help:      "Wall time of settle and resettle calls.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"outcome"}),
		votes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlement_votes_total",
			Help:      "Votes handled by settlement passes.",
		}, []string{"result"}),
		aggregateFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "aggregate_recompute_failures_total",
			Help:      "Profile recomputations that failed.",
		}),
		rankUps: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rank_ups_total",
			Help:      "Rank up notifications written.",
		}),
	}
}

func (s *Settlement) SettlementFinished(outcome string, took time.Duration) {
	s.runs.WithLabelValues(outcome).Inc()
	s.duration.WithLabelValues(outcome).Observe(took.Seconds())
}

func (s *Settlement) VotesProcessed(settled, skipped, failed int) {
	s.votes.WithLabelValues("settled").Add(float64(settled))
	s.votes.WithLabelValues("skipped").Add(float64(skipped))
	s.votes.WithLabelValues("failed").Add(float64(failed))
}

func (s *Settlement) AggregateFailed() { s.aggregateFailures.Inc() }

func (s *Settlement) RankUp() { s.rankUps.Inc() }
