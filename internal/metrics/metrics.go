package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	VaultsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "boost_vaults_created_total",
		Help: "Total number of vaults created by the factory",
	})

	ClaimsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "boost_claims_total",
		Help: "Total number of successful claims",
	})

	ClaimFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boost_claim_failures_total",
			Help: "Total number of rejected claims",
		},
		[]string{"reason"},
	)

	ClaimedAmount = promauto.NewCounter(prometheus.CounterOpts{
		Name: "boost_claimed_amount_total",
		Help: "Cumulative amount paid out by successful claims (base units)",
	})

	WithdrawalsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "boost_withdrawals_total",
		Help: "Total number of owner withdrawals",
	})

	ClaimDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "boost_claim_duration_seconds",
		Help:    "Claim processing duration in seconds",
		Buckets: prometheus.DefBuckets,
	})
)
