package services

import "github.com/prometheus/client_golang/prometheus"

var (
	// giftsCreated counts gift units persisted, split by whether they start a
	// chain ("root") or continue one ("continuation").
	giftsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gift_units_created_total",
			Help: "Total number of gift units created.",
		},
		[]string{"kind"},
	)

	// giftClaims counts claim attempts by outcome
	// (claimed, not_found, not_available, error).
	giftClaims = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gift_claims_total",
			Help: "Total number of gift claim attempts by outcome.",
		},
		[]string{"outcome"},
	)

	// postPaymentRuns counts post-payment executions by outcome
	// (noop, ok, partial, deduplicated, recovered).
	postPaymentRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gift_post_payment_runs_total",
			Help: "Total number of post-payment gift handler runs by outcome.",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(giftsCreated, giftClaims, postPaymentRuns)
}
