package verification

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var initiations = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "wotid_verification_initiations",
	Help: "Challenge initiations, by outcome",
}, []string{"status"})

var verifications = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "wotid_verification_results",
	Help: "Completed verifications, by terminal state and reason",
}, []string{"state", "reason"})

var verificationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "wotid_verification_duration",
	Help:    "Time to complete a verification",
	Buckets: prometheus.ExponentialBucketsRange(0.001, 10, 20),
}, []string{"state"})
