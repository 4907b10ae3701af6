package challenge

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var challengesIssued = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "wotid_challenge_issued",
	Help: "Challenges issued",
}, []string{"store", "status"})

var challengesConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "wotid_challenge_consumed",
	Help: "Challenge consume attempts, by outcome",
}, []string{"store", "status"})
