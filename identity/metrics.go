package identity

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var didResolution = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "wotid_identity_resolve_did",
	Help: "DID resolutions",
}, []string{"resolver", "status"})

var didResolutionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "wotid_identity_resolve_did_duration",
	Help:    "Time to resolve a DID",
	Buckets: prometheus.ExponentialBucketsRange(0.0001, 10, 20),
}, []string{"resolver", "status"})
