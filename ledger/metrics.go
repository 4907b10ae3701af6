package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var ledgerCalls = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "wotid_ledger_calls",
	Help: "JSON-RPC calls made to the ledger node",
}, []string{"method", "status"})

var ledgerCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "wotid_ledger_call_duration",
	Help:    "Time to complete a ledger JSON-RPC call",
	Buckets: prometheus.ExponentialBucketsRange(0.001, 10, 20),
}, []string{"method", "status"})
