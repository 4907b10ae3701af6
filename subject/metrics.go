package subject

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var subjectLookups = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "wotid_subject_lookups",
	Help: "Subject oracle lookups",
}, []string{"oracle", "status"})

var subjectCacheHits = promauto.NewCounter(prometheus.CounterOpts{
	Name: "wotid_subject_cache_hits",
	Help: "Number of cache hits for subject lookups",
})

var subjectCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
	Name: "wotid_subject_cache_misses",
	Help: "Number of cache misses for subject lookups",
})
