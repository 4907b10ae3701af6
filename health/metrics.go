package health

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var componentUp = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "wotid_health_component_up",
	Help: "Whether the component was ok at the last health check (1) or not (0)",
}, []string{"component"})
