package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	DispatchDuration *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		DispatchDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fishtank_relay_dispatch_seconds",
			Help:    "Duration of relay dispatches by form and result",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"form", "result"}),
	}
}

func (m *Metrics) ObserveDispatch(form, result string, seconds float64) {
	if m == nil {
		return
	}
	m.DispatchDuration.WithLabelValues(form, result).Observe(seconds)
}
