package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Rejected         *prometheus.CounterVec
	LimiterErrors    prometheus.Counter
	CleanupDeleted   prometheus.Counter
	CleanupRunsTotal *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Rejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fishtank_ratelimit_rejected_total",
			Help: "Requests rejected by the rate limiter",
		}, []string{"scope"}),
		LimiterErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "fishtank_ratelimit_errors_total",
			Help: "Limiter failures that let the request through",
		}),
		CleanupDeleted: f.NewCounter(prometheus.CounterOpts{
			Name: "fishtank_ratelimit_cleanup_buckets_deleted_total",
			Help: "Idle buckets removed by the cleanup worker",
		}),
		CleanupRunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fishtank_ratelimit_cleanup_runs_total",
			Help: "Cleanup worker runs by result",
		}, []string{"result"}),
	}
}

func (m *Metrics) IncRejected(scope string) {
	if m == nil {
		return
	}
	m.Rejected.WithLabelValues(scope).Inc()
}

func (m *Metrics) IncLimiterError() {
	if m == nil {
		return
	}
	m.LimiterErrors.Inc()
}
