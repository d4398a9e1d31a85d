package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for form operations.
type Metrics struct {
	Submissions      *prometheus.CounterVec
	SessionsOpened   *prometheus.CounterVec
	SessionsRevived  *prometheus.CounterVec
	SubmitDurationMs *prometheus.HistogramVec
}

// New registers and returns form metrics collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Submissions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fishtank_form_submissions_total",
			Help: "Submissions by form, outcome and client class",
		}, []string{"form", "outcome", "client"}),
		SessionsOpened: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fishtank_form_sessions_opened_total",
			Help: "Form instances mounted",
		}, []string{"form"}),
		SessionsRevived: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fishtank_form_sessions_revived_total",
			Help: "Sessions recreated from a valid ticket after eviction",
		}, []string{"form"}),
		SubmitDurationMs: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fishtank_form_submit_duration_ms",
			Help:    "Duration of the submit flow in milliseconds",
			Buckets: []float64{1, 5, 10, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		}, []string{"form"}),
	}
}

func (m *Metrics) IncSubmission(form, outcome, client string) {
	if m == nil {
		return
	}
	m.Submissions.WithLabelValues(form, outcome, client).Inc()
}

func (m *Metrics) IncSessionOpened(form string) {
	if m == nil {
		return
	}
	m.SessionsOpened.WithLabelValues(form).Inc()
}

func (m *Metrics) IncSessionRevived(form string) {
	if m == nil {
		return
	}
	m.SessionsRevived.WithLabelValues(form).Inc()
}

func (m *Metrics) ObserveSubmitDuration(form string, ms float64) {
	if m == nil {
		return
	}
	m.SubmitDurationMs.WithLabelValues(form).Observe(ms)
}
