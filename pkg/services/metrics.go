package services

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"safetrain-backend/pkg/apperr"
)

// Metrics records RED metrics for every service call. A nil *Metrics is a no-op.
type Metrics struct {
	reqs *prometheus.CounterVec
	errs *prometheus.CounterVec
	durs *prometheus.HistogramVec
}

// NewMetrics registers the service collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	const namespace = "safetrain"
	const subsystem = "service"

	m := &Metrics{
		reqs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "call_total",
			Help:      "Number of calls to the organization, roster and assignment services",
		}, []string{"method"}),
		errs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "error_total",
			Help:      "Number of failed service calls by error code",
		}, []string{"method", "code"}),
		durs: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "duration_seconds",
			Help:      "Duration of service calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}
	reg.MustRegister(m.reqs, m.errs, m.durs)
	return m
}

// Record starts timing method; the returned func records the outcome and
// passes err through.
func (m *Metrics) Record(method string) func(error) error {
	if m == nil {
		return func(err error) error { return err }
	}
	start := time.Now()
	return func(err error) error {
		m.reqs.WithLabelValues(method).Inc()
		if err != nil {
			m.errs.WithLabelValues(method, apperr.Code(err)).Inc()
		}
		m.durs.WithLabelValues(method).Observe(time.Since(start).Seconds())
		return err
	}
}
