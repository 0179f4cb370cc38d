package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "quiz_attempts"

// Metrics holds the Prometheus collectors of the service.
type Metrics struct {
	RequestCounter     *prometheus.CounterVec
	RequestDuration    *prometheus.HistogramVec
	AttemptsStarted    prometheus.Counter
	AttemptsGraded     prometheus.Counter
	CertificatesIssued prometheus.Counter
}

// New registers the collectors on reg. Tests pass a fresh prometheus.NewRegistry().
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RequestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"route", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		AttemptsStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempts_started_total",
			Help:      "Attempts created",
		}),
		AttemptsGraded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempts_graded_total",
			Help:      "Grading runs, including regrades",
		}),
		CertificatesIssued: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "certificates_issued_total",
			Help:      "Certificates created",
		}),
	}
}
