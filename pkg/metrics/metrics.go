package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "telemon"

const (
	BatchStarted = "started"
	BatchSkipped = "skipped"
)

// Uploads holds the upload counters. A nil *Uploads records nothing.
type Uploads struct {
	attempts *prometheus.CounterVec
	duration *prometheus.HistogramVec
	batches  *prometheus.CounterVec
}

func NewUploads(reg prometheus.Registerer) *Uploads {
	u := &Uploads{
		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ping_uploads_total",
				Help:      "Ping upload attempts by ping type and outcome.",
			},
			[]string{"ping_type", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "ping_upload_duration_seconds",
				Help:      "Latency of ping uploads that reached the network.",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"ping_type"},
		),
		batches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upload_batches_total",
				Help:      "Scheduled upload batches by ping type, started or skipped by the daily quota.",
			},
			[]string{"ping_type", "result"},
		),
	}

	reg.MustRegister(u.attempts, u.duration, u.batches)

	return u
}

func (u *Uploads) ObserveUpload(pingType, outcome string, elapsed time.Duration) {
	if u == nil {
		return
	}
	u.attempts.WithLabelValues(pingType, outcome).Inc()
	if elapsed > 0 {
		u.duration.WithLabelValues(pingType).Observe(elapsed.Seconds())
	}
}

func (u *Uploads) ObserveBatch(pingType, result string) {
	if u == nil {
		return
	}
	u.batches.WithLabelValues(pingType, result).Inc()
}

// Handler serves the registry in the Prometheus text format.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
