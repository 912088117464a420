package rendition

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Request outcomes recorded by Metrics.
const (
	resultHit    = "hit"
	resultMiss   = "miss"
	resultShared = "shared"
	resultError  = "error"
)

// Metrics counts rendition cache outcomes and codec latency. A nil *Metrics
// records nothing.
type Metrics struct {
	requests *prometheus.CounterVec
	duration prometheus.Histogram
}

// NewMetrics creates the rendition collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "image",
			Subsystem: "rendition",
			Name:      "requests_total",
			Help:      "Rendition requests by cache outcome (hit, miss, shared, error).",
		}, []string{"result"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "image",
			Subsystem: "rendition",
			Name:      "render_duration_seconds",
			Help:      "Time spent generating a rendition on a cache miss.",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
	}
	reg.MustRegister(m.requests, m.duration)
	return m
}

func (m *Metrics) observe(result string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(result).Inc()
}

func (m *Metrics) observeRender(d time.Duration) {
	if m == nil {
		return
	}
	m.duration.Observe(d.Seconds())
}
