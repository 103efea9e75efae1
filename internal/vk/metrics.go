package vk

import "github.com/prometheus/client_golang/prometheus"

const (
	statusSuccess = "success"
	statusError   = "error"
)

// Metrics are recorded once per HTTP attempt.
type Metrics struct {
	Requests *prometheus.CounterVec
	Duration prometheus.Histogram
}

// NewMetrics creates the instruments and registers them on reg when it is non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vk_api_requests_total",
			Help: "Total VK API requests",
		}, []string{"status"}),
		Duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "vk_api_request_duration_seconds",
			Help:    "VK API request duration",
			Buckets: prometheus.DefBuckets,
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Requests, m.Duration)
	}
	return m
}

func (m *Metrics) observe(status string, seconds float64) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(status).Inc()
	m.Duration.Observe(seconds)
}
