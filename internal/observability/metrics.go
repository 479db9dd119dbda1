package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "weather_mail_etl"

// Metrics holds the Prometheus counters, histograms, and gauges for a mailbox run.
type Metrics struct {
	MessagesProcessed prometheus.Counter
	RunRunning        prometheus.Gauge

	// Attachment metrics, labelled by format.
	AttachmentsConverted *prometheus.CounterVec   // labels: format
	AttachmentsFailed    *prometheus.CounterVec   // labels: format
	AttachmentsSkipped   prometheus.Counter       // unknown extensions
	ConversionDuration   *prometheus.HistogramVec // labels: format

	// Weather service metrics.
	WeatherRequests    *prometheus.CounterVec // labels: outcome={success,unavailable,auth_error,error}
	WeatherAPIDuration prometheus.Histogram
}

// NewMetrics creates and registers all run metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.MessagesProcessed,
		m.RunRunning,
		m.AttachmentsConverted,
		m.AttachmentsFailed,
		m.AttachmentsSkipped,
		m.ConversionDuration,
		m.WeatherRequests,
		m.WeatherAPIDuration,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		MessagesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_processed_total",
			Help:      "Total mail messages processed.",
		}),
		RunRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_running",
			Help:      "1 while a mailbox run is in progress, 0 otherwise.",
		}),
		AttachmentsConverted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attachments_converted_total",
			Help:      "Attachments converted successfully, by format.",
		}, []string{"format"}),
		AttachmentsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attachments_failed_total",
			Help:      "Attachments whose conversion failed, by format.",
		}, []string{"format"}),
		AttachmentsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attachments_skipped_total",
			Help:      "Attachments skipped because of an unknown extension.",
		}),
		ConversionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "conversion_duration_seconds",
			Help:      "Duration of a single attachment conversion.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"format"}),
		WeatherRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "weather_requests_total",
			Help:      "Weather service queries by outcome.",
		}, []string{"outcome"}),
		WeatherAPIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "weather_api_duration_seconds",
			Help:      "Weather service request duration in seconds, token exchange included.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
	}
}
